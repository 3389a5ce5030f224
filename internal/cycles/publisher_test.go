package cycles

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasury/internal/statecache"
	"treasury/internal/types"
)

type countingMetrics struct {
	cycles  int
	skipped []string
}

func (c *countingMetrics) RecordCycle(context.Context, *types.RunRecord) { c.cycles++ }
func (c *countingMetrics) RecordSkipped(_ context.Context, cycle string) {
	c.skipped = append(c.skipped, cycle)
}

func TestRunPublisher(t *testing.T) {
	cache := statecache.New(statecache.NewBus())
	next := &countingMetrics{}
	pub := &RunPublisher{State: cache, Next: next}

	var events []types.Event
	cache.Bus().On(types.TopicRun, func(ev types.Event) { events = append(events, ev) })

	rec := &types.RunRecord{ID: "run_1", Cycle: NameExecution, Results: []types.AccountOutcome{{Account: "0xa"}}}
	pub.RecordCycle(context.Background(), rec)
	pub.RecordSkipped(context.Background(), NameExecution)

	entry, ok := cache.Get(types.TopicRun, NameExecution)
	require.True(t, ok)
	stored := entry.Payload.(*types.RunRecord)
	assert.Equal(t, "run_1", stored.ID)

	rec.Results[0].Account = "mutated"
	assert.Equal(t, "0xa", stored.Results[0].Account, "published record must be a copy")

	assert.Len(t, events, 1)
	assert.Equal(t, 1, next.cycles)
	assert.Equal(t, []string{NameExecution}, next.skipped)
}
