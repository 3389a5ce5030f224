package cycles

import (
	"context"

	"treasury/internal/scheduler"
	"treasury/internal/types"
)

// RunPublisher writes every finished run record to the run topic, keyed by
// cycle name, so live subscribers see cycle summaries. It forwards to Next
// when set.
type RunPublisher struct {
	State StateWriter
	Next  scheduler.MetricsRecorder
}

var _ scheduler.MetricsRecorder = (*RunPublisher)(nil)

// RecordCycle implements scheduler.MetricsRecorder.
func (p *RunPublisher) RecordCycle(ctx context.Context, record *types.RunRecord) {
	p.State.Set(types.TopicRun, record.Cycle, record.Clone())
	if p.Next != nil {
		p.Next.RecordCycle(ctx, record)
	}
}

// RecordSkipped implements scheduler.MetricsRecorder.
func (p *RunPublisher) RecordSkipped(ctx context.Context, cycle string) {
	if p.Next != nil {
		p.Next.RecordSkipped(ctx, cycle)
	}
}
