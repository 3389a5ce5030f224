package cycles

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasury/internal/scheduler"
	"treasury/internal/statecache"
	"treasury/internal/types"
)

func newMonitoringRunner(t *testing.T, cfg MonitoringConfig) (*scheduler.Runner, *statecache.Cache) {
	t.Helper()
	cache := statecache.New(statecache.NewBus())
	cfg.State = cache
	runner := scheduler.NewRunner(scheduler.Config{
		Name:     NameMonitoring,
		Interval: 0,
		Cycle:    NewMonitoring(cfg),
		Metrics:  &RunPublisher{State: cache},
	})
	return runner, cache
}

func TestMonitoring_AllStepsSucceed(t *testing.T) {
	eval := &fakeEvaluator{}
	runner, cache := newMonitoringRunner(t, MonitoringConfig{
		Accounts:  &fakeRegistry{accounts: []types.ManagedAccount{{Address: "0xAAA"}, {Address: "0xbbb"}}},
		Portfolio: &fakePortfolio{},
		Protocols: &fakeProtocols{metrics: map[string]json.RawMessage{"Base": json.RawMessage(`{"apy":4}`)}},
		Alerts:    eval,
	})

	rec, err := runner.RunOnce(context.Background(), types.RunSourceManual)
	require.NoError(t, err)

	assert.Equal(t, 2, rec.ProcessedAccounts)
	assert.Equal(t, 2, rec.SuccessCount)
	assert.Equal(t, 0, rec.ErrorCount)
	require.Len(t, rec.Results, 2)
	assert.Equal(t, "0xaaa", rec.Results[0].Account)

	var names []string
	for _, s := range rec.Results[0].Steps {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{StepSnapshot, StepAlerts, StepRisk, StepProjection}, names)

	step, ok := rec.CycleStep(StepProtocolMetrics)
	require.True(t, ok)
	assert.True(t, step.OK)

	for _, topic := range []types.Topic{types.TopicSnapshot, types.TopicAlerts, types.TopicRisk, types.TopicProjection} {
		_, ok := cache.Get(topic, "0xAAA")
		assert.True(t, ok, "topic %s not cached", topic)
	}
	_, ok = cache.Get(types.TopicProtocolMetrics, "base")
	assert.True(t, ok)

	run, ok := cache.Get(types.TopicRun, NameMonitoring)
	require.True(t, ok)
	assert.Equal(t, rec.ID, run.Payload.(*types.RunRecord).ID)

	assert.Len(t, eval.signals, 2)
	assert.Equal(t, types.AlertKindRisk, eval.signals[0].Kind)
}

func TestMonitoring_PartialFailureKeepsOtherSources(t *testing.T) {
	runner, cache := newMonitoringRunner(t, MonitoringConfig{
		Accounts:  &fakeRegistry{accounts: []types.ManagedAccount{{Address: "0xa"}}},
		Portfolio: &fakePortfolio{failing: map[string]bool{"snapshot": true}},
	})

	rec, err := runner.RunOnce(context.Background(), types.RunSourceManual)
	require.NoError(t, err)

	assert.Equal(t, 0, rec.SuccessCount)
	assert.Equal(t, 1, rec.ErrorCount)
	assert.Equal(t, "snapshot: snapshot unavailable", rec.Results[0].Error)

	_, ok := cache.Get(types.TopicSnapshot, "0xa")
	assert.False(t, ok)
	_, ok = cache.Get(types.TopicProjection, "0xa")
	assert.True(t, ok, "projection must still be cached after snapshot failed")
	assert.Empty(t, rec.CycleSteps, "no protocol source configured")
}

func TestMonitoring_RiskPayloadAndSignal(t *testing.T) {
	eval := &fakeEvaluator{}
	runner, cache := newMonitoringRunner(t, MonitoringConfig{
		Accounts: &fakeRegistry{accounts: []types.ManagedAccount{{Address: "0xa"}}},
		Portfolio: &fakePortfolio{risk: map[string]*types.RiskInsights{
			"0xa": {RiskScore: 0.9, Utilization: 0.5, Violations: []string{"max_drawdown"}},
		}},
		Alerts: eval,
	})

	_, err := runner.RunOnce(context.Background(), types.RunSourceManual)
	require.NoError(t, err)

	entry, ok := cache.Get(types.TopicRisk, "0xa")
	require.True(t, ok)
	insights := entry.Payload.(*types.RiskInsights)
	assert.Equal(t, "0xa", insights.Account)

	require.Len(t, eval.signals, 1)
	assert.Equal(t, 0.9, eval.signals[0].RiskScore)
	assert.Equal(t, []string{"max_drawdown"}, eval.signals[0].Violations)
}

func TestMonitoring_ProtocolMetricsFailure(t *testing.T) {
	runner, _ := newMonitoringRunner(t, MonitoringConfig{
		Accounts:  &fakeRegistry{},
		Portfolio: &fakePortfolio{},
		Protocols: &fakeProtocols{err: errors.New("indexer down")},
	})

	rec, err := runner.RunOnce(context.Background(), types.RunSourceManual)
	require.NoError(t, err)

	step, ok := rec.CycleStep(StepProtocolMetrics)
	require.True(t, ok)
	assert.False(t, step.OK)
	assert.Equal(t, "indexer down", step.Error)
	assert.Equal(t, 0, rec.ProcessedAccounts)
}

func TestMonitoring_ListFailure(t *testing.T) {
	runner, _ := newMonitoringRunner(t, MonitoringConfig{
		Accounts:  &fakeRegistry{err: errors.New("db down")},
		Portfolio: &fakePortfolio{},
	})

	rec, err := runner.RunOnce(context.Background(), types.RunSourceManual)
	require.NoError(t, err)
	assert.Contains(t, rec.Error, "db down")
	assert.Empty(t, rec.Results)
}
