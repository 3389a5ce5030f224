// Package cycles defines the two scheduler cycles, monitoring and execution,
// by binding collaborator calls to scheduler steps and publishing their
// results into the state cache.
package cycles

import (
	"context"

	"treasury/internal/alerts"
	"treasury/internal/spendwindow"
	"treasury/internal/statecache"
	"treasury/internal/types"
)

// Cycle names. These are also the registry keys and the run-topic keys.
const (
	NameMonitoring = "monitoring"
	NameExecution  = "execution"
)

// Step names, in declared order.
const (
	StepSnapshot        = "snapshot"
	StepAlerts          = "alerts"
	StepRisk            = "risk"
	StepProjection      = "projection"
	StepProtocolMetrics = "protocol_metrics"
	StepSpendWindow     = "spend_window"
	StepAgentAction     = "agent_action"
)

// AlertEvaluator is satisfied by *alerts.Dispatcher.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, sig alerts.Signal) bool
}

// SpendToucher is satisfied by *spendwindow.Service.
type SpendToucher interface {
	Touch(ctx context.Context, delegationID string, dailyLimit float64) (spendwindow.Result, error)
}

var (
	_ AlertEvaluator = (*alerts.Dispatcher)(nil)
	_ SpendToucher   = (*spendwindow.Service)(nil)
)

// StateWriter is the slice of *statecache.Cache the cycles write through.
type StateWriter interface {
	Set(topic types.Topic, key string, payload any) types.CacheEntry
}

var _ StateWriter = (*statecache.Cache)(nil)
