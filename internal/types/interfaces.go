package types

import (
	"context"
	"encoding/json"
	"time"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// AccountRegistry lists the accounts the scheduler manages. The order of the
// returned slice is the processing order within a cycle.
type AccountRegistry interface {
	ListManagedAccounts(ctx context.Context) ([]ManagedAccount, error)
}

// PortfolioSource fetches per-account data from the portfolio service. Each
// method is independently failable; callers must not short-circuit on one
// failure.
type PortfolioSource interface {
	FetchSnapshot(ctx context.Context, account ManagedAccount) (json.RawMessage, error)
	FetchAlerts(ctx context.Context, account ManagedAccount) (json.RawMessage, error)
	ComputeRiskInsights(ctx context.Context, account ManagedAccount) (*RiskInsights, error)
	BuildProjection(ctx context.Context, account ManagedAccount) (json.RawMessage, error)
}

// AgentExecutor runs (or previews) the automated agent's next action for an
// account. The decision logic lives in the portfolio service.
type AgentExecutor interface {
	ExecuteAgentAction(ctx context.Context, account ManagedAccount, preview bool) (*ExecutionResult, error)
}

// ProtocolMetricsSource refreshes shared protocol metrics once per cycle.
// The result is keyed by network identifier.
type ProtocolMetricsSource interface {
	RefreshProtocolMetrics(ctx context.Context) (map[string]json.RawMessage, error)
}

// AlertSender delivers a single alert notification.
type AlertSender interface {
	Send(ctx context.Context, payload AlertPayload) error
}
