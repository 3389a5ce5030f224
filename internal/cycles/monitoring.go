package cycles

import (
	"context"
	"log/slog"

	"treasury/internal/alerts"
	"treasury/internal/scheduler"
	"treasury/internal/types"
)

// MonitoringConfig holds the collaborators of the monitoring cycle.
type MonitoringConfig struct {
	Accounts  types.AccountRegistry
	Portfolio types.PortfolioSource
	Protocols types.ProtocolMetricsSource
	Alerts    AlertEvaluator
	State     StateWriter
	Logger    *slog.Logger
}

// Monitoring refreshes per-account portfolio state and raises risk alerts.
// Protocols and Alerts are optional.
type Monitoring struct {
	cfg MonitoringConfig
}

var _ scheduler.Cycle = (*Monitoring)(nil)

// NewMonitoring creates the monitoring cycle.
func NewMonitoring(cfg MonitoringConfig) *Monitoring {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Monitoring{cfg: cfg}
}

// ListAccounts implements scheduler.Cycle.
func (m *Monitoring) ListAccounts(ctx context.Context) ([]types.ManagedAccount, error) {
	return m.cfg.Accounts.ListManagedAccounts(ctx)
}

// AccountSteps implements scheduler.Cycle.
func (m *Monitoring) AccountSteps() []scheduler.AccountStep {
	return []scheduler.AccountStep{
		{Name: StepSnapshot, Run: m.snapshot},
		{Name: StepAlerts, Run: m.alerts},
		{Name: StepRisk, Run: m.risk},
		{Name: StepProjection, Run: m.projection},
	}
}

// CycleSteps implements scheduler.Cycle.
func (m *Monitoring) CycleSteps() []scheduler.CycleStep {
	if m.cfg.Protocols == nil {
		return nil
	}
	return []scheduler.CycleStep{
		{Name: StepProtocolMetrics, Run: m.protocolMetrics},
	}
}

func (m *Monitoring) snapshot(ctx context.Context, account types.ManagedAccount) error {
	raw, err := m.cfg.Portfolio.FetchSnapshot(ctx, account)
	if err != nil {
		return err
	}
	m.cfg.State.Set(types.TopicSnapshot, account.Address, raw)
	return nil
}

func (m *Monitoring) alerts(ctx context.Context, account types.ManagedAccount) error {
	raw, err := m.cfg.Portfolio.FetchAlerts(ctx, account)
	if err != nil {
		return err
	}
	m.cfg.State.Set(types.TopicAlerts, account.Address, raw)
	return nil
}

func (m *Monitoring) risk(ctx context.Context, account types.ManagedAccount) error {
	insights, err := m.cfg.Portfolio.ComputeRiskInsights(ctx, account)
	if err != nil {
		return err
	}
	if insights.Account == "" {
		insights.Account = account.Address
	}
	m.cfg.State.Set(types.TopicRisk, account.Address, insights)

	if m.cfg.Alerts != nil {
		m.cfg.Alerts.Evaluate(ctx, alerts.Signal{
			Kind:        types.AlertKindRisk,
			Account:     account.Address,
			RiskScore:   insights.RiskScore,
			Utilization: insights.Utilization,
			Violations:  insights.Violations,
			Warnings:    insights.Warnings,
		})
	}
	return nil
}

func (m *Monitoring) projection(ctx context.Context, account types.ManagedAccount) error {
	raw, err := m.cfg.Portfolio.BuildProjection(ctx, account)
	if err != nil {
		return err
	}
	m.cfg.State.Set(types.TopicProjection, account.Address, raw)
	return nil
}

func (m *Monitoring) protocolMetrics(ctx context.Context) error {
	byNetwork, err := m.cfg.Protocols.RefreshProtocolMetrics(ctx)
	if err != nil {
		return err
	}
	for network, payload := range byNetwork {
		m.cfg.State.Set(types.TopicProtocolMetrics, network, payload)
	}
	m.cfg.Logger.DebugContext(ctx, "protocol metrics refreshed", "networks", len(byNetwork))
	return nil
}
