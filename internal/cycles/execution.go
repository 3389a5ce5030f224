package cycles

import (
	"context"
	"log/slog"

	"treasury/internal/alerts"
	"treasury/internal/scheduler"
	"treasury/internal/types"
)

// ExecutionConfig holds the collaborators of the execution cycle.
type ExecutionConfig struct {
	Accounts    types.AccountRegistry
	Agent       types.AgentExecutor
	SpendWindow SpendToucher
	Alerts      AlertEvaluator
	State       StateWriter
	Logger      *slog.Logger

	// AutoExecute submits agent actions. When false every action is a
	// preview.
	AutoExecute bool
}

// Execution normalizes each delegation's spend window and then runs (or
// previews) the agent's next action for the account.
type Execution struct {
	cfg ExecutionConfig
}

var _ scheduler.Cycle = (*Execution)(nil)

// NewExecution creates the execution cycle.
func NewExecution(cfg ExecutionConfig) *Execution {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Execution{cfg: cfg}
}

// ListAccounts implements scheduler.Cycle.
func (e *Execution) ListAccounts(ctx context.Context) ([]types.ManagedAccount, error) {
	return e.cfg.Accounts.ListManagedAccounts(ctx)
}

// AccountSteps implements scheduler.Cycle.
func (e *Execution) AccountSteps() []scheduler.AccountStep {
	return []scheduler.AccountStep{
		{Name: StepSpendWindow, Run: e.spendWindow},
		{Name: StepAgentAction, Run: e.agentAction},
	}
}

// CycleSteps implements scheduler.Cycle. Protocol metrics are refreshed by
// the monitoring cycle only.
func (e *Execution) CycleSteps() []scheduler.CycleStep {
	return nil
}

func (e *Execution) spendWindow(ctx context.Context, account types.ManagedAccount) error {
	if account.DelegationID == "" || e.cfg.SpendWindow == nil {
		return nil
	}
	res, err := e.cfg.SpendWindow.Touch(ctx, account.DelegationID, account.DailyLimit)
	if err != nil {
		return err
	}
	if res.Changed {
		e.cfg.Logger.DebugContext(ctx, "spend window normalized",
			"account", account.Address,
			"delegation_id", account.DelegationID,
			"spent_24h", res.Caveats.Spent24h,
		)
	}
	return nil
}

func (e *Execution) agentAction(ctx context.Context, account types.ManagedAccount) error {
	result, err := e.cfg.Agent.ExecuteAgentAction(ctx, account, !e.cfg.AutoExecute)
	if err != nil {
		return err
	}
	if result.Account == "" {
		result.Account = account.Address
	}
	e.cfg.State.Set(types.TopicExecution, account.Address, result)

	if e.cfg.Alerts != nil && (len(result.Violations) > 0 || len(result.Warnings) > 0) {
		e.cfg.Alerts.Evaluate(ctx, alerts.Signal{
			Kind:       types.AlertKindExecution,
			Account:    account.Address,
			RiskScore:  result.RiskScore,
			Violations: result.Violations,
			Warnings:   result.Warnings,
		})
	}
	return nil
}
