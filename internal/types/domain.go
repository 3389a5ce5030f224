// Package types holds the domain model shared by the scheduler, the state
// cache, the streaming gateway and the HTTP control surface.
package types

import (
	"strings"
	"time"
)

// RunSource identifies what triggered a scheduler cycle.
type RunSource string

const (
	RunSourceManual    RunSource = "manual"
	RunSourceAutomatic RunSource = "automatic"
)

// Valid reports whether s is a known run source.
func (s RunSource) Valid() bool {
	return s == RunSourceManual || s == RunSourceAutomatic
}

// NormalizeAddress returns the canonical form of an account address. All
// lookups go through this so that checksummed and lowercase addresses map to
// the same account.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// ManagedAccount is one account returned by the account registry.
type ManagedAccount struct {
	Address      string  `json:"address"`
	DelegationID string  `json:"delegation_id,omitempty"`
	Network      string  `json:"network,omitempty"`
	DailyLimit   float64 `json:"daily_limit"`
}

// StepOutcome records the result of one collaborator step.
type StepOutcome struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// AccountOutcome is the per-account result within one RunRecord. Steps are in
// declared order. Error is set iff at least one step failed and joins every
// step's message.
type AccountOutcome struct {
	Account string        `json:"account"`
	Steps   []StepOutcome `json:"steps"`
	Error   string        `json:"error,omitempty"`
}

// Succeeded reports whether every step for the account succeeded.
func (o AccountOutcome) Succeeded() bool {
	for _, s := range o.Steps {
		if !s.OK {
			return false
		}
	}
	return true
}

// Step returns the outcome of the named step.
func (o AccountOutcome) Step(name string) (StepOutcome, bool) {
	for _, s := range o.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepOutcome{}, false
}

// RunRecord describes one execution of a scheduler cycle. It is immutable once
// appended to the runner's history.
//
// SuccessCount + ErrorCount equals ProcessedAccounts only when every account
// finished; a cycle that fails while listing accounts records zero processed.
type RunRecord struct {
	ID                string           `json:"id"`
	Cycle             string           `json:"cycle"`
	Source            RunSource        `json:"source"`
	StartedAt         time.Time        `json:"started_at"`
	FinishedAt        time.Time        `json:"finished_at"`
	DurationMs        int64            `json:"duration_ms"`
	ProcessedAccounts int              `json:"processed_accounts"`
	SuccessCount      int              `json:"success_count"`
	ErrorCount        int              `json:"error_count"`
	Results           []AccountOutcome `json:"results"`
	CycleSteps        []StepOutcome    `json:"cycle_steps,omitempty"`
	Error             string           `json:"error,omitempty"`
}

// Succeeded reports whether the run counts as successful for metrics: no
// account errors and no cycle-level failure.
func (r *RunRecord) Succeeded() bool {
	return r.ErrorCount == 0 && r.Error == ""
}

// CycleStep returns the outcome of the named cycle-wide step.
func (r *RunRecord) CycleStep(name string) (StepOutcome, bool) {
	for _, s := range r.CycleSteps {
		if s.Name == name {
			return s, true
		}
	}
	return StepOutcome{}, false
}

// Clone returns a deep copy so callers cannot mutate retained history.
func (r *RunRecord) Clone() *RunRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Results = make([]AccountOutcome, len(r.Results))
	for i, res := range r.Results {
		res.Steps = append([]StepOutcome(nil), res.Steps...)
		c.Results[i] = res
	}
	c.CycleSteps = append([]StepOutcome(nil), r.CycleSteps...)
	return &c
}

// SchedulerStatus is the current state of one runner.
type SchedulerStatus struct {
	Name           string     `json:"name"`
	Enabled        bool       `json:"enabled"`
	Running        bool       `json:"running"`
	IntervalMs     int64      `json:"interval_ms"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastDurationMs int64      `json:"last_duration_ms"`
	LastError      string     `json:"last_error,omitempty"`
	LastSummary    *RunRecord `json:"last_summary,omitempty"`
	SkippedRuns    int64      `json:"skipped_runs"`
}

// RunMetrics is derived on demand from the retained run history.
type RunMetrics struct {
	TotalRuns             int        `json:"total_runs"`
	SuccessfulRuns        int        `json:"successful_runs"`
	FailedRuns            int        `json:"failed_runs"`
	SuccessRate           float64    `json:"success_rate"`
	AverageDurationMs     float64    `json:"average_duration_ms"`
	AverageAccountsPerRun float64    `json:"average_accounts_per_run"`
	LastRunAt             *time.Time `json:"last_run_at,omitempty"`
	LastSuccessAt         *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt         *time.Time `json:"last_failure_at,omitempty"`
	SkippedAutomaticRuns  int64      `json:"skipped_automatic_runs"`
}

// DelegationCaveats is the spend-guard state attached to one delegation. The
// JSON keys match the shape stored in the delegations.caveats column.
//
// Invariant after normalization: 0 <= Spent24h <= daily limit.
type DelegationCaveats struct {
	Spent24h          float64 `json:"spent24h"`
	Spent24hUpdatedAt string  `json:"spent24hUpdatedAt,omitempty"`
	MaxRiskScore      float64 `json:"maxRiskScore"`
}

// RiskInsights is the computed risk for one account.
type RiskInsights struct {
	Account     string   `json:"account"`
	RiskScore   float64  `json:"risk_score"`
	Utilization float64  `json:"utilization"`
	Violations  []string `json:"violations,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// ExecutionResult is what the agent did (or would do, in preview) for an
// account during an execution cycle.
type ExecutionResult struct {
	Account    string   `json:"account"`
	Action     string   `json:"action"`
	Preview    bool     `json:"preview"`
	Executed   bool     `json:"executed"`
	AmountUSD  float64  `json:"amount_usd"`
	TxHash     string   `json:"tx_hash,omitempty"`
	RiskScore  float64  `json:"risk_score"`
	Violations []string `json:"violations,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// AlertKind distinguishes the source of an alert.
type AlertKind string

const (
	AlertKindRisk      AlertKind = "risk"
	AlertKindExecution AlertKind = "execution"
)

// AlertPayload is the JSON body delivered to alert sinks.
type AlertPayload struct {
	ID          string    `json:"id"`
	Kind        AlertKind `json:"kind"`
	Subject     string    `json:"subject"`
	Account     string    `json:"account"`
	RiskScore   float64   `json:"risk_score"`
	Utilization float64   `json:"utilization"`
	Violations  []string  `json:"violations,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
	Reasons     []string  `json:"reasons"`
	TriggeredAt time.Time `json:"triggered_at"`
}
