// Package scheduler runs recurring account cycles with single-flight
// execution, bounded run history and derived metrics.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"treasury/internal/types"
)

// Config holds the configuration for creating a Runner.
type Config struct {
	Name     string
	Interval time.Duration
	Cycle    Cycle
	Logger   *slog.Logger
	Clock    types.Clock
	Metrics  MetricsRecorder
	Archive  Archive

	// Lock and WorkerID are optional. When Lock is set every cycle first
	// acquires "cycle:<name>" for LockTTL.
	Lock     Lock
	WorkerID string
	LockTTL  time.Duration
}

// Runner owns the timer and the single-flight guard for one cycle type.
type Runner struct {
	name     string
	interval time.Duration
	cycle    Cycle
	logger   *slog.Logger
	clock    types.Clock
	metrics  MetricsRecorder
	archive  Archive
	lock     Lock
	workerID string
	lockTTL  time.Duration

	mu             sync.Mutex
	enabled        bool
	running        bool
	stopTicker     context.CancelFunc
	lastRunAt      *time.Time
	lastDurationMs int64
	lastError      string
	history        []*types.RunRecord
	skipped        int64

	inflight sync.WaitGroup
}

// NewRunner creates a Runner. The timer is not armed until Start.
func NewRunner(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 15 * time.Minute
	}
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = uuid.NewString()
	}
	return &Runner{
		name:     cfg.Name,
		interval: cfg.Interval,
		cycle:    cfg.Cycle,
		logger:   logger.With("cycle", cfg.Name),
		clock:    clock,
		metrics:  cfg.Metrics,
		archive:  cfg.Archive,
		lock:     cfg.Lock,
		workerID: workerID,
		lockTTL:  lockTTL,
	}
}

// Name returns the cycle name.
func (r *Runner) Name() string {
	return r.name
}

// Start arms the repeating timer and triggers one cycle immediately. It
// returns false if the runner was already started.
//
// Cycles run on a context detached from ctx's cancellation, so a Start issued
// from a request handler outlives the request. Use Stop and Wait to shut down.
func (r *Runner) Start(ctx context.Context) bool {
	r.mu.Lock()
	if r.enabled {
		r.mu.Unlock()
		r.logger.InfoContext(ctx, "scheduler already started")
		return false
	}
	r.enabled = true
	base := context.WithoutCancel(ctx)
	tickCtx, cancel := context.WithCancel(base)
	r.stopTicker = cancel
	// The tick goroutine holds the wait group open so triggers never race
	// with Wait.
	r.inflight.Add(1)
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "scheduler started", "interval", r.interval.String())

	go r.tick(tickCtx, base)
	r.trigger(base)
	return true
}

// Stop disarms the timer. A cycle already in flight runs to completion. It
// returns false if the runner was not started.
func (r *Runner) Stop() bool {
	r.mu.Lock()
	if !r.enabled {
		r.mu.Unlock()
		r.logger.Info("scheduler already stopped")
		return false
	}
	r.enabled = false
	cancel := r.stopTicker
	r.stopTicker = nil
	r.mu.Unlock()

	cancel()
	r.logger.Info("scheduler stopped")
	return true
}

// Wait blocks until the timer goroutine and every cycle it started have
// finished. Call it after Stop.
func (r *Runner) Wait() {
	r.inflight.Wait()
}

func (r *Runner) tick(tickCtx, cycleCtx context.Context) {
	defer r.inflight.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-tickCtx.Done():
			return
		case <-ticker.C:
			r.trigger(cycleCtx)
		}
	}
}

// trigger starts an automatic cycle without waiting for it.
func (r *Runner) trigger(ctx context.Context) {
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		if _, err := r.RunOnce(ctx, types.RunSourceAutomatic); err != nil && !errors.Is(err, ErrLockHeld) {
			r.logger.ErrorContext(ctx, "automatic cycle failed", "error", err)
		}
	}()
}

// RunOnce executes one cycle and returns its record.
//
// If a cycle is already in flight a manual call fails immediately with
// ErrAlreadyRunning, while an automatic call logs a warning, counts a skipped
// run and returns (nil, nil).
func (r *Runner) RunOnce(ctx context.Context, source types.RunSource) (*types.RunRecord, error) {
	if !r.acquire() {
		if source == types.RunSourceManual {
			return nil, ErrAlreadyRunning
		}
		r.mu.Lock()
		r.skipped++
		r.mu.Unlock()
		r.logger.WarnContext(ctx, "skipping automatic cycle, previous cycle still running")
		if r.metrics != nil {
			r.metrics.RecordSkipped(ctx, r.name)
		}
		return nil, nil
	}
	defer r.release()

	if r.lock != nil {
		lockID := "cycle:" + r.name
		ok, err := r.lock.Acquire(ctx, lockID, r.workerID, r.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquiring cycle lock: %w", err)
		}
		if !ok {
			r.logger.InfoContext(ctx, "cycle lock held elsewhere, skipping", "lock_id", lockID)
			return nil, ErrLockHeld
		}
		defer func() {
			if err := r.lock.Release(context.WithoutCancel(ctx), lockID, r.workerID); err != nil {
				r.logger.WarnContext(ctx, "failed to release cycle lock", "lock_id", lockID, "error", err)
			}
		}()
	}

	record := r.runCycle(ctx, source)
	r.finish(ctx, record)
	return record.Clone(), nil
}

func (r *Runner) acquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *Runner) release() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

// runCycle performs the cycle body. A panic in a collaborator is recovered
// into the record's error so the guard is always released.
func (r *Runner) runCycle(ctx context.Context, source types.RunSource) (record *types.RunRecord) {
	record = &types.RunRecord{
		ID:        uuid.NewString(),
		Cycle:     r.name,
		Source:    source,
		StartedAt: r.clock.Now(),
		Results:   []types.AccountOutcome{},
	}
	ctx = types.WithRunID(ctx, record.ID)

	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "cycle panicked", "run_id", record.ID, "panic", p)
			record.Error = fmt.Sprintf("panic: %v", p)
		}
		record.FinishedAt = r.clock.Now()
		record.DurationMs = max(record.FinishedAt.Sub(record.StartedAt).Milliseconds(), 0)
	}()

	r.logger.InfoContext(ctx, "cycle started", "run_id", record.ID, "source", string(source))

	accounts, err := r.cycle.ListAccounts(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to list managed accounts", "run_id", record.ID, "error", err)
		record.Error = fmt.Sprintf("listing accounts: %v", err)
		return record
	}

	steps := r.cycle.AccountSteps()
	for _, account := range accounts {
		account.Address = types.NormalizeAddress(account.Address)
		outcome := r.runAccount(ctx, account, steps)
		record.Results = append(record.Results, outcome)
		record.ProcessedAccounts++
		if outcome.Succeeded() {
			record.SuccessCount++
		} else {
			record.ErrorCount++
		}
	}

	for _, step := range r.cycle.CycleSteps() {
		outcome := types.StepOutcome{Name: step.Name, OK: true}
		if err := runStep(func() error { return step.Run(ctx) }); err != nil {
			outcome.OK = false
			outcome.Error = err.Error()
			r.logger.ErrorContext(ctx, "cycle step failed", "run_id", record.ID, "step", step.Name, "error", err)
		}
		record.CycleSteps = append(record.CycleSteps, outcome)
	}

	return record
}

func (r *Runner) runAccount(ctx context.Context, account types.ManagedAccount, steps []AccountStep) types.AccountOutcome {
	outcome := types.AccountOutcome{Account: account.Address, Steps: make([]types.StepOutcome, 0, len(steps))}
	var failures []string

	for _, step := range steps {
		s := types.StepOutcome{Name: step.Name, OK: true}
		if err := runStep(func() error { return step.Run(ctx, account) }); err != nil {
			s.OK = false
			s.Error = err.Error()
			failures = append(failures, step.Name+": "+err.Error())
			r.logger.WarnContext(ctx, "account step failed",
				"account", account.Address,
				"step", step.Name,
				"error", err,
			)
		}
		outcome.Steps = append(outcome.Steps, s)
	}

	if len(failures) > 0 {
		outcome.Error = strings.Join(failures, "; ")
	}
	return outcome
}

// runStep isolates a single step so a panic fails only that step.
func runStep(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}

// finish records the completed run in history and status and hands it to the
// archive and metrics recorder.
func (r *Runner) finish(ctx context.Context, record *types.RunRecord) {
	frozen := record.Clone()

	r.mu.Lock()
	finishedAt := frozen.FinishedAt
	r.lastRunAt = &finishedAt
	r.lastDurationMs = frozen.DurationMs
	r.lastError = summarizeError(frozen)
	r.history = append([]*types.RunRecord{frozen}, r.history...)
	if len(r.history) > HistoryLimit {
		r.history = r.history[:HistoryLimit]
	}
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "cycle complete",
		"run_id", frozen.ID,
		"source", string(frozen.Source),
		"duration_ms", frozen.DurationMs,
		"processed_accounts", frozen.ProcessedAccounts,
		"success_count", frozen.SuccessCount,
		"error_count", frozen.ErrorCount,
	)

	if r.metrics != nil {
		r.metrics.RecordCycle(ctx, frozen)
	}
	if r.archive != nil {
		if err := r.archive.Save(context.WithoutCancel(ctx), frozen); err != nil {
			r.logger.WarnContext(ctx, "failed to archive run record", "run_id", frozen.ID, "error", err)
		}
	}
}

func summarizeError(record *types.RunRecord) string {
	if record.Error != "" {
		return record.Error
	}
	if record.ErrorCount > 0 {
		return fmt.Sprintf("%d of %d accounts had step failures", record.ErrorCount, record.ProcessedAccounts)
	}
	return ""
}

// Status returns the runner's current state.
func (r *Runner) Status() types.SchedulerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := types.SchedulerStatus{
		Name:           r.name,
		Enabled:        r.enabled,
		Running:        r.running,
		IntervalMs:     r.interval.Milliseconds(),
		LastDurationMs: r.lastDurationMs,
		LastError:      r.lastError,
		SkippedRuns:    r.skipped,
	}
	if r.lastRunAt != nil {
		t := *r.lastRunAt
		status.LastRunAt = &t
	}
	if len(r.history) > 0 {
		status.LastSummary = r.history[0].Clone()
	}
	return status
}

// Restore seeds an empty history with previously archived records, newest
// first. It is a no-op once the runner has history of its own.
func (r *Runner) Restore(records []*types.RunRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.history) > 0 || len(records) == 0 {
		return
	}
	if len(records) > HistoryLimit {
		records = records[:HistoryLimit]
	}
	r.history = make([]*types.RunRecord, 0, len(records))
	for _, rec := range records {
		r.history = append(r.history, rec.Clone())
	}
	latest := r.history[0]
	finishedAt := latest.FinishedAt
	r.lastRunAt = &finishedAt
	r.lastDurationMs = latest.DurationMs
	r.lastError = summarizeError(latest)
}

// History returns up to limit records, newest first. A limit outside
// [1, HistoryLimit] returns everything retained.
func (r *Runner) History(limit int) []*types.RunRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 || limit > len(r.history) {
		limit = len(r.history)
	}
	out := make([]*types.RunRecord, 0, limit)
	for _, rec := range r.history[:limit] {
		out = append(out, rec.Clone())
	}
	return out
}
