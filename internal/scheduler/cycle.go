package scheduler

import (
	"context"
	"errors"
	"time"

	"treasury/internal/types"
)

// HistoryLimit is the number of run records a Runner retains.
const HistoryLimit = 20

var (
	// ErrAlreadyRunning is returned by a manual RunOnce while a cycle is in
	// flight.
	ErrAlreadyRunning = errors.New("scheduler: cycle already running")
	// ErrUnknownCycle is returned by Registry lookups for an unregistered name.
	ErrUnknownCycle = errors.New("scheduler: unknown cycle")
	// ErrLockHeld means another process holds the cycle's distributed lock.
	ErrLockHeld = errors.New("scheduler: cycle lock held by another worker")
)

// AccountStep is one collaborator call made for every managed account.
type AccountStep struct {
	Name string
	Run  func(ctx context.Context, account types.ManagedAccount) error
}

// CycleStep is a collaborator call made once per cycle after all accounts.
type CycleStep struct {
	Name string
	Run  func(ctx context.Context) error
}

// Cycle defines the work a Runner performs. Steps run in the order returned.
type Cycle interface {
	ListAccounts(ctx context.Context) ([]types.ManagedAccount, error)
	AccountSteps() []AccountStep
	CycleSteps() []CycleStep
}

// MetricsRecorder receives per-run measurements. Implementations must not
// block for long; failures are the recorder's concern.
type MetricsRecorder interface {
	RecordCycle(ctx context.Context, record *types.RunRecord)
	RecordSkipped(ctx context.Context, cycle string)
}

// Archive persists finished run records beyond the in-memory history.
type Archive interface {
	Save(ctx context.Context, record *types.RunRecord) error
}

// Lock is a distributed lock that keeps separate processes from running the
// same cycle at once.
type Lock interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, lockID string, workerID string) error
}
