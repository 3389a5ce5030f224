package db

import (
	"context"
	"encoding/json"
	"time"

	"treasury/internal/types"
)

// ============================================================
// JobLockRepository
// ============================================================

// JobLockRepository provides distributed locking via the job_locks table so
// the server's runners and the Lambda cycle runner never overlap on the
// same cycle.
type JobLockRepository struct {
	db    DBTX
	clock types.Clock
}

// NewJobLockRepository creates a new JobLockRepository.
func NewJobLockRepository(db DBTX) *JobLockRepository {
	return &JobLockRepository{db: db, clock: types.RealClock{}}
}

// Acquire inserts or reclaims an expired lock row. It returns false when
// another worker holds an unexpired lock.
//
//	INSERT INTO job_locks (id, worker_id, locked_at, expires_at)
//	VALUES ($1, $2, $3, $4)
//	ON CONFLICT (id) DO UPDATE ... WHERE job_locks.expires_at < $3
//
// Timestamps are computed in Go to avoid interval parsing in SQL.
func (r *JobLockRepository) Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error) {
	now := r.clock.Now()
	tag, err := r.db.Exec(ctx,
		`INSERT INTO job_locks (id, worker_id, locked_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		   SET worker_id = EXCLUDED.worker_id,
		       locked_at = EXCLUDED.locked_at,
		       expires_at = EXCLUDED.expires_at
		   WHERE job_locks.expires_at < $3`,
		lockID,
		workerID,
		now,
		now.Add(ttl),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire job lock", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Release deletes the lock if workerID still owns it.
func (r *JobLockRepository) Release(ctx context.Context, lockID string, workerID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM job_locks WHERE id = $1 AND worker_id = $2`,
		lockID,
		workerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to release job lock", err)
	}
	return nil
}

// ============================================================
// RunHistoryRepository
// ============================================================

// RunHistoryRepository archives finished run records to scheduler_runs.
// The in-memory history only keeps the newest twenty per cycle.
type RunHistoryRepository struct {
	db DBTX
}

// NewRunHistoryRepository creates a new RunHistoryRepository.
func NewRunHistoryRepository(db DBTX) *RunHistoryRepository {
	return &RunHistoryRepository{db: db}
}

// Save inserts record. Saving the same run ID twice is a no-op.
func (r *RunHistoryRepository) Save(ctx context.Context, record *types.RunRecord) error {
	results, err := json.Marshal(record.Results)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode run results", err)
	}
	cycleSteps, err := json.Marshal(record.CycleSteps)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode cycle steps", err)
	}

	var errMsg *string
	if record.Error != "" {
		errMsg = &record.Error
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO scheduler_runs
		 (id, cycle, source, started_at, finished_at, duration_ms,
		  processed_accounts, success_count, error_count, results, cycle_steps, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO NOTHING`,
		record.ID,
		record.Cycle,
		string(record.Source),
		record.StartedAt,
		record.FinishedAt,
		record.DurationMs,
		record.ProcessedAccounts,
		record.SuccessCount,
		record.ErrorCount,
		results,
		cycleSteps,
		errMsg,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to archive run record", err)
	}
	return nil
}

// ListRecent returns up to limit archived runs for cycle, newest first.
func (r *RunHistoryRepository) ListRecent(ctx context.Context, cycle string, limit int) ([]*types.RunRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, cycle, source, started_at, finished_at, duration_ms,
		        processed_accounts, success_count, error_count, results, cycle_steps, COALESCE(error, '')
		 FROM scheduler_runs
		 WHERE cycle = $1
		 ORDER BY started_at DESC
		 LIMIT $2`,
		cycle,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query run history", err)
	}
	defer rows.Close()

	out := make([]*types.RunRecord, 0, limit)
	for rows.Next() {
		var rec types.RunRecord
		var source string
		var results, cycleSteps []byte
		if err := rows.Scan(
			&rec.ID, &rec.Cycle, &source, &rec.StartedAt, &rec.FinishedAt, &rec.DurationMs,
			&rec.ProcessedAccounts, &rec.SuccessCount, &rec.ErrorCount, &results, &cycleSteps, &rec.Error,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan run record", err)
		}
		rec.Source = types.RunSource(source)
		if len(results) > 0 {
			if err := json.Unmarshal(results, &rec.Results); err != nil {
				return nil, types.NewAppError(types.ErrCodeInternalDB, "corrupt run results", err)
			}
		}
		if len(cycleSteps) > 0 {
			if err := json.Unmarshal(cycleSteps, &rec.CycleSteps); err != nil {
				return nil, types.NewAppError(types.ErrCodeInternalDB, "corrupt cycle steps", err)
			}
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating run history", err)
	}
	return out, nil
}
