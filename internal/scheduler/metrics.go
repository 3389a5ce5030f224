package scheduler

import (
	"time"

	"treasury/internal/types"
)

// Metrics derives aggregate run metrics from the retained history. With no
// history every field is zero.
func (r *Runner) Metrics() types.RunMetrics {
	r.mu.Lock()
	history := r.history
	skipped := r.skipped
	r.mu.Unlock()

	m := aggregate(history)
	m.SkippedAutomaticRuns = skipped
	return m
}

// aggregate expects records newest first. Records are never mutated after
// they enter history, so reading them outside the lock is safe.
func aggregate(history []*types.RunRecord) types.RunMetrics {
	var m types.RunMetrics
	if len(history) == 0 {
		return m
	}

	var totalDuration int64
	var totalAccounts int
	for _, rec := range history {
		m.TotalRuns++
		totalDuration += rec.DurationMs
		totalAccounts += rec.ProcessedAccounts

		finished := rec.FinishedAt
		if rec.Succeeded() {
			m.SuccessfulRuns++
			if m.LastSuccessAt == nil {
				m.LastSuccessAt = timePtr(finished)
			}
		} else {
			m.FailedRuns++
			if m.LastFailureAt == nil {
				m.LastFailureAt = timePtr(finished)
			}
		}
	}

	m.LastRunAt = timePtr(history[0].FinishedAt)
	m.SuccessRate = float64(m.SuccessfulRuns) / float64(m.TotalRuns)
	m.AverageDurationMs = float64(totalDuration) / float64(m.TotalRuns)
	m.AverageAccountsPerRun = float64(totalAccounts) / float64(m.TotalRuns)
	return m
}

func timePtr(t time.Time) *time.Time {
	return &t
}
