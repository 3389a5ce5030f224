package spendwindow

import (
	"context"
	"fmt"
	"log/slog"

	"treasury/internal/types"
)

// CaveatStore reads and writes the caveats attached to a delegation.
type CaveatStore interface {
	GetCaveats(ctx context.Context, delegationID string) (types.DelegationCaveats, error)
	UpdateCaveats(ctx context.Context, delegationID string, caveats types.DelegationCaveats) error
}

// Service normalizes stored caveats on touch.
type Service struct {
	store  CaveatStore
	clock  types.Clock
	logger *slog.Logger
}

// NewService creates a Service. A nil clock uses the real clock and a nil
// logger uses slog.Default().
func NewService(store CaveatStore, clock types.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, clock: clock, logger: logger}
}

// Touch loads the delegation's caveats, normalizes them against dailyLimit
// and persists the result only when it changed.
func (s *Service) Touch(ctx context.Context, delegationID string, dailyLimit float64) (Result, error) {
	current, err := s.store.GetCaveats(ctx, delegationID)
	if err != nil {
		return Result{}, fmt.Errorf("loading caveats for %s: %w", delegationID, err)
	}

	res := Normalize(current, dailyLimit, s.clock.Now())
	if !res.Changed {
		return res, nil
	}

	if err := s.store.UpdateCaveats(ctx, delegationID, res.Caveats); err != nil {
		return Result{}, fmt.Errorf("saving caveats for %s: %w", delegationID, err)
	}

	s.logger.DebugContext(ctx, "spend window normalized",
		"delegation_id", delegationID,
		"spent_24h", res.Caveats.Spent24h,
		"previous_spent_24h", current.Spent24h,
	)
	return res, nil
}
