package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"treasury/internal/types"
)

// DelegationRepository reads and writes the caveats jsonb column of the
// delegations table.
type DelegationRepository struct {
	db DBTX
}

// NewDelegationRepository creates a new DelegationRepository.
func NewDelegationRepository(db DBTX) *DelegationRepository {
	return &DelegationRepository{db: db}
}

// GetCaveats returns the caveats for a delegation. A NULL column yields zero
// caveats, which the spend window treats as needing a reset.
func (r *DelegationRepository) GetCaveats(ctx context.Context, delegationID string) (types.DelegationCaveats, error) {
	var caveats types.DelegationCaveats
	err := r.db.QueryRow(ctx,
		`SELECT caveats FROM delegations WHERE id = $1`,
		delegationID,
	).Scan(&caveats)
	if errors.Is(err, pgx.ErrNoRows) {
		return caveats, types.NewAppError(types.ErrCodeNotFoundDelegation, "delegation not found", err)
	}
	if err != nil {
		return caveats, types.NewAppError(types.ErrCodeInternalDB, "failed to load delegation caveats", err)
	}
	return caveats, nil
}

// UpdateCaveats replaces the spend-window keys of the caveats document and
// leaves any other keys in place.
func (r *DelegationRepository) UpdateCaveats(ctx context.Context, delegationID string, caveats types.DelegationCaveats) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE delegations
		 SET caveats = COALESCE(caveats, '{}'::jsonb) || $2::jsonb,
		     updated_at = NOW()
		 WHERE id = $1`,
		delegationID,
		caveats,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update delegation caveats", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundDelegation, "delegation not found", nil)
	}
	return nil
}
