package db

import (
	"context"

	"treasury/internal/types"
)

// AccountRepository lists the accounts the scheduler manages: every account
// with an active delegation.
type AccountRepository struct {
	db DBTX
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

// ListManagedAccounts returns one entry per active delegation, oldest first.
// The order is the processing order of a cycle.
func (r *AccountRepository) ListManagedAccounts(ctx context.Context) ([]types.ManagedAccount, error) {
	rows, err := r.db.Query(ctx,
		`SELECT d.account_address, d.id, d.network, d.daily_limit
		 FROM delegations d
		 WHERE d.status = 'active' AND d.revoked_at IS NULL
		 ORDER BY d.created_at ASC, d.id ASC`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query managed accounts", err)
	}
	defer rows.Close()

	accounts := make([]types.ManagedAccount, 0)
	for rows.Next() {
		var a types.ManagedAccount
		if err := rows.Scan(&a.Address, &a.DelegationID, &a.Network, &a.DailyLimit); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan managed account", err)
		}
		a.Address = types.NormalizeAddress(a.Address)
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating managed accounts", err)
	}
	return accounts, nil
}
