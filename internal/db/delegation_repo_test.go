package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"treasury/internal/types"
)

func TestDelegationRepository_GetCaveats(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDelegationRepository(db)

	row := &mockRow{
		scanFn: func(dest ...any) error {
			return dest[0].(*types.DelegationCaveats).Scan([]byte(`{"spent24h":12.5,"spent24hUpdatedAt":"2026-01-01T00:00:00Z","maxRiskScore":0.7}`))
		},
	}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"del_1"}).Return(row)

	caveats, err := repo.GetCaveats(context.Background(), "del_1")
	require.NoError(t, err)
	assert.Equal(t, 12.5, caveats.Spent24h)
	assert.Equal(t, "2026-01-01T00:00:00Z", caveats.Spent24hUpdatedAt)
	assert.Equal(t, 0.7, caveats.MaxRiskScore)
	db.AssertExpectations(t)
}

func TestDelegationRepository_GetCaveats_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDelegationRepository(db)

	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetCaveats(context.Background(), "missing")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundDelegation, appErr.Code)
}

func TestDelegationRepository_GetCaveats_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDelegationRepository(db)

	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&mockRow{scanErr: errors.New("timeout")})

	_, err := repo.GetCaveats(context.Background(), "del_1")

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestDelegationRepository_UpdateCaveats(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDelegationRepository(db)

	caveats := types.DelegationCaveats{Spent24h: 3, Spent24hUpdatedAt: "2026-01-02T00:00:00Z"}
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"del_1", caveats}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	require.NoError(t, repo.UpdateCaveats(context.Background(), "del_1", caveats))
	db.AssertExpectations(t)
}

func TestDelegationRepository_UpdateCaveats_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDelegationRepository(db)

	db.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.UpdateCaveats(context.Background(), "gone", types.DelegationCaveats{})

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundDelegation, appErr.Code)
}

func TestDelegationRepository_UpdateCaveats_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDelegationRepository(db)

	db.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("deadlock"))

	err := repo.UpdateCaveats(context.Background(), "del_1", types.DelegationCaveats{})

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
