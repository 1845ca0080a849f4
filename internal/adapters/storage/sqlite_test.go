package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zonebet/engine/internal/adapters/storage"
	"github.com/zonebet/engine/internal/domain"
)

func sampleAccount() domain.Account {
	now := time.Now().UTC().Truncate(time.Second)
	return domain.Account{
		UserID:           "alice",
		Balance:          42.5,
		TotalDeposits:    100,
		TotalWithdrawals: 40,
		TotalBetVolume:   17.5,
		TotalWinnings:    2.1,
		Deposits: []domain.Deposit{
			{TxRef: "0xdep1", Amount: 100, Verified: true, VerifiedAt: now},
		},
		Withdrawals: []domain.Withdrawal{
			{ID: "w1", TxRef: "0xout1", Destination: "0xdest", Amount: 40,
				Status: domain.WithdrawalCompleted, RequestedAt: now, ResolvedAt: now},
		},
		Bets: []domain.BetRecord{
			{ID: "b1", Amount: 10, PlacedAt: now},
			{ID: "b2", Amount: 7.5, PlacedAt: now, Refunded: true},
		},
	}
}

func TestSQLiteStore_SaveAndLoadRoundTrip(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveAccount(ctx, sampleAccount()))

	accounts, err := store.LoadAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	acc := accounts["alice"]
	assert.InDelta(t, 42.5, acc.Balance, 1e-9)
	assert.InDelta(t, 2.1, acc.TotalWinnings, 1e-9)
	require.Len(t, acc.Deposits, 1)
	assert.Equal(t, "0xdep1", acc.Deposits[0].TxRef)
	assert.True(t, acc.Deposits[0].Verified)
	require.Len(t, acc.Withdrawals, 1)
	assert.Equal(t, domain.WithdrawalCompleted, acc.Withdrawals[0].Status)
	require.Len(t, acc.Bets, 2)
	assert.True(t, acc.Bets[1].Refunded)
}

func TestSQLiteStore_SaveReplacesSnapshot(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	acc := sampleAccount()
	require.NoError(t, store.SaveAccount(ctx, acc))

	// Mutate and save again: the old history must be fully replaced.
	acc.Balance = 10
	acc.Bets = acc.Bets[:1]
	require.NoError(t, store.SaveAccount(ctx, acc))

	accounts, err := store.LoadAccounts(ctx)
	require.NoError(t, err)
	got := accounts["alice"]
	assert.InDelta(t, 10.0, got.Balance, 1e-9)
	assert.Len(t, got.Bets, 1)
}

func TestSQLiteStore_LoadEmpty(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	accounts, err := store.LoadAccounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestSQLiteStore_MultipleUsers(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	alice := sampleAccount()
	bob := domain.Account{UserID: "bob", Balance: 7}
	require.NoError(t, store.SaveAccount(ctx, alice))
	require.NoError(t, store.SaveAccount(ctx, bob))

	accounts, err := store.LoadAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.InDelta(t, 7.0, accounts["bob"].Balance, 1e-9)
	assert.Empty(t, accounts["bob"].Deposits)
}
