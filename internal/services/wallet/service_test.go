package wallet

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"tiketi/internal/models"
	"tiketi/internal/repositories"
	"tiketi/internal/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (Service, *memory.WalletStore) {
	t.Helper()
	store := memory.NewWalletStore()
	svc := NewService(store, nil, Config{}, &NoopMetricsCollector{})
	return svc, store
}

func mustCreateWallet(t *testing.T, svc Service, ownerID uint, role models.Role) *models.Wallet {
	t.Helper()
	w, err := svc.CreateWallet(context.Background(), ownerID, role, "")
	require.NoError(t, err)
	return w
}

func TestCreateWallet(t *testing.T) {
	svc, _ := newTestService(t)

	t.Run("starts with zero balance and default currency", func(t *testing.T) {
		w := mustCreateWallet(t, svc, 1, models.RolePassenger)
		assert.Equal(t, int64(0), w.Balance)
		assert.Equal(t, "RWF", w.Currency)
		assert.Equal(t, models.WalletStatusActive, w.Status)
		assert.False(t, w.CanOriginateDeposits)
	})

	t.Run("agents may originate external deposits", func(t *testing.T) {
		w := mustCreateWallet(t, svc, 2, models.RoleAgent)
		assert.True(t, w.CanOriginateDeposits)
	})

	t.Run("rejects unknown owner type", func(t *testing.T) {
		_, err := svc.CreateWallet(context.Background(), 3, models.Role("driver"), "")
		assert.Error(t, err)
	})

	t.Run("rejects duplicate wallet for same owner", func(t *testing.T) {
		_, err := svc.CreateWallet(context.Background(), 1, models.RolePassenger, "")
		assert.ErrorIs(t, err, repositories.ErrDuplicateWallet)
	})
}

func TestReserveAndApply(t *testing.T) {
	ctx := context.Background()

	t.Run("credit then debit updates balance and ledger", func(t *testing.T) {
		svc, _ := newTestService(t)
		w := mustCreateWallet(t, svc, 1, models.RolePassenger)

		credit, err := svc.ReserveAndApply(ctx, w.ID, 5000, Operation{Reason: models.ReasonTopUp, Reference: "ref-1"})
		require.NoError(t, err)
		assert.Equal(t, models.DirectionCredit, credit.Direction)
		assert.Equal(t, int64(5000), credit.Amount)
		assert.Equal(t, int64(0), credit.BalanceBefore)
		assert.Equal(t, int64(5000), credit.BalanceAfter)
		assert.Equal(t, models.EntryStatusCompleted, credit.Status)

		debit, err := svc.ReserveAndApply(ctx, w.ID, -2000, Operation{Reason: models.ReasonTransfer, Reference: "ref-2"})
		require.NoError(t, err)
		assert.Equal(t, models.DirectionDebit, debit.Direction)
		assert.Equal(t, int64(2000), debit.Amount)
		assert.Equal(t, int64(3000), debit.BalanceAfter)

		balance, err := svc.GetBalance(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3000), balance)
	})

	t.Run("overdraft is rejected and nothing is written", func(t *testing.T) {
		svc, _ := newTestService(t)
		w := mustCreateWallet(t, svc, 1, models.RolePassenger)

		_, err := svc.ReserveAndApply(ctx, w.ID, 100, Operation{Reason: models.ReasonTopUp, Reference: "r1"})
		require.NoError(t, err)

		_, err = svc.ReserveAndApply(ctx, w.ID, -101, Operation{Reason: models.ReasonTransfer, Reference: "r2"})
		assert.ErrorIs(t, err, ErrInsufficientFunds)

		balance, err := svc.GetBalance(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(100), balance)

		entries, err := svc.ListLedger(ctx, w.ID, 10, 0)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("suspended wallet cannot move money", func(t *testing.T) {
		svc, store := newTestService(t)
		w := mustCreateWallet(t, svc, 1, models.RolePassenger)
		require.NoError(t, store.UpdateStatus(w.ID, models.WalletStatusSuspended, "fraud review"))

		_, err := svc.ReserveAndApply(ctx, w.ID, 100, Operation{Reason: models.ReasonTopUp, Reference: "r1"})
		assert.ErrorIs(t, err, ErrWalletSuspended)
	})

	t.Run("zero delta is invalid", func(t *testing.T) {
		svc, _ := newTestService(t)
		w := mustCreateWallet(t, svc, 1, models.RolePassenger)
		_, err := svc.ReserveAndApply(ctx, w.ID, 0, Operation{Reason: models.ReasonTopUp, Reference: "r1"})
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("unknown wallet", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.ReserveAndApply(ctx, 42, 100, Operation{Reason: models.ReasonTopUp, Reference: "r1"})
		assert.ErrorIs(t, err, ErrWalletNotFound)
	})
}

func TestHashChain(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	w := mustCreateWallet(t, svc, 1, models.RolePassenger)

	first, err := svc.ReserveAndApply(ctx, w.ID, 1000, Operation{Reason: models.ReasonTopUp, Reference: "a"})
	require.NoError(t, err)
	second, err := svc.ReserveAndApply(ctx, w.ID, -400, Operation{Reason: models.ReasonTransfer, Reference: "b"})
	require.NoError(t, err)

	assert.Empty(t, first.PrevHash)
	assert.Equal(t, first.ComputeHash(""), first.EntryHash)
	assert.Equal(t, first.EntryHash, second.PrevHash)
	assert.Equal(t, second.ComputeHash(first.EntryHash), second.EntryHash)
}

func TestVerifyChain(t *testing.T) {
	ctx := context.Background()

	t.Run("intact chain verifies", func(t *testing.T) {
		svc, _ := newTestService(t)
		w := mustCreateWallet(t, svc, 1, models.RolePassenger)
		for _, delta := range []int64{1000, -300, 250, -50} {
			_, err := svc.ReserveAndApply(ctx, w.ID, delta, Operation{Reason: models.ReasonTransfer, Reference: "r"})
			require.NoError(t, err)
		}
		assert.NoError(t, svc.VerifyChain(ctx, w.ID))
	})

	t.Run("forged entry breaks the chain", func(t *testing.T) {
		svc, store := newTestService(t)
		w := mustCreateWallet(t, svc, 1, models.RolePassenger)
		_, err := svc.ReserveAndApply(ctx, w.ID, 1000, Operation{Reason: models.ReasonTopUp, Reference: "r"})
		require.NoError(t, err)

		// An entry appended without going through the ledger service has no
		// valid hash linkage.
		forged := &models.LedgerEntry{
			WalletID:             w.ID,
			Direction:            models.DirectionCredit,
			Amount:               500,
			BalanceBefore:        1000,
			BalanceAfter:         1500,
			Reason:               models.ReasonTopUp,
			TransactionReference: "forged",
			Status:               models.EntryStatusCompleted,
			PrevHash:             "bogus",
			EntryHash:            "bogus",
		}
		require.NoError(t, store.CreateLedgerEntry(forged))

		assert.ErrorIs(t, svc.VerifyChain(ctx, w.ID), ErrChainBroken)
	})

	t.Run("stored balance drift is detected", func(t *testing.T) {
		svc, store := newTestService(t)
		w := mustCreateWallet(t, svc, 1, models.RolePassenger)
		_, err := svc.ReserveAndApply(ctx, w.ID, 1000, Operation{Reason: models.ReasonTopUp, Reference: "r"})
		require.NoError(t, err)

		tampered, err := store.GetByID(w.ID)
		require.NoError(t, err)
		tampered.Balance = 9999
		require.NoError(t, store.Update(tampered))

		assert.ErrorIs(t, svc.VerifyChain(ctx, w.ID), ErrChainBroken)
	})
}

func TestConcurrentDebitsDrainToZero(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	w := mustCreateWallet(t, svc, 1, models.RolePassenger)

	_, err := svc.ReserveAndApply(ctx, w.ID, 1000, Operation{Reason: models.ReasonTopUp, Reference: "seed"})
	require.NoError(t, err)

	const workers = 50
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ReserveAndApply(ctx, w.ID, -100, Operation{Reason: models.ReasonTransfer, Reference: "drain"})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrInsufficientFunds)
		}
	}
	assert.Equal(t, 10, succeeded)

	balance, err := svc.GetBalance(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
	assert.NoError(t, svc.VerifyChain(ctx, w.ID))
}

func TestListLedgerPaging(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	w := mustCreateWallet(t, svc, 1, models.RolePassenger)

	for i := 0; i < 25; i++ {
		_, err := svc.ReserveAndApply(ctx, w.ID, 100, Operation{
			Reason:    models.ReasonTopUp,
			Reference: fmt.Sprintf("page-%d", i),
		})
		require.NoError(t, err)
	}

	t.Run("oversized limit is clamped, not reset", func(t *testing.T) {
		entries, err := svc.ListLedger(ctx, w.ID, 150, 0)
		require.NoError(t, err)
		assert.Len(t, entries, 25)
	})

	t.Run("zero limit falls back to the default page", func(t *testing.T) {
		entries, err := svc.ListLedger(ctx, w.ID, 0, 0)
		require.NoError(t, err)
		assert.Len(t, entries, 20)
	})

	t.Run("offset pages through the rest", func(t *testing.T) {
		entries, err := svc.ListLedger(ctx, w.ID, 20, 20)
		require.NoError(t, err)
		assert.Len(t, entries, 5)
	})
}
