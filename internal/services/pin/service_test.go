package pin

import (
	"context"
	"testing"
	"time"

	"tiketi/internal/models"
	"tiketi/internal/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*service, *memory.WalletStore, uint) {
	t.Helper()
	store := memory.NewWalletStore()
	w := &models.Wallet{OwnerID: 1, OwnerType: models.RolePassenger}
	require.NoError(t, store.Create(w))
	return &service{repo: store, now: time.Now}, store, w.ID
}

func TestSetPin(t *testing.T) {
	ctx := context.Background()

	t.Run("set and verify", func(t *testing.T) {
		svc, _, id := newTestService(t)
		require.NoError(t, svc.SetPin(ctx, id, "1234"))
		assert.NoError(t, svc.Verify(ctx, id, "1234"))
	})

	t.Run("rejects bad formats", func(t *testing.T) {
		svc, _, id := newTestService(t)
		for _, pin := range []string{"", "12", "123", "1234567", "12a4", "abcd"} {
			assert.ErrorIs(t, svc.SetPin(ctx, id, pin), ErrInvalidPinFormat, "pin %q", pin)
		}
	})

	t.Run("cannot set twice", func(t *testing.T) {
		svc, _, id := newTestService(t)
		require.NoError(t, svc.SetPin(ctx, id, "1234"))
		assert.ErrorIs(t, svc.SetPin(ctx, id, "5678"), ErrPinAlreadySet)
	})

	t.Run("unknown wallet", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		assert.ErrorIs(t, svc.SetPin(ctx, 99, "1234"), ErrWalletNotFound)
	})
}

func TestChangePin(t *testing.T) {
	ctx := context.Background()

	t.Run("requires the old pin", func(t *testing.T) {
		svc, _, id := newTestService(t)
		require.NoError(t, svc.SetPin(ctx, id, "1234"))

		assert.ErrorIs(t, svc.ChangePin(ctx, id, "0000", "5678"), ErrInvalidPin)
		require.NoError(t, svc.ChangePin(ctx, id, "1234", "5678"))
		assert.NoError(t, svc.Verify(ctx, id, "5678"))
		assert.ErrorIs(t, svc.Verify(ctx, id, "1234"), ErrInvalidPin)
	})

	t.Run("verify before set", func(t *testing.T) {
		svc, _, id := newTestService(t)
		assert.ErrorIs(t, svc.Verify(ctx, id, "1234"), ErrPinNotSet)
	})
}

func TestLockout(t *testing.T) {
	ctx := context.Background()

	t.Run("locks after max failures and persists the counter", func(t *testing.T) {
		svc, store, id := newTestService(t)
		require.NoError(t, svc.SetPin(ctx, id, "1234"))

		for i := 0; i < MaxFailedAttempts-1; i++ {
			assert.ErrorIs(t, svc.Verify(ctx, id, "0000"), ErrInvalidPin)
		}
		// Fifth failure trips the lock.
		assert.ErrorIs(t, svc.Verify(ctx, id, "0000"), ErrPinLocked)

		w, err := store.GetByID(id)
		require.NoError(t, err)
		assert.Equal(t, MaxFailedAttempts, w.FailedPinAttempts)
		require.NotNil(t, w.PinLockedUntil)

		// Even the correct PIN is refused while locked.
		assert.ErrorIs(t, svc.Verify(ctx, id, "1234"), ErrPinLocked)
	})

	t.Run("lock expires and counter resets", func(t *testing.T) {
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		svc, _, id := newTestService(t)
		svc.now = func() time.Time { return now }
		require.NoError(t, svc.SetPin(ctx, id, "1234"))

		for i := 0; i < MaxFailedAttempts-1; i++ {
			require.ErrorIs(t, svc.Verify(ctx, id, "0000"), ErrInvalidPin)
		}
		require.ErrorIs(t, svc.Verify(ctx, id, "0000"), ErrPinLocked)

		now = now.Add(LockoutDuration + time.Second)
		assert.NoError(t, svc.Verify(ctx, id, "1234"))

		// A single failure after the reset is just an invalid pin again.
		assert.ErrorIs(t, svc.Verify(ctx, id, "0000"), ErrInvalidPin)
	})

	t.Run("success clears the failure counter", func(t *testing.T) {
		svc, store, id := newTestService(t)
		require.NoError(t, svc.SetPin(ctx, id, "1234"))

		require.ErrorIs(t, svc.Verify(ctx, id, "0000"), ErrInvalidPin)
		require.ErrorIs(t, svc.Verify(ctx, id, "0000"), ErrInvalidPin)
		require.NoError(t, svc.Verify(ctx, id, "1234"))

		w, err := store.GetByID(id)
		require.NoError(t, err)
		assert.Equal(t, 0, w.FailedPinAttempts)
	})
}
