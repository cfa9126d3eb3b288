package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"premium-collections/internal/domain"
	"premium-collections/internal/errors"
)

func newPendingTransaction(now time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:         uuid.New(),
		PolicyID:   "POL-" + uuid.NewString()[:8],
		Amount:     5000,
		Currency:   domain.CurrencyKES,
		Subscriber: "00254712345678",
		Status:     domain.StatusPending,
		Metadata:   map[string]string{"product": "funeral-cover"},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// testTransactionRepository exercises the behaviour every registry store must share.
func testTransactionRepository(t *testing.T, repo domain.TransactionRepository) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("create and get", func(t *testing.T) {
		tx := newPendingTransaction(now)
		require.NoError(t, repo.CreateTransaction(ctx, tx))

		got, err := repo.GetTransaction(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, tx.ID, got.ID)
		assert.Equal(t, tx.PolicyID, got.PolicyID)
		assert.Equal(t, int64(5000), got.Amount)
		assert.Equal(t, domain.CurrencyKES, got.Currency)
		assert.Equal(t, domain.StatusPending, got.Status)
		assert.Nil(t, got.ChannelReference)
		assert.Equal(t, "funeral-cover", got.Metadata["product"])
	})

	t.Run("duplicate id rejected", func(t *testing.T) {
		tx := newPendingTransaction(now)
		require.NoError(t, repo.CreateTransaction(ctx, tx))
		err := repo.CreateTransaction(ctx, tx)
		assert.True(t, errors.Is(err, errors.ErrDuplicateTransaction))
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := repo.GetTransaction(ctx, uuid.New())
		assert.True(t, errors.Is(err, errors.ErrTransactionNotFound))

		_, err = repo.UpdateChannelAssignment(ctx, uuid.New(), domain.ChannelMpesa, "ref", now)
		assert.True(t, errors.Is(err, errors.ErrTransactionNotFound))

		_, err = repo.UpdateStatus(ctx, uuid.New(), domain.StatusCompleted, now)
		assert.True(t, errors.Is(err, errors.ErrTransactionNotFound))
	})

	t.Run("full lifecycle", func(t *testing.T) {
		tx := newPendingTransaction(now)
		require.NoError(t, repo.CreateTransaction(ctx, tx))

		_, err := repo.UpdateStatus(ctx, tx.ID, domain.StatusCompleted, now)
		assert.True(t, errors.Is(err, errors.ErrInvalidTransition), "pending cannot complete")

		ref := "ws_CO_" + uuid.NewString()
		assigned, err := repo.UpdateChannelAssignment(ctx, tx.ID, domain.ChannelMpesa, ref, now.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, domain.StatusProcessing, assigned.Status)
		assert.Equal(t, domain.ChannelMpesa, assigned.Channel)
		require.NotNil(t, assigned.ChannelReference)
		assert.Equal(t, ref, *assigned.ChannelReference)

		_, err = repo.UpdateChannelAssignment(ctx, tx.ID, domain.ChannelAirtelMoney, "other", now)
		assert.True(t, errors.Is(err, errors.ErrInvalidTransition), "reference is immutable once set")

		byRef, err := repo.GetTransactionByChannelReference(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, tx.ID, byRef.ID)

		done, err := repo.UpdateStatus(ctx, tx.ID, domain.StatusCompleted, now.Add(2*time.Second))
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, done.Status)
		assert.Equal(t, domain.NotificationInFlight, done.Notification)
		assert.Equal(t, int64(5000), done.Amount)
		assert.Equal(t, domain.CurrencyKES, done.Currency)

		for _, next := range []domain.Status{domain.StatusCompleted, domain.StatusFailed} {
			_, err = repo.UpdateStatus(ctx, tx.ID, next, now)
			assert.True(t, errors.Is(err, errors.ErrTransactionTerminal))
		}

		got, err := repo.GetTransaction(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, got.Status)
	})

	t.Run("notification claim", func(t *testing.T) {
		tx := newPendingTransaction(now)
		require.NoError(t, repo.CreateTransaction(ctx, tx))
		_, err := repo.UpdateChannelAssignment(ctx, tx.ID, domain.ChannelMpesa, "claim-"+tx.ID.String(), now)
		require.NoError(t, err)
		_, err = repo.UpdateStatus(ctx, tx.ID, domain.StatusFailed, now)
		require.NoError(t, err)

		claimed, err := repo.ClaimNotification(ctx, tx.ID, domain.StatusFailed, now)
		require.NoError(t, err)
		assert.False(t, claimed, "in-flight notification cannot be claimed")

		require.NoError(t, repo.UpdateNotificationState(ctx, tx.ID, domain.NotificationFailed, now))

		claimed, err = repo.ClaimNotification(ctx, tx.ID, domain.StatusCompleted, now)
		require.NoError(t, err)
		assert.False(t, claimed, "outcome must match the terminal status")

		claimed, err = repo.ClaimNotification(ctx, tx.ID, domain.StatusFailed, now)
		require.NoError(t, err)
		assert.True(t, claimed)

		claimed, err = repo.ClaimNotification(ctx, tx.ID, domain.StatusFailed, now)
		require.NoError(t, err)
		assert.False(t, claimed, "second claim loses")
	})

	t.Run("concurrent terminal transitions", func(t *testing.T) {
		tx := newPendingTransaction(now)
		require.NoError(t, repo.CreateTransaction(ctx, tx))
		_, err := repo.UpdateChannelAssignment(ctx, tx.ID, domain.ChannelAirtelMoney, "race-"+tx.ID.String(), now)
		require.NoError(t, err)

		var wins, terminal int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			status := domain.StatusCompleted
			if i%2 == 1 {
				status = domain.StatusFailed
			}
			wg.Add(1)
			go func(s domain.Status) {
				defer wg.Done()
				_, err := repo.UpdateStatus(ctx, tx.ID, s, now)
				switch {
				case err == nil:
					atomic.AddInt32(&wins, 1)
				case errors.Is(err, errors.ErrTransactionTerminal):
					atomic.AddInt32(&terminal, 1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(status)
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins)
		assert.Equal(t, int32(19), terminal)
	})
}
