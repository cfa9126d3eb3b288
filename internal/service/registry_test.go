package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"premium-collections/internal/clock"
	"premium-collections/internal/domain"
	"premium-collections/internal/errors"
	"premium-collections/internal/repository"
)

func newTestRegistry() *Registry {
	logger := discardLogger()
	return NewRegistry(repository.NewMemoryTransactionRepository(logger), testAmountRules, clock.NewFake(testEpoch), logger)
}

func TestRegistry_CreateValidation(t *testing.T) {
	tests := []struct {
		name    string
		params  CreateTransactionParams
		wantErr *errors.AppError
	}{
		{"valid KES", CreateTransactionParams{"POL-1", 5000, "KES", "00254712345678", nil}, nil},
		{"lower-case currency", CreateTransactionParams{"POL-1", 5000, "kes", "00254712345678", nil}, nil},
		{"KES below exact", CreateTransactionParams{"POL-1", 3000, "KES", "00254712345678", nil}, errors.ErrInvalidAmount},
		{"KES above exact", CreateTransactionParams{"POL-1", 5001, "KES", "00254712345678", nil}, errors.ErrInvalidAmount},
		{"UGX at minimum", CreateTransactionParams{"POL-1", 500, "UGX", "00256701234567", nil}, nil},
		{"UGX below minimum", CreateTransactionParams{"POL-1", 499, "UGX", "00256701234567", nil}, errors.ErrInvalidAmount},
		{"TZS above maximum", CreateTransactionParams{"POL-1", 1_000_001, "TZS", "00255712345678", nil}, errors.ErrInvalidAmount},
		{"zero amount", CreateTransactionParams{"POL-1", 0, "UGX", "00256701234567", nil}, errors.ErrInvalidAmount},
		{"negative amount", CreateTransactionParams{"POL-1", -5000, "KES", "00254712345678", nil}, errors.ErrInvalidAmount},
		{"unknown currency", CreateTransactionParams{"POL-1", 5000, "USD", "00254712345678", nil}, errors.ErrInvalidCurrency},
		{"missing prefix", CreateTransactionParams{"POL-1", 5000, "KES", "254712345678", nil}, errors.ErrInvalidSubscriber},
		{"letters in subscriber", CreateTransactionParams{"POL-1", 5000, "KES", "00254712ABC678", nil}, errors.ErrInvalidSubscriber},
		{"too short", CreateTransactionParams{"POL-1", 5000, "KES", "002547123", nil}, errors.ErrInvalidSubscriber},
		{"missing policy", CreateTransactionParams{"  ", 5000, "KES", "00254712345678", nil}, errors.NewAppError(errors.InvalidInput, "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := newTestRegistry().Create(context.Background(), tt.params)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Nil(t, tx)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.StatusPending, tx.Status)
			assert.NotEqual(t, uuid.Nil, tx.ID)
			assert.Equal(t, testEpoch, tx.CreatedAt)
		})
	}
}

func TestRegistry_InvalidAmountDetails(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()
	repo := repository.NewMemoryTransactionRepository(logger)
	registry := NewRegistry(repo, testAmountRules, clock.NewFake(testEpoch), logger)

	_, err := registry.Create(ctx, CreateTransactionParams{"POL-1", 3000, "KES", "00254712345678", nil})
	require.Error(t, err)

	appErr := errors.AsAppError(err)
	assert.Equal(t, errors.InvalidAmount, appErr.Code)
	assert.Contains(t, appErr.Details, "exactly 5000 KES")
}

func TestRegistry_LifecycleKeepsAmountAndCurrency(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry()

	tx, err := registry.Create(ctx, CreateTransactionParams{"POL-7", 5000, "KES", "00254712345678", map[string]string{"source": "ussd"}})
	require.NoError(t, err)

	assigned, err := registry.UpdateChannelAssignment(ctx, tx.ID, domain.ChannelMpesa, "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, assigned.Status)
	assert.Equal(t, int64(5000), assigned.Amount)
	assert.Equal(t, domain.CurrencyKES, assigned.Currency)

	_, err = registry.UpdateChannelAssignment(ctx, tx.ID, domain.ChannelMpesa, "")
	assert.True(t, errors.Is(err, errors.NewAppError(errors.InvalidInput, "")))

	done, err := registry.UpdateStatus(ctx, tx.ID, domain.StatusFailed)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, done.Status)
	assert.Equal(t, int64(5000), done.Amount)
	assert.Equal(t, "ussd", done.Metadata["source"])

	_, err = registry.UpdateStatus(ctx, tx.ID, domain.StatusCompleted)
	assert.True(t, errors.Is(err, errors.ErrTransactionTerminal))
}

func TestRegistry_Resolve(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry()

	tx, err := registry.Create(ctx, CreateTransactionParams{"POL-8", 5000, "KES", "00254712345678", nil})
	require.NoError(t, err)
	_, err = registry.UpdateChannelAssignment(ctx, tx.ID, domain.ChannelMpesa, "ws_CO_42")
	require.NoError(t, err)

	byID, err := registry.Resolve(ctx, tx.ID.String())
	require.NoError(t, err)
	assert.Equal(t, tx.ID, byID.ID)

	byRef, err := registry.Resolve(ctx, "ws_CO_42")
	require.NoError(t, err)
	assert.Equal(t, tx.ID, byRef.ID)

	_, err = registry.Resolve(ctx, uuid.NewString())
	assert.True(t, errors.Is(err, errors.ErrTransactionNotFound))

	_, err = registry.Resolve(ctx, "nope")
	assert.True(t, errors.Is(err, errors.ErrTransactionNotFound))
}
