package repository

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"premium-collections/internal/domain"
	"premium-collections/internal/errors"
)

type transactionEntry struct {
	mu sync.Mutex
	tx *domain.Transaction
}

// memoryTransactionRepository keeps transactions in process memory. The map is
// guarded by one RWMutex; each record has its own mutex so transitions on
// different transactions never contend.
type memoryTransactionRepository struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*transactionEntry
	byRef   map[string]uuid.UUID
	logger  *slog.Logger
}

func NewMemoryTransactionRepository(logger *slog.Logger) domain.TransactionRepository {
	return &memoryTransactionRepository{
		entries: make(map[uuid.UUID]*transactionEntry),
		byRef:   make(map[string]uuid.UUID),
		logger:  logger,
	}
}

func (r *memoryTransactionRepository) CreateTransaction(_ context.Context, tx *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[tx.ID]; exists {
		r.logger.Warn("Duplicate transaction", "transaction_id", tx.ID)
		return errors.ErrDuplicateTransaction
	}

	r.entries[tx.ID] = &transactionEntry{tx: tx.Clone()}
	r.logger.Info("Transaction created successfully", "transaction_id", tx.ID)
	return nil
}

func (r *memoryTransactionRepository) GetTransaction(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	entry, ok := r.entry(id)
	if !ok {
		return nil, errors.ErrTransactionNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.tx.Clone(), nil
}

func (r *memoryTransactionRepository) GetTransactionByChannelReference(ctx context.Context, ref string) (*domain.Transaction, error) {
	r.mu.RLock()
	id, ok := r.byRef[ref]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.ErrTransactionNotFound
	}
	return r.GetTransaction(ctx, id)
}

func (r *memoryTransactionRepository) UpdateChannelAssignment(_ context.Context, id uuid.UUID, channel domain.Channel, ref string, at time.Time) (*domain.Transaction, error) {
	entry, ok := r.entry(id)
	if !ok {
		return nil, errors.ErrTransactionNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if !entry.tx.Status.CanTransitionTo(domain.StatusProcessing) {
		r.logger.Warn("Rejected channel assignment",
			"transaction_id", id, "status", entry.tx.Status, "channel", channel)
		return nil, errors.ErrInvalidTransition.WithDetails("transaction is " + string(entry.tx.Status))
	}

	// r.mu may be taken while holding entry.mu; nothing holds r.mu while waiting on entry.mu.
	r.mu.Lock()
	if owner, taken := r.byRef[ref]; taken && owner != id {
		r.mu.Unlock()
		return nil, errors.ErrDuplicateTransaction.WithDetails("channel reference already assigned")
	}
	r.byRef[ref] = id
	r.mu.Unlock()

	entry.tx.Status = domain.StatusProcessing
	entry.tx.Channel = channel
	entry.tx.ChannelReference = &ref
	entry.tx.UpdatedAt = at

	r.logger.Info("Transaction assigned to channel", "transaction_id", id, "channel", channel, "channel_reference", ref)
	return entry.tx.Clone(), nil
}

func (r *memoryTransactionRepository) UpdateStatus(_ context.Context, id uuid.UUID, status domain.Status, at time.Time) (*domain.Transaction, error) {
	entry, ok := r.entry(id)
	if !ok {
		return nil, errors.ErrTransactionNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.tx.Status.IsTerminal() {
		return nil, errors.ErrTransactionTerminal.WithDetails("transaction is " + string(entry.tx.Status))
	}
	if !entry.tx.Status.CanTransitionTo(status) {
		return nil, errors.ErrInvalidTransition.WithDetails("transaction is " + string(entry.tx.Status))
	}

	entry.tx.Status = status
	entry.tx.Notification = domain.NotificationInFlight
	entry.tx.UpdatedAt = at

	r.logger.Info("Transaction status updated", "transaction_id", id, "status", status)
	return entry.tx.Clone(), nil
}

func (r *memoryTransactionRepository) ClaimNotification(_ context.Context, id uuid.UUID, status domain.Status, at time.Time) (bool, error) {
	entry, ok := r.entry(id)
	if !ok {
		return false, errors.ErrTransactionNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.tx.Status != status || entry.tx.Notification != domain.NotificationFailed {
		return false, nil
	}

	entry.tx.Notification = domain.NotificationInFlight
	entry.tx.UpdatedAt = at
	return true, nil
}

func (r *memoryTransactionRepository) UpdateNotificationState(_ context.Context, id uuid.UUID, state domain.NotificationState, at time.Time) error {
	entry, ok := r.entry(id)
	if !ok {
		return errors.ErrTransactionNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.tx.Notification = state
	entry.tx.UpdatedAt = at
	return nil
}

func (r *memoryTransactionRepository) entry(id uuid.UUID) (*transactionEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	return entry, ok
}
