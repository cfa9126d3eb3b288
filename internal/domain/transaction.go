package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transition may leave s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo encodes the transaction state machine:
// pending -> processing -> completed | failed.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// NotificationState tracks the settlement notification for a terminal transaction.
type NotificationState string

const (
	NotificationNone      NotificationState = ""
	NotificationInFlight  NotificationState = "in_flight"
	NotificationDelivered NotificationState = "delivered"
	NotificationFailed    NotificationState = "failed"
)

type Transaction struct {
	ID               uuid.UUID         `json:"transaction_id"`
	PolicyID         string            `json:"policy_id"`
	Amount           int64             `json:"amount"`
	Currency         Currency          `json:"currency"`
	Subscriber       string            `json:"subscriber"`
	Status           Status            `json:"status"`
	Channel          Channel           `json:"channel,omitempty"`
	ChannelReference *string           `json:"channel_reference,omitempty"`
	Notification     NotificationState `json:"notification,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (t *Transaction) Clone() *Transaction {
	c := *t
	if t.ChannelReference != nil {
		ref := *t.ChannelReference
		c.ChannelReference = &ref
	}
	if t.Metadata != nil {
		c.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// TransactionRepository is the backing store of the transaction registry.
// Every mutating call is serialized per record by the implementation.
type TransactionRepository interface {
	CreateTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	GetTransactionByChannelReference(ctx context.Context, ref string) (*Transaction, error)
	// UpdateChannelAssignment moves a pending transaction to processing.
	UpdateChannelAssignment(ctx context.Context, id uuid.UUID, channel Channel, ref string, at time.Time) (*Transaction, error)
	// UpdateStatus moves a processing transaction to a terminal status and
	// marks its notification in flight in the same step.
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, at time.Time) (*Transaction, error)
	// ClaimNotification moves a failed notification back to in flight when the
	// transaction's terminal status equals status. It reports whether the claim won.
	ClaimNotification(ctx context.Context, id uuid.UUID, status Status, at time.Time) (bool, error)
	UpdateNotificationState(ctx context.Context, id uuid.UUID, state NotificationState, at time.Time) error
}
