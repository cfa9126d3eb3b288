package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"premium-collections/internal/domain"
	"premium-collections/internal/errors"
)

const transactionColumns = `id, policy_id, amount, currency, subscriber, status, channel,
	channel_reference, notification_state, metadata, created_at, updated_at`

type transactionRepository struct {
	store  *Store
	logger *slog.Logger
}

// NewTransactionRepository returns the Postgres-backed registry store. State
// transitions lock the row with SELECT ... FOR UPDATE, so concurrent updates
// to one transaction are serialized by the database.
func NewTransactionRepository(store *Store, logger *slog.Logger) domain.TransactionRepository {
	return &transactionRepository{
		store:  store,
		logger: logger,
	}
}

func (r *transactionRepository) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions
		(id, policy_id, amount, currency, subscriber, status, channel, channel_reference,
		 notification_state, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	metadata, err := marshalMetadata(tx.Metadata)
	if err != nil {
		return errors.NewAppError(errors.InvalidInput, "metadata is not serializable").WithDetails(err.Error())
	}

	_, err = r.store.executor.ExecContext(ctx,
		query,
		tx.ID,
		tx.PolicyID,
		tx.Amount,
		string(tx.Currency),
		tx.Subscriber,
		string(tx.Status),
		nullString(string(tx.Channel)),
		tx.ChannelReference,
		string(tx.Notification),
		metadata,
		tx.CreatedAt,
		tx.UpdatedAt,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				r.logger.Warn("Duplicate transaction", "transaction_id", tx.ID, "constraint", pqErr.Constraint)
				return errors.ErrDuplicateTransaction
			}
		}
		r.logger.Error("Failed to create transaction",
			"transaction_id", tx.ID,
			"policy_id", tx.PolicyID,
			"amount", tx.Amount,
			"error", err)
		return errors.NewAppError(errors.InternalError, "failed to create transaction").WithDetails(err.Error())
	}

	r.logger.Info("Transaction created successfully", "transaction_id", tx.ID)
	return nil
}

func (r *transactionRepository) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	return scanTransaction(r.store.executor.QueryRowContext(ctx, query, id), r.logger, id)
}

func (r *transactionRepository) GetTransactionByChannelReference(ctx context.Context, ref string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE channel_reference = $1`

	return scanTransaction(r.store.executor.QueryRowContext(ctx, query, ref), r.logger, ref)
}

func (r *transactionRepository) UpdateChannelAssignment(ctx context.Context, id uuid.UUID, channel domain.Channel, ref string, at time.Time) (*domain.Transaction, error) {
	var updated *domain.Transaction

	err := r.store.WithTransaction(ctx, func(txStore *Store) error {
		current, err := lockTransaction(ctx, txStore, id)
		if err != nil {
			return err
		}

		if !current.Status.CanTransitionTo(domain.StatusProcessing) {
			r.logger.Warn("Rejected channel assignment",
				"transaction_id", id, "status", current.Status, "channel", channel)
			return errors.ErrInvalidTransition.WithDetails("transaction is " + string(current.Status))
		}

		query := `
			UPDATE transactions
			SET status = $1, channel = $2, channel_reference = $3, updated_at = $4
			WHERE id = $5
		`
		if _, err := txStore.executor.ExecContext(ctx, query, string(domain.StatusProcessing), string(channel), ref, at, id); err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
				return errors.ErrDuplicateTransaction.WithDetails("channel reference already assigned")
			}
			return errors.NewAppError(errors.InternalError, "failed to assign channel").WithDetails(err.Error())
		}

		current.Status = domain.StatusProcessing
		current.Channel = channel
		current.ChannelReference = &ref
		current.UpdatedAt = at
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Transaction assigned to channel", "transaction_id", id, "channel", channel, "channel_reference", ref)
	return updated, nil
}

func (r *transactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status, at time.Time) (*domain.Transaction, error) {
	var updated *domain.Transaction

	err := r.store.WithTransaction(ctx, func(txStore *Store) error {
		current, err := lockTransaction(ctx, txStore, id)
		if err != nil {
			return err
		}

		if current.Status.IsTerminal() {
			return errors.ErrTransactionTerminal.WithDetails("transaction is " + string(current.Status))
		}
		if !current.Status.CanTransitionTo(status) {
			return errors.ErrInvalidTransition.WithDetails("transaction is " + string(current.Status))
		}

		query := `
			UPDATE transactions
			SET status = $1, notification_state = $2, updated_at = $3
			WHERE id = $4
		`
		if _, err := txStore.executor.ExecContext(ctx, query, string(status), string(domain.NotificationInFlight), at, id); err != nil {
			return errors.NewAppError(errors.InternalError, "failed to update transaction status").WithDetails(err.Error())
		}

		current.Status = status
		current.Notification = domain.NotificationInFlight
		current.UpdatedAt = at
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Transaction status updated", "transaction_id", id, "status", status)
	return updated, nil
}

func (r *transactionRepository) ClaimNotification(ctx context.Context, id uuid.UUID, status domain.Status, at time.Time) (bool, error) {
	query := `
		UPDATE transactions
		SET notification_state = $1, updated_at = $2
		WHERE id = $3 AND status = $4 AND notification_state = $5
	`

	result, err := r.store.executor.ExecContext(ctx, query,
		string(domain.NotificationInFlight), at, id, string(status), string(domain.NotificationFailed))
	if err != nil {
		r.logger.Error("Failed to claim notification", "transaction_id", id, "error", err)
		return false, errors.NewAppError(errors.InternalError, "failed to claim notification").WithDetails(err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewAppError(errors.InternalError, "failed to get rows affected").WithDetails(err.Error())
	}

	return rowsAffected == 1, nil
}

func (r *transactionRepository) UpdateNotificationState(ctx context.Context, id uuid.UUID, state domain.NotificationState, at time.Time) error {
	query := `UPDATE transactions SET notification_state = $1, updated_at = $2 WHERE id = $3`

	result, err := r.store.executor.ExecContext(ctx, query, string(state), at, id)
	if err != nil {
		r.logger.Error("Failed to update notification state",
			"transaction_id", id, "notification", state, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to update notification state").WithDetails(err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewAppError(errors.InternalError, "failed to get rows affected").WithDetails(err.Error())
	}

	if rowsAffected == 0 {
		return errors.ErrTransactionNotFound
	}
	return nil
}

func lockTransaction(ctx context.Context, s *Store, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`

	return scanTransaction(s.executor.QueryRowContext(ctx, query, id), s.logger, id)
}

func scanTransaction(row *sql.Row, logger *slog.Logger, arg interface{}) (*domain.Transaction, error) {
	var (
		tx           domain.Transaction
		currency     string
		status       string
		channel      sql.NullString
		channelRef   sql.NullString
		notification string
		metadata     []byte
	)

	err := row.Scan(
		&tx.ID,
		&tx.PolicyID,
		&tx.Amount,
		&currency,
		&tx.Subscriber,
		&status,
		&channel,
		&channelRef,
		&notification,
		&metadata,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrTransactionNotFound
		}
		logger.Error("Failed to get transaction", "arg", arg, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get transaction").WithDetails(err.Error())
	}

	tx.Currency = domain.Currency(currency)
	tx.Status = domain.Status(status)
	tx.Notification = domain.NotificationState(notification)
	if channel.Valid {
		tx.Channel = domain.Channel(channel.String)
	}
	if channelRef.Valid {
		ref := channelRef.String
		tx.ChannelReference = &ref
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &tx.Metadata); err != nil {
			return nil, errors.NewAppError(errors.InternalError, "failed to parse metadata").WithDetails(err.Error())
		}
	}

	return &tx, nil
}

func marshalMetadata(m map[string]string) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
