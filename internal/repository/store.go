package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"premium-collections/internal/domain"
	"premium-collections/internal/errors"
)

// Store provides a unified interface for all repository operations with transaction support
type Store struct {
	executor SQLExecutor
	logger   *slog.Logger
}

// NewStore creates a new Store instance
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{
		executor: db,
		logger:   logger,
	}
}

// Transaction returns a TransactionRepository backed by Postgres
func (s *Store) Transaction() domain.TransactionRepository {
	return NewTransactionRepository(s, s.logger)
}

// WithTransaction executes a function within a database transaction
func (s *Store) WithTransaction(ctx context.Context, fn func(*Store) error) error {
	// Only a DB can begin transactions; a TxWrapper cannot nest
	db, ok := s.executor.(DB)
	if !ok {
		return errors.NewAppError(errors.InternalError, "cannot begin a transaction inside a transaction")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	txStore := &Store{
		executor: &TxWrapper{Tx: tx},
		logger:   s.logger,
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txStore); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}
