package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("premium_collections"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("password"),
		postgres.WithInitScripts(filepath.Join("..", "..", "migrations", "001_create_transactions.sql")),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	require.NoError(t, db.PingContext(ctx))
	t.Cleanup(func() { db.Close() })

	return db
}

func TestPostgresTransactionRepository(t *testing.T) {
	db := startPostgres(t)
	logger := discardLogger()

	store := NewStore(db, logger)
	testTransactionRepository(t, store.Transaction())
}

func TestStore_WithTransactionRollsBack(t *testing.T) {
	db := startPostgres(t)
	logger := discardLogger()
	ctx := context.Background()

	store := NewStore(db, logger)
	tx := newPendingTransaction(time.Now().UTC().Truncate(time.Microsecond))

	err := store.WithTransaction(ctx, func(txStore *Store) error {
		if err := txStore.Transaction().CreateTransaction(ctx, tx); err != nil {
			return err
		}
		return sql.ErrTxDone
	})
	require.ErrorIs(t, err, sql.ErrTxDone)

	_, err = store.Transaction().GetTransaction(ctx, tx.ID)
	require.Error(t, err)
}
