package repository

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"premium-collections/internal/clock"
	"premium-collections/internal/domain"
	"premium-collections/internal/errors"
)

const ledgerNamespace = "idempotency"

type redisLedger struct {
	client redis.UniversalClient
	clock  clock.Clock
	logger *slog.Logger
}

// NewRedisLedger stores event keys in Redis. Write-once comes from SET NX and
// expiry from the key TTL, so Sweep has nothing to do.
func NewRedisLedger(client redis.UniversalClient, clk clock.Clock, logger *slog.Logger) domain.IdempotencyLedger {
	return &redisLedger{
		client: client,
		clock:  clk,
		logger: logger,
	}
}

func (l *redisLedger) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	raw, err := l.client.Get(ctx, ledgerKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		l.logger.Error("Failed to read idempotency key", "event_key", key, "error", err)
		return nil, errors.ErrIdempotencyStore.Wrap(err)
	}

	var rec domain.IdempotencyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, errors.ErrIdempotencyStore.Wrap(err)
	}
	if rec.Expired(l.clock.Now()) {
		return nil, nil
	}
	return &rec, nil
}

func (l *redisLedger) Set(ctx context.Context, key string, result []byte, ttl time.Duration) error {
	rec := domain.IdempotencyRecord{
		Key:       key,
		Result:    result,
		ExpiresAt: l.clock.Now().Add(ttl),
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.ErrIdempotencyStore.Wrap(err)
	}

	stored, err := l.client.SetNX(ctx, ledgerKey(key), payload, ttl).Result()
	if err != nil {
		l.logger.Error("Failed to record idempotency key", "event_key", key, "error", err)
		return errors.ErrIdempotencyStore.Wrap(err)
	}
	if !stored {
		l.logger.Debug("Idempotency key already recorded", "event_key", key)
	}
	return nil
}

func (l *redisLedger) Sweep(context.Context) (int, error) {
	return 0, nil
}

func ledgerKey(key string) string {
	return ledgerNamespace + ":" + key
}
