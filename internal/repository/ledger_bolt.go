package repository

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	bolt "github.com/boltdb/bolt"

	"premium-collections/internal/clock"
	"premium-collections/internal/domain"
	"premium-collections/internal/errors"
)

var ledgerBucket = []byte("idempotency")

// BoltLedger persists event keys in a single BoltDB file, so processed
// deliveries survive a restart of a single-instance deployment.
type BoltLedger struct {
	db     *bolt.DB
	clock  clock.Clock
	logger *slog.Logger
}

func NewBoltLedger(path string, clk clock.Clock, logger *slog.Logger) (*BoltLedger, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(ledgerBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltLedger{db: db, clock: clk, logger: logger}, nil
}

func (l *BoltLedger) Close() error {
	return l.db.Close()
}

func (l *BoltLedger) Get(_ context.Context, key string) (*domain.IdempotencyRecord, error) {
	var rec *domain.IdempotencyRecord

	err := l.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(ledgerBucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		var r domain.IdempotencyRecord
		if err := json.Unmarshal(v, &r); err != nil {
			return err
		}
		rec = &r
		return nil
	})
	if err != nil {
		l.logger.Error("Failed to read idempotency key", "event_key", key, "error", err)
		return nil, errors.ErrIdempotencyStore.Wrap(err)
	}
	if rec == nil {
		return nil, nil
	}

	if rec.Expired(l.clock.Now()) {
		if err := l.purge(key); err != nil {
			l.logger.Warn("Failed to purge expired idempotency key", "event_key", key, "error", err)
		}
		return nil, nil
	}
	return rec, nil
}

func (l *BoltLedger) Set(_ context.Context, key string, result []byte, ttl time.Duration) error {
	now := l.clock.Now()

	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(ledgerBucket)

		if existing := b.Get([]byte(key)); existing != nil {
			var cur domain.IdempotencyRecord
			if err := json.Unmarshal(existing, &cur); err == nil && !cur.Expired(now) {
				return nil
			}
		}

		data, err := json.Marshal(domain.IdempotencyRecord{
			Key:       key,
			Result:    result,
			ExpiresAt: now.Add(ttl),
		})
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
	if err != nil {
		l.logger.Error("Failed to record idempotency key", "event_key", key, "error", err)
		return errors.ErrIdempotencyStore.Wrap(err)
	}
	return nil
}

func (l *BoltLedger) Sweep(_ context.Context) (int, error) {
	now := l.clock.Now()
	purged := 0

	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(ledgerBucket)
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var rec domain.IdempotencyRecord
			if err := json.Unmarshal(v, &rec); err != nil || rec.Expired(now) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		purged = len(expired)
		return nil
	})
	if err != nil {
		return 0, errors.ErrIdempotencyStore.Wrap(err)
	}
	return purged, nil
}

// purge deletes key only if it is still expired when the write lock is held.
func (l *BoltLedger) purge(key string) error {
	now := l.clock.Now()
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(ledgerBucket)
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		var rec domain.IdempotencyRecord
		if err := json.Unmarshal(v, &rec); err == nil && !rec.Expired(now) {
			return nil
		}
		return b.Delete([]byte(key))
	})
}
