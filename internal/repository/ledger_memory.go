package repository

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"premium-collections/internal/clock"
	"premium-collections/internal/domain"
)

type memoryLedger struct {
	mu      sync.RWMutex
	records map[string]domain.IdempotencyRecord
	clock   clock.Clock
	logger  *slog.Logger
}

// NewMemoryLedger returns a process-local idempotency ledger.
func NewMemoryLedger(clk clock.Clock, logger *slog.Logger) domain.IdempotencyLedger {
	return &memoryLedger{
		records: make(map[string]domain.IdempotencyRecord),
		clock:   clk,
		logger:  logger,
	}
}

func (l *memoryLedger) Get(_ context.Context, key string) (*domain.IdempotencyRecord, error) {
	l.mu.RLock()
	rec, ok := l.records[key]
	l.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	if rec.Expired(l.clock.Now()) {
		l.mu.Lock()
		// Re-check under the write lock: a fresh Set may have replaced it.
		if cur, ok := l.records[key]; ok && cur.Expired(l.clock.Now()) {
			delete(l.records, key)
		}
		l.mu.Unlock()
		return nil, nil
	}

	return copyRecord(rec), nil
}

func (l *memoryLedger) Set(_ context.Context, key string, result []byte, ttl time.Duration) error {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.records[key]; ok && !cur.Expired(now) {
		l.logger.Debug("Idempotency key already recorded", "event_key", key)
		return nil
	}

	l.records[key] = domain.IdempotencyRecord{
		Key:       key,
		Result:    append([]byte(nil), result...),
		ExpiresAt: now.Add(ttl),
	}
	return nil
}

func (l *memoryLedger) Sweep(_ context.Context) (int, error) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	purged := 0
	for key, rec := range l.records {
		if rec.Expired(now) {
			delete(l.records, key)
			purged++
		}
	}
	return purged, nil
}

func copyRecord(rec domain.IdempotencyRecord) *domain.IdempotencyRecord {
	rec.Result = append([]byte(nil), rec.Result...)
	return &rec
}
