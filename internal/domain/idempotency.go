package domain

import (
	"context"
	"time"
)

// IdempotencyRecord remembers that an event key already produced Result.
type IdempotencyRecord struct {
	Key       string    `json:"key"`
	Result    []byte    `json:"result"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// IdempotencyLedger stores processed webhook event keys.
type IdempotencyLedger interface {
	// Get returns nil, nil when the key is absent or expired.
	Get(ctx context.Context, key string) (*IdempotencyRecord, error)
	// Set is write-once: a second Set for a live key leaves the first result in place.
	Set(ctx context.Context, key string, result []byte, ttl time.Duration) error
	// Sweep purges expired entries and returns how many were removed.
	Sweep(ctx context.Context) (int, error)
}
