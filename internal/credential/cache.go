package credential

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"premium-collections/internal/clock"
	"premium-collections/internal/domain"
	"premium-collections/internal/errors"
	"premium-collections/internal/metrics"
)

const refreshKey = "token"

// Authenticator obtains a fresh bearer credential from the upstream platform.
type Authenticator interface {
	Authenticate(ctx context.Context) (*domain.Credential, error)
}

// Cache holds the process-wide upstream credential. Concurrent callers that
// find it expired share one re-authentication.
type Cache struct {
	auth    Authenticator
	clock   clock.Clock
	buffer  time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	current *domain.Credential
	group   singleflight.Group
}

func NewCache(auth Authenticator, clk clock.Clock, buffer time.Duration, logger *slog.Logger, m *metrics.Metrics) *Cache {
	return &Cache{
		auth:    auth,
		clock:   clk,
		buffer:  buffer,
		logger:  logger,
		metrics: m,
	}
}

// GetToken returns the cached token while it is valid for at least the
// safety buffer, re-authenticating otherwise.
func (c *Cache) GetToken(ctx context.Context) (string, error) {
	if token, ok := c.cached(); ok {
		return token, nil
	}

	ch := c.group.DoChan(refreshKey, func() (interface{}, error) {
		// A refresh that finished just before this flight started already did the work.
		if token, ok := c.cached(); ok {
			return token, nil
		}
		return c.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", errors.ErrAuthenticationFailed.Wrap(ctx.Err())
	}
}

// Invalidate drops the cached token if it is still stale, so the next GetToken
// re-authenticates. A token that already replaced stale is kept, and callers
// arriving during a refresh join it instead of starting another.
func (c *Cache) Invalidate(stale string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || c.current.Token != stale {
		return
	}
	c.current = nil
	c.logger.Info("Upstream credential invalidated")
}

// Purge drops the cached token if it has already expired and reports whether
// anything was removed.
func (c *Cache) Purge() bool {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || c.current.Valid(now, 0) {
		return false
	}
	c.current = nil
	return true
}

func (c *Cache) cached() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.current.Valid(c.clock.Now(), c.buffer) {
		return c.current.Token, true
	}
	return "", false
}

func (c *Cache) refresh(ctx context.Context) (string, error) {
	cred, err := c.auth.Authenticate(ctx)
	if err != nil {
		c.metrics.TokenRefreshed("error")
		c.logger.Error("Failed to authenticate with upstream", "error", err)
		if errors.Is(err, errors.ErrAuthenticationFailed) {
			return "", err
		}
		return "", errors.ErrAuthenticationFailed.Wrap(err)
	}
	if cred == nil || cred.Token == "" {
		c.metrics.TokenRefreshed("error")
		return "", errors.ErrAuthenticationFailed.WithDetails("empty access token")
	}

	c.mu.Lock()
	c.current = cred
	c.mu.Unlock()

	c.metrics.TokenRefreshed("ok")
	c.logger.Info("Upstream credential refreshed", "expires_at", cred.ExpiresAt)
	return cred.Token, nil
}
