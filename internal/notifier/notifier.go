package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"premium-collections/internal/domain"
	"premium-collections/internal/errors"
	"premium-collections/internal/metrics"
)

const effectiveDateLayout = "2006-01-02"

const (
	OutcomeSucceeded = "Succeeded"
	OutcomeFailed    = "Failed"
)

// TokenSource supplies the bearer credential for settlement calls.
type TokenSource interface {
	GetToken(ctx context.Context) (string, error)
	Invalidate(stale string)
}

// Settlement is one outcome to report to the upstream platform.
type Settlement struct {
	PolicyID      string
	Amount        int64
	Reference     string
	Status        domain.Status
	EffectiveDate time.Time
}

type settlementPayload struct {
	PolicyID      string `json:"policy_id"`
	Amount        int64  `json:"amount"`
	Reference     string `json:"reference"`
	Outcome       string `json:"outcome"`
	Channel       string `json:"channel"`
	EffectiveDate string `json:"effective_date"`
}

// Client posts settlement updates to the upstream settlement endpoint.
type Client struct {
	url        string
	channelTag string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

func NewClient(url, channelTag string, tokens TokenSource, httpClient *http.Client, logger *slog.Logger, m *metrics.Metrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		url:        url,
		channelTag: channelTag,
		tokens:     tokens,
		httpClient: httpClient,
		logger:     logger,
		metrics:    m,
	}
}

// Notify sends s once. A 401 invalidates the cached credential and re-sends
// with a fresh token; any other failure is returned to the caller.
func (c *Client) Notify(ctx context.Context, s Settlement) error {
	outcome, err := outcomeFor(s.Status)
	if err != nil {
		return err
	}

	body, err := json.Marshal(settlementPayload{
		PolicyID:      s.PolicyID,
		Amount:        s.Amount,
		Reference:     s.Reference,
		Outcome:       outcome,
		Channel:       c.channelTag,
		EffectiveDate: s.EffectiveDate.Format(effectiveDateLayout),
	})
	if err != nil {
		return errors.ErrNotificationFailed.Wrap(err)
	}

	status, token, err := c.post(ctx, body)
	if err == nil && status == http.StatusUnauthorized {
		c.logger.Warn("Settlement endpoint rejected credential, re-authenticating",
			"policy_id", s.PolicyID, "reference", s.Reference)
		c.tokens.Invalidate(token)
		status, _, err = c.post(ctx, body)
	}

	if err != nil {
		c.metrics.NotificationSent(outcome, "error")
		c.logger.Error("Failed to send settlement notification",
			"policy_id", s.PolicyID, "reference", s.Reference, "outcome", outcome, "error", err)
		return err
	}
	if status < 200 || status > 299 {
		c.metrics.NotificationSent(outcome, "rejected")
		c.logger.Error("Settlement notification rejected",
			"policy_id", s.PolicyID, "reference", s.Reference, "outcome", outcome, "status", status)
		return errors.ErrNotificationFailed.WithDetails(fmt.Sprintf("settlement endpoint returned %d", status))
	}

	c.metrics.NotificationSent(outcome, "ok")
	c.logger.Info("Settlement notification sent",
		"policy_id", s.PolicyID, "reference", s.Reference, "outcome", outcome)
	return nil
}

// post sends body once and returns the status along with the token it used.
func (c *Client) post(ctx context.Context, body []byte) (int, string, error) {
	token, err := c.tokens.GetToken(ctx)
	if err != nil {
		return 0, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, token, errors.ErrNotificationFailed.Wrap(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, token, errors.ErrNotificationFailed.Wrap(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	return resp.StatusCode, token, nil
}

func outcomeFor(status domain.Status) (string, error) {
	switch status {
	case domain.StatusCompleted:
		return OutcomeSucceeded, nil
	case domain.StatusFailed:
		return OutcomeFailed, nil
	default:
		return "", errors.ErrNotificationFailed.WithDetails("no settlement outcome for status " + string(status))
	}
}
