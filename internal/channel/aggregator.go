package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"premium-collections/internal/domain"
	"premium-collections/internal/errors"
)

const collectionsPath = "/v1/collections"

// AggregatorClient starts collections through the payment aggregator's HTTP API.
type AggregatorClient struct {
	baseURL     string
	apiKey      string
	callbackURL string
	httpClient  *http.Client
	logger      *slog.Logger
}

func NewAggregatorClient(baseURL, apiKey, callbackURL string, httpClient *http.Client, logger *slog.Logger) *AggregatorClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &AggregatorClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		callbackURL: callbackURL,
		httpClient:  httpClient,
		logger:      logger,
	}
}

type collectionRequest struct {
	Channel     string `json:"channel"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	MSISDN      string `json:"msisdn"`
	Reference   string `json:"reference"`
	Description string `json:"description,omitempty"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type collectionResponse struct {
	TransactionID string `json:"transaction_id"`
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
}

func (c *AggregatorClient) Initiate(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(collectionRequest{
		Channel:     string(req.Channel),
		Amount:      MajorUnits(req.Amount, req.Currency),
		Currency:    string(req.Currency),
		MSISDN:      strings.TrimPrefix(req.Subscriber, domain.SubscriberPrefix),
		Reference:   req.Reference,
		Description: req.Description,
		CallbackURL: c.callbackURL,
	})
	if err != nil {
		return nil, errors.ErrChannelUnavailable.Wrap(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+collectionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.ErrChannelUnavailable.Wrap(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-API-Key", c.apiKey)
	httpReq.Header.Set("Idempotency-Key", req.Reference)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("Aggregator call failed",
			"channel", req.Channel, "reference", req.Reference, "error", err)
		return nil, classify(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, classify(ctx, err)
	}

	if resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout {
		return nil, errors.ErrChannelTimeout.WithDetails(fmt.Sprintf("aggregator returned %d", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("Aggregator rejected collection",
			"channel", req.Channel, "reference", req.Reference, "status", resp.StatusCode)
		return nil, errors.ErrChannelUnavailable.WithDetails(fmt.Sprintf("aggregator returned %d", resp.StatusCode))
	}

	var cr collectionResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, errors.ErrChannelUnavailable.Wrap(err)
	}
	if cr.Reference == "" && cr.TransactionID == "" {
		return nil, errors.ErrChannelUnavailable.WithDetails("aggregator returned no reference")
	}
	if cr.Reference == "" {
		cr.Reference = cr.TransactionID
	}

	c.logger.Info("Aggregator accepted collection",
		"channel", req.Channel, "reference", req.Reference, "provider_reference", cr.Reference)

	return &Response{
		ProviderTransactionID: cr.TransactionID,
		ProviderReference:     cr.Reference,
		Status:                cr.Status,
	}, nil
}

// MajorUnits renders a minor-unit amount in the currency's major unit, e.g.
// 5000 KES becomes "50.00".
func MajorUnits(amount int64, currency domain.Currency) string {
	exp := currency.Exponent()
	return decimal.New(amount, -exp).StringFixed(exp)
}
