package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"premium-collections/internal/channel"
	"premium-collections/internal/clock"
	"premium-collections/internal/domain"
	"premium-collections/internal/errors"
	"premium-collections/internal/gateway"
	"premium-collections/internal/metrics"
	"premium-collections/internal/notifier"
)

// Notifier reports settlement outcomes upstream.
type Notifier interface {
	Notify(ctx context.Context, s notifier.Settlement) error
}

// CredentialPurger drops an expired upstream credential during maintenance.
type CredentialPurger interface {
	Purge() bool
}

type DeliveryResult string

const (
	DeliveryProcessed DeliveryResult = "processed"
	DeliveryDuplicate DeliveryResult = "duplicate"
	DeliveryIgnored   DeliveryResult = "ignored"
)

type PaymentServiceConfig struct {
	LedgerTTL      time.Duration
	ChannelTimeout time.Duration
}

type PaymentService struct {
	registry    *Registry
	router      *gateway.Router
	adapter     channel.Adapter
	notifier    Notifier
	ledger      domain.IdempotencyLedger
	credentials CredentialPurger
	cfg         PaymentServiceConfig
	clock       clock.Clock
	metrics     *metrics.Metrics
	logger      *slog.Logger

	dispatches sync.WaitGroup
}

func NewPaymentService(
	registry *Registry,
	router *gateway.Router,
	adapter channel.Adapter,
	notifier Notifier,
	ledger domain.IdempotencyLedger,
	credentials CredentialPurger,
	cfg PaymentServiceConfig,
	clk clock.Clock,
	m *metrics.Metrics,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		registry:    registry,
		router:      router,
		adapter:     adapter,
		notifier:    notifier,
		ledger:      ledger,
		credentials: credentials,
		cfg:         cfg,
		clock:       clk,
		metrics:     m,
		logger:      logger,
	}
}

type InitiateRequest struct {
	PolicyID    string
	Amount      int64
	Currency    string
	Subscriber  string
	Description string
	Metadata    map[string]string
}

type InitiateResult struct {
	Transaction *domain.Transaction
	Channel     domain.Channel
}

// Initiate records a new payment and starts it on the routed channel in the
// background. The returned transaction is always pending.
func (s *PaymentService) Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error) {
	s.logger.Info("Processing payment initiation",
		"policy_id", req.PolicyID,
		"amount", req.Amount,
		"currency", req.Currency)

	tx, err := s.registry.Create(ctx, CreateTransactionParams{
		PolicyID:   req.PolicyID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Subscriber: req.Subscriber,
		Metadata:   req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	ch := s.router.Route(tx.Subscriber)
	s.metrics.PaymentInitiated(string(ch))

	description := req.Description
	if description == "" {
		description = "Premium payment " + tx.PolicyID
	}
	s.dispatch(tx, ch, description)

	s.logger.Info("Payment initiated", "transaction_id", tx.ID, "channel", ch)
	return &InitiateResult{Transaction: tx, Channel: ch}, nil
}

// dispatch makes the single channel attempt for tx. A failed attempt leaves
// the transaction pending.
func (s *PaymentService) dispatch(tx *domain.Transaction, ch domain.Channel, description string) {
	s.dispatches.Add(1)
	go func() {
		defer s.dispatches.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ChannelTimeout)
		defer cancel()

		started := time.Now()
		resp, err := s.adapter.Initiate(ctx, channel.Request{
			Channel:     ch,
			Amount:      tx.Amount,
			Currency:    tx.Currency,
			Subscriber:  tx.Subscriber,
			Reference:   tx.ID.String(),
			Description: description,
		})
		if err != nil {
			s.metrics.ChannelDispatched(string(ch), "error", time.Since(started))
			s.logger.Error("Channel initiation failed",
				"transaction_id", tx.ID, "channel", ch, "error", err)
			return
		}
		s.metrics.ChannelDispatched(string(ch), "ok", time.Since(started))

		ref := resp.ProviderReference
		if ref == "" {
			ref = resp.ProviderTransactionID
		}
		if _, err := s.registry.UpdateChannelAssignment(context.Background(), tx.ID, ch, ref); err != nil {
			s.logger.Error("Failed to record channel assignment",
				"transaction_id", tx.ID, "channel", ch, "channel_reference", ref, "error", err)
		}
	}()
}

type Delivery struct {
	EventID             string
	TransactionRef      string
	Outcome             domain.Outcome
	Amount              int64
	Currency            string
	Timestamp           time.Time
	SettlementReference string
}

type ledgerEntry struct {
	TransactionID uuid.UUID     `json:"transaction_id"`
	Status        domain.Status `json:"status"`
	Reference     string        `json:"reference"`
	ProcessedAt   time.Time     `json:"processed_at"`
}

// HandleDelivery applies one webhook delivery. Each real-world outcome is
// notified upstream at most once no matter how often or in which order its
// deliveries arrive.
func (s *PaymentService) HandleDelivery(ctx context.Context, d *Delivery) (DeliveryResult, error) {
	result, err := s.handleDelivery(ctx, d)
	if err != nil {
		s.metrics.DeliveryHandled(string(errors.AsAppError(err).Code))
		return "", err
	}
	s.metrics.DeliveryHandled(string(result))
	return result, nil
}

func (s *PaymentService) handleDelivery(ctx context.Context, d *Delivery) (DeliveryResult, error) {
	if err := validateDelivery(d); err != nil {
		return "", err
	}

	logger := s.logger.With("event_id", d.EventID, "transaction_ref", d.TransactionRef, "outcome", d.Outcome)
	if !d.Timestamp.IsZero() {
		logger = logger.With("reported_at", d.Timestamp)
	}

	seen, err := s.ledger.Get(ctx, d.EventID)
	if err != nil {
		return "", errors.AsAppError(err)
	}
	if seen != nil {
		logger.Info("Duplicate delivery ignored")
		return DeliveryDuplicate, nil
	}

	tx, err := s.registry.Resolve(ctx, d.TransactionRef)
	if err != nil {
		if errors.Is(err, errors.ErrTransactionNotFound) {
			logger.Warn("Delivery references unknown transaction")
			return "", errors.ErrUnknownTransaction.WithDetails("no transaction for reference " + d.TransactionRef)
		}
		return "", err
	}

	if (d.Amount != 0 && d.Amount != tx.Amount) || (d.Currency != "" && !strings.EqualFold(d.Currency, string(tx.Currency))) {
		logger.Warn("Delivery amount differs from transaction",
			"transaction_id", tx.ID,
			"expected_amount", tx.Amount, "expected_currency", tx.Currency,
			"delivered_amount", d.Amount, "delivered_currency", d.Currency)
	}

	target, terminal := d.Outcome.Status()
	if !terminal {
		logger.Info("Pending delivery acknowledged", "transaction_id", tx.ID, "status", tx.Status)
		return DeliveryIgnored, nil
	}

	if tx.Status == domain.StatusPending {
		logger.Warn("Delivery arrived before channel assignment", "transaction_id", tx.ID)
		return "", errors.ErrTransactionNotReady
	}

	updated, err := s.registry.UpdateStatus(ctx, tx.ID, target)
	switch {
	case err == nil:
		tx = updated
	case errors.Is(err, errors.ErrTransactionTerminal):
		// A failed notification for the same outcome may be retried by
		// redelivery; everything else is a duplicate.
		claimed, claimErr := s.registry.ClaimNotification(ctx, tx.ID, target)
		if claimErr != nil {
			return "", claimErr
		}
		if !claimed {
			logger.Info("Transaction already settled, delivery ignored", "transaction_id", tx.ID)
			return DeliveryDuplicate, nil
		}
		logger.Info("Retrying failed settlement notification", "transaction_id", tx.ID)
	default:
		return "", err
	}

	reference := d.SettlementReference
	if reference == "" {
		reference = tx.ID.String()
	}
	processedAt := s.clock.Now()

	notifyErr := s.notifier.Notify(ctx, notifier.Settlement{
		PolicyID:      tx.PolicyID,
		Amount:        tx.Amount,
		Reference:     reference,
		Status:        target,
		EffectiveDate: processedAt,
	})

	// Bookkeeping must land even if the caller has gone away.
	bg := context.WithoutCancel(ctx)

	if notifyErr != nil {
		if err := s.registry.MarkNotification(bg, tx.ID, domain.NotificationFailed); err != nil {
			logger.Error("Failed to release notification claim", "transaction_id", tx.ID, "error", err)
		}
		logger.Error("Settlement notification failed", "transaction_id", tx.ID, "error", notifyErr)
		return "", notifyErr
	}

	if err := s.registry.MarkNotification(bg, tx.ID, domain.NotificationDelivered); err != nil {
		logger.Error("Failed to mark notification delivered", "transaction_id", tx.ID, "error", err)
	}

	entry, err := json.Marshal(ledgerEntry{
		TransactionID: tx.ID,
		Status:        target,
		Reference:     reference,
		ProcessedAt:   processedAt,
	})
	if err != nil {
		logger.Error("Failed to encode processed delivery", "transaction_id", tx.ID, "error", err)
	} else if err := s.ledger.Set(bg, d.EventID, entry, s.cfg.LedgerTTL); err != nil {
		logger.Error("Failed to record processed delivery", "transaction_id", tx.ID, "error", err)
	}

	logger.Info("Delivery processed", "transaction_id", tx.ID, "status", target, "reference", reference)
	return DeliveryProcessed, nil
}

func validateDelivery(d *Delivery) error {
	if strings.TrimSpace(d.EventID) == "" {
		return errors.NewAppError(errors.InvalidInput, "event_id is required")
	}
	if strings.TrimSpace(d.TransactionRef) == "" {
		return errors.NewAppError(errors.InvalidInput, "transaction_reference is required")
	}
	if !d.Outcome.Valid() {
		return errors.NewAppError(errors.InvalidInput, "outcome must be completed, failed or pending")
	}
	return nil
}

// GetTransaction returns a snapshot of the transaction with the given id.
func (s *PaymentService) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	txID, err := uuid.Parse(id)
	if err != nil {
		return nil, errors.ErrTransactionNotFound.WithDetails("malformed transaction id")
	}
	return s.registry.Get(ctx, txID)
}

type SweepResult struct {
	LedgerPurged     int  `json:"ledger_purged"`
	CredentialPurged bool `json:"credential_purged"`
}

// Sweep removes expired idempotency keys and an expired upstream credential.
func (s *PaymentService) Sweep(ctx context.Context) (*SweepResult, error) {
	purged, err := s.ledger.Sweep(ctx)
	if err != nil {
		s.logger.Error("Ledger sweep failed", "error", err)
		return nil, errors.AsAppError(err)
	}
	s.metrics.LedgerSwept(purged)

	res := &SweepResult{LedgerPurged: purged}
	if s.credentials != nil {
		res.CredentialPurged = s.credentials.Purge()
	}

	s.logger.Info("Maintenance sweep finished",
		"ledger_purged", res.LedgerPurged, "credential_purged", res.CredentialPurged)
	return res, nil
}

// Wait blocks until every background channel dispatch has finished.
func (s *PaymentService) Wait() {
	s.dispatches.Wait()
}
