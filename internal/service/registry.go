package service

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"premium-collections/internal/clock"
	"premium-collections/internal/domain"
	"premium-collections/internal/errors"
)

// Registry owns the canonical state of every payment attempt. It validates
// new transactions and stamps every transition with the registry clock; the
// backing repository serializes concurrent transitions per record.
type Registry struct {
	repo   domain.TransactionRepository
	rules  map[domain.Currency]domain.AmountRule
	clock  clock.Clock
	logger *slog.Logger
}

func NewRegistry(repo domain.TransactionRepository, rules map[domain.Currency]domain.AmountRule, clk clock.Clock, logger *slog.Logger) *Registry {
	copied := make(map[domain.Currency]domain.AmountRule, len(rules))
	for c, r := range rules {
		copied[c] = r
	}
	return &Registry{
		repo:   repo,
		rules:  copied,
		clock:  clk,
		logger: logger,
	}
}

type CreateTransactionParams struct {
	PolicyID   string
	Amount     int64
	Currency   string
	Subscriber string
	Metadata   map[string]string
}

func (r *Registry) Create(ctx context.Context, p CreateTransactionParams) (*domain.Transaction, error) {
	policyID := strings.TrimSpace(p.PolicyID)
	if policyID == "" {
		return nil, errors.NewAppError(errors.InvalidInput, "policy_id is required")
	}

	currency, ok := domain.ParseCurrency(p.Currency)
	if !ok {
		return nil, errors.ErrInvalidCurrency.WithDetails("currency " + p.Currency + " is not supported")
	}

	subscriber := strings.TrimSpace(p.Subscriber)
	if !domain.ValidSubscriber(subscriber) {
		return nil, errors.ErrInvalidSubscriber
	}

	if rule := r.rules[currency]; !rule.Allows(p.Amount) {
		r.logger.Warn("Rejected amount", "policy_id", policyID, "amount", p.Amount, "currency", currency)
		return nil, errors.ErrInvalidAmount.WithDetails(describeRule(rule, currency))
	}

	now := r.clock.Now()
	tx := &domain.Transaction{
		ID:         uuid.New(),
		PolicyID:   policyID,
		Amount:     p.Amount,
		Currency:   currency,
		Subscriber: subscriber,
		Status:     domain.StatusPending,
		Metadata:   p.Metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := r.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return tx.Clone(), nil
}

func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return r.repo.GetTransaction(ctx, id)
}

// Resolve finds the transaction a webhook refers to. The reference may be
// the internal transaction id or the channel-assigned reference.
func (r *Registry) Resolve(ctx context.Context, ref string) (*domain.Transaction, error) {
	if id, err := uuid.Parse(ref); err == nil {
		tx, err := r.repo.GetTransaction(ctx, id)
		if err == nil || !errors.Is(err, errors.ErrTransactionNotFound) {
			return tx, err
		}
	}
	return r.repo.GetTransactionByChannelReference(ctx, ref)
}

func (r *Registry) UpdateChannelAssignment(ctx context.Context, id uuid.UUID, channel domain.Channel, channelRef string) (*domain.Transaction, error) {
	if channelRef == "" {
		return nil, errors.NewAppError(errors.InvalidInput, "channel reference is required")
	}
	return r.repo.UpdateChannelAssignment(ctx, id, channel, channelRef, r.clock.Now())
}

func (r *Registry) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) (*domain.Transaction, error) {
	return r.repo.UpdateStatus(ctx, id, status, r.clock.Now())
}

func (r *Registry) ClaimNotification(ctx context.Context, id uuid.UUID, status domain.Status) (bool, error) {
	return r.repo.ClaimNotification(ctx, id, status, r.clock.Now())
}

func (r *Registry) MarkNotification(ctx context.Context, id uuid.UUID, state domain.NotificationState) error {
	return r.repo.UpdateNotificationState(ctx, id, state, r.clock.Now())
}

func describeRule(rule domain.AmountRule, currency domain.Currency) string {
	switch {
	case rule.Exact > 0:
		return "amount must be exactly " + strconv.FormatInt(rule.Exact, 10) + " " + string(currency)
	case rule.Min > 0 && rule.Max > 0:
		return "amount must be between " + strconv.FormatInt(rule.Min, 10) + " and " + strconv.FormatInt(rule.Max, 10) + " " + string(currency)
	case rule.Min > 0:
		return "amount must be at least " + strconv.FormatInt(rule.Min, 10) + " " + string(currency)
	case rule.Max > 0:
		return "amount must be at most " + strconv.FormatInt(rule.Max, 10) + " " + string(currency)
	default:
		return "amount must be positive"
	}
}
