package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"premium-collections/internal/channel"
	"premium-collections/internal/clock"
	"premium-collections/internal/domain"
	"premium-collections/internal/gateway"
	"premium-collections/internal/metrics"
	"premium-collections/internal/notifier"
	"premium-collections/internal/repository"
)

var testEpoch = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

var testAmountRules = map[domain.Currency]domain.AmountRule{
	domain.CurrencyKES: {Exact: 5000},
	domain.CurrencyUGX: {Min: 500},
	domain.CurrencyTZS: {Min: 100, Max: 1_000_000},
}

var testRouterRules = gateway.Rules{
	CountryCodes:    []string{"254", "255", "256"},
	ChannelA:        []string{"70", "71", "72"},
	ChannelB:        []string{"73", "78"},
	CountryDefaults: map[string]domain.Channel{"254": domain.ChannelMpesa},
	Fallback:        domain.ChannelAirtelMoney,
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubAdapter struct {
	calls int32
	err   error
}

func (a *stubAdapter) Initiate(_ context.Context, req channel.Request) (*channel.Response, error) {
	n := atomic.AddInt32(&a.calls, 1)
	if a.err != nil {
		return nil, a.err
	}
	return &channel.Response{
		ProviderTransactionID: fmt.Sprintf("PTX-%d", n),
		ProviderReference:     "REF-" + req.Reference,
		Status:                "accepted",
	}, nil
}

func (a *stubAdapter) Calls() int {
	return int(atomic.LoadInt32(&a.calls))
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []notifier.Settlement
	errs  []error
	delay time.Duration
}

func (n *recordingNotifier) Notify(_ context.Context, s notifier.Settlement) error {
	if n.delay > 0 {
		time.Sleep(n.delay)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	call := len(n.sent)
	n.sent = append(n.sent, s)
	if call < len(n.errs) {
		return n.errs[call]
	}
	return nil
}

func (n *recordingNotifier) Sent() []notifier.Settlement {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifier.Settlement(nil), n.sent...)
}

type stubPurger struct{ purged bool }

func (p *stubPurger) Purge() bool { return p.purged }

type harness struct {
	svc      *PaymentService
	registry *Registry
	ledger   domain.IdempotencyLedger
	adapter  *stubAdapter
	notifier *recordingNotifier
	clock    *clock.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := discardLogger()
	clk := clock.NewFake(testEpoch)

	h := &harness{
		registry: NewRegistry(repository.NewMemoryTransactionRepository(logger), testAmountRules, clk, logger),
		ledger:   repository.NewMemoryLedger(clk, logger),
		adapter:  &stubAdapter{},
		notifier: &recordingNotifier{},
		clock:    clk,
	}
	h.svc = NewPaymentService(
		h.registry,
		gateway.NewRouter(testRouterRules),
		h.adapter,
		h.notifier,
		h.ledger,
		&stubPurger{purged: true},
		PaymentServiceConfig{LedgerTTL: 72 * time.Hour, ChannelTimeout: time.Second},
		clk,
		metrics.New(),
		logger,
	)
	return h
}

// processing initiates a KES payment and waits for its channel assignment.
func (h *harness) processing(t *testing.T) *domain.Transaction {
	t.Helper()
	res, err := h.svc.Initiate(context.Background(), &InitiateRequest{
		PolicyID:   "POL-1001",
		Amount:     5000,
		Currency:   "KES",
		Subscriber: "00254712345678",
	})
	require.NoError(t, err)
	h.svc.Wait()

	tx, err := h.registry.Get(context.Background(), res.Transaction.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusProcessing, tx.Status)
	return tx
}

func delivery(eventID string, tx *domain.Transaction, outcome domain.Outcome) *Delivery {
	return &Delivery{
		EventID:        eventID,
		TransactionRef: tx.ID.String(),
		Outcome:        outcome,
		Amount:         tx.Amount,
		Currency:       string(tx.Currency),
		Timestamp:      testEpoch,
	}
}
