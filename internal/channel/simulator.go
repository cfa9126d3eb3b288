package channel

import (
	"context"
	"log/slog"
	"time"

	"premium-collections/internal/clock"
	"premium-collections/internal/domain"
	"premium-collections/internal/errors"
)

const StatusAccepted = "accepted"

// Simulator stands in for the aggregator in development. Every request is
// accepted after a fixed latency unless the context ends first.
type Simulator struct {
	latency time.Duration
	clock   clock.Clock
	ids     *idGenerator
	logger  *slog.Logger
}

func NewSimulator(latency time.Duration, clk clock.Clock, logger *slog.Logger) *Simulator {
	return &Simulator{
		latency: latency,
		clock:   clk,
		ids:     newIDGenerator(),
		logger:  logger,
	}
}

func (s *Simulator) Initiate(ctx context.Context, req Request) (*Response, error) {
	if !req.Channel.Valid() {
		return nil, errors.ErrChannelUnavailable.WithDetails("unsupported channel " + string(req.Channel))
	}

	timer := time.NewTimer(s.latency)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		s.logger.Warn("Simulated channel call interrupted",
			"channel", req.Channel, "reference", req.Reference, "error", ctx.Err())
		return nil, classify(ctx, ctx.Err())
	}

	id := s.ids.New(s.clock.Now())
	resp := &Response{
		ProviderTransactionID: id,
		ProviderReference:     providerReference(req.Channel, id),
		Status:                StatusAccepted,
	}

	s.logger.Info("Simulated channel accepted payment",
		"channel", req.Channel,
		"reference", req.Reference,
		"provider_reference", resp.ProviderReference)
	return resp, nil
}

// providerReference mimics the reference shape each provider hands back.
func providerReference(ch domain.Channel, id string) string {
	switch ch {
	case domain.ChannelMpesa:
		return "ws_CO_" + id
	default:
		return "AM" + id
	}
}
