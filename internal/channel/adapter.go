package channel

import (
	"context"
	"crypto/rand"
	stderrors "errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"premium-collections/internal/domain"
	"premium-collections/internal/errors"
)

// Request asks a channel to start collecting a payment from a subscriber.
type Request struct {
	Channel     domain.Channel
	Amount      int64
	Currency    domain.Currency
	Subscriber  string
	Reference   string
	Description string
}

// Response is the channel's acknowledgement of a started collection.
type Response struct {
	ProviderTransactionID string
	ProviderReference     string
	Status                string
}

// Adapter starts payments on a mobile-money channel. Implementations return
// ErrChannelTimeout or ErrChannelUnavailable on failure.
type Adapter interface {
	Initiate(ctx context.Context, req Request) (*Response, error)
}

// idGenerator produces monotonic ULIDs; ulid.MonotonicEntropy is not safe for
// concurrent use on its own.
type idGenerator struct {
	mu      sync.Mutex
	entropy io.Reader
}

func newIDGenerator() *idGenerator {
	return &idGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *idGenerator) New(at time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), g.entropy).String()
}

// classify maps a failed call to the channel error taxonomy.
func classify(ctx context.Context, err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.ErrChannelTimeout.Wrap(err)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.ErrChannelTimeout.Wrap(err)
	}
	return errors.ErrChannelUnavailable.Wrap(err)
}
