// README: Transport contract plus fan-out and asynchronous queue adapters.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"herodispatch/internal/metrics"
)

var (
	ErrDelivery  = errors.New("notification delivery failed")
	ErrQueueFull = errors.New("notification queue full")
)

// Transport hands an envelope to a delivery channel. The scheduler calls
// Deliver while holding an incident lock, so implementations used there must
// not block; wrap slow transports in an Async.
type Transport interface {
	Deliver(ctx context.Context, env Envelope) error
}

type TransportFunc func(ctx context.Context, env Envelope) error

func (f TransportFunc) Deliver(ctx context.Context, env Envelope) error { return f(ctx, env) }

// Fanout delivers to every transport and joins their errors.
type Fanout []Transport

func (f Fanout) Deliver(ctx context.Context, env Envelope) error {
	var errs []error
	for _, t := range f {
		if err := t.Deliver(ctx, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Async queues envelopes in a bounded buffer drained by worker goroutines.
// Deliver never blocks: a full queue drops the envelope.
type Async struct {
	next    Transport
	queue   chan Envelope
	workers int
	timeout time.Duration
	logger  zerolog.Logger
}

func NewAsync(next Transport, size, workers int, logger zerolog.Logger) *Async {
	if size <= 0 {
		size = 1
	}
	if workers <= 0 {
		workers = 1
	}
	return &Async{
		next:    next,
		queue:   make(chan Envelope, size),
		workers: workers,
		timeout: 10 * time.Second,
		logger:  logger.With().Str("component", "notify_async").Logger(),
	}
}

func (a *Async) Deliver(_ context.Context, env Envelope) error {
	select {
	case a.queue <- env:
		return nil
	default:
		metrics.Notifications.WithLabelValues(env.Event.Kind(), metrics.OutcomeDropped).Inc()
		return fmt.Errorf("%w: %s for %s", ErrQueueFull, env.Event.Kind(), env.Recipient.ID)
	}
}

// Run drains the queue until ctx is cancelled.
func (a *Async) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < a.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.work(ctx)
		}()
	}
	wg.Wait()
	return nil
}

func (a *Async) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-a.queue:
			a.send(env)
		}
	}
}

func (a *Async) send(env Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	if err := a.next.Deliver(ctx, env); err != nil {
		metrics.Notifications.WithLabelValues(env.Event.Kind(), metrics.OutcomeFailed).Inc()
		a.logger.Warn().Err(err).
			Str("event", env.Event.Kind()).
			Str("incident_id", env.IncidentID.String()).
			Str("recipient_id", env.Recipient.ID.String()).
			Msg("notification delivery failed")
		return
	}
	metrics.Notifications.WithLabelValues(env.Event.Kind(), metrics.OutcomeDelivered).Inc()
}
