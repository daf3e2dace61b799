package eventbus

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/nerrad567/gray-logic-identity/internal/event"
)

// DefaultQueueSize bounds an Async destination's backlog in batches.
const DefaultQueueSize = 256

// Async decouples a slow destination from the publisher. Deliver queues
// the batch and returns; Run writes queued batches serially. When the
// queue is full the batch is dropped and a warning logged.
type Async struct {
	next    Destination
	queue   chan []event.Envelope
	logger  *slog.Logger
	dropped atomic.Int64
}

// NewAsync wraps next with a queue of size batches (DefaultQueueSize when
// size <= 0).
func NewAsync(next Destination, size int, logger *slog.Logger) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Async{next: next, queue: make(chan []event.Envelope, size), logger: logger}
}

// Name reports the wrapped destination's name.
func (a *Async) Name() string { return a.next.Name() }

// Deliver enqueues envelopes without blocking.
func (a *Async) Deliver(_ context.Context, envelopes []event.Envelope) error {
	select {
	case a.queue <- envelopes:
	default:
		a.dropped.Add(1)
		a.logger.Warn("event queue full, dropping batch",
			"destination", a.next.Name(),
			"events", len(envelopes),
		)
	}
	return nil
}

// Dropped returns the number of batches discarded because the queue was full.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Run drains the queue until ctx is cancelled, then flushes whatever is
// still queued before returning.
func (a *Async) Run(ctx context.Context) {
	for {
		select {
		case batch := <-a.queue:
			a.write(batch)
		case <-ctx.Done():
			for {
				select {
				case batch := <-a.queue:
					a.write(batch)
				default:
					return
				}
			}
		}
	}
}

func (a *Async) write(batch []event.Envelope) {
	// Delivery outlives the publishing request.
	if err := a.next.Deliver(context.Background(), batch); err != nil {
		a.logger.Error("event delivery failed",
			"destination", a.next.Name(),
			"events", len(batch),
			"error", err,
		)
	}
}
