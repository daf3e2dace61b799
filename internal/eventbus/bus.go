package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nerrad567/gray-logic-identity/internal/event"
	"github.com/nerrad567/gray-logic-identity/internal/ids"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/metrics"
)

// Destination receives serialised events.
type Destination interface {
	Name() string
	Deliver(ctx context.Context, envelopes []event.Envelope) error
}

// Config holds the Bus collaborators. IDs defaults to UUIDs and Logger to
// slog.Default; Metrics may be nil.
type Config struct {
	IDs     ids.Generator
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Bus is an event.Sink that delivers to every registered Destination.
type Bus struct {
	ids          ids.Generator
	metrics      *metrics.Metrics
	logger       *slog.Logger
	destinations []Destination
}

// New builds a Bus over destinations. Nil destinations are skipped.
func New(cfg Config, destinations ...Destination) *Bus {
	b := &Bus{ids: cfg.IDs, metrics: cfg.Metrics, logger: cfg.Logger}
	if b.ids == nil {
		b.ids = ids.UUID{}
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	for _, d := range destinations {
		if d != nil {
			b.destinations = append(b.destinations, d)
		}
	}
	return b
}

// Publish encodes events and hands them to each destination in
// registration order. An event that cannot be encoded is dropped and
// reported; the rest are still delivered. Destination errors are joined.
func (b *Bus) Publish(ctx context.Context, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}

	var errs []error
	envelopes := make([]event.Envelope, 0, len(events))
	for _, e := range events {
		env, err := event.ToEnvelope(b.ids.NewID(), e)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		b.metrics.ObserveEvent(env.Type)
		envelopes = append(envelopes, env)
	}
	if len(envelopes) == 0 {
		return errors.Join(errs...)
	}

	for _, d := range b.destinations {
		if err := d.Deliver(ctx, envelopes); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Destinations lists the registered destination names.
func (b *Bus) Destinations() []string {
	names := make([]string, len(b.destinations))
	for i, d := range b.destinations {
		names[i] = d.Name()
	}
	return names
}
