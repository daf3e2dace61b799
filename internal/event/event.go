// Package event defines domain events and the small buffer aggregates use
// to record them.
//
// Aggregates embed a Log. Every mutating method appends the events it
// emitted to that Log and also returns them, so callers can either act on
// the returned slice directly or drain the Log once the aggregate has been
// persisted:
//
//	auth, _ := auth.NewAuthentication(id, userID, now)
//	auth.IssueAccessToken(tok, ttl, now)
//	repo.Save(ctx, auth)
//	sink.Publish(ctx, auth.Drain())
package event

import (
	"context"
	"errors"
	"time"
)

// Event is an immutable fact about something that happened to an aggregate.
type Event interface {
	EventType() string
	AggregateID() string
	OccurredAt() time.Time
}

// Base carries the fields common to every event. Concrete events embed it.
type Base struct {
	Type      string    `json:"type"`
	Aggregate string    `json:"aggregate_id"`
	At        time.Time `json:"occurred_at"`
}

// NewBase builds a Base stamped at the given instant.
func NewBase(eventType, aggregateID string, at time.Time) Base {
	return Base{Type: eventType, Aggregate: aggregateID, At: at.UTC()}
}

// EventType returns the event type string, e.g. "TOKEN_ISSUED".
func (b Base) EventType() string { return b.Type }

// AggregateID returns the id of the aggregate that emitted the event.
func (b Base) AggregateID() string { return b.Aggregate }

// OccurredAt returns when the event happened.
func (b Base) OccurredAt() time.Time { return b.At }

// Recorder is implemented by anything holding undelivered events.
type Recorder interface {
	Drain() []Event
}

// Log is an ordered buffer of pending events. The zero value is ready to use.
//
// Thread Safety: not safe for concurrent use. Aggregates are loaded per
// request and never shared between goroutines.
type Log struct {
	pending []Event
}

// Record appends events in order.
func (l *Log) Record(events ...Event) {
	l.pending = append(l.pending, events...)
}

// Pending returns a copy of the buffered events without clearing them.
func (l *Log) Pending() []Event {
	out := make([]Event, len(l.pending))
	copy(out, l.pending)
	return out
}

// Drain returns the buffered events and clears the buffer.
func (l *Log) Drain() []Event {
	out := l.pending
	l.pending = nil
	return out
}

// Len returns the number of buffered events.
func (l *Log) Len() int {
	return len(l.pending)
}

// Sink publishes events after the write that produced them is durable.
type Sink interface {
	Publish(ctx context.Context, events []Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, events []Event) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, events []Event) error {
	return f(ctx, events)
}

// MultiSink publishes to every sink in order and joins their errors.
// A failing sink does not stop delivery to the others.
type MultiSink []Sink

// Publish delivers events to each sink.
func (m MultiSink) Publish(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard is a Sink that drops everything.
var Discard Sink = SinkFunc(func(context.Context, []Event) error { return nil })
