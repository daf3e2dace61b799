package eventbus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nerrad567/gray-logic-identity/internal/audit"
	"github.com/nerrad567/gray-logic-identity/internal/event"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/mqtt"
)

// LogDestination writes one debug line per event.
type LogDestination struct {
	logger *slog.Logger
}

// NewLogDestination logs through logger.
func NewLogDestination(logger *slog.Logger) *LogDestination {
	return &LogDestination{logger: logger}
}

func (d *LogDestination) Name() string { return "log" }

func (d *LogDestination) Deliver(ctx context.Context, envelopes []event.Envelope) error {
	for _, env := range envelopes {
		d.logger.DebugContext(ctx, "domain event",
			"event_id", env.ID,
			"event_type", env.Type,
			"aggregate_id", env.AggregateID,
		)
	}
	return nil
}

// Broadcaster pushes a payload to WebSocket clients subscribed to channel.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// HubDestination broadcasts each envelope on a channel named after its
// event type.
type HubDestination struct {
	hub Broadcaster
}

// NewHubDestination broadcasts through hub.
func NewHubDestination(hub Broadcaster) *HubDestination {
	return &HubDestination{hub: hub}
}

func (d *HubDestination) Name() string { return "websocket" }

func (d *HubDestination) Deliver(_ context.Context, envelopes []event.Envelope) error {
	for _, env := range envelopes {
		d.hub.Broadcast(env.Type, env)
	}
	return nil
}

// JSONPublisher is the part of *mqtt.Client the MQTT destination uses.
type JSONPublisher interface {
	PublishJSON(topic string, v any) error
}

// MQTTDestination publishes each envelope to <prefix>/event/<type>.
type MQTTDestination struct {
	client JSONPublisher
	topics mqtt.Topics
}

// NewMQTTDestination publishes through client under topics.
func NewMQTTDestination(client JSONPublisher, topics mqtt.Topics) *MQTTDestination {
	return &MQTTDestination{client: client, topics: topics}
}

func (d *MQTTDestination) Name() string { return "mqtt" }

// Deliver stops at the first failure; the remaining envelopes of the
// batch are not sent.
func (d *MQTTDestination) Deliver(_ context.Context, envelopes []event.Envelope) error {
	for _, env := range envelopes {
		if err := mqtt.ValidateSegment(env.Type); err != nil {
			return fmt.Errorf("event %s: %w", env.ID, err)
		}
		if err := d.client.PublishJSON(d.topics.Event(env.Type), env); err != nil {
			return fmt.Errorf("event %s: %w", env.ID, err)
		}
	}
	return nil
}

// AuditDestination appends envelopes to the audit log, one transaction
// per batch.
type AuditDestination struct {
	repo audit.Repository
}

// NewAuditDestination writes to repo.
func NewAuditDestination(repo audit.Repository) *AuditDestination {
	return &AuditDestination{repo: repo}
}

func (d *AuditDestination) Name() string { return "audit" }

func (d *AuditDestination) Deliver(ctx context.Context, envelopes []event.Envelope) error {
	entries := make([]*audit.Entry, len(envelopes))
	for i, env := range envelopes {
		entries[i] = &audit.Entry{
			ID:          env.ID,
			EventType:   env.Type,
			AggregateID: env.AggregateID,
			Payload:     env.Payload,
			OccurredAt:  env.OccurredAt,
		}
	}
	return d.repo.Append(ctx, entries...)
}
