package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the serialised form of an event on the bus, the WebSocket
// stream and the audit log. ID is assigned by the publisher so consumers
// can drop redeliveries.
type Envelope struct {
	ID          string          `json:"id,omitempty"`
	Type        string          `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload"`
}

// ToEnvelope serialises e under the given envelope id. The payload is the
// JSON encoding of the concrete event value.
func ToEnvelope(id string, e Event) (Envelope, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshalling %s payload: %w", e.EventType(), err)
	}
	return Envelope{
		ID:          id,
		Type:        e.EventType(),
		AggregateID: e.AggregateID(),
		OccurredAt:  e.OccurredAt().UTC(),
		Payload:     payload,
	}, nil
}

// Fields decodes the payload into a generic map.
func (e Envelope) Fields() (map[string]any, error) {
	var m map[string]any
	if len(e.Payload) == 0 {
		return map[string]any{}, nil
	}
	if err := json.Unmarshal(e.Payload, &m); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", e.Type, err)
	}
	return m, nil
}
