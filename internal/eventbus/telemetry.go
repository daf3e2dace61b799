package eventbus

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/event"
)

// EventWriter is the part of *influxdb.Client the telemetry destination uses.
type EventWriter interface {
	WriteEvent(eventType, aggregateID string, tags map[string]string, at time.Time)
}

// telemetryTags are payload fields promoted to tags. Each has a small,
// fixed set of values.
var telemetryTags = []string{"reason", "token_type", "valid", "status"}

// TelemetryDestination writes one point per event.
type TelemetryDestination struct {
	writer EventWriter
}

// NewTelemetryDestination writes through writer.
func NewTelemetryDestination(writer EventWriter) *TelemetryDestination {
	return &TelemetryDestination{writer: writer}
}

func (d *TelemetryDestination) Name() string { return "telemetry" }

func (d *TelemetryDestination) Deliver(_ context.Context, envelopes []event.Envelope) error {
	for _, env := range envelopes {
		fields, err := env.Fields()
		if err != nil {
			return err
		}
		d.writer.WriteEvent(env.Type, env.AggregateID, tagsFrom(fields), env.OccurredAt)
	}
	return nil
}

func tagsFrom(fields map[string]any) map[string]string {
	tags := make(map[string]string)
	for _, key := range telemetryTags {
		switch v := fields[key].(type) {
		case string:
			if v != "" {
				tags[key] = v
			}
		case bool:
			tags[key] = strconv.FormatBool(v)
		case nil:
		default:
			tags[key] = fmt.Sprint(v)
		}
	}
	return tags
}
