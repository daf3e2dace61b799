package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementEvents   = "identity_events"
	MeasurementSessions = "identity_sessions"
)

// WriteEvent records one domain event occurrence. The event type and any
// extra tags are indexed; the aggregate id is stored as a field to keep
// series cardinality bounded.
func (c *Client) WriteEvent(eventType, aggregateID string, tags map[string]string, at time.Time) {
	t := map[string]string{"event_type": eventType}
	for k, v := range tags {
		t[k] = v
	}
	c.WritePointWithTime(MeasurementEvents, t, map[string]interface{}{
		"aggregate_id": aggregateID,
		"count":        1,
	}, at)
}

// WriteSweep records the outcome of one expired-session sweep.
func (c *Client) WriteSweep(removed int, at time.Time) {
	c.WritePointWithTime(MeasurementSessions, map[string]string{"operation": "sweep"},
		map[string]interface{}{"removed": removed}, at)
}

// WritePoint writes a point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a point at timestamp. Points are dropped while
// the client is closed.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, c.withSite(tags), fields, timestamp)
	c.writeAPI.WritePoint(point)
}

func (c *Client) withSite(tags map[string]string) map[string]string {
	if c.site == "" {
		return tags
	}
	out := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		out[k] = v
	}
	if _, ok := out["site"]; !ok {
		out["site"] = c.site
	}
	return out
}
