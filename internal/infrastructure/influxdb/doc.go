// Package influxdb records identity telemetry in InfluxDB v2.
//
// Two measurements are written:
//
//	identity_events    one point per domain event, tagged event_type and site
//	identity_sessions  one point per expired-session sweep
//
// Writes go through the client library's batching write API and never
// block the caller. Connect returns ErrDisabled when the integration is
// switched off, and callers treat that as "no telemetry".
package influxdb
