// Package eventbus fans domain events out to the service's side channels.
//
// Bus implements event.Sink. It serialises every event into an
// event.Envelope exactly once, so the MQTT message, the WebSocket frame,
// the telemetry point and the audit row for one event share the same
// envelope id. Each destination is a Destination; slow ones (the broker,
// the audit table) are wrapped in Async so request handlers never wait on
// them.
//
//	bus := eventbus.New(eventbus.Config{IDs: gen, Metrics: m, Logger: log},
//		eventbus.NewLogDestination(log),
//		eventbus.NewHubDestination(hub),
//		auditQueue,
//	)
//	accounts := auth.NewAccounts(auth.AccountsDeps{Sink: bus, ...})
package eventbus
