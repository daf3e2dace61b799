// Package api implements the HTTP REST API and WebSocket event stream for
// the identity service.
//
// This package provides:
//   - Token endpoints (login, refresh, logout, validate) over session.Service
//   - Account, role, permission and assignment management over auth.Accounts
//     and rbac.Engine
//   - A read-only view of the audit trail
//   - A WebSocket hub that streams domain events by type
//
// # Security
//
// Every route except health, metrics, login, refresh and registration
// requires "Authorization: Bearer <access token>". The WebSocket endpoint
// also accepts the token as ?token= because browsers cannot set headers on
// the upgrade request.
//
// Credential and token failures all answer 401 with a fixed message.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
