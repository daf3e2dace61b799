// Package auth provides user accounts and the session token lifecycle for
// the identity service.
//
// The central type is Authentication: one per user, holding at most one
// access token and one refresh token. It moves through four states:
//
//	CREATED ──issue──▶ AUTHENTICATED ──refresh──▶ ROTATED
//	    │                    │                       │
//	    └────────────────revoke─────────────────────▶ REVOKED
//
// Aggregate methods are pure in-memory transitions. Each returns the
// domain events it emitted and records them on the embedded event.Log;
// callers persist first, then drain and publish.
//
// Also provided:
//   - Email and password policy value objects
//   - Argon2id and bcrypt credential verification, selected per stored hash
//   - Opaque (UUID) and HS256 JWT token generators
//   - SQLite repositories for users and sessions (tokens stored as SHA-256 digests)
//   - The Accounts service for registration, password change and activation
package auth
