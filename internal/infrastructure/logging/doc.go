// Package logging provides structured logging for the identity service.
//
// It wraps log/slog. Every record carries the service name and version,
// JSON is the production format and text is for development.
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("session opened", "user_id", id)
//
// Attributes whose key mentions a password, token, secret or
// authorization header are replaced with [REDACTED] before output.
// Callers should still log identifiers rather than credentials.
package logging
