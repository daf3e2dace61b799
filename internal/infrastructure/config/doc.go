// Package config loads and validates the identity service configuration.
//
// Values come from built-in defaults, then a YAML file, then IDENTITY_*
// environment variables. Secrets (JWT key, broker and InfluxDB
// credentials) should be supplied through the environment rather than the
// file.
//
// Usage:
//
//	cfg, err := config.Load(config.PathFromEnv())
//	if err != nil {
//	    return err
//	}
package config
