package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when IDENTITY_CONFIG is unset.
const DefaultPath = "configs/config.yaml"

// Token formats.
const (
	TokenFormatOpaque = "opaque"
	TokenFormatJWT    = "jwt"
)

// Config is the root configuration structure for the identity service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Session   SessionConfig   `yaml:"session"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

// SiteConfig identifies the deployment. ID prefixes MQTT client ids and
// tags telemetry points.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains event stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// RedisConfig selects the distributed lock backend. When disabled, locks
// are in-process only.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	// LockTTL bounds how long a crashed holder can keep a lock, in seconds.
	LockTTL   int    `yaml:"lock_ttl"`
	KeyPrefix string `yaml:"key_prefix"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains credential and token settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
	// TokenFormat is "opaque" (random UUIDs) or "jwt" (signed access tokens).
	TokenFormat string `yaml:"token_format"`
	// AccessTokenTTL and RefreshTokenTTL are in minutes.
	AccessTokenTTL    int    `yaml:"access_token_ttl"`
	RefreshTokenTTL   int    `yaml:"refresh_token_ttl"`
	PasswordAlgorithm string `yaml:"password_algorithm"`
	BcryptCost        int    `yaml:"bcrypt_cost"`
	IDGenerator       string `yaml:"id_generator"`
}

// JWTConfig contains JWT signing settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// SessionConfig controls the expired-session sweep.
type SessionConfig struct {
	SweepInterval      int  `yaml:"sweep_interval"` // seconds
	PublishValidations bool `yaml:"publish_validations"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// BootstrapConfig names the administrator account created on first boot.
type BootstrapConfig struct {
	AdminEmail string `yaml:"admin_email"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern IDENTITY_SECTION_KEY, for
// example IDENTITY_DATABASE_PATH or IDENTITY_REDIS_URL.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// PathFromEnv returns IDENTITY_CONFIG or DefaultPath.
func PathFromEnv() string {
	if v := os.Getenv("IDENTITY_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "identity-001",
			Name: "Identity",
		},
		Database: DatabaseConfig{
			Path:        "./data/identity.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "identityd",
			},
			QoS:         1,
			TopicPrefix: "identity",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Redis: RedisConfig{
			URL:       "redis://localhost:6379/0",
			LockTTL:   10,
			KeyPrefix: "identity:lock:",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			TokenFormat:       TokenFormatOpaque,
			AccessTokenTTL:    30,
			RefreshTokenTTL:   14 * 24 * 60,
			PasswordAlgorithm: "argon2id",
			BcryptCost:        12,
			IDGenerator:       "uuid",
		},
		Session: SessionConfig{
			SweepInterval: 300,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "identity",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"IDENTITY_DATABASE_PATH":       &cfg.Database.Path,
		"IDENTITY_MQTT_HOST":           &cfg.MQTT.Broker.Host,
		"IDENTITY_MQTT_USERNAME":       &cfg.MQTT.Auth.Username,
		"IDENTITY_MQTT_PASSWORD":       &cfg.MQTT.Auth.Password,
		"IDENTITY_API_HOST":            &cfg.API.Host,
		"IDENTITY_INFLUXDB_URL":        &cfg.InfluxDB.URL,
		"IDENTITY_INFLUXDB_TOKEN":      &cfg.InfluxDB.Token,
		"IDENTITY_REDIS_URL":           &cfg.Redis.URL,
		"IDENTITY_LOG_LEVEL":           &cfg.Logging.Level,
		"IDENTITY_JWT_SECRET":          &cfg.Security.JWT.Secret,
		"IDENTITY_TOKEN_FORMAT":        &cfg.Security.TokenFormat,
		"IDENTITY_ADMIN_EMAIL":         &cfg.Bootstrap.AdminEmail,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"IDENTITY_API_PORT":          &cfg.API.Port,
		"IDENTITY_MQTT_PORT":         &cfg.MQTT.Broker.Port,
		"IDENTITY_ACCESS_TOKEN_TTL":  &cfg.Security.AccessTokenTTL,
		"IDENTITY_REFRESH_TOKEN_TTL": &cfg.Security.RefreshTokenTTL,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", key, err)
		}
		*dst = n
	}

	bools := map[string]*bool{
		"IDENTITY_MQTT_ENABLED":     &cfg.MQTT.Enabled,
		"IDENTITY_INFLUXDB_ENABLED": &cfg.InfluxDB.Enabled,
		"IDENTITY_REDIS_ENABLED":    &cfg.Redis.Enabled,
	}
	for key, dst := range bools {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", key, err)
		}
		*dst = b
	}
	return nil
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Redis.Enabled && c.Redis.URL == "" {
		errs = append(errs, "redis.url is required when redis is enabled")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if c.Security.AccessTokenTTL <= 0 || c.Security.RefreshTokenTTL <= 0 {
		errs = append(errs, "security token TTLs must be positive")
	}

	switch c.Security.PasswordAlgorithm {
	case "argon2id", "bcrypt":
	default:
		errs = append(errs, "security.password_algorithm must be argon2id or bcrypt")
	}

	switch c.Security.TokenFormat {
	case TokenFormatOpaque:
	case TokenFormatJWT:
		// Forged access tokens would pass signature checks with a weak key.
		const minJWTSecretLength = 32
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required for jwt tokens (set IDENTITY_JWT_SECRET)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters")
		}
	default:
		errs = append(errs, "security.token_format must be opaque or jwt")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ReadTimeout returns the API read timeout as a Duration.
func (c APIConfig) ReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// WriteTimeout returns the API write timeout as a Duration.
func (c APIConfig) WriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// IdleTimeout returns the API idle timeout as a Duration.
func (c APIConfig) IdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}

// AccessTTL returns the access token lifetime.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.Security.AccessTokenTTL) * time.Minute
}

// RefreshTTL returns the refresh token lifetime.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.Security.RefreshTokenTTL) * time.Minute
}

// SweepInterval returns the expired-session sweep period.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Session.SweepInterval) * time.Second
}

// LockTTL returns the Redis lock lease.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Redis.LockTTL) * time.Second
}
