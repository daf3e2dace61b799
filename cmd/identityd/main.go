// identityd is the identity service: account registration, token
// lifecycle (login, refresh, logout, validation) and role-based access
// control, served over HTTP with a WebSocket event stream.
//
// Domain events are persisted to the audit trail and optionally fanned out
// to MQTT and InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	_ "github.com/nerrad567/gray-logic-identity/migrations"

	"github.com/nerrad567/gray-logic-identity/internal/api"
	"github.com/nerrad567/gray-logic-identity/internal/audit"
	"github.com/nerrad567/gray-logic-identity/internal/auth"
	"github.com/nerrad567/gray-logic-identity/internal/eventbus"
	"github.com/nerrad567/gray-logic-identity/internal/ids"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/lock"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-identity/internal/rbac"
	"github.com/nerrad567/gray-logic-identity/internal/session"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		err = runMigrate(ctx, os.Args[2:], os.Stdout)
	} else {
		err = run(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runMigrate handles "identityd migrate [up|down|status]" against the
// configured database, then exits without starting the service.
func runMigrate(ctx context.Context, args []string, out io.Writer) error {
	action := "up"
	if len(args) > 0 {
		action = args[0]
	}
	if action != "up" && action != "down" && action != "status" {
		return fmt.Errorf("unknown migrate action %q (want up, down or status)", action)
	}

	cfg, err := config.Load(config.PathFromEnv())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // short-lived

	switch action {
	case "up":
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		fmt.Fprintln(out, "migrations applied")
	case "down":
		version, err := db.Rollback(ctx)
		if err != nil {
			return err
		}
		if version == "" {
			fmt.Fprintln(out, "nothing to roll back")
		} else {
			fmt.Fprintf(out, "rolled back %s\n", version)
		}
	case "status":
		states, err := db.MigrationStatus(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
		for _, st := range states {
			applied := "pending"
			if st.Applied() {
				applied = st.AppliedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", st.Version, st.Name, applied)
		}
		return w.Flush()
	}
	return nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// run is the application proper, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting identityd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := config.PathFromEnv()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "site", cfg.Site.ID)

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	health := map[string]api.HealthChecker{"database": db}

	locker, closeLocker, err := newLocker(ctx, cfg.Redis, cfg.LockTTL(), log)
	if err != nil {
		return err
	}
	defer closeLocker()

	idGen, err := ids.FromName(cfg.Security.IDGenerator)
	if err != nil {
		return fmt.Errorf("configuring id generator: %w", err)
	}
	verifier, err := newVerifier(cfg.Security)
	if err != nil {
		return err
	}
	m := metrics.New(cfg.Metrics.Namespace)
	if !cfg.Metrics.Enabled {
		m = nil
	}
	m.WatchDB(db.DB)

	mqttClient, err := connectMQTT(cfg.MQTT, log)
	if err != nil {
		return err
	}
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		health["mqtt"] = mqttClient
	}

	influxClient, err := connectInfluxDB(cfg.InfluxDB, cfg.Site.ID, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		health["influxdb"] = influxClient
	}

	// Event pipeline. Slow destinations sit behind bounded queues so a
	// stalled broker never holds up a login.
	var workers sync.WaitGroup
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer func() {
		stopWorkers()
		workers.Wait()
	}()
	async := func(d eventbus.Destination) eventbus.Destination {
		a := eventbus.NewAsync(d, eventbus.DefaultQueueSize, log.Component("eventbus"))
		workers.Add(1)
		go func() {
			defer workers.Done()
			a.Run(workerCtx)
		}()
		return a
	}

	auditRepo := audit.NewSQLiteRepository(db.DB)
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	go hub.Run(ctx)

	destinations := []eventbus.Destination{
		eventbus.NewLogDestination(log.Component("events")),
		eventbus.NewHubDestination(hub),
		async(eventbus.NewAuditDestination(auditRepo)),
	}
	if mqttClient != nil {
		destinations = append(destinations, async(eventbus.NewMQTTDestination(mqttClient, mqttClient.Topics())))
	}
	if influxClient != nil {
		destinations = append(destinations, eventbus.NewTelemetryDestination(influxClient))
	}
	bus := eventbus.New(eventbus.Config{IDs: idGen, Metrics: m, Logger: log.Component("eventbus")}, destinations...)
	log.Info("event bus ready", "destinations", bus.Destinations())

	users := auth.NewUserRepository(db.DB)
	accounts := auth.NewAccounts(auth.AccountsDeps{
		Users:    users,
		Verifier: verifier,
		Locker:   locker,
		Sink:     bus,
		IDs:      idGen,
		Logger:   log.Component("accounts"),
	})
	if cfg.Bootstrap.AdminEmail != "" {
		if _, seedErr := auth.SeedAdmin(ctx, accounts, cfg.Bootstrap.AdminEmail, log.Component("bootstrap")); seedErr != nil {
			return fmt.Errorf("seeding admin: %w", seedErr)
		}
	}

	engine := rbac.NewEngine(rbac.EngineDeps{
		Permissions: rbac.NewPermissionRepository(db.DB),
		Roles:       rbac.NewRoleRepository(db.DB),
		Assignments: rbac.NewAssignmentRepository(db.DB, time.Now),
		Locker:      locker,
		Sink:        bus,
		IDs:         idGen,
		Logger:      log.Component("rbac"),
	})
	if cfg.Bootstrap.AdminEmail != "" {
		if err := grantAdministrator(ctx, accounts, engine, cfg.Bootstrap.AdminEmail, log); err != nil {
			return err
		}
	}

	sessions := session.NewService(session.Deps{
		Sessions: auth.NewAuthenticationRepository(db.DB),
		Users:    users,
		Verifier: verifier,
		Tokens:   newTokenGenerator(cfg.Security),
		Locker:   locker,
		Sink:     bus,
		IDs:      idGen,
		Metrics:  m,
		Config: session.Config{
			AccessTTL:          cfg.AccessTTL(),
			RefreshTTL:         cfg.RefreshTTL(),
			PublishValidations: cfg.Session.PublishValidations,
		},
		Logger: log.Component("session"),
	})

	sweeper := &session.Sweeper{
		Service:  sessions,
		Interval: cfg.SweepInterval(),
		Logger:   log.Component("sweeper"),
	}
	if influxClient != nil {
		sweeper.Recorder = influxClient
	}
	go sweeper.Run(ctx)

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log,
		Sessions: sessions,
		Accounts: accounts,
		RBAC:     engine,
		Audit:    auditRepo,
		Metrics:  m,
		Hub:      hub,
		Health:   health,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("identityd started",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"token_format", cfg.Security.TokenFormat,
	)
	<-ctx.Done()
	log.Info("shutdown signal received")
	return nil
}

// newLocker returns a Redis-backed locker when Redis is enabled, so
// several identityd processes can share one database safely, and an
// in-process locker otherwise.
func newLocker(ctx context.Context, cfg config.RedisConfig, ttl time.Duration, log *logging.Logger) (lock.Locker, func(), error) {
	if !cfg.Enabled {
		log.Info("Redis disabled, using in-process locks")
		return lock.NewLocalLocker(), func() {}, nil
	}

	client, err := lock.Connect(ctx, cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to Redis: %w", err)
	}
	log.Info("Redis connected, using distributed locks")

	locker := lock.NewRedisLocker(client, lock.RedisOptions{
		TTL:    ttl,
		Prefix: cfg.KeyPrefix,
		Logger: log.Component("lock"),
	})
	return locker, func() {
		if err := client.Close(); err != nil {
			log.Error("error closing Redis", "error", err)
		}
	}, nil
}

// grantAdministrator gives the bootstrap account the administrator role.
// An address that names no account is only logged: SeedAdmin does not
// create it once other users exist.
func grantAdministrator(ctx context.Context, accounts *auth.Accounts, engine *rbac.Engine, email string, logger *logging.Logger) error {
	log := logger.Component("bootstrap")
	admin, err := accounts.GetByEmail(ctx, email)
	if errors.Is(err, auth.ErrUserNotFound) {
		log.Warn("bootstrap admin account not found, administrator role not granted", "email", email)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading bootstrap admin: %w", err)
	}
	role, err := engine.EnsureAdministrator(ctx, admin.ID)
	if err != nil {
		return fmt.Errorf("granting administrator role: %w", err)
	}
	log.Info("administrator role ensured", "user_id", admin.ID, "role_id", role.ID)
	return nil
}

func newVerifier(cfg config.SecurityConfig) (*auth.Verifier, error) {
	v, err := auth.NewVerifier(cfg.PasswordAlgorithm, auth.Argon2id{}, auth.Bcrypt{Cost: cfg.BcryptCost})
	if err != nil {
		return nil, fmt.Errorf("configuring password hashing: %w", err)
	}
	return v, nil
}

func newTokenGenerator(cfg config.SecurityConfig) auth.TokenGenerator {
	if cfg.TokenFormat == config.TokenFormatJWT {
		return auth.JWTTokenGenerator{Secret: []byte(cfg.JWT.Secret), Issuer: cfg.JWT.Issuer}
	}
	return auth.OpaqueTokenGenerator{}
}

func connectMQTT(cfg config.MQTTConfig, log *logging.Logger) (*mqtt.Client, error) {
	if !cfg.Enabled {
		log.Info("MQTT disabled")
		return nil, nil
	}

	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttLog := log.Component("mqtt")
	client.SetLogger(mqttLog)
	client.SetOnConnect(func() {
		mqttLog.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		mqttLog.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
		"topic_prefix", client.Topics().Prefix,
	)
	return client, nil
}

func connectInfluxDB(cfg config.InfluxDBConfig, site string, log *logging.Logger) (*influxdb.Client, error) {
	if !cfg.Enabled {
		log.Info("InfluxDB disabled")
		return nil, nil
	}

	client, err := influxdb.Connect(cfg, site)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	influxLog := log.Component("influxdb")
	client.SetOnError(func(err error) {
		influxLog.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)
	return client, nil
}
