package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	_ "github.com/nerrad567/bumper/migrations"

	"github.com/nerrad567/bumper/internal/account"
	"github.com/nerrad567/bumper/internal/api"
	"github.com/nerrad567/bumper/internal/audit"
	"github.com/nerrad567/bumper/internal/auth"
	"github.com/nerrad567/bumper/internal/bus"
	"github.com/nerrad567/bumper/internal/device"
	"github.com/nerrad567/bumper/internal/infrastructure/config"
	"github.com/nerrad567/bumper/internal/infrastructure/database"
	"github.com/nerrad567/bumper/internal/infrastructure/influxdb"
	"github.com/nerrad567/bumper/internal/infrastructure/logging"
	"github.com/nerrad567/bumper/internal/infrastructure/mqtt"
	"github.com/nerrad567/bumper/internal/maintenance"
	"github.com/nerrad567/bumper/internal/metrics"
	"github.com/nerrad567/bumper/internal/presence"
	"github.com/nerrad567/bumper/internal/relay"
)

// errBusDisabled is returned by the relay bus when MQTT is switched off.
var errBusDisabled = errors.New("message bus disabled")

// disabledBus stands in for the helper bot when MQTT is disabled. No bot is
// ever bus-connected, so the relay fails fast before reaching Publish.
type disabledBus struct{}

func (disabledBus) Publish(context.Context, relay.Command, string) error { return errBusDisabled }
func (disabledBus) Connected() bool                                      { return false }

// relayBus is what the relay publishes through and the status page reports on.
type relayBus interface {
	relay.Bus
	api.BusStatus
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows the command to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - opts: Command-line overrides
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, opts *options) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting bumper",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", opts.resolveConfigPath(),
		"auth_mode", cfg.Auth.Mode,
		"announce", cfg.AnnounceAddress(),
	)

	// Open database
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
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

	// Accounts and bots
	accounts := account.NewSQLiteRepository(db.DB)
	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB), accounts, device.Options{
		Permissive:     cfg.Auth.Permissive(),
		DefaultAccount: cfg.Auth.DefaultAccount,
	})
	registry.SetLogger(log.Component("registry"))
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading bot registry: %w", refreshErr)
	}
	log.Info("bot registry initialised", "bots", registry.GetStats().Total)

	m := metrics.New()

	sessions := auth.NewManager(auth.NewTokenRepository(db.DB), cfg.Auth.TokenTTL)
	sessions.SetLogger(log.Component("auth"))
	sessions.SetObserver(m)

	hub := api.NewHub(cfg.Events, log.Component("events"))
	table := presence.NewTable()
	journal := audit.NewSQLiteRepository(db.DB)

	// Message bus and the helper bot that bridges it
	var (
		busClient relayBus = disabledBus{}
		helper    *bus.HelperBot
		checks    = []component{{"database", db}}
	)
	if cfg.MQTT.Enabled {
		mqttClient, connErr := mqtt.Connect(cfg.MQTT)
		if connErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", connErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT connected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		helper = bus.New(mqttClient, registry, mqttClient.QoS())
		helper.SetLogger(log.Component("helperbot"))
		helper.SetBroadcaster(hub)
		busClient = helper
		checks = append(checks, component{"mqtt", mqttClient}, component{"helper bot", helper})
	} else {
		log.Warn("MQTT disabled, bus-connected bots cannot be reached")
	}

	relayer := relay.New(registry, busClient, cfg.Relay.Deadline, cfg.Relay.MaxPending)
	relayer.SetLogger(log.Component("relay"))
	observers := relay.Observers{m, hub}

	if helper != nil {
		helper.SetReplySink(relayer)
		if startErr := helper.Start(ctx); startErr != nil {
			return fmt.Errorf("starting helper bot: %w", startErr)
		}
		defer func() {
			if stopErr := helper.Stop(); stopErr != nil {
				log.Error("error stopping helper bot", "error", stopErr)
			}
		}()
	}

	// Optional telemetry sink
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		observers = append(observers, influxClient)
		checks = append(checks, component{"influxdb", influxClient})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}
	relayer.SetObserver(observers)

	if gaugeErr := registerGauges(m, relayer, hub, registry, table); gaugeErr != nil {
		return fmt.Errorf("registering gauges: %w", gaugeErr)
	}

	// Background maintenance
	sweeper := maintenance.New(cfg.Sweeper.Interval, sweepTasks(cfg, sweepDeps{
		sessions: sessions,
		table:    table,
		helper:   helper,
		registry: registry,
		influx:   influxClient,
		audit:    journal,
	})...)
	sweeper.SetLogger(log.Component("sweeper"))
	sweeper.SetObserver(m)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// HTTP listeners
	srv, err := api.New(api.Deps{
		Config:   cfg,
		Logger:   log.Component("api"),
		Registry: registry,
		Sessions: sessions,
		Relay:    relayer,
		Presence: table,
		Bus:      busClient,
		DB:       db,
		Metrics:  m,
		Hub:      hub,
		Audit:    journal,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := srv.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	for _, addr := range srv.Addrs() {
		log.Info("listening", "address", addr.String())
	}

	checks = append(checks, component{"api", srv})
	// Listeners already accept requests here; a shutdown signal racing the
	// check must not turn into a startup failure.
	checkCtx, cancelCheck := context.WithTimeout(context.WithoutCancel(ctx), healthCheckTimeout)
	checkErr := healthCheck(checkCtx, checks...)
	cancelCheck()
	if checkErr != nil {
		return fmt.Errorf("health check failed: %w", checkErr)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API server, sweeper, InfluxDB, helper bot, MQTT, database.
	return nil
}

// healthCheckTimeout bounds the startup health check.
const healthCheckTimeout = 5 * time.Second

// healthChecker is implemented by every subsystem verified at startup.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// component names a subsystem for health check errors.
type component struct {
	name    string
	checker healthChecker
}

// healthCheck verifies each component in order.
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, components ...component) error {
	for _, c := range components {
		if err := c.checker.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return nil
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if opts.listen != "" {
		cfg.OverrideListenHost(opts.listen)
	}
	if opts.announce != "" {
		cfg.Site.Announce = opts.announce
	}
	if opts.debug {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// sweepDeps carries the state the sweeper prunes. helper, influx and
// audit may be nil when their subsystems are disabled.
type sweepDeps struct {
	sessions *auth.Manager
	table    *presence.Table
	helper   *bus.HelperBot
	registry *device.Registry
	influx   *influxdb.Client
	audit    audit.Repository
}

// sweepTasks lists the housekeeping run on every tick.
func sweepTasks(cfg *config.Config, d sweepDeps) []maintenance.Task {
	tasks := []maintenance.Task{
		{
			Name: "tokens",
			Run: func(ctx context.Context) (int, error) {
				n, err := d.sessions.RevokeExpiredTokens(ctx)
				return int(n), err
			},
		},
		{
			Name: "presence",
			Run: func(_ context.Context) (int, error) {
				silent := d.table.ListSilentSessions(cfg.Sweeper.PresenceSilence)
				for _, s := range silent {
					d.table.RemoveSession(s.AccountID)
				}
				return len(silent), nil
			},
		},
	}
	if d.helper != nil {
		tasks = append(tasks, maintenance.Task{
			Name: "bus-presence",
			Run: func(ctx context.Context) (int, error) {
				return d.helper.PruneSilent(ctx, cfg.Sweeper.BusSilence)
			},
		})
	}
	if d.influx != nil && d.registry != nil {
		tasks = append(tasks, maintenance.Task{
			Name: "telemetry",
			Run: func(_ context.Context) (int, error) {
				d.influx.WriteBotStats(d.registry.GetStats())
				return 0, nil
			},
		})
	}
	if d.audit != nil && cfg.Sweeper.AuditRetention > 0 {
		tasks = append(tasks, maintenance.Task{
			Name: "audit",
			Run: func(ctx context.Context) (int, error) {
				n, err := d.audit.DeleteBefore(ctx, time.Now().Add(-cfg.Sweeper.AuditRetention))
				return int(n), err
			},
		})
	}
	return tasks
}

// registerGauges exposes live counts that are cheaper to read on scrape
// than to track on every change.
func registerGauges(m *metrics.Metrics, relayer *relay.Relay, hub *api.Hub, registry *device.Registry, table *presence.Table) error {
	gauges := []struct {
		subsystem, name, help string
		fn                    func() float64
	}{
		{"relay", "pending", "Commands waiting for a bot reply.", func() float64 { return float64(relayer.Pending()) }},
		{"events", "clients", "Connected websocket clients.", func() float64 { return float64(hub.ClientCount()) }},
		{"bots", "total", "Known bots.", func() float64 { return float64(registry.GetStats().Total) }},
		{"bots", "bus_connected", "Bots connected to the message bus.", func() float64 { return float64(registry.GetStats().BusConnected) }},
		{"presence", "sessions", "Legacy presence sessions.", func() float64 { return float64(table.Len()) }},
	}
	for _, g := range gauges {
		if err := m.RegisterGauge(g.subsystem, g.name, g.help, g.fn); err != nil {
			return err
		}
	}
	return nil
}
