// Hearth Core - Device State Coordinator
//
// This is the main entry point for the Hearth Core application.
// Hearth polls external vendor devices, keeps an immutable snapshot of
// each device's state, and fans changes out to MQTT, InfluxDB, and
// WebSocket clients.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/hearthd/hearth-core/migrations"

	"github.com/hearthd/hearth-core/internal/api"
	"github.com/hearthd/hearth-core/internal/audit"
	"github.com/hearthd/hearth-core/internal/auth"
	"github.com/hearthd/hearth-core/internal/device"
	"github.com/hearthd/hearth-core/internal/hub"
	"github.com/hearthd/hearth-core/internal/infrastructure/config"
	"github.com/hearthd/hearth-core/internal/infrastructure/database"
	"github.com/hearthd/hearth-core/internal/infrastructure/influxdb"
	"github.com/hearthd/hearth-core/internal/infrastructure/logging"
	"github.com/hearthd/hearth-core/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Hearth Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Initialise device registry
	deviceRepo := device.NewSQLiteRepository(db.DB)
	deviceRegistry := device.NewRegistry(deviceRepo)
	deviceRegistry.SetLogger(log)

	if refreshErr := deviceRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}

	// Upsert devices declared in config.yaml
	if seedErr := seedDevices(ctx, cfg.Devices, deviceRegistry, log); seedErr != nil {
		return fmt.Errorf("seeding configured devices: %w", seedErr)
	}
	log.Info("device registry initialised", "devices", deviceRegistry.GetDeviceCount())

	// User accounts, refresh tokens, and the audit trail share the SQLite handle
	userRepo := auth.NewUserRepository(db.DB)
	tokenRepo := auth.NewTokenRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// First boot: create the admin account with a generated password
	if _, seedErr := auth.SeedAdmin(ctx, userRepo, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin account: %w", seedErr)
	}

	// Connect to MQTT broker. Hearth degrades gracefully without it:
	// push devices won't attach and state republish is skipped.
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		log.Warn("MQTT unavailable, continuing without broker", "error", err)
		mqttClient = nil
	} else {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	}

	// Connect to InfluxDB (optional)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start the poll supervisor
	poller := hub.New(deviceRegistry, brokerOrNil(mqttClient), historyOrNil(influxClient), hub.Config{
		DefaultInterval: secondsOrZero(cfg.Polling.DefaultInterval),
		BackoffUnit:     secondsOrZero(cfg.Polling.BackoffUnit),
		MaxBackoff:      secondsOrZero(cfg.Polling.MaxBackoff),
	})
	poller.SetLogger(log)
	if startErr := poller.Start(ctx); startErr != nil {
		return fmt.Errorf("starting poll supervisor: %w", startErr)
	}
	defer func() {
		log.Info("stopping poll supervisor")
		poller.Stop()
	}()
	log.Info("poll supervisor started", "devices", len(poller.AttachedSlugs()))

	// Start the API server
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Registry: deviceRegistry,
		Poller:   poller,
		Users:    userRepo,
		Tokens:   tokenRepo,
		Audit:    auditRepo,
		MQTT:     mqttClient,
		History:  influxClient,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Poll supervisor
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if connected)
	// 5. Database

	log.Info("Hearth Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HEARTH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HEARTH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// seedDevices upserts devices declared in config.yaml into the registry.
// Existing devices (matched by slug) are updated in place so endpoint or
// credential changes in the file take effect on restart.
func seedDevices(ctx context.Context, devices []config.DeviceConfig, registry *device.Registry, log *logging.Logger) error {
	for _, dc := range devices {
		slug := dc.Slug
		if slug == "" {
			slug = device.GenerateSlug(dc.Name)
		}

		existing, err := registry.GetDeviceBySlug(ctx, slug)
		switch {
		case err == nil:
			existing.Name = dc.Name
			existing.Adapter = device.Adapter(dc.Adapter)
			existing.Endpoint = dc.Endpoint
			existing.Token = dc.Token
			existing.PollInterval = dc.PollInterval
			existing.Labels = dc.Labels
			if updateErr := registry.UpdateDevice(ctx, existing); updateErr != nil {
				return fmt.Errorf("updating device %q: %w", slug, updateErr)
			}
			log.Debug("configured device updated", "slug", slug)

		case errors.Is(err, device.ErrDeviceNotFound):
			dev := &device.Device{
				Name:         dc.Name,
				Slug:         slug,
				Adapter:      device.Adapter(dc.Adapter),
				Endpoint:     dc.Endpoint,
				Token:        dc.Token,
				PollInterval: dc.PollInterval,
				Labels:       dc.Labels,
			}
			if createErr := registry.CreateDevice(ctx, dev); createErr != nil {
				return fmt.Errorf("creating device %q: %w", slug, createErr)
			}
			log.Info("configured device created", "slug", slug, "adapter", dc.Adapter)

		default:
			return fmt.Errorf("looking up device %q: %w", slug, err)
		}
	}
	return nil
}

// secondsOrZero converts a config value in seconds to a Duration.
// Zero passes through so the hub applies its own default.
func secondsOrZero(s int) time.Duration {
	return time.Duration(s) * time.Second
}

// brokerOrNil avoids storing a typed nil in the hub's Broker interface.
func brokerOrNil(client *mqtt.Client) hub.Broker {
	if client == nil {
		return nil
	}
	return client
}

// historyOrNil avoids storing a typed nil in the hub's History interface.
func historyOrNil(client *influxdb.Client) hub.History {
	if client == nil {
		return nil
	}
	return client
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if unavailable)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
