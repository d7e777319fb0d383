// SpoolDock Core - Printer Fleet and Filament Manager
//
// This is the main entry point for the SpoolDock Core application.
// SpoolDock manages a fleet of Bambu Lab printers over their local MQTT
// interface: live telemetry, flow calibration, spool inventory, and
// staged spool-to-slot assignments.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/spooldock/spooldock-core/migrations"

	"github.com/spooldock/spooldock-core/internal/api"
	"github.com/spooldock/spooldock-core/internal/auth"
	"github.com/spooldock/spooldock-core/internal/discovery"
	"github.com/spooldock/spooldock-core/internal/history"
	"github.com/spooldock/spooldock-core/internal/infrastructure/config"
	"github.com/spooldock/spooldock-core/internal/infrastructure/database"
	"github.com/spooldock/spooldock-core/internal/infrastructure/influxdb"
	"github.com/spooldock/spooldock-core/internal/infrastructure/logging"
	"github.com/spooldock/spooldock-core/internal/inventory"
	"github.com/spooldock/spooldock-core/internal/printer"
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
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting SpoolDock Core",
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
	db, err := database.Open(ctx, database.Config{
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

	// Repositories
	spoolRepo := inventory.NewSQLiteSpoolRepository(db.DB)
	printerRepo := inventory.NewSQLitePrinterRepository(db.DB)
	keyRepo := auth.NewSQLiteKeyRepository(db.DB)

	// Printer fleet
	fleet := printer.NewFleet(printer.Options{
		GracePeriod:    time.Duration(cfg.Printers.GracePeriod) * time.Second,
		ConnectTimeout: time.Duration(cfg.Printers.ConnectTimeout) * time.Second,
		QoS:            byte(cfg.Printers.QoS),
		Logger:         log,
	})
	defer func() {
		log.Info("disconnecting fleet")
		fleet.DisconnectAll()
	}()

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	var recorder *history.Recorder
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

		recorder = history.NewRecorder(influxClient)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Discovery listener (optional)
	var discoverySource api.DiscoverySource
	if cfg.Discovery.Enabled {
		listener := discovery.New(cfg.Discovery, log)
		if startErr := listener.Start(ctx); startErr != nil {
			return fmt.Errorf("starting discovery: %w", startErr)
		}
		defer func() {
			log.Info("stopping discovery")
			if closeErr := listener.Close(); closeErr != nil {
				log.Error("error closing discovery", "error", closeErr)
			}
		}()
		discoverySource = discoveryAdapter{listener}
	} else {
		log.Info("discovery disabled")
	}

	// API server
	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Security:  cfg.Security,
		Logger:    log,
		Fleet:     fleet,
		Spools:    spoolRepo,
		Printers:  printerRepo,
		Keys:      keyRepo,
		History:   recorder,
		Discovery: discoverySource,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Reconnect previously registered printers in the background. Printers
	// that are offline fail individually without blocking startup.
	go autoConnect(ctx, cfg.Printers, fleet, printerRepo, log)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, server, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Discovery (if enabled)
	// 3. InfluxDB (if enabled)
	// 4. Fleet
	// 5. Database

	log.Info("SpoolDock Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SPOOLDOCK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SPOOLDOCK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// autoConnect dials every printer flagged for auto-connect, after the
// configured startup delay.
func autoConnect(ctx context.Context, cfg config.PrintersConfig, fleet *printer.Fleet, repo inventory.PrinterRepository, log *logging.Logger) {
	if cfg.AutoConnectDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(cfg.AutoConnectDelay) * time.Second):
		}
	}

	printers, err := repo.ListAutoConnect(ctx)
	if err != nil {
		log.Error("loading auto-connect printers", "error", err)
		return
	}
	if len(printers) == 0 {
		return
	}

	log.Info("auto-connecting printers", "count", len(printers))
	for _, p := range printers {
		if ctx.Err() != nil {
			return
		}
		if err := fleet.Connect(p.Serial, p.IPAddress, p.AccessCode, p.Name); err != nil {
			log.Warn("auto-connect failed",
				"serial", p.Serial, "name", p.Name, "error", err)
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, server *api.Server, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// discoveryAdapter bridges the discovery listener's printer type to the
// API server's view of discovered printers.
type discoveryAdapter struct {
	listener *discovery.Listener
}

// Discovered implements api.DiscoverySource.
func (a discoveryAdapter) Discovered() []api.DiscoveredPrinter {
	seen := a.listener.Discovered()
	out := make([]api.DiscoveredPrinter, len(seen))
	for i, p := range seen {
		out[i] = api.DiscoveredPrinter{
			Serial:    p.Serial,
			Name:      p.Name,
			Model:     p.Model,
			IPAddress: p.IPAddress,
			LastSeen:  p.LastSeen,
		}
	}
	return out
}
