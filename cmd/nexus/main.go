// Nexus Core - credential lifecycle and session revocation service
//
// This is the main entry point for the Nexus Core server. It wires the
// credential codec, revocation registry, session tracker and HTTP
// gateway together, runs database migrations, seeds the first super
// admin on an empty database, and serves the API until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	_ "github.com/toitnexus/nexus-core/migrations"

	"github.com/toitnexus/nexus-core/internal/api"
	"github.com/toitnexus/nexus-core/internal/audit"
	"github.com/toitnexus/nexus-core/internal/auth"
	"github.com/toitnexus/nexus-core/internal/infrastructure/config"
	"github.com/toitnexus/nexus-core/internal/infrastructure/database"
	"github.com/toitnexus/nexus-core/internal/infrastructure/logging"
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
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main so failures
// flow through a single exit path.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Nexus Core",
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

	// Connect to Redis (optional shared revocation tier)
	var shared *redis.Client
	if cfg.Redis.Enabled {
		shared = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if pingErr := shared.Ping(ctx).Err(); pingErr != nil {
			return fmt.Errorf("connecting to redis: %w", pingErr)
		}
		defer func() {
			log.Info("closing redis connection")
			if closeErr := shared.Close(); closeErr != nil {
				log.Error("error closing redis", "error", closeErr)
			}
		}()
		log.Info("redis connected", "address", cfg.Redis.Address)
	} else {
		log.Info("redis disabled, revocation checks use cache and durable store only")
	}

	// Credential codec: independent secrets for the two credential kinds
	codec, err := auth.NewCodec(
		cfg.Auth.AccessSecret,
		cfg.Auth.RefreshSecret,
		cfg.Auth.AccessTTL(),
		cfg.Auth.RefreshTTL(),
	)
	if err != nil {
		return fmt.Errorf("creating credential codec: %w", err)
	}

	// Repositories and lifecycle components
	users := auth.NewUserRepository(db.DB)
	tenants := auth.NewTenantRepository(db.DB)
	revocations := auth.NewRevocationRepository(db.DB)
	sessions := auth.NewSessionRepository(db.DB)

	activities := audit.NewRepository(db.DB)

	registry := auth.NewRegistry(revocations, shared, log.Logger)
	tracker := auth.NewTracker(sessions, registry, log.Logger)
	service := auth.NewService(codec, users, tenants, tracker, registry, log.Logger)
	service.SetAudit(activities)

	// Background sweeps: expired revocation entries and dead sessions
	go registry.Run(ctx, cfg.Auth.SweepEvery())
	go tracker.Run(ctx, cfg.Auth.SweepEvery())

	// First boot on an empty database seeds a super admin
	if _, seedErr := auth.SeedSuperAdmin(ctx, users, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding super admin: %w", seedErr)
	}

	// Start API server
	server, err := api.New(api.Deps{
		Config:  cfg,
		Logger:  log,
		Auth:    service,
		Audit:   activities,
		DB:      db,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"host", cfg.API.Host,
		"port", cfg.API.Port,
		"tls", cfg.API.TLS.Enabled,
	)

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("Nexus Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses NEXUS_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("NEXUS_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
