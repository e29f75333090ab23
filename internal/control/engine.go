// Package control wires configuration into a running resilience engine
// and manages its lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/vietddude/sentinel/internal/core/config"
	"github.com/vietddude/sentinel/internal/core/domain"
	"github.com/vietddude/sentinel/internal/core/worker"
	"github.com/vietddude/sentinel/internal/infra/cache"
	"github.com/vietddude/sentinel/internal/infra/events"
	redisclient "github.com/vietddude/sentinel/internal/infra/redis"
	"github.com/vietddude/sentinel/internal/infra/storage"
	"github.com/vietddude/sentinel/internal/infra/storage/memory"
	"github.com/vietddude/sentinel/internal/infra/storage/postgres"
	"github.com/vietddude/sentinel/internal/resilience/coordinator"
)

// Config holds the engine configuration.
type Config struct {
	Port      int
	Redis     redisclient.Config
	Database  postgres.Config
	Retention config.RetentionConfig
	Monitor   config.MonitorConfig
	Events    config.EventsConfig
	Services  []domain.ServiceRegistration
}

// Engine is the main application struct that manages the resilience
// coordinator lifecycle.
type Engine struct {
	cfg         Config
	coord       *coordinator.Coordinator
	server      *Server
	pruner      *worker.Pruner
	redisClient *redisclient.Client
	db          *postgres.DB
	log         *slog.Logger
	cancel      context.CancelFunc
}

// NewEngine creates an Engine with all dependencies initialized.
func NewEngine(cfg Config) (*Engine, error) {
	// 1. Initialize Storage
	var eventRepo storage.FailureEventRepository
	var attemptRepo storage.RecoveryAttemptRepository
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run migrations
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		eventRepo = postgres.NewEventRepo(db)
		attemptRepo = postgres.NewAttemptRepo(db)
		slog.Info("Using PostgreSQL audit storage")
	} else {
		eventRepo = memory.NewEventRepo()
		attemptRepo = memory.NewAttemptRepo()
		slog.Info("Using in-memory audit storage")
	}

	// 2. Initialize Redis (shared cache + event stream)
	var redisClient *redisclient.Client
	var shared cache.Cache
	var sink events.Sink = events.LogSink{}

	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, shared cache disabled", "error", err)
		} else {
			shared = redisClient
			if cfg.Events.Stream != "" {
				sink = events.NewStreamSink(redisClient, cfg.Events.Stream)
			}
		}
	}

	// 3. Initialize Coordinator
	coord := coordinator.New(coordinator.Options{
		Sink:             sink,
		LocalCache:       cache.NewMemory(),
		SharedCache:      shared,
		EventRepo:        eventRepo,
		AttemptRepo:      attemptRepo,
		EventRetention:   cfg.Retention.Events,
		AttemptRetention: cfg.Retention.Attempts,
		RegistryTick:     cfg.Monitor.Tick,
	})

	// 4. Register configured services
	for _, svc := range cfg.Services {
		if err := coord.RegisterService(svc); err != nil {
			return nil, fmt.Errorf("failed to register service %s: %w", svc.Name, err)
		}
	}

	retention := cfg.Retention.Events
	if cfg.Retention.Attempts > 0 && cfg.Retention.Attempts < retention {
		retention = cfg.Retention.Attempts
	}

	return &Engine{
		cfg:         cfg,
		coord:       coord,
		server:      NewServer(coord, cfg.Port),
		pruner:      worker.NewPruner(coord, retention),
		redisClient: redisClient,
		db:          db,
		log:         slog.Default(),
	}, nil
}

// Coordinator exposes the resilience coordinator for programmatic use.
func (e *Engine) Coordinator() *coordinator.Coordinator {
	return e.coord
}

// Start starts the engine and all its background tasks.
func (e *Engine) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	go func() {
		if err := e.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Error("Ops server failed", "error", err)
		}
	}()

	go e.coord.Registry().Run(runCtx)
	go e.pruner.Start(runCtx)

	e.log.Info("Engine started", "port", e.cfg.Port, "services", len(e.cfg.Services))
	return nil
}

// Stop stops the engine gracefully: background loops finish their current
// tick before exiting.
func (e *Engine) Stop(ctx context.Context) error {
	e.log.Info("Stopping Engine...")

	if e.cancel != nil {
		e.cancel()
	}

	if e.redisClient != nil {
		if err := e.redisClient.Close(); err != nil {
			e.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			e.log.Warn("Failed to close database", "error", err)
		}
	}

	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return e.server.Stop(stopCtx)
}
