package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jittakal/poolstore/internal/buffer"
	"github.com/jittakal/poolstore/internal/config"
	"github.com/jittakal/poolstore/internal/config/dto"
	"github.com/jittakal/poolstore/internal/coord"
	"github.com/jittakal/poolstore/internal/database"
	"github.com/jittakal/poolstore/internal/flush"
	"github.com/jittakal/poolstore/internal/kafka"
	"github.com/jittakal/poolstore/internal/observability"
	"github.com/jittakal/poolstore/internal/partition"
	"github.com/jittakal/poolstore/internal/pool"
	"github.com/jittakal/poolstore/internal/storage"
	"github.com/jittakal/poolstore/internal/validator"
	pkgcoord "github.com/jittakal/poolstore/pkg/coord"
)

// runtimeEnv is what every command needs before touching a dependency.
type runtimeEnv struct {
	cfg      *dto.ApplicationConfig
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
}

func loadEnv(path string) (*runtimeEnv, error) {
	cfg, err := config.NewLoader().Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	registry := prometheus.NewRegistry()
	return &runtimeEnv{
		cfg:      cfg,
		logger:   observability.NewLogger(loggingConfig(cfg.Observability.Logging)),
		registry: registry,
		metrics:  observability.NewMetrics(registry),
	}, nil
}

type closer struct {
	name string
	fn   func() error
}

// app holds the connected core components shared by serve and the operator
// commands.
type app struct {
	env         *runtimeEnv
	store       pkgcoord.Store
	engine      *database.Engine
	pools       *pool.Registry
	partitions  *partition.Manager
	coordinator *flush.Coordinator
	buffer      *buffer.Buffer

	closers []closer
}

// openApp connects the coordination store and the database and builds the
// registry, coordinator, partition manager and buffer on top of them. With
// archive or alarms enabled, stuck batches are also handed to those sinks.
func openApp(ctx context.Context, env *runtimeEnv) (*app, error) {
	cfg := env.cfg
	logger := env.logger
	a := &app{env: env}

	store, err := openStore(ctx, cfg.Redis, logger)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.addCloser("coordination-store", store.Close)

	engine, err := database.Open(ctx, databaseConfig(cfg.Database), logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.engine = engine
	a.addCloser("database", engine.Close)

	a.pools, err = pool.NewRegistry(store, poolConfig(cfg.Pool), logger, env.metrics)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create pool registry: %w", err)
	}

	partCfg, err := partitionConfig(cfg.Partition)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.partitions, err = partition.NewManager(engine, partCfg, logger, env.metrics)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create partition manager: %w", err)
	}

	a.coordinator = flush.NewCoordinator(a.pools, engine, flushConfig(cfg.Flush), logger, env.metrics)
	if err := a.attachStuckHandlers(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.buffer, err = buffer.New(a.pools, a.coordinator, bufferConfig(cfg), logger, env.metrics,
		validator.NewMutationValidator(cfg.Pool.MaxMutationBytes))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create buffer: %w", err)
	}

	return a, nil
}

func openStore(ctx context.Context, cfg dto.RedisConfig, logger *slog.Logger) (pkgcoord.Store, error) {
	if cfg.InMemory {
		logger.Warn("using in-memory coordination store; pools are not shared between processes")
		return coord.NewMemoryStore(), nil
	}
	store, err := coord.NewRedisStore(ctx, redisConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return store, nil
}

func (a *app) attachStuckHandlers(ctx context.Context) error {
	cfg := a.env.cfg

	if cfg.Archive.Enabled {
		archiver, err := storage.Open(ctx, archiveConfig(cfg), a.env.logger, a.env.metrics)
		if err != nil {
			return fmt.Errorf("failed to open stuck batch archive: %w", err)
		}
		a.coordinator.AddStuckHandler(archiver)
		a.addCloser("archive", archiver.Close)
	}

	if cfg.Kafka.Enabled && cfg.Kafka.AlarmTopic != "" {
		producer, err := kafka.NewSyncProducer(cfg.Kafka.BootstrapServers, securityConfig(cfg.Kafka))
		if err != nil {
			return fmt.Errorf("failed to create alarm producer: %w", err)
		}
		alarms := kafka.NewAlarmPublisher(producer, cfg.Kafka.AlarmTopic, a.env.logger)
		a.coordinator.AddStuckHandler(alarms)
		a.addCloser("alarm-publisher", alarms.Close)
	}
	return nil
}

func (a *app) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
	a.env.logger.Debug("registered cleanup", "component", name)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.env.logger.Error("cleanup failed", "component", c.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// withTimeout bounds one-shot operator commands.
func withTimeout(ctx context.Context, cfg *dto.ApplicationConfig) (context.Context, context.CancelFunc) {
	timeout := time.Duration(cfg.Shutdown.ForceTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	return context.WithTimeout(ctx, timeout)
}
