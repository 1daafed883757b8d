package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jittakal/poolstore/internal/flush"
	"github.com/jittakal/poolstore/internal/kafka"
	"github.com/jittakal/poolstore/internal/observability"
	"github.com/jittakal/poolstore/internal/server"
	"github.com/jittakal/poolstore/internal/validator"
)

func newServeCommand(load func() (*runtimeEnv, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume mutations from Kafka and flush pools to the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), env)
		},
	}
}

func serve(parent context.Context, env *runtimeEnv) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg := env.cfg
	logger := env.logger

	logger.Info("starting poolstore",
		"version", cfg.Application.Version,
		"environment", cfg.Application.Environment,
		"commit", commit,
	)

	shutdownTracing, err := observability.InitTracing(parent, tracingConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to initialise tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	}()

	a, err := openApp(parent, env)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Pool.ResetOnStart {
		if err := a.pools.Reset(parent); err != nil {
			return fmt.Errorf("failed to reset pool registry: %w", err)
		}
	}

	checker := server.NewChecker(2*time.Second).
		Add("redis", a.store).
		Add("database", a.engine)
	httpServer, err := server.NewServer(serverConfig(cfg.Observability), checker, env.registry, logger)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}
	httpServer.HandleStatus("/pools", func(ctx context.Context) (any, error) {
		return a.pools.Snapshot(ctx)
	})
	httpServer.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctx)
	}()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	processErr := make(chan error, 1)
	ingesting := cfg.Kafka.Enabled
	if ingesting {
		if err := startIngestion(ctx, a, processErr); err != nil {
			return err
		}
	} else {
		logger.Warn("kafka ingestion is disabled; serving health and metrics only")
	}

	logger.Info("application started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("received termination signal", "signal", sig.String())
	case <-parent.Done():
		logger.Info("context cancelled")
	case err := <-processErr:
		ingesting = false
		if err != nil {
			logger.Error("ingestion stopped", "error", err)
			runErr = err
		}
	}

	logger.Info("initiating graceful shutdown")
	checker.SetDraining()
	cancel()

	// The active pool is drained only after the processor stopped appending.
	if ingesting {
		select {
		case <-processErr:
		case <-time.After(cfg.Shutdown.GracePeriod()):
			logger.Warn("processor did not stop within the grace period")
		}
	}

	if cfg.Flush.DrainOnShutdown {
		drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Shutdown.GracePeriod()+flushConfig(cfg.Flush).GracePeriod)
		res, err := a.coordinator.Drain(drainCtx)
		drainCancel()
		if err != nil {
			logger.Error("shutdown drain failed", "error", err)
		} else if res.Status != flush.StatusNoop {
			logger.Info("shutdown drain finished",
				"pool", res.Pool,
				"status", res.Status,
				"mutations", res.Count,
			)
		}
	}

	logger.Info("application stopped")
	return runErr
}

// startIngestion wires the consumer, DLQ and processor and runs the
// processor in the background. Its exit error is sent on done.
func startIngestion(ctx context.Context, a *app, done chan<- error) error {
	cfg := a.env.cfg
	logger := a.env.logger

	consumer, err := kafka.NewSaramaConsumer(consumerConfig(cfg.Kafka), logger, a.env.metrics)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	a.addCloser("kafka-consumer", consumer.Close)

	dlq, err := kafka.NewDLQPublisher(cfg.Kafka.BootstrapServers, securityConfig(cfg.Kafka), kafka.DLQConfig{
		Enabled:     cfg.Kafka.DLQ.Enabled,
		TopicSuffix: cfg.Kafka.DLQ.TopicSuffix,
	}, logger, cfg.Application.Name)
	if err != nil {
		return fmt.Errorf("failed to create DLQ publisher: %w", err)
	}
	a.addCloser("dlq-publisher", dlq.Close)

	if err := consumer.Subscribe(ctx, cfg.Kafka.Consumer.Topics); err != nil {
		return fmt.Errorf("failed to subscribe to topics: %w", err)
	}
	messages, errs, err := consumer.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	processor := kafka.NewProcessor(a.buffer, a.partitions, validator.NewEnvelopeValidator(), dlq,
		processorConfig(cfg.Retry), logger, a.env.metrics)
	go func() {
		done <- processor.Run(ctx, messages, errs)
	}()
	return nil
}
