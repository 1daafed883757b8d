// Package flush drains buffer pools into the relational engine.
//
// A drain claims a pool, waits a grace period, reads its buffered mutations
// and executes them as one transaction. A committed batch releases the pool
// back to the ready queue; a failed one rolls back and leaves the pool stuck
// with its contents intact until an operator retries it:
//
//	ready -> claimed -> draining -> released -> ready
//	                             -> stuck    -> (retry) claimed -> draining
package flush

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jittakal/poolstore/internal/database"
	apperrors "github.com/jittakal/poolstore/internal/errors"
	"github.com/jittakal/poolstore/pkg/mutation"
)

const (
	DefaultGracePeriod   = 5 * time.Second
	DefaultCommitTimeout = 30 * time.Second

	releaseAttempts = 3
	releaseBackoff  = 100 * time.Millisecond

	tracerName = "github.com/jittakal/poolstore/internal/flush"
)

// PoolRegistry is the part of the pool registry a drain uses.
type PoolRegistry interface {
	ClaimForDraining(ctx context.Context) (string, bool, error)
	ClaimPool(ctx context.Context, name string) (bool, error)
	Buffered(ctx context.Context, name string) ([][]byte, error)
	Release(ctx context.Context, name string) error
	MarkStuck(ctx context.Context, name string) error
	ClaimStuck(ctx context.Context, name string) (bool, error)
	StuckPools(ctx context.Context) ([]string, error)
}

// Executor runs a batch in one transaction.
type Executor interface {
	ExecBatch(ctx context.Context, stmts []database.Statement) error
	Dialect() database.Dialect
}

// StuckHandler is told about every batch that failed to commit.
type StuckHandler interface {
	HandleStuck(ctx context.Context, batch *mutation.Batch) error
}

// StuckHandlerFunc adapts a function to StuckHandler.
type StuckHandlerFunc func(ctx context.Context, batch *mutation.Batch) error

func (f StuckHandlerFunc) HandleStuck(ctx context.Context, batch *mutation.Batch) error {
	return f(ctx, batch)
}

// MetricsCollector defines the interface for drain metrics.
type MetricsCollector interface {
	IncDrains(status string)
	ObserveDrainDuration(seconds float64)
	ObserveBatchSize(count int)
}

// Config configures a Coordinator.
type Config struct {
	// GracePeriod bounds how long a drain waits for in-flight writers.
	GracePeriod time.Duration
	// CommitTimeout bounds the batch transaction. Zero disables the bound.
	CommitTimeout time.Duration
}

// Coordinator drains pools.
type Coordinator struct {
	registry PoolRegistry
	executor Executor
	cfg      Config
	handlers []StuckHandler
	logger   *slog.Logger
	metrics  MetricsCollector
	tracer   trace.Tracer
}

// NewCoordinator creates a drain coordinator.
func NewCoordinator(registry PoolRegistry, executor Executor, cfg Config, logger *slog.Logger, metrics MetricsCollector, handlers ...StuckHandler) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		registry: registry,
		executor: executor,
		cfg:      cfg,
		handlers: handlers,
		logger:   logger,
		metrics:  metrics,
		tracer:   otel.Tracer(tracerName),
	}
}

// AddStuckHandler registers h for subsequent stuck batches. It is not safe
// to call concurrently with drains.
func (c *Coordinator) AddStuckHandler(h StuckHandler) {
	c.handlers = append(c.handlers, h)
}

// Drain claims the active pool and flushes it. With no active pool it
// returns StatusNoop and a nil error.
func (c *Coordinator) Drain(ctx context.Context) (Result, error) {
	name, ok, err := c.registry.ClaimForDraining(ctx)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		c.record(Result{Status: StatusNoop})
		return Result{Status: StatusNoop}, nil
	}
	return c.drain(ctx, name, true)
}

// DrainPool flushes name if it is still the active pool, and is a no-op
// otherwise.
func (c *Coordinator) DrainPool(ctx context.Context, name string) (Result, error) {
	ok, err := c.registry.ClaimPool(ctx, name)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		c.logger.Debug("pool already claimed", "pool", name)
		c.record(Result{Pool: name, Status: StatusNoop})
		return Result{Pool: name, Status: StatusNoop}, nil
	}
	return c.drain(ctx, name, true)
}

// Retry drains a stuck pool again without a grace period. The pool leaves
// the stuck list while it is retried, so concurrent retries of the same pool
// commit its batch at most once; the loser gets errors.ErrPoolNotStuck. A
// retry that fails puts the pool back on the stuck list.
func (c *Coordinator) Retry(ctx context.Context, name string) (Result, error) {
	claimed, err := c.registry.ClaimStuck(ctx, name)
	if err != nil {
		return Result{}, err
	}
	if !claimed {
		return Result{}, fmt.Errorf("retry %s: %w", name, apperrors.ErrPoolNotStuck)
	}

	c.logger.Info("retrying stuck pool", "pool", name)
	return c.drain(ctx, name, false)
}

// Stuck lists pools whose batch failed to commit.
func (c *Coordinator) Stuck(ctx context.Context) ([]string, error) {
	return c.registry.StuckPools(ctx)
}

func (c *Coordinator) drain(ctx context.Context, name string, grace bool) (Result, error) {
	start := time.Now()
	res := Result{Pool: name, DrainID: uuid.NewString()}

	ctx, span := c.tracer.Start(ctx, "flush.drain", trace.WithAttributes(
		attribute.String("pool.name", name),
		attribute.String("drain.id", res.DrainID)))
	defer span.End()

	logger := c.logger.With("pool", name, "drain_id", res.DrainID)
	logger.Debug("pool state changed", "state", StateClaimed)

	if grace && c.cfg.GracePeriod > 0 {
		if err := sleep(ctx, c.cfg.GracePeriod); err != nil {
			c.markStuck(ctx, logger, name)
			res.Status = StatusStuck
			res.Duration = time.Since(start)
			c.record(res)
			span.SetStatus(codes.Error, err.Error())
			return res, fmt.Errorf("drain %s interrupted during grace period: %w", name, err)
		}
	}

	logger.Debug("pool state changed", "state", StateDraining)
	payloads, err := c.registry.Buffered(ctx, name)
	if err != nil {
		c.markStuck(ctx, logger, name)
		res.Status = StatusStuck
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}

	batch := &mutation.Batch{Pool: name, DrainID: res.DrainID, Payloads: payloads, CreatedAt: start.UTC()}
	res.Count = len(payloads)
	res.Bytes = batch.SizeBytes()
	span.SetAttributes(attribute.Int("batch.count", res.Count), attribute.Int64("batch.bytes", res.Bytes))

	if len(payloads) == 0 {
		if err := c.registry.Release(ctx, name); err != nil {
			c.markStuck(ctx, logger, name)
			res.Status = StatusStuck
			span.SetStatus(codes.Error, err.Error())
			return res, err
		}
		res.Status = StatusNoop
		res.Duration = time.Since(start)
		c.record(res)
		logger.Debug("pool state changed", "state", StateReleased, "mutations", 0)
		return res, nil
	}

	if err := c.commit(ctx, batch); err != nil {
		batch.Reason = err.Error()
		c.markStuck(ctx, logger, name)
		c.notifyStuck(ctx, logger, batch)

		res.Status = StatusStuck
		res.Duration = time.Since(start)
		c.record(res)
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch commit failed")
		logger.Error("batch commit failed, pool is stuck",
			"state", StateStuck,
			"mutations", res.Count,
			"bytes", res.Bytes,
			"error", err)
		return res, &apperrors.BatchCommitError{Pool: name, DrainID: res.DrainID, Count: res.Count, Err: err}
	}

	if err := c.releaseCommitted(ctx, logger, name); err != nil {
		span.SetStatus(codes.Error, err.Error())
		logger.Error("committed pool could not be released",
			"mutations", res.Count,
			"error", err)
		return res, fmt.Errorf("release after commit: %w", err)
	}

	res.Status = StatusReleased
	res.Duration = time.Since(start)
	c.record(res)
	logger.Info("pool drained",
		"state", StateReleased,
		"mutations", res.Count,
		"bytes", res.Bytes,
		"duration", res.Duration)
	return res, nil
}

func (c *Coordinator) commit(ctx context.Context, batch *mutation.Batch) error {
	ctx, span := c.tracer.Start(ctx, "flush.commit")
	defer span.End()

	dialect := c.executor.Dialect()
	stmts := make([]database.Statement, 0, len(batch.Payloads))
	for i, p := range batch.Payloads {
		m, err := mutation.Decode(p)
		if err != nil {
			return fmt.Errorf("mutation %d: %w", i, err)
		}
		st, err := database.StatementFor(dialect, m)
		if err != nil {
			return fmt.Errorf("mutation %d: %w", i, err)
		}
		stmts = append(stmts, st)
	}

	if c.cfg.CommitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CommitTimeout)
		defer cancel()
	}

	if err := c.executor.ExecBatch(ctx, stmts); err != nil {
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("commit timed out after %s: %w", c.cfg.CommitTimeout, err)
		}
		return err
	}
	return nil
}

// releaseCommitted returns a pool whose batch is durable to the ready queue.
// It retries a few times and ignores cancellation of ctx.
func (c *Coordinator) releaseCommitted(ctx context.Context, logger *slog.Logger, name string) error {
	ctx = context.WithoutCancel(ctx)
	backoff := releaseBackoff
	var err error
	for attempt := 1; attempt <= releaseAttempts; attempt++ {
		if err = c.registry.Release(ctx, name); err == nil {
			return nil
		}
		logger.Warn("release after commit failed",
			"attempt", attempt,
			"error", err)
		if attempt < releaseAttempts {
			_ = sleep(ctx, backoff)
			backoff *= 2
		}
	}
	return err
}

func (c *Coordinator) markStuck(ctx context.Context, logger *slog.Logger, name string) {
	if err := c.registry.MarkStuck(context.WithoutCancel(ctx), name); err != nil {
		logger.Error("failed to mark pool stuck", "error", err)
	}
}

func (c *Coordinator) notifyStuck(ctx context.Context, logger *slog.Logger, batch *mutation.Batch) {
	ctx = context.WithoutCancel(ctx)
	for _, h := range c.handlers {
		if err := h.HandleStuck(ctx, batch); err != nil {
			logger.Error("stuck handler failed", "error", err)
		}
	}
}

func (c *Coordinator) record(res Result) {
	if c.metrics == nil {
		return
	}
	c.metrics.IncDrains(string(res.Status))
	if res.Duration > 0 {
		c.metrics.ObserveDrainDuration(res.Duration.Seconds())
	}
	if res.Count > 0 {
		c.metrics.ObserveBatchSize(res.Count)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
