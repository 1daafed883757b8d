package buffer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/jittakal/poolstore/internal/errors"
	"github.com/jittakal/poolstore/internal/flush"
	pkgbuffer "github.com/jittakal/poolstore/pkg/buffer"
	"github.com/jittakal/poolstore/pkg/coord"
	"github.com/jittakal/poolstore/pkg/mutation"
)

// DefaultMaxPackageSize is the pool usage that triggers a drain.
const DefaultMaxPackageSize int64 = 40 << 20

const tracerName = "github.com/jittakal/poolstore/internal/buffer"

// Ensure Buffer satisfies the public interface.
var _ pkgbuffer.Buffer = (*Buffer)(nil)

// Registry appends into the active pool.
type Registry interface {
	Append(ctx context.Context, payload []byte) (coord.AppendResult, error)
}

// Drainer drains a pool if it is still active.
type Drainer interface {
	DrainPool(ctx context.Context, name string) (flush.Result, error)
}

// Validator checks a mutation before it is encoded.
type Validator interface {
	Validate(m *mutation.Mutation) error
}

// MetricsCollector defines the interface for buffer metrics.
type MetricsCollector interface {
	IncAppends()
	AddAppendedBytes(n int)
	IncAppendErrors(reason string)
	IncThresholdDrains()
}

// RetryConfig bounds waiting for a pool when the namespace is exhausted.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Config configures a Buffer.
type Config struct {
	MaxPackageSize int64
	Retry          RetryConfig
}

// Buffer appends mutations to the active pool.
type Buffer struct {
	registry  Registry
	drainer   Drainer
	cfg       Config
	logger    *slog.Logger
	metrics   MetricsCollector
	validator Validator
	tracer    trace.Tracer
}

// New creates a write-back buffer. metrics and validator may be nil.
func New(registry Registry, drainer Drainer, cfg Config, logger *slog.Logger, metrics MetricsCollector, validator Validator) (*Buffer, error) {
	if registry == nil || drainer == nil {
		return nil, errors.New("registry and drainer are required")
	}
	if cfg.MaxPackageSize <= 0 {
		cfg.MaxPackageSize = DefaultMaxPackageSize
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Buffer{
		registry:  registry,
		drainer:   drainer,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		validator: validator,
		tracer:    otel.Tracer(tracerName),
	}, nil
}

// Append buffers one serialized mutation. When the pool's usage is at or
// above MaxPackageSize after the append, the pool is drained before Append
// returns. Concurrent triggers for the same pool collapse into one drain
// because only one of them can claim it.
func (b *Buffer) Append(ctx context.Context, payload []byte) error {
	if len(payload) == 0 {
		return &apperrors.ValidationError{Field: "payload", Reason: "empty mutation"}
	}

	ctx, span := b.tracer.Start(ctx, "buffer.append",
		trace.WithAttributes(attribute.Int("payload.bytes", len(payload))))
	defer span.End()

	res, err := b.appendWithRetry(ctx, payload)
	if err != nil {
		b.incError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(attribute.String("pool.name", res.Pool), attribute.Int64("pool.used", res.Used))

	if b.metrics != nil {
		b.metrics.IncAppends()
		b.metrics.AddAppendedBytes(len(payload))
	}

	if res.Used >= b.cfg.MaxPackageSize {
		b.drain(ctx, res)
	}
	return nil
}

// AppendMutation validates, encodes and buffers m.
func (b *Buffer) AppendMutation(ctx context.Context, m *mutation.Mutation) error {
	if b.validator != nil {
		if err := b.validator.Validate(m); err != nil {
			b.incError(err)
			return err
		}
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	data, err := mutation.Encode(m)
	if err != nil {
		return err
	}
	return b.Append(ctx, data)
}

func (b *Buffer) appendWithRetry(ctx context.Context, payload []byte) (coord.AppendResult, error) {
	backoff := b.cfg.Retry.InitialBackoff
	for attempt := 1; ; attempt++ {
		res, err := b.registry.Append(ctx, payload)
		if err == nil || !errors.Is(err, apperrors.ErrPoolExhausted) || attempt >= b.cfg.Retry.MaxAttempts {
			return res, err
		}

		b.logger.Warn("pool namespace exhausted, waiting for a release",
			"attempt", attempt,
			"backoff", backoff)

		if err := wait(ctx, backoff); err != nil {
			return coord.AppendResult{}, fmt.Errorf("waiting for a free pool: %w", err)
		}
		backoff *= 2
		if b.cfg.Retry.MaxBackoff > 0 {
			backoff = min(backoff, b.cfg.Retry.MaxBackoff)
		}
	}
}

func (b *Buffer) drain(ctx context.Context, res coord.AppendResult) {
	if b.metrics != nil {
		b.metrics.IncThresholdDrains()
	}
	b.logger.Info("pool reached package size, draining",
		"pool", res.Pool,
		"bytes", res.Used,
		"max_package_size", b.cfg.MaxPackageSize)

	result, err := b.drainer.DrainPool(ctx, res.Pool)
	if err != nil {
		b.logger.Error("threshold drain failed",
			"pool", res.Pool,
			"drain_id", result.DrainID,
			"status", result.Status,
			"error", err)
	}
}

func (b *Buffer) incError(err error) {
	if b.metrics == nil {
		return
	}
	var (
		validation  *apperrors.ValidationError
		unavailable *apperrors.StoreUnavailableError
	)
	switch {
	case errors.As(err, &validation):
		b.metrics.IncAppendErrors("validation")
	case errors.As(err, &unavailable):
		b.metrics.IncAppendErrors("store_unavailable")
	case errors.Is(err, apperrors.ErrPoolExhausted):
		b.metrics.IncAppendErrors("pool_exhausted")
	default:
		b.metrics.IncAppendErrors("other")
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
