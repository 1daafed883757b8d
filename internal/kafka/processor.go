package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	apperrors "github.com/jittakal/poolstore/internal/errors"
	"github.com/jittakal/poolstore/pkg/consumer"
	"github.com/jittakal/poolstore/pkg/mutation"
)

// DLQ reasons.
const (
	ReasonMalformed        = "malformed_envelope"
	ReasonValidationFailed = "validation_failed"
	ReasonPartitionFailed  = "partition_failed"
)

// Appender buffers one mutation.
type Appender interface {
	AppendMutation(ctx context.Context, m *mutation.Mutation) error
}

// PartitionResolver returns the table a keyword/uid mutation belongs in.
type PartitionResolver interface {
	CreatePartitionIfNeeded(ctx context.Context, keyword, uid string) (string, error)
}

// EnvelopeValidator validates an envelope before its data is decoded.
type EnvelopeValidator interface {
	Validate(e *mutation.Envelope) error
}

// ProcessorMetrics records per-message outcomes.
type ProcessorMetrics interface {
	IncEventsProcessed(topic string, status string)
}

// ProcessorConfig bounds the retries of a retryable append failure.
type ProcessorConfig struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Processor turns consumed envelopes into buffered mutations. A message's
// offset is committed only after its mutation was appended or it was
// dead-lettered.
type Processor struct {
	appender   Appender
	partitions PartitionResolver
	validator  EnvelopeValidator
	dlq        consumer.DLQPublisher
	config     ProcessorConfig
	logger     *slog.Logger
	metrics    ProcessorMetrics
}

// NewProcessor creates a processor. partitions and dlq may be nil.
func NewProcessor(appender Appender, partitions PartitionResolver, validator EnvelopeValidator, dlq consumer.DLQPublisher, config ProcessorConfig, logger *slog.Logger, metrics ProcessorMetrics) *Processor {
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = 100 * time.Millisecond
	}
	if config.MaxBackoff < config.InitialBackoff {
		config.MaxBackoff = 30 * time.Second
	}
	return &Processor{
		appender:   appender,
		partitions: partitions,
		validator:  validator,
		dlq:        dlq,
		config:     config,
		logger:     logger,
		metrics:    metrics,
	}
}

// Run processes messages until ctx ends or messages is closed.
func (p *Processor) Run(ctx context.Context, messages <-chan *mutation.ConsumedMutation, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("context cancelled, stopping processing")
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			p.logger.Error("consumer error", "error", err)
		case msg, ok := <-messages:
			if !ok {
				p.logger.Info("message channel closed")
				return nil
			}
			if err := p.processWithRetry(ctx, msg); err != nil {
				// Only cancellation ends the retry loop; the offset stays
				// unmarked so the message is redelivered.
				return nil
			}
		}
	}
}

// processWithRetry retries retryable failures with exponential backoff until
// the message is handled or ctx ends.
func (p *Processor) processWithRetry(ctx context.Context, msg *mutation.ConsumedMutation) error {
	backoff := p.config.InitialBackoff
	for {
		err := p.Process(ctx, msg)
		if err == nil {
			return nil
		}
		p.logger.Warn("retrying message",
			"topic", msg.Metadata.Topic,
			"partition", msg.Metadata.Partition,
			"offset", msg.Metadata.Offset,
			"backoff", backoff,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, p.config.MaxBackoff)
	}
}

// Process handles one message. It returns an error only for retryable
// failures, in which case the offset is left unmarked.
func (p *Processor) Process(ctx context.Context, msg *mutation.ConsumedMutation) error {
	meta := msg.Metadata
	logger := p.logger.With("topic", meta.Topic, "partition", meta.Partition, "offset", meta.Offset)

	if msg.Envelope == nil {
		var err error
		msg.Envelope, err = mutation.ParseEnvelope(msg.Raw)
		if err != nil {
			logger.Warn("malformed envelope", "error", err)
			return p.reject(ctx, msg, ReasonMalformed)
		}
	}

	if p.validator != nil {
		if err := p.validator.Validate(msg.Envelope); err != nil {
			logger.Warn("invalid envelope", "event_id", msg.Envelope.ID, "error", err)
			return p.reject(ctx, msg, ReasonValidationFailed)
		}
	}

	m, err := msg.Envelope.Mutation()
	if err != nil {
		logger.Warn("undecodable mutation", "event_id", msg.Envelope.ID, "error", err)
		return p.reject(ctx, msg, ReasonMalformed)
	}
	msg.Mutation = m

	if m.IsPartitioned() && m.Table == "" && p.partitions != nil {
		table, err := p.partitions.CreatePartitionIfNeeded(ctx, m.Keyword, m.UID)
		if err != nil {
			if isPermanent(err) {
				logger.Warn("partition rejected", "keyword", m.Keyword, "uid", m.UID, "error", err)
				return p.reject(ctx, msg, ReasonPartitionFailed)
			}
			p.record(meta.Topic, "retry")
			return err
		}
		m.Table = table
	}

	if err := p.appender.AppendMutation(ctx, m); err != nil {
		if isPermanent(err) {
			logger.Warn("mutation rejected", "event_id", msg.Envelope.ID, "error", err)
			return p.reject(ctx, msg, ReasonValidationFailed)
		}
		p.record(meta.Topic, "retry")
		return err
	}

	p.commit(logger, msg)
	p.record(meta.Topic, "success")
	return nil
}

// reject dead-letters msg and commits it. A DLQ failure is retried like any
// other transient failure.
func (p *Processor) reject(ctx context.Context, msg *mutation.ConsumedMutation, reason string) error {
	if p.dlq != nil {
		if err := p.dlq.Publish(ctx, msg, reason); err != nil {
			p.record(msg.Metadata.Topic, "retry")
			return err
		}
	}
	p.commit(p.logger, msg)
	p.record(msg.Metadata.Topic, "dlq")
	return nil
}

func (p *Processor) commit(logger *slog.Logger, msg *mutation.ConsumedMutation) {
	if msg.CommitFunc == nil {
		return
	}
	if err := msg.CommitFunc(); err != nil {
		logger.Error("failed to commit offset", "error", err)
	}
}

func (p *Processor) record(topic, status string) {
	if p.metrics != nil {
		p.metrics.IncEventsProcessed(topic, status)
	}
}

// isPermanent reports whether retrying err cannot succeed.
func isPermanent(err error) bool {
	var verr *apperrors.ValidationError
	if errors.As(err, &verr) {
		return true
	}
	return false
}
