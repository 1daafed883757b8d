package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"

	"github.com/jittakal/poolstore/internal/errors"
	"github.com/jittakal/poolstore/pkg/consumer"
	"github.com/jittakal/poolstore/pkg/mutation"
)

// Ensure implementation satisfies interface at compile time.
var _ consumer.DLQPublisher = (*DLQPublisher)(nil)

// DLQEvent represents a message published to the dead letter queue.
// OriginalEvent carries the message when it was valid JSON, OriginalPayload
// otherwise.
type DLQEvent struct {
	OriginalEvent     json.RawMessage `json:"original_event,omitempty"`
	OriginalPayload   []byte          `json:"original_payload,omitempty"`
	OriginalTopic     string          `json:"original_topic"`
	OriginalPartition int32           `json:"original_partition"`
	OriginalOffset    int64           `json:"original_offset"`
	EventID           string          `json:"event_id,omitempty"`
	FailureReason     string          `json:"failure_reason"`
	FailureTimestamp  time.Time       `json:"failure_timestamp"`
	ProcessorID       string          `json:"processor_id"`
}

// DLQConfig contains DLQ configuration.
type DLQConfig struct {
	Enabled     bool
	TopicSuffix string
}

// DLQPublisher publishes rejected messages to <topic><suffix>.
type DLQPublisher struct {
	producer    sarama.SyncProducer
	config      DLQConfig
	logger      *slog.Logger
	mu          sync.RWMutex
	closed      bool
	processorID string
}

// NewDLQPublisher creates a new DLQ publisher. A disabled DLQ opens no
// connection and drops every message.
func NewDLQPublisher(brokers []string, sec SecurityConfig, config DLQConfig, logger *slog.Logger, processorID string) (*DLQPublisher, error) {
	if !config.Enabled {
		logger.Info("DLQ is disabled")
		return NewDLQPublisherWithProducer(nil, config, logger, processorID), nil
	}

	producer, err := NewSyncProducer(brokers, sec)
	if err != nil {
		return nil, err
	}

	logger.Info("DLQ publisher created",
		"bootstrap_servers", brokers,
		"topic_suffix", config.TopicSuffix,
	)
	return NewDLQPublisherWithProducer(producer, config, logger, processorID), nil
}

// NewDLQPublisherWithProducer creates a DLQ publisher over producer.
func NewDLQPublisherWithProducer(producer sarama.SyncProducer, config DLQConfig, logger *slog.Logger, processorID string) *DLQPublisher {
	return &DLQPublisher{
		producer:    producer,
		config:      config,
		logger:      logger,
		processorID: processorID,
	}
}

// TopicFor returns the DLQ topic of a source topic.
func (p *DLQPublisher) TopicFor(topic string) string {
	return topic + p.config.TopicSuffix
}

// Publish publishes a rejected message to the DLQ.
func (p *DLQPublisher) Publish(ctx context.Context, msg *mutation.ConsumedMutation, reason string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return errors.ErrWriterClosed
	}

	if !p.config.Enabled || p.producer == nil {
		p.logger.Debug("DLQ disabled, skipping publish")
		return nil
	}

	dlqTopic := p.TopicFor(msg.Metadata.Topic)

	event := DLQEvent{
		OriginalTopic:     msg.Metadata.Topic,
		OriginalPartition: msg.Metadata.Partition,
		OriginalOffset:    msg.Metadata.Offset,
		FailureReason:     reason,
		FailureTimestamp:  time.Now().UTC(),
		ProcessorID:       p.processorID,
	}
	if json.Valid(msg.Raw) {
		event.OriginalEvent = msg.Raw
	} else {
		event.OriginalPayload = msg.Raw
	}
	if msg.Envelope != nil {
		event.EventID = msg.Envelope.ID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ event: %w", err)
	}

	pm := &sarama.ProducerMessage{
		Topic: dlqTopic,
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("failure_reason"), Value: []byte(reason)},
			{Key: []byte("original_topic"), Value: []byte(msg.Metadata.Topic)},
			{Key: []byte("processor_id"), Value: []byte(p.processorID)},
		},
		Timestamp: time.Now(),
	}
	if len(msg.Metadata.Key) > 0 {
		pm.Key = sarama.ByteEncoder(msg.Metadata.Key)
	} else if event.EventID != "" {
		pm.Key = sarama.StringEncoder(event.EventID)
	}

	partition, offset, err := p.producer.SendMessage(pm)
	if err != nil {
		p.logger.Error("failed to publish to DLQ",
			"error", err,
			"dlq_topic", dlqTopic,
			"event_id", event.EventID,
		)
		return fmt.Errorf("failed to send message to DLQ: %w", err)
	}

	p.logger.Info("published message to DLQ",
		"dlq_topic", dlqTopic,
		"partition", partition,
		"offset", offset,
		"event_id", event.EventID,
		"reason", reason,
	)
	return nil
}

// Close closes the DLQ publisher.
func (p *DLQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			p.logger.Error("error closing producer", "error", err)
			return err
		}
	}

	p.logger.Info("DLQ publisher closed")
	return nil
}
