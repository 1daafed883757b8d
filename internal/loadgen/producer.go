package loadgen

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/goccy/go-json"
)

// MetricsCollector defines metrics operations for the load generator.
type MetricsCollector interface {
	IncEventsProduced(topic string, status string)
	ObserveProduceDuration(topic string, duration float64)
}

// Producer sends CloudEvents in structured mode.
type Producer struct {
	producer sarama.SyncProducer
	logger   *slog.Logger
	metrics  MetricsCollector
}

// NewProducer wraps a synchronous producer.
func NewProducer(producer sarama.SyncProducer, logger *slog.Logger, metrics MetricsCollector) *Producer {
	return &Producer{producer: producer, logger: logger, metrics: metrics}
}

// Produce sends event to topic keyed by key, so events sharing a key keep
// their order.
func (p *Producer) Produce(ctx context.Context, topic, key string, event cloudevents.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal CloudEvent: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(eventBytes),
		Headers: []sarama.RecordHeader{
			{Key: []byte("ce_specversion"), Value: []byte(event.SpecVersion())},
			{Key: []byte("ce_type"), Value: []byte(event.Type())},
			{Key: []byte("ce_source"), Value: []byte(event.Source())},
			{Key: []byte("ce_id"), Value: []byte(event.ID())},
		},
	}

	start := time.Now()
	partition, offset, err := p.producer.SendMessage(msg)
	if p.metrics != nil {
		p.metrics.ObserveProduceDuration(topic, time.Since(start).Seconds())
	}
	if err != nil {
		p.record(topic, "failure")
		return fmt.Errorf("failed to send message to Kafka: %w", err)
	}
	p.record(topic, "success")

	p.logger.Debug("event produced",
		"topic", topic,
		"partition", partition,
		"offset", offset,
		"event_id", event.ID(),
		"key", key,
	)
	return nil
}

// Close closes the underlying producer.
func (p *Producer) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

func (p *Producer) record(topic, status string) {
	if p.metrics != nil {
		p.metrics.IncEventsProduced(topic, status)
	}
}
