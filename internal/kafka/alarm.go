package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"

	"github.com/jittakal/poolstore/internal/flush"
	"github.com/jittakal/poolstore/pkg/mutation"
)

var _ flush.StuckHandler = (*AlarmPublisher)(nil)

// StuckAlarm announces a pool whose batch failed to commit.
type StuckAlarm struct {
	Pool      string    `json:"pool"`
	DrainID   string    `json:"drain_id"`
	Count     int       `json:"count"`
	Bytes     int64     `json:"bytes"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// AlarmPublisher publishes a StuckAlarm for every stuck drain.
type AlarmPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// NewAlarmPublisher creates an alarm publisher writing to topic.
func NewAlarmPublisher(producer sarama.SyncProducer, topic string, logger *slog.Logger) *AlarmPublisher {
	return &AlarmPublisher{producer: producer, topic: topic, logger: logger}
}

// HandleStuck publishes an alarm keyed by pool name so alarms of one pool
// stay ordered.
func (a *AlarmPublisher) HandleStuck(_ context.Context, batch *mutation.Batch) error {
	alarm := StuckAlarm{
		Pool:      batch.Pool,
		DrainID:   batch.DrainID,
		Count:     len(batch.Payloads),
		Bytes:     batch.SizeBytes(),
		Reason:    batch.Reason,
		CreatedAt: batch.CreatedAt,
	}
	data, err := json.Marshal(alarm)
	if err != nil {
		return fmt.Errorf("failed to marshal stuck alarm: %w", err)
	}

	_, _, err = a.producer.SendMessage(&sarama.ProducerMessage{
		Topic: a.topic,
		Key:   sarama.StringEncoder(batch.Pool),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return fmt.Errorf("failed to publish stuck alarm: %w", err)
	}

	a.logger.Warn("published stuck alarm",
		"topic", a.topic,
		"pool", batch.Pool,
		"drain_id", batch.DrainID,
		"count", alarm.Count,
	)
	return nil
}

// Close closes the underlying producer.
func (a *AlarmPublisher) Close() error {
	return a.producer.Close()
}
