package kafka

import (
	"fmt"

	"github.com/IBM/sarama"
)

// NewProducerConfig returns an idempotent, fully acknowledged producer
// configuration secured per sec.
func NewProducerConfig(sec SecurityConfig) (*sarama.Config, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V2_8_0_0
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	if err := configureSecurity(config, sec); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}
	return config, nil
}

// NewSyncProducer connects a synchronous producer to brokers.
func NewSyncProducer(brokers []string, sec SecurityConfig) (sarama.SyncProducer, error) {
	config, err := NewProducerConfig(sec)
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync producer: %w", err)
	}
	return producer, nil
}
