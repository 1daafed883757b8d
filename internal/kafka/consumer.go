// Package kafka consumes mutation envelopes from Kafka and publishes
// rejected messages and stuck-pool alarms back to it.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/jittakal/poolstore/internal/errors"
	"github.com/jittakal/poolstore/pkg/consumer"
	"github.com/jittakal/poolstore/pkg/mutation"
)

// Ensure implementation satisfies interfaces at compile time.
var (
	_ consumer.Consumer = (*SaramaConsumer)(nil)
)

// ConsumerConfig contains Kafka consumer configuration.
type ConsumerConfig struct {
	BootstrapServers    []string
	GroupID             string
	Security            SecurityConfig
	AutoOffsetReset     string
	MaxPollIntervalMS   int
	SessionTimeoutMS    int
	HeartbeatIntervalMS int
}

// MetricsCollector defines metrics operations for Kafka consumer.
type MetricsCollector interface {
	IncMessagesConsumed(topic string, partition int32)
	IncRebalances(groupID string)
	IncOffsetCommits(topic string, partition int32, status string)
	ObserveRebalanceDuration(groupID string, duration float64)
	ObserveCommitLatency(topic string, partition int32, duration float64)
	SetPartitionsAssigned(topic string, count float64)
}

// SaramaConsumer reads mutation envelopes with a Sarama consumer group.
// An offset is marked only through the message's CommitFunc, after the
// mutation has been buffered. Marked offsets are committed every second.
type SaramaConsumer struct {
	consumerGroup sarama.ConsumerGroup
	config        ConsumerConfig
	logger        *slog.Logger
	metrics       MetricsCollector
	topics        []string
	ready         chan struct{}
	mu            sync.RWMutex
	closed        bool
}

// NewSaramaConsumerConfig builds the Sarama configuration for config.
func NewSaramaConsumerConfig(config ConsumerConfig) (*sarama.Config, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = offsetInitial(config.AutoOffsetReset)
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Offsets.AutoCommit.Interval = time.Second

	if config.SessionTimeoutMS > 0 {
		saramaConfig.Consumer.Group.Session.Timeout = time.Duration(config.SessionTimeoutMS) * time.Millisecond
	}
	if config.HeartbeatIntervalMS > 0 {
		saramaConfig.Consumer.Group.Heartbeat.Interval = time.Duration(config.HeartbeatIntervalMS) * time.Millisecond
	}

	// A threshold drain blocks the claim goroutine for a whole batch commit.
	if config.MaxPollIntervalMS > 0 {
		saramaConfig.Consumer.MaxProcessingTime = time.Duration(config.MaxPollIntervalMS) * time.Millisecond
	} else {
		saramaConfig.Consumer.MaxProcessingTime = 5 * time.Minute
	}

	saramaConfig.Consumer.Return.Errors = true

	if err := configureSecurity(saramaConfig, config.Security); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}
	return saramaConfig, nil
}

// NewSaramaConsumer creates a new Kafka consumer using Sarama library.
func NewSaramaConsumer(config ConsumerConfig, logger *slog.Logger, metrics MetricsCollector) (*SaramaConsumer, error) {
	saramaConfig, err := NewSaramaConsumerConfig(config)
	if err != nil {
		return nil, err
	}

	group, err := sarama.NewConsumerGroup(config.BootstrapServers, config.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	logger.Info("kafka consumer created",
		"group_id", config.GroupID,
		"bootstrap_servers", config.BootstrapServers,
		"session_timeout_ms", config.SessionTimeoutMS,
		"max_poll_interval_ms", config.MaxPollIntervalMS,
	)

	return NewSaramaConsumerWithGroup(group, config, logger, metrics), nil
}

// NewSaramaConsumerWithGroup wraps an existing consumer group.
func NewSaramaConsumerWithGroup(group sarama.ConsumerGroup, config ConsumerConfig, logger *slog.Logger, metrics MetricsCollector) *SaramaConsumer {
	return &SaramaConsumer{
		consumerGroup: group,
		config:        config,
		logger:        logger,
		metrics:       metrics,
		ready:         make(chan struct{}),
	}
}

// Subscribe subscribes to the specified topics.
func (c *SaramaConsumer) Subscribe(ctx context.Context, topics []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.ErrConsumerClosed
	}

	c.topics = topics
	c.logger.Info("subscribed to topics", "topics", topics)
	return nil
}

// Consume starts the consumer group loop and blocks until the first session
// is set up or ctx ends.
func (c *SaramaConsumer) Consume(ctx context.Context) (<-chan *mutation.ConsumedMutation, <-chan error, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, nil, errors.ErrConsumerClosed
	}
	topics := c.topics
	c.mu.RUnlock()

	if len(topics) == 0 {
		return nil, nil, fmt.Errorf("no topics subscribed")
	}

	messages := make(chan *mutation.ConsumedMutation, 100)
	errs := make(chan error, 10)

	handler := &groupHandler{
		consumer: c,
		messages: messages,
		errs:     errs,
		ready:    c.ready,
	}

	go func() {
		defer close(messages)
		defer close(errs)

		for {
			if err := c.consumerGroup.Consume(ctx, topics, handler); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Error("consumer group error", "error", err)
				select {
				case errs <- err:
				default:
				}
				return
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	go func() {
		for err := range c.consumerGroup.Errors() {
			c.logger.Warn("consumer group async error", "error", err)
		}
	}()

	select {
	case <-c.ready:
	case <-ctx.Done():
		return messages, errs, ctx.Err()
	}

	c.logger.Info("kafka consumer started and ready")
	return messages, errs, nil
}

// Close closes the consumer and releases resources.
func (c *SaramaConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.logger.Info("closing kafka consumer")

	if err := c.consumerGroup.Close(); err != nil {
		c.logger.Error("error closing consumer group", "error", err)
		return err
	}

	c.logger.Info("kafka consumer closed")
	return nil
}

// groupHandler implements sarama.ConsumerGroupHandler.
type groupHandler struct {
	consumer       *SaramaConsumer
	messages       chan<- *mutation.ConsumedMutation
	errs           chan<- error
	ready          chan struct{}
	readyOnce      sync.Once
	rebalanceStart time.Time
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (h *groupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.rebalanceStart = time.Now()

	h.consumer.logger.Info("consumer group session setup",
		"member_id", session.MemberID(),
		"generation_id", session.GenerationID(),
		"claims", session.Claims(),
	)

	if m := h.consumer.metrics; m != nil {
		m.IncRebalances(h.consumer.config.GroupID)
		for topic, partitions := range session.Claims() {
			m.SetPartitionsAssigned(topic, float64(len(partitions)))
		}
	}

	h.readyOnce.Do(func() {
		close(h.ready)
	})
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (h *groupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	if h.consumer.metrics != nil && !h.rebalanceStart.IsZero() {
		h.consumer.metrics.ObserveRebalanceDuration(
			h.consumer.config.GroupID,
			time.Since(h.rebalanceStart).Seconds(),
		)
	}

	h.consumer.logger.Info("consumer group session cleanup",
		"member_id", session.MemberID(),
	)
	return nil
}

// ConsumeClaim forwards the messages of one partition.
func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	h.consumer.logger.Info("started consuming partition",
		"topic", claim.Topic(),
		"partition", claim.Partition(),
		"initial_offset", claim.InitialOffset(),
	)

	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}

			msg := h.consumer.toConsumed(session, message)
			select {
			case h.messages <- msg:
				if h.consumer.metrics != nil {
					h.consumer.metrics.IncMessagesConsumed(message.Topic, message.Partition)
				}
			case <-session.Context().Done():
				return nil
			}

		case <-session.Context().Done():
			h.consumer.logger.Info("session context done, stopping partition consumption",
				"topic", claim.Topic(),
				"partition", claim.Partition(),
			)
			return nil
		}
	}
}

// toConsumed wraps message. A message that is not a CloudEvents envelope is
// still forwarded, with a nil Envelope, so it can be dead-lettered.
func (c *SaramaConsumer) toConsumed(session sarama.ConsumerGroupSession, message *sarama.ConsumerMessage) *mutation.ConsumedMutation {
	c.logger.Debug("received kafka message",
		"topic", message.Topic,
		"partition", message.Partition,
		"offset", message.Offset,
		"value_size", len(message.Value),
	)

	msg := &mutation.ConsumedMutation{
		Raw: message.Value,
		Metadata: mutation.KafkaMetadata{
			Topic:     message.Topic,
			Partition: message.Partition,
			Offset:    message.Offset,
			Key:       message.Key,
			Timestamp: message.Timestamp,
			Headers:   extractHeaders(message.Headers),
		},
		CommitFunc: func() error {
			start := time.Now()
			session.MarkMessage(message, "")
			if c.metrics != nil {
				c.metrics.ObserveCommitLatency(message.Topic, message.Partition, time.Since(start).Seconds())
				c.metrics.IncOffsetCommits(message.Topic, message.Partition, "success")
			}
			return nil
		},
	}

	env, err := mutation.ParseEnvelope(message.Value)
	if err != nil {
		c.logger.Warn("failed to parse envelope",
			"topic", message.Topic,
			"partition", message.Partition,
			"offset", message.Offset,
			"error", err,
		)
		return msg
	}
	msg.Envelope = env
	return msg
}

func extractHeaders(headers []*sarama.RecordHeader) map[string]string {
	result := make(map[string]string, len(headers))
	for _, header := range headers {
		if header == nil {
			continue
		}
		result[string(header.Key)] = string(header.Value)
	}
	return result
}

// offsetInitial converts the AutoOffsetReset config to Sarama's offset constant.
func offsetInitial(autoOffsetReset string) int64 {
	switch autoOffsetReset {
	case "earliest":
		return sarama.OffsetOldest
	default:
		return sarama.OffsetNewest
	}
}
