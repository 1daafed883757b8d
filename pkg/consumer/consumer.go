// Package consumer defines interfaces for consuming mutations from Kafka.
//
// This package provides abstractions for reading mutation envelopes
// and managing consumer lifecycle.
package consumer

import (
	"context"

	"github.com/jittakal/poolstore/pkg/mutation"
)

// Consumer reads mutation envelopes from Kafka topics.
type Consumer interface {
	// Subscribe subscribes to one or more topics.
	Subscribe(ctx context.Context, topics []string) error

	// Consume starts consuming messages from subscribed topics.
	// Returns channels for messages and errors.
	Consume(ctx context.Context) (<-chan *mutation.ConsumedMutation, <-chan error, error)

	// Close closes the consumer and releases resources.
	Close() error
}

// DLQPublisher publishes rejected messages to a dead letter queue.
type DLQPublisher interface {
	// Publish sends a message to the DLQ with the rejection reason.
	Publish(ctx context.Context, msg *mutation.ConsumedMutation, reason string) error

	// Close closes the publisher and releases resources.
	Close() error
}
