// Package buffer defines the producer-facing write-back buffer.
//
// Producers hand mutations to a Buffer instead of writing to the database
// directly; buffered mutations are flushed in batches.
package buffer

import (
	"context"

	"github.com/jittakal/poolstore/pkg/mutation"
)

// Buffer accepts mutations for batched persistence.
// All implementations must be safe for concurrent use.
type Buffer interface {
	// Append buffers one serialized mutation. It may block while a batch
	// is flushed. A nil error means the mutation is held by the buffer.
	Append(ctx context.Context, payload []byte) error

	// AppendMutation validates, encodes and buffers m.
	AppendMutation(ctx context.Context, m *mutation.Mutation) error
}
