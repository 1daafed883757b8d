// Package storage defines interfaces for archiving stuck batches.
//
// This package provides abstractions for writing batches to various
// storage backends (S3, GCS, Azure Blob, local filesystem).
package storage

import (
	"context"
	"time"

	"github.com/jittakal/poolstore/pkg/mutation"
)

// Writer writes archived batches to storage.
type Writer interface {
	// Write encodes batch into one file under the directory path and
	// returns the number of bytes written.
	Write(ctx context.Context, batch *mutation.Batch, path string) (int64, error)

	// Close closes the writer and releases resources.
	Close() error
}

// Router determines storage directories for archived batches.
type Router interface {
	// Route returns the directory for a batch of pool drained at t.
	Route(pool string, t time.Time) string
}
