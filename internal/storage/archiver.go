package storage

import (
	"context"
	"log/slog"

	"github.com/jittakal/poolstore/internal/flush"
	"github.com/jittakal/poolstore/pkg/mutation"
	pkgstorage "github.com/jittakal/poolstore/pkg/storage"
)

var _ flush.StuckHandler = (*Archiver)(nil)

// Archiver copies every stuck batch to durable storage so operators can
// inspect it without touching the coordination store.
type Archiver struct {
	writer pkgstorage.Writer
	router pkgstorage.Router
	logger *slog.Logger
}

// NewArchiver creates an archiver writing through writer at router's paths.
func NewArchiver(writer pkgstorage.Writer, router pkgstorage.Router, logger *slog.Logger) *Archiver {
	return &Archiver{writer: writer, router: router, logger: logger}
}

// HandleStuck archives batch. The pool itself stays stuck.
func (a *Archiver) HandleStuck(ctx context.Context, batch *mutation.Batch) error {
	path := a.router.Route(batch.Pool, batch.CreatedAt)
	n, err := a.writer.Write(ctx, batch, path)
	if err != nil {
		a.logger.Error("failed to archive stuck batch",
			"pool", batch.Pool,
			"drain_id", batch.DrainID,
			"path", path,
			"error", err,
		)
		return err
	}
	a.logger.Debug("stuck batch archived", "pool", batch.Pool, "path", path, "bytes", n)
	return nil
}

// Close closes the underlying writer.
func (a *Archiver) Close() error {
	return a.writer.Close()
}
