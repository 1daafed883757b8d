package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/jittakal/poolstore/internal/errors"
	pkgencoder "github.com/jittakal/poolstore/pkg/encoder"
	"github.com/jittakal/poolstore/pkg/mutation"
)

// Storage backends.
const (
	BackendFile  = "file"
	BackendS3    = "s3"
	BackendGCS   = "gcs"
	BackendAzure = "azure"
)

// MetricsCollector defines metrics operations for storage.
type MetricsCollector interface {
	IncFilesWritten(backend string, format string, status string)
	ObserveFileSize(format string, size float64)
	ObserveStorageWriteDuration(backend string, duration float64)
	IncStorageErrors(backend string, operation string)
}

// putFunc stores one encoded file under key.
type putFunc func(ctx context.Context, key string, data []byte, contentType string) error

// objectWriter encodes a batch in memory and hands it to a backend put.
type objectWriter struct {
	backend string
	encoder pkgencoder.Encoder
	logger  *slog.Logger
	metrics MetricsCollector
	put     putFunc
}

// FileName returns the archive file name of a batch.
func FileName(batch *mutation.Batch, ext string) string {
	return fmt.Sprintf("stuck_%s_%s%s", batch.CreatedAt.UTC().Format("20060102T150405"), batch.DrainID, ext)
}

func (w *objectWriter) Write(ctx context.Context, batch *mutation.Batch, path string) (int64, error) {
	if batch == nil || len(batch.Payloads) == 0 {
		return 0, errors.New("no records to write")
	}

	start := time.Now()
	format := string(w.encoder.Format())
	key := ObjectKey(path) + FileName(batch, w.encoder.FileExtension())

	var buf bytes.Buffer
	stats, err := w.encoder.Encode(&buf, batch)
	if err != nil {
		w.fail("encode")
		return 0, &apperrors.StorageError{Operation: "encode", Path: key, Err: err}
	}

	if err := w.put(ctx, key, buf.Bytes(), contentType(w.encoder.Format())); err != nil {
		w.fail("upload")
		return 0, &apperrors.StorageError{Operation: "upload", Path: key, Err: err}
	}

	duration := time.Since(start)
	w.logger.Info("archived stuck batch",
		"backend", w.backend,
		"key", key,
		"pool", batch.Pool,
		"drain_id", batch.DrainID,
		"record_count", stats.RecordCount,
		"file_size", stats.SizeBytes,
		"format", format,
		"total_duration_ms", duration.Milliseconds(),
	)

	if w.metrics != nil {
		w.metrics.IncFilesWritten(w.backend, format, "success")
		w.metrics.ObserveFileSize(format, float64(stats.SizeBytes))
		w.metrics.ObserveStorageWriteDuration(w.backend, duration.Seconds())
	}
	return stats.SizeBytes, nil
}

func (w *objectWriter) fail(operation string) {
	if w.metrics == nil {
		return
	}
	w.metrics.IncStorageErrors(w.backend, operation)
	w.metrics.IncFilesWritten(w.backend, string(w.encoder.Format()), "failure")
}

func contentType(format mutation.FileFormat) string {
	if format == mutation.FormatAvro {
		return "application/avro"
	}
	return "application/octet-stream"
}
