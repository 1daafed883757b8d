package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	pkgencoder "github.com/jittakal/poolstore/pkg/encoder"
	pkgstorage "github.com/jittakal/poolstore/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ pkgstorage.Writer = (*GCSWriter)(nil)

// GCSConfig contains Google Cloud Storage configuration.
type GCSConfig struct {
	Bucket               string
	ProjectID            string
	BasePath             string
	CredentialsFile      string
	CredentialsJSON      string
	Endpoint             string
	UseDefaultCredential bool
}

// Validate validates GCS configuration.
func (c GCSConfig) Validate() error {
	if c.Bucket == "" {
		return errors.New("gcs bucket is required")
	}
	return nil
}

// GCSWriter archives batches to a Google Cloud Storage bucket.
type GCSWriter struct {
	objectWriter
	client *storage.Client
	bucket string
}

// NewGCSWriter creates a new Google Cloud Storage writer. Credentials come
// from the JSON string, the file, or application default credentials, in
// that order.
func NewGCSWriter(ctx context.Context, cfg GCSConfig, enc pkgencoder.Encoder, logger *slog.Logger, metrics MetricsCollector) (*GCSWriter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	switch {
	case cfg.UseDefaultCredential:
		logger.Info("using default GCP credentials")
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		logger.Info("using GCP credentials from JSON string")
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info("using GCP credentials from file", "file", cfg.CredentialsFile)
	default:
		logger.Info("no explicit credentials provided, using default GCP credentials")
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	logger.Info("GCS writer created",
		"bucket", cfg.Bucket,
		"project_id", cfg.ProjectID,
		"format", enc.Format(),
	)
	return NewGCSWriterWithClient(client, cfg.Bucket, enc, logger, metrics), nil
}

// NewGCSWriterWithClient creates a GCS writer over an existing client.
func NewGCSWriterWithClient(client *storage.Client, bucket string, enc pkgencoder.Encoder, logger *slog.Logger, metrics MetricsCollector) *GCSWriter {
	w := &GCSWriter{client: client, bucket: bucket}
	w.objectWriter = objectWriter{
		backend: BackendGCS,
		encoder: enc,
		logger:  logger,
		metrics: metrics,
		put:     w.put,
	}
	return w
}

func (w *GCSWriter) put(ctx context.Context, key string, data []byte, contentType string) error {
	ow := w.client.Bucket(w.bucket).Object(key).NewWriter(ctx)
	ow.ContentType = contentType
	if _, err := ow.Write(data); err != nil {
		_ = ow.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := ow.Close(); err != nil {
		return fmt.Errorf("failed to finalize GCS object: %w", err)
	}
	return nil
}

// Close closes the GCS writer.
func (w *GCSWriter) Close() error {
	w.logger.Info("closing GCS writer")
	if w.client != nil {
		return w.client.Close()
	}
	return nil
}
