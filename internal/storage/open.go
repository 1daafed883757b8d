package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jittakal/poolstore/internal/encoder"
	"github.com/jittakal/poolstore/pkg/mutation"
	pkgstorage "github.com/jittakal/poolstore/pkg/storage"
)

// Config selects and configures an archive backend.
type Config struct {
	Backend     string
	Format      mutation.FileFormat
	Compression string
	File        FileConfig
	S3          S3Config
	GCS         GCSConfig
	Azure       AzureConfig
}

// Open builds the writer and router for cfg.Backend and wraps them in an
// Archiver.
func Open(ctx context.Context, cfg Config, logger *slog.Logger, metrics MetricsCollector) (*Archiver, error) {
	enc, err := encoder.New(cfg.Format, cfg.Compression)
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	var (
		writer pkgstorage.Writer
		router *HiveRouter
	)
	switch cfg.Backend {
	case BackendS3:
		writer, err = NewS3Writer(ctx, cfg.S3, enc, logger, metrics)
		router = NewRouter(ProtocolFor(BackendS3), cfg.S3.Bucket, cfg.S3.BasePath)
	case BackendGCS:
		writer, err = NewGCSWriter(ctx, cfg.GCS, enc, logger, metrics)
		router = NewRouter(ProtocolFor(BackendGCS), cfg.GCS.Bucket, cfg.GCS.BasePath)
	case BackendAzure:
		writer, err = NewAzureWriter(cfg.Azure, enc, logger, metrics)
		router = NewRouter(ProtocolFor(BackendAzure), cfg.Azure.ContainerName, cfg.Azure.BasePath)
	case BackendFile, "":
		writer, err = NewFileWriter(cfg.File, enc, logger, metrics)
		router = NewRouter(ProtocolFor(BackendFile), "", "")
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s writer: %w", cfg.Backend, err)
	}

	return NewArchiver(writer, router, logger), nil
}
