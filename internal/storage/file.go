package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	pkgencoder "github.com/jittakal/poolstore/pkg/encoder"
	pkgstorage "github.com/jittakal/poolstore/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ pkgstorage.Writer = (*FileWriter)(nil)

// FileConfig contains local filesystem configuration.
type FileConfig struct {
	BasePath string
}

// Validate validates file configuration.
func (c FileConfig) Validate() error {
	if c.BasePath == "" {
		return errors.New("file base path is required")
	}
	return nil
}

// FileWriter archives batches under a local directory.
type FileWriter struct {
	objectWriter
	basePath string
}

// NewFileWriter creates a new filesystem storage writer.
func NewFileWriter(cfg FileConfig, enc pkgencoder.Encoder, logger *slog.Logger, metrics MetricsCollector) (*FileWriter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	logger.Info("filesystem writer created",
		"base_path", cfg.BasePath,
		"format", enc.Format(),
	)

	w := &FileWriter{basePath: cfg.BasePath}
	w.objectWriter = objectWriter{
		backend: BackendFile,
		encoder: enc,
		logger:  logger,
		metrics: metrics,
		put:     w.put,
	}
	return w, nil
}

func (w *FileWriter) put(_ context.Context, key string, data []byte, _ string) error {
	full := filepath.Join(w.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return os.Rename(tmp, full)
}

// Close closes the writer.
func (w *FileWriter) Close() error {
	w.logger.Info("closing filesystem writer")
	return nil
}
