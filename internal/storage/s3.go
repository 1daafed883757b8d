package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	pkgencoder "github.com/jittakal/poolstore/pkg/encoder"
	pkgstorage "github.com/jittakal/poolstore/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ pkgstorage.Writer = (*S3Writer)(nil)

// S3Config contains AWS S3 configuration.
type S3Config struct {
	Bucket       string
	Region       string
	BasePath     string
	Endpoint     string
	UsePathStyle bool
	SSEEnabled   bool
	SSEKMSKeyID  string
}

// Validate validates S3 configuration.
func (c S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("s3 bucket is required")
	}
	if c.Region == "" {
		return errors.New("s3 region is required")
	}
	return nil
}

// S3Uploader is the part of manager.Uploader the writer uses.
type S3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Writer archives batches to an S3 bucket with multipart uploads and
// optional server-side encryption.
type S3Writer struct {
	objectWriter
	uploader S3Uploader
	cfg      S3Config
}

// NewS3Writer creates a new S3 storage writer from the default AWS
// credential chain.
func NewS3Writer(ctx context.Context, cfg S3Config, enc pkgencoder.Encoder, logger *slog.Logger, metrics MetricsCollector) (*S3Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024
		u.Concurrency = 5
	})

	logger.Info("S3 writer created",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"format", enc.Format(),
		"sse_enabled", cfg.SSEEnabled,
	)
	return NewS3WriterWithUploader(uploader, cfg, enc, logger, metrics), nil
}

// NewS3WriterWithUploader creates an S3 writer over an existing uploader.
func NewS3WriterWithUploader(uploader S3Uploader, cfg S3Config, enc pkgencoder.Encoder, logger *slog.Logger, metrics MetricsCollector) *S3Writer {
	w := &S3Writer{uploader: uploader, cfg: cfg}
	w.objectWriter = objectWriter{
		backend: BackendS3,
		encoder: enc,
		logger:  logger,
		metrics: metrics,
		put:     w.put,
	}
	return w
}

func (w *S3Writer) put(ctx context.Context, key string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}
	if w.cfg.SSEEnabled {
		if w.cfg.SSEKMSKeyID != "" {
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			input.SSEKMSKeyId = aws.String(w.cfg.SSEKMSKeyID)
		} else {
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		}
	}

	if _, err := w.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

// Close closes the S3 writer.
func (w *S3Writer) Close() error {
	w.logger.Info("closing S3 writer")
	return nil
}
