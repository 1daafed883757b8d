package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	pkgencoder "github.com/jittakal/poolstore/pkg/encoder"
	pkgstorage "github.com/jittakal/poolstore/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ pkgstorage.Writer = (*AzureWriter)(nil)

// AzureConfig contains Azure Blob Storage configuration.
type AzureConfig struct {
	AccountName   string
	AccountKey    string
	ContainerName string
	BasePath      string
	// Endpoint overrides the blob endpoint, e.g. for Azurite.
	Endpoint string
}

// Validate validates Azure configuration.
func (c AzureConfig) Validate() error {
	if c.AccountName == "" {
		return errors.New("azure account name is required")
	}
	if c.AccountKey == "" {
		return errors.New("azure account key is required")
	}
	if c.ContainerName == "" {
		return errors.New("azure container is required")
	}
	return nil
}

// ConnectionString renders the shared-key connection string.
func (c AzureConfig) ConnectionString() string {
	if c.Endpoint != "" {
		return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;BlobEndpoint=%s",
			c.AccountName, c.AccountKey, c.Endpoint)
	}
	return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net",
		c.AccountName, c.AccountKey)
}

// BlobUploader is the part of azblob.Client the writer uses.
type BlobUploader interface {
	UploadBuffer(ctx context.Context, containerName string, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
}

// AzureWriter archives batches to an Azure Blob Storage container.
type AzureWriter struct {
	objectWriter
	client    BlobUploader
	container string
}

// NewAzureWriter creates a new Azure Blob storage writer.
func NewAzureWriter(cfg AzureConfig, enc pkgencoder.Encoder, logger *slog.Logger, metrics MetricsCollector) (*AzureWriter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	logger.Info("Azure writer created",
		"container", cfg.ContainerName,
		"account", cfg.AccountName,
		"format", enc.Format(),
	)
	return NewAzureWriterWithClient(client, cfg.ContainerName, enc, logger, metrics), nil
}

// NewAzureWriterWithClient creates an Azure writer over an existing client.
func NewAzureWriterWithClient(client BlobUploader, container string, enc pkgencoder.Encoder, logger *slog.Logger, metrics MetricsCollector) *AzureWriter {
	w := &AzureWriter{client: client, container: container}
	w.objectWriter = objectWriter{
		backend: BackendAzure,
		encoder: enc,
		logger:  logger,
		metrics: metrics,
		put:     w.put,
	}
	return w
}

func (w *AzureWriter) put(ctx context.Context, key string, data []byte, contentType string) error {
	opts := &azblob.UploadBufferOptions{}
	opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: &contentType}
	if _, err := w.client.UploadBuffer(ctx, w.container, key, data, opts); err != nil {
		return fmt.Errorf("failed to upload to Azure Blob: %w", err)
	}
	return nil
}

// Close closes the Azure writer.
func (w *AzureWriter) Close() error {
	w.logger.Info("Azure writer closed")
	return nil
}
