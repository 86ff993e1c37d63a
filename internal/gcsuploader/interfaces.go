package gcsuploader

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/transactions-dataflow/internal/gcs"
	"google.golang.org/api/option"
)

// GCSStorageService is the concrete implementation of gcs.StorageService
// that interacts with Google Cloud Storage. It holds a shared client so a
// single pipeline run does not open a connection per object.
type GCSStorageService struct {
	client *storage.Client
}

// NewGCSStorageService creates a new instance of GCSStorageService.
func NewGCSStorageService(ctx context.Context, opts ...option.ClientOption) (*GCSStorageService, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStorageService: creating client: %w", err)
	}
	return &GCSStorageService{client: client}, nil
}

// Close closes the storage client connection.
func (s *GCSStorageService) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// OpenObject delegates to OpenObjectWithClient with the shared client.
func (s *GCSStorageService) OpenObject(ctx context.Context, uri string) (io.ReadCloser, error) {
	return OpenObjectWithClient(ctx, s.client, uri)
}

// CreateObject delegates to CreateObjectWithClient with the shared client.
func (s *GCSStorageService) CreateObject(ctx context.Context, uri, contentType string) (io.WriteCloser, error) {
	return CreateObjectWithClient(ctx, s.client, uri, contentType)
}

// DeleteObject delegates to DeleteObjectWithClient with the shared client.
func (s *GCSStorageService) DeleteObject(ctx context.Context, uri string) error {
	return DeleteObjectWithClient(ctx, s.client, uri)
}

// UploadFile delegates to UploadFileWithClient with the shared client.
func (s *GCSStorageService) UploadFile(ctx context.Context, bucketName, objectName, filePath string) error {
	return UploadFileWithClient(ctx, s.client, bucketName, objectName, filePath)
}

var _ gcs.StorageService = (*GCSStorageService)(nil)
