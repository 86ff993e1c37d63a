package gcsuploader

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/transactions-dataflow/internal/gcs"
)

// ErrObjectNotFound is returned when the requested object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// OpenObjectWithClient opens a streaming reader for a gs:// URI.
// The caller must close the returned reader.
func OpenObjectWithClient(ctx context.Context, client *storage.Client, uri string) (io.ReadCloser, error) {
	bucketName, objectPath, err := gcs.ParseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("OpenObject: %w", err)
	}

	r, err := client.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("OpenObject: %s: %w", uri, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("OpenObject: reading object %s/%s: %w", bucketName, objectPath, err)
	}

	return r, nil
}

// DeleteObjectWithClient deletes the object at a gs:// URI.
func DeleteObjectWithClient(ctx context.Context, client *storage.Client, uri string) error {
	bucketName, objectPath, err := gcs.ParseURI(uri)
	if err != nil {
		return fmt.Errorf("DeleteObject: %w", err)
	}

	if err := client.Bucket(bucketName).Object(objectPath).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("DeleteObject: %s: %w", uri, ErrObjectNotFound)
		}
		return fmt.Errorf("DeleteObject: deleting %s/%s: %w", bucketName, objectPath, err)
	}

	return nil
}
