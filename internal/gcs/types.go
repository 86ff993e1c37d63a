package gcs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

// URIScheme prefixes every Cloud Storage location handled by the loader.
const URIScheme = "gs://"

// StorageService provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type StorageService interface {
	// OpenObject opens a streaming reader for the object at the given storage URI.
	OpenObject(ctx context.Context, uri string) (io.ReadCloser, error)

	// CreateObject opens a writer for a new object at the given storage URI.
	// The object is committed when the writer is closed.
	CreateObject(ctx context.Context, uri, contentType string) (io.WriteCloser, error)

	// DeleteObject removes the object at the given storage URI.
	DeleteObject(ctx context.Context, uri string) error

	// UploadFile uploads a local file to a storage bucket under the given object name.
	UploadFile(ctx context.Context, bucketName, objectName, filePath string) error
}

// ParseURI splits "gs://bucket/path/to/object" into bucket and object name.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, URIScheme) {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}

	trimmed := strings.TrimPrefix(uri, URIScheme)
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}

	return parts[0], parts[1], nil
}

// ParsePrefix splits a location such as "gs://bucket" or "gs://bucket/temp/"
// into bucket and a prefix without a trailing slash. The prefix may be empty.
func ParsePrefix(location string) (bucket, prefix string, err error) {
	if !strings.HasPrefix(location, URIScheme) {
		return "", "", fmt.Errorf("invalid GCS location: %s", location)
	}

	trimmed := strings.TrimPrefix(location, URIScheme)
	parts := strings.SplitN(trimmed, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid GCS location (no bucket): %s", location)
	}
	if len(parts) == 1 {
		return parts[0], "", nil
	}
	return parts[0], strings.Trim(parts[1], "/"), nil
}

// JoinURI appends name to a storage location, e.g.
// JoinURI("gs://bucket/temp", "run/1.json") → "gs://bucket/temp/run/1.json".
func JoinURI(location, name string) (string, error) {
	bucket, prefix, err := ParsePrefix(location)
	if err != nil {
		return "", err
	}
	return URIScheme + bucket + "/" + path.Join(prefix, name), nil
}

// ObjectURI builds a storage URI from bucket and object name.
func ObjectURI(bucket, object string) string {
	return URIScheme + bucket + "/" + strings.TrimPrefix(object, "/")
}

// ExtractFilenameFromURI extracts the filename from a storage URI.
// e.g., "gs://bucket/folder/file.csv" → "file.csv"
func ExtractFilenameFromURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, URIScheme)

	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}

	return path.Base(parts[1])
}
