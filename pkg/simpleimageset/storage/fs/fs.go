// Package fs provides a filesystem-backed simpleimageset.BucketStore.
// Buckets map to subdirectories of the base directory.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/tendant/simple-imageset/pkg/simpleimageset"
)

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing files
}

// Backend is a filesystem implementation of the simpleimageset.BucketStore
// interface.
type Backend struct {
	baseDir string
}

// New creates a new filesystem bucket store
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Backend{baseDir: config.BaseDir}, nil
}

func (b *Backend) path(bucket, objectKey string) string {
	return filepath.Join(b.baseDir, bucket, filepath.FromSlash(objectKey))
}

// Upload writes an object into a bucket
func (b *Backend) Upload(ctx context.Context, bucket, objectKey string, reader io.Reader) error {
	target := b.path(bucket, objectKey)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return b.failure("upload", bucket, objectKey, err)
	}

	f, err := os.Create(target)
	if err != nil {
		return b.failure("upload", bucket, objectKey, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		os.Remove(target)
		return b.failure("upload", bucket, objectKey, err)
	}
	return nil
}

// Move relocates an object between buckets
func (b *Backend) Move(ctx context.Context, objectKey, sourceBucket, destBucket string) error {
	source := b.path(sourceBucket, objectKey)
	if _, err := os.Stat(source); os.IsNotExist(err) {
		return b.notFound("move", sourceBucket, objectKey)
	}

	target := b.path(destBucket, objectKey)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return b.failure("move", destBucket, objectKey, err)
	}
	if err := os.Rename(source, target); err != nil {
		return b.failure("move", sourceBucket, objectKey, err)
	}
	return nil
}

// Download reads an object back
func (b *Backend) Download(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error) {
	f, err := os.Open(b.path(bucket, objectKey))
	if os.IsNotExist(err) {
		return nil, b.notFound("download", bucket, objectKey)
	}
	if err != nil {
		return nil, b.failure("download", bucket, objectKey, err)
	}
	return f, nil
}

// Delete removes an object
func (b *Backend) Delete(ctx context.Context, bucket, objectKey string) error {
	err := os.Remove(b.path(bucket, objectKey))
	if os.IsNotExist(err) {
		return b.notFound("delete", bucket, objectKey)
	}
	if err != nil {
		return b.failure("delete", bucket, objectKey, err)
	}
	return nil
}

func (b *Backend) notFound(action, bucket, objectKey string) error {
	return &simpleimageset.StorageFailureError{
		Action:     action,
		Bucket:     bucket,
		Key:        objectKey,
		StatusCode: http.StatusNotFound,
		Body:       "object not found",
	}
}

func (b *Backend) failure(action, bucket, objectKey string, err error) error {
	return &simpleimageset.StorageFailureError{
		Action:     action,
		Bucket:     bucket,
		Key:        objectKey,
		StatusCode: http.StatusInternalServerError,
		Body:       err.Error(),
		Err:        err,
	}
}
