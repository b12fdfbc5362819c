// Package memory provides an in-memory simpleimageset.BucketStore.
package memory

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/tendant/simple-imageset/pkg/simpleimageset"
)

// Backend is an in-memory implementation of the simpleimageset.BucketStore
// interface. Buckets are created on first write.
type Backend struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

// New creates a new in-memory bucket store
func New() *Backend {
	return &Backend{
		buckets: make(map[string]map[string][]byte),
	}
}

// Upload writes an object into a bucket
func (b *Backend) Upload(ctx context.Context, bucket, objectKey string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return &simpleimageset.StorageFailureError{
			Action: "upload", Bucket: bucket, Key: objectKey,
			StatusCode: http.StatusBadRequest, Body: err.Error(), Err: err,
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.buckets[bucket] == nil {
		b.buckets[bucket] = make(map[string][]byte)
	}
	b.buckets[bucket][objectKey] = data
	return nil
}

// Move relocates an object between buckets
func (b *Backend) Move(ctx context.Context, objectKey, sourceBucket, destBucket string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, exists := b.buckets[sourceBucket][objectKey]
	if !exists {
		return b.notFound("move", sourceBucket, objectKey)
	}

	if b.buckets[destBucket] == nil {
		b.buckets[destBucket] = make(map[string][]byte)
	}
	b.buckets[destBucket][objectKey] = data
	delete(b.buckets[sourceBucket], objectKey)
	return nil
}

// Download reads an object back
func (b *Backend) Download(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.buckets[bucket][objectKey]
	if !exists {
		return nil, b.notFound("download", bucket, objectKey)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes an object
func (b *Backend) Delete(ctx context.Context, bucket, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.buckets[bucket][objectKey]; !exists {
		return b.notFound("delete", bucket, objectKey)
	}
	delete(b.buckets[bucket], objectKey)
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
