package simpleimageset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrImageSetNotFound indicates the imageset container was not found
	ErrImageSetNotFound = errors.New("imageset not found")

	// ErrImageSetExists indicates a container already exists for the owner
	ErrImageSetExists = errors.New("imageset already exists")

	// ErrEntryNotFound indicates no entry exists at the requested position
	ErrEntryNotFound = errors.New("no entry at position")

	// ErrStoredFileNotFound indicates a stored file record was not found
	ErrStoredFileNotFound = errors.New("stored file not found")

	// ErrPositionOccupied indicates a write targeted an occupied position
	ErrPositionOccupied = errors.New("position already occupied")

	// ErrInvalidDuration indicates a non-positive display duration
	ErrInvalidDuration = errors.New("duration must be a positive integer")

	// ErrInvalidPosition indicates a negative target position
	ErrInvalidPosition = errors.New("position must be a non-negative integer")

	// ErrPermissionDenied indicates an authorization failure
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidState indicates the owner lifecycle state forbids the operation
	ErrInvalidState = errors.New("operation not allowed in current lifecycle state")

	// ErrNoTokenStore indicates the upload pipeline has no token store configured
	ErrNoTokenStore = errors.New("no token store configured")

	// ErrNoBucketStore indicates no bucket store is configured
	ErrNoBucketStore = errors.New("no bucket store configured")

	// ErrNoProber indicates no media prober is configured
	ErrNoProber = errors.New("no media prober configured")
)

// UnsupportedFileTypeError is returned synchronously when an upload carries an
// extension outside the configured allow-list.
type UnsupportedFileTypeError struct {
	Extension string
	Allowed   []string
}

func (e *UnsupportedFileTypeError) Error() string {
	return fmt.Sprintf("unsupported file extension %q, supported extensions are %s",
		e.Extension, strings.Join(e.Allowed, ", "))
}

// StorageFailureError wraps a failed bucket store call. StatusCode and Body
// carry the upstream error surface so pipeline failures can be reported into
// progress tokens verbatim.
type StorageFailureError struct {
	Action     string
	Bucket     string
	Key        string
	StatusCode int
	Body       string
	Err        error
}

func (e *StorageFailureError) Error() string {
	return fmt.Sprintf("storage %s failed for key %s in bucket %s: HTTP %d %s",
		e.Action, e.Key, e.Bucket, e.StatusCode, e.Body)
}

func (e *StorageFailureError) Unwrap() error {
	return e.Err
}

// ImageSetError wraps an error from a container operation.
type ImageSetError struct {
	ImageSetID uuid.UUID
	Op         string
	Err        error
}

func (e *ImageSetError) Error() string {
	return fmt.Sprintf("imageset operation %s failed for %s: %v", e.Op, e.ImageSetID, e.Err)
}

func (e *ImageSetError) Unwrap() error {
	return e.Err
}
