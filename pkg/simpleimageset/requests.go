package simpleimageset

import (
	"io"

	"github.com/google/uuid"
)

// Request DTOs

// CreateImageSetRequest contains parameters for creating a container. The ID
// is shared with the owning entity and must be supplied by the caller.
type CreateImageSetRequest struct {
	ID uuid.UUID
}

// SetDefaultDurationRequest updates the container's default display duration.
type SetDefaultDurationRequest struct {
	Owner    SequencedContentOwner
	User     uuid.UUID
	Duration int
}

// SetColorsRequest updates the container's display colors. Nil leaves a color
// cleared; the strings are free-form.
type SetColorsRequest struct {
	Owner   SequencedContentOwner
	User    uuid.UUID
	BGColor *string
	Color   *string
}

// GetContentsRequest reads the container's ordered contents.
type GetContentsRequest struct {
	Owner SequencedContentOwner
	User  uuid.UUID
}

// AddEntryRequest links a stored file into the container's sequence. Position
// nil appends at the next free position. Duration nil falls back to the
// container default at read time.
type AddEntryRequest struct {
	Owner        SequencedContentOwner
	User         uuid.UUID
	StoredFileID uuid.UUID
	Position     *int
	Duration     *int
}

// RemoveEntryRequest removes the entry at the given position.
type RemoveEntryRequest struct {
	Owner    SequencedContentOwner
	User     uuid.UUID
	Position int
}

// OpenUploadRequest starts the upload pipeline for one file. FileName is the
// client-supplied name; it is validated for its extension and normalized
// before storage. File is consumed synchronously before OpenUpload returns.
type OpenUploadRequest struct {
	Owner    SequencedContentOwner
	User     uuid.UUID
	FileName string
	File     io.Reader
}

// PublishRequest moves the container's backing objects into the publish
// bucket. Invoked when the owning entity transitions to active.
type PublishRequest struct {
	Owner SequencedContentOwner
}
