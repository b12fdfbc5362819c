package simpleimageset

import (
	"context"

	"github.com/google/uuid"

	"github.com/tendant/simple-imageset/pkg/simpleimageset/token"
)

// Service is the main interface for imageset operations.
type Service interface {
	// Container lifecycle
	CreateImageSet(ctx context.Context, req CreateImageSetRequest) (*ImageSet, error)
	GetImageSet(ctx context.Context, id uuid.UUID) (*ImageSet, error)
	SetDefaultDuration(ctx context.Context, req SetDefaultDurationRequest) (*ImageSet, error)
	SetColors(ctx context.Context, req SetColorsRequest) (*ImageSet, error)

	// Sequenced contents
	GetContents(ctx context.Context, req GetContentsRequest) (*ImageSetContents, error)
	NextPosition(ctx context.Context, imagesetID uuid.UUID) (int, error)
	AddEntry(ctx context.Context, req AddEntryRequest) (*Entry, error)
	RemoveEntry(ctx context.Context, req RemoveEntryRequest) error

	// Upload pipeline. The returned token is the caller's only handle on the
	// asynchronous phase; poll GetUploadToken until it reports done or failed.
	OpenUpload(ctx context.Context, req OpenUploadRequest) (*token.Token, error)
	GetUploadToken(ctx context.Context, id string) (*token.Token, error)

	// Publish workflow
	PublishImageSet(ctx context.Context, req PublishRequest) (*PublishResult, error)
	Published(ctx context.Context, owner SequencedContentOwner) (bool, error)

	// Stored files
	RegisterStoredFile(ctx context.Context, file *StoredFile) error
	GetStoredFile(ctx context.Context, id uuid.UUID) (*StoredFile, error)
}
