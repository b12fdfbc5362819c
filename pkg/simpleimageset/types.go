package simpleimageset

import (
	"time"

	"github.com/google/uuid"
)

// LifecycleStatus is the lifecycle state of the entity owning an imageset.
// The owning entity itself is managed elsewhere; the imageset service only
// gates mutations on these states and triggers publishing on activation.
type LifecycleStatus string

const (
	LifecycleNew      LifecycleStatus = "new"
	LifecycleApproval LifecycleStatus = "approval"
	LifecycleActive   LifecycleStatus = "active"
)

// DefaultDisplayDuration is the display duration assigned to a new imageset.
const DefaultDisplayDuration = 10

// ImageSet is the ordered-collection container. It shares its identifier 1:1
// with the owning entity and is created exactly once, when that entity is
// first persisted.
type ImageSet struct {
	ID              uuid.UUID `json:"id"`
	DefaultDuration int       `json:"default_duration"`
	BGColor         *string   `json:"bgcolor,omitempty"`
	Color           *string   `json:"color,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Entry is one sequenced record inside an imageset. Positions within one
// imageset are unique and dense: for N entries the position set is exactly
// {0, 1, ..., N-1}. Duration is nil when the entry falls back to the
// imageset default, resolved at read time.
type Entry struct {
	ImageSetID   uuid.UUID `json:"imageset_id"`
	StoredFileID uuid.UUID `json:"stored_file_id"`
	Position     int       `json:"position"`
	Duration     *int      `json:"duration,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// StoredFile is the record backing a sequenced entry: one object in one
// bucket, owned by the same entity as the imageset it is linked into.
type StoredFile struct {
	ID        uuid.UUID `json:"id"`
	OwnerRef  string    `json:"owner_ref"`
	Bucket    string    `json:"bucket"`
	ObjectKey string    `json:"object_key"`
	FileName  string    `json:"file_name"`
	MimeType  string    `json:"mime_type,omitempty"`
	SizeBytes int64     `json:"size_bytes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MediaInfo is the result of probing an uploaded file.
type MediaInfo struct {
	MimeType  string `json:"mime_type"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	SizeBytes int64  `json:"size_bytes"`
}

// ExportedEntry is the read-model projection of an Entry. Duration is always
// resolved: entries without an override report the imageset default.
type ExportedEntry struct {
	Position     int       `json:"position"`
	Duration     int       `json:"duration"`
	StoredFileID uuid.UUID `json:"stored_file_id"`
	Bucket       string    `json:"bucket"`
	ObjectKey    string    `json:"object_key"`
	URL          string    `json:"url,omitempty"`
}

// ImageSetContents is the exported read model for one imageset, ordered by
// position ascending.
type ImageSetContents struct {
	ImageSetID      uuid.UUID       `json:"imageset_id"`
	DefaultDuration int             `json:"default_duration"`
	BGColor         *string         `json:"bgcolor,omitempty"`
	Color           *string         `json:"color,omitempty"`
	Entries         []ExportedEntry `json:"entries"`
}

// PublishItem is the per-entry outcome of a publish run. Err is nil for
// objects that were moved (or already lived) in the publish bucket.
type PublishItem struct {
	StoredFileID uuid.UUID `json:"stored_file_id"`
	ObjectKey    string    `json:"object_key"`
	Moved        bool      `json:"moved"`
	Err          error     `json:"-"`
}

// PublishResult summarizes a publish run. One item failing does not abort the
// others; callers inspect Items for partial failure.
type PublishResult struct {
	ImageSetID uuid.UUID     `json:"imageset_id"`
	Items      []PublishItem `json:"items"`
}

// Failed reports whether any item in the run failed to move.
func (r *PublishResult) Failed() bool {
	for _, item := range r.Items {
		if item.Err != nil {
			return true
		}
	}
	return false
}
