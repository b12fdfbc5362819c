// Package memory provides an in-memory simpleimageset.Repository, suitable
// for tests and single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/tendant/simple-imageset/pkg/simpleimageset"
)

// Repository implements simpleimageset.Repository using in-memory storage.
type Repository struct {
	mu          sync.RWMutex
	imagesets   map[uuid.UUID]*simpleimageset.ImageSet
	entries     map[uuid.UUID]map[int]*simpleimageset.Entry
	storedFiles map[uuid.UUID]*simpleimageset.StoredFile

	// containerLocks serializes sequence mutations per imageset id.
	containerLocks sync.Map // uuid.UUID -> *sync.Mutex
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		imagesets:   make(map[uuid.UUID]*simpleimageset.ImageSet),
		entries:     make(map[uuid.UUID]map[int]*simpleimageset.Entry),
		storedFiles: make(map[uuid.UUID]*simpleimageset.StoredFile),
	}
}

// Imageset operations

func (r *Repository) CreateImageSet(ctx context.Context, set *simpleimageset.ImageSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.imagesets[set.ID]; exists {
		return simpleimageset.ErrImageSetExists
	}

	setCopy := *set
	r.imagesets[set.ID] = &setCopy
	r.entries[set.ID] = make(map[int]*simpleimageset.Entry)
	return nil
}

func (r *Repository) GetImageSet(ctx context.Context, id uuid.UUID) (*simpleimageset.ImageSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, exists := r.imagesets[id]
	if !exists {
		return nil, simpleimageset.ErrImageSetNotFound
	}

	setCopy := *set
	return &setCopy, nil
}

func (r *Repository) UpdateImageSet(ctx context.Context, set *simpleimageset.ImageSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.imagesets[set.ID]; !exists {
		return simpleimageset.ErrImageSetNotFound
	}

	setCopy := *set
	r.imagesets[set.ID] = &setCopy
	return nil
}

// Entry operations

func (r *Repository) ListEntries(ctx context.Context, imagesetID uuid.UUID) ([]*simpleimageset.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byPosition, exists := r.entries[imagesetID]
	if !exists {
		return nil, simpleimageset.ErrImageSetNotFound
	}

	result := make([]*simpleimageset.Entry, 0, len(byPosition))
	for _, entry := range byPosition {
		entryCopy := *entry
		result = append(result, &entryCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Position < result[j].Position
	})
	return result, nil
}

func (r *Repository) CreateEntry(ctx context.Context, entry *simpleimageset.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byPosition, exists := r.entries[entry.ImageSetID]
	if !exists {
		return simpleimageset.ErrImageSetNotFound
	}
	if _, occupied := byPosition[entry.Position]; occupied {
		return simpleimageset.ErrPositionOccupied
	}

	entryCopy := *entry
	byPosition[entry.Position] = &entryCopy
	return nil
}

func (r *Repository) DeleteEntryAt(ctx context.Context, imagesetID uuid.UUID, position int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byPosition, exists := r.entries[imagesetID]
	if !exists {
		return simpleimageset.ErrImageSetNotFound
	}
	if _, occupied := byPosition[position]; !occupied {
		return simpleimageset.ErrEntryNotFound
	}

	delete(byPosition, position)
	return nil
}

func (r *Repository) MoveEntry(ctx context.Context, imagesetID uuid.UUID, from, to int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byPosition, exists := r.entries[imagesetID]
	if !exists {
		return simpleimageset.ErrImageSetNotFound
	}
	entry, occupied := byPosition[from]
	if !occupied {
		return simpleimageset.ErrEntryNotFound
	}
	if _, occupied := byPosition[to]; occupied {
		return simpleimageset.ErrPositionOccupied
	}

	delete(byPosition, from)
	entry.Position = to
	byPosition[to] = entry
	return nil
}

// Stored file operations

func (r *Repository) CreateStoredFile(ctx context.Context, file *simpleimageset.StoredFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fileCopy := *file
	r.storedFiles[file.ID] = &fileCopy
	return nil
}

func (r *Repository) GetStoredFile(ctx context.Context, id uuid.UUID) (*simpleimageset.StoredFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	file, exists := r.storedFiles[id]
	if !exists {
		return nil, simpleimageset.ErrStoredFileNotFound
	}

	fileCopy := *file
	return &fileCopy, nil
}

func (r *Repository) UpdateStoredFile(ctx context.Context, file *simpleimageset.StoredFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.storedFiles[file.ID]; !exists {
		return simpleimageset.ErrStoredFileNotFound
	}

	fileCopy := *file
	r.storedFiles[file.ID] = &fileCopy
	return nil
}

// WithContainerLock serializes sequence mutations for one imageset. Locks
// for distinct imagesets are independent.
func (r *Repository) WithContainerLock(ctx context.Context, imagesetID uuid.UUID, fn func(simpleimageset.Repository) error) error {
	lock, _ := r.containerLocks.LoadOrStore(imagesetID, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	return fn(r)
}
