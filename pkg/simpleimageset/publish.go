package simpleimageset

import (
	"context"
	"errors"
	"fmt"
)

// Publish workflow. Triggered when the owning entity transitions to active:
// every sequenced entry whose backing object still lives in the upload bucket
// is moved to the publish bucket. Items run independently; one failure is
// logged and does not abort the rest.

func (s *service) PublishImageSet(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	if s.store == nil {
		return nil, ErrNoBucketStore
	}
	if req.Owner.Lifecycle() != LifecycleActive {
		return nil, fmt.Errorf("%w: publish requires an active owner, got %s",
			ErrInvalidState, req.Owner.Lifecycle())
	}

	setID := req.Owner.ImageSetID()
	entries, err := s.repo.ListEntries(ctx, setID)
	if err != nil {
		return nil, err
	}

	result := &PublishResult{ImageSetID: setID}
	for _, entry := range entries {
		file, err := s.repo.GetStoredFile(ctx, entry.StoredFileID)
		if err != nil {
			result.Items = append(result.Items, PublishItem{StoredFileID: entry.StoredFileID, Err: err})
			continue
		}
		if file.Bucket != s.cfg.UploadBucket {
			result.Items = append(result.Items, PublishItem{
				StoredFileID: file.ID,
				ObjectKey:    file.ObjectKey,
			})
			continue
		}

		s.logger.Info("publishing imageset file", "imageset_id", setID, "object_key", file.ObjectKey)

		if err := s.store.Move(ctx, file.ObjectKey, s.cfg.UploadBucket, s.cfg.PublishBucket); err != nil {
			var storageErr *StorageFailureError
			if errors.As(err, &storageErr) {
				s.logger.Warn("publishing imageset file failed",
					"object_key", file.ObjectKey,
					"code", storageErr.StatusCode,
					"body", storageErr.Body)
			} else {
				s.logger.Warn("publishing imageset file failed", "object_key", file.ObjectKey, "err", err)
			}
			result.Items = append(result.Items, PublishItem{
				StoredFileID: file.ID,
				ObjectKey:    file.ObjectKey,
				Err:          err,
			})
			continue
		}

		file.Bucket = s.cfg.PublishBucket
		if err := s.repo.UpdateStoredFile(ctx, file); err != nil {
			result.Items = append(result.Items, PublishItem{
				StoredFileID: file.ID,
				ObjectKey:    file.ObjectKey,
				Err:          err,
			})
			continue
		}

		result.Items = append(result.Items, PublishItem{
			StoredFileID: file.ID,
			ObjectKey:    file.ObjectKey,
			Moved:        true,
		})
	}

	return result, nil
}

// Published is the derived predicate: the owner is active and every entry's
// backing object resides in the publish bucket. It is recomputed on each
// call, never stored.
func (s *service) Published(ctx context.Context, owner SequencedContentOwner) (bool, error) {
	if owner.Lifecycle() != LifecycleActive {
		return false, nil
	}

	entries, err := s.repo.ListEntries(ctx, owner.ImageSetID())
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		file, err := s.repo.GetStoredFile(ctx, entry.StoredFileID)
		if err != nil {
			return false, err
		}
		if file.Bucket != s.cfg.PublishBucket {
			return false, nil
		}
	}
	return true, nil
}
