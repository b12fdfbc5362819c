package simpleimageset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-imageset/pkg/simpleimageset/token"
)

// Upload pipeline. The synchronous phase validates the extension, probes
// permission, normalizes the storage filename, buffers the stream and opens a
// progress token; everything after that runs on a detached goroutine whose
// only channel back to the caller is the token.

const (
	stepParsing   = "parsing media information"
	stepUploading = "uploading file to bucket"
	stepLinking   = "linking file to imageset"
	stepFinishing = "finishing"
)

func (s *service) OpenUpload(ctx context.Context, req OpenUploadRequest) (*token.Token, error) {
	if s.tokens == nil {
		return nil, ErrNoTokenStore
	}
	if s.store == nil {
		return nil, ErrNoBucketStore
	}
	if s.prober == nil {
		return nil, ErrNoProber
	}

	ext := filepath.Ext(req.FileName)
	if !extensionAllowed(ext, s.cfg.AllowedExtensions) {
		return nil, &UnsupportedFileTypeError{Extension: ext, Allowed: s.cfg.AllowedExtensions}
	}

	// Permission probe runs before any token is opened or work scheduled so
	// the caller sees authorization failures synchronously.
	if err := s.gate(ctx, req.Owner, ActionAddContent, req.User); err != nil {
		return nil, err
	}

	storageFilename, kept := NormalizeUploadFilename(req.FileName)
	if !kept {
		s.logger.Warn("non-compliant upload filename, substituting generated identifier",
			"supplied", req.FileName, "normalized", storageFilename)
	}

	// Buffer the stream now; the reader belongs to the request and will not
	// outlive it.
	data, err := io.ReadAll(req.File)
	if err != nil {
		return nil, fmt.Errorf("reading upload stream: %w", err)
	}

	tok, err := s.tokens.Open(ctx, token.OpenRequest{
		Namespace: s.cfg.TokenNamespace,
		User:      req.User,
		Current:   "request created",
		Metadata: map[string]interface{}{
			"imageset_id": req.Owner.ImageSetID().String(),
			"filename":    storageFilename,
		},
		ProgressMax: 3,
		TTL:         s.cfg.UploadTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("opening upload token: %w", err)
	}

	go s.runUpload(context.WithoutCancel(ctx), req.Owner, req.User, storageFilename, data, tok.ID)

	return tok, nil
}

// runUpload is the asynchronous phase. Failures are recorded in the token,
// never surfaced to the already-returned caller; a token lost to TTL expiry
// downgrades every update to a log line.
func (s *service) runUpload(ctx context.Context, owner SequencedContentOwner, user uuid.UUID, filename string, data []byte, tokenID string) {
	inProgress := token.StatusInProgress
	s.updateToken(ctx, tokenID, token.Update{
		State:   &inProgress,
		Current: ptr(stepParsing),
		Max:     ptr(3),
	})

	// 1. Parse
	info, err := s.prober.Probe(ctx, bytes.NewReader(data), filename)
	if err != nil {
		s.failToken(ctx, tokenID, stepParsing, err)
		return
	}

	s.updateToken(ctx, tokenID, token.Update{
		Current: ptr(stepUploading),
		Done:    ptr(1),
	})

	// 2. Store
	objectKey := owner.ImageSetID().String() + "/" + filename
	if err := s.store.Upload(ctx, s.cfg.UploadBucket, objectKey, bytes.NewReader(data)); err != nil {
		s.failToken(ctx, tokenID, stepUploading, err)
		return
	}

	file := &StoredFile{
		ID:        uuid.New(),
		OwnerRef:  owner.SubjectRef(),
		Bucket:    s.cfg.UploadBucket,
		ObjectKey: objectKey,
		FileName:  filename,
		MimeType:  info.MimeType,
		SizeBytes: info.SizeBytes,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateStoredFile(ctx, file); err != nil {
		s.failToken(ctx, tokenID, stepUploading, err)
		return
	}

	s.updateToken(ctx, tokenID, token.Update{
		Current:  ptr(stepLinking),
		Done:     ptr(2),
		Metadata: map[string]interface{}{"stored_file_id": file.ID.String()},
	})

	// 3. Link. AddEntry re-validates state and permission on its own.
	if _, err := s.AddEntry(ctx, AddEntryRequest{
		Owner:        owner,
		User:         user,
		StoredFileID: file.ID,
	}); err != nil {
		s.failToken(ctx, tokenID, stepLinking, err)
		return
	}

	s.updateToken(ctx, tokenID, token.Update{
		Current: ptr(stepFinishing),
		Done:    ptr(3),
	})

	if _, err := s.tokens.Close(ctx, s.cfg.TokenNamespace, tokenID); err != nil {
		s.logger.Warn("closing upload token", "token_id", tokenID, "err", err)
	}
}

// updateToken applies a token update, logging instead of propagating
// failures: a missing or expired token must never crash the pipeline.
func (s *service) updateToken(ctx context.Context, tokenID string, upd token.Update) {
	if _, err := s.tokens.Update(ctx, s.cfg.TokenNamespace, tokenID, upd); err != nil {
		if errors.Is(err, token.ErrNotFound) {
			s.logger.Warn("upload token gone, continuing without progress reporting", "token_id", tokenID)
			return
		}
		s.logger.Warn("updating upload token", "token_id", tokenID, "err", err)
	}
}

// failToken records a pipeline failure in the token. Storage failures keep
// their upstream status code and body so pollers see the same error surface
// the pipeline did.
func (s *service) failToken(ctx context.Context, tokenID, action string, err error) {
	s.logger.Warn("upload pipeline failed", slog.String("action", action), "token_id", tokenID, "err", err)

	payload := map[string]interface{}{
		"summary": fmt.Sprintf("exception while %s", action),
	}
	var storageErr *StorageFailureError
	if errors.As(err, &storageErr) {
		payload["filestore"] = map[string]interface{}{
			"code":    storageErr.StatusCode,
			"content": storageErr.Body,
		}
	} else {
		payload["error"] = err.Error()
	}

	failed := token.StatusFailed
	s.updateToken(ctx, tokenID, token.Update{
		State: &failed,
		Error: payload,
	})
}

func ptr[T any](v T) *T { return &v }
