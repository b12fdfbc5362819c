package simpleimageset_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-imageset/pkg/simpleimageset"
	repomemory "github.com/tendant/simple-imageset/pkg/simpleimageset/repo/memory"
	memorystorage "github.com/tendant/simple-imageset/pkg/simpleimageset/storage/memory"
	"github.com/tendant/simple-imageset/pkg/simpleimageset/token"
)

// stubProber returns fixed media info, or fails when broken.
type stubProber struct {
	broken bool
}

func (p *stubProber) Probe(ctx context.Context, reader io.Reader, filename string) (*simpleimageset.MediaInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if p.broken {
		return nil, fmt.Errorf("unreadable media in %s", filename)
	}
	return &simpleimageset.MediaInfo{MimeType: "image/jpeg", SizeBytes: int64(len(data))}, nil
}

// failingStore rejects every upload with a storage failure.
type failingStore struct {
	simpleimageset.BucketStore
}

func (s *failingStore) Upload(ctx context.Context, bucket, objectKey string, reader io.Reader) error {
	return &simpleimageset.StorageFailureError{
		Action:     "upload",
		Bucket:     bucket,
		Key:        objectKey,
		StatusCode: http.StatusInsufficientStorage,
		Body:       "bucket full",
	}
}

func setupUploadService(t *testing.T, opts ...simpleimageset.Option) simpleimageset.Service {
	base := []simpleimageset.Option{
		simpleimageset.WithRepository(repomemory.New()),
		simpleimageset.WithBucketStore(memorystorage.New()),
		simpleimageset.WithTokenStore(token.NewMemoryStore()),
		simpleimageset.WithProber(&stubProber{}),
	}
	svc, err := simpleimageset.New(append(base, opts...)...)
	require.NoError(t, err)
	return svc
}

func waitForTerminal(t *testing.T, svc simpleimageset.Service, tokenID string) *token.Token {
	var last *token.Token
	require.Eventually(t, func() bool {
		tok, err := svc.GetUploadToken(context.Background(), tokenID)
		if err != nil {
			return false
		}
		last = tok
		return tok.State.Terminal()
	}, 2*time.Second, 10*time.Millisecond, "upload token never reached a terminal state")
	return last
}

func TestOpenUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path links the file and closes the token", func(t *testing.T) {
		svc := setupUploadService(t)
		owner := newTestOwner(simpleimageset.LifecycleNew)
		createTestImageSet(t, svc, owner)

		tok, err := svc.OpenUpload(ctx, simpleimageset.OpenUploadRequest{
			Owner:    owner,
			FileName: "holiday.jpg",
			File:     strings.NewReader("jpeg bytes"),
		})
		require.NoError(t, err)
		assert.Equal(t, token.StatusCreated, tok.State)
		assert.Equal(t, 3, tok.Max)

		final := waitForTerminal(t, svc, tok.ID)
		assert.Equal(t, token.StatusDone, final.State)
		assert.Equal(t, 3, final.Done)
		assert.Empty(t, final.Error)

		contents, err := svc.GetContents(ctx, simpleimageset.GetContentsRequest{Owner: owner})
		require.NoError(t, err)
		require.Len(t, contents.Entries, 1)
		assert.Equal(t, "incoming", contents.Entries[0].Bucket)

		fileID, err := uuid.Parse(final.Metadata["stored_file_id"].(string))
		require.NoError(t, err)
		assert.Equal(t, fileID, contents.Entries[0].StoredFileID)
	})

	t.Run("disallowed extension fails synchronously", func(t *testing.T) {
		svc := setupUploadService(t)
		owner := newTestOwner(simpleimageset.LifecycleNew)
		createTestImageSet(t, svc, owner)

		_, err := svc.OpenUpload(ctx, simpleimageset.OpenUploadRequest{
			Owner:    owner,
			FileName: "malware.exe",
			File:     strings.NewReader("mz"),
		})
		var unsupported *simpleimageset.UnsupportedFileTypeError
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, ".exe", unsupported.Extension)
	})

	t.Run("blocked lifecycle state fails synchronously", func(t *testing.T) {
		svc := setupUploadService(t)
		owner := newTestOwner("archived")

		_, err := svc.OpenUpload(ctx, simpleimageset.OpenUploadRequest{
			Owner:    owner,
			FileName: "late.jpg",
			File:     strings.NewReader("jpeg bytes"),
		})
		assert.ErrorIs(t, err, simpleimageset.ErrInvalidState)
	})

	t.Run("compliant filename is kept", func(t *testing.T) {
		svc := setupUploadService(t)
		owner := newTestOwner(simpleimageset.LifecycleNew)
		createTestImageSet(t, svc, owner)

		v1, err := uuid.NewUUID()
		require.NoError(t, err)
		name := "is_" + v1.String() + ".jpg"

		tok, err := svc.OpenUpload(ctx, simpleimageset.OpenUploadRequest{
			Owner:    owner,
			FileName: name,
			File:     strings.NewReader("jpeg bytes"),
		})
		require.NoError(t, err)
		assert.Equal(t, name, tok.Metadata["filename"])
	})

	t.Run("non-compliant filename is substituted", func(t *testing.T) {
		svc := setupUploadService(t)
		owner := newTestOwner(simpleimageset.LifecycleNew)
		createTestImageSet(t, svc, owner)

		tok, err := svc.OpenUpload(ctx, simpleimageset.OpenUploadRequest{
			Owner:    owner,
			FileName: "vacation photo.jpg",
			File:     strings.NewReader("jpeg bytes"),
		})
		require.NoError(t, err)

		stored := tok.Metadata["filename"].(string)
		assert.NotEqual(t, "vacation photo.jpg", stored)
		assert.True(t, strings.HasPrefix(stored, simpleimageset.UploadFilenamePrefix))
		assert.True(t, strings.HasSuffix(stored, ".jpg"))
	})

	t.Run("storage failure is recorded in the token", func(t *testing.T) {
		svc := setupUploadService(t, simpleimageset.WithBucketStore(&failingStore{}))
		owner := newTestOwner(simpleimageset.LifecycleNew)
		createTestImageSet(t, svc, owner)

		tok, err := svc.OpenUpload(ctx, simpleimageset.OpenUploadRequest{
			Owner:    owner,
			FileName: "doomed.jpg",
			File:     strings.NewReader("jpeg bytes"),
		})
		require.NoError(t, err)

		final := waitForTerminal(t, svc, tok.ID)
		assert.Equal(t, token.StatusFailed, final.State)
		require.Contains(t, final.Error, "summary")
		assert.Contains(t, final.Error["summary"], "uploading file to bucket")

		filestore, ok := final.Error["filestore"].(map[string]interface{})
		require.True(t, ok, "expected filestore detail in %v", final.Error)
		assert.Equal(t, http.StatusInsufficientStorage, filestore["code"])
		assert.Equal(t, "bucket full", filestore["content"])

		contents, err := svc.GetContents(ctx, simpleimageset.GetContentsRequest{Owner: owner})
		require.NoError(t, err)
		assert.Empty(t, contents.Entries)
	})

	t.Run("probe failure is recorded in the token", func(t *testing.T) {
		svc := setupUploadService(t, simpleimageset.WithProber(&stubProber{broken: true}))
		owner := newTestOwner(simpleimageset.LifecycleNew)
		createTestImageSet(t, svc, owner)

		tok, err := svc.OpenUpload(ctx, simpleimageset.OpenUploadRequest{
			Owner:    owner,
			FileName: "corrupt.jpg",
			File:     strings.NewReader("not a jpeg"),
		})
		require.NoError(t, err)

		final := waitForTerminal(t, svc, tok.ID)
		assert.Equal(t, token.StatusFailed, final.State)
		assert.Contains(t, final.Error["summary"], "parsing media information")
	})

	t.Run("missing collaborators fail synchronously", func(t *testing.T) {
		owner := newTestOwner(simpleimageset.LifecycleNew)

		svc, err := simpleimageset.New(simpleimageset.WithRepository(repomemory.New()))
		require.NoError(t, err)

		_, err = svc.OpenUpload(ctx, simpleimageset.OpenUploadRequest{
			Owner:    owner,
			FileName: "orphan.jpg",
			File:     strings.NewReader("jpeg bytes"),
		})
		assert.True(t, errors.Is(err, simpleimageset.ErrNoTokenStore) ||
			errors.Is(err, simpleimageset.ErrNoBucketStore) ||
			errors.Is(err, simpleimageset.ErrNoProber))
	})
}
