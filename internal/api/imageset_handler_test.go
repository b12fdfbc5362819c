package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-imageset/pkg/simpleimageset"
	"github.com/tendant/simple-imageset/pkg/simpleimageset/media"
	repomemory "github.com/tendant/simple-imageset/pkg/simpleimageset/repo/memory"
	memorystorage "github.com/tendant/simple-imageset/pkg/simpleimageset/storage/memory"
	"github.com/tendant/simple-imageset/pkg/simpleimageset/token"
)

func setupHandler(t *testing.T) (simpleimageset.Service, *httptest.Server) {
	svc, err := simpleimageset.New(
		simpleimageset.WithRepository(repomemory.New()),
		simpleimageset.WithBucketStore(memorystorage.New()),
		simpleimageset.WithTokenStore(token.NewMemoryStore()),
		simpleimageset.WithProber(media.NewBasicProber()),
	)
	require.NoError(t, err)

	resolver := func(r *http.Request, id uuid.UUID) (simpleimageset.SequencedContentOwner, error) {
		lifecycle := simpleimageset.LifecycleNew
		if v := r.Header.Get("X-Owner-Lifecycle"); v != "" {
			lifecycle = simpleimageset.LifecycleStatus(v)
		}
		return simpleimageset.StaticOwner{
			ID:     id,
			Ref:    "imageset/" + id.String(),
			Status: lifecycle,
		}, nil
	}

	handler := NewImageSetHandler(svc, resolver)
	server := httptest.NewServer(handler.Routes())
	t.Cleanup(server.Close)
	return svc, server
}

func createViaAPI(t *testing.T, server *httptest.Server) uuid.UUID {
	id := uuid.New()
	body := fmt.Sprintf(`{"id": %q}`, id)
	resp, err := http.Post(server.URL+"/", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return id
}

func decodeJSON(t *testing.T, resp *http.Response, into interface{}) {
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func TestCreateAndGetImageSet(t *testing.T) {
	_, server := setupHandler(t)

	id := createViaAPI(t, server)

	resp, err := http.Get(server.URL + "/" + id.String())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var contents simpleimageset.ImageSetContents
	decodeJSON(t, resp, &contents)
	assert.Equal(t, id, contents.ImageSetID)
	assert.Equal(t, simpleimageset.DefaultDisplayDuration, contents.DefaultDuration)
	assert.Empty(t, contents.Entries)

	t.Run("unknown imageset is 404", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/" + uuid.NewString())
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("bad id is 400", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/not-a-uuid")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func doJSON(t *testing.T, method, url, body string) *http.Response {
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestSetDurationEndpoint(t *testing.T) {
	_, server := setupHandler(t)
	id := createViaAPI(t, server)

	resp := doJSON(t, http.MethodPut, server.URL+"/"+id.String()+"/duration", `{"duration": 30}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var set simpleimageset.ImageSet
	decodeJSON(t, resp, &set)
	assert.Equal(t, 30, set.DefaultDuration)

	t.Run("invalid duration is 400", func(t *testing.T) {
		resp := doJSON(t, http.MethodPut, server.URL+"/"+id.String()+"/duration", `{"duration": 0}`)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("blocked lifecycle is 409", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPut, server.URL+"/"+id.String()+"/duration", strings.NewReader(`{"duration": 15}`))
		require.NoError(t, err)
		req.Header.Set("X-Owner-Lifecycle", "deleted")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestEntryEndpoints(t *testing.T) {
	svc, server := setupHandler(t)
	id := createViaAPI(t, server)

	file := &simpleimageset.StoredFile{
		OwnerRef:  "imageset/" + id.String(),
		Bucket:    "incoming",
		ObjectKey: id.String() + "/is_a.png",
		FileName:  "is_a.png",
	}
	require.NoError(t, svc.RegisterStoredFile(context.Background(), file))

	body := fmt.Sprintf(`{"stored_file_id": %q}`, file.ID)
	resp := doJSON(t, http.MethodPost, server.URL+"/"+id.String()+"/entries", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var entry simpleimageset.Entry
	decodeJSON(t, resp, &entry)
	assert.Equal(t, 0, entry.Position)

	t.Run("next position reflects the entry", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/" + id.String() + "/next-position")
		require.NoError(t, err)
		var out map[string]int
		decodeJSON(t, resp, &out)
		assert.Equal(t, 1, out["next_position"])
	})

	t.Run("remove entry", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, server.URL+"/"+id.String()+"/entries/0", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	t.Run("removing a vacant position is 400", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, server.URL+"/"+id.String()+"/entries/5", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("negative position is 400", func(t *testing.T) {
		file := &simpleimageset.StoredFile{
			OwnerRef:  "imageset/" + id.String(),
			Bucket:    "incoming",
			ObjectKey: id.String() + "/is_c.png",
			FileName:  "is_c.png",
		}
		require.NoError(t, svc.RegisterStoredFile(context.Background(), file))

		body := fmt.Sprintf(`{"stored_file_id": %q, "position": -1}`, file.ID)
		resp := doJSON(t, http.MethodPost, server.URL+"/"+id.String()+"/entries", body)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func multipartUpload(t *testing.T, url, filename string, payload []byte) *http.Response {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(url, mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	return resp
}

func TestUploadEndpoint(t *testing.T) {
	_, server := setupHandler(t)
	id := createViaAPI(t, server)

	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 2, 2))))

	resp := multipartUpload(t, server.URL+"/"+id.String()+"/upload", "photo.png", img.Bytes())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var tok token.Token
	decodeJSON(t, resp, &tok)
	require.NotEmpty(t, tok.ID)

	require.Eventually(t, func() bool {
		resp, err := http.Get(server.URL + "/tokens/" + tok.ID)
		if err != nil {
			return false
		}
		var polled token.Token
		decodeJSON(t, resp, &polled)
		return polled.State == token.StatusDone
	}, 2*time.Second, 10*time.Millisecond)

	t.Run("disallowed extension is 406", func(t *testing.T) {
		resp := multipartUpload(t, server.URL+"/"+id.String()+"/upload", "tool.exe", []byte("mz"))
		resp.Body.Close()
		assert.Equal(t, http.StatusNotAcceptable, resp.StatusCode)
	})

	t.Run("unknown token is 404", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/tokens/missing")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestPublishEndpoints(t *testing.T) {
	svc, server := setupHandler(t)
	id := createViaAPI(t, server)

	t.Run("empty active imageset reports published", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, server.URL+"/"+id.String()+"/published", nil)
		require.NoError(t, err)
		req.Header.Set("X-Owner-Lifecycle", string(simpleimageset.LifecycleActive))
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)

		var out map[string]bool
		decodeJSON(t, resp, &out)
		assert.True(t, out["published"])
	})

	t.Run("publish run reports items", func(t *testing.T) {
		file := &simpleimageset.StoredFile{
			OwnerRef:  "imageset/" + id.String(),
			Bucket:    "incoming",
			ObjectKey: id.String() + "/is_b.png",
			FileName:  "is_b.png",
		}
		require.NoError(t, svc.RegisterStoredFile(context.Background(), file))
		_, err := svc.AddEntry(context.Background(), simpleimageset.AddEntryRequest{
			Owner: simpleimageset.StaticOwner{
				ID:     id,
				Ref:    "imageset/" + id.String(),
				Status: simpleimageset.LifecycleNew,
			},
			StoredFileID: file.ID,
		})
		require.NoError(t, err)

		req, err := http.NewRequest(http.MethodPost, server.URL+"/"+id.String()+"/publish", nil)
		require.NoError(t, err)
		req.Header.Set("X-Owner-Lifecycle", string(simpleimageset.LifecycleActive))
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)

		// The backing object was never written, so the single item fails and
		// the run reports partial success.
		assert.Equal(t, http.StatusMultiStatus, resp.StatusCode)

		var result simpleimageset.PublishResult
		decodeJSON(t, resp, &result)
		require.Len(t, result.Items, 1)
		assert.False(t, result.Items[0].Moved)
	})
}
