package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/simple-imageset/pkg/simpleimageset"
	"github.com/tendant/simple-imageset/pkg/simpleimageset/token"
)

// Resolver resolves an imageset id to the owning entity. The owning entity
// lives outside this service; deployments plug in their own resolver.
type Resolver func(r *http.Request, id uuid.UUID) (simpleimageset.SequencedContentOwner, error)

// ImageSetHandler handles HTTP requests for imagesets
type ImageSetHandler struct {
	service  simpleimageset.Service
	resolver Resolver
}

// NewImageSetHandler creates a new imageset handler
func NewImageSetHandler(service simpleimageset.Service, resolver Resolver) *ImageSetHandler {
	return &ImageSetHandler{service: service, resolver: resolver}
}

// Routes returns the routes for imagesets
func (h *ImageSetHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateImageSet)
	r.Get("/{id}", h.GetContents)
	r.Put("/{id}/duration", h.SetDefaultDuration)
	r.Put("/{id}/colors", h.SetColors)
	r.Get("/{id}/next-position", h.NextPosition)

	r.Post("/{id}/entries", h.AddEntry)
	r.Delete("/{id}/entries/{position}", h.RemoveEntry)

	r.Post("/{id}/upload", h.Upload)
	r.Get("/tokens/{tokenID}", h.GetUploadToken)

	r.Post("/{id}/publish", h.Publish)
	r.Get("/{id}/published", h.Published)

	return r
}

// CreateImageSetRequest is the request body for creating an imageset
type CreateImageSetRequest struct {
	ID string `json:"id"`
}

// CreateImageSet creates a new imageset sharing its id with the owning entity
func (h *ImageSetHandler) CreateImageSet(w http.ResponseWriter, r *http.Request) {
	var req CreateImageSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := uuid.Parse(req.ID)
	if err != nil {
		http.Error(w, "Invalid imageset ID", http.StatusBadRequest)
		return
	}

	set, err := h.service.CreateImageSet(r.Context(), simpleimageset.CreateImageSetRequest{ID: id})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, set)
}

// GetContents returns the exported read model of an imageset
func (h *ImageSetHandler) GetContents(w http.ResponseWriter, r *http.Request) {
	owner, user, ok := h.subject(w, r)
	if !ok {
		return
	}

	contents, err := h.service.GetContents(r.Context(), simpleimageset.GetContentsRequest{
		Owner: owner,
		User:  user,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	render.JSON(w, r, contents)
}

// SetDurationRequest is the request body for setting the default duration
type SetDurationRequest struct {
	Duration int `json:"duration"`
}

// SetDefaultDuration updates the imageset-wide display duration
func (h *ImageSetHandler) SetDefaultDuration(w http.ResponseWriter, r *http.Request) {
	owner, user, ok := h.subject(w, r)
	if !ok {
		return
	}

	var req SetDurationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	set, err := h.service.SetDefaultDuration(r.Context(), simpleimageset.SetDefaultDurationRequest{
		Owner:    owner,
		User:     user,
		Duration: req.Duration,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	render.JSON(w, r, set)
}

// SetColorsRequest is the request body for setting display colors
type SetColorsRequest struct {
	BGColor *string `json:"bgcolor"`
	Color   *string `json:"color"`
}

// SetColors updates the imageset display colors
func (h *ImageSetHandler) SetColors(w http.ResponseWriter, r *http.Request) {
	owner, user, ok := h.subject(w, r)
	if !ok {
		return
	}

	var req SetColorsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	set, err := h.service.SetColors(r.Context(), simpleimageset.SetColorsRequest{
		Owner:   owner,
		User:    user,
		BGColor: req.BGColor,
		Color:   req.Color,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	render.JSON(w, r, set)
}

// NextPosition reports the position the next appended entry would take
func (h *ImageSetHandler) NextPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := h.imagesetID(w, r)
	if !ok {
		return
	}

	next, err := h.service.NextPosition(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	render.JSON(w, r, map[string]int{"next_position": next})
}

// AddEntryRequest is the request body for sequencing a stored file
type AddEntryRequest struct {
	StoredFileID string `json:"stored_file_id"`
	Position     *int   `json:"position,omitempty"`
	Duration     *int   `json:"duration,omitempty"`
}

// AddEntry sequences an already-stored file into the imageset
func (h *ImageSetHandler) AddEntry(w http.ResponseWriter, r *http.Request) {
	owner, user, ok := h.subject(w, r)
	if !ok {
		return
	}

	var req AddEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fileID, err := uuid.Parse(req.StoredFileID)
	if err != nil {
		http.Error(w, "Invalid stored file ID", http.StatusBadRequest)
		return
	}

	entry, err := h.service.AddEntry(r.Context(), simpleimageset.AddEntryRequest{
		Owner:        owner,
		User:         user,
		StoredFileID: fileID,
		Position:     req.Position,
		Duration:     req.Duration,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, entry)
}

// RemoveEntry unsequences the entry at a position and heals the gap
func (h *ImageSetHandler) RemoveEntry(w http.ResponseWriter, r *http.Request) {
	owner, user, ok := h.subject(w, r)
	if !ok {
		return
	}

	position, err := strconv.Atoi(chi.URLParam(r, "position"))
	if err != nil || position < 0 {
		http.Error(w, "Invalid position", http.StatusBadRequest)
		return
	}

	if err := h.service.RemoveEntry(r.Context(), simpleimageset.RemoveEntryRequest{
		Owner:    owner,
		User:     user,
		Position: position,
	}); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Upload accepts a multipart upload and starts the asynchronous pipeline. The
// response carries the progress token the client polls.
func (h *ImageSetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	owner, user, ok := h.subject(w, r)
	if !ok {
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	tok, err := h.service.OpenUpload(r.Context(), simpleimageset.OpenUploadRequest{
		Owner:    owner,
		User:     user,
		FileName: header.Filename,
		File:     file,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, tok)
}

// GetUploadToken returns the current state of an upload progress token
func (h *ImageSetHandler) GetUploadToken(w http.ResponseWriter, r *http.Request) {
	tok, err := h.service.GetUploadToken(r.Context(), chi.URLParam(r, "tokenID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	render.JSON(w, r, tok)
}

// Publish moves the imageset's objects into the publish bucket
func (h *ImageSetHandler) Publish(w http.ResponseWriter, r *http.Request) {
	owner, _, ok := h.subject(w, r)
	if !ok {
		return
	}

	result, err := h.service.PublishImageSet(r.Context(), simpleimageset.PublishRequest{Owner: owner})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusOK
	if result.Failed() {
		status = http.StatusMultiStatus
	}
	render.Status(r, status)
	render.JSON(w, r, result)
}

// Published reports whether the imageset is fully published
func (h *ImageSetHandler) Published(w http.ResponseWriter, r *http.Request) {
	owner, _, ok := h.subject(w, r)
	if !ok {
		return
	}

	published, err := h.service.Published(r.Context(), owner)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	render.JSON(w, r, map[string]bool{"published": published})
}

// subject parses the imageset id from the URL, resolves the owning entity and
// extracts the acting user from the X-User-Id header.
func (h *ImageSetHandler) subject(w http.ResponseWriter, r *http.Request) (simpleimageset.SequencedContentOwner, uuid.UUID, bool) {
	id, ok := h.imagesetID(w, r)
	if !ok {
		return nil, uuid.Nil, false
	}

	owner, err := h.resolver(r, id)
	if err != nil {
		writeServiceError(w, err)
		return nil, uuid.Nil, false
	}

	user := uuid.Nil
	if raw := r.Header.Get("X-User-Id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "Invalid X-User-Id header", http.StatusBadRequest)
			return nil, uuid.Nil, false
		}
		user = parsed
	}

	return owner, user, true
}

func (h *ImageSetHandler) imagesetID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid imageset ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps service errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	var unsupported *simpleimageset.UnsupportedFileTypeError
	switch {
	case errors.As(err, &unsupported):
		http.Error(w, err.Error(), http.StatusNotAcceptable)
	case errors.Is(err, simpleimageset.ErrPermissionDenied):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, simpleimageset.ErrImageSetNotFound),
		errors.Is(err, simpleimageset.ErrStoredFileNotFound),
		errors.Is(err, token.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, simpleimageset.ErrImageSetExists),
		errors.Is(err, simpleimageset.ErrInvalidState),
		errors.Is(err, simpleimageset.ErrPositionOccupied),
		errors.Is(err, token.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, simpleimageset.ErrInvalidDuration),
		errors.Is(err, simpleimageset.ErrInvalidPosition),
		errors.Is(err, simpleimageset.ErrEntryNotFound),
		errors.Is(err, token.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
