package simpleimageset

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-imageset/pkg/simpleimageset/token"
)

// PipelineConfig carries the recognized configuration surface of the upload
// and publish pipelines.
type PipelineConfig struct {
	// AllowedExtensions is the unioned extension allow-list for uploads.
	AllowedExtensions []string

	// UploadBucket receives freshly uploaded objects.
	UploadBucket string

	// PublishBucket receives objects on owner activation.
	PublishBucket string

	// TokenNamespace groups this pipeline's progress tokens.
	TokenNamespace string

	// UploadTokenTTL bounds how long an upload token stays pollable.
	UploadTokenTTL time.Duration

	// DownloadURLTTL is the lifetime of presigned entry URLs, for stores
	// that support presigning.
	DownloadURLTTL time.Duration
}

// DefaultPipelineConfig returns the stock pipeline configuration.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		AllowedExtensions: []string{".jpg", ".png", ".pdf"},
		UploadBucket:      "incoming",
		PublishBucket:     "cdn",
		TokenNamespace:    "isu",
		UploadTokenTTL:    10 * time.Minute,
		DownloadURLTTL:    15 * time.Minute,
	}
}

// service implements the Service interface
type service struct {
	repo   Repository
	store  BucketStore
	tokens token.Store
	authz  Authorizer
	prober MediaProber
	logger *slog.Logger
	cfg    PipelineConfig
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repo = repo
	}
}

// WithBucketStore sets the object store backend
func WithBucketStore(store BucketStore) Option {
	return func(s *service) {
		s.store = store
	}
}

// WithTokenStore sets the progress token store
func WithTokenStore(store token.Store) Option {
	return func(s *service) {
		s.tokens = store
	}
}

// WithAuthorizer sets the permission collaborator
func WithAuthorizer(authz Authorizer) Option {
	return func(s *service) {
		s.authz = authz
	}
}

// WithProber sets the media metadata prober
func WithProber(prober MediaProber) Option {
	return func(s *service) {
		s.prober = prober
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithPipelineConfig overrides the pipeline configuration
func WithPipelineConfig(cfg PipelineConfig) Option {
	return func(s *service) {
		s.cfg = cfg
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		authz:  NewAllowAllAuthorizer(),
		logger: slog.Default(),
		cfg:    DefaultPipelineConfig(),
	}

	for _, option := range options {
		option(s)
	}

	if s.repo == nil {
		return nil, fmt.Errorf("repository is required")
	}

	return s, nil
}

// gate re-validates owner lifecycle state and permission. Every mutating
// entry point runs this, not only the upload pipeline's synchronous phase.
func (s *service) gate(ctx context.Context, owner SequencedContentOwner, action Action, user uuid.UUID) error {
	switch owner.Lifecycle() {
	case LifecycleNew, LifecycleApproval, LifecycleActive:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidState, owner.Lifecycle())
	}
	if err := s.authz.Check(ctx, action, owner.SubjectRef(), user); err != nil {
		return err
	}
	return nil
}

// Container lifecycle

func (s *service) CreateImageSet(ctx context.Context, req CreateImageSetRequest) (*ImageSet, error) {
	now := time.Now().UTC()
	set := &ImageSet{
		ID:              req.ID,
		DefaultDuration: DefaultDisplayDuration,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.CreateImageSet(ctx, set); err != nil {
		return nil, &ImageSetError{ImageSetID: req.ID, Op: "create", Err: err}
	}
	return set, nil
}

func (s *service) GetImageSet(ctx context.Context, id uuid.UUID) (*ImageSet, error) {
	return s.repo.GetImageSet(ctx, id)
}

func (s *service) SetDefaultDuration(ctx context.Context, req SetDefaultDurationRequest) (*ImageSet, error) {
	if err := s.gate(ctx, req.Owner, ActionAddContent, req.User); err != nil {
		return nil, err
	}
	if req.Duration <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDuration, req.Duration)
	}

	set, err := s.repo.GetImageSet(ctx, req.Owner.ImageSetID())
	if err != nil {
		return nil, err
	}

	set.DefaultDuration = req.Duration
	set.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateImageSet(ctx, set); err != nil {
		return nil, &ImageSetError{ImageSetID: set.ID, Op: "set_default_duration", Err: err}
	}
	return set, nil
}

func (s *service) SetColors(ctx context.Context, req SetColorsRequest) (*ImageSet, error) {
	if err := s.gate(ctx, req.Owner, ActionEdit, req.User); err != nil {
		return nil, err
	}

	set, err := s.repo.GetImageSet(ctx, req.Owner.ImageSetID())
	if err != nil {
		return nil, err
	}

	set.BGColor = req.BGColor
	set.Color = req.Color
	set.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateImageSet(ctx, set); err != nil {
		return nil, &ImageSetError{ImageSetID: set.ID, Op: "set_colors", Err: err}
	}
	return set, nil
}

// Sequenced contents

func (s *service) GetContents(ctx context.Context, req GetContentsRequest) (*ImageSetContents, error) {
	if err := s.gate(ctx, req.Owner, ActionRead, req.User); err != nil {
		return nil, err
	}

	setID := req.Owner.ImageSetID()
	set, err := s.repo.GetImageSet(ctx, setID)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListEntries(ctx, setID)
	if err != nil {
		return nil, err
	}

	urls, _ := s.store.(URLProvider)

	contents := &ImageSetContents{
		ImageSetID:      set.ID,
		DefaultDuration: set.DefaultDuration,
		BGColor:         set.BGColor,
		Color:           set.Color,
		Entries:         make([]ExportedEntry, 0, len(entries)),
	}
	for _, e := range entries {
		duration := set.DefaultDuration
		if e.Duration != nil {
			duration = *e.Duration
		}
		exported := ExportedEntry{
			Position:     e.Position,
			Duration:     duration,
			StoredFileID: e.StoredFileID,
		}
		if sf, err := s.repo.GetStoredFile(ctx, e.StoredFileID); err == nil {
			exported.Bucket = sf.Bucket
			exported.ObjectKey = sf.ObjectKey
			if urls != nil {
				if url, err := urls.PresignDownload(ctx, sf.Bucket, sf.ObjectKey, s.cfg.DownloadURLTTL); err == nil {
					exported.URL = url
				} else {
					s.logger.Warn("presign failed",
						"imageset_id", setID, "object_key", sf.ObjectKey, "error", err)
				}
			}
		}
		contents.Entries = append(contents.Entries, exported)
	}
	return contents, nil
}

func (s *service) NextPosition(ctx context.Context, imagesetID uuid.UUID) (int, error) {
	entries, err := s.repo.ListEntries(ctx, imagesetID)
	if err != nil {
		return 0, err
	}
	return nextPosition(entries), nil
}

func (s *service) AddEntry(ctx context.Context, req AddEntryRequest) (*Entry, error) {
	if err := s.gate(ctx, req.Owner, ActionAddContent, req.User); err != nil {
		return nil, err
	}
	if req.Position != nil && *req.Position < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPosition, *req.Position)
	}

	setID := req.Owner.ImageSetID()

	sf, err := s.repo.GetStoredFile(ctx, req.StoredFileID)
	if err != nil {
		return nil, err
	}
	if sf.OwnerRef != req.Owner.SubjectRef() {
		return nil, fmt.Errorf("%w: stored file %s does not belong to %s",
			ErrPermissionDenied, req.StoredFileID, req.Owner.SubjectRef())
	}

	entry := &Entry{
		ImageSetID:   setID,
		StoredFileID: req.StoredFileID,
		Duration:     req.Duration,
		CreatedAt:    time.Now().UTC(),
	}

	err = s.repo.WithContainerLock(ctx, setID, func(repo Repository) error {
		entries, err := repo.ListEntries(ctx, setID)
		if err != nil {
			return err
		}

		if req.Position == nil {
			entry.Position = nextPosition(entries)
		} else {
			entry.Position = *req.Position
			if err := applyMoves(ctx, repo, setID, insertShifts(entries, entry.Position)); err != nil {
				return err
			}
		}

		if err := repo.CreateEntry(ctx, entry); err != nil {
			return err
		}
		return healLocked(ctx, repo, setID)
	})
	if err != nil {
		return nil, &ImageSetError{ImageSetID: setID, Op: "add", Err: err}
	}
	return entry, nil
}

func (s *service) RemoveEntry(ctx context.Context, req RemoveEntryRequest) error {
	if err := s.gate(ctx, req.Owner, ActionAddContent, req.User); err != nil {
		return err
	}

	setID := req.Owner.ImageSetID()
	err := s.repo.WithContainerLock(ctx, setID, func(repo Repository) error {
		if err := repo.DeleteEntryAt(ctx, setID, req.Position); err != nil {
			return err
		}
		return healLocked(ctx, repo, setID)
	})
	if err != nil {
		return &ImageSetError{ImageSetID: setID, Op: "remove", Err: err}
	}
	return nil
}

// Stored files

func (s *service) RegisterStoredFile(ctx context.Context, file *StoredFile) error {
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}
	return s.repo.CreateStoredFile(ctx, file)
}

func (s *service) GetStoredFile(ctx context.Context, id uuid.UUID) (*StoredFile, error) {
	return s.repo.GetStoredFile(ctx, id)
}

func (s *service) GetUploadToken(ctx context.Context, id string) (*token.Token, error) {
	if s.tokens == nil {
		return nil, ErrNoTokenStore
	}
	return s.tokens.Get(ctx, s.cfg.TokenNamespace, id)
}
