package token

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of the Store interface. Expired
// tokens are reaped lazily on access.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]*Token

	// now is swappable for tests
	now func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the store's time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an in-memory token store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		tokens: make(map[string]*Token),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func storeKey(namespace, id string) string {
	return namespace + "/" + id
}

func (s *MemoryStore) Open(ctx context.Context, req OpenRequest) (*Token, error) {
	if err := validateOpen(req); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	tok := &Token{
		ID:        uuid.New().String(),
		Namespace: req.Namespace,
		UserID:    req.User,
		State:     StatusCreated,
		Current:   req.Current,
		Max:       req.ProgressMax,
		CreatedAt: now,
		ExpiresAt: now.Add(req.TTL),
	}
	if req.Metadata != nil {
		tok.Metadata = make(map[string]interface{}, len(req.Metadata))
		for k, v := range req.Metadata {
			tok.Metadata[k] = v
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[storeKey(req.Namespace, tok.ID)] = tok

	return tok.clone(), nil
}

// live returns the stored token if present and unexpired, reaping it
// otherwise. Callers must hold the write lock.
func (s *MemoryStore) live(namespace, id string) (*Token, bool) {
	key := storeKey(namespace, id)
	tok, exists := s.tokens[key]
	if !exists {
		return nil, false
	}
	if !s.now().UTC().Before(tok.ExpiresAt) {
		delete(s.tokens, key)
		return nil, false
	}
	return tok, true
}

func (s *MemoryStore) Update(ctx context.Context, namespace, id string, upd Update) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.live(namespace, id)
	if !ok {
		return nil, ErrNotFound
	}

	updated, err := Apply(*tok, upd, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.tokens[storeKey(namespace, id)] = &updated

	return updated.clone(), nil
}

func (s *MemoryStore) Close(ctx context.Context, namespace, id string) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.live(namespace, id)
	if !ok {
		return nil, ErrNotFound
	}

	switch tok.State {
	case StatusDone:
		return tok.clone(), nil
	case StatusFailed:
		return nil, ErrInvalidTransition
	}

	tok.State = StatusDone
	return tok.clone(), nil
}

func (s *MemoryStore) Get(ctx context.Context, namespace, id string) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.live(namespace, id)
	if !ok {
		return nil, ErrNotFound
	}

	return tok.clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, namespace, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live(namespace, id); !ok {
		return ErrNotFound
	}
	delete(s.tokens, storeKey(namespace, id))
	return nil
}
