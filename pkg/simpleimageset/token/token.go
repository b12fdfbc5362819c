// Package token provides ephemeral, pollable progress records for
// long-running operations. Tokens move forward through a small state machine
// and expire after a TTL; expiry is a hard deadline from creation unless an
// update explicitly extends it.
package token

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the token lifecycle state.
type Status string

const (
	StatusCreated    Status = "created"
	StatusInProgress Status = "inprogress"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// rank orders states for forward-only transitions. Done and Failed are
// terminal and mutually unreachable.
func (s Status) rank() int {
	switch s {
	case StatusCreated:
		return 0
	case StatusInProgress:
		return 1
	case StatusDone, StatusFailed:
		return 2
	}
	return -1
}

// Terminal reports whether the state admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

var (
	// ErrNotFound indicates the token does not exist or has expired
	ErrNotFound = errors.New("token not found")

	// ErrInvalidTransition indicates an illegal state change
	ErrInvalidTransition = errors.New("invalid token state transition")

	// ErrInvalidArgument indicates bad open parameters
	ErrInvalidArgument = errors.New("invalid token argument")
)

// Token is one progress record. Error is populated only in the failed state.
type Token struct {
	ID        string                 `json:"id"`
	Namespace string                 `json:"namespace"`
	UserID    uuid.UUID              `json:"user_id"`
	State     Status                 `json:"state"`
	Current   string                 `json:"current"`
	Done      int                    `json:"done"`
	Max       int                    `json:"max"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Error     map[string]interface{} `json:"error,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	ExpiresAt time.Time              `json:"expires_at"`
}

// OpenRequest contains parameters for creating a token.
type OpenRequest struct {
	Namespace   string
	User        uuid.UUID
	Current     string
	Metadata    map[string]interface{}
	ProgressMax int
	TTL         time.Duration
}

// Update describes a partial token mutation. Nil fields are left untouched;
// Metadata is merged key-by-key. ExtendTTL pushes the deadline out from now.
type Update struct {
	State     *Status
	Current   *string
	Done      *int
	Max       *int
	Metadata  map[string]interface{}
	Error     map[string]interface{}
	ExtendTTL *time.Duration
}

// Store is a keyed store of progress tokens. Implementations are safe for
// concurrent use; updates for one token id are applied atomically.
type Store interface {
	// Open creates a new token in the created state. Fails with
	// ErrInvalidArgument when ProgressMax < 0 or TTL <= 0.
	Open(ctx context.Context, req OpenRequest) (*Token, error)

	// Update merges the provided fields into the token. State moves forward
	// only; regressions and transitions out of a terminal state fail with
	// ErrInvalidTransition. Unknown or expired ids fail with ErrNotFound.
	Update(ctx context.Context, namespace, id string, upd Update) (*Token, error)

	// Close transitions the token to done. Closing a done token is a no-op;
	// closing a failed token fails with ErrInvalidTransition. The record
	// stays readable until TTL expiry so pollers observe the final state.
	Close(ctx context.Context, namespace, id string) (*Token, error)

	// Get returns the current snapshot, ErrNotFound after expiry.
	Get(ctx context.Context, namespace, id string) (*Token, error)

	// Delete removes the token immediately.
	Delete(ctx context.Context, namespace, id string) error
}

// Apply merges upd into a copy of tok and validates the state transition.
// now is the reference time for TTL extension. Store implementations share
// this so the state machine behaves identically across backends.
func Apply(tok Token, upd Update, now time.Time) (Token, error) {
	if upd.State != nil {
		next := *upd.State
		if next.rank() < 0 {
			return tok, ErrInvalidTransition
		}
		if tok.State.Terminal() && next != tok.State {
			return tok, ErrInvalidTransition
		}
		if next.rank() < tok.State.rank() {
			return tok, ErrInvalidTransition
		}
		tok.State = next
	}
	if upd.Current != nil {
		tok.Current = *upd.Current
	}
	if upd.Done != nil {
		tok.Done = *upd.Done
	}
	if upd.Max != nil {
		tok.Max = *upd.Max
	}
	if upd.Metadata != nil {
		// Merge into a fresh map. tok.Metadata may be shared with snapshots
		// handed out by Get or Open; those must never observe the merge.
		merged := make(map[string]interface{}, len(tok.Metadata)+len(upd.Metadata))
		for k, v := range tok.Metadata {
			merged[k] = v
		}
		for k, v := range upd.Metadata {
			merged[k] = v
		}
		tok.Metadata = merged
	}
	if upd.Error != nil {
		tok.Error = copyMap(upd.Error)
	}
	if upd.ExtendTTL != nil && *upd.ExtendTTL > 0 {
		tok.ExpiresAt = now.Add(*upd.ExtendTTL)
	}
	return tok, nil
}

// clone returns a snapshot safe to hand out of a store: the Metadata and
// Error maps are copied, not shared.
func (t Token) clone() *Token {
	t.Metadata = copyMap(t.Metadata)
	t.Error = copyMap(t.Error)
	return &t
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	copied := make(map[string]interface{}, len(m))
	for k, v := range m {
		copied[k] = v
	}
	return copied
}

func validateOpen(req OpenRequest) error {
	if req.ProgressMax < 0 {
		return ErrInvalidArgument
	}
	if req.TTL <= 0 {
		return ErrInvalidArgument
	}
	return nil
}
