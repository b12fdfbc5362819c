package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-imageset/pkg/simpleimageset/token"
)

func setupRedisStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewWithClient(client), mr
}

func openRedisToken(t *testing.T, store *Store) *token.Token {
	tok, err := store.Open(context.Background(), token.OpenRequest{
		Namespace:   "isu",
		User:        uuid.New(),
		Current:     "request created",
		ProgressMax: 3,
		TTL:         10 * time.Minute,
	})
	require.NoError(t, err)
	return tok
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	tok := openRedisToken(t, store)

	got, err := store.Get(ctx, "isu", tok.ID)
	require.NoError(t, err)
	assert.Equal(t, tok.ID, got.ID)
	assert.Equal(t, token.StatusCreated, got.State)
	assert.Equal(t, 3, got.Max)

	inProgress := token.StatusInProgress
	step := "uploading file to bucket"
	done := 2
	updated, err := store.Update(ctx, "isu", tok.ID, token.Update{
		State:   &inProgress,
		Current: &step,
		Done:    &done,
		Metadata: map[string]interface{}{
			"stored_file_id": uuid.New().String(),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, token.StatusInProgress, updated.State)
	assert.Equal(t, step, updated.Current)
	assert.Equal(t, 2, updated.Done)
	assert.Contains(t, updated.Metadata, "stored_file_id")

	closed, err := store.Close(ctx, "isu", tok.ID)
	require.NoError(t, err)
	assert.Equal(t, token.StatusDone, closed.State)

	// Final state stays pollable.
	got, err = store.Get(ctx, "isu", tok.ID)
	require.NoError(t, err)
	assert.Equal(t, token.StatusDone, got.State)
}

func TestRedisStoreStateMachine(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	tok := openRedisToken(t, store)

	failed := token.StatusFailed
	_, err := store.Update(ctx, "isu", tok.ID, token.Update{
		State: &failed,
		Error: map[string]interface{}{"summary": "exception while uploading file to bucket"},
	})
	require.NoError(t, err)

	_, err = store.Close(ctx, "isu", tok.ID)
	assert.ErrorIs(t, err, token.ErrInvalidTransition)

	created := token.StatusCreated
	_, err = store.Update(ctx, "isu", tok.ID, token.Update{State: &created})
	assert.ErrorIs(t, err, token.ErrInvalidTransition)
}

func TestRedisStoreExpiry(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()

	tok := openRedisToken(t, store)

	t.Run("updates preserve the remaining ttl", func(t *testing.T) {
		done := 1
		_, err := store.Update(ctx, "isu", tok.ID, token.Update{Done: &done})
		require.NoError(t, err)

		ttl := mr.TTL("token:isu:" + tok.ID)
		assert.Greater(t, ttl, time.Duration(0))
		assert.LessOrEqual(t, ttl, 10*time.Minute)
	})

	t.Run("expired tokens are gone", func(t *testing.T) {
		mr.FastForward(11 * time.Minute)

		_, err := store.Get(ctx, "isu", tok.ID)
		assert.ErrorIs(t, err, token.ErrNotFound)
		done := 2
		_, err = store.Update(ctx, "isu", tok.ID, token.Update{Done: &done})
		assert.ErrorIs(t, err, token.ErrNotFound)
	})
}

func TestRedisStoreDelete(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	tok := openRedisToken(t, store)
	require.NoError(t, store.Delete(ctx, "isu", tok.ID))
	_, err := store.Get(ctx, "isu", tok.ID)
	assert.ErrorIs(t, err, token.ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "isu", tok.ID), token.ErrNotFound)
}

func TestRedisStoreNamespacing(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	tok := openRedisToken(t, store)
	_, err := store.Get(ctx, "other", tok.ID)
	assert.ErrorIs(t, err, token.ErrNotFound)
}
