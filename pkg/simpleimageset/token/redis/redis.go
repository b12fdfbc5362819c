// Package redis provides a Redis-backed token store. TTL expiry is delegated
// to Redis key expiration, which makes tokens visible across processes and
// survives restarts of the service that opened them.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tendant/simple-imageset/pkg/simpleimageset/token"
)

// Store implements token.Store on top of Redis.
type Store struct {
	client *redis.Client
	prefix string
}

// New creates a Redis-backed token store from a redis URL.
func New(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewWithClient(client), nil
}

// NewWithClient creates a store from an existing Redis client.
func NewWithClient(client *redis.Client) *Store {
	return &Store{
		client: client,
		prefix: "token:",
	}
}

func (s *Store) key(namespace, id string) string {
	return s.prefix + namespace + ":" + id
}

func (s *Store) Open(ctx context.Context, req token.OpenRequest) (*token.Token, error) {
	if req.ProgressMax < 0 || req.TTL <= 0 {
		return nil, token.ErrInvalidArgument
	}

	now := time.Now().UTC()
	tok := &token.Token{
		ID:        uuid.New().String(),
		Namespace: req.Namespace,
		UserID:    req.User,
		State:     token.StatusCreated,
		Current:   req.Current,
		Max:       req.ProgressMax,
		Metadata:  req.Metadata,
		CreatedAt: now,
		ExpiresAt: now.Add(req.TTL),
	}

	if err := s.put(ctx, tok, req.TTL); err != nil {
		return nil, err
	}
	return tok, nil
}

func (s *Store) put(ctx context.Context, tok *token.Token, ttl time.Duration) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	if err := s.client.Set(ctx, s.key(tok.Namespace, tok.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (s *Store) fetch(ctx context.Context, namespace, id string) (*token.Token, time.Duration, error) {
	key := s.key(namespace, id)
	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, 0, token.ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load token: %w", err)
	}

	var tok token.Token
	if err := json.Unmarshal([]byte(data), &tok); err != nil {
		return nil, 0, fmt.Errorf("unmarshal token: %w", err)
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("token ttl: %w", err)
	}
	if ttl <= 0 {
		return nil, 0, token.ErrNotFound
	}
	return &tok, ttl, nil
}

// Update is a plain read-modify-write. Each token has exactly one writer,
// the pipeline goroutine that opened it; concurrent Gets only ever read.
func (s *Store) Update(ctx context.Context, namespace, id string, upd token.Update) (*token.Token, error) {
	tok, ttl, err := s.fetch(ctx, namespace, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	updated, err := token.Apply(*tok, upd, now)
	if err != nil {
		return nil, err
	}
	if upd.ExtendTTL != nil && *upd.ExtendTTL > 0 {
		ttl = *upd.ExtendTTL
	}

	if err := s.put(ctx, &updated, ttl); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) Close(ctx context.Context, namespace, id string) (*token.Token, error) {
	tok, ttl, err := s.fetch(ctx, namespace, id)
	if err != nil {
		return nil, err
	}

	switch tok.State {
	case token.StatusDone:
		return tok, nil
	case token.StatusFailed:
		return nil, token.ErrInvalidTransition
	}

	tok.State = token.StatusDone
	if err := s.put(ctx, tok, ttl); err != nil {
		return nil, err
	}
	return tok, nil
}

func (s *Store) Get(ctx context.Context, namespace, id string) (*token.Token, error) {
	tok, _, err := s.fetch(ctx, namespace, id)
	if err != nil {
		return nil, err
	}
	return tok, nil
}

func (s *Store) Delete(ctx context.Context, namespace, id string) error {
	n, err := s.client.Del(ctx, s.key(namespace, id)).Result()
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	if n == 0 {
		return token.ErrNotFound
	}
	return nil
}

// Ping checks if Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *Store) CloseClient() error {
	return s.client.Close()
}
