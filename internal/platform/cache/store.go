package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss indicates the key was absent.
var ErrMiss = errors.New("cache miss")

// Store is a small JSON read-projection cache over Redis. A nil *Store is
// valid and behaves as an always-miss cache, so callers never need to
// branch on whether caching is configured.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore constructs a Store with the given default TTL.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Store{client: client, ttl: ttl}
}

// GetJSON loads the value at key into target.
func (s *Store) GetJSON(ctx context.Context, key string, target any) error {
	if s == nil {
		return ErrMiss
	}
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMiss
		}
		return err
	}
	return json.Unmarshal(raw, target)
}

// SetJSON stores value at key with the default TTL.
func (s *Store) SetJSON(ctx context.Context, key string, value any) error {
	if s == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, raw, s.ttl).Err()
}

// Invalidate removes the given keys. Missing keys are not an error.
func (s *Store) Invalidate(ctx context.Context, keys ...string) error {
	if s == nil || len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}
