// Package cache provides the Redis connection used for caching, idempotency
// bookkeeping, and the background job queue. This file implements the
// idempotency store consulted by the HTTP idempotency middleware: a key is
// remembered for a TTL after its first successful use, and subsequent
// requests carrying the same key are flagged as replays.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const idemKeyPrefix = "starter:idem:"

// IdempotencyStore remembers recently used Idempotency-Key values in Redis.
// It is safe for concurrent use.
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotencyStore builds a store that remembers keys for ttl.
func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

// Seen reports whether key has been marked within the TTL window.
// Lookup failures are returned so callers can decide whether to fail open.
func (s *IdempotencyStore) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, idemKeyPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark records key for the TTL window. Marking an already-seen key only
// refreshes its expiry.
func (s *IdempotencyStore) Mark(ctx context.Context, key string) error {
	return s.client.Set(ctx, idemKeyPrefix+key, "1", s.ttl).Err()
}
