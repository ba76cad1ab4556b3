package outcome

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore remembers which outcome keys have been applied.
// FirstSeen returns true exactly once per key across the store's retention
// window; replays return false. Release forgets a key whose application
// failed, so the at-least-once redelivery can count it.
type IdempotencyStore interface {
	FirstSeen(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisIdempotencyStore tracks processed outcomes with SET NX and a TTL,
// sharing dedup state across engine instances. The TTL bounds memory for
// the high-volume outcome stream; replays older than the window are rare
// enough to accept.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisIdempotencyStore creates a Redis-backed store. ttl <= 0 defaults
// to 7 days.
func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

// FirstSeen implements IdempotencyStore.
func (s *RedisIdempotencyStore) FirstSeen(ctx context.Context, key string) (bool, error) {
	return s.client.SetNX(ctx, key, 1, s.ttl).Result()
}

// Release implements IdempotencyStore.
func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// MemoryIdempotencyStore is an in-process fallback used when Redis is not
// configured, and in tests. Eviction is generational: when the active set
// fills up it becomes the previous generation, so a key stays deduplicated
// for at least one full generation.
type MemoryIdempotencyStore struct {
	mu       sync.Mutex
	maxKeys  int
	active   map[string]struct{}
	previous map[string]struct{}
}

// NewMemoryIdempotencyStore creates an in-process store holding up to
// 2*maxKeys keys. maxKeys <= 0 defaults to 100k.
func NewMemoryIdempotencyStore(maxKeys int) *MemoryIdempotencyStore {
	if maxKeys <= 0 {
		maxKeys = 100_000
	}
	return &MemoryIdempotencyStore{
		maxKeys:  maxKeys,
		active:   make(map[string]struct{}),
		previous: make(map[string]struct{}),
	}
}

// FirstSeen implements IdempotencyStore.
func (s *MemoryIdempotencyStore) FirstSeen(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[key]; ok {
		return false, nil
	}
	if _, ok := s.previous[key]; ok {
		return false, nil
	}
	if len(s.active) >= s.maxKeys {
		s.previous = s.active
		s.active = make(map[string]struct{})
	}
	s.active[key] = struct{}{}
	return true, nil
}

// Release implements IdempotencyStore.
func (s *MemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, key)
	delete(s.previous, key)
	return nil
}
