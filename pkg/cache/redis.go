package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces cache keys in a shared Redis instance.
const redisKeyPrefix = "fhir:"

// RedisStore is the Redis-backed cache backend. Entry expiry is delegated to
// Redis key TTLs, so Sweep has nothing to do.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{redis: redisClient}
}

// Get returns the resource list stored under key, or ErrCacheMiss if the key
// is absent or its TTL has elapsed.
func (s *RedisStore) Get(ctx context.Context, key string) ([]map[string]any, error) {
	data, err := s.redis.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// Redis TTL normally handles expiry; the explicit check catches clock
	// skew between writer and reader.
	if entry.IsExpired(time.Now()) {
		_ = s.redis.Del(ctx, redisKeyPrefix+key).Err()
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	return entry.Data, nil
}

// Set stores data under key, replacing any prior entry. With ttl <= 0 the
// entry is not written at all, so a subsequent Get misses.
func (s *RedisStore) Set(ctx context.Context, key string, data []map[string]any, ttl time.Duration) error {
	if ttl <= 0 {
		return s.redis.Del(ctx, redisKeyPrefix+key).Err()
	}

	now := time.Now()
	entry := Entry{
		Key:       key,
		Data:      data,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, redisKeyPrefix+key, payload, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Sweep is a no-op: Redis expires keys by TTL on its own.
func (s *RedisStore) Sweep(_ context.Context) error {
	return nil
}
