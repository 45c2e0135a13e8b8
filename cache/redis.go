package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store against a shared Redis instance, so multiple
// process replicas can share one cache tier. Keys are namespaced with
// keyPrefix to let several tiers (request, structural) share one database.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore constructs a RedisStore over an already-configured client.
// keyPrefix is prepended to every key (e.g. "router:request:").
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) namespacedKey(key string) string {
	return s.keyPrefix + key
}

// Get fetches key; a Redis miss (redis.Nil) is reported as (Entry{}, false,
// nil), not an error, since a miss is the expected steady-state outcome.
func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	value, err := s.client.Get(ctx, s.namespacedKey(key)).Bytes()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis cache get: %w", err)
	}
	ttl, err := s.client.TTL(ctx, s.namespacedKey(key)).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis cache ttl: %w", err)
	}
	return Entry{Value: value, ExpiresAt: time.Now().Add(ttl)}, true, nil
}

// Set stores value under key with a Redis-native expiry, so Redis itself
// evicts the entry rather than requiring a lazy-eviction reader (§5).
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.namespacedKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis cache set: %w", err)
	}
	return nil
}

// Delete removes key unconditionally.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.namespacedKey(key)).Err(); err != nil {
		return fmt.Errorf("redis cache delete: %w", err)
	}
	return nil
}

// ClearAll scans and deletes every key under keyPrefix. Redis has no atomic
// prefix-delete primitive, so this issues a SCAN-then-DEL pass; concurrent
// inserts during the scan are not guaranteed to be cleared (a known gap
// relative to the in-memory tier's stronger ClearAll atomicity).
func (s *RedisStore) ClearAll(ctx context.Context) error {
	keys, err := s.scanKeys(ctx, 0)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis cache clear_all: %w", err)
	}
	return nil
}

// Keys returns up to limit live keys with the prefix stripped.
func (s *RedisStore) Keys(ctx context.Context, limit int) ([]string, error) {
	keys, err := s.scanKeys(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k[len(s.keyPrefix):]
	}
	return out, nil
}

// Stats counts live keys under the prefix. Redis expires keys eagerly, so
// TotalEntries and ActiveEntries coincide.
func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	keys, err := s.scanKeys(ctx, 0)
	if err != nil {
		return Stats{}, err
	}
	return Stats{TotalEntries: len(keys), ActiveEntries: len(keys)}, nil
}

func (s *RedisStore) scanKeys(ctx context.Context, limit int) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if limit > 0 && len(keys) >= limit {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis cache scan: %w", err)
	}
	return keys, nil
}
