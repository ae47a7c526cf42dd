package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend is an optional Result Cache persistence backend, grounded
// on original_source/utils/cache.py's CacheManager: a prefixed key
// namespace over a single Redis instance. Unlike the Python original
// (which caches one function-call result per Redis key), this backend
// stores the entire entry set as one JSON blob under a single namespaced
// key, matching the Cache's own "persist the whole set" Backend contract.
type RedisBackend struct {
	Client    *redis.Client
	Namespace string
	TTL       time.Duration
}

// NewRedisBackend constructs a RedisBackend. namespace prefixes the single
// storage key, mirroring CacheManager._make_key's "{prefix}:{key}" scheme.
func NewRedisBackend(client *redis.Client, namespace string, ttl time.Duration) *RedisBackend {
	return &RedisBackend{Client: client, Namespace: namespace, TTL: ttl}
}

func (r *RedisBackend) key() string {
	return fmt.Sprintf("%s:result_cache", r.Namespace)
}

func (r *RedisBackend) Save(entries map[string]*Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("cache: marshaling entries for redis: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.Client.Set(ctx, r.key(), data, r.TTL).Err()
}

func (r *RedisBackend) Load() (map[string]*Entry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := r.Client.Get(ctx, r.key()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return map[string]*Entry{}, nil
		}
		return nil, err
	}
	var entries map[string]*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("cache: unmarshaling redis payload: %w", err)
	}
	return entries, nil
}
