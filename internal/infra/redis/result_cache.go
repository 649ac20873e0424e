package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResultCache implements cache.Store on Redis. Entries are namespaced by
// generation, so bumping the generation counter orphans every older entry;
// orphans age out through their TTL.
type ResultCache struct {
	rdb       *redis.Client
	namespace string
	ttl       time.Duration
}

// NewResultCache creates a Redis-backed result cache.
func NewResultCache(client *Client, namespace string, ttl time.Duration) *ResultCache {
	if namespace == "" {
		namespace = "portal"
	}
	return &ResultCache{
		rdb:       client.rdb,
		namespace: namespace,
		ttl:       ttl,
	}
}

// Key helpers
func (r *ResultCache) generationKey() string {
	return fmt.Sprintf("%s:cache:generation", r.namespace)
}

func (r *ResultCache) entryKey(gen uint64, key string) string {
	return fmt.Sprintf("%s:cache:%d:%s", r.namespace, gen, key)
}

// Generation returns the current generation (0 before the first invalidation).
func (r *ResultCache) Generation(ctx context.Context) (uint64, error) {
	val, err := r.rdb.Get(ctx, r.generationKey()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get generation: %w", err)
	}
	return strconv.ParseUint(val, 10, 64)
}

// Get returns the entry for key in the current generation.
func (r *ResultCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	gen, err := r.Generation(ctx)
	if err != nil {
		return nil, false, err
	}

	data, err := r.rdb.Get(ctx, r.entryKey(gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get entry: %w", err)
	}
	return data, true, nil
}

// Set stores payload when gen is still current.
func (r *ResultCache) Set(ctx context.Context, key string, gen uint64, payload []byte) error {
	current, err := r.Generation(ctx)
	if err != nil {
		return err
	}
	if current != gen {
		return nil // Result predates an invalidation
	}

	if err := r.rdb.Set(ctx, r.entryKey(gen, key), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("set entry: %w", err)
	}
	return nil
}

// Clear bumps the generation counter.
func (r *ResultCache) Clear(ctx context.Context) error {
	if err := r.rdb.Incr(ctx, r.generationKey()).Err(); err != nil {
		return fmt.Errorf("incr generation: %w", err)
	}
	return nil
}
