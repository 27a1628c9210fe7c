// Package cache keeps client listings in Redis between reorders.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"shiptivity/api/internal/store"
)

var errStaleGeneration = errors.New("listing generation changed")

const (
	keyPrefix = "shiptivity:clients:"
	// generationKey is bumped by every Evict. A fill only lands if the
	// generation it read before loading from the store is still current.
	generationKey = "shiptivity:clients:generation"
)

// RedisCache stores JSON encoded client listings under one key per status
// plus one for the full listing.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache parses redisURL, connects and checks the server answers.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisCache{client: client, ttl: ttl}
}

// ListingKey names the cache entry for a listing. An empty status is the
// full listing.
func ListingKey(status store.Status) string {
	if status == "" {
		return keyPrefix + "all"
	}
	return keyPrefix + string(status)
}

// Clients returns the cached listing for status. Any Redis or decode failure
// counts as a miss and drops the entry.
func (c *RedisCache) Clients(ctx context.Context, status store.Status) ([]store.Client, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	key := ListingKey(status)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			_ = c.client.Del(ctx, key).Err()
		}
		return nil, false
	}
	var clients []store.Client
	if err := json.Unmarshal(data, &clients); err != nil {
		_ = c.client.Del(ctx, key).Err()
		return nil, false
	}
	return clients, true
}

// Generation returns the current eviction generation. Read it before
// loading a listing from the store and hand it to StoreClients.
func (c *RedisCache) Generation(ctx context.Context) int64 {
	if c == nil || c.client == nil {
		return 0
	}
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return -1
	}
	return gen
}

// StoreClients caches a listing loaded under generation gen. The write is
// skipped when an Evict has happened since, so a slow reader cannot put a
// pre-reorder snapshot back. It reports whether the listing was stored.
func (c *RedisCache) StoreClients(ctx context.Context, status store.Status, gen int64, clients []store.Client) bool {
	if c == nil || c.client == nil || c.ttl == 0 || gen < 0 {
		return false
	}
	if clients == nil {
		clients = []store.Client{}
	}
	data, err := json.Marshal(clients)
	if err != nil {
		return false
	}

	key := ListingKey(status)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, generationKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, generationKey)
	return err == nil
}

// Evict drops every listing and bumps the generation. Called after a reorder
// commits.
func (c *RedisCache) Evict(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	keys := make([]string, 0, len(store.Statuses)+1)
	keys = append(keys, ListingKey(""))
	for _, status := range store.Statuses {
		keys = append(keys, ListingKey(status))
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey)
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("evict listings: %w", err)
	}
	return nil
}

// Client exposes the underlying connection so the reorder lock can share it.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
