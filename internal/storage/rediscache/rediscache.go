// Package rediscache caches price-API platform address maps in Redis.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/go-redis/redis/v8"

	"github.com/0xsequence/token-directory/internal/storage"
)

// DefaultPrefix namespaces cache keys.
const DefaultPrefix = "tokendir:platform:"

// Cache implements storage.PlatformCache on a redis client.
type Cache struct {
	client *redis.Client
	prefix string
}

// New wraps an existing client.
func New(client *redis.Client, prefix string) *Cache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Cache{client: client, prefix: prefix}
}

// Open connects to a redis:// URL and verifies the connection.
func Open(ctx context.Context, url string) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, DefaultPrefix), nil
}

// Compile-time interface check.
var _ storage.PlatformCache = (*Cache)(nil)

// Get returns the cached map and whether it was present.
func (c *Cache) Get(ctx context.Context, key string) (map[string]string, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return m, true, nil
}

// Set stores m for ttl; zero ttl never expires.
func (c *Cache) Set(ctx context.Context, key string, m map[string]string, ttl time.Duration) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Close closes the client.
func (c *Cache) Close() error {
	return c.client.Close()
}
