package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedSet is an effective permission set and the time it was resolved
type CachedSet struct {
	Permissions Set       `json:"permissions"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Cache holds resolved permission sets keyed by principal id.
// Entries expire after a fixed TTL; callers must Invalidate after every successful mutation.
type Cache interface {
	Get(ctx context.Context, principalID string) (CachedSet, bool)
	Put(ctx context.Context, principalID string, permissions Set)
	Invalidate(ctx context.Context, principalID string) error
}

// LRUCache is an in-process cache bounded by size and TTL
type LRUCache struct {
	cache *lru.LRU[string, CachedSet]
	now   func() time.Time
}

// NewLRUCache creates an in-process cache
func NewLRUCache(maxEntries int, ttl time.Duration) *LRUCache {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &LRUCache{
		cache: lru.NewLRU[string, CachedSet](maxEntries, nil, ttl),
		now:   time.Now,
	}
}

// Get returns the cached set for a principal
func (c *LRUCache) Get(ctx context.Context, principalID string) (CachedSet, bool) {
	return c.cache.Get(principalID)
}

// Put stores a freshly resolved set
func (c *LRUCache) Put(ctx context.Context, principalID string, permissions Set) {
	c.cache.Add(principalID, CachedSet{Permissions: permissions, FetchedAt: c.now()})
}

// Invalidate drops the cached set for a principal
func (c *LRUCache) Invalidate(ctx context.Context, principalID string) error {
	c.cache.Remove(principalID)
	return nil
}

// Len returns the number of live entries
func (c *LRUCache) Len() int {
	return c.cache.Len()
}

// RedisCache shares resolved sets between replicas
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache creates a Redis-backed cache and verifies connectivity
func NewRedisCache(ctx context.Context, client *redis.Client, ttl time.Duration) (*RedisCache, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisCache{
		client: client,
		ttl:    ttl,
		prefix: "grant:permissions:",
	}, nil
}

func (c *RedisCache) key(principalID string) string {
	return c.prefix + principalID
}

// Get returns the cached set; decode and transport errors count as misses
func (c *RedisCache) Get(ctx context.Context, principalID string) (CachedSet, bool) {
	raw, err := c.client.Get(ctx, c.key(principalID)).Bytes()
	if err != nil {
		return CachedSet{}, false
	}
	var cached CachedSet
	if err := json.Unmarshal(raw, &cached); err != nil {
		return CachedSet{}, false
	}
	return cached, true
}

// Put stores a freshly resolved set with the cache TTL
func (c *RedisCache) Put(ctx context.Context, principalID string, permissions Set) {
	data, err := json.Marshal(CachedSet{Permissions: permissions, FetchedAt: time.Now().UTC()})
	if err != nil {
		return
	}
	c.client.Set(ctx, c.key(principalID), data, c.ttl)
}

// Invalidate deletes the cached set for a principal
func (c *RedisCache) Invalidate(ctx context.Context, principalID string) error {
	if err := c.client.Del(ctx, c.key(principalID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached permissions: %w", err)
	}
	return nil
}

// Ping checks connectivity to Redis
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
