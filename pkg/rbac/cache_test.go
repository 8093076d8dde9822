package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func brokerSet() Set {
	return DefaultTemplates().TemplateFor("broker")
}

func TestLRUCache(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(2, time.Minute)

	_, ok := cache.Get(ctx, "p1")
	assert.False(t, ok)

	cache.Put(ctx, "p1", brokerSet())
	got, ok := cache.Get(ctx, "p1")
	require.True(t, ok)
	assert.Equal(t, brokerSet(), got.Permissions)
	assert.False(t, got.FetchedAt.IsZero())

	require.NoError(t, cache.Invalidate(ctx, "p1"))
	_, ok = cache.Get(ctx, "p1")
	assert.False(t, ok)

	cache.Put(ctx, "a", Set{})
	cache.Put(ctx, "b", Set{})
	cache.Put(ctx, "c", Set{})
	assert.Equal(t, 2, cache.Len(), "size bound evicts the oldest entry")
}

func TestLRUCache_Expiry(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(10, 20*time.Millisecond)

	cache.Put(ctx, "p1", brokerSet())
	time.Sleep(60 * time.Millisecond)

	_, ok := cache.Get(ctx, "p1")
	assert.False(t, ok)
}

func setupRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cache, err := NewRedisCache(context.Background(), client, time.Minute)
	require.NoError(t, err)
	return cache, mr
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	cache, mr := setupRedisCache(t)

	cache.Put(ctx, "p1", brokerSet())
	assert.True(t, mr.Exists("grant:permissions:p1"))

	got, ok := cache.Get(ctx, "p1")
	require.True(t, ok)
	assert.Equal(t, brokerSet(), got.Permissions)

	require.NoError(t, cache.Invalidate(ctx, "p1"))
	_, ok = cache.Get(ctx, "p1")
	assert.False(t, ok)

	assert.NoError(t, cache.Ping(ctx))
}

func TestRedisCache_TTL(t *testing.T) {
	ctx := context.Background()
	cache, mr := setupRedisCache(t)

	cache.Put(ctx, "p1", brokerSet())
	mr.FastForward(2 * time.Minute)

	_, ok := cache.Get(ctx, "p1")
	assert.False(t, ok)
}

func TestRedisCache_CorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	cache, mr := setupRedisCache(t)

	require.NoError(t, mr.Set("grant:permissions:p1", "not json"))
	_, ok := cache.Get(ctx, "p1")
	assert.False(t, ok)
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	defer client.Close()

	_, err = NewRedisCache(context.Background(), client, time.Minute)
	assert.Error(t, err)
}
