package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SetGetRoundTrip(t *testing.T) {
	c := Open(t.TempDir(), time.Hour, nil)
	defer c.Close()
	require.True(t, c.Enabled())

	ctx := context.Background()
	c.Set(ctx, "k1", []byte(`{"results":[]}`))

	payload, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, []byte(`{"results":[]}`), payload)

	stats := c.Stats(ctx)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Entries)
}

func TestCache_MissOnAbsentKey(t *testing.T) {
	c := Open(t.TempDir(), time.Hour, nil)
	defer c.Close()

	_, ok := c.Get(context.Background(), "nope")
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats(context.Background()).Misses)
}

func TestCache_TTLExpiry(t *testing.T) {
	c := Open(t.TempDir(), time.Hour, nil)
	defer c.Close()
	ctx := context.Background()

	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set(ctx, "k1", []byte("v1"))

	// Still valid just before expiry.
	c.now = func() time.Time { return base.Add(time.Hour - 2*time.Second) }
	_, ok := c.Get(ctx, "k1")
	assert.True(t, ok)

	// Expired entries read as a miss and are physically removed.
	c.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, ok = c.Get(ctx, "k1")
	assert.False(t, ok)

	stats := c.Stats(ctx)
	assert.Equal(t, int64(0), stats.Entries)
	assert.Equal(t, int64(1), stats.Evicted)
}

func TestCache_SweepAtOpen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := Open(dir, time.Hour, nil)
	base := time.Now().Add(-3 * time.Hour)
	first.now = func() time.Time { return base }
	first.Set(ctx, "stale", []byte("old"))
	require.NoError(t, first.Close())

	second := Open(dir, time.Hour, nil)
	defer second.Close()

	stats := second.Stats(ctx)
	assert.Equal(t, int64(0), stats.Entries, "expired backlog should be swept at open")
	assert.Equal(t, int64(1), stats.Evicted)
}

func TestCache_Invalidate(t *testing.T) {
	c := Open(t.TempDir(), time.Hour, nil)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"))
	c.Invalidate(ctx, "k1")

	_, ok := c.Get(ctx, "k1")
	assert.False(t, ok)
}

func TestCache_DegradedWhenStorageUnavailable(t *testing.T) {
	// A file where the cache directory should be makes MkdirAll fail.
	blocker := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0o644))

	c := Open(filepath.Join(blocker, "cache"), time.Hour, nil)
	defer c.Close()

	assert.False(t, c.Enabled())

	ctx := context.Background()
	// Set never raises, Get always misses.
	c.Set(ctx, "k1", []byte("v1"))
	_, ok := c.Get(ctx, "k1")
	assert.False(t, ok)
	c.Invalidate(ctx, "k1")

	stats := c.Stats(ctx)
	assert.False(t, stats.Enabled)
	assert.Equal(t, int64(0), stats.Entries)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := Open(t.TempDir(), time.Hour, nil)
	defer c.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Set(ctx, "shared", []byte("payload"))
				if payload, ok := c.Get(ctx, "shared"); ok {
					// No torn writes: an entry is fully present or absent.
					assert.Equal(t, []byte("payload"), payload)
				}
			}
		}()
	}
	wg.Wait()
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "create mesh", NormalizeQuery("  Create   Mesh "))
	assert.Equal(t, "create mesh", NormalizeQuery("create mesh"))
	assert.Equal(t, "", NormalizeQuery("   "))
}

func TestKey_Stability(t *testing.T) {
	a := Key("search", NormalizeQuery("Create Mesh "), "5")
	b := Key("search", NormalizeQuery("create mesh"), "5")
	assert.Equal(t, a, b, "equivalent queries must share a key")

	assert.NotEqual(t, a, Key("search", NormalizeQuery("create mesh"), "10"),
		"limit is part of the key")
	assert.NotEqual(t, a, Key("get_function", NormalizeQuery("create mesh"), "5"),
		"operation is part of the key")
}

func TestKey_NoArgumentAliasing(t *testing.T) {
	assert.NotEqual(t, Key("op", "a", "bc"), Key("op", "ab", "c"))
}
