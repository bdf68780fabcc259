package cache_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"postsvc/internal/cache"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(ttl time.Duration) (*cache.TTLCache[string], *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return cache.New(ttl, cache.UseTimestamp[string](clock.Now)), clock
}

func TestTTLCache(t *testing.T) {
	t.Run("get returns what was set", func(t *testing.T) {
		c, _ := newTestCache(time.Minute)

		c.Set("a", "value")

		got, ok := c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, "value", got)
	})

	t.Run("expired entries are treated as absent", func(t *testing.T) {
		c, clock := newTestCache(time.Minute)

		c.Set("a", "value")
		clock.Advance(time.Minute)

		_, ok := c.Get("a")
		assert.False(t, ok)
		assert.Equal(t, 0, c.Len(), "expired entry is lazily evicted on lookup")
	})

	t.Run("set refreshes the entry age", func(t *testing.T) {
		c, clock := newTestCache(time.Minute)

		c.Set("a", "old")
		clock.Advance(45 * time.Second)
		c.Set("a", "new")
		clock.Advance(45 * time.Second)

		got, ok := c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, "new", got)
	})

	t.Run("delete and clear", func(t *testing.T) {
		c, _ := newTestCache(time.Minute)

		c.Set("a", "1")
		c.Set("b", "2")

		c.Delete("a")
		_, ok := c.Get("a")
		assert.False(t, ok)

		c.Clear()
		assert.Equal(t, 0, c.Len())
	})

	t.Run("stats count hits and misses", func(t *testing.T) {
		c, clock := newTestCache(time.Minute)

		c.Set("a", "value")
		c.Get("a")
		c.Get("missing")
		clock.Advance(time.Minute)
		c.Get("a")

		stats := c.Stats()
		assert.Equal(t, int64(1), stats.Hits)
		assert.Equal(t, int64(2), stats.Misses, "expired lookups count as misses")
		assert.Equal(t, 0, stats.Entries)
	})
}
