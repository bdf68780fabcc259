package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"postsvc/internal/util"
)

// TTLCache is a process-local read cache with lazy expiry. Entries older
// than the TTL are treated as absent and evicted on the next lookup. It is
// deliberately not a distributed cache; cross-instance staleness is
// handled by the Invalidator broadcast.
type TTLCache[T any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     util.Timestamp
	entries map[string]entry[T]

	hits   atomic.Int64
	misses atomic.Int64
}

type entry[T any] struct {
	value    T
	storedAt time.Time
}

type Option[T any] func(*TTLCache[T])

func UseTimestamp[T any](tp util.Timestamp) Option[T] {
	return func(c *TTLCache[T]) {
		c.now = tp
	}
}

func New[T any](ttl time.Duration, options ...Option[T]) *TTLCache[T] {
	c := &TTLCache[T]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry[T]),
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

func (c *TTLCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && c.now().Sub(e.storedAt) < c.ttl {
		c.hits.Add(1)
		cacheHits.WithLabelValues("local").Inc()
		return e.value, true
	}

	if ok {
		delete(c.entries, key)
	}

	var zero T
	c.misses.Add(1)
	cacheMisses.WithLabelValues("local").Inc()
	return zero, false
}

func (c *TTLCache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[T]{value: value, storedAt: c.now()}
}

func (c *TTLCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *TTLCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[T])
}

func (c *TTLCache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats is a point-in-time copy of the cache counters.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

func (c *TTLCache[T]) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.Len(),
	}
}
