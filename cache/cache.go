// Package cache implements the TTL caches backing prompt responses and
// embedding vectors. Two instances exist in the process; they differ only
// in TTL defaults and size policy.
package cache

import (
	"sync"
	"time"
)

// Store is the minimal cache surface collaborators depend on.
//
// # Description
//
// Get returns the live value for key, counting an expired entry as a miss
// and deleting it. Set stores value under key with a per-entry TTL; a zero
// ttl uses the cache default. Stats exposes counters for diagnostics
// endpoints.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple goroutines.
type Store interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
	Stats() Stats
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Expired int64 `json:"expired"`
}

type entry struct {
	value     any
	createdAt time.Time
	expiresAt time.Time
	hits      int64
}

// TTLCache is the in-process Store implementation.
type TTLCache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	defaultTTL time.Duration
	maxEntries int

	hits    int64
	misses  int64
	expired int64

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

var _ Store = (*TTLCache)(nil)

// Option tunes a TTLCache at construction.
type Option func(*TTLCache)

// WithMaxEntries bounds the cache; a full cache evicts the
// oldest-by-creation entry on write. Zero means unbounded.
func WithMaxEntries(n int) Option {
	return func(c *TTLCache) { c.maxEntries = n }
}

// New builds a cache with the given default TTL and starts a background
// sweep that removes expired entries every few minutes.
func New(defaultTTL time.Duration, opts ...Option) *TTLCache {
	c := &TTLCache{
		entries:     make(map[string]*entry),
		defaultTTL:  defaultTTL,
		stopCleanup: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.cleanupLoop(5 * time.Minute)
	return c
}

func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		c.expired++
		c.misses++
		return nil, false
	}
	e.hits++
	c.hits++
	return e.value, true
}

func (c *TTLCache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		if _, exists := c.entries[key]; !exists {
			c.evictOldestLocked()
		}
	}
	c.entries[key] = &entry{
		value:     value,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
}

func (c *TTLCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries: len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
		Expired: c.expired,
	}
}

// Clear drops every entry and resets the counters.
func (c *TTLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.hits, c.misses, c.expired = 0, 0, 0
}

// Close stops the background sweep.
func (c *TTLCache) Close() {
	c.stopOnce.Do(func() { close(c.stopCleanup) })
}

func (c *TTLCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.createdAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.createdAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *TTLCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *TTLCache) removeExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			c.expired++
		}
	}
}
