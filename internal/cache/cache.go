// Package cache provides a bounded in-process key/value store with per-entry
// TTL. Expiry is lazy: an expired entry is removed on the get that observes
// it, so no timer goroutine is needed.
package cache

import (
	"sync"
	"time"
)

// TTLs per cache category.
const (
	TTLDomainAnalysis      = time.Hour
	TTLProfileGeneration   = 24 * time.Hour
	TTLQualificationResult = 15 * time.Minute
	TTLInferenceResponse   = time.Hour
	TTLDefault             = 30 * time.Minute
)

// DefaultMaxEntries bounds the cache when no explicit limit is given.
const DefaultMaxEntries = 1000

type entry[V any] struct {
	value       V
	expiresAt   time.Time
	createdAt   time.Time
	lastAccess  time.Time
	accessCount int64
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Entries int     `json:"entries"`
	HitRate float64 `json:"hit_rate"`
}

// Cache is a TTL cache with LRU eviction, safe for concurrent use.
type Cache[V any] struct {
	mu         sync.Mutex
	entries    map[string]*entry[V]
	maxEntries int
	hits       int64
	misses     int64
}

// New creates a cache holding at most maxEntries values. Non-positive limits
// fall back to DefaultMaxEntries.
func New[V any](maxEntries int) *Cache[V] {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache[V]{
		entries:    make(map[string]*entry[V]),
		maxEntries: maxEntries,
	}
}

// Set stores value under key for ttl. A non-positive ttl uses TTLDefault.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = TTLDefault
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}

	c.entries[key] = &entry[V]{
		value:      value,
		expiresAt:  now.Add(ttl),
		createdAt:  now,
		lastAccess: now,
	}
}

// Get returns the value for key. An expired entry is removed and counted as
// a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	if now.After(e.expiresAt) {
		delete(c.entries, key)
		c.misses++
		var zero V
		return zero, false
	}

	e.lastAccess = now
	e.accessCount++
	c.hits++
	return e.value, true
}

// Has reports whether key holds an unexpired entry, without touching access
// bookkeeping.
func (c *Cache[V]) Has(key string) bool {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	if now.After(e.expiresAt) {
		delete(c.entries, key)
		return false
	}
	return true
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes every entry. Hit/miss counters are preserved.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[V])
}

// Len returns the current entry count, including not-yet-swept expired
// entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of hit/miss counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		Entries: len(c.entries),
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// evictLocked makes room for one insertion: first sweep expired entries,
// then fall back to removing the least-recently-accessed one.
func (c *Cache[V]) evictLocked(now time.Time) {
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
	if len(c.entries) < c.maxEntries {
		return
	}

	var lruKey string
	var lruAccess time.Time
	for key, e := range c.entries {
		if lruKey == "" || e.lastAccess.Before(lruAccess) {
			lruKey = key
			lruAccess = e.lastAccess
		}
	}
	if lruKey != "" {
		delete(c.entries, lruKey)
	}
}
