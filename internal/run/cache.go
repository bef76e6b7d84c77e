package run

import (
	"sync"
	"time"
)

// Cache holds finished and in-flight run snapshots with a TTL. The
// clock is injected so expiry is testable without sleeping.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type cacheEntry struct {
	run     *Run
	expires time.Time
}

// NewCache creates a Cache. A nil clock uses the wall clock.
func NewCache(ttl time.Duration, maxEntries int, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &Cache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        now,
	}
}

// Get returns the cached snapshot for a run id, or false if absent or
// expired.
func (c *Cache) Get(id string) (*Run, bool) {
	c.mu.RLock()
	entry, ok := c.entries[id]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.expires) {
		return nil, false
	}
	return entry.run, true
}

// Put stores a snapshot, refreshing its TTL. When the cache is full the
// earliest-expiring entry is evicted first.
func (c *Cache) Put(r *Run) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.purgeLocked(now)

	if _, exists := c.entries[r.ID]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[r.ID] = cacheEntry{run: r, expires: now.Add(c.ttl)}
}

// Delete removes a run snapshot.
func (c *Cache) Delete(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

// Len returns the number of unexpired entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked(c.now())
	return len(c.entries)
}

func (c *Cache) purgeLocked(now time.Time) {
	for id, entry := range c.entries {
		if now.After(entry.expires) {
			delete(c.entries, id)
		}
	}
}

func (c *Cache) evictOldestLocked() {
	var oldest string
	var oldestExpiry time.Time
	for id, entry := range c.entries {
		if oldest == "" || entry.expires.Before(oldestExpiry) {
			oldest = id
			oldestExpiry = entry.expires
		}
	}
	if oldest != "" {
		delete(c.entries, oldest)
	}
}
