package coordinator

import (
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-melcloud/internal/melcloud"
)

// DefaultCacheTTL is how long a fetched snapshot may be served.
const DefaultCacheTTL = 60 * time.Second

type cacheEntry struct {
	snap    *melcloud.Snapshot
	created time.Time
}

// Cache holds the latest snapshot per device and expires it lazily.
//
// The coordinator loop is the only writer; the mutex exists so that status
// endpoints can call Len from other goroutines.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[int]cacheEntry
}

// NewCache creates a cache. now defaults to time.Now, which carries a
// monotonic reading, so wall-clock jumps do not affect expiry.
func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{
		ttl:     ttl,
		now:     now,
		entries: make(map[int]cacheEntry),
	}
}

// TTL returns the configured lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the snapshot for deviceID if it is younger than the TTL.
func (c *Cache) Get(deviceID int) (*melcloud.Snapshot, bool) {
	c.mu.RLock()
	e, ok := c.entries[deviceID]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.created) >= c.ttl {
		return nil, false
	}
	return e.snap, true
}

// Put stores a freshly fetched snapshot and restarts its lifetime.
func (c *Cache) Put(deviceID int, snap *melcloud.Snapshot) {
	c.mu.Lock()
	c.entries[deviceID] = cacheEntry{snap: snap, created: c.now()}
	c.mu.Unlock()
}

// Update replaces the snapshot of an existing entry without extending its
// lifetime. A locally modified snapshot is not fresher than the fetch it
// was derived from.
func (c *Cache) Update(deviceID int, snap *melcloud.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[deviceID]
	if !ok {
		return
	}
	e.snap = snap
	c.entries[deviceID] = e
}

// Clear removes the snapshot for deviceID.
func (c *Cache) Clear(deviceID int) {
	c.mu.Lock()
	delete(c.entries, deviceID)
	c.mu.Unlock()
}

// Prune drops expired entries and returns how many were removed.
func (c *Cache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for id, e := range c.entries {
		if now.Sub(e.created) >= c.ttl {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
