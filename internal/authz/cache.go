// Package authz decides whether a signed-in user may operate on the
// deployment's bound Drive resources, caching decisions to bound the cost
// of per-request permission checks.
package authz

import (
	"sync"
	"time"
)

// DefaultTTL is how long a cached access decision stays valid.
const DefaultTTL = 5 * time.Minute

type cacheEntry struct {
	allowed   bool
	expiresAt time.Time
}

// Cache maps (email, resourceID) to a time-bounded access decision. It is
// shared across concurrent requests; the mutex covers every
// read-check-then-write sequence. Stale entries are treated as absent and
// dropped on read.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func cacheKey(email, resourceID string) string {
	return email + "\x00" + resourceID
}

// Check returns the cached decision and whether a live entry existed.
func (c *Cache) Check(email, resourceID string) (allowed, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(email, resourceID)
	entry, exists := c.entries[key]
	if !exists {
		return false, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return false, false
	}
	return entry.allowed, true
}

// Set inserts or refreshes a decision.
func (c *Cache) Set(email, resourceID string, allowed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(email, resourceID)] = cacheEntry{
		allowed:   allowed,
		expiresAt: c.now().Add(c.ttl),
	}
}
