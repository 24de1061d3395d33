// Package cache memoizes list-shaped reads for a fixed TTL. Entries past the
// TTL are still served once, flagged stale, so callers can render immediately
// and refresh in the background. The cache is a disposable projection: losing
// it never loses data.
package cache

import (
	"fmt"
	"sync"
	"time"
)

type entry struct {
	payload  []byte
	storedAt time.Time
}

// Cache is a process-local TTL key-value cache.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
}

// New constructs a cache whose entries stay fresh for ttl.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// WithNowFunc overrides the time source. Useful for tests.
func (c *Cache) WithNowFunc(now func() time.Time) *Cache {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

// Read returns the payload stored under key. fresh reports whether the entry
// is within its TTL; a stale entry is returned with fresh=false and the
// caller is expected to trigger an asynchronous refresh.
func (c *Cache) Read(key string) (payload []byte, fresh, ok bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	now := c.now()
	c.mu.RUnlock()

	if !ok {
		return nil, false, false
	}
	return e.payload, now.Sub(e.storedAt) < c.ttl, true
}

// Write stores payload under key, resetting its freshness window.
func (c *Cache) Write(key string, payload []byte) {
	c.mu.Lock()
	c.entries[key] = entry{payload: payload, storedAt: c.now()}
	c.mu.Unlock()
}

// Drop removes key. Dropping an absent key is a no-op.
func (c *Cache) Drop(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Key builds the namespace for a (resource-kind, owner) pair, e.g.
// Key("notifications", userID).
func Key(kind, owner string) string {
	if owner == "" {
		return kind
	}
	return fmt.Sprintf("%s:%s", kind, owner)
}
