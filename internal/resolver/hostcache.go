package resolver

import (
	"sync"
	"time"
)

// HostCache remembers the preferred provider host discovered from the
// instance directory. Entries expire after the configured TTL so a host that
// goes bad is eventually re-discovered rather than pinned forever.
type HostCache struct {
	mu        sync.Mutex
	host      string
	fetchedAt time.Time
	ttl       time.Duration
	now       func() time.Time
}

// NewHostCache creates a host cache with the given TTL.
func NewHostCache(ttl time.Duration) *HostCache {
	return &HostCache{
		ttl: ttl,
		now: time.Now,
	}
}

// Get returns the cached host and whether it is still fresh.
func (c *HostCache) Get() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.host == "" {
		return "", false
	}
	if c.now().Sub(c.fetchedAt) > c.ttl {
		return "", false
	}
	return c.host, true
}

// Set stores a freshly discovered host.
func (c *HostCache) Set(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.host = host
	c.fetchedAt = c.now()
}

// Invalidate drops the cached host.
func (c *HostCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.host = ""
}
