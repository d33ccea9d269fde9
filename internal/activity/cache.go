package activity

import (
	"sync"
	"time"

	"github.com/agentplan/apiserver/types"
)

// Cache is an explicitly passed TTL memo for the commit feed. Entries
// past the TTL are still readable, flagged stale, so callers can serve
// them when the upstream API is unavailable.
type Cache struct {
	mu        sync.RWMutex
	feed      types.CommitFeed
	fetchedAt time.Time
	ttl       time.Duration
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl}
}

// Get returns the cached feed and whether it is past the TTL. ok is
// false when nothing has been cached yet.
func (c *Cache) Get() (feed types.CommitFeed, stale bool, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.fetchedAt.IsZero() {
		return types.CommitFeed{}, false, false
	}
	return c.feed, time.Since(c.fetchedAt) > c.ttl, true
}

// Set overwrites the cached feed and resets its age.
func (c *Cache) Set(feed types.CommitFeed) {
	c.mu.Lock()
	defer c.mu.Unlock()
	feed.Stale = false
	c.feed = feed
	c.fetchedAt = time.Now()
}

// Clear drops the cached feed.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feed = types.CommitFeed{}
	c.fetchedAt = time.Time{}
}
