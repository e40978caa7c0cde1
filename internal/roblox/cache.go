package roblox

import (
	"strings"
	"sync"
	"time"

	"github.com/roblox-funapp/internal/domain"
)

// NormalizeUsername returns the cache identity for a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

type cacheEntry struct {
	profile  domain.PlayerProfile
	storedAt time.Time
}

// ProfileCache is a process-local TTL map from normalized username to profile.
// Construct one per process; there is no teardown and no cross-instance coherence.
type ProfileCache struct {
	mu         sync.RWMutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewProfileCache creates a cache. now may be nil to use the wall clock.
func NewProfileCache(ttl time.Duration, maxEntries int, now func() time.Time) *ProfileCache {
	if now == nil {
		now = time.Now
	}
	return &ProfileCache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        now,
	}
}

// Get returns the cached profile if it was stored less than TTL ago.
func (c *ProfileCache) Get(key string) (domain.PlayerProfile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ent, ok := c.entries[key]
	if !ok || c.now().Sub(ent.storedAt) >= c.ttl {
		return domain.PlayerProfile{}, false
	}
	return ent.profile, true
}

// Put stores a copy of profile under key. When the map grows past the
// ceiling, entries older than the TTL are swept as a side effect.
func (c *ProfileCache) Put(key string, profile domain.PlayerProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = cacheEntry{profile: profile, storedAt: now}

	if len(c.entries) > c.maxEntries {
		for k, ent := range c.entries {
			if now.Sub(ent.storedAt) > c.ttl {
				delete(c.entries, k)
			}
		}
	}
}

// Len returns the number of entries, expired or not.
func (c *ProfileCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
