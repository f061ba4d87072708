package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// TTLStore implements Store with time-based expiration over an in-process map.
type TTLStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time

	hits   int64
	misses int64
}

type entry struct {
	body    []byte
	expires time.Time
}

// NewTTLStore creates an empty in-memory cache.
func NewTTLStore() *TTLStore {
	return &TTLStore{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Get returns the cached body if present and not expired.
func (c *TTLStore) Get(_ context.Context, fingerprint string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[fingerprint]
	c.mu.RUnlock()

	if !ok || c.now().After(e.expires) {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return e.body, true
}

// Put stores a body under the fingerprint, overwriting any previous entry
// wholesale. Expired entries are reaped lazily on write.
func (c *TTLStore) Put(_ context.Context, fingerprint string, body []byte, ttl time.Duration) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, key)
		}
	}
	c.entries[fingerprint] = &entry{body: body, expires: now.Add(ttl)}
}

// PurgeMatching removes entries whose bodies contain any of the given tokens,
// case-insensitively. Used to evict cached challenge pages so a blocked
// response never satisfies a later fetch.
func (c *TTLStore) PurgeMatching(tokens []string) int {
	lowered := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			lowered = append(lowered, t)
		}
	}
	if len(lowered) == 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		body := strings.ToLower(string(e.body))
		for _, t := range lowered {
			if strings.Contains(body, t) {
				delete(c.entries, key)
				removed++
				break
			}
		}
	}
	return removed
}

// Stats returns hit/miss counters and the live entry count.
func (c *TTLStore) Stats() (hits, misses int64, entries int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses, len(c.entries)
}
