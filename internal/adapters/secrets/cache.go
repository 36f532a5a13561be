package secrets

import (
	"sync"
	"time"
)

// secretCache is a TTL cache of secret values keyed by path
type secretCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// newSecretCache returns nil, a disabled cache, for ttl <= 0
func newSecretCache(ttl time.Duration) *secretCache {
	if ttl <= 0 {
		return nil
	}
	return &secretCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *secretCache) get(path string) (string, bool) {
	if c == nil {
		return "", false
	}

	c.mu.RLock()
	entry, ok := c.entries[path]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.expiresAt) {
		return "", false
	}
	return entry.value, true
}

func (c *secretCache) set(path, value string) {
	if c == nil {
		return
	}

	c.mu.Lock()
	c.entries[path] = cacheEntry{value: value, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *secretCache) invalidate(path string) {
	if c == nil {
		return
	}

	c.mu.Lock()
	delete(c.entries, path)
	c.mu.Unlock()
}
