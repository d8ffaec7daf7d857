package idempotency

import (
	"sync"
	"time"
)

// Cache is the fast layer of the idempotency gate: an atomic
// set-if-absent map with TTL, backed by an in-process map guarded by a
// mutex with a background janitor goroutine sweeping expired entries.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

func NewCache(ttl time.Duration) *Cache {
	c := &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
	go c.janitor()
	return c
}

// SetIfAbsent is the in-process equivalent of Redis SET key val NX EX ttl.
// It returns true iff the caller's value won the race.
func (c *Cache) SetIfAbsent(key, value string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && e.expiresAt.After(time.Now()) {
		return false
	}
	c.entries[key] = cacheEntry{value: value, expiresAt: time.Now().Add(c.ttl)}
	return true
}

// Get returns the cached value and whether it was present and unexpired.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.expiresAt.After(time.Now()) {
		return "", false
	}
	return e.value, true
}

// Set repopulates the cache after a store fallback lookup.
func (c *Cache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expiresAt: time.Now().Add(c.ttl)}
}

// Delete removes a key outright. The gate deliberately never calls this
// on failure paths — letting the TTL expire is safer under
// at-least-once redelivery — it exists for callers that must abort
// admission before the store insert happens.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache) janitor() {
	tick := time.NewTicker(time.Minute)
	for range tick.C {
		now := time.Now()
		c.mu.Lock()
		for k, e := range c.entries {
			if !e.expiresAt.After(now) {
				delete(c.entries, k)
			}
		}
		c.mu.Unlock()
	}
}
