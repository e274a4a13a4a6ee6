// Package explain caches short line explanations keyed by buffer offset
// until the editor consumes them.
package explain

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Cache maps buffer offsets to pending explanations. At most one entry
// exists per offset. It is safe for concurrent use.
type Cache struct {
	// mu serializes Shift against writers; ttlcache guards the rest.
	mu    sync.RWMutex
	ttl   time.Duration
	cache *ttlcache.Cache[int, string]
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	ttl time.Duration
}

// WithTTL expires unconsumed entries after d. Zero keeps them forever.
func WithTTL(d time.Duration) Option {
	return func(o *options) { o.ttl = d }
}

// NewCache creates an empty cache. Call Close to stop the expiration loop.
func NewCache(opts ...Option) *Cache {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	c := ttlcache.New[int, string](
		ttlcache.WithTTL[int, string](o.ttl),
		ttlcache.WithDisableTouchOnHit[int, string](),
	)
	go c.Start()
	return &Cache{ttl: o.ttl, cache: c}
}

// SetTTL changes the lifetime given to entries stored from now on.
func (c *Cache) SetTTL(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl = d
}

// Close stops the expiration loop.
func (c *Cache) Close() {
	c.cache.Stop()
}

// Put stores text for offset, replacing any previous entry.
func (c *Cache) Put(offset int, text string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ttl := c.ttl
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	c.cache.Set(offset, text, ttl)
}

// Get returns the entry for offset without removing it.
func (c *Cache) Get(offset int) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item := c.cache.Get(offset)
	if item == nil {
		return "", false
	}
	return item.Value(), true
}

// Take removes and returns the entry for offset. Of two concurrent calls
// for the same offset, at most one gets the entry.
func (c *Cache) Take(offset int) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.cache.GetAndDelete(offset)
	if !ok || item == nil {
		return "", false
	}
	return item.Value(), true
}

// Clear removes the entry for offset.
func (c *Cache) Clear(offset int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.cache.Delete(offset)
}

// ClearAll removes every entry.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.DeleteAll()
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	return c.cache.Len()
}

// Shift moves entries after an edit at offset at that changed the buffer
// length by delta. Insertions move keys at or after at. Deletions drop
// keys strictly inside the removed range and move keys after it. When a
// deletion lands a moved entry on a key that is still occupied (the entry
// at the end of the removed range meeting the one at its start), the
// entry already at that key is kept and the moved one is dropped.
func (c *Cache) Shift(at, delta int) {
	if delta == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	items := c.cache.Items()
	removedEnd := at
	if delta < 0 {
		removedEnd = at - delta
	}

	type moved struct {
		key  int
		text string
		ttl  time.Duration
	}
	var pending []moved
	for key, item := range items {
		switch {
		case delta > 0 && key < at, delta < 0 && key <= at:
			continue
		case delta < 0 && key < removedEnd:
			c.cache.Delete(key)
			continue
		}
		ttl := ttlcache.NoTTL
		if item.TTL() > 0 {
			ttl = time.Until(item.ExpiresAt())
			if ttl <= 0 {
				c.cache.Delete(key)
				continue
			}
		}
		c.cache.Delete(key)
		pending = append(pending, moved{key: key + delta, text: item.Value(), ttl: ttl})
	}
	for _, m := range pending {
		if c.cache.Has(m.key) {
			slog.Debug("explanation dropped by edit", "offset", m.key-delta, "collides_with", m.key)
			continue
		}
		c.cache.Set(m.key, m.text, m.ttl)
	}
}
