package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/scoreflow/scoreflow/pkg/models"
)

// entry is one cached aggregated result
type entry struct {
	value     *models.AggregatedResult
	expiresAt time.Time
}

// Cache is a TTL-keyed cache over normalized inputs. It is advisory: a
// miss always falls through to full processing, and staleness is bounded
// by the TTL rather than any consistency protocol.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	hits    int64
	misses  int64
	now     func() time.Time
}

// New creates a cache with the given TTL
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Normalize maps equivalent inputs onto one cache key: trimmed,
// case-folded, inner whitespace collapsed.
func Normalize(input string) string {
	return strings.Join(strings.Fields(strings.ToLower(input)), " ")
}

// Get returns the cached result for an input, or nil on miss or expiry
func (c *Cache) Get(input string) *models.AggregatedResult {
	key := Normalize(input)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		c.misses++
		return nil
	}
	c.hits++
	return e.value
}

// Set stores a result under the normalized input, stamped with the TTL
func (c *Cache) Set(input string, value *models.AggregatedResult) {
	key := Normalize(input)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Invalidate removes an entry before its TTL elapses
func (c *Cache) Invalidate(input string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, Normalize(input))
}

// Sweep drops all expired entries and returns how many were removed.
// Expiry is otherwise lazy; the janitor just bounds memory.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps on the given interval until stop is closed
func (c *Cache) StartJanitor(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Sweep()
			case <-stop:
				return
			}
		}
	}()
}

// Stats reports entry count, hits and misses
func (c *Cache) Stats() (entries int, hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), c.hits, c.misses
}
