// ABOUTME: Time-windowed set of transport update ids, used to drop redeliveries
// ABOUTME: Expiry and eviction run inline on each lookup, oldest mark first

package dedupe

import (
	"sync"
	"time"
)

type mark[K comparable] struct {
	key K
	at  time.Time
}

// Cache remembers keys for ttl, holding at most maxSize of them.
type Cache[K comparable] struct {
	mu      sync.Mutex
	seen    map[K]time.Time
	marks   []mark[K] // oldest first
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// New creates a cache. A non-positive maxSize means one entry.
func New[K comparable](ttl time.Duration, maxSize int) *Cache[K] {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Cache[K]{
		seen:    make(map[K]time.Time),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// CheckAndMark reports whether key was marked within the window. A new
// key is marked and reports false.
func (c *Cache[K]) CheckAndMark(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for len(c.marks) > 0 && now.Sub(c.marks[0].at) >= c.ttl {
		c.dropOldest()
	}
	if _, ok := c.seen[key]; ok {
		return true
	}

	for len(c.seen) >= c.maxSize {
		c.dropOldest()
	}
	c.seen[key] = now
	c.marks = append(c.marks, mark[K]{key: key, at: now})
	return false
}

func (c *Cache[K]) dropOldest() {
	delete(c.seen, c.marks[0].key)
	c.marks[0] = mark[K]{}
	c.marks = c.marks[1:]
}
