// ABOUTME: TTL cache remembering recently delivered request identifiers
// ABOUTME: Guards against transport-level redelivery of webhook updates

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// entry pairs a delivery timestamp with its position in the eviction order.
type entry struct {
	at      time.Time
	element *list.Element
}

// Cache is a thread-safe, TTL-bounded, size-limited record of delivery keys.
// Insertion order is kept in a doubly-linked list so capacity eviction is
// O(1). Chat webhooks redeliver updates until acknowledged; the cache lets
// the gateway acknowledge a redelivery without processing it twice.
type Cache struct {
	mu         sync.RWMutex
	tracked    map[string]*entry
	order      *list.List
	ttl        time.Duration
	maxEntries int
	done       chan struct{}
	closed     bool

	// now is swappable in tests.
	now func() time.Time
}

// New creates a cache that remembers keys for ttl, holding at most maxEntries.
// A background goroutine prunes expired keys periodically.
func New(ttl time.Duration, maxEntries int) *Cache {
	c := &Cache{
		tracked:    make(map[string]*entry),
		order:      list.New(),
		ttl:        ttl,
		maxEntries: maxEntries,
		done:       make(chan struct{}),
		now:        time.Now,
	}
	go c.pruneLoop()
	return c
}

// Seen atomically reports whether key was delivered within the TTL and marks
// it as delivered if not. The check and the mark happen under one lock
// acquisition so two concurrent redeliveries cannot both pass.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.tracked[key]; ok && now.Sub(e.at) < c.ttl {
		return true
	}
	c.markLocked(key, now)
	return false
}

// Contains reports whether key is currently tracked, without marking it.
func (c *Cache) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.tracked[key]
	return ok && c.now().Sub(e.at) < c.ttl
}

// Len returns the number of tracked keys, expired ones included until the
// next prune.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tracked)
}

// markLocked records key at now. Must be called with mu held.
func (c *Cache) markLocked(key string, now time.Time) {
	if e, ok := c.tracked[key]; ok {
		e.at = now
		c.order.MoveToBack(e.element)
		return
	}

	if c.maxEntries > 0 && len(c.tracked) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.tracked[key] = &entry{at: now, element: c.order.PushBack(key)}
}

// evictOldestLocked drops the oldest key. Must be called with mu held.
func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.tracked, key)
}

func (c *Cache) pruneLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.prune()
		case <-c.done:
			return
		}
	}
}

// prune removes every expired key.
func (c *Cache) prune() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.tracked {
		if now.Sub(e.at) >= c.ttl {
			c.order.Remove(e.element)
			delete(c.tracked, key)
		}
	}
}

// Close stops the prune goroutine. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
