// Package memcache provides the in-process caches: a TTL LRU and the
// AuthorizationCache built on it.
package memcache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/target/gatekeeper/internal/clock"
)

// LRU is an in-memory least-recently-used cache with per-entry TTL.
// Methods are safe for concurrent use.
type LRU[V any] struct {
	mu     sync.Mutex
	cap    int
	ll     *list.List               // front = most-recently used
	items  map[string]*list.Element // key -> element
	clock  clock.Clock
	hits   atomic.Uint64
	misses atomic.Uint64
	evicts atomic.Uint64
}

type entry[V any] struct {
	key    string
	value  V
	expiry time.Time // zero means no expiry
}

// LRUOptions groups constructor options.
type LRUOptions struct {
	Capacity int         // Optional: defaults to 1024
	Clock    clock.Clock // Optional: defaults to clock.Real
}

// NewLRU creates an empty LRU.
func NewLRU[V any](opts LRUOptions) *LRU[V] {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = 1024
	}
	return &LRU[V]{
		cap:   capacity,
		ll:    list.New(),
		items: make(map[string]*list.Element, capacity),
		clock: clock.OrReal(opts.Clock),
	}
}

// Get returns the value for key if present and not expired.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, found := c.items[key]
	if !found {
		c.misses.Add(1)
		return zero, false
	}
	ent := el.Value.(*entry[V])
	if c.isExpired(ent) {
		c.removeElement(el)
		c.misses.Add(1)
		return zero, false
	}
	c.ll.MoveToFront(el)
	c.hits.Add(1)
	return ent.value, true
}

// Set inserts or updates a value. ttl <= 0 means no expiration.
func (c *LRU[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var exp time.Time
	if ttl > 0 {
		exp = c.clock.Now().Add(ttl)
	}

	if el, found := c.items[key]; found {
		ent := el.Value.(*entry[V])
		ent.value = value
		ent.expiry = exp
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&entry[V]{key: key, value: value, expiry: exp})
	c.items[key] = el
	c.evictIfNeeded()
}

// Delete removes key and reports whether it was present.
func (c *LRU[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeElement(el)
		return true
	}
	return false
}

// Len returns the number of entries, including expired ones not yet collected.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Stats are counters for observability.
type Stats struct {
	Hits, Misses, Evictions uint64
	Size, Capacity          int
}

// Stats returns a snapshot of counters and sizes.
func (c *LRU[V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evicts.Load(),
		Size:      c.Len(),
		Capacity:  c.cap,
	}
}

// caller must hold c.mu.
func (c *LRU[V]) isExpired(e *entry[V]) bool {
	if e.expiry.IsZero() {
		return false
	}
	return c.clock.Now().After(e.expiry)
}

func (c *LRU[V]) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*entry[V]).key)
}

func (c *LRU[V]) evictIfNeeded() {
	for c.ll.Len() > c.cap {
		el := c.ll.Back()
		if el == nil {
			return
		}
		c.removeElement(el)
		c.evicts.Add(1)
	}
}
