// Package cache holds previously fetched result sets so quota-constrained
// callers can reuse them instead of spending credits.
package cache

import (
	"sort"
	"sync"
	"time"
)

type entry[T any] struct {
	payload   []T
	fetchedAt time.Time
	ttl       time.Duration
}

// Cache is a keyed TTL cache over slices of T. A miss is a normal return
// value, never an error. Expired entries stay retrievable through GetStale
// until the sweeper removes them.
type Cache[T any] struct {
	mu       sync.RWMutex
	items    map[string]entry[T]
	maxItems int

	stopSweep chan struct{}
	stopOnce  sync.Once
}

func New[T any](sweepEvery time.Duration, maxItems int) *Cache[T] {
	c := &Cache[T]{
		items:     make(map[string]entry[T]),
		maxItems:  maxItems,
		stopSweep: make(chan struct{}),
	}

	go c.sweepLoop(sweepEvery)

	return c
}

func (c *Cache[T]) Put(key string, payload []T, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = entry[T]{
		payload:   payload,
		fetchedAt: time.Now(),
		ttl:       ttl,
	}
}

// Get returns the payload for key if it exists and has not expired.
func (c *Cache[T]) Get(key string) ([]T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, exists := c.items[key]
	if !exists {
		return nil, false
	}
	if time.Since(e.fetchedAt) >= e.ttl {
		return nil, false
	}
	return e.payload, true
}

// GetStale returns the payload for key regardless of expiry. Used when the
// daily budget is exhausted and stale data beats no data.
func (c *Cache[T]) GetStale(key string) ([]T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, exists := c.items[key]
	if !exists {
		return nil, false
	}
	return e.payload, true
}

func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache[T]) Stop() {
	c.stopOnce.Do(func() { close(c.stopSweep) })
}

func (c *Cache[T]) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stopSweep:
			return
		}
	}
}

// Sweep removes expired entries, then evicts the oldest remaining entries
// until the cache is back under its cap.
func (c *Cache[T]) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.items {
		if now.Sub(e.fetchedAt) >= e.ttl {
			delete(c.items, key)
		}
	}

	if c.maxItems <= 0 || len(c.items) <= c.maxItems {
		return
	}

	type aged struct {
		key       string
		fetchedAt time.Time
	}
	oldest := make([]aged, 0, len(c.items))
	for key, e := range c.items {
		oldest = append(oldest, aged{key, e.fetchedAt})
	}
	sort.Slice(oldest, func(i, j int) bool {
		return oldest[i].fetchedAt.Before(oldest[j].fetchedAt)
	})
	for _, a := range oldest[:len(c.items)-c.maxItems] {
		delete(c.items, a.key)
	}
}
