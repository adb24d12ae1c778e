package envelope

import (
	"sync"
	"time"
)

// ttlItem holds a cached value, its absolute expiration and the insertion
// generation used to detect stale eviction queue entries.
type ttlItem[T any] struct {
	v   T
	exp time.Time
	gen uint64
}

type queued struct {
	key string
	gen uint64
}

// TTLCache is a small goroutine-safe key/value cache with a fixed capacity
// and a per-entry time-to-live.
//
// It only ever holds immutable, non-secret values (envelope records, key ids).
// Data keys and plaintexts must never be stored in it.
//
//   - Expiration: entries expire lazily on Get.
//   - Eviction: FIFO by insertion. Re-setting a key moves it to the back of
//     the queue; its older queue entry is skipped when it reaches the front.
//   - Zero value: not ready for use; call NewTTLCache.
type TTLCache[T any] struct {
	mu    sync.Mutex
	ttl   time.Duration
	size  int
	gen   uint64
	data  map[string]ttlItem[T]
	queue []queued
	now   func() time.Time
}

// NewTTLCache constructs a TTLCache holding at most size entries, each valid
// for ttl. A non-positive ttl or size disables caching.
func NewTTLCache[T any](size int, ttl time.Duration) *TTLCache[T] {
	return &TTLCache[T]{ttl: ttl, size: size, data: make(map[string]ttlItem[T]), now: time.Now}
}

// Get returns the cached value for k if present and not expired.
func (c *TTLCache[T]) Get(k string) (T, bool) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.data[k]
	if !ok {
		return zero, false
	}
	if !c.now().Before(it.exp) {
		delete(c.data, k)
		return zero, false
	}
	return it.v, true
}

// Set inserts or replaces the value for k, evicting the oldest live entry
// when the cache is full.
func (c *TTLCache[T]) Set(k string, v T) {
	if c.size <= 0 || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.data[k]; !exists {
		for len(c.data) >= c.size && len(c.queue) > 0 {
			head := c.queue[0]
			c.queue = c.queue[1:]
			if it, ok := c.data[head.key]; ok && it.gen == head.gen {
				delete(c.data, head.key)
			}
		}
	}
	c.gen++
	c.data[k] = ttlItem[T]{v: v, exp: c.now().Add(c.ttl), gen: c.gen}
	c.queue = append(c.queue, queued{key: k, gen: c.gen})
	if len(c.queue) > 2*c.size {
		c.compact()
	}
}

// compact drops stale queue entries; caller holds mu.
func (c *TTLCache[T]) compact() {
	live := c.queue[:0]
	for _, q := range c.queue {
		if it, ok := c.data[q.key]; ok && it.gen == q.gen {
			live = append(live, q)
		}
	}
	c.queue = live
}

// Delete drops k from the cache.
func (c *TTLCache[T]) Delete(k string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, k)
}

// Len returns the number of entries, expired ones included until touched.
func (c *TTLCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
