/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"
)

type cacheEntry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

func (e *cacheEntry[K, V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && e.expiresAt.Before(now)
}

// LRUCache is a fixed-capacity cache. When it's full, adding a new key evicts the least recently used entry.
// Entries may have a TTL. Expired entries are treated as absent on access
// and are reclaimed either on access or by DeleteExpired.
type LRUCache[K comparable, V any] struct {
	maxEntries int
	defaultTTL time.Duration
	now        func() time.Time

	mu      sync.RWMutex
	lruList *list.List
	cache   map[K]*list.Element

	loads            loadGroup[K, V]
	metricsCollector MetricsCollector
}

// Options represents options for the cache.
type Options struct {
	// DefaultTTL is used by Add. Zero means entries never expire.
	DefaultTTL time.Duration

	// Now returns the current time. time.Now is used if it's nil.
	Now func() time.Time
}

// New creates a new LRUCache with the provided maximum number of entries and metrics collector.
func New[K comparable, V any](maxEntries int, metricsCollector MetricsCollector) (*LRUCache[K, V], error) {
	return NewWithOpts[K, V](maxEntries, metricsCollector, Options{})
}

// NewWithOpts creates a new LRUCache with the provided maximum number of entries, metrics collector, and options.
// Metrics collector may be nil, in this case, metrics are disabled.
func NewWithOpts[K comparable, V any](maxEntries int, metricsCollector MetricsCollector, opts Options) (*LRUCache[K, V], error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("maxEntries must be greater than 0")
	}
	if opts.DefaultTTL < 0 {
		return nil, fmt.Errorf("defaultTTL must be greater or equal to 0 (no expiration)")
	}
	if metricsCollector == nil {
		metricsCollector = disabledMetrics{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &LRUCache[K, V]{
		maxEntries:       maxEntries,
		defaultTTL:       opts.DefaultTTL,
		now:              opts.Now,
		lruList:          list.New(),
		cache:            make(map[K]*list.Element),
		metricsCollector: metricsCollector,
	}, nil
}

// Get returns a value by key if it's present and not expired.
func (c *LRUCache[K, V]) Get(key K) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(key)
}

// Add adds a value with the default TTL.
func (c *LRUCache[K, V]) Add(key K, value V) {
	c.AddWithTTL(key, value, c.defaultTTL)
}

// AddWithTTL adds or overwrites a value. The entry expires after ttl (zero means never).
func (c *LRUCache[K, V]) AddWithTTL(key K, value V, ttl time.Duration) {
	expiresAt := c.expiresAt(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, value, expiresAt)
}

// GetOrLoad returns a cached value or calls load to produce one.
// Concurrent GetOrLoad calls for the same missing key share a single load call.
// A successfully loaded value is stored with the TTL returned by load before the waiters are released.
// Errors are never cached. A caller whose ctx is done stops waiting and gets ctx.Err();
// the load itself is canceled only when every caller waiting for it is gone.
func (c *LRUCache[K, V]) GetOrLoad(
	ctx context.Context, key K, load func(ctx context.Context) (V, time.Duration, error),
) (value V, hit bool, err error) {
	if value, hit = c.Get(key); hit {
		return value, true, nil
	}
	value, err = c.loads.Do(ctx, key, func(loadCtx context.Context) (V, error) {
		// Another load may have finished between Get above and joining the group.
		if v, ok := c.peek(key); ok {
			return v, nil
		}
		v, ttl, loadErr := load(loadCtx)
		if loadErr != nil {
			return v, loadErr
		}
		c.AddWithTTL(key, v, ttl)
		return v, nil
	})
	return value, false, err
}

// Remove removes a value by key.
func (c *LRUCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.cache[key]
	if !ok {
		return false
	}
	c.removeElement(elem)
	c.metricsCollector.SetAmount(len(c.cache))
	return true
}

// Purge removes all entries. Removed entries are not counted as evictions.
func (c *LRUCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[K]*list.Element)
	c.lruList.Init()
	c.metricsCollector.SetAmount(0)
}

// Resize changes the cache capacity and returns the number of evicted entries.
func (c *LRUCache[K, V]) Resize(size int) (evicted int) {
	if size <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.maxEntries = size
	for len(c.cache) > c.maxEntries {
		c.removeElement(c.lruList.Back())
		evicted++
	}
	if evicted > 0 {
		c.metricsCollector.SetAmount(len(c.cache))
		c.metricsCollector.AddEvictions(evicted)
	}
	return evicted
}

// DeleteExpired removes all expired entries and returns how many were removed.
// Entries without expiration time are not affected.
func (c *LRUCache[K, V]) DeleteExpired() (deleted int) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for elem := c.lruList.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*cacheEntry[K, V]).expired(now) {
			c.removeElement(elem)
			deleted++
		}
		elem = prev
	}
	if deleted > 0 {
		c.metricsCollector.SetAmount(len(c.cache))
		c.metricsCollector.AddExpirations(deleted)
	}
	return deleted
}

// Len returns the number of entries in the cache including expired but not yet reclaimed ones.
func (c *LRUCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func (c *LRUCache[K, V]) expiresAt(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

func (c *LRUCache[K, V]) get(key K) (value V, ok bool) {
	elem, hit := c.cache[key]
	if !hit {
		c.metricsCollector.IncMisses()
		return value, false
	}
	entry := elem.Value.(*cacheEntry[K, V])
	if entry.expired(c.now()) {
		c.removeElement(elem)
		c.metricsCollector.SetAmount(len(c.cache))
		c.metricsCollector.AddExpirations(1)
		c.metricsCollector.IncMisses()
		return value, false
	}
	c.lruList.MoveToFront(elem)
	c.metricsCollector.IncHits()
	return entry.value, true
}

// peek looks up a fresh value without touching recency or metrics.
func (c *LRUCache[K, V]) peek(key K) (value V, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	elem, hit := c.cache[key]
	if !hit {
		return value, false
	}
	entry := elem.Value.(*cacheEntry[K, V])
	if entry.expired(c.now()) {
		return value, false
	}
	return entry.value, true
}

func (c *LRUCache[K, V]) put(key K, value V, expiresAt time.Time) {
	if elem, ok := c.cache[key]; ok {
		elem.Value = &cacheEntry[K, V]{key: key, value: value, expiresAt: expiresAt}
		c.lruList.MoveToFront(elem)
		return
	}
	c.cache[key] = c.lruList.PushFront(&cacheEntry[K, V]{key: key, value: value, expiresAt: expiresAt})
	if len(c.cache) > c.maxEntries {
		c.removeElement(c.lruList.Back())
		c.metricsCollector.AddEvictions(1)
	}
	c.metricsCollector.SetAmount(len(c.cache))
}

func (c *LRUCache[K, V]) removeElement(elem *list.Element) {
	c.lruList.Remove(elem)
	delete(c.cache, elem.Value.(*cacheEntry[K, V]).key)
}
