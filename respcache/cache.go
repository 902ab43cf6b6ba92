/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package respcache

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/atomic"

	"github.com/musicranker/mbproxy/log"
	"github.com/musicranker/mbproxy/lrucache"
)

// Defaults for Options.
const (
	DefaultTTL         = time.Hour
	DefaultMaxEntries  = 10000
	DefaultTierTimeout = time.Second
)

// Tier is a second-level storage consulted on in-memory misses and written on every successful load.
// Tier failures are logged and never fail a request.
type Tier interface {
	Get(ctx context.Context, key string) (body []byte, expiresAt time.Time, found bool, err error)
	Set(ctx context.Context, key string, body []byte, expiresAt time.Time) error
}

// LoadFunc produces a response body on a cache miss.
type LoadFunc func(ctx context.Context) ([]byte, error)

// Options represents options for the Cache.
type Options struct {
	// TTL is applied to every successfully loaded response. DefaultTTL is used if it's zero.
	TTL time.Duration

	// MaxEntries bounds the in-memory tier. DefaultMaxEntries is used if it's zero.
	MaxEntries int

	// Tier is an optional second-level storage.
	Tier Tier

	// TierTimeout bounds writes to the second tier made by Store. DefaultTierTimeout is used if it's zero.
	TierTimeout time.Duration

	MetricsCollector lrucache.MetricsCollector
	Logger           log.FieldLogger

	// Now may be hooked in tests. It defaults to time.Now.
	Now func() time.Time
}

// Cache stores raw upstream responses for a fixed TTL.
type Cache struct {
	entries     *lrucache.LRUCache[string, []byte]
	ttl         time.Duration
	tier        Tier
	tierTimeout time.Duration
	logger      log.FieldLogger
	now         func() time.Time
}

// New creates a new Cache.
func New(opts Options) (*Cache, error) {
	if opts.TTL == 0 {
		opts.TTL = DefaultTTL
	}
	if opts.TTL < 0 {
		return nil, fmt.Errorf("ttl must be positive, got %s", opts.TTL)
	}
	if opts.MaxEntries == 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.TierTimeout == 0 {
		opts.TierTimeout = DefaultTierTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	entries, err := lrucache.NewWithOpts[string, []byte](opts.MaxEntries, opts.MetricsCollector,
		lrucache.Options{DefaultTTL: opts.TTL, Now: opts.Now})
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &Cache{
		entries:     entries,
		ttl:         opts.TTL,
		tier:        opts.Tier,
		tierTimeout: opts.TierTimeout,
		logger:      opts.Logger,
		now:         opts.Now,
	}, nil
}

// Key returns a cache key for the inbound request: the path followed by "?" and the raw query if there is one.
// Requests that differ in path or query get different keys.
func Key(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + r.URL.RawQuery
}

// TTL returns the lifetime of loaded responses.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Lookup returns a fresh in-memory entry. It doesn't extend the entry's lifetime.
func (c *Cache) Lookup(key string) ([]byte, bool) {
	return c.entries.Get(key)
}

// Store unconditionally overwrites the entry. It expires after ttl.
func (c *Cache) Store(key string, body []byte, ttl time.Duration) {
	c.entries.AddWithTTL(key, body, ttl)
	if c.tier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.tierTimeout)
	defer cancel()
	c.storeInTier(ctx, key, body, c.now().Add(ttl))
}

// Do returns a cached response or loads it with fn.
// Concurrent calls for the same missing key share one fn call. A successful result is cached with the TTL,
// errors are returned to every waiting caller and never cached. hit reports whether fn was not called.
func (c *Cache) Do(ctx context.Context, key string, fn LoadFunc) (body []byte, hit bool, err error) {
	var fromTier atomic.Bool
	body, hit, err = c.entries.GetOrLoad(ctx, key, func(ctx context.Context) ([]byte, time.Duration, error) {
		if b, ttl, ok := c.lookupTier(ctx, key); ok {
			fromTier.Store(true)
			return b, ttl, nil
		}
		b, loadErr := fn(ctx)
		if loadErr != nil {
			return nil, 0, loadErr
		}
		c.storeInTier(ctx, key, b, c.now().Add(c.ttl))
		return b, c.ttl, nil
	})
	return body, hit || fromTier.Load(), err
}

// DeleteExpired removes expired entries from the in-memory tier.
func (c *Cache) DeleteExpired() int {
	return c.entries.DeleteExpired()
}

// Len returns the number of entries in the in-memory tier.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func (c *Cache) lookupTier(ctx context.Context, key string) ([]byte, time.Duration, bool) {
	if c.tier == nil {
		return nil, 0, false
	}
	body, expiresAt, found, err := c.tier.Get(ctx, key)
	if err != nil {
		c.logger.Warn("second tier lookup failed", log.String("key", key), log.Error(err))
		return nil, 0, false
	}
	if !found {
		return nil, 0, false
	}
	ttl := expiresAt.Sub(c.now())
	if ttl <= 0 {
		return nil, 0, false
	}
	return body, ttl, true
}

func (c *Cache) storeInTier(ctx context.Context, key string, body []byte, expiresAt time.Time) {
	if c.tier == nil {
		return
	}
	if err := c.tier.Set(ctx, key, body, expiresAt); err != nil {
		c.logger.Warn("second tier store failed", log.String("key", key), log.Error(err))
	}
}
