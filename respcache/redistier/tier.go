/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package redistier implements a shared second-level response cache tier on top of Redis (or KeyDB).
package redistier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/musicranker/mbproxy/log"
	"github.com/musicranker/mbproxy/respcache"
	"github.com/musicranker/mbproxy/retry"
)

// Connection attempts made by Connect before giving up.
const (
	defaultConnectAttempts = 5
	defaultConnectInterval = 200 * time.Millisecond
)

// Tier stores responses in Redis. Entries expire on the Redis side via PX.
type Tier struct {
	client    Client
	keyPrefix string
	now       func() time.Time
}

var _ respcache.Tier = (*Tier)(nil)

// Options represents options for the Tier.
type Options struct {
	// KeyPrefix separates keys of several deployments sharing one Redis database.
	KeyPrefix string

	// Now may be hooked in tests. It defaults to time.Now.
	Now func() time.Time
}

// New creates a new Tier over the given client.
func New(client Client, opts Options) *Tier {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tier{client: client, keyPrefix: opts.KeyPrefix, now: opts.Now}
}

// Get returns a stored response if it's present and not expired.
func (t *Tier) Get(ctx context.Context, key string) (body []byte, expiresAt time.Time, found bool, err error) {
	data, err := t.client.Get(ctx, t.keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, time.Time{}, false, nil
		}
		return nil, time.Time{}, false, fmt.Errorf("redis get %q: %w", key, err)
	}
	body, expiresAt, err = respcache.DecodeEntry(data)
	if err != nil {
		// Not ours or corrupted, drop it so the next load overwrites it.
		_ = t.client.Del(ctx, t.keyPrefix+key).Err()
		return nil, time.Time{}, false, fmt.Errorf("decode entry %q: %w", key, err)
	}
	if !expiresAt.After(t.now()) {
		return nil, time.Time{}, false, nil
	}
	return body, expiresAt, true, nil
}

// Set stores a response until expiresAt. Already expired entries are not written.
func (t *Tier) Set(ctx context.Context, key string, body []byte, expiresAt time.Time) error {
	ttl := expiresAt.Sub(t.now())
	if ttl <= 0 {
		return nil
	}
	if err := t.client.Set(ctx, t.keyPrefix+key, respcache.EncodeEntry(body, expiresAt), ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying client.
func (t *Tier) Close() error {
	return t.client.Close()
}

// Connect creates a Redis client from the URL (redis://[:password@]host:port[/db])
// and pings the server, retrying with exponential backoff.
func Connect(ctx context.Context, cfg *Config, logger log.FieldLogger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = time.Duration(cfg.DialTimeout)
	opts.ReadTimeout = time.Duration(cfg.ReadTimeout)
	opts.WriteTimeout = time.Duration(cfg.WriteTimeout)
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	client := redis.NewClient(opts)

	policy := retry.NewExponentialBackoffPolicy(defaultConnectInterval, defaultConnectAttempts)
	notify := func(err error, next time.Duration) {
		logger.Warn("redis ping failed, will retry", log.String("address", opts.Addr),
			log.Duration("retry_in", next), log.Error(err))
	}
	if err = retry.DoWithRetry(ctx, policy, nil, notify, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	logger.Info("connected to redis", log.String("address", opts.Addr), log.Int("db", opts.DB))
	return client, nil
}
