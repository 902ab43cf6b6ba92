/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/RussellLuo/slidingwindow"

	"github.com/musicranker/mbproxy/lrucache"
)

// SlidingWindowLimiter implements sliding window rate limiting algorithm.
type SlidingWindowLimiter struct {
	getLimiter func(ctx context.Context, key string) (*slidingwindow.Limiter, error)
	maxRate    Rate
	now        func() time.Time
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter.
// Per-key windows are kept in an LRU cache bounded by maxKeys.
func NewSlidingWindowLimiter(maxRate Rate, maxKeys int) (*SlidingWindowLimiter, error) {
	newWindowLimiter := func() *slidingwindow.Limiter {
		lim, _ := slidingwindow.NewLimiter(
			maxRate.Duration, int64(maxRate.Count), func() (slidingwindow.Window, slidingwindow.StopFunc) {
				return slidingwindow.NewLocalWindow()
			})
		return lim
	}

	if maxKeys == 0 {
		lim := newWindowLimiter()
		return &SlidingWindowLimiter{
			maxRate:    maxRate,
			now:        time.Now,
			getLimiter: func(context.Context, string) (*slidingwindow.Limiter, error) { return lim, nil },
		}, nil
	}

	store, err := lrucache.New[string, *slidingwindow.Limiter](maxKeys, nil)
	if err != nil {
		return nil, fmt.Errorf("new LRU in-memory store for keys: %w", err)
	}
	return &SlidingWindowLimiter{
		maxRate: maxRate,
		now:     time.Now,
		getLimiter: func(ctx context.Context, key string) (*slidingwindow.Limiter, error) {
			lim, _, err := store.GetOrLoad(ctx, key, func(context.Context) (*slidingwindow.Limiter, time.Duration, error) {
				return newWindowLimiter(), 0, nil
			})
			return lim, err
		},
	}, nil
}

// Allow checks if the request should be allowed based on the rate limit.
// The returned retryAfter points to the start of the next window.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	lim, err := l.getLimiter(ctx, key)
	if err != nil {
		return false, 0, err
	}
	if lim.Allow() {
		return true, 0, nil
	}
	now := l.now()
	return false, now.Truncate(l.maxRate.Duration).Add(l.maxRate.Duration).Sub(now), nil
}
