/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package redistier

//go:generate mockgen -source=client.go -destination=mock/client_mock.go -package=mock

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client is the subset of redis commands used by the tier.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

var _ Client = (*redis.Client)(nil)
