/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package disktier

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/musicranker/mbproxy/respcache"
)

func TestTier(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "cache")
	tier, err := Open(context.Background(), path, Options{Now: func() time.Time { return now }})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, tier.Set(ctx, "/artist/1", []byte(`{"id":"1"}`), now.Add(time.Hour)))
	require.NoError(t, tier.Set(ctx, "/artist/2", []byte(`{"id":"2"}`), now.Add(time.Minute)))
	require.NoError(t, tier.Set(ctx, "/artist/3", []byte(`{"id":"3"}`), now)) // already expired, skipped

	body, expiresAt, found, err := tier.Get(ctx, "/artist/1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, `{"id":"1"}`, string(body))
	require.True(t, now.Add(time.Hour).Equal(expiresAt))

	_, _, found, err = tier.Get(ctx, "/artist/3")
	require.NoError(t, err)
	require.False(t, found)

	// Entries survive reopening.
	require.NoError(t, tier.Close())
	now = now.Add(2 * time.Minute)
	tier, err = Open(context.Background(), path, Options{Now: func() time.Time { return now }})
	require.NoError(t, err)
	defer func() { require.NoError(t, tier.Close()) }()

	_, _, found, err = tier.Get(ctx, "/artist/2")
	require.NoError(t, err)
	require.False(t, found, "expired entry must not be returned")

	require.Equal(t, 1, tier.DeleteExpired())
	require.Equal(t, 0, tier.DeleteExpired())

	_, _, found, err = tier.Get(ctx, "/artist/1")
	require.NoError(t, err)
	require.True(t, found)
}

func TestTier_WithCache(t *testing.T) {
	tier, err := Open(context.Background(), filepath.Join(t.TempDir(), "cache"), Options{})
	require.NoError(t, err)
	defer func() { require.NoError(t, tier.Close()) }()

	loader := func(body string) respcache.LoadFunc {
		return func(ctx context.Context) ([]byte, error) { return []byte(body), nil }
	}

	first, err := respcache.New(respcache.Options{Tier: tier})
	require.NoError(t, err)
	_, hit, err := first.Do(context.Background(), "/release/1", loader(`{"v":1}`))
	require.NoError(t, err)
	require.False(t, hit)

	// A fresh in-memory cache (e.g. after restart) is filled from the disk.
	second, err := respcache.New(respcache.Options{Tier: tier})
	require.NoError(t, err)
	body, hit, err := second.Do(context.Background(), "/release/1", loader(`{"v":2}`))
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, `{"v":1}`, string(body))
}

func TestOpen_RetriesWhileLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache")
	holder, err := Open(context.Background(), path, Options{})
	require.NoError(t, err)

	_, err = Open(context.Background(), path, Options{OpenRetries: -1})
	require.Error(t, err, "database is locked by another instance")

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = holder.Close()
	}()
	tier, err := Open(context.Background(), path, Options{OpenRetries: 20, OpenRetryInterval: 50 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, tier.Close())
}
