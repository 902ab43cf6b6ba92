/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package respcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/musicranker/mbproxy/log"
)

func TestSweeper(t *testing.T) {
	clock := newFakeClock()
	c, err := New(Options{TTL: time.Minute, Now: clock.Now})
	require.NoError(t, err)
	c.Store("/artist/1", []byte(`{}`), time.Minute)
	c.Store("/artist/2", []byte(`{}`), time.Hour)
	clock.Advance(2 * time.Minute)
	require.Equal(t, 2, c.Len())

	var tierSweeps atomic.Int32
	tier := ExpiredDeleterFunc(func() int {
		tierSweeps.Inc()
		return 0
	})

	sweeper := NewSweeper(10*time.Millisecond, log.NewDisabledLogger(), c, tier)
	fatalErr := make(chan error, 1)
	go sweeper.Start(fatalErr)

	require.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, sweeper.Stop(true))
	require.Greater(t, tierSweeps.Load(), int32(0))
	require.Empty(t, fatalErr)

	_, ok := c.Lookup("/artist/2")
	require.True(t, ok)
}
