/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package profserver

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/musicranker/mbproxy/log/logtest"
	"github.com/musicranker/mbproxy/testutil"
)

// startProfServer runs a server on a free loopback port and waits until it accepts connections.
func startProfServer(t *testing.T, logger *logtest.Recorder) (*ProfServer, chan error) {
	t.Helper()
	addr := testutil.GetLocalAddrWithFreeTCPPort()
	srv := New(&Config{Address: addr}, logger)
	fatalErr := make(chan error, 1)
	go srv.Start(fatalErr)
	require.NoError(t, testutil.WaitListeningServer(addr, 3*time.Second))
	return srv, fatalErr
}

func TestProfServer(t *testing.T) {
	t.Run("serves pprof index", func(t *testing.T) {
		srv, fatalErr := startProfServer(t, logtest.NewRecorder())
		defer func() {
			require.NoError(t, srv.Stop(false))
			testutil.RequireNoErrorInChannel(t, fatalErr)
		}()

		resp, err := http.Get(srv.URL + "/debug/pprof/")
		require.NoError(t, err)
		defer func() { require.NoError(t, resp.Body.Close()) }()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), "goroutine")
	})

	t.Run("address in use", func(t *testing.T) {
		busy, _ := startProfServer(t, logtest.NewRecorder())
		defer func() { require.NoError(t, busy.Stop(false)) }()

		logRecorder := logtest.NewRecorder()
		srv := New(&Config{Address: busy.srv.Addr}, logRecorder)
		fatalErr := make(chan error, 1)
		srv.Start(fatalErr)
		require.ErrorContains(t, <-fatalErr, "listen profiling server")
		_, found := logRecorder.FindEntry("profiling HTTP server error")
		require.True(t, found)
	})

	t.Run("graceful stop", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		srv, fatalErr := startProfServer(t, logRecorder)

		require.NoError(t, srv.Stop(true))
		testutil.RequireNoErrorInChannel(t, fatalErr)
		_, found := logRecorder.FindEntry("profiling HTTP server closed")
		require.True(t, found)
	})
}
