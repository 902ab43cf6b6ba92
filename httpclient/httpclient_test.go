/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/musicranker/mbproxy/config"
	"github.com/musicranker/mbproxy/httpserver/middleware"
	"github.com/musicranker/mbproxy/log/logtest"
	"github.com/musicranker/mbproxy/testutil"
)

func TestNewWithOpts(t *testing.T) {
	var gotUserAgent, gotRequestID string
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		gotRequestID = r.Header.Get("X-Request-ID")
		rw.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	logger := logtest.NewRecorder()
	collector := NewPrometheusMetricsCollector("")
	cfg := NewDefaultConfig()
	cfg.Timeout = 0
	client, err := NewWithOpts(cfg, Opts{
		UserAgent:   "MusicRanker/1.0.0 ( test@example.com )",
		RequestType: "musicbrainz",
		Collector:   collector,
	})
	require.NoError(t, err)

	ctx := middleware.NewContextWithLogger(context.Background(), logger)
	ctx = middleware.NewContextWithRequestID(ctx, "req-1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/ws/2/artist/1", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	require.Equal(t, "MusicRanker/1.0.0 ( test@example.com )", gotUserAgent)
	require.Equal(t, "req-1", gotRequestID)

	entry, found := logger.FindEntry("client http request completed")
	require.True(t, found)
	field, found := entry.FindField("request_type")
	require.True(t, found)
	require.Equal(t, "musicbrainz", string(field.Bytes))

	host := req.URL.Host
	testutil.RequireSamplesCountInHistogram(t,
		collector.Durations.WithLabelValues("musicbrainz", host, http.MethodGet, "artist", "200"), 1)
}

func TestNew_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		rw.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := NewDefaultConfig()
	cfg.Log.Enabled = false
	cfg.Timeout = config.TimeDuration(50 * time.Millisecond)
	client, err := New(cfg)
	require.NoError(t, err)
	require.Equal(t, 50*time.Millisecond, client.Timeout)

	_, err = client.Get(server.URL) // nolint:bodyclose // response is nil on error
	require.Error(t, err)
}

func TestNew_CustomDNS(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.DNS.Servers = []string{"127.0.0.1:53"}
	client, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, client.Transport)

	cfg.DNS.Servers = []string{"127.0.0.1"}
	_, err = New(cfg)
	require.ErrorContains(t, err, "create dns resolver")
}
