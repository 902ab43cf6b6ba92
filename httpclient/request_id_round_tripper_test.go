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

	"github.com/stretchr/testify/require"

	"github.com/musicranker/mbproxy/httpserver/middleware"
)

func TestRequestIDRoundTripper_RoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("X-Got-Request-ID", r.Header.Get("X-Request-ID"))
		rw.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	do := func(t *testing.T, rt http.RoundTripper, req *http.Request) string {
		t.Helper()
		resp, err := (&http.Client{Transport: rt}).Do(req)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		return resp.Header.Get("X-Got-Request-ID")
	}

	t.Run("request id from context", func(t *testing.T) {
		ctx := middleware.NewContextWithRequestID(context.Background(), "12345")
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
		require.NoError(t, err)
		require.Equal(t, "12345", do(t, NewRequestIDRoundTripper(http.DefaultTransport), req))
	})

	t.Run("no request id", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, server.URL, nil)
		require.NoError(t, err)
		require.Empty(t, do(t, NewRequestIDRoundTripper(http.DefaultTransport), req))
	})

	t.Run("existing header is kept", func(t *testing.T) {
		ctx := middleware.NewContextWithRequestID(context.Background(), "12345")
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
		require.NoError(t, err)
		req.Header.Set("X-Request-ID", "explicit")
		require.Equal(t, "explicit", do(t, NewRequestIDRoundTripper(http.DefaultTransport), req))
	})

	t.Run("custom provider", func(t *testing.T) {
		rt := NewRequestIDRoundTripperWithOpts(http.DefaultTransport, RequestIDRoundTripperOpts{
			RequestIDProvider: func(ctx context.Context) string { return "custom-12345" },
		})
		req, err := http.NewRequest(http.MethodGet, server.URL, nil)
		require.NoError(t, err)
		require.Equal(t, "custom-12345", do(t, rt, req))
	})
}
