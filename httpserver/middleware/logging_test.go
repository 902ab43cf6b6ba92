/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/musicranker/mbproxy/log"
	"github.com/musicranker/mbproxy/log/logtest"
)

// serveLogged runs req through the Logging middleware with next as the final handler.
func serveLogged(opts LoggingOpts, next http.HandlerFunc, req *http.Request) *logtest.Recorder {
	recorder := logtest.NewRecorder()
	LoggingWithOpts(recorder, opts)(next).ServeHTTP(httptest.NewRecorder(), req)
	return recorder
}

func respondWith(status int) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(status)
		_, _ = rw.Write([]byte(http.StatusText(status)))
	}
}

func fieldString(t *testing.T, entry logtest.RecordedEntry, key string) string {
	t.Helper()
	f, ok := entry.FindField(key)
	require.True(t, ok, "no %q field in %q", key, entry.Text)
	return string(f.Bytes)
}

func fieldInt(t *testing.T, entry logtest.RecordedEntry, key string) int64 {
	t.Helper()
	f, ok := entry.FindField(key)
	require.True(t, ok, "no %q field in %q", key, entry.Text)
	return f.Int
}

func TestLogging_RequestAndResponseLines(t *testing.T) {
	const target = "/api/artist/5b11f4ce-a62d-471e-81fc-a69a8278c7da?inc=releases"

	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("User-Agent", "MusicRanker/1.0.0")
	req.Header.Set("X-Client-Version", "2.3.1")
	ctx := NewContextWithRequestID(req.Context(), "ext-1")
	req = req.WithContext(NewContextWithInternalRequestID(ctx, "int-1"))

	var nextLogger log.FieldLogger
	recorder := serveLogged(LoggingOpts{
		RequestStart:   true,
		RequestHeaders: map[string]string{"X-Client-Version": "client_version"},
	}, func(rw http.ResponseWriter, r *http.Request) {
		nextLogger = GetLoggerFromContext(r.Context())
		respondWith(http.StatusTooManyRequests)(rw, r)
	}, req)

	require.NotNil(t, nextLogger)
	entries := recorder.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, "request started", entries[0].Text)
	require.True(t, strings.HasPrefix(entries[1].Text, "response completed in "))
	require.Equal(t, log.LevelInfo, entries[1].Level)

	for _, entry := range entries {
		require.Equal(t, "ext-1", fieldString(t, entry, "request_id"))
		require.Equal(t, "int-1", fieldString(t, entry, "int_request_id"))
		require.Equal(t, target, fieldString(t, entry, "uri"))
		require.Equal(t, "MusicRanker/1.0.0", fieldString(t, entry, "user_agent"))
		require.Equal(t, "2.3.1", fieldString(t, entry, "client_version"))
		require.Equal(t, req.RemoteAddr,
			fmt.Sprintf("%s:%d", fieldString(t, entry, "remote_addr_ip"), fieldInt(t, entry, "remote_addr_port")))
	}
	require.EqualValues(t, http.StatusTooManyRequests, fieldInt(t, entries[1], "status"))
	require.EqualValues(t, len(http.StatusText(http.StatusTooManyRequests)), fieldInt(t, entries[1], "bytes_sent"))
}

func TestLogging_StatusWithoutWriteHeader(t *testing.T) {
	recorder := serveLogged(LoggingOpts{}, func(rw http.ResponseWriter, r *http.Request) {
		_, _ = rw.Write([]byte(`{"status":"ok"}`))
	}, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Len(t, recorder.Entries(), 1)
	require.EqualValues(t, http.StatusOK, fieldInt(t, recorder.Entries()[0], "status"))
}

func TestLogging_ExcludedEndpoints(t *testing.T) {
	opts := LoggingOpts{RequestStart: true, ExcludedEndpoints: []string{"/health", "/internal/*"}}
	tests := []struct {
		target    string
		status    int
		wantLines int
	}{
		{"/health", http.StatusOK, 0},
		{"/health?verbose=1", http.StatusOK, 0},
		{"/internal/metrics", http.StatusOK, 0},
		{"/health", http.StatusServiceUnavailable, 1},
		{"/api/release/abc", http.StatusOK, 2},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %d", tt.target, tt.status), func(t *testing.T) {
			recorder := serveLogged(opts, respondWith(tt.status), httptest.NewRequest(http.MethodGet, tt.target, nil))
			require.Len(t, recorder.Entries(), tt.wantLines)
		})
	}
}

func TestLogging_SecretQueryParams(t *testing.T) {
	tests := []struct {
		target  string
		secrets []string
		want    string
	}{
		{"/api/release-groups", nil, "/api/release-groups"},
		{"/api/release-groups?artist=a74b1b7f", nil, "/api/release-groups?artist=a74b1b7f"},
		{"/api/release-groups?artist=a74b1b7f&token=702b9bfc", []string{"token"},
			"/api/release-groups?artist=a74b1b7f&token=_HIDDEN_"},
		{"/api/release-groups?secret=cc75&token=702b&token=", []string{"token", "secret"},
			"/api/release-groups?secret=_HIDDEN_&token=_HIDDEN_&token="},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			recorder := serveLogged(LoggingOpts{SecretQueryParams: tt.secrets}, respondWith(http.StatusOK),
				httptest.NewRequest(http.MethodGet, tt.target, nil))
			require.Len(t, recorder.Entries(), 1)

			got, err := url.Parse(fieldString(t, recorder.Entries()[0], "uri"))
			require.NoError(t, err)
			want, err := url.Parse(tt.want)
			require.NoError(t, err)
			require.Equal(t, want.Path, got.Path)
			require.Equal(t, want.Query(), got.Query())
		})
	}
}

func TestLogging_LoggingParams(t *testing.T) {
	handler := func(delay time.Duration) http.HandlerFunc {
		return func(rw http.ResponseWriter, r *http.Request) {
			params := GetLoggingParamsFromContext(r.Context())
			params.ExtendFields(log.String("cache", "miss"))
			params.AddTimeSlotDurationInMs("upstream_ms", 1200*time.Millisecond)
			time.Sleep(delay)
			rw.WriteHeader(http.StatusOK)
		}
	}

	t.Run("fast request", func(t *testing.T) {
		recorder := serveLogged(LoggingOpts{}, handler(0), httptest.NewRequest(http.MethodGet, "/", nil))
		entry := recorder.Entries()[0]
		require.Equal(t, "miss", fieldString(t, entry, "cache"))
		_, found := entry.FindField("time_slots")
		require.False(t, found)
	})

	t.Run("slow request", func(t *testing.T) {
		recorder := serveLogged(LoggingOpts{SlowRequestThreshold: 10 * time.Millisecond},
			handler(20*time.Millisecond), httptest.NewRequest(http.MethodGet, "/", nil))
		entry := recorder.Entries()[0]
		require.Equal(t, "miss", fieldString(t, entry, "cache"))
		slots, found := entry.FindField("time_slots")
		require.True(t, found)
		require.Equal(t, loggableIntMap{"upstream_ms": 1200}, slots.Any)
	})
}

func TestLogging_AddRequestInfoToLogger(t *testing.T) {
	next := func(rw http.ResponseWriter, r *http.Request) {
		GetLoggerFromContext(r.Context()).Info("serving")
		rw.WriteHeader(http.StatusOK)
	}

	recorder := serveLogged(LoggingOpts{AddRequestInfoToLogger: true}, next,
		httptest.NewRequest(http.MethodGet, "/api/release/1", nil))
	entry, found := recorder.FindEntry("serving")
	require.True(t, found)
	require.Equal(t, "/api/release/1", fieldString(t, entry, "uri"))

	recorder = serveLogged(LoggingOpts{}, next, httptest.NewRequest(http.MethodGet, "/api/release/1", nil))
	entry, found = recorder.FindEntry("serving")
	require.True(t, found)
	_, found = entry.FindField("uri")
	require.False(t, found)
}

func TestLogging_OriginAddr(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"forwarded for", map[string]string{headerForwardedFor: "192.0.0.1"}, "192.0.0.1"},
		{"forwarded for chain", map[string]string{headerForwardedFor: "192.0.0.1, 10.0.0.2"}, "192.0.0.1"},
		{"real ip", map[string]string{headerRealIP: "192.0.0.3"}, "192.0.0.3"},
		{"forwarded for wins", map[string]string{headerForwardedFor: "192.0.0.4", headerRealIP: "192.0.0.5"}, "192.0.0.4"},
		{"none", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			entry := serveLogged(LoggingOpts{}, respondWith(http.StatusOK), req).Entries()[0]
			if tt.want == "" {
				_, found := entry.FindField("origin_addr")
				require.False(t, found)
				return
			}
			require.Equal(t, tt.want, fieldString(t, entry, "origin_addr"))
		})
	}
}
