/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/musicranker/mbproxy/scheduler"
)

func TestHTTPTransport_Do(t *testing.T) {
	var gotReq *http.Request
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotReq = r
		gotBody, _ = io.ReadAll(r.Body)
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`{"id":"a74b1b7f"}`))
	}))
	defer srv.Close()

	tr, err := NewHTTPTransport(srv.URL+"/ws/2/", srv.Client(), HTTPTransportOpts{
		Header: http.Header{"Accept": {"application/json"}, "User-Agent": {"Default/1.0"}},
	})
	require.NoError(t, err)

	t.Run("relative url with query", func(t *testing.T) {
		body, err := tr.Do(context.Background(), scheduler.Descriptor{
			URL:    "/artist/a74b1b7f?inc=aliases",
			Header: http.Header{"User-Agent": {"Test/0.1"}},
			Query:  url.Values{"fmt": {"json"}},
		})
		require.NoError(t, err)
		require.Equal(t, `{"id":"a74b1b7f"}`, string(body))
		require.Equal(t, http.MethodGet, gotReq.Method)
		require.Equal(t, "/ws/2/artist/a74b1b7f", gotReq.URL.Path)
		require.Equal(t, "aliases", gotReq.URL.Query().Get("inc"))
		require.Equal(t, "json", gotReq.URL.Query().Get("fmt"))
		require.Equal(t, "Test/0.1", gotReq.Header.Get("User-Agent"))
		require.Equal(t, "application/json", gotReq.Header.Get("Accept"))
	})

	t.Run("escaped path is sent escaped once", func(t *testing.T) {
		_, err := tr.Do(context.Background(), scheduler.Descriptor{URL: "release-group/a%2Fb"})
		require.NoError(t, err)
		require.Equal(t, "/ws/2/release-group/a%2Fb", gotReq.URL.EscapedPath())
		require.Equal(t, "/ws/2/release-group/a/b", gotReq.URL.Path)

		_, err = tr.Do(context.Background(), scheduler.Descriptor{URL: "artist/a%20b"})
		require.NoError(t, err)
		require.Equal(t, "/ws/2/artist/a%20b", gotReq.URL.EscapedPath())
	})

	t.Run("descriptor query overrides url query", func(t *testing.T) {
		_, err := tr.Do(context.Background(), scheduler.Descriptor{
			URL:   "release-group?type=single",
			Query: url.Values{"type": {"album"}},
		})
		require.NoError(t, err)
		require.Equal(t, "/ws/2/release-group", gotReq.URL.Path)
		require.Equal(t, []string{"album"}, gotReq.URL.Query()["type"])
		require.Equal(t, "Default/1.0", gotReq.Header.Get("User-Agent"))
	})

	t.Run("absolute url and body", func(t *testing.T) {
		_, err := tr.Do(context.Background(), scheduler.Descriptor{
			Method: http.MethodPost,
			URL:    srv.URL + "/other",
			Body:   []byte("payload"),
		})
		require.NoError(t, err)
		require.Equal(t, http.MethodPost, gotReq.Method)
		require.Equal(t, "/other", gotReq.URL.Path)
		require.Equal(t, "payload", string(gotBody))
	})
}

func TestHTTPTransport_Do_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/release/missing":
			rw.WriteHeader(http.StatusNotFound)
			_, _ = rw.Write([]byte("not found"))
		default:
			rw.WriteHeader(http.StatusServiceUnavailable)
			_, _ = rw.Write([]byte(strings.Repeat("x", maxErrorBodyLen*2)))
		}
	}))
	defer srv.Close()

	tr, err := NewHTTPTransport(srv.URL, nil, HTTPTransportOpts{})
	require.NoError(t, err)

	_, err = tr.Do(context.Background(), scheduler.Descriptor{URL: "release/missing"})
	require.Error(t, err)
	require.True(t, IsNotFound(err))
	require.True(t, IsNotFound(fmt.Errorf("wrapped: %w", err)))
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, "not found", string(statusErr.Body))
	require.Equal(t, srv.URL+"/release/missing", statusErr.URL)

	_, err = tr.Do(context.Background(), scheduler.Descriptor{URL: "release/broken"})
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	require.Len(t, statusErr.Body, maxErrorBodyLen)
	require.False(t, IsNotFound(err))
	require.EqualError(t, err, fmt.Sprintf("upstream %s/release/broken responded with status 503", srv.URL))
}

func TestHTTPTransport_Do_MaxResponseSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		_, _ = rw.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	tr, err := NewHTTPTransport(srv.URL, nil, HTTPTransportOpts{MaxResponseSize: 5})
	require.NoError(t, err)
	_, err = tr.Do(context.Background(), scheduler.Descriptor{URL: "/"})
	require.EqualError(t, err, "upstream response body exceeds 5 bytes")

	tr, err = NewHTTPTransport(srv.URL, nil, HTTPTransportOpts{MaxResponseSize: 10})
	require.NoError(t, err)
	body, err := tr.Do(context.Background(), scheduler.Descriptor{URL: "/"})
	require.NoError(t, err)
	require.Equal(t, "0123456789", string(body))
}

func TestHTTPTransport_Do_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	tr, err := NewHTTPTransport(srv.URL, nil, HTTPTransportOpts{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tr.Do(ctx, scheduler.Descriptor{URL: "/"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewHTTPTransport_InvalidBaseURL(t *testing.T) {
	_, err := NewHTTPTransport("coverartarchive.org", nil, HTTPTransportOpts{})
	require.EqualError(t, err, `base url "coverartarchive.org" should be absolute`)
}
