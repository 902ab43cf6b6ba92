/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package proxyapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/musicranker/mbproxy/httpserver"
	"github.com/musicranker/mbproxy/internal/libinfo"
	"github.com/musicranker/mbproxy/respcache"
	"github.com/musicranker/mbproxy/restapi"
	"github.com/musicranker/mbproxy/scheduler"
	"github.com/musicranker/mbproxy/testutil"
	"github.com/musicranker/mbproxy/upstream"
)

const testUserAgent = "Test/0.1 (test@example.com)"

type fakeSubmitter struct {
	mu    sync.Mutex
	descs []scheduler.Descriptor
	fn    func(ctx context.Context, desc scheduler.Descriptor) (scheduler.Body, error)
}

func (s *fakeSubmitter) Submit(ctx context.Context, desc scheduler.Descriptor) (scheduler.Body, error) {
	s.mu.Lock()
	s.descs = append(s.descs, desc)
	s.mu.Unlock()
	if s.fn == nil {
		return scheduler.Body(`{"ok":true}`), nil
	}
	return s.fn(ctx, desc)
}

func (s *fakeSubmitter) Descriptors() []scheduler.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scheduler.Descriptor(nil), s.descs...)
}

func newTestRouter(t *testing.T, mb, ca *fakeSubmitter, mutate func(opts *Opts)) chi.Router {
	t.Helper()
	cache, err := respcache.New(respcache.Options{TTL: time.Minute})
	require.NoError(t, err)
	opts := Opts{
		MusicBrainz:             Upstream{Name: "musicbrainz", Submitter: mb, UserAgent: testUserAgent},
		CoverArt:                Upstream{Name: "coverart", Submitter: ca, UserAgent: testUserAgent},
		Cache:                   cache,
		CacheHeader:             defaultCacheHeader,
		CoverArtEmptyOnNotFound: true,
	}
	if mutate != nil {
		mutate(&opts)
	}
	h, err := NewHandler(opts)
	require.NoError(t, err)
	router := chi.NewRouter()
	h.Register(router)
	return router
}

func doGet(router http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandler_MusicBrainzRoutes(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		wantURL   string
		wantQuery url.Values
	}{
		{
			name:      "artist with default inc",
			target:    "/artist/20244d07-534f-4eff-b4d4-930878889970",
			wantURL:   "artist/20244d07-534f-4eff-b4d4-930878889970",
			wantQuery: url.Values{"inc": {"url-rels+aliases"}, "fmt": {"json"}},
		},
		{
			name:      "artist with caller inc",
			target:    "/artist/a1?inc=tags&fmt=xml",
			wantURL:   "artist/a1",
			wantQuery: url.Values{"inc": {"tags"}, "fmt": {"json"}},
		},
		{
			name:      "release groups with defaults",
			target:    "/release-groups?artist=a1",
			wantURL:   "release-group",
			wantQuery: url.Values{"artist": {"a1"}, "type": {"album"}, "limit": {"100"}, "fmt": {"json"}},
		},
		{
			name:    "release groups with overrides",
			target:  "/release-groups?artist=a1&type=single&limit=25&offset=50&foo=bar",
			wantURL: "release-group",
			wantQuery: url.Values{
				"artist": {"a1"}, "type": {"single"}, "limit": {"25"}, "offset": {"50"}, "fmt": {"json"},
			},
		},
		{
			name:      "release group",
			target:    "/release-group/rg1",
			wantURL:   "release-group/rg1",
			wantQuery: url.Values{"inc": {"releases"}, "fmt": {"json"}},
		},
		{
			name:      "escaped slash in id is escaped once",
			target:    "/release-group/a%2Fb",
			wantURL:   "release-group/a%2Fb",
			wantQuery: url.Values{"inc": {"releases"}, "fmt": {"json"}},
		},
		{
			name:      "escaped space in id",
			target:    "/artist/a%20b",
			wantURL:   "artist/a%20b",
			wantQuery: url.Values{"inc": {"url-rels+aliases"}, "fmt": {"json"}},
		},
		{
			name:      "release",
			target:    "/release/r1?inc=recordings+artist-credits",
			wantURL:   "release/r1",
			wantQuery: url.Values{"inc": {"recordings artist-credits"}, "fmt": {"json"}},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			mb, ca := &fakeSubmitter{}, &fakeSubmitter{}
			router := newTestRouter(t, mb, ca, nil)

			rec := doGet(router, tt.target)
			testutil.RequireRawJSONInRecorder(t, rec, http.StatusOK, `{"ok":true}`)
			require.Equal(t, cacheHeaderValueMiss, rec.Header().Get(defaultCacheHeader))

			descs := mb.Descriptors()
			require.Len(t, descs, 1)
			require.Empty(t, ca.Descriptors())
			require.Equal(t, http.MethodGet, descs[0].Method)
			require.Equal(t, tt.wantURL, descs[0].URL)
			require.Equal(t, tt.wantQuery, descs[0].Query)
			require.Equal(t, testUserAgent, descs[0].Header.Get("User-Agent"))
			require.Equal(t, "application/json", descs[0].Header.Get("Accept"))
		})
	}
}

func TestHandler_Caching(t *testing.T) {
	mb := &fakeSubmitter{fn: func(_ context.Context, desc scheduler.Descriptor) (scheduler.Body, error) {
		return scheduler.Body(`{"id":"` + desc.URL + `"}`), nil
	}}
	router := newTestRouter(t, mb, &fakeSubmitter{}, nil)

	rec := doGet(router, "/artist/a1")
	testutil.RequireRawJSONInRecorder(t, rec, http.StatusOK, `{"id":"artist/a1"}`)
	require.Equal(t, cacheHeaderValueMiss, rec.Header().Get(defaultCacheHeader))

	rec = doGet(router, "/artist/a1")
	testutil.RequireRawJSONInRecorder(t, rec, http.StatusOK, `{"id":"artist/a1"}`)
	require.Equal(t, cacheHeaderValueHit, rec.Header().Get(defaultCacheHeader))
	require.Len(t, mb.Descriptors(), 1)

	// A different query is a different cache entry.
	rec = doGet(router, "/artist/a1?inc=tags")
	require.Equal(t, cacheHeaderValueMiss, rec.Header().Get(defaultCacheHeader))
	require.Len(t, mb.Descriptors(), 2)
}

func TestHandler_UpstreamError(t *testing.T) {
	decodeError := func(t *testing.T, rec *httptest.ResponseRecorder) restapi.Error {
		t.Helper()
		var body struct {
			Error restapi.Error `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body.Error
	}

	t.Run("status error", func(t *testing.T) {
		var calls int
		mb := &fakeSubmitter{fn: func(_ context.Context, desc scheduler.Descriptor) (scheduler.Body, error) {
			calls++
			if calls == 1 {
				return nil, &upstream.StatusError{StatusCode: http.StatusServiceUnavailable, URL: desc.URL}
			}
			return scheduler.Body(`{"id":"a1"}`), nil
		}}
		router := newTestRouter(t, mb, &fakeSubmitter{}, nil)

		rec := doGet(router, "/artist/a1")
		testutil.RequireErrorInRecorder(t, rec, http.StatusInternalServerError, ErrorDomain, restapi.ErrCodeUpstream)
		apiErr := decodeError(t, rec)
		require.Equal(t, "upstream artist/a1 responded with status 503", apiErr.Message)
		require.EqualValues(t, http.StatusServiceUnavailable, apiErr.Context["upstreamStatus"])

		// Failures are never cached.
		rec = doGet(router, "/artist/a1")
		testutil.RequireRawJSONInRecorder(t, rec, http.StatusOK, `{"id":"a1"}`)
		require.Equal(t, cacheHeaderValueMiss, rec.Header().Get(defaultCacheHeader))
	})

	t.Run("transport error", func(t *testing.T) {
		mb := &fakeSubmitter{fn: func(context.Context, scheduler.Descriptor) (scheduler.Body, error) {
			return nil, errors.New("dial tcp: lookup musicbrainz.org: no such host")
		}}
		router := newTestRouter(t, mb, &fakeSubmitter{}, nil)

		rec := doGet(router, "/release/r1")
		testutil.RequireErrorInRecorder(t, rec, http.StatusInternalServerError, ErrorDomain, restapi.ErrCodeUpstream)
		apiErr := decodeError(t, rec)
		require.Equal(t, "dial tcp: lookup musicbrainz.org: no such host", apiErr.Message)
		require.NotContains(t, apiErr.Context, "upstreamStatus")
	})
}

func TestHandler_CoverArt(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		ca := &fakeSubmitter{fn: func(_ context.Context, desc scheduler.Descriptor) (scheduler.Body, error) {
			return scheduler.Body(`{"images":[{"front":true}]}`), nil
		}}
		mb := &fakeSubmitter{}
		router := newTestRouter(t, mb, ca, nil)

		rec := doGet(router, "/cover-art/r1")
		testutil.RequireRawJSONInRecorder(t, rec, http.StatusOK, `{"images":[{"front":true}]}`)
		require.Empty(t, mb.Descriptors())
		descs := ca.Descriptors()
		require.Len(t, descs, 1)
		require.Equal(t, "release/r1", descs[0].URL)
		require.Empty(t, descs[0].Query)
		require.Equal(t, http.Header{"User-Agent": {testUserAgent}}, descs[0].Header)
	})

	t.Run("not found is answered with empty images and not cached", func(t *testing.T) {
		ca := &fakeSubmitter{fn: func(_ context.Context, desc scheduler.Descriptor) (scheduler.Body, error) {
			return nil, &upstream.StatusError{StatusCode: http.StatusNotFound, URL: desc.URL}
		}}
		router := newTestRouter(t, &fakeSubmitter{}, ca, nil)

		for i := 0; i < 2; i++ {
			rec := doGet(router, "/cover-art/r1")
			testutil.RequireRawJSONInRecorder(t, rec, http.StatusOK, `{"images":[]}`)
			require.Equal(t, cacheHeaderValueMiss, rec.Header().Get(defaultCacheHeader))
		}
		require.Len(t, ca.Descriptors(), 2)
	})

	t.Run("not found stub disabled", func(t *testing.T) {
		ca := &fakeSubmitter{fn: func(_ context.Context, desc scheduler.Descriptor) (scheduler.Body, error) {
			return nil, &upstream.StatusError{StatusCode: http.StatusNotFound, URL: desc.URL}
		}}
		router := newTestRouter(t, &fakeSubmitter{}, ca, func(opts *Opts) { opts.CoverArtEmptyOnNotFound = false })

		rec := doGet(router, "/cover-art/r1")
		testutil.RequireErrorInRecorder(t, rec, http.StatusInternalServerError, ErrorDomain, restapi.ErrCodeUpstream)
	})

	t.Run("musicbrainz 404 is an error", func(t *testing.T) {
		mb := &fakeSubmitter{fn: func(_ context.Context, desc scheduler.Descriptor) (scheduler.Body, error) {
			return nil, &upstream.StatusError{StatusCode: http.StatusNotFound, URL: desc.URL}
		}}
		router := newTestRouter(t, mb, &fakeSubmitter{}, nil)

		rec := doGet(router, "/release/unknown")
		testutil.RequireErrorInRecorder(t, rec, http.StatusInternalServerError, ErrorDomain, restapi.ErrCodeUpstream)
	})
}

func TestHandler_ClientCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mb := &fakeSubmitter{fn: func(loadCtx context.Context, desc scheduler.Descriptor) (scheduler.Body, error) {
		cancel()
		<-loadCtx.Done()
		return nil, errors.New("load canceled")
	}}
	router := newTestRouter(t, mb, &fakeSubmitter{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/artist/a1", nil).WithContext(ctx))
	require.Equal(t, httpserver.StatusClientClosedRequest, rec.Code)
}

func TestHandler_Index(t *testing.T) {
	router := newTestRouter(t, &fakeSubmitter{}, &fakeSubmitter{}, func(opts *Opts) { opts.RoutePrefix = "/api" })

	rec := doGet(router, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp indexResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, indexResponse{
		Name:    "MusicBrainz API Proxy",
		Version: libinfo.GetVersion(),
		Endpoints: []string{
			"/api/artist/:id", "/api/release-groups", "/api/release-group/:id",
			"/api/release/:id", "/api/cover-art/:id", "/api/health",
		},
	}, resp)
}

func TestNewHandler_Validation(t *testing.T) {
	cache, err := respcache.New(respcache.Options{})
	require.NoError(t, err)

	_, err = NewHandler(Opts{CoverArt: Upstream{Submitter: &fakeSubmitter{}}, Cache: cache})
	require.EqualError(t, err, "musicbrainz submitter is required")
	_, err = NewHandler(Opts{MusicBrainz: Upstream{Submitter: &fakeSubmitter{}}, Cache: cache})
	require.EqualError(t, err, "cover art submitter is required")
	_, err = NewHandler(Opts{MusicBrainz: Upstream{Submitter: &fakeSubmitter{}}, CoverArt: Upstream{Submitter: &fakeSubmitter{}}})
	require.EqualError(t, err, "cache is required")
}
