/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package proxyapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/musicranker/mbproxy/httpserver"
	"github.com/musicranker/mbproxy/httpserver/middleware"
	"github.com/musicranker/mbproxy/internal/libinfo"
	"github.com/musicranker/mbproxy/log"
	"github.com/musicranker/mbproxy/respcache"
	"github.com/musicranker/mbproxy/restapi"
	"github.com/musicranker/mbproxy/scheduler"
	"github.com/musicranker/mbproxy/upstream"
)

// ErrorDomain is used in all error responses of the proxy.
const ErrorDomain = "MBProxy"

var emptyCoverArt = []byte(`{"images":[]}`)

// Submitter executes request descriptors one by one. It's implemented by *scheduler.Scheduler.
type Submitter interface {
	Submit(ctx context.Context, desc scheduler.Descriptor) (scheduler.Body, error)
}

// Upstream describes how requests to a single upstream are made.
type Upstream struct {
	Name      string
	Submitter Submitter
	UserAgent string
}

// Opts represents options for the Handler.
type Opts struct {
	MusicBrainz Upstream
	CoverArt    Upstream
	Cache       *respcache.Cache

	// CacheHeader is a response header reporting cache HIT/MISS. Empty value disables it.
	CacheHeader string

	// CoverArtEmptyOnNotFound makes the cover-art endpoint answer {"images":[]} on upstream 404.
	CoverArtEmptyOnNotFound bool

	// RoutePrefix is used only to list endpoints in the root response.
	RoutePrefix string

	// Version is shown in the root response. libinfo.GetVersion() is used if it's empty.
	Version string
}

// NewOptsFromConfig creates Opts filled from the API configuration.
func NewOptsFromConfig(cfg *Config) Opts {
	return Opts{
		CacheHeader:             cfg.CacheHeader,
		CoverArtEmptyOnNotFound: cfg.CoverArtEmptyOnNotFound,
		RoutePrefix:             cfg.RoutePrefix,
	}
}

// Handler serves the proxy routes.
type Handler struct {
	opts Opts
}

// NewHandler creates a new Handler.
func NewHandler(opts Opts) (*Handler, error) {
	if opts.MusicBrainz.Submitter == nil {
		return nil, fmt.Errorf("musicbrainz submitter is required")
	}
	if opts.CoverArt.Submitter == nil {
		return nil, fmt.Errorf("cover art submitter is required")
	}
	if opts.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if opts.MusicBrainz.Name == "" {
		opts.MusicBrainz.Name = "musicbrainz"
	}
	if opts.CoverArt.Name == "" {
		opts.CoverArt.Name = "coverart"
	}
	if opts.Version == "" {
		opts.Version = libinfo.GetVersion()
	}
	return &Handler{opts: opts}, nil
}

// Register mounts the proxy routes. It may be passed as httpserver.Opts.Routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/", h.serveIndex)
	r.Get("/artist/{id}", h.musicBrainzHandler(artistRoute))
	r.Get("/release-groups", h.musicBrainzHandler(releaseGroupsRoute))
	r.Get("/release-group/{id}", h.musicBrainzHandler(releaseGroupRoute))
	r.Get("/release/{id}", h.musicBrainzHandler(releaseRoute))
	r.Get("/cover-art/{id}", h.serveCoverArt)
}

func (h *Handler) musicBrainzHandler(route mbRoute) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		desc := scheduler.Descriptor{
			Method: http.MethodGet,
			URL:    route.upstreamPath(pathParam(r, "id")),
			Header: http.Header{
				"User-Agent": {h.opts.MusicBrainz.UserAgent},
				"Accept":     {"application/json"},
			},
			Query: route.query(r.URL.Query()),
		}
		h.serveCached(rw, r, h.opts.MusicBrainz, desc, nil)
	}
}

func (h *Handler) serveCoverArt(rw http.ResponseWriter, r *http.Request) {
	desc := scheduler.Descriptor{
		Method: http.MethodGet,
		URL:    "release/" + url.PathEscape(pathParam(r, "id")),
		Header: http.Header{"User-Agent": {h.opts.CoverArt.UserAgent}},
	}
	var notFoundBody []byte
	if h.opts.CoverArtEmptyOnNotFound {
		notFoundBody = emptyCoverArt
	}
	h.serveCached(rw, r, h.opts.CoverArt, desc, notFoundBody)
}

// serveCached replies with notFoundBody (if it's set) when the upstream responds 404. Such replies aren't cached.
func (h *Handler) serveCached(
	rw http.ResponseWriter, r *http.Request, up Upstream, desc scheduler.Descriptor, notFoundBody []byte,
) {
	logger := middleware.GetLoggerFromContextOrDisabled(r.Context())
	key := respcache.Key(r)

	body, hit, err := h.opts.Cache.Do(r.Context(), key, func(ctx context.Context) ([]byte, error) {
		return up.Submitter.Submit(ctx, desc)
	})
	if err != nil {
		if notFoundBody != nil && upstream.IsNotFound(err) {
			logger.Debug("upstream resource not found, responding with stub", log.String("upstream", up.Name))
			h.setCacheStatus(rw, r, false)
			restapi.RespondRawJSON(rw, http.StatusOK, notFoundBody, logger)
			return
		}
		respondUpstreamError(rw, r, up, err, logger)
		return
	}

	h.setCacheStatus(rw, r, hit)
	restapi.RespondRawJSON(rw, http.StatusOK, body, logger)
}

func respondUpstreamError(rw http.ResponseWriter, r *http.Request, up Upstream, err error, logger log.FieldLogger) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		logger.Warn("request canceled by client while waiting for upstream", log.String("upstream", up.Name))
		rw.WriteHeader(httpserver.StatusClientClosedRequest)
		return
	}

	logger.Error("upstream request failed", log.String("upstream", up.Name), log.Error(err))
	apiErr := restapi.NewError(ErrorDomain, restapi.ErrCodeUpstream, err.Error())
	var statusErr *upstream.StatusError
	if errors.As(err, &statusErr) {
		apiErr.AddContext("upstreamStatus", statusErr.StatusCode)
	}
	restapi.RespondError(rw, http.StatusInternalServerError, apiErr, logger)
}

// pathParam returns the decoded value of a route parameter.
// chi matches against the escaped path when the request has one, so the parameter is still escaped then.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v
	}
	if unescaped, err := url.PathUnescape(v); err == nil {
		return unescaped
	}
	return v
}

func (h *Handler) setCacheStatus(rw http.ResponseWriter, r *http.Request, hit bool) {
	status, headerValue := "miss", cacheHeaderValueMiss
	if hit {
		status, headerValue = "hit", cacheHeaderValueHit
	}
	if lp := middleware.GetLoggingParamsFromContext(r.Context()); lp != nil {
		lp.ExtendFields(log.String("cache", status))
	}
	if h.opts.CacheHeader != "" {
		rw.Header().Set(h.opts.CacheHeader, headerValue)
	}
}
