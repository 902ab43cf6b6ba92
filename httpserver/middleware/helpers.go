/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/vasayxtx/go-glob"
)

const (
	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-IP"
)

// WrapResponseWriter is a proxy around an http.ResponseWriter that remembers the status and the number of written bytes.
type WrapResponseWriter = chimw.WrapResponseWriter

// RoutePatternGetterFunc is a function for getting route pattern from the request. Used in multiple middlewares.
type RoutePatternGetterFunc func(r *http.Request) string

// GetChiRoutePattern returns the pattern of the chi route that matched the request.
// The pattern is complete only after routing, so callers should read it after the next handler returns.
func GetChiRoutePattern(r *http.Request) string {
	chiCtx := chi.RouteContext(r.Context())
	if chiCtx == nil {
		return ""
	}
	return chiCtx.RoutePattern()
}

// WrapResponseWriterIfNeeded wraps an http.ResponseWriter (if it is not already wrapped), returning a proxy that allows you to
// hook into various parts of the response process.
func WrapResponseWriterIfNeeded(rw http.ResponseWriter, protoMajor int) WrapResponseWriter {
	if wrw, ok := rw.(WrapResponseWriter); ok {
		return wrw
	}
	return chimw.NewWrapResponseWriter(rw, protoMajor)
}

// responseStatus returns the status that was (or implicitly will be) sent to the client.
func responseStatus(wrw WrapResponseWriter) int {
	if status := wrw.Status(); status != 0 {
		return status
	}
	return http.StatusOK
}

// pathMatcher reports whether a URL path matches any of the glob patterns (e.g. "/metrics", "/api/*").
type pathMatcher []func(s string) bool

func newPathMatcher(patterns []string) pathMatcher {
	m := make(pathMatcher, 0, len(patterns))
	for _, p := range patterns {
		m = append(m, glob.Compile(p))
	}
	return m
}

func (m pathMatcher) match(path string) bool {
	for i := range m {
		if m[i](path) {
			return true
		}
	}
	return false
}

// GetClientIP returns the IP address of the client.
// The first address from X-Forwarded-For or X-Real-IP headers is used when trustProxyHeaders is true.
func GetClientIP(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		if originAddr := getOriginAddr(r); originAddr != "" {
			return originAddr
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func getOriginAddr(r *http.Request) string {
	if forwardFor := r.Header.Get(headerForwardedFor); forwardFor != "" {
		first, _, _ := strings.Cut(forwardFor, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get(headerRealIP); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	return ""
}
