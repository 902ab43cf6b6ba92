/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
)

// CORS defaults.
var (
	DefaultCORSAllowedMethods = []string{http.MethodGet, http.MethodHead, http.MethodOptions}
	DefaultCORSAllowedHeaders = []string{"Accept", "Content-Type", "X-Request-ID"}
	DefaultCORSExposedHeaders = []string{"X-Cache", "X-Request-ID", "Retry-After"}
)

// CORSOpts represents an options for the CORS middleware.
type CORSOpts struct {
	// AllowedOrigins contains origins, "*" or patterns with one wildcard (https://*.example.com).
	// Empty list means "*".
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string
	MaxAge         time.Duration
}

// CORS is a middleware that allows cross-origin requests from any origin.
func CORS() func(next http.Handler) http.Handler {
	return CORSWithOpts(CORSOpts{})
}

// CORSWithOpts is a more configurable version of CORS middleware.
// Preflight requests (OPTIONS with Access-Control-Request-Method) are answered with 204 and not passed further.
func CORSWithOpts(opts CORSOpts) func(next http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:     opts.AllowedOrigins,
		AllowedMethods:     orDefault(opts.AllowedMethods, DefaultCORSAllowedMethods),
		AllowedHeaders:     orDefault(opts.AllowedHeaders, DefaultCORSAllowedHeaders),
		ExposedHeaders:     orDefault(opts.ExposedHeaders, DefaultCORSExposedHeaders),
		MaxAge:             int(opts.MaxAge / time.Second),
		OptionsPassthrough: true,
	})
	return func(next http.Handler) http.Handler {
		return c.Handler(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				rw.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(rw, r)
		}))
	}
}

func orDefault(vals, def []string) []string {
	if len(vals) == 0 {
		return def
	}
	return vals
}
