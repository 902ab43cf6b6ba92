/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/musicranker/mbproxy/internal/ratelimit"
	"github.com/musicranker/mbproxy/log"
	"github.com/musicranker/mbproxy/restapi"
)

// DefaultRateLimitMaxKeys is a default value of maximum keys number for the RateLimit middleware.
const DefaultRateLimitMaxKeys = 10000

// RateLimitLogFieldKey it is the name of the logged field that contains a key for the requests rate limiter.
const RateLimitLogFieldKey = "rate_limit_key"

const rateLimitGlobalKey = "*"

// Rate describes the frequency of requests.
type Rate = ratelimit.Rate

// RateLimitAlg is a rate-limiting algorithm.
type RateLimitAlg = ratelimit.Alg

// Supported rate-limiting algorithms.
const (
	RateLimitAlgLeakyBucket   = ratelimit.AlgLeakyBucket
	RateLimitAlgSlidingWindow = ratelimit.AlgSlidingWindow
)

// RateLimitGetKeyFunc is a function that is called for getting key for rate limiting.
// If bypass is true, the request is not limited.
type RateLimitGetKeyFunc func(r *http.Request) (key string, bypass bool, err error)

// RateLimitOpts represents an options for the RateLimit middleware.
type RateLimitOpts struct {
	Alg      RateLimitAlg
	MaxBurst int
	// GetKey makes the limit per key (e.g. per client IP). If nil, the limit is global.
	GetKey  RateLimitGetKeyFunc
	MaxKeys int
	// ExcludedEndpoints contains glob patterns of URL paths that are never limited.
	ExcludedEndpoints []string
	// ResponseStatusCode is 429 by default.
	ResponseStatusCode int
	// DryRun makes the middleware only log rejections.
	DryRun bool
}

type rateLimitHandler struct {
	next           http.Handler
	limiter        ratelimit.Limiter
	getKey         RateLimitGetKeyFunc
	excluded       pathMatcher
	errDomain      string
	respStatusCode int
	dryRun         bool
}

// RateLimit is a middleware that limits the rate of HTTP requests globally.
func RateLimit(maxRate Rate, errDomain string) (func(next http.Handler) http.Handler, error) {
	return RateLimitWithOpts(maxRate, errDomain, RateLimitOpts{})
}

// RateLimitWithOpts is a configurable version of a middleware to limit the rate of HTTP requests.
func RateLimitWithOpts(maxRate Rate, errDomain string, opts RateLimitOpts) (func(next http.Handler) http.Handler, error) {
	maxKeys := 0
	if opts.GetKey != nil {
		maxKeys = opts.MaxKeys
		if maxKeys == 0 {
			maxKeys = DefaultRateLimitMaxKeys
		}
	}
	limiter, err := ratelimit.New(opts.Alg, maxRate, opts.MaxBurst, maxKeys)
	if err != nil {
		return nil, fmt.Errorf("new rate limiter: %w", err)
	}
	respStatusCode := opts.ResponseStatusCode
	if respStatusCode == 0 {
		respStatusCode = http.StatusTooManyRequests
	}
	excluded := newPathMatcher(opts.ExcludedEndpoints)
	return func(next http.Handler) http.Handler {
		return &rateLimitHandler{
			next:           next,
			limiter:        limiter,
			getKey:         opts.GetKey,
			excluded:       excluded,
			errDomain:      errDomain,
			respStatusCode: respStatusCode,
			dryRun:         opts.DryRun,
		}
	}, nil
}

// MustRateLimitWithOpts is a version of RateLimitWithOpts that panics if an error occurs.
func MustRateLimitWithOpts(maxRate Rate, errDomain string, opts RateLimitOpts) func(next http.Handler) http.Handler {
	mw, err := RateLimitWithOpts(maxRate, errDomain, opts)
	if err != nil {
		panic(err)
	}
	return mw
}

// RateLimitGetClientIPKey returns a RateLimitGetKeyFunc that limits requests per client IP.
func RateLimitGetClientIPKey(trustProxyHeaders bool) RateLimitGetKeyFunc {
	return func(r *http.Request) (string, bool, error) {
		return GetClientIP(r, trustProxyHeaders), false, nil
	}
}

func (h *rateLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions || h.excluded.match(r.URL.Path) {
		h.next.ServeHTTP(rw, r)
		return
	}

	logger := GetLoggerFromContext(r.Context())

	key := rateLimitGlobalKey
	if h.getKey != nil {
		var bypass bool
		var err error
		if key, bypass, err = h.getKey(r); err != nil {
			if logger != nil {
				logger.Error("get rate limit key", log.Error(err))
			}
			restapi.RespondInternalError(rw, h.errDomain, logger)
			return
		}
		if bypass {
			h.next.ServeHTTP(rw, r)
			return
		}
	}

	allow, retryAfter, err := h.limiter.Allow(r.Context(), key)
	if err != nil {
		if logger != nil {
			logger.Error("rate limiting failed", log.Error(err), log.String(RateLimitLogFieldKey, key))
		}
		restapi.RespondInternalError(rw, h.errDomain, logger)
		return
	}
	if allow {
		h.next.ServeHTTP(rw, r)
		return
	}

	if logger != nil {
		logger = logger.With(log.String(RateLimitLogFieldKey, key), log.String(userAgentLogFieldKey, r.UserAgent()))
	}
	if h.dryRun {
		if logger != nil {
			logger.Warn("too many requests, serving will be continued because of dry run mode")
		}
		h.next.ServeHTTP(rw, r)
		return
	}
	rw.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
	apiErr := restapi.NewError(h.errDomain, restapi.ErrCodeTooManyRequests, restapi.ErrMessageTooManyRequests)
	restapi.RespondError(rw, h.respStatusCode, apiErr, logger)
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
