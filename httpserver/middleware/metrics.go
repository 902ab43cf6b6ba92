/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Label names of the served requests histogram, in the order they are passed to WithLabelValues.
const (
	httpRequestMetricsLabelMethod       = "method"
	httpRequestMetricsLabelRoutePattern = "route_pattern"
	httpRequestMetricsLabelStatusCode   = "status_code"
	httpRequestMetricsLabelCache        = "cache"
)

// HeaderCache is set by the proxy handlers to HIT or MISS and copied into the "cache" label.
const HeaderCache = "X-Cache"

// DefaultHTTPRequestDurationBuckets cover everything from a cache hit to a request queued behind the upstream rate limit.
var DefaultHTTPRequestDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// HTTPRequestMetricsCollectorOpts configures HTTPRequestMetricsCollector.
type HTTPRequestMetricsCollectorOpts struct {
	Namespace       string
	DurationBuckets []float64
	ConstLabels     prometheus.Labels
}

// HTTPRequestMetricsCollector holds Prometheus collectors of served requests.
type HTTPRequestMetricsCollector struct {
	Durations *prometheus.HistogramVec
	InFlight  *prometheus.GaugeVec
}

// NewHTTPRequestMetricsCollector creates collectors with default buckets and no namespace.
func NewHTTPRequestMetricsCollector() *HTTPRequestMetricsCollector {
	return NewHTTPRequestMetricsCollectorWithOpts(HTTPRequestMetricsCollectorOpts{})
}

// NewHTTPRequestMetricsCollectorWithOpts creates collectors. They are not registered.
func NewHTTPRequestMetricsCollectorWithOpts(opts HTTPRequestMetricsCollectorOpts) *HTTPRequestMetricsCollector {
	buckets := opts.DurationBuckets
	if buckets == nil {
		buckets = DefaultHTTPRequestDurationBuckets
	}
	return &HTTPRequestMetricsCollector{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "http_request_duration_seconds",
			Help:        "Time spent serving HTTP requests, including waiting for the upstream.",
			Buckets:     buckets,
			ConstLabels: opts.ConstLabels,
		}, []string{
			httpRequestMetricsLabelMethod,
			httpRequestMetricsLabelRoutePattern,
			httpRequestMetricsLabelStatusCode,
			httpRequestMetricsLabelCache,
		}),
		InFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "http_requests_in_flight",
			Help:        "Number of HTTP requests being served right now.",
			ConstLabels: opts.ConstLabels,
		}, []string{httpRequestMetricsLabelMethod}),
	}
}

// MustRegister registers the collectors in the default Prometheus registry. It panics on conflicts.
func (c *HTTPRequestMetricsCollector) MustRegister() {
	prometheus.MustRegister(c.Durations, c.InFlight)
}

// Unregister removes the collectors from the default Prometheus registry.
func (c *HTTPRequestMetricsCollector) Unregister() {
	prometheus.Unregister(c.Durations)
	prometheus.Unregister(c.InFlight)
}

func (c *HTTPRequestMetricsCollector) observe(r *http.Request, routePattern string, status int, cacheStatus string) {
	startTime := GetRequestStartTimeFromContext(r.Context())
	c.Durations.WithLabelValues(r.Method, routePattern, strconv.Itoa(status), cacheStatus).
		Observe(time.Since(startTime).Seconds())
}

// HTTPRequestMetricsOpts configures the HTTPRequestMetrics middleware.
type HTTPRequestMetricsOpts struct {
	// ExcludedEndpoints are glob patterns of URL paths that are not observed.
	ExcludedEndpoints []string
}

// HTTPRequestMetrics observes every served request labeled with its route pattern, status and cache status.
func HTTPRequestMetrics(
	collector *HTTPRequestMetricsCollector, getRoutePattern RoutePatternGetterFunc,
) func(next http.Handler) http.Handler {
	return HTTPRequestMetricsWithOpts(collector, getRoutePattern, HTTPRequestMetricsOpts{})
}

// HTTPRequestMetricsWithOpts is HTTPRequestMetrics with excluded endpoints.
// A panicking handler is observed as 500 unless it aborted the request.
func HTTPRequestMetricsWithOpts(
	collector *HTTPRequestMetricsCollector, getRoutePattern RoutePatternGetterFunc, opts HTTPRequestMetricsOpts,
) func(next http.Handler) http.Handler {
	if getRoutePattern == nil {
		panic("function for getting route pattern cannot be nil")
	}
	excluded := newPathMatcher(opts.ExcludedEndpoints)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if excluded.match(r.URL.Path) {
				next.ServeHTTP(rw, r)
				return
			}
			if GetRequestStartTimeFromContext(r.Context()).IsZero() {
				r = r.WithContext(NewContextWithRequestStartTime(r.Context(), time.Now()))
			}

			inFlight := collector.InFlight.WithLabelValues(r.Method)
			inFlight.Inc()
			defer inFlight.Dec()

			wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
			defer func() {
				p := recover()
				switch {
				case p == nil:
					collector.observe(r, getRoutePattern(r), responseStatus(wrw), wrw.Header().Get(HeaderCache))
				case p != http.ErrAbortHandler: //nolint:errorlint // sentinel panic value
					collector.observe(r, getRoutePattern(r), http.StatusInternalServerError, "")
				}
				if p != nil {
					panic(p)
				}
			}()
			next.ServeHTTP(wrw, r)
		})
	}
}
