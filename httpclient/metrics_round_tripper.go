/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector collects metrics for outgoing upstream requests.
type MetricsCollector interface {
	// ObserveUpstreamRequest records one finished request.
	// Status is "0" when no response was received.
	ObserveUpstreamRequest(requestType, host, method, resource, status string, elapsed time.Duration)
}

// PrometheusMetricsCollector exposes upstream request durations as a Prometheus histogram.
type PrometheusMetricsCollector struct {
	Durations *prometheus.HistogramVec
}

// NewPrometheusMetricsCollector creates a collector. Buckets reach a minute because a queued
// MusicBrainz request may spend seconds waiting its turn before it's even sent.
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	return &PrometheusMetricsCollector{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Durations of requests sent to upstream APIs.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"type", "host", "method", "resource", "status"}),
	}
}

// MustRegister registers the histogram in the default registry.
func (p *PrometheusMetricsCollector) MustRegister() {
	prometheus.MustRegister(p.Durations)
}

// Unregister removes the histogram from the default registry.
func (p *PrometheusMetricsCollector) Unregister() {
	prometheus.Unregister(p.Durations)
}

// ObserveUpstreamRequest implements MetricsCollector.
func (p *PrometheusMetricsCollector) ObserveUpstreamRequest(
	requestType, host, method, resource, status string, elapsed time.Duration,
) {
	p.Durations.WithLabelValues(requestType, host, method, resource, status).Observe(elapsed.Seconds())
}

// MetricsRoundTripper reports each request passing through it to a MetricsCollector.
type MetricsRoundTripper struct {
	Delegate    http.RoundTripper
	RequestType string
	Collector   MetricsCollector
}

// MetricsRoundTripperOpts configures NewMetricsRoundTripperWithOpts.
type MetricsRoundTripperOpts struct {
	RequestType string
	Collector   MetricsCollector
}

// NewMetricsRoundTripperWithOpts wraps delegate with request metrics.
func NewMetricsRoundTripperWithOpts(delegate http.RoundTripper, opts MetricsRoundTripperOpts) http.RoundTripper {
	if opts.RequestType == "" {
		opts.RequestType = DefaultRequestType
	}
	return &MetricsRoundTripper{Delegate: delegate, RequestType: opts.RequestType, Collector: opts.Collector}
}

// RoundTrip implements http.RoundTripper.
func (rt *MetricsRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Collector == nil {
		return rt.Delegate.RoundTrip(r)
	}

	startedAt := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	status := "0"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	rt.Collector.ObserveUpstreamRequest(requestTypeOrDefault(r.Context(), rt.RequestType),
		r.URL.Host, r.Method, upstreamResource(r.URL.Path), status, time.Since(startedAt))
	return resp, err
}

var idPathSegmentRe = regexp.MustCompile(`^([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}|[0-9]+)$`)

// upstreamResource reduces a request path to a low-cardinality label.
// MBIDs and numeric segments are skipped and the last remaining segment wins,
// so "/ws/2/artist/<mbid>" becomes "artist".
func upstreamResource(path string) string {
	resource := "root"
	for _, seg := range strings.Split(path, "/") {
		if seg != "" && !idPathSegmentRe.MatchString(seg) {
			resource = seg
		}
	}
	return resource
}
