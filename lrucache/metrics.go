/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector receives cache usage events.
type MetricsCollector interface {
	SetAmount(int)
	IncHits()
	IncMisses()
	// AddEvictions counts entries pushed out by the size limit.
	AddEvictions(int)
	// AddExpirations counts entries reclaimed because their TTL had passed.
	AddExpirations(int)
}

// Label values of the cache metrics.
const (
	LookupResultHit  = "hit"
	LookupResultMiss = "miss"

	RemovalReasonEvicted = "evicted"
	RemovalReasonExpired = "expired"
)

// PrometheusMetricsOpts configures PrometheusMetrics.
type PrometheusMetricsOpts struct {
	Namespace   string
	ConstLabels prometheus.Labels
	// CurriedLabelNames must be bound with MustCurryWith before use,
	// e.g. "cache" when several caches share the collectors.
	CurriedLabelNames []string
}

// PrometheusMetrics exports cache usage as an entries gauge plus lookup and removal counters.
type PrometheusMetrics struct {
	Entries  *prometheus.GaugeVec
	Lookups  *prometheus.CounterVec
	Removals *prometheus.CounterVec
}

// NewPrometheusMetrics is NewPrometheusMetricsWithOpts with zero options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates cache collectors. They are not registered.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	withLabel := func(name string) []string {
		return append(append(make([]string, 0, len(opts.CurriedLabelNames)+1), opts.CurriedLabelNames...), name)
	}
	return &PrometheusMetrics{
		Entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "cache_entries",
			Help:        "Current number of entries in the cache, including expired ones not reclaimed yet.",
			ConstLabels: opts.ConstLabels,
		}, opts.CurriedLabelNames),
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "cache_lookups_total",
			Help:        "Number of cache lookups by result.",
			ConstLabels: opts.ConstLabels,
		}, withLabel("result")),
		Removals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "cache_removed_entries_total",
			Help:        "Number of entries removed from the cache by reason.",
			ConstLabels: opts.ConstLabels,
		}, withLabel("reason")),
	}
}

// MustCurryWith binds the curried labels and returns collectors ready for a single cache.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		Entries:  pm.Entries.MustCurryWith(labels),
		Lookups:  pm.Lookups.MustCurryWith(labels),
		Removals: pm.Removals.MustCurryWith(labels),
	}
}

func (pm *PrometheusMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{pm.Entries, pm.Lookups, pm.Removals}
}

// MustRegister registers the collectors in the default Prometheus registry. It panics on conflicts.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.collectors()...)
}

// Unregister removes the collectors from the default Prometheus registry.
func (pm *PrometheusMetrics) Unregister() {
	for _, c := range pm.collectors() {
		prometheus.Unregister(c)
	}
}

func (pm *PrometheusMetrics) SetAmount(amount int) {
	pm.Entries.With(nil).Set(float64(amount))
}

func (pm *PrometheusMetrics) IncHits() {
	pm.Lookups.WithLabelValues(LookupResultHit).Inc()
}

func (pm *PrometheusMetrics) IncMisses() {
	pm.Lookups.WithLabelValues(LookupResultMiss).Inc()
}

func (pm *PrometheusMetrics) AddEvictions(n int) {
	pm.Removals.WithLabelValues(RemovalReasonEvicted).Add(float64(n))
}

func (pm *PrometheusMetrics) AddExpirations(n int) {
	pm.Removals.WithLabelValues(RemovalReasonExpired).Add(float64(n))
}

type disabledMetrics struct{}

func (disabledMetrics) SetAmount(int)      {}
func (disabledMetrics) IncHits()           {}
func (disabledMetrics) IncMisses()         {}
func (disabledMetrics) AddEvictions(int)   {}
func (disabledMetrics) AddExpirations(int) {}
