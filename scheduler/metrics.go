/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Dispatch outcomes.
const (
	DispatchOutcomeSuccess  = "success"
	DispatchOutcomeError    = "error"
	DispatchOutcomeCanceled = "canceled"
)

// MetricsCollector collects metrics of the scheduler.
type MetricsCollector interface {
	SetQueueDepth(depth int)
	IncDispatches(outcome string)
	ObserveQueueWait(d time.Duration)
	ObserveDispatchDuration(d time.Duration)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	Namespace       string
	DurationBuckets []float64
	ConstLabels     prometheus.Labels
}

// PrometheusMetrics represents Prometheus metrics of the scheduler.
// All collectors are partitioned by the "upstream" label, use ForUpstream to bind it.
type PrometheusMetrics struct {
	QueueDepth       *prometheus.GaugeVec
	DispatchesTotal  *prometheus.CounterVec
	QueueWait        *prometheus.HistogramVec
	DispatchDuration *prometheus.HistogramVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	buckets := opts.DurationBuckets
	if buckets == nil {
		buckets = []float64{0.1, 0.25, 0.5, 1, 1.1, 2, 5, 10, 30, 60, 120}
	}
	labels := []string{"upstream"}
	return &PrometheusMetrics{
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "scheduler_queue_depth",
			Help:        "Number of requests waiting in the scheduler queue.",
			ConstLabels: opts.ConstLabels,
		}, labels),
		DispatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "scheduler_dispatches_total",
			Help:        "Number of dequeued requests by outcome.",
			ConstLabels: opts.ConstLabels,
		}, []string{"upstream", "outcome"}),
		QueueWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "scheduler_queue_wait_seconds",
			Help:        "Time spent by requests in the scheduler queue.",
			Buckets:     buckets,
			ConstLabels: opts.ConstLabels,
		}, labels),
		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "scheduler_dispatch_duration_seconds",
			Help:        "Duration of upstream requests executed by the scheduler.",
			Buckets:     buckets,
			ConstLabels: opts.ConstLabels,
		}, labels),
	}
}

// MustCurryWith curries the metrics collector with the provided labels.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		QueueDepth:       pm.QueueDepth.MustCurryWith(labels),
		DispatchesTotal:  pm.DispatchesTotal.MustCurryWith(labels),
		QueueWait:        pm.QueueWait.MustCurryWith(labels).(*prometheus.HistogramVec),
		DispatchDuration: pm.DispatchDuration.MustCurryWith(labels).(*prometheus.HistogramVec),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.QueueDepth, pm.DispatchesTotal, pm.QueueWait, pm.DispatchDuration)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.QueueDepth)
	prometheus.Unregister(pm.DispatchesTotal)
	prometheus.Unregister(pm.QueueWait)
	prometheus.Unregister(pm.DispatchDuration)
}

// ForUpstream returns a MetricsCollector bound to the given upstream name.
func (pm *PrometheusMetrics) ForUpstream(name string) MetricsCollector {
	return &upstreamMetrics{pm.MustCurryWith(prometheus.Labels{"upstream": name})}
}

type upstreamMetrics struct {
	pm *PrometheusMetrics
}

func (m *upstreamMetrics) SetQueueDepth(depth int) {
	m.pm.QueueDepth.WithLabelValues().Set(float64(depth))
}

func (m *upstreamMetrics) IncDispatches(outcome string) {
	m.pm.DispatchesTotal.WithLabelValues(outcome).Inc()
}

func (m *upstreamMetrics) ObserveQueueWait(d time.Duration) {
	m.pm.QueueWait.WithLabelValues().Observe(d.Seconds())
}

func (m *upstreamMetrics) ObserveDispatchDuration(d time.Duration) {
	m.pm.DispatchDuration.WithLabelValues().Observe(d.Seconds())
}

type disabledMetrics struct{}

func (disabledMetrics) SetQueueDepth(int)                     {}
func (disabledMetrics) IncDispatches(string)                  {}
func (disabledMetrics) ObserveQueueWait(time.Duration)        {}
func (disabledMetrics) ObserveDispatchDuration(time.Duration) {}
