/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import "github.com/prometheus/client_golang/prometheus"

// errorResponses is nil until MustInitAndRegisterMetrics is called, and then counts every RespondError call.
var errorResponses *prometheus.CounterVec

// MustInitAndRegisterMetrics creates the "<namespace>_restapi_response_errors_total" counter
// and registers it in the default Prometheus registry.
func MustInitAndRegisterMetrics(namespace string) {
	errorResponses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "restapi",
		Name:      "response_errors_total",
		Help:      "Number of error responses by error domain and code.",
	}, []string{"domain", "code"})
	prometheus.MustRegister(errorResponses)
}

// UnregisterMetrics undoes MustInitAndRegisterMetrics.
func UnregisterMetrics() {
	if errorResponses == nil {
		return
	}
	prometheus.Unregister(errorResponses)
	errorResponses = nil
}

func countErrorResponse(err *Error) {
	if errorResponses != nil {
		errorResponses.WithLabelValues(err.Domain, err.Code).Inc()
	}
}
