/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/musicranker/mbproxy/httpserver/middleware"
	"github.com/musicranker/mbproxy/log"
	"github.com/musicranker/mbproxy/restapi"
)

// StatusClientClosedRequest is the nginx status for a request the client gave up on before the response.
const StatusClientClosedRequest = 499

// Values of the "status" field of the /health response.
const (
	HealthStatusOK   = "ok"
	HealthStatusFail = "fail"
)

type HealthCheckComponentName = string

type HealthCheckStatus int

const (
	HealthCheckStatusOK HealthCheckStatus = iota
	HealthCheckStatusFail
)

type HealthCheckResult = map[HealthCheckComponentName]HealthCheckStatus

// HealthCheck reports the status of each dependency, e.g. the shared cache tier.
type HealthCheck = func(ctx context.Context) (HealthCheckResult, error)

type healthCheckResponseData struct {
	Status     string          `json:"status"`
	Timestamp  string          `json:"timestamp"`
	Components map[string]bool `json:"components,omitempty"`
}

// HealthCheckHandler serves /health. It answers 503 when any component fails
// and 500 when the check itself can't be done.
type HealthCheckHandler struct {
	errDomain string
	check     HealthCheck
	now       func() time.Time
}

// NewHealthCheckHandler creates the handler. With a nil fn only liveness is reported.
func NewHealthCheckHandler(errDomain string, fn HealthCheck) *HealthCheckHandler {
	if fn == nil {
		fn = func(ctx context.Context) (HealthCheckResult, error) { return nil, ctx.Err() }
	}
	return &HealthCheckHandler{errDomain: errDomain, check: fn, now: time.Now}
}

func (h *HealthCheckHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	components, err := h.check(r.Context())
	switch {
	case errors.Is(err, context.Canceled):
		rw.WriteHeader(StatusClientClosedRequest)
		return
	case err != nil:
		if logger != nil {
			logger.Error("error while checking health", log.Error(err))
		}
		restapi.RespondInternalError(rw, h.errDomain, logger)
		return
	}

	data := healthCheckResponseData{Status: HealthStatusOK, Timestamp: h.now().UTC().Format(time.RFC3339)}
	for name, status := range components {
		if data.Components == nil {
			data.Components = make(map[string]bool, len(components))
		}
		healthy := status == HealthCheckStatusOK
		data.Components[name] = healthy
		if !healthy {
			data.Status = HealthStatusFail
		}
	}

	code := http.StatusOK
	if data.Status == HealthStatusFail {
		code = http.StatusServiceUnavailable
	}
	restapi.RespondCodeAndJSON(rw, code, data, logger)
}
