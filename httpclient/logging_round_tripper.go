/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/musicranker/mbproxy/httpserver/middleware"
	"github.com/musicranker/mbproxy/log"
)

// LoggingMode selects which upstream requests are logged.
type LoggingMode string

// Logging modes.
const (
	LoggingModeNone   LoggingMode = "none"
	LoggingModeAll    LoggingMode = "all"
	LoggingModeFailed LoggingMode = "failed"
)

// IsValid reports whether lm is one of the known modes.
func (lm LoggingMode) IsValid() bool {
	return lm == LoggingModeNone || lm == LoggingModeAll || lm == LoggingModeFailed
}

// LoggingRoundTripperOpts configures LoggingRoundTripper.
type LoggingRoundTripperOpts struct {
	// LoggerProvider returns the logger for a request. The logger of the inbound request
	// (middleware.GetLoggerFromContext) is used when nil.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// Mode is LoggingModeAll when empty.
	Mode LoggingMode

	// SlowRequestThreshold skips logging of requests that completed faster.
	SlowRequestThreshold time.Duration
}

// LoggingRoundTripper logs upstream requests and adds their duration to the
// "external_request_<type>_ms" time slot of the inbound request log line.
type LoggingRoundTripper struct {
	Delegate http.RoundTripper
	ReqType  string
	Opts     LoggingRoundTripperOpts
}

func NewLoggingRoundTripper(delegate http.RoundTripper, reqType string) http.RoundTripper {
	return NewLoggingRoundTripperWithOpts(delegate, reqType, LoggingRoundTripperOpts{})
}

func NewLoggingRoundTripperWithOpts(delegate http.RoundTripper, reqType string, opts LoggingRoundTripperOpts) http.RoundTripper {
	if opts.LoggerProvider == nil {
		opts.LoggerProvider = middleware.GetLoggerFromContext
	}
	return &LoggingRoundTripper{Delegate: delegate, ReqType: reqType, Opts: opts}
}

func (rt *LoggingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Opts.Mode == LoggingModeNone {
		return rt.Delegate.RoundTrip(r)
	}

	reqType := requestTypeOrDefault(r.Context(), rt.ReqType)
	startedAt := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	elapsed := time.Since(startedAt)

	if lp := middleware.GetLoggingParamsFromContext(r.Context()); lp != nil {
		lp.AddTimeSlotDurationInMs("external_request_"+reqType+"_ms", elapsed)
	}
	if elapsed >= rt.Opts.SlowRequestThreshold {
		rt.logRequest(r, reqType, resp, err, elapsed)
	}
	return resp, err
}

func (rt *LoggingRoundTripper) logRequest(r *http.Request, reqType string, resp *http.Response, err error, elapsed time.Duration) {
	logger := rt.Opts.LoggerProvider(r.Context())
	if logger == nil {
		return
	}
	fields := []log.Field{
		log.String("request_type", reqType),
		log.String("method", r.Method),
		log.String("url", r.URL.String()),
		log.DurationIn(elapsed, time.Millisecond),
	}
	switch {
	case err != nil:
		logger.Error("client http request failed", append(fields, log.Error(err))...)
	case resp.StatusCode >= http.StatusBadRequest:
		logger.Warn("client http request completed with error status", append(fields, log.Int("status", resp.StatusCode))...)
	case rt.Opts.Mode != LoggingModeFailed:
		logger.Info("client http request completed", append(fields, log.Int("status", resp.StatusCode))...)
	}
}
