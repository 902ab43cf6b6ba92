/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"context"
	"time"

	"github.com/musicranker/mbproxy/log"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyInternalRequestID
	ctxKeyLogger
	ctxKeyLoggingParams
	ctxKeyRequestStartTime
)

// ctxValue returns the zero value of T when key is absent or holds another type.
func ctxValue[T any](ctx context.Context, key ctxKey) T {
	v, _ := ctx.Value(key).(T)
	return v
}

// NewContextWithRequestID stores the request id received from the client (or generated for it).
func NewContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// GetRequestIDFromContext returns the request id or an empty string.
func GetRequestIDFromContext(ctx context.Context) string {
	return ctxValue[string](ctx, ctxKeyRequestID)
}

// NewContextWithInternalRequestID stores the id the proxy always generates itself.
func NewContextWithInternalRequestID(ctx context.Context, internalRequestID string) context.Context {
	return context.WithValue(ctx, ctxKeyInternalRequestID, internalRequestID)
}

// GetInternalRequestIDFromContext returns the internal request id or an empty string.
func GetInternalRequestIDFromContext(ctx context.Context) string {
	return ctxValue[string](ctx, ctxKeyInternalRequestID)
}

// NewContextWithLogger stores the request-scoped logger.
func NewContextWithLogger(ctx context.Context, logger log.FieldLogger) context.Context {
	return context.WithValue(ctx, ctxKeyLogger, logger)
}

// GetLoggerFromContext returns the request-scoped logger or nil.
func GetLoggerFromContext(ctx context.Context) log.FieldLogger {
	return ctxValue[log.FieldLogger](ctx, ctxKeyLogger)
}

// GetLoggerFromContextOrDisabled is GetLoggerFromContext that falls back to a disabled logger.
func GetLoggerFromContextOrDisabled(ctx context.Context) log.FieldLogger {
	if logger := GetLoggerFromContext(ctx); logger != nil {
		return logger
	}
	return log.NewDisabledLogger()
}

// NewContextWithLoggingParams stores params that handlers may extend, e.g. with the cache status.
func NewContextWithLoggingParams(ctx context.Context, loggingParams *LoggingParams) context.Context {
	return context.WithValue(ctx, ctxKeyLoggingParams, loggingParams)
}

// GetLoggingParamsFromContext returns the logging params or nil.
func GetLoggingParamsFromContext(ctx context.Context) *LoggingParams {
	return ctxValue[*LoggingParams](ctx, ctxKeyLoggingParams)
}

// NewContextWithRequestStartTime stores the time the router received the request.
func NewContextWithRequestStartTime(ctx context.Context, startTime time.Time) context.Context {
	return context.WithValue(ctx, ctxKeyRequestStartTime, startTime)
}

// GetRequestStartTimeFromContext returns the request start time or the zero time.
func GetRequestStartTimeFromContext(ctx context.Context) time.Time {
	return ctxValue[time.Time](ctx, ctxKeyRequestStartTime)
}
