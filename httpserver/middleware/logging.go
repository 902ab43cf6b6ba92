/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/musicranker/mbproxy/log"
)

const (
	// LoggingSecretQueryPlaceholder replaces values of secret query parameters in the logged URI.
	LoggingSecretQueryPlaceholder = "_HIDDEN_"

	// DefaultSlowRequestThreshold is the response time starting from which "time_slots" are logged.
	DefaultSlowRequestThreshold = time.Second

	userAgentLogFieldKey = "user_agent"
)

// LoggingOpts configures the Logging middleware.
type LoggingOpts struct {
	// RequestStart adds a "request started" line before the request is served.
	RequestStart bool

	// RequestHeaders maps request header names to log field keys.
	RequestHeaders map[string]string

	// ExcludedEndpoints are glob patterns of paths whose successful responses aren't logged.
	ExcludedEndpoints []string

	SecretQueryParams []string

	// AddRequestInfoToLogger makes the logger passed down the chain carry the request fields too.
	AddRequestInfoToLogger bool

	SlowRequestThreshold time.Duration
}

// Logging writes one line per served request and puts a logger tagged with the request ids into the context.
func Logging(logger log.FieldLogger) func(next http.Handler) http.Handler {
	return LoggingWithOpts(logger, LoggingOpts{})
}

// LoggingWithOpts is Logging with options.
func LoggingWithOpts(logger log.FieldLogger, opts LoggingOpts) func(next http.Handler) http.Handler {
	if opts.SlowRequestThreshold == 0 {
		opts.SlowRequestThreshold = DefaultSlowRequestThreshold
	}
	secrets := make(map[string]struct{}, len(opts.SecretQueryParams))
	for _, name := range opts.SecretQueryParams {
		secrets[name] = struct{}{}
	}
	excluded := newPathMatcher(opts.ExcludedEndpoints)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			startedAt := GetRequestStartTimeFromContext(ctx)
			if startedAt.IsZero() {
				startedAt = time.Now()
				ctx = NewContextWithRequestStartTime(ctx, startedAt)
			}

			idLogger := logger.With(
				log.String("request_id", GetRequestIDFromContext(ctx)),
				log.String("int_request_id", GetInternalRequestIDFromContext(ctx)),
			)
			reqLogger := idLogger.With(requestLogFields(r, opts.RequestHeaders, secrets)...)
			if opts.AddRequestInfoToLogger {
				idLogger = reqLogger
			}

			quiet := excluded.match(r.URL.Path)
			if opts.RequestStart && !quiet {
				reqLogger.Info("request started")
			}

			params := &LoggingParams{}
			ctx = NewContextWithLoggingParams(NewContextWithLogger(ctx, idLogger), params)
			wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
			next.ServeHTTP(wrw, r.WithContext(ctx))

			status := responseStatus(wrw)
			if quiet && status < http.StatusBadRequest {
				return
			}
			elapsed := time.Since(startedAt)
			fields := []log.Field{
				log.Int64("duration_ms", elapsed.Milliseconds()),
				log.Int("status", status),
				log.Int("bytes_sent", wrw.BytesWritten()),
			}
			fields = append(fields, params.snapshot(elapsed >= opts.SlowRequestThreshold)...)
			reqLogger.Info(fmt.Sprintf("response completed in %.3fs", elapsed.Seconds()), fields...)
		})
	}
}

func requestLogFields(r *http.Request, headers map[string]string, secrets map[string]struct{}) []log.Field {
	fields := []log.Field{
		log.String("method", r.Method),
		log.String("uri", loggableURI(r, secrets)),
		log.String("remote_addr", r.RemoteAddr),
		log.Int64("content_length", r.ContentLength),
		log.String(userAgentLogFieldKey, r.UserAgent()),
	}
	if host, portStr, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		fields = append(fields, log.String("remote_addr_ip", host))
		if port, convErr := strconv.Atoi(portStr); convErr == nil {
			fields = append(fields, log.Int("remote_addr_port", port))
		}
	}
	if origin := getOriginAddr(r); origin != "" {
		fields = append(fields, log.String("origin_addr", origin))
	}
	for header, key := range headers {
		fields = append(fields, log.String(key, r.Header.Get(header)))
	}
	return fields
}

func loggableURI(r *http.Request, secrets map[string]struct{}) string {
	if len(secrets) == 0 || r.URL.RawQuery == "" {
		return r.RequestURI
	}
	query := r.URL.Query()
	for name, values := range query {
		if _, secret := secrets[name]; !secret {
			continue
		}
		for i, v := range values {
			if v != "" {
				values[i] = LoggingSecretQueryPlaceholder
			}
		}
	}
	return r.URL.Path + "?" + query.Encode()
}
