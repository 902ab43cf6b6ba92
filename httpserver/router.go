/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/musicranker/mbproxy/httpserver/middleware"
	"github.com/musicranker/mbproxy/log"
	"github.com/musicranker/mbproxy/restapi"
)

// Served requests of these paths are not observed by the metrics middleware.
var systemEndpoints = []string{"/metrics", "/health", "*/health"}

func newRouter(
	cfg *Config, logger log.FieldLogger, opts Opts, metrics *middleware.HTTPRequestMetricsCollector, //nolint:gocritic // hugeParam
) (chi.Router, error) {
	mws, err := defaultMiddlewares(cfg, logger, opts.ErrorDomain, metrics)
	if err != nil {
		return nil, err
	}
	router := chi.NewRouter()
	router.Use(mws...)

	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.Method(http.MethodGet, "/metrics", metricsHandler)

	healthHandler := NewHealthCheckHandler(opts.ErrorDomain, opts.HealthCheck)
	mountAPI := func(r chi.Router) {
		r.Method(http.MethodGet, "/health", healthHandler)
		if opts.Routes != nil {
			opts.Routes(r)
		}
	}
	if prefix := strings.TrimSuffix(opts.RoutePrefix, "/"); prefix != "" {
		router.Route(prefix, mountAPI)
		router.Method(http.MethodGet, "/health", healthHandler)
	} else {
		mountAPI(router)
	}

	router.NotFound(errorResponder(logger, opts.ErrorDomain, http.StatusNotFound,
		restapi.ErrCodeNotFound, restapi.ErrMessageNotFound))
	router.MethodNotAllowed(errorResponder(logger, opts.ErrorDomain, http.StatusMethodNotAllowed,
		restapi.ErrCodeMethodNotAllowed, restapi.ErrMessageMethodNotAllowed))

	return router, nil
}

func errorResponder(fallback log.FieldLogger, domain string, status int, code, msg string) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		logger := middleware.GetLoggerFromContext(r.Context())
		if logger == nil {
			logger = fallback
		}
		restapi.RespondError(rw, status, restapi.NewError(domain, code, msg), logger)
	}
}

// defaultMiddlewares returns the chain in the order a request passes it.
func defaultMiddlewares(
	cfg *Config, logger log.FieldLogger, errDomain string, metrics *middleware.HTTPRequestMetricsCollector,
) ([]func(http.Handler) http.Handler, error) {
	logHeaders := make(map[string]string, len(cfg.Log.RequestHeaders))
	for _, name := range cfg.Log.RequestHeaders {
		logHeaders[name] = "req_header_" + strings.ToLower(strings.ReplaceAll(name, "-", "_"))
	}

	mws := []func(http.Handler) http.Handler{
		markRequestStart,
		middleware.RequestID(),
		middleware.LoggingWithOpts(logger, middleware.LoggingOpts{
			RequestStart:           cfg.Log.RequestStart,
			RequestHeaders:         logHeaders,
			ExcludedEndpoints:      cfg.Log.ExcludedEndpoints,
			SecretQueryParams:      cfg.Log.SecretQueryParams,
			AddRequestInfoToLogger: cfg.Log.AddRequestInfoToLogger,
			SlowRequestThreshold:   time.Duration(cfg.Log.SlowRequestThreshold),
		}),
		middleware.Recovery(errDomain),
		middleware.HTTPRequestMetricsWithOpts(metrics, middleware.GetChiRoutePattern,
			middleware.HTTPRequestMetricsOpts{ExcludedEndpoints: systemEndpoints}),
		middleware.CORSWithOpts(middleware.CORSOpts{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			MaxAge:         time.Duration(cfg.CORS.MaxAge),
		}),
	}

	if !cfg.RateLimit.Enabled {
		return mws, nil
	}
	rlOpts := middleware.RateLimitOpts{
		Alg:               cfg.RateLimit.Alg,
		MaxBurst:          cfg.RateLimit.Burst,
		ExcludedEndpoints: cfg.RateLimit.ExcludedEndpoints,
		DryRun:            cfg.RateLimit.DryRun,
	}
	if cfg.RateLimit.PerClient {
		rlOpts.GetKey = middleware.RateLimitGetClientIPKey(cfg.RateLimit.TrustProxyHeaders)
		rlOpts.MaxKeys = cfg.RateLimit.MaxClients
	}
	rateLimit, err := middleware.RateLimitWithOpts(cfg.RateLimit.Rate, errDomain, rlOpts)
	if err != nil {
		return nil, fmt.Errorf("create rate limit middleware: %w", err)
	}
	return append(mws, rateLimit), nil
}

func markRequestStart(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(rw, r.WithContext(middleware.NewContextWithRequestStartTime(r.Context(), time.Now())))
	})
}
