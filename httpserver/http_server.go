/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/musicranker/mbproxy/httpserver/middleware"
	"github.com/musicranker/mbproxy/log"
	"github.com/musicranker/mbproxy/service"
)

// HTTPRequestMetricsOpts configures the Prometheus collector of served requests.
type HTTPRequestMetricsOpts struct {
	Namespace   string
	ConstLabels prometheus.Labels
}

// Opts configures HTTPServer.
type Opts struct {
	// RoutePrefix is prepended to the API routes and the health-check endpoint.
	// With a prefix, the health-check endpoint is also served at the root.
	RoutePrefix string

	// Routes registers API handlers on the (prefixed) router.
	Routes func(router chi.Router)

	// ErrorDomain is put into error responses produced by the server itself.
	ErrorDomain string

	// HealthCheck checks the service components. Only liveness is reported when it's nil.
	HealthCheck HealthCheck

	// MetricsHandler replaces the default promhttp handler of /metrics.
	MetricsHandler http.Handler

	HTTPRequestMetrics HTTPRequestMetricsOpts
}

// HTTPServer is the proxy's HTTP front. It serves the API routes behind the request id,
// logging, recovery, metrics, CORS and (optionally) inbound rate limiting middlewares.
type HTTPServer struct {
	URL string

	srv             *http.Server
	logger          log.FieldLogger
	shutdownTimeout time.Duration
	metrics         *middleware.HTTPRequestMetricsCollector

	port     atomic.Int32
	doneMu   sync.Mutex
	done     chan struct{}
}

var _ service.Unit = (*HTTPServer)(nil)
var _ service.MetricsRegisterer = (*HTTPServer)(nil)

// New builds the server. Nothing listens until Start is called.
func New(cfg *Config, logger log.FieldLogger, opts Opts) (*HTTPServer, error) { //nolint:gocritic // hugeParam
	metrics := middleware.NewHTTPRequestMetricsCollectorWithOpts(middleware.HTTPRequestMetricsCollectorOpts{
		Namespace:   opts.HTTPRequestMetrics.Namespace,
		ConstLabels: opts.HTTPRequestMetrics.ConstLabels,
	})
	router, err := newRouter(cfg, logger, opts, metrics)
	if err != nil {
		return nil, err
	}
	return &HTTPServer{
		URL: "http://" + cfg.Address,
		srv: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			WriteTimeout:      time.Duration(cfg.Timeouts.Write),
			ReadTimeout:       time.Duration(cfg.Timeouts.Read),
			ReadHeaderTimeout: time.Duration(cfg.Timeouts.ReadHeader),
			IdleTimeout:       time.Duration(cfg.Timeouts.Idle),
		},
		logger:          logger,
		shutdownTimeout: time.Duration(cfg.Timeouts.Shutdown),
		metrics:         metrics,
	}, nil
}

// Start listens and serves until Stop is called. It blocks, so run it in its own goroutine.
// Errors other than a regular close are logged and sent to fatalError.
func (s *HTTPServer) Start(fatalError chan<- error) {
	done := make(chan struct{})
	defer close(done)
	s.doneMu.Lock()
	s.done = done
	s.doneMu.Unlock()

	logger := s.logger.With(
		log.String("address", s.srv.Addr),
		log.Duration("write_timeout", s.srv.WriteTimeout),
		log.Duration("read_timeout", s.srv.ReadTimeout),
		log.Duration("idle_timeout", s.srv.IdleTimeout),
		log.Duration("shutdown_timeout", s.shutdownTimeout),
	)

	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		logger.Error("application HTTP server error", log.Error(err))
		fatalError <- fmt.Errorf("listen: %w", err)
		return
	}
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port.Store(int32(addr.Port))
		logger = logger.With(log.Int("port", addr.Port))
	}
	logger.Info("application HTTP server is listening")

	if err = s.srv.Serve(ln); errors.Is(err, http.ErrServerClosed) {
		logger.Info("application HTTP server closed")
		return
	}
	logger.Error("application HTTP server error", log.Error(err))
	fatalError <- err
}

// Stop closes the server. When gracefully is set, in-flight requests
// (including those queued for an upstream) get up to the shutdown timeout to complete.
func (s *HTTPServer) Stop(gracefully bool) error {
	var err error
	if gracefully {
		s.logger.Info("shutting down application HTTP server", log.Duration("timeout", s.shutdownTimeout))
		ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		err = s.srv.Shutdown(ctx)
	} else {
		s.logger.Info("closing application HTTP server")
		err = s.srv.Close()
	}
	if err != nil {
		s.logger.Error("application HTTP server stopping error", log.Error(err))
		return err
	}

	s.doneMu.Lock()
	done := s.done
	s.doneMu.Unlock()
	if done != nil {
		<-done
	}
	return nil
}

// MustRegisterMetrics implements service.MetricsRegisterer.
func (s *HTTPServer) MustRegisterMetrics() {
	s.metrics.MustRegister()
}

// UnregisterMetrics implements service.MetricsRegisterer.
func (s *HTTPServer) UnregisterMetrics() {
	s.metrics.Unregister()
}

// GetPort returns the bound TCP port, or 0 while the server isn't listening yet.
// It's handy when the configured address uses port 0.
func (s *HTTPServer) GetPort() int {
	return int(s.port.Load())
}
