/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package profserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/musicranker/mbproxy/httpserver/middleware"
	"github.com/musicranker/mbproxy/log"
	"github.com/musicranker/mbproxy/service"
)

const (
	errorDomain       = "ProfServer"
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// ProfServer serves pprof handlers under /debug next to the proxy API.
// It's meant for loopback addresses only and is started only when enabled in the config.
type ProfServer struct {
	URL string

	srv    *http.Server
	logger log.FieldLogger
	done   chan struct{}
}

var _ service.Unit = (*ProfServer)(nil)

// New builds the profiling server. Nothing listens until Start is called.
func New(cfg *Config, logger log.FieldLogger) *ProfServer {
	logger = logger.With(log.String("address", cfg.Address))

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID(),
		middleware.LoggingWithOpts(logger, middleware.LoggingOpts{RequestStart: true}),
		middleware.Recovery(errorDomain),
	)
	router.Mount("/debug", chimiddleware.Profiler())

	return &ProfServer{
		URL:    "http://" + cfg.Address,
		srv:    &http.Server{Addr: cfg.Address, Handler: router, ReadHeaderTimeout: readHeaderTimeout},
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start listens and serves until Stop is called. It blocks, so run it in its own goroutine.
// A failure to bind or serve is logged and sent to fatalError.
func (s *ProfServer) Start(fatalError chan<- error) {
	defer close(s.done)

	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		s.logger.Error("profiling HTTP server error", log.Error(err))
		fatalError <- fmt.Errorf("listen profiling server: %w", err)
		return
	}

	s.logger.Info("profiling HTTP server is listening")
	if err = s.srv.Serve(ln); errors.Is(err, http.ErrServerClosed) {
		s.logger.Info("profiling HTTP server closed")
		return
	}
	s.logger.Error("profiling HTTP server error", log.Error(err))
	fatalError <- err
}

// Stop shuts the server down. In-flight profiles are allowed to finish only when gracefully is set.
func (s *ProfServer) Stop(gracefully bool) error {
	s.logger.Info("stopping profiling HTTP server", log.Bool("gracefully", gracefully))

	var err error
	if gracefully {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = s.srv.Shutdown(ctx)
	} else {
		err = s.srv.Close()
	}
	if err != nil {
		s.logger.Error("profiling HTTP server stopping error", log.Error(err))
		return err
	}
	<-s.done
	return nil
}
