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
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/acronis/grpc-backpressure-lab/log"
	"github.com/acronis/grpc-backpressure-lab/service"
)

// Opts represents options for creating HTTPServer.
type Opts struct {
	// RootMiddlewares is a list of middlewares to be applied to the root router.
	RootMiddlewares []func(http.Handler) http.Handler
	// HealthCheck is a function that performs context-aware health check logic.
	HealthCheck HealthCheck
	// MetricsHandler is a custom handler for the /metrics endpoint (promhttp.Handler() by default).
	MetricsHandler http.Handler
}

// HTTPServer serves the metrics, health-check and (optionally) profiling endpoints.
// chi.Router is used as a handler for the server.
// It implements service.Unit interface.
type HTTPServer struct {
	HTTPServer      *http.Server
	HTTPRouter      chi.Router
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	address        atomic.Value
	httpServerDone atomic.Value
}

var _ service.Unit = (*HTTPServer)(nil)

// New creates a new HTTPServer with /metrics and /healthz endpoints.
// Profiling endpoints are mounted under /debug when Config.Pprof is true.
func New(cfg *Config, logger log.FieldLogger, opts Opts) (*HTTPServer, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("HTTP server address should not be empty")
	}
	router := NewRouter(logger, RouterOpts{
		RootMiddlewares: opts.RootMiddlewares,
		HealthCheck:     opts.HealthCheck,
		MetricsHandler:  opts.MetricsHandler,
		Pprof:           cfg.Pprof,
	})
	httpServer := &http.Server{
		Addr:              cfg.Address,
		WriteTimeout:      time.Duration(cfg.Timeouts.Write),
		ReadTimeout:       time.Duration(cfg.Timeouts.Read),
		ReadHeaderTimeout: time.Duration(cfg.Timeouts.ReadHeader),
		IdleTimeout:       time.Duration(cfg.Timeouts.Idle),
		Handler:           router,
	}
	srv := &HTTPServer{
		HTTPServer:      httpServer,
		HTTPRouter:      router,
		Logger:          logger,
		ShutdownTimeout: time.Duration(cfg.Timeouts.Shutdown),
	}
	srv.address.Store(cfg.Address)
	return srv, nil
}

// Start starts HTTP server in a blocking way.
// It's supposed that this method will be called in a separate goroutine.
// If a fatal error occurs, it will be sent to the fatalError channel.
func (s *HTTPServer) Start(fatalError chan<- error) {
	done := make(chan struct{})
	defer close(done)
	s.httpServerDone.Store(done)

	logger := s.Logger.With(
		log.String("address", s.Address()),
		log.Duration("write_timeout", s.HTTPServer.WriteTimeout),
		log.Duration("read_timeout", s.HTTPServer.ReadTimeout),
		log.Duration("shutdown_timeout", s.ShutdownTimeout),
	)
	logger.Info("starting metrics HTTP server...")

	listener, err := net.Listen("tcp", s.Address())
	if err != nil {
		logger.Error("metrics HTTP server error", log.Error(err))
		fatalError <- err
		return
	}
	s.address.Store(listener.Addr().String())

	if err = s.HTTPServer.Serve(listener); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("metrics HTTP server closed")
			return
		}
		logger.Error("metrics HTTP server error", log.Error(err))
		fatalError <- err
		return
	}
}

// Stop stops HTTP server (gracefully or not).
func (s *HTTPServer) Stop(gracefully bool) error {
	if !gracefully {
		s.Logger.Info("closing metrics HTTP server...")
		if err := s.HTTPServer.Close(); err != nil {
			s.Logger.Error("metrics HTTP server closing error", log.Error(err))
			return err
		}
		s.waitServeReturned()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()

	s.Logger.Info("shutting down metrics HTTP server...", log.Duration("timeout", s.ShutdownTimeout))
	if err := s.HTTPServer.Shutdown(ctx); err != nil {
		s.Logger.Error("metrics HTTP server shutting down error", log.Error(err))
		return err
	}
	s.Logger.Info("metrics HTTP server shut down")
	s.waitServeReturned()
	return nil
}

func (s *HTTPServer) waitServeReturned() {
	if done, ok := s.httpServerDone.Load().(chan struct{}); ok && done != nil {
		<-done // Wait for the listener to be closed.
	}
}

// Address returns the address the server is bound to.
// It changes after the start if the configured port was 0.
func (s *HTTPServer) Address() string {
	address, _ := s.address.Load().(string)
	return address
}

// URL returns the base URL of the server.
func (s *HTTPServer) URL() string {
	return "http://" + s.Address()
}
