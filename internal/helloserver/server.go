/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package helloserver assembles the hello-server: the gRPC server with the admission-controlled
// HelloService, health and reflection services, the limiter and the metrics endpoint.
package helloserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/acronis/grpc-backpressure-lab/grpcserver"
	"github.com/acronis/grpc-backpressure-lab/httpserver"
	"github.com/acronis/grpc-backpressure-lab/internal/hello"
	"github.com/acronis/grpc-backpressure-lab/internal/hellopb"
	"github.com/acronis/grpc-backpressure-lab/log"
	"github.com/acronis/grpc-backpressure-lab/service"
)

// DefaultSamplerInterval is how often the admission gauges are refreshed when no calls arrive.
const DefaultSamplerInterval = time.Second

const samplerStopTimeout = time.Second * 5

// Health-check methods bypass admission control, so probes are answered even when the server is saturated.
var admissionExcludedMethods = []string{
	healthpb.Health_Check_FullMethodName,
	healthpb.Health_Watch_FullMethodName,
}

// Opts contains optional parameters for constructing Server.
type Opts struct {
	SamplerInterval time.Duration
}

// Server is a service.Unit running the gRPC server on top of the Runtime.
// Stopping is ordered: the gRPC server drains in-flight calls first, then the admission controller stops.
type Server struct {
	GRPCServer *grpcserver.GRPCServer
	Runtime    *Runtime
	Health     *health.Server

	logger   log.FieldLogger
	sampler  *service.WorkerUnit
	settings string
}

var _ service.Unit = (*Server)(nil)
var _ service.MetricsRegisterer = (*Server)(nil)

// NewServer creates a new Server.
func NewServer(cfg *AppConfig, logger log.FieldLogger, opts Opts) (*Server, error) {
	if opts.SamplerInterval <= 0 {
		opts.SamplerInterval = DefaultSamplerInterval
	}

	rt, err := NewRuntime(cfg.Server, logger, RuntimeOpts{StopTimeout: time.Duration(cfg.GRPCServer.Timeouts.Shutdown)})
	if err != nil {
		return nil, err
	}

	grpcSrv, err := grpcserver.New(cfg.GRPCServer, logger,
		grpcserver.WithAdmissionOptions(grpcserver.AdmissionOptions{
			Admitter:        rt.Controller,
			ExcludedMethods: admissionExcludedMethods,
		}),
		grpcserver.WithLimiter(rt.Limiter),
	)
	if err != nil {
		return nil, fmt.Errorf("create gRPC server: %w", err)
	}

	hellopb.RegisterHelloServiceServer(grpcSrv.GRPCServer, hello.NewService(rt.Work))
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(hellopb.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcSrv.GRPCServer, healthSrv)
	reflection.Register(grpcSrv.GRPCServer)

	samplerLogger := logger.With(log.String("worker", "admission-sampler"))
	sampler := service.NewWorkerUnitWithOpts(
		service.NewPeriodicWorker(rt.NewSampler(samplerLogger), opts.SamplerInterval, samplerLogger),
		service.WorkerUnitOpts{GracefulStopTimeout: samplerStopTimeout})

	return &Server{
		GRPCServer: grpcSrv,
		Runtime:    rt,
		Health:     healthSrv,
		logger:     logger,
		sampler:    sampler,
		settings:   cfg.Server.String(),
	}, nil
}

// Start starts the admission controller, the gauges sampler and the gRPC server.
// It blocks until the gRPC server stops.
func (s *Server) Start(fatalError chan<- error) {
	s.logger.Info("hello server configured",
		log.String("address", s.GRPCServer.Address()),
		log.String("settings", s.settings),
	)
	s.Runtime.Controller.Start(nil)
	go s.sampler.Start(make(chan error, 1))
	s.GRPCServer.Start(fatalError)
}

// Stop stops the gRPC server and then the admission controller.
func (s *Server) Stop(gracefully bool) error {
	s.Health.Shutdown()
	var errs []error
	if err := s.GRPCServer.Stop(gracefully); err != nil {
		errs = append(errs, fmt.Errorf("stop gRPC server: %w", err))
	}
	if err := s.Runtime.Controller.Stop(gracefully); err != nil {
		errs = append(errs, fmt.Errorf("stop admission controller: %w", err))
	}
	if err := s.sampler.Stop(gracefully); err != nil {
		errs = append(errs, fmt.Errorf("stop sampler: %w", err))
	}
	return errors.Join(errs...)
}

// MustRegisterMetrics registers metrics of the gRPC server and the runtime in Prometheus client.
func (s *Server) MustRegisterMetrics() {
	s.GRPCServer.MustRegisterMetrics()
	s.Runtime.MustRegisterMetrics()
}

// UnregisterMetrics unregisters metrics of the gRPC server and the runtime in Prometheus client.
func (s *Server) UnregisterMetrics() {
	s.GRPCServer.UnregisterMetrics()
	s.Runtime.UnregisterMetrics()
}

// HealthCheck reports the serving status of the HelloService. It's used by the /healthz endpoint.
func (s *Server) HealthCheck(ctx context.Context) (httpserver.HealthCheckResult, error) {
	resp, err := s.Health.Check(ctx, &healthpb.HealthCheckRequest{Service: hellopb.ServiceName})
	if err != nil {
		return nil, err
	}
	status := httpserver.HealthCheckStatusOK
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		status = httpserver.HealthCheckStatusFail
	}
	return httpserver.HealthCheckResult{hellopb.ServiceName: status}, nil
}

// NewUnit builds the whole hello-server: the Server and, if enabled, the metrics HTTP server.
func NewUnit(cfg *AppConfig, logger log.FieldLogger) (service.Unit, error) {
	srv, err := NewServer(cfg, logger, Opts{})
	if err != nil {
		return nil, err
	}
	if !cfg.MetricsServer.Enabled {
		return srv, nil
	}
	metricsSrv, err := httpserver.New(cfg.MetricsServer, logger, httpserver.Opts{HealthCheck: srv.HealthCheck})
	if err != nil {
		return nil, fmt.Errorf("create metrics server: %w", err)
	}
	return service.NewCompositeUnit(srv, metricsSrv), nil
}
