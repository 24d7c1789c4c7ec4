/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package grpcserver

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/acronis/grpc-backpressure-lab/grpcserver/interceptor"
	"github.com/acronis/grpc-backpressure-lab/internal/limiter"
	"github.com/acronis/grpc-backpressure-lab/log"
	"github.com/acronis/grpc-backpressure-lab/service"
)

// LoggingOptions represents options for gRPC request logging that used in GRPCServer.
type LoggingOptions struct {
	CustomLoggerProvider interceptor.CustomLoggerProvider
}

// MetricsOptions represents options for gRPC request metrics that used in GRPCServer.
type MetricsOptions struct {
	Namespace      string
	LatencyBuckets []float64
	ConstLabels    prometheus.Labels
}

// AdmissionOptions represents options for admission control of the incoming calls.
type AdmissionOptions struct {
	// Admitter runs the handlers. If nil, handlers run on the transport goroutines without any admission control.
	Admitter interceptor.Admitter
	// ExcludedMethods bypass admission control (e.g. health checks). They are not fed to the limiter either.
	ExcludedMethods []string
}

// Option represents a functional option for configuring GRPCServer.
type Option func(*serverOptions)

type serverOptions struct {
	unaryInterceptors []grpc.UnaryServerInterceptor
	metricsOptions    MetricsOptions
	loggingOptions    LoggingOptions
	admissionOptions  AdmissionOptions
	limiter           limiter.Limiter
}

// WithUnaryInterceptors adds unary interceptors to the server.
// They are called after the built-in ones, right before the handler.
func WithUnaryInterceptors(interceptors ...grpc.UnaryServerInterceptor) Option {
	return func(o *serverOptions) {
		o.unaryInterceptors = append(o.unaryInterceptors, interceptors...)
	}
}

// WithLoggingOptions configures gRPC request logging.
func WithLoggingOptions(opts LoggingOptions) Option {
	return func(o *serverOptions) {
		o.loggingOptions = opts
	}
}

// WithMetricsOptions configures gRPC request metrics.
func WithMetricsOptions(opts MetricsOptions) Option {
	return func(o *serverOptions) {
		o.metricsOptions = opts
	}
}

// WithAdmissionOptions configures admission control of the incoming calls.
func WithAdmissionOptions(opts AdmissionOptions) Option {
	return func(o *serverOptions) {
		o.admissionOptions = opts
	}
}

// WithLimiter sets the limiter that is fed with latency samples of the instrumented calls.
// Methods excluded from admission control are not sampled.
func WithLimiter(l limiter.Limiter) Option {
	return func(o *serverOptions) {
		o.limiter = l
	}
}

// GRPCServer represents a wrapper around grpc.Server with additional fields and methods.
// It also implements service.Unit and service.MetricsRegisterer interfaces.
type GRPCServer struct {
	GRPCServer *grpc.Server
	Logger     log.FieldLogger

	address         atomic.Value
	shutdownTimeout time.Duration
	grpcServerDone  atomic.Value
	callMetrics     *interceptor.PrometheusMetrics
}

var _ service.Unit = (*GRPCServer)(nil)
var _ service.MetricsRegisterer = (*GRPCServer)(nil)

// New creates a new GRPCServer with predefined request ID, logging, panic recovery and call instrumentation.
// Limiter sampling and admission control are added when configured with the corresponding options.
func New(cfg *Config, logger log.FieldLogger, options ...Option) (*GRPCServer, error) {
	opts := &serverOptions{}
	for _, opt := range options {
		opt(opts)
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("gRPC server address should not be empty")
	}

	serverOpts := transportOptions(cfg)

	promOpts := []interceptor.PrometheusOption{
		interceptor.WithPrometheusNamespace(opts.metricsOptions.Namespace),
		interceptor.WithPrometheusConstLabels(opts.metricsOptions.ConstLabels),
	}
	if len(opts.metricsOptions.LatencyBuckets) > 0 {
		promOpts = append(promOpts, interceptor.WithPrometheusLatencyBuckets(opts.metricsOptions.LatencyBuckets))
	}
	callMetrics := interceptor.NewPrometheusMetrics(promOpts...)

	serverOpts = append(serverOpts, grpc.ChainUnaryInterceptor(buildInterceptors(cfg, callMetrics, logger, opts)...))

	grpcServer := &GRPCServer{
		GRPCServer:      grpc.NewServer(serverOpts...),
		Logger:          logger,
		shutdownTimeout: cfg.Timeouts.Shutdown.Duration(),
		callMetrics:     callMetrics,
	}
	grpcServer.address.Store(cfg.Address)
	return grpcServer, nil
}

// transportOptions maps keepalive and message/stream limits to grpc server options. Zero limits keep grpc defaults.
func transportOptions(cfg *Config) []grpc.ServerOption {
	opts := []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    cfg.Keepalive.Time.Duration(),
			Timeout: cfg.Keepalive.Timeout.Duration(),
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             cfg.Keepalive.MinTime.Duration(),
			PermitWithoutStream: true,
		}),
	}
	if limit := cfg.Limits.MaxConcurrentStreams; limit > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(limit))
	}
	if size := cfg.Limits.MaxRecvMessageSize.Bytes(); size > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(size))
	}
	if size := cfg.Limits.MaxSendMessageSize.Bytes(); size > 0 {
		opts = append(opts, grpc.MaxSendMsgSize(size))
	}
	return opts
}

// Start starts the gRPC server in a blocking way.
// It's supposed that this method will be called in a separate goroutine.
// If a fatal error occurs, it will be sent to the fatalError channel.
func (s *GRPCServer) Start(fatalError chan<- error) {
	done := make(chan struct{})
	s.grpcServerDone.Store(done)
	defer close(done)

	logger := s.Logger.With(log.String("address", s.Address()))
	logger.Info("starting gRPC server...")

	listener, err := net.Listen("tcp", s.Address())
	if err != nil {
		logger.Error("gRPC server listen error", log.Error(err))
		fatalError <- err
		return
	}
	s.address.Store(listener.Addr().String())

	if err = s.GRPCServer.Serve(listener); err != nil {
		logger.Error("gRPC server error", log.Error(err))
		fatalError <- err
		return
	}
}

// Stop stops the gRPC server.
// A graceful stop lets the calls in flight (including the ones waiting in the admission queue) finish
// within the shutdown timeout, then the remaining connections are closed forcefully.
func (s *GRPCServer) Stop(gracefully bool) error {
	defer s.waitServeReturned()

	if !gracefully {
		s.Logger.Info("stopping gRPC server...")
		s.GRPCServer.Stop()
		return nil
	}

	s.Logger.Info("stopping gRPC server gracefully...", log.Duration("timeout", s.shutdownTimeout))
	forceStop := time.AfterFunc(s.shutdownTimeout, func() {
		s.Logger.Warn("gRPC server graceful stop timed out, stopping forcefully...")
		s.GRPCServer.Stop()
	})
	s.GRPCServer.GracefulStop()
	if forceStop.Stop() {
		s.Logger.Info("gRPC server gracefully stopped")
	}
	return nil
}

func (s *GRPCServer) waitServeReturned() {
	if done, ok := s.grpcServerDone.Load().(chan struct{}); ok && done != nil {
		<-done
	}
}

// MustRegisterMetrics registers metrics in Prometheus client and panics if any error occurs.
func (s *GRPCServer) MustRegisterMetrics() {
	s.callMetrics.MustRegister()
}

// UnregisterMetrics unregisters metrics in Prometheus client.
func (s *GRPCServer) UnregisterMetrics() {
	s.callMetrics.Unregister()
}

// CallMetrics returns the collector of the per-call metrics.
func (s *GRPCServer) CallMetrics() *interceptor.PrometheusMetrics {
	return s.callMetrics
}

// Address returns the current address the server is bound to.
// This may change after starting the server if the original address was :0.
func (s *GRPCServer) Address() string {
	address, _ := s.address.Load().(string)
	return address
}

func callStartTimeUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler,
	) (interface{}, error) {
		return handler(interceptor.NewContextWithCallStartTime(ctx, time.Now()), req)
	}
}

func buildInterceptors(
	cfg *Config, callMetrics *interceptor.PrometheusMetrics, logger log.FieldLogger, opts *serverOptions,
) []grpc.UnaryServerInterceptor {
	loggingOptions := []interceptor.LoggingOption{
		interceptor.WithLoggingCallStart(cfg.Log.CallStart),
		interceptor.WithLoggingSlowCallThreshold(cfg.Log.SlowCallThreshold.Duration()),
		interceptor.WithLoggingExcludedMethods(cfg.Log.ExcludedMethods...),
		interceptor.WithLoggingCustomLoggerProvider(opts.loggingOptions.CustomLoggerProvider),
	}

	unaryInterceptors := []grpc.UnaryServerInterceptor{
		callStartTimeUnaryInterceptor(),
		interceptor.RequestIDUnaryInterceptor(),
		interceptor.LoggingUnaryInterceptor(logger, loggingOptions...),
		interceptor.RecoveryUnaryInterceptor(),
		interceptor.CallInstrumentationUnaryInterceptor(callMetrics),
	}
	if opts.limiter != nil {
		unaryInterceptors = append(unaryInterceptors, interceptor.LimiterSamplingUnaryInterceptor(
			opts.limiter, interceptor.WithLimiterSamplingExcludedMethods(opts.admissionOptions.ExcludedMethods...)))
	}
	if opts.admissionOptions.Admitter != nil {
		unaryInterceptors = append(unaryInterceptors, interceptor.AdmissionUnaryInterceptor(
			opts.admissionOptions.Admitter,
			interceptor.WithAdmissionExcludedMethods(opts.admissionOptions.ExcludedMethods...),
		))
	}
	return append(unaryInterceptors, opts.unaryInterceptors...)
}
