/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package loadgen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/acronis/grpc-backpressure-lab/httpserver"
	"github.com/acronis/grpc-backpressure-lab/log"
	"github.com/acronis/grpc-backpressure-lab/service"
)

// HealthCheckComponent is the name of the load generator in the health-check response.
const HealthCheckComponent = "loadgen"

// GeneratorOpts represents options for Generator.
type GeneratorOpts struct {
	// Metrics are registered and unregistered together with the Generator. Nil disables them.
	Metrics *PrometheusMetrics
	// DialOptions are appended to the default ones (insecure transport credentials).
	DialOptions []grpc.DialOption
}

// Generator runs the whole load script against the target. It implements service.Worker.
type Generator struct {
	cfg       *Config
	logger    log.FieldLogger
	metrics   *PrometheusMetrics
	dialOpts  []grpc.DialOption
	counters  *Counters
	gate      *InflightGate
	latencies *LatencyRecorder
	running   atomic.Bool
}

// NewGenerator creates a new Generator.
func NewGenerator(cfg *Config, logger log.FieldLogger, opts GeneratorOpts) (*Generator, error) {
	gate, err := NewInflightGate(cfg.MaxInflight)
	if err != nil {
		return nil, err
	}
	if cfg.Connections <= 0 {
		return nil, fmt.Errorf("number of connections should be positive, got %d", cfg.Connections)
	}
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts.DialOptions...)
	return &Generator{
		cfg:       cfg,
		logger:    logger,
		metrics:   opts.Metrics,
		dialOpts:  dialOpts,
		counters:  &Counters{},
		gate:      gate,
		latencies: NewLatencyRecorder(),
	}, nil
}

// Run dials the target, waits for it to get ready and runs the phases.
// It returns nil when the script is over or ctx is done.
func (g *Generator) Run(ctx context.Context) error {
	g.logger.Info("load generator configured", log.String("settings", g.cfg.String()))

	conns, err := g.dial()
	if err != nil {
		return err
	}
	defer func() {
		for _, conn := range conns {
			if closeErr := conn.Close(); closeErr != nil {
				g.logger.Warn("failed to close connection", log.String("target", conn.Target()), log.Error(closeErr))
			}
		}
	}()
	clientConns := make([]grpc.ClientConnInterface, 0, len(conns))
	for _, conn := range conns {
		clientConns = append(clientConns, conn)
	}

	if err = WaitReady(ctx, clientConns, g.cfg.Readiness, g.logger); err != nil {
		return ignoreCanceled(ctx, err)
	}

	collector, err := NewResponseCollector(g.cfg.CallbackWorkers, g.counters, g.gate, ResponseCollectorOpts{
		Logger:           g.logger,
		MetricsCollector: g.metricsCollector(),
		Latencies:        g.latencies,
	})
	if err != nil {
		return err
	}
	collector.Start()
	defer collector.Stop()

	dispatcher, err := NewDispatcher(clientConns, collector, DispatcherOpts{FailEvery: uint64(g.cfg.FailEvery)})
	if err != nil {
		return err
	}
	runner := NewPhaseRunner(dispatcher, g.gate, g.counters, PhaseRunnerOpts{
		Logger:           g.logger,
		MetricsCollector: g.metricsCollector(),
		Latencies:        g.latencies,
		Drain:            time.Duration(g.cfg.Drain),
		DefaultDeadline:  g.cfg.Deadline(),
	})

	reporter := NewStatsReporter(g.counters, g.gate, g.latencies, g.logger)
	statsCtx, statsCancel := context.WithCancel(ctx)
	statsDone := make(chan struct{})
	go func() {
		defer close(statsDone)
		interval := time.Duration(g.cfg.StatsInterval)
		_ = service.NewPeriodicWorkerWithOpts(reporter, interval, g.logger.With(log.String("worker", "stats")),
			service.PeriodicWorkerOpts{InitialDelay: interval}).Run(statsCtx)
	}()
	defer func() {
		statsCancel()
		<-statsDone
	}()

	g.running.Store(true)
	defer g.running.Store(false)

	if err = runner.RunScript(ctx, g.cfg.Script(), g.cfg.Loop); err != nil {
		return err
	}
	_ = reporter.Run(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		g.logger.Info("load script interrupted", log.Error(ctxErr))
		return nil
	}
	g.logger.Info("load script finished")
	return nil
}

func (g *Generator) dial() ([]*grpc.ClientConn, error) {
	conns := make([]*grpc.ClientConn, 0, g.cfg.Connections)
	for i := 0; i < g.cfg.Connections; i++ {
		conn, err := grpc.NewClient(g.cfg.Target, g.dialOpts...)
		if err != nil {
			var closeErrs []error
			for _, c := range conns {
				closeErrs = append(closeErrs, c.Close())
			}
			return nil, errors.Join(fmt.Errorf("create client connection to %s: %w", g.cfg.Target, err),
				errors.Join(closeErrs...))
		}
		conns = append(conns, conn)
	}
	return conns, nil
}

func (g *Generator) metricsCollector() MetricsCollector {
	if g.metrics == nil {
		return disabledMetrics{}
	}
	return g.metrics
}

// Stats returns the current counters.
func (g *Generator) Stats() StatsSnapshot {
	snap := g.counters.Snapshot(g.gate)
	snap.Latency = g.latencies.Summary()
	return snap
}

// HealthCheck reports whether the load script is running.
func (g *Generator) HealthCheck(_ context.Context) (httpserver.HealthCheckResult, error) {
	status := httpserver.HealthCheckStatusOK
	if !g.running.Load() {
		status = httpserver.HealthCheckStatusFail
	}
	return httpserver.HealthCheckResult{HealthCheckComponent: status}, nil
}

// MustRegisterMetrics registers metrics in Prometheus client and panics if any error occurs.
func (g *Generator) MustRegisterMetrics() {
	if g.metrics != nil {
		g.metrics.MustRegister()
	}
}

// UnregisterMetrics unregisters metrics in Prometheus client.
func (g *Generator) UnregisterMetrics() {
	if g.metrics != nil {
		g.metrics.Unregister()
	}
}
