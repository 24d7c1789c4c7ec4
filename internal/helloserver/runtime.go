/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package helloserver

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/grpc-backpressure-lab/internal/admission"
	"github.com/acronis/grpc-backpressure-lab/internal/hello"
	"github.com/acronis/grpc-backpressure-lab/internal/limiter"
	"github.com/acronis/grpc-backpressure-lab/log"
	"github.com/acronis/grpc-backpressure-lab/service"
)

// Runtime holds the objects shared by the server parts: the admission controller,
// the limiter fed by every finished call and the simulated work.
// It is built once at start-up and passed explicitly to whoever needs it.
type Runtime struct {
	Controller *admission.Controller
	Limiter    limiter.Limiter
	Work       hello.WorkSimulator

	admissionMetrics *admission.PrometheusMetrics
	limiterMetrics   *limiter.PrometheusMetrics
	configMetrics    *ConfigMetrics
}

var _ service.MetricsRegisterer = (*Runtime)(nil)

// RuntimeOpts contains optional parameters for constructing Runtime.
type RuntimeOpts struct {
	MetricsNamespace   string
	MetricsConstLabels prometheus.Labels
	StopTimeout        time.Duration
}

// NewRuntime creates the Runtime according to the configuration.
func NewRuntime(cfg *Config, logger log.FieldLogger, opts RuntimeOpts) (*Runtime, error) {
	rt := &Runtime{
		admissionMetrics: admission.NewPrometheusMetrics(opts.MetricsNamespace, opts.MetricsConstLabels),
		limiterMetrics:   limiter.NewPrometheusMetrics(opts.MetricsNamespace, opts.MetricsConstLabels),
		configMetrics:    NewConfigMetrics(opts.MetricsNamespace, opts.MetricsConstLabels),
		Work:             hello.NewWorkSimulator(cfg.Work.Mode, time.Duration(cfg.Work.DurationMs)*time.Millisecond),
	}
	rt.configMetrics.Observe(cfg)

	var err error
	rt.Controller, err = admission.NewController(cfg.Workers, cfg.Queue, admission.Opts{
		Logger:           logger,
		MetricsCollector: rt.admissionMetrics,
		StopTimeout:      opts.StopTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create admission controller: %w", err)
	}

	rt.Limiter, err = limiter.New(cfg.Limiter, limiter.Opts{
		InflightProvider: rt.Controller.InUse,
		MetricsCollector: rt.limiterMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create limiter: %w", err)
	}
	return rt, nil
}

// MustRegisterMetrics registers metrics of all runtime parts in Prometheus client.
func (rt *Runtime) MustRegisterMetrics() {
	rt.admissionMetrics.MustRegister()
	rt.limiterMetrics.MustRegister()
	rt.configMetrics.MustRegister()
}

// UnregisterMetrics unregisters metrics of all runtime parts in Prometheus client.
func (rt *Runtime) UnregisterMetrics() {
	rt.admissionMetrics.Unregister()
	rt.limiterMetrics.Unregister()
	rt.configMetrics.Unregister()
}

// NewSampler returns a worker that refreshes the gauges of the admission controller
// and logs the current state at debug level. It is supposed to be run by service.PeriodicWorker.
func (rt *Runtime) NewSampler(logger log.FieldLogger) service.Worker {
	return service.WorkerFunc(func(ctx context.Context) error {
		rt.Controller.ObserveMetrics()
		logger.Debug("admission state",
			log.Int("queue_depth", rt.Controller.QueueDepth()),
			log.Int("active_workers", rt.Controller.ActiveWorkers()),
			log.Uint64("rejected", rt.Controller.RejectedCount()),
			log.Uint64("completed", rt.Controller.CompletedCount()),
			log.Float64("limit", rt.Limiter.CurrentLimit()),
		)
		return nil
	})
}
