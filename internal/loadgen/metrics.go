/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package loadgen

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/codes"

	"github.com/acronis/grpc-backpressure-lab/internal/appinfo"
)

// Tick outcomes.
const (
	TickOutcomeDispatched    = "dispatched"
	TickOutcomeRejectedByCap = "rejected_by_cap"
)

// MetricsCollector is an interface for collecting metrics of the load generator.
type MetricsCollector interface {
	// ObserveTick counts a scheduler tick with its outcome.
	ObserveTick(outcome string)

	// ObserveCall observes a finished call.
	ObserveCall(code codes.Code, latency time.Duration)

	// SetInflight sets the number of calls in flight.
	SetInflight(n int)
}

// PrometheusMetrics represents collector of the load generator's metrics.
type PrometheusMetrics struct {
	Calls    *prometheus.CounterVec
	Latency  prometheus.Histogram
	Inflight prometheus.Gauge
	Ticks    *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics.
func NewPrometheusMetrics(namespace string, constLabels prometheus.Labels) *PrometheusMetrics {
	constLabels = appinfo.AddPrometheusVersionLabel(constLabels)
	return &PrometheusMetrics{
		Calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "loadgen_calls_total",
			Help:        "Number of finished calls by status code.",
			ConstLabels: constLabels,
		}, []string{"code"}),
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "loadgen_call_latency_seconds",
			Help:        "Latency of finished calls observed by the client.",
			Buckets:     []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.3, 0.5, 1, 2.5},
			ConstLabels: constLabels,
		}),
		Inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "loadgen_inflight",
			Help:        "Number of calls in flight.",
			ConstLabels: constLabels,
		}),
		Ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "loadgen_ticks_total",
			Help:        "Number of scheduler ticks by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
	}
}

func (pm *PrometheusMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{pm.Calls, pm.Latency, pm.Inflight, pm.Ticks}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.collectors()...)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	for _, c := range pm.collectors() {
		prometheus.Unregister(c)
	}
}

// ObserveTick counts a scheduler tick with its outcome.
func (pm *PrometheusMetrics) ObserveTick(outcome string) {
	pm.Ticks.WithLabelValues(outcome).Inc()
}

// ObserveCall observes a finished call.
func (pm *PrometheusMetrics) ObserveCall(code codes.Code, latency time.Duration) {
	pm.Calls.WithLabelValues(code.String()).Inc()
	pm.Latency.Observe(latency.Seconds())
}

// SetInflight sets the number of calls in flight.
func (pm *PrometheusMetrics) SetInflight(n int) {
	pm.Inflight.Set(float64(n))
}

type disabledMetrics struct{}

func (disabledMetrics) ObserveTick(string)                    {}
func (disabledMetrics) ObserveCall(codes.Code, time.Duration) {}
func (disabledMetrics) SetInflight(int)                       {}
