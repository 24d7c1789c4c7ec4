/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/grpc-backpressure-lab/internal/appinfo"
)

const (
	metricsLabelLimiter = "limiter"
	metricsLabelService = "service"
	metricsLabelOutcome = "outcome"
)

// DefaultLatencyBuckets is default buckets (in milliseconds) into which latency samples are counted.
var DefaultLatencyBuckets = []float64{1, 2, 5, 10, 25, 50, 100, 200, 500, 1000, 2000}

// MetricsCollector is an interface for collecting metrics of the limiter.
type MetricsCollector interface {
	SetLimit(limiterName string, limit float64)
	ObserveSample(serviceID string, latency time.Duration, outcome Outcome)
}

// PrometheusMetrics represents collector of the limiter's metrics.
type PrometheusMetrics struct {
	Limit     *prometheus.GaugeVec
	Latencies *prometheus.HistogramVec
	Samples   *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics.
func NewPrometheusMetrics(namespace string, constLabels prometheus.Labels) *PrometheusMetrics {
	constLabels = appinfo.AddPrometheusVersionLabel(constLabels)
	return &PrometheusMetrics{
		Limit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "drl_limit",
			Help:        "Current concurrency limit estimate.",
			ConstLabels: constLabels,
		}, []string{metricsLabelLimiter}),
		Latencies: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "drl_latency_ms",
			Help:        "Latency samples fed to the limiter.",
			Buckets:     DefaultLatencyBuckets,
			ConstLabels: constLabels,
		}, []string{metricsLabelService}),
		Samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "drl_samples_total",
			Help:        "Number of samples fed to the limiter.",
			ConstLabels: constLabels,
		}, []string{metricsLabelService, metricsLabelOutcome}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.Limit, pm.Latencies, pm.Samples)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.Limit)
	prometheus.Unregister(pm.Latencies)
	prometheus.Unregister(pm.Samples)
}

// SetLimit sets the current limit estimate.
func (pm *PrometheusMetrics) SetLimit(limiterName string, limit float64) {
	pm.Limit.WithLabelValues(limiterName).Set(limit)
}

// ObserveSample observes the latency sample.
func (pm *PrometheusMetrics) ObserveSample(serviceID string, latency time.Duration, outcome Outcome) {
	pm.Latencies.WithLabelValues(serviceID).Observe(float64(latency.Microseconds()) / 1000)
	pm.Samples.WithLabelValues(serviceID, outcome.String()).Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) SetLimit(string, float64)                     {}
func (disabledMetrics) ObserveSample(string, time.Duration, Outcome) {}
