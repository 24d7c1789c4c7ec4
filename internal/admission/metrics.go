/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/grpc-backpressure-lab/internal/appinfo"
)

// MetricsCollector is an interface for collecting metrics of the Controller.
type MetricsCollector interface {
	// SetPoolSize sets the static size parameters of the Controller.
	SetPoolSize(workers, queueCapacity int)

	// ObserveState observes the current queue depth and the number of active workers.
	ObserveState(queueDepth, activeWorkers int)

	// IncRejected increments the counter of rejected submissions.
	IncRejected()

	// IncCompleted increments the counter of finished tasks.
	IncCompleted()
}

// PrometheusMetrics represents collector of the Controller's metrics.
type PrometheusMetrics struct {
	QueueDepth    prometheus.Gauge
	ActiveWorkers prometheus.Gauge
	PoolSize      prometheus.Gauge
	QueueCapacity prometheus.Gauge
	Rejected      prometheus.Counter
	Completed     prometheus.Counter
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics.
func NewPrometheusMetrics(namespace string, constLabels prometheus.Labels) *PrometheusMetrics {
	constLabels = appinfo.AddPrometheusVersionLabel(constLabels)
	newGauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: name, Help: help, ConstLabels: constLabels})
	}
	newCounter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: name, Help: help, ConstLabels: constLabels})
	}
	return &PrometheusMetrics{
		QueueDepth:    newGauge("hello_exec_queue_depth", "Number of accepted calls waiting for a worker."),
		ActiveWorkers: newGauge("hello_exec_active_threads", "Number of workers executing a call."),
		PoolSize:      newGauge("hello_exec_pool_size", "Number of workers."),
		QueueCapacity: newGauge("hello_exec_queue_capacity", "Capacity of the queue of accepted calls."),
		Rejected:      newCounter("hello_exec_rejected_total", "Number of calls rejected because the server is saturated."),
		Completed:     newCounter("hello_exec_completed_total", "Number of calls executed by workers."),
	}
}

func (pm *PrometheusMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		pm.QueueDepth, pm.ActiveWorkers, pm.PoolSize, pm.QueueCapacity, pm.Rejected, pm.Completed,
	}
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

// SetPoolSize sets the static size parameters of the Controller.
func (pm *PrometheusMetrics) SetPoolSize(workers, queueCapacity int) {
	pm.PoolSize.Set(float64(workers))
	pm.QueueCapacity.Set(float64(queueCapacity))
}

// ObserveState observes the current queue depth and the number of active workers.
func (pm *PrometheusMetrics) ObserveState(queueDepth, activeWorkers int) {
	pm.QueueDepth.Set(float64(queueDepth))
	pm.ActiveWorkers.Set(float64(activeWorkers))
}

// IncRejected increments the counter of rejected submissions.
func (pm *PrometheusMetrics) IncRejected() {
	pm.Rejected.Inc()
}

// IncCompleted increments the counter of finished tasks.
func (pm *PrometheusMetrics) IncCompleted() {
	pm.Completed.Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) SetPoolSize(int, int)  {}
func (disabledMetrics) ObserveState(int, int) {}
func (disabledMetrics) IncRejected()          {}
func (disabledMetrics) IncCompleted()         {}
