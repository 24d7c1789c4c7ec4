/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package helloserver

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/grpc-backpressure-lab/internal/appinfo"
)

// ConfigMetrics exports the effective server settings, so dashboards can show them next to the load.
type ConfigMetrics struct {
	WorkMs        prometheus.Gauge
	Workers       prometheus.Gauge
	QueueCapacity prometheus.Gauge
}

// NewConfigMetrics creates a new instance of ConfigMetrics.
func NewConfigMetrics(namespace string, constLabels prometheus.Labels) *ConfigMetrics {
	constLabels = appinfo.AddPrometheusVersionLabel(constLabels)
	newGauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: name, Help: help, ConstLabels: constLabels})
	}
	return &ConfigMetrics{
		WorkMs:        newGauge("hello_work_ms", "Configured simulated work per call in milliseconds."),
		Workers:       newGauge("hello_workers", "Configured number of workers."),
		QueueCapacity: newGauge("hello_queue_capacity", "Configured capacity of the admission queue."),
	}
}

// Observe sets the gauges from the configuration.
func (cm *ConfigMetrics) Observe(cfg *Config) {
	cm.WorkMs.Set(float64(cfg.Work.DurationMs))
	cm.Workers.Set(float64(cfg.Workers))
	cm.QueueCapacity.Set(float64(cfg.Queue))
}

func (cm *ConfigMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{cm.WorkMs, cm.Workers, cm.QueueCapacity}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (cm *ConfigMetrics) MustRegister() {
	prometheus.MustRegister(cm.collectors()...)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (cm *ConfigMetrics) Unregister() {
	for _, c := range cm.collectors() {
		prometheus.Unregister(c)
	}
}
