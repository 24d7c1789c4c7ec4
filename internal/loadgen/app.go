/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package loadgen

import (
	"fmt"
	"time"

	"github.com/acronis/grpc-backpressure-lab/config"
	"github.com/acronis/grpc-backpressure-lab/httpserver"
	"github.com/acronis/grpc-backpressure-lab/log"
	"github.com/acronis/grpc-backpressure-lab/service"
)

const (
	defaultMetricsAddress = ":9091"
	generatorStopTimeout  = 10 * time.Second
)

// AppConfig is the configuration of the hello-loadgen binary.
type AppConfig struct {
	Log           *log.Config
	MetricsServer *httpserver.Config
	Loadgen       *Config
}

var _ config.Config = (*AppConfig)(nil)

// NewAppConfig creates a new instance of the AppConfig.
// The metrics endpoint of the load generator is disabled by default.
func NewAppConfig() *AppConfig {
	return &AppConfig{
		Log: log.NewConfig(),
		MetricsServer: httpserver.NewConfig(
			httpserver.WithDefaultAddress(defaultMetricsAddress), httpserver.WithDefaultEnabled(false)),
		Loadgen: NewConfig(),
	}
}

// SetProviderDefaults sets default configuration values of all parts of the AppConfig.
func (c *AppConfig) SetProviderDefaults(dp config.DataProvider) {
	config.CallSetProviderDefaultsForFields(c, dp)
}

// Set sets configuration values of all parts of the AppConfig.
func (c *AppConfig) Set(dp config.DataProvider) error {
	return config.CallSetForFields(c, dp)
}

// NewUnit builds the whole hello-loadgen: the Generator and, if enabled, the metrics HTTP server.
// The unit finishes on its own once a non-looping script is over.
func NewUnit(cfg *AppConfig, logger log.FieldLogger) (service.Unit, error) {
	var metrics *PrometheusMetrics
	if cfg.MetricsServer.Enabled {
		metrics = NewPrometheusMetrics("", nil)
	}
	gen, err := NewGenerator(cfg.Loadgen, logger, GeneratorOpts{Metrics: metrics})
	if err != nil {
		return nil, err
	}
	genUnit := service.NewWorkerUnitWithOpts(gen, service.WorkerUnitOpts{
		MetricsRegisterer:   gen,
		GracefulStopTimeout: generatorStopTimeout,
	})
	if !cfg.MetricsServer.Enabled {
		return genUnit, nil
	}
	metricsSrv, err := httpserver.New(cfg.MetricsServer, logger, httpserver.Opts{HealthCheck: gen.HealthCheck})
	if err != nil {
		return nil, fmt.Errorf("create metrics server: %w", err)
	}
	return service.NewCompositeUnit(genUnit, metricsSrv), nil
}
