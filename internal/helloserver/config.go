/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package helloserver

import (
	"fmt"

	"github.com/acronis/grpc-backpressure-lab/config"
	"github.com/acronis/grpc-backpressure-lab/grpcserver"
	"github.com/acronis/grpc-backpressure-lab/httpserver"
	"github.com/acronis/grpc-backpressure-lab/internal/hello"
	"github.com/acronis/grpc-backpressure-lab/internal/limiter"
	"github.com/acronis/grpc-backpressure-lab/log"
)

const cfgDefaultKeyPrefix = "server"

const (
	cfgKeyWorkers      = "workers"
	cfgKeyQueue        = "queue"
	cfgKeyWorkDuration = "work.duration"
	cfgKeyWorkMode     = "work.mode"
	cfgKeyLimiter      = "limiter"
)

// Classic environment variable names of the server settings.
const (
	EnvWorkers  = "WORKERS"
	EnvQueue    = "QUEUE"
	EnvWorkMs   = "WORK_MS"
	EnvWorkMode = "WORK_MODE"
)

const (
	defaultWorkers  = 8
	defaultQueue    = 50
	defaultWorkMs   = 0
	defaultWorkMode = hello.WorkModeSleep
)

// Config represents the settings of the admission controller, the simulated work and the limiter.
type Config struct {
	Workers int             `mapstructure:"workers" yaml:"workers" json:"workers"`
	Queue   int             `mapstructure:"queue" yaml:"queue" json:"queue"`
	Work    WorkConfig      `mapstructure:"work" yaml:"work" json:"work"`
	Limiter *limiter.Config `mapstructure:"limiter" yaml:"limiter" json:"limiter"`

	keyPrefix string
}

// WorkConfig describes the work simulated by every call.
type WorkConfig struct {
	// DurationMs is the duration of the work in milliseconds. Zero disables the simulation.
	DurationMs int            `mapstructure:"duration" yaml:"duration" json:"duration"`
	Mode       hello.WorkMode `mapstructure:"mode" yaml:"mode" json:"mode"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{keyPrefix: cfgDefaultKeyPrefix, Limiter: limiter.NewDefaultConfig()}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	cfg := NewConfig()
	cfg.Workers = defaultWorkers
	cfg.Queue = defaultQueue
	cfg.Work = WorkConfig{DurationMs: defaultWorkMs, Mode: defaultWorkMode}
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyWorkers, defaultWorkers)
	dp.SetDefault(cfgKeyQueue, defaultQueue)
	dp.SetDefault(cfgKeyWorkDuration, defaultWorkMs)
	dp.SetDefault(cfgKeyWorkMode, string(defaultWorkMode))
	_ = dp.BindEnv(cfgKeyWorkers, EnvWorkers)
	_ = dp.BindEnv(cfgKeyQueue, EnvQueue)
	_ = dp.BindEnv(cfgKeyWorkDuration, EnvWorkMs)
	_ = dp.BindEnv(cfgKeyWorkMode, EnvWorkMode)

	if c.Limiter == nil {
		c.Limiter = limiter.NewDefaultConfig()
	}
	c.Limiter.SetProviderDefaults(config.NewKeyPrefixedDataProvider(dp, cfgKeyLimiter))
}

// Set sets the configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Workers, err = config.GetPositiveInt(dp, cfgKeyWorkers); err != nil {
		return err
	}
	if c.Queue, err = config.GetNonNegativeInt(dp, cfgKeyQueue); err != nil {
		return err
	}
	if c.Work.DurationMs, err = config.GetNonNegativeInt(dp, cfgKeyWorkDuration); err != nil {
		return err
	}

	var mode string
	if mode, err = dp.GetString(cfgKeyWorkMode); err != nil {
		return err
	}
	if c.Work.Mode, err = hello.ParseWorkMode(mode); err != nil {
		return dp.WrapKeyErr(cfgKeyWorkMode, err)
	}

	if c.Limiter == nil {
		c.Limiter = limiter.NewDefaultConfig()
	}
	return c.Limiter.Set(config.NewKeyPrefixedDataProvider(dp, cfgKeyLimiter))
}

// String returns a short human-readable summary printed at start-up.
func (c *Config) String() string {
	return fmt.Sprintf("workers=%d queue=%d workMs=%d workMode=%s limiter=%s",
		c.Workers, c.Queue, c.Work.DurationMs, c.Work.Mode, c.Limiter.Algorithm)
}

// AppConfig is the configuration of the hello-server binary.
type AppConfig struct {
	Log           *log.Config
	GRPCServer    *grpcserver.Config
	MetricsServer *httpserver.Config
	Server        *Config
}

var _ config.Config = (*AppConfig)(nil)

// NewAppConfig creates a new instance of the AppConfig.
func NewAppConfig() *AppConfig {
	return &AppConfig{
		Log:           log.NewConfig(),
		GRPCServer:    grpcserver.NewConfig(),
		MetricsServer: httpserver.NewConfig(),
		Server:        NewConfig(),
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
