/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"time"

	"github.com/acronis/grpc-backpressure-lab/config"
)

const cfgDefaultKeyPrefix = "metricsServer"

const (
	cfgKeyServerEnabled            = "enabled"
	cfgKeyServerAddress            = "address"
	cfgKeyServerPprof              = "pprof"
	cfgKeyServerTimeoutsWrite      = "timeouts.write"
	cfgKeyServerTimeoutsRead       = "timeouts.read"
	cfgKeyServerTimeoutsReadHeader = "timeouts.readHeader"
	cfgKeyServerTimeoutsIdle       = "timeouts.idle"
	cfgKeyServerTimeoutsShutdown   = "timeouts.shutdown"
)

// EnvServerAddress is the classic environment variable name for the metrics endpoint address.
const EnvServerAddress = "METRICS_ADDRESS"

const (
	defaultServerAddress            = ":9090"
	defaultServerTimeoutsWrite      = time.Minute
	defaultServerTimeoutsRead       = time.Second * 15
	defaultServerTimeoutsReadHeader = time.Second * 10
	defaultServerTimeoutsIdle       = time.Minute
	defaultServerTimeoutsShutdown   = time.Second * 5
)

// Config represents a set of configuration parameters for HTTPServer.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Address  string         `mapstructure:"address" yaml:"address" json:"address"`
	Pprof    bool           `mapstructure:"pprof" yaml:"pprof" json:"pprof"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`

	keyPrefix       string
	defaultAddress  string
	defaultDisabled bool
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix       string
	defaultAddress  string
	defaultDisabled bool
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
// This prefix will be used by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// WithDefaultAddress overrides the address used when nothing is configured.
func WithDefaultAddress(address string) ConfigOption {
	return func(o *configOptions) {
		o.defaultAddress = address
	}
}

// WithDefaultEnabled overrides whether the server is enabled when nothing is configured.
func WithDefaultEnabled(enabled bool) ConfigOption {
	return func(o *configOptions) {
		o.defaultDisabled = !enabled
	}
}

func makeConfigOptions(options []ConfigOption) configOptions {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix, defaultAddress: defaultServerAddress}
	for _, opt := range options {
		opt(&opts)
	}
	return opts
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	opts := makeConfigOptions(options)
	return &Config{keyPrefix: opts.keyPrefix, defaultAddress: opts.defaultAddress, defaultDisabled: opts.defaultDisabled}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	cfg := NewConfig(options...)
	cfg.Enabled = !cfg.defaultDisabled
	cfg.Address = cfg.defaultAddress
	cfg.Timeouts = TimeoutsConfig{
		Write:      config.TimeDuration(defaultServerTimeoutsWrite),
		Read:       config.TimeDuration(defaultServerTimeoutsRead),
		ReadHeader: config.TimeDuration(defaultServerTimeoutsReadHeader),
		Idle:       config.TimeDuration(defaultServerTimeoutsIdle),
		Shutdown:   config.TimeDuration(defaultServerTimeoutsShutdown),
	}
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for HTTPServer in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	defaultAddress := c.defaultAddress
	if defaultAddress == "" {
		defaultAddress = defaultServerAddress
	}
	dp.SetDefault(cfgKeyServerEnabled, !c.defaultDisabled)
	dp.SetDefault(cfgKeyServerAddress, defaultAddress)
	dp.SetDefault(cfgKeyServerPprof, false)

	dp.SetDefault(cfgKeyServerTimeoutsWrite, defaultServerTimeoutsWrite)
	dp.SetDefault(cfgKeyServerTimeoutsRead, defaultServerTimeoutsRead)
	dp.SetDefault(cfgKeyServerTimeoutsReadHeader, defaultServerTimeoutsReadHeader)
	dp.SetDefault(cfgKeyServerTimeoutsIdle, defaultServerTimeoutsIdle)
	dp.SetDefault(cfgKeyServerTimeoutsShutdown, defaultServerTimeoutsShutdown)

	_ = dp.BindEnv(cfgKeyServerAddress, EnvServerAddress)
}

// TimeoutsConfig represents a set of configuration parameters for HTTPServer relating to timeouts.
type TimeoutsConfig struct {
	Write      config.TimeDuration `mapstructure:"write" yaml:"write" json:"write"`
	Read       config.TimeDuration `mapstructure:"read" yaml:"read" json:"read"`
	ReadHeader config.TimeDuration `mapstructure:"readHeader" yaml:"readHeader" json:"readHeader"`
	Idle       config.TimeDuration `mapstructure:"idle" yaml:"idle" json:"idle"`
	Shutdown   config.TimeDuration `mapstructure:"shutdown" yaml:"shutdown" json:"shutdown"`
}

// Set sets timeout server configuration values from config.DataProvider.
// Implements config.Config interface.
func (t *TimeoutsConfig) Set(dp config.DataProvider) error {
	var err error
	var dur time.Duration

	if dur, err = dp.GetDuration(cfgKeyServerTimeoutsWrite); err != nil {
		return err
	}
	t.Write = config.TimeDuration(dur)

	if dur, err = dp.GetDuration(cfgKeyServerTimeoutsRead); err != nil {
		return err
	}
	t.Read = config.TimeDuration(dur)

	if dur, err = dp.GetDuration(cfgKeyServerTimeoutsReadHeader); err != nil {
		return err
	}
	t.ReadHeader = config.TimeDuration(dur)

	if dur, err = dp.GetDuration(cfgKeyServerTimeoutsIdle); err != nil {
		return err
	}
	t.Idle = config.TimeDuration(dur)

	if dur, err = dp.GetDuration(cfgKeyServerTimeoutsShutdown); err != nil {
		return err
	}
	t.Shutdown = config.TimeDuration(dur)

	return nil
}

// Set sets HTTPServer configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Enabled, err = dp.GetBool(cfgKeyServerEnabled); err != nil {
		return err
	}
	if c.Address, err = dp.GetString(cfgKeyServerAddress); err != nil {
		return err
	}
	if c.Enabled && c.Address == "" {
		return dp.WrapKeyErr(cfgKeyServerAddress, fmt.Errorf("should be set when the server is enabled"))
	}
	if c.Pprof, err = dp.GetBool(cfgKeyServerPprof); err != nil {
		return err
	}
	return c.Timeouts.Set(dp)
}
