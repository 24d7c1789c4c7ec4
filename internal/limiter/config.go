/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import (
	"fmt"
	"strings"
	"time"

	"github.com/acronis/grpc-backpressure-lab/config"
)

// Limiter algorithms.
const (
	AlgorithmAIMD   = "aimd"
	AlgorithmStatic = "static"
	AlgorithmNone   = "none"
)

const (
	cfgKeyAlgorithm    = "algorithm"
	cfgKeyMinimumLimit = "minimumLimit"
	cfgKeyStaticLimit  = "staticLimit"
	cfgKeyRTTTimeout   = "rttTimeout"
	cfgKeyBackoffRatio = "backoffRatio"
)

const (
	defaultMinimumLimit = 10
	defaultStaticLimit  = 20
	defaultRTTTimeout   = time.Millisecond * 500
	defaultBackoffRatio = 0.9
)

// Config represents a set of configuration parameters for the limiter.
type Config struct {
	Algorithm    string              `mapstructure:"algorithm" yaml:"algorithm" json:"algorithm"`
	MinimumLimit int                 `mapstructure:"minimumLimit" yaml:"minimumLimit" json:"minimumLimit"`
	StaticLimit  int                 `mapstructure:"staticLimit" yaml:"staticLimit" json:"staticLimit"`
	RTTTimeout   config.TimeDuration `mapstructure:"rttTimeout" yaml:"rttTimeout" json:"rttTimeout"`
	BackoffRatio float64             `mapstructure:"backoffRatio" yaml:"backoffRatio" json:"backoffRatio"`
}

var _ config.Config = (*Config)(nil)

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Algorithm:    AlgorithmAIMD,
		MinimumLimit: defaultMinimumLimit,
		StaticLimit:  defaultStaticLimit,
		RTTTimeout:   config.TimeDuration(defaultRTTTimeout),
		BackoffRatio: defaultBackoffRatio,
	}
}

// SetProviderDefaults sets default configuration values for the limiter in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyAlgorithm, AlgorithmAIMD)
	dp.SetDefault(cfgKeyMinimumLimit, defaultMinimumLimit)
	dp.SetDefault(cfgKeyStaticLimit, defaultStaticLimit)
	dp.SetDefault(cfgKeyRTTTimeout, defaultRTTTimeout)
	dp.SetDefault(cfgKeyBackoffRatio, defaultBackoffRatio)
}

// Set sets the limiter configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Algorithm, err = dp.GetStringFromSet(
		cfgKeyAlgorithm, []string{AlgorithmAIMD, AlgorithmStatic, AlgorithmNone}, true,
	); err != nil {
		return err
	}
	c.Algorithm = strings.ToLower(c.Algorithm)

	if c.MinimumLimit, err = config.GetPositiveInt(dp, cfgKeyMinimumLimit); err != nil {
		return err
	}
	if c.StaticLimit, err = config.GetPositiveInt(dp, cfgKeyStaticLimit); err != nil {
		return err
	}

	var rttTimeout time.Duration
	if rttTimeout, err = dp.GetDuration(cfgKeyRTTTimeout); err != nil {
		return err
	}
	if rttTimeout <= 0 {
		return dp.WrapKeyErr(cfgKeyRTTTimeout, fmt.Errorf("should be positive"))
	}
	c.RTTTimeout = config.TimeDuration(rttTimeout)

	if c.BackoffRatio, err = dp.GetFloat64(cfgKeyBackoffRatio); err != nil {
		return err
	}
	if c.BackoffRatio <= 0 || c.BackoffRatio >= 1 {
		return dp.WrapKeyErr(cfgKeyBackoffRatio, fmt.Errorf("should be in (0, 1) range, got %v", c.BackoffRatio))
	}
	return nil
}

// New creates a Limiter according to the configuration.
func New(cfg *Config, opts Opts) (Limiter, error) {
	switch cfg.Algorithm {
	case AlgorithmAIMD:
		return NewAIMD(AIMDConfig{
			MinimumLimit: cfg.MinimumLimit,
			RTTTimeout:   time.Duration(cfg.RTTTimeout),
			BackoffRatio: cfg.BackoffRatio,
		}, opts), nil
	case AlgorithmStatic:
		return NewStatic(cfg.StaticLimit, opts), nil
	case AlgorithmNone:
		return Noop{}, nil
	}
	return nil, fmt.Errorf("unknown limiter algorithm %q", cfg.Algorithm)
}
