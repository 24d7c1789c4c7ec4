/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package loadgen

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/acronis/grpc-backpressure-lab/config"
)

const cfgDefaultKeyPrefix = "loadgen"

const (
	cfgKeyTarget                = "target"
	cfgKeySteadyRate            = "steady.rate"
	cfgKeySteadyDuration        = "steady.duration"
	cfgKeyBurstRate             = "burst.rate"
	cfgKeyBurstDuration         = "burst.duration"
	cfgKeyRecoveryRate          = "recovery.rate"
	cfgKeyRecoveryDuration      = "recovery.duration"
	cfgKeyDeadline              = "deadline"
	cfgKeyMaxInflight           = "maxInflight"
	cfgKeyConnections           = "connections"
	cfgKeyFailEvery             = "failEvery"
	cfgKeyCallbackWorkers       = "callbackWorkers"
	cfgKeyLoop                  = "loop"
	cfgKeyDrain                 = "drain"
	cfgKeyStatsInterval         = "statsInterval"
	cfgKeyReadinessEnabled      = "readiness.enabled"
	cfgKeyReadinessPolicy       = "readiness.policy"
	cfgKeyReadinessInterval     = "readiness.interval"
	cfgKeyReadinessMaxAttempts  = "readiness.maxAttempts"
	cfgKeyReadinessProbeTimeout = "readiness.probeTimeout"
	cfgKeyPhases                = "phases"
)

// Classic environment variable names of the load generator settings.
const (
	EnvTarget          = "TARGET"
	EnvSteadyRPS       = "STEADY_RPS"
	EnvSteadySec       = "STEADY_SEC"
	EnvBurstRPS        = "BURST_RPS"
	EnvBurstSec        = "BURST_SEC"
	EnvRecoverySec     = "RECOVERY_SEC"
	EnvDeadlineMs      = "DEADLINE_MS"
	EnvMaxInflight     = "MAX_INFLIGHT"
	EnvChannels        = "CHANNELS"
	EnvFailEvery       = "FAIL_EVERY"
	EnvCallbackWorkers = "CALLBACK_WORKERS"
	EnvLoop            = "LOOP"
)

const (
	defaultTarget                = "localhost:50051"
	defaultSteadyRate            = 200
	defaultSteadySec             = 60
	defaultBurstRate             = 2000
	defaultBurstSec              = 90
	defaultRecoverySec           = 60
	defaultDeadlineMs            = 300
	defaultMaxInflight           = 200
	defaultConnections           = 4
	defaultFailEvery             = 50
	defaultCallbackWorkers       = 16
	defaultLoop                  = true
	defaultDrain                 = time.Second
	defaultStatsInterval         = 5 * time.Second
	defaultReadinessEnabled      = true
	defaultReadinessPolicy       = ReadinessPolicyConstant
	defaultReadinessInterval     = 200 * time.Millisecond
	defaultReadinessMaxAttempts  = 25
	defaultReadinessProbeTimeout = time.Second
)

// Names of the scripted phases.
const (
	PhaseNameSteady   = "steady"
	PhaseNameBurst    = "burst"
	PhaseNameRecovery = "recovery"
)

// Config represents the settings of the load generator.
type Config struct {
	Target          string              `mapstructure:"target" yaml:"target" json:"target"`
	Steady          PhaseConfig         `mapstructure:"steady" yaml:"steady" json:"steady"`
	Burst           PhaseConfig         `mapstructure:"burst" yaml:"burst" json:"burst"`
	Recovery        PhaseConfig         `mapstructure:"recovery" yaml:"recovery" json:"recovery"`
	DeadlineMs      int                 `mapstructure:"deadline" yaml:"deadline" json:"deadline"`
	MaxInflight     int                 `mapstructure:"maxInflight" yaml:"maxInflight" json:"maxInflight"`
	Connections     int                 `mapstructure:"connections" yaml:"connections" json:"connections"`
	FailEvery       int                 `mapstructure:"failEvery" yaml:"failEvery" json:"failEvery"`
	CallbackWorkers int                 `mapstructure:"callbackWorkers" yaml:"callbackWorkers" json:"callbackWorkers"`
	Loop            bool                `mapstructure:"loop" yaml:"loop" json:"loop"`
	Drain           config.TimeDuration `mapstructure:"drain" yaml:"drain" json:"drain"`
	StatsInterval   config.TimeDuration `mapstructure:"statsInterval" yaml:"statsInterval" json:"statsInterval"`
	Readiness       ReadinessConfig     `mapstructure:"readiness" yaml:"readiness" json:"readiness"`

	// Phases replaces the steady/burst/recovery script if not empty.
	Phases []Phase `mapstructure:"phases" yaml:"phases" json:"phases"`

	keyPrefix string
}

// PhaseConfig describes one of the scripted phases.
type PhaseConfig struct {
	Rate int `mapstructure:"rate" yaml:"rate" json:"rate"`
	// DurationSec is the phase duration in seconds.
	DurationSec int `mapstructure:"duration" yaml:"duration" json:"duration"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{keyPrefix: cfgDefaultKeyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		keyPrefix:       cfgDefaultKeyPrefix,
		Target:          defaultTarget,
		Steady:          PhaseConfig{Rate: defaultSteadyRate, DurationSec: defaultSteadySec},
		Burst:           PhaseConfig{Rate: defaultBurstRate, DurationSec: defaultBurstSec},
		Recovery:        PhaseConfig{Rate: defaultSteadyRate, DurationSec: defaultRecoverySec},
		DeadlineMs:      defaultDeadlineMs,
		MaxInflight:     defaultMaxInflight,
		Connections:     defaultConnections,
		FailEvery:       defaultFailEvery,
		CallbackWorkers: defaultCallbackWorkers,
		Loop:            defaultLoop,
		Drain:           config.TimeDuration(defaultDrain),
		StatsInterval:   config.TimeDuration(defaultStatsInterval),
		Readiness: ReadinessConfig{
			Enabled:      defaultReadinessEnabled,
			Policy:       defaultReadinessPolicy,
			Interval:     config.TimeDuration(defaultReadinessInterval),
			MaxAttempts:  defaultReadinessMaxAttempts,
			ProbeTimeout: config.TimeDuration(defaultReadinessProbeTimeout),
		},
	}
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
	dp.SetDefault(cfgKeyTarget, defaultTarget)
	dp.SetDefault(cfgKeySteadyRate, defaultSteadyRate)
	dp.SetDefault(cfgKeySteadyDuration, defaultSteadySec)
	dp.SetDefault(cfgKeyBurstRate, defaultBurstRate)
	dp.SetDefault(cfgKeyBurstDuration, defaultBurstSec)
	dp.SetDefault(cfgKeyRecoveryDuration, defaultRecoverySec)
	dp.SetDefault(cfgKeyDeadline, defaultDeadlineMs)
	dp.SetDefault(cfgKeyMaxInflight, defaultMaxInflight)
	dp.SetDefault(cfgKeyConnections, defaultConnections)
	dp.SetDefault(cfgKeyFailEvery, defaultFailEvery)
	dp.SetDefault(cfgKeyCallbackWorkers, defaultCallbackWorkers)
	dp.SetDefault(cfgKeyLoop, defaultLoop)
	dp.SetDefault(cfgKeyDrain, defaultDrain)
	dp.SetDefault(cfgKeyStatsInterval, defaultStatsInterval)
	dp.SetDefault(cfgKeyReadinessEnabled, defaultReadinessEnabled)
	dp.SetDefault(cfgKeyReadinessPolicy, defaultReadinessPolicy)
	dp.SetDefault(cfgKeyReadinessInterval, defaultReadinessInterval)
	dp.SetDefault(cfgKeyReadinessMaxAttempts, defaultReadinessMaxAttempts)
	dp.SetDefault(cfgKeyReadinessProbeTimeout, defaultReadinessProbeTimeout)

	for key, env := range map[string]string{
		cfgKeyTarget:           EnvTarget,
		cfgKeySteadyRate:       EnvSteadyRPS,
		cfgKeySteadyDuration:   EnvSteadySec,
		cfgKeyBurstRate:        EnvBurstRPS,
		cfgKeyBurstDuration:    EnvBurstSec,
		cfgKeyRecoveryDuration: EnvRecoverySec,
		cfgKeyDeadline:         EnvDeadlineMs,
		cfgKeyMaxInflight:      EnvMaxInflight,
		cfgKeyConnections:      EnvChannels,
		cfgKeyFailEvery:        EnvFailEvery,
		cfgKeyCallbackWorkers:  EnvCallbackWorkers,
		cfgKeyLoop:             EnvLoop,
	} {
		_ = dp.BindEnv(key, env)
	}
}

// Set sets the configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Target, err = dp.GetString(cfgKeyTarget); err != nil {
		return err
	}
	if c.Target == "" {
		return dp.WrapKeyErr(cfgKeyTarget, fmt.Errorf("should not be empty"))
	}

	if err = c.setScriptedPhases(dp); err != nil {
		return err
	}

	if c.DeadlineMs, err = config.GetPositiveInt(dp, cfgKeyDeadline); err != nil {
		return err
	}
	if c.MaxInflight, err = config.GetPositiveInt(dp, cfgKeyMaxInflight); err != nil {
		return err
	}
	if c.Connections, err = config.GetPositiveInt(dp, cfgKeyConnections); err != nil {
		return err
	}
	if c.FailEvery, err = config.GetNonNegativeInt(dp, cfgKeyFailEvery); err != nil {
		return err
	}
	if c.CallbackWorkers, err = config.GetPositiveInt(dp, cfgKeyCallbackWorkers); err != nil {
		return err
	}
	if c.Loop, err = dp.GetBool(cfgKeyLoop); err != nil {
		return err
	}

	var dur time.Duration
	if dur, err = dp.GetDuration(cfgKeyDrain); err != nil {
		return err
	}
	c.Drain = config.TimeDuration(dur)
	if dur, err = dp.GetDuration(cfgKeyStatsInterval); err != nil {
		return err
	}
	if dur <= 0 {
		return dp.WrapKeyErr(cfgKeyStatsInterval, fmt.Errorf("should be positive"))
	}
	c.StatsInterval = config.TimeDuration(dur)

	if err = c.setReadiness(dp); err != nil {
		return err
	}
	return c.setPhases(dp)
}

// setScriptedPhases accepts any integers: a phase with a non-positive rate or duration is skipped when run.
func (c *Config) setScriptedPhases(dp config.DataProvider) error {
	var err error
	for _, f := range []struct {
		key string
		dst *int
	}{
		{cfgKeySteadyRate, &c.Steady.Rate},
		{cfgKeySteadyDuration, &c.Steady.DurationSec},
		{cfgKeyBurstRate, &c.Burst.Rate},
		{cfgKeyBurstDuration, &c.Burst.DurationSec},
		{cfgKeyRecoveryDuration, &c.Recovery.DurationSec},
	} {
		if *f.dst, err = dp.GetInt(f.key); err != nil {
			return err
		}
	}
	c.Recovery.Rate = c.Steady.Rate
	if dp.IsSet(cfgKeyRecoveryRate) {
		if c.Recovery.Rate, err = dp.GetInt(cfgKeyRecoveryRate); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) setReadiness(dp config.DataProvider) error {
	var err error
	if c.Readiness.Enabled, err = dp.GetBool(cfgKeyReadinessEnabled); err != nil {
		return err
	}
	if c.Readiness.Policy, err = dp.GetStringFromSet(
		cfgKeyReadinessPolicy, []string{ReadinessPolicyConstant, ReadinessPolicyExponential}, true,
	); err != nil {
		return err
	}
	c.Readiness.Policy = strings.ToLower(c.Readiness.Policy)

	var dur time.Duration
	if dur, err = dp.GetDuration(cfgKeyReadinessInterval); err != nil {
		return err
	}
	if dur <= 0 {
		return dp.WrapKeyErr(cfgKeyReadinessInterval, fmt.Errorf("should be positive"))
	}
	c.Readiness.Interval = config.TimeDuration(dur)

	if c.Readiness.MaxAttempts, err = config.GetPositiveInt(dp, cfgKeyReadinessMaxAttempts); err != nil {
		return err
	}

	if dur, err = dp.GetDuration(cfgKeyReadinessProbeTimeout); err != nil {
		return err
	}
	if dur <= 0 {
		return dp.WrapKeyErr(cfgKeyReadinessProbeTimeout, fmt.Errorf("should be positive"))
	}
	c.Readiness.ProbeTimeout = config.TimeDuration(dur)
	return nil
}

func (c *Config) setPhases(dp config.DataProvider) error {
	c.Phases = nil
	if !dp.IsSet(cfgKeyPhases) {
		return nil
	}
	var phases []Phase
	if err := dp.UnmarshalKey(
		cfgKeyPhases, &phases, config.WithDecodeHook(mapstructure.StringToTimeDurationHookFunc()),
	); err != nil {
		return err
	}
	for i := range phases {
		if err := phases[i].validate(); err != nil {
			return dp.WrapKeyErr(fmt.Sprintf("%s[%d]", cfgKeyPhases, i), err)
		}
	}
	c.Phases = phases
	return nil
}

// Deadline returns the per-call deadline.
func (c *Config) Deadline() time.Duration {
	return time.Duration(c.DeadlineMs) * time.Millisecond
}

// Script returns the phases to run: the custom ones if configured, steady, burst and recovery otherwise.
// Phases without their own deadline get the configured one.
func (c *Config) Script() []Phase {
	var phases []Phase
	if len(c.Phases) != 0 {
		phases = make([]Phase, len(c.Phases))
		copy(phases, c.Phases)
	} else {
		phases = []Phase{
			{Name: PhaseNameSteady, Rate: c.Steady.Rate, Duration: secondsToDuration(c.Steady.DurationSec)},
			{Name: PhaseNameBurst, Rate: c.Burst.Rate, Duration: secondsToDuration(c.Burst.DurationSec)},
			{Name: PhaseNameRecovery, Rate: c.Recovery.Rate, Duration: secondsToDuration(c.Recovery.DurationSec)},
		}
	}
	for i := range phases {
		if phases[i].Deadline == 0 {
			phases[i].Deadline = c.Deadline()
		}
	}
	return phases
}

// String returns a short human-readable summary printed at start-up.
func (c *Config) String() string {
	script := "steady/burst/recovery"
	if len(c.Phases) != 0 {
		names := make([]string, 0, len(c.Phases))
		for _, p := range c.Phases {
			names = append(names, p.Name)
		}
		script = strings.Join(names, "/")
	}
	return fmt.Sprintf("target=%s script=%s deadlineMs=%d maxInflight=%d channels=%d failEvery=%d callbackWorkers=%d loop=%t",
		c.Target, script, c.DeadlineMs, c.MaxInflight, c.Connections, c.FailEvery, c.CallbackWorkers, c.Loop)
}

func secondsToDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
