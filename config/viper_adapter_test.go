/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/stretchr/testify/require"
)

const testPhasesYAML = `
loadgen:
  deadline: 300
  maxSize: 4Mi
  mode: CPU
  phases:
    - name: warmup
      rate: 10
      duration: 5s
    - name: spike
      rate: 500
      duration: 1m
`

func TestViperAdapter_Getters(t *testing.T) {
	va := NewViperAdapter()
	require.NoError(t, va.SetFromReader(bytes.NewBufferString(testPhasesYAML), DataTypeYAML))

	deadline, err := va.GetInt("loadgen.deadline")
	require.NoError(t, err)
	require.Equal(t, 300, deadline)

	size, err := va.GetSizeInBytes("loadgen.maxSize")
	require.NoError(t, err)
	require.Equal(t, uint64(4*1024*1024), size)

	va.Set("loadgen.plainSize", 2048)
	size, err = va.GetSizeInBytes("loadgen.plainSize")
	require.NoError(t, err)
	require.Equal(t, uint64(2048), size)

	size, err = va.GetSizeInBytes("loadgen.missingSize")
	require.NoError(t, err)
	require.Zero(t, size)

	missing, err := va.GetStringSlice("loadgen.missingSlice")
	require.NoError(t, err)
	require.Nil(t, missing)

	mode, err := va.GetStringFromSet("loadgen.mode", []string{"sleep", "cpu"}, true)
	require.NoError(t, err)
	require.Equal(t, "CPU", mode)

	_, err = va.GetStringFromSet("loadgen.mode", []string{"sleep", "cpu"}, false)
	require.EqualError(t, err, `loadgen.mode: unknown value "CPU", should be one of [sleep cpu]`)

	_, err = va.GetInt("loadgen.mode")
	require.Error(t, err)

	dur, err := va.GetDuration("loadgen.missing")
	require.NoError(t, err)
	require.Zero(t, dur)
}

func TestViperAdapter_UnmarshalKey(t *testing.T) {
	type phase struct {
		Name     string        `mapstructure:"name"`
		Rate     int           `mapstructure:"rate"`
		Duration time.Duration `mapstructure:"duration"`
	}

	va := NewViperAdapter()
	require.NoError(t, va.SetFromReader(bytes.NewBufferString(testPhasesYAML), DataTypeYAML))

	var phases []phase
	err := NewKeyPrefixedDataProvider(va, "loadgen").UnmarshalKey("phases", &phases,
		WithDecodeHook(mapstructure.StringToTimeDurationHookFunc()))
	require.NoError(t, err)
	require.Equal(t, []phase{
		{Name: "warmup", Rate: 10, Duration: 5 * time.Second},
		{Name: "spike", Rate: 500, Duration: time.Minute},
	}, phases)
}

func TestViperAdapter_BindEnv(t *testing.T) {
	t.Setenv("TEST_STEADY_RPS", "250")

	va := NewViperAdapter()
	va.UseEnvVars("hello")
	dp := NewKeyPrefixedDataProvider(va, "loadgen")
	dp.SetDefault("steady.rate", 200)
	require.NoError(t, dp.BindEnv("steady.rate", "TEST_STEADY_RPS"))

	rate, err := dp.GetInt("steady.rate")
	require.NoError(t, err)
	require.Equal(t, 250, rate)

	require.Error(t, va.BindEnv("steady.rate"))
}
