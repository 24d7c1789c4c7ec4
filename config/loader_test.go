/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testTargetConfig struct {
	Target  string
	Workers int
}

func (c *testTargetConfig) KeyPrefix() string {
	return "loadgen"
}

func (c *testTargetConfig) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("target", "localhost:50051")
	dp.SetDefault("workers", 8)
	_ = dp.BindEnv("target", "TEST_CFG_TARGET")
}

func (c *testTargetConfig) Set(dp DataProvider) error {
	var err error
	if c.Target, err = dp.GetString("target"); err != nil {
		return err
	}
	if c.Workers, err = GetPositiveInt(dp, "workers"); err != nil {
		return err
	}
	return nil
}

type testAppConfig struct {
	Loadgen *testTargetConfig
	Skipped *testTargetConfig
}

func (c *testAppConfig) SetProviderDefaults(dp DataProvider) {
	CallSetProviderDefaultsForFields(c, dp)
}

func (c *testAppConfig) Set(dp DataProvider) error {
	return CallSetForFields(c, dp)
}

func TestLoader_Load(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := &testTargetConfig{}
		require.NoError(t, NewLoader(NewViperAdapter()).Load(cfg))
		require.Equal(t, "localhost:50051", cfg.Target)
		require.Equal(t, 8, cfg.Workers)
	})

	t.Run("explicitly bound env var", func(t *testing.T) {
		t.Setenv("TEST_CFG_TARGET", "hello:1234")
		cfg := &testTargetConfig{}
		require.NoError(t, NewLoader(NewViperAdapter()).Load(cfg))
		require.Equal(t, "hello:1234", cfg.Target)
	})

	t.Run("prefixed env var", func(t *testing.T) {
		t.Setenv("TEST_LOADGEN_WORKERS", "3")
		cfg := &testTargetConfig{}
		require.NoError(t, NewDefaultLoader("test").Load(cfg))
		require.Equal(t, 3, cfg.Workers)
	})

	t.Run("invalid value", func(t *testing.T) {
		t.Setenv("TEST_LOADGEN_WORKERS", "0")
		cfg := &testTargetConfig{}
		err := NewDefaultLoader("test").Load(cfg)
		require.EqualError(t, err, "loadgen.workers: should be >= 1, got 0")
	})
}

func TestLoader_LoadFromReader(t *testing.T) {
	appCfg := &testAppConfig{Loadgen: &testTargetConfig{}}
	err := NewLoader(NewViperAdapter()).LoadFromReader(
		bytes.NewBufferString(`{"loadgen":{"target":"srv:50051","workers":2}}`), DataTypeJSON, appCfg)
	require.NoError(t, err)
	require.Equal(t, "srv:50051", appCfg.Loadgen.Target)
	require.Equal(t, 2, appCfg.Loadgen.Workers)
	require.Nil(t, appCfg.Skipped)
}

func TestLoader_LoadFromOptionalFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("loadgen:\n  workers: 5\n"), 0o600))

	cfg := &testTargetConfig{}
	require.NoError(t, NewLoader(NewViperAdapter()).LoadFromOptionalFile(cfgPath, cfg))
	require.Equal(t, 5, cfg.Workers)
	require.Equal(t, "localhost:50051", cfg.Target)

	require.Equal(t, DataTypeJSON, DataTypeByPath("/etc/lab/config.JSON"))
	require.Equal(t, DataTypeYAML, DataTypeByPath("config.yaml"))
}
