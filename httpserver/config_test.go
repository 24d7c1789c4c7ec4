/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/acronis/grpc-backpressure-lab/config"
)

type appConfig struct {
	MetricsServer *Config `mapstructure:"metricsServer" json:"metricsServer" yaml:"metricsServer"`
}

func loadConfig(t *testing.T, data string, dataType config.DataType, cfg *Config) error {
	t.Helper()
	return config.NewDefaultLoader("hello").LoadFromReader(strings.NewReader(data), dataType, cfg)
}

func TestConfig_Load(t *testing.T) {
	profiled := func() *Config {
		cfg := NewDefaultConfig()
		cfg.Address = "127.0.0.1:9100"
		cfg.Pprof = true
		cfg.Timeouts.Shutdown = config.TimeDuration(time.Second * 30)
		return cfg
	}
	tests := []struct {
		name     string
		dataType config.DataType
		data     string
		want     func() *Config
	}{
		{
			name:     "yaml, profiler on",
			dataType: config.DataTypeYAML,
			data: `
metricsServer:
  address: "127.0.0.1:9100"
  pprof: true
  timeouts:
    shutdown: 30s
`,
			want: profiled,
		},
		{
			name:     "json, profiler on",
			dataType: config.DataTypeJSON,
			data:     `{"metricsServer": {"address": "127.0.0.1:9100", "pprof": true, "timeouts": {"shutdown": "30s"}}}`,
			want:     profiled,
		},
		{
			name:     "yaml, disabled, all timeouts",
			dataType: config.DataTypeYAML,
			data: `
metricsServer:
  enabled: false
  timeouts:
    write: 1h
    read: 7m
    readHeader: 1m
    idle: 20m
`,
			want: func() *Config {
				cfg := NewDefaultConfig()
				cfg.Enabled = false
				cfg.Timeouts.Write = config.TimeDuration(time.Hour)
				cfg.Timeouts.Read = config.TimeDuration(time.Minute * 7)
				cfg.Timeouts.ReadHeader = config.TimeDuration(time.Minute)
				cfg.Timeouts.Idle = config.TimeDuration(time.Minute * 20)
				return cfg
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			require.NoError(t, loadConfig(t, tt.data, tt.dataType, cfg))
			require.Equal(t, tt.want(), cfg)

			// The same document must decode into a pre-filled config through viper, yaml and json.
			got := appConfig{MetricsServer: NewDefaultConfig()}
			vpr := viper.New()
			vpr.SetConfigType(string(tt.dataType))
			require.NoError(t, vpr.ReadConfig(bytes.NewBufferString(tt.data)))
			require.NoError(t, vpr.Unmarshal(&got, func(c *mapstructure.DecoderConfig) {
				c.DecodeHook = mapstructure.TextUnmarshallerHookFunc()
			}))
			require.Equal(t, tt.want(), got.MetricsServer)

			got = appConfig{MetricsServer: NewDefaultConfig()}
			if tt.dataType == config.DataTypeJSON {
				require.NoError(t, json.Unmarshal([]byte(tt.data), &got))
			} else {
				require.NoError(t, yaml.Unmarshal([]byte(tt.data), &got))
			}
			require.Equal(t, tt.want(), got.MetricsServer)
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	t.Run("server", func(t *testing.T) {
		cfg := NewConfig()
		require.NoError(t, loadConfig(t, "", config.DataTypeYAML, cfg))
		require.Equal(t, NewDefaultConfig(), cfg)
		require.True(t, cfg.Enabled)
		require.Equal(t, ":9090", cfg.Address)
		require.False(t, cfg.Pprof)
		require.Equal(t, time.Second*5, time.Duration(cfg.Timeouts.Shutdown))
	})

	t.Run("load generator", func(t *testing.T) {
		opts := []ConfigOption{WithDefaultAddress(":9091"), WithDefaultEnabled(false)}
		cfg := NewConfig(opts...)
		require.NoError(t, loadConfig(t, "", config.DataTypeYAML, cfg))
		require.Equal(t, NewDefaultConfig(opts...), cfg)
		require.False(t, cfg.Enabled)
		require.Equal(t, ":9091", cfg.Address)
	})

	t.Run("empty documents keep defaults", func(t *testing.T) {
		cfg := NewDefaultConfig()
		require.NoError(t, yaml.Unmarshal(nil, cfg))
		require.NoError(t, json.Unmarshal([]byte("{}"), cfg))
		require.Equal(t, NewDefaultConfig(), cfg)
	})
}

func TestConfig_KeyPrefix(t *testing.T) {
	cfg := NewConfig(WithKeyPrefix("loadgenMetrics"))
	require.Equal(t, "loadgenMetrics", cfg.KeyPrefix())
	require.NoError(t, loadConfig(t, "loadgenMetrics:\n  address: 127.0.0.1:9999\n", config.DataTypeYAML, cfg))
	require.Equal(t, "127.0.0.1:9999", cfg.Address)

	// Zero value falls back to the default prefix.
	zero := &Config{}
	require.Equal(t, "metricsServer", zero.KeyPrefix())
	require.NoError(t, loadConfig(t, "metricsServer:\n  address: 127.0.0.1:9999\n", config.DataTypeYAML, zero))
	require.Equal(t, "127.0.0.1:9999", zero.Address)
	require.True(t, zero.Enabled)
}

func TestConfig_AddressFromEnv(t *testing.T) {
	t.Run("classic name", func(t *testing.T) {
		t.Setenv(EnvServerAddress, "127.0.0.1:7070")
		cfg := NewConfig()
		require.NoError(t, loadConfig(t, "metricsServer:\n  address: 127.0.0.1:8080\n", config.DataTypeYAML, cfg))
		require.Equal(t, "127.0.0.1:7070", cfg.Address)
	})

	t.Run("prefixed name wins", func(t *testing.T) {
		t.Setenv(EnvServerAddress, "127.0.0.1:7070")
		t.Setenv("HELLO_METRICSSERVER_ADDRESS", "127.0.0.1:7171")
		cfg := NewConfig()
		require.NoError(t, loadConfig(t, "", config.DataTypeYAML, cfg))
		require.Equal(t, "127.0.0.1:7171", cfg.Address)
	})
}

func TestConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name:    "address is not a string",
			data:    "metricsServer:\n  address: []\n",
			wantErr: "metricsServer.address: unable to cast",
		},
		{
			name:    "enabled without address",
			data:    "metricsServer:\n  address: \"\"\n",
			wantErr: "metricsServer.address: should be set when the server is enabled",
		},
		{
			name:    "bad timeout",
			data:    "metricsServer:\n  timeouts:\n    shutdown: abc\n",
			wantErr: "metricsServer.timeouts.shutdown",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorContains(t, loadConfig(t, tt.data, config.DataTypeYAML, NewConfig()), tt.wantErr)
		})
	}

	// A disabled server doesn't need an address.
	cfg := NewConfig()
	require.NoError(t, loadConfig(t, "metricsServer:\n  enabled: false\n  address: \"\"\n", config.DataTypeYAML, cfg))
	require.False(t, cfg.Enabled)
}
