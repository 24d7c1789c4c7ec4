/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package grpcserver

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/suite"
	"gopkg.in/yaml.v3"

	"github.com/acronis/grpc-backpressure-lab/config"
	"github.com/acronis/grpc-backpressure-lab/internal/hellopb"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfig(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

type AppConfig struct {
	GRPCServer *Config `mapstructure:"grpcServer" json:"grpcServer" yaml:"grpcServer"`
}

// saturatedServerConfig is a server tuned for the saturation experiments:
// few streams per connection, short keepalive and health checks excluded from logs.
func saturatedServerConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Address = "127.0.0.1:50061"
	cfg.Timeouts.Shutdown = config.TimeDuration(10 * time.Second)
	cfg.Keepalive.Time = config.TimeDuration(30 * time.Second)
	cfg.Keepalive.Timeout = config.TimeDuration(5 * time.Second)
	cfg.Keepalive.MinTime = config.TimeDuration(10 * time.Second)
	cfg.Limits.MaxConcurrentStreams = 64
	cfg.Limits.MaxRecvMessageSize = config.ByteSize(64 * 1024)
	cfg.Limits.MaxSendMessageSize = config.ByteSize(64 * 1024)
	cfg.Log.CallStart = true
	cfg.Log.ExcludedMethods = []string{"/grpc.health.v1.Health/Check"}
	cfg.Log.SlowCallThreshold = config.TimeDuration(150 * time.Millisecond)
	return cfg
}

func (s *ConfigTestSuite) TestLoad() {
	tests := []struct {
		name     string
		dataType config.DataType
		data     string
	}{
		{
			name:     "yaml",
			dataType: config.DataTypeYAML,
			data: `
grpcServer:
  address: "127.0.0.1:50061"
  timeouts:
    shutdown: 10s
  keepalive:
    time: 30s
    timeout: 5s
    minTime: 10s
  limits:
    maxConcurrentStreams: 64
    maxRecvMessageSize: 64K
    maxSendMessageSize: 64K
  log:
    callStart: true
    excludedMethods:
      - "/grpc.health.v1.Health/Check"
    slowCallThreshold: 150ms
`,
		},
		{
			name:     "json",
			dataType: config.DataTypeJSON,
			data: `{
	"grpcServer": {
		"address": "127.0.0.1:50061",
		"timeouts": {"shutdown": "10s"},
		"keepalive": {"time": "30s", "timeout": "5s", "minTime": "10s"},
		"limits": {"maxConcurrentStreams": 64, "maxRecvMessageSize": "64K", "maxSendMessageSize": "64K"},
		"log": {
			"callStart": true,
			"excludedMethods": ["/grpc.health.v1.Health/Check"],
			"slowCallThreshold": "150ms"
		}
	}
}`,
		},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			want := AppConfig{GRPCServer: saturatedServerConfig()}

			got := AppConfig{GRPCServer: NewDefaultConfig()}
			s.Require().NoError(config.NewLoader(config.NewViperAdapter()).LoadFromReader(
				bytes.NewBufferString(tt.data), tt.dataType, got.GRPCServer))
			s.Require().Equal(want, got, "config.Loader")

			got = AppConfig{GRPCServer: NewDefaultConfig()}
			vpr := viper.New()
			vpr.SetConfigType(string(tt.dataType))
			s.Require().NoError(vpr.ReadConfig(bytes.NewBufferString(tt.data)))
			s.Require().NoError(vpr.Unmarshal(&got, func(c *mapstructure.DecoderConfig) {
				c.DecodeHook = mapstructure.TextUnmarshallerHookFunc()
			}))
			s.Require().Equal(want, got, "viper.Unmarshal")

			got = AppConfig{GRPCServer: NewDefaultConfig()}
			if tt.dataType == config.DataTypeYAML {
				s.Require().NoError(yaml.Unmarshal([]byte(tt.data), &got))
			} else {
				s.Require().NoError(json.Unmarshal([]byte(tt.data), &got))
			}
			s.Require().Equal(want, got, "%s.Unmarshal", tt.name)
		})
	}
}

func (s *ConfigTestSuite) TestDefaults() {
	cfg := NewConfig()
	s.Require().NoError(config.NewDefaultLoader("").LoadFromReader(bytes.NewBuffer(nil), config.DataTypeYAML, cfg))
	s.Require().Equal(NewDefaultConfig(), cfg)

	s.Require().Equal(":50051", cfg.Address)
	s.Require().Equal(config.TimeDuration(defaultServerShutdownTimeout), cfg.Timeouts.Shutdown)
	s.Require().Equal(config.ByteSize(defaultServerMaxRecvMessageSize), cfg.Limits.MaxRecvMessageSize)
	s.Require().Equal(config.TimeDuration(defaultSlowCallThreshold), cfg.Log.SlowCallThreshold)
	s.Require().Zero(cfg.Limits.MaxConcurrentStreams)

	cfg = NewDefaultConfig()
	s.Require().NoError(json.Unmarshal([]byte("{}"), cfg))
	s.Require().Equal(NewDefaultConfig(), cfg)
}

func (s *ConfigTestSuite) TestKeyPrefix() {
	s.Require().Equal(cfgDefaultKeyPrefix, NewConfig().KeyPrefix())
	s.Require().Equal(cfgDefaultKeyPrefix, (&Config{}).KeyPrefix())

	cfg := NewConfig(WithKeyPrefix("helloGRPC"))
	s.Require().Equal("helloGRPC", cfg.KeyPrefix())
	data := `
helloGRPC:
  address: "127.0.0.1:50062"
  log:
    excludedMethods: ["` + hellopb.SayHelloFullMethodName + `"]
`
	s.Require().NoError(config.NewLoader(config.NewViperAdapter()).LoadFromReader(
		bytes.NewBufferString(data), config.DataTypeYAML, cfg))
	s.Require().Equal("127.0.0.1:50062", cfg.Address)
	s.Require().Equal([]string{hellopb.SayHelloFullMethodName}, cfg.Log.ExcludedMethods)
}

func (s *ConfigTestSuite) TestValidationErrors() {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name:    "address is not a string",
			data:    "grpcServer:\n  address: []\n",
			wantErr: `grpcServer.address: unable to cast`,
		},
		{
			name:    "invalid shutdown timeout",
			data:    "grpcServer:\n  timeouts:\n    shutdown: soon\n",
			wantErr: `grpcServer.timeouts.shutdown: time: invalid duration`,
		},
		{
			name:    "negative maxConcurrentStreams",
			data:    "grpcServer:\n  limits:\n    maxConcurrentStreams: -1\n",
			wantErr: `grpcServer.limits.maxConcurrentStreams: cannot be negative`,
		},
		{
			name:    "invalid message size",
			data:    "grpcServer:\n  limits:\n    maxRecvMessageSize: huge\n",
			wantErr: `grpcServer.limits.maxRecvMessageSize`,
		},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
				bytes.NewBufferString(tt.data), config.DataTypeYAML, NewConfig())
			s.Require().ErrorContains(err, tt.wantErr)
		})
	}
}

func (s *ConfigTestSuite) TestAddressFromEnv() {
	s.T().Setenv(EnvServerAddress, "127.0.0.1:6000")
	cfg := NewConfig()
	s.Require().NoError(config.NewDefaultLoader("hello").Load(cfg))
	s.Require().Equal("127.0.0.1:6000", cfg.Address)

	// Prefixed variable wins over the classic one.
	s.T().Setenv("HELLO_GRPCSERVER_ADDRESS", "127.0.0.1:6001")
	cfg = NewConfig()
	s.Require().NoError(config.NewDefaultLoader("hello").Load(cfg))
	s.Require().Equal("127.0.0.1:6001", cfg.Address)
}
