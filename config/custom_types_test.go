/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestByteSize_Unmarshal(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		want    ByteSize
		wantErr bool
	}{
		{"integer", "size: 2048", 2048, false},
		{"human-readable", "size: 4MB", 4 * 1024 * 1024, false},
		{"k8s suffix", "size: 1Ki", 1024, false},
		{"invalid", "size: invalid", 0, true},
		{"negative", "size: -1", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg struct{ Size ByteSize }
			err := yaml.Unmarshal([]byte(tt.yaml), &cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, cfg.Size)
		})
	}

	var b ByteSize
	require.NoError(t, json.Unmarshal([]byte(`"10MB"`), &b))
	require.Equal(t, "10M", b.String())
}

func TestTimeDuration_Unmarshal(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		want    TimeDuration
		wantErr bool
	}{
		{"nanoseconds", `1000`, TimeDuration(time.Microsecond), false},
		{"human-readable", `"1m30s"`, TimeDuration(90 * time.Second), false},
		{"invalid", `"soon"`, 0, true},
		{"negative", `-5`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d TimeDuration
			err := json.Unmarshal([]byte(tt.json), &d)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, d)
		})
	}

	var cfg struct{ Timeout TimeDuration }
	require.NoError(t, yaml.Unmarshal([]byte("timeout: 5s"), &cfg))
	require.Equal(t, "5s", cfg.Timeout.String())
}

func TestCustomTypes_NonScalarYAML(t *testing.T) {
	var cfg struct {
		Size    ByteSize
		Timeout TimeDuration
	}
	require.ErrorContains(t, yaml.Unmarshal([]byte("size: [1, 2]"), &cfg), "invalid byte size format")
	require.ErrorContains(t, yaml.Unmarshal([]byte("timeout: {s: 1}"), &cfg), "invalid time duration format")
}

func TestCustomTypes_Conversions(t *testing.T) {
	require.Equal(t, 4*1024*1024, ByteSize(4*1024*1024).Bytes())
	require.Equal(t, time.Second*30, TimeDuration(time.Second*30).Duration())

	data, err := json.Marshal(struct {
		Size    ByteSize
		Timeout TimeDuration
	}{ByteSize(1024), TimeDuration(time.Millisecond * 1500)})
	require.NoError(t, err)
	require.JSONEq(t, `{"Size":"1K","Timeout":"1.5s"}`, string(data))
}
