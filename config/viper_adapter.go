/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ViperAdapter is DataProvider implementation that uses viper library under the hood.
type ViperAdapter struct {
	viper *viper.Viper
}

var _ DataProvider = (*ViperAdapter)(nil)

// NewViperAdapter creates a new ViperAdapter.
func NewViperAdapter() *ViperAdapter {
	return &ViperAdapter{viper.New()}
}

// UseEnvVars enables the ability to use environment variables for configuration parameters.
// Prefix defines what environment variables will be looked.
// E.g., if the prefix is "hello_server", the key "server.workers" is looked up as HELLO_SERVER_SERVER_WORKERS.
func (va *ViperAdapter) UseEnvVars(prefix string) {
	va.viper.AutomaticEnv()
	va.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	va.viper.SetEnvPrefix(prefix)
}

// BindEnv binds the key to one or more environment variables.
// Variables derived by UseEnvVars take precedence over the explicitly bound ones.
func (va *ViperAdapter) BindEnv(key string, envVars ...string) error {
	if len(envVars) == 0 {
		return WrapKeyErr(key, fmt.Errorf("at least one environment variable name is required"))
	}
	return WrapKeyErrIfNeeded(key, va.viper.BindEnv(append([]string{key}, envVars...)...))
}

// Set sets the value for the key in the override register.
func (va *ViperAdapter) Set(key string, value interface{}) {
	va.viper.Set(key, value)
}

// SetDefault sets the default value for this key.
// Default only used when no value is provided by the user via config or ENV.
func (va *ViperAdapter) SetDefault(key string, value interface{}) {
	va.viper.SetDefault(key, value)
}

// IsSet checks to see if the key has been set in any of the data locations.
func (va *ViperAdapter) IsSet(key string) bool {
	return va.viper.IsSet(key)
}

// Get retrieves any value given the key to use.
func (va *ViperAdapter) Get(key string) interface{} {
	return va.viper.Get(key)
}

// SetFromFile loads configuration data from file.
func (va *ViperAdapter) SetFromFile(path string, dataType DataType) error {
	va.viper.SetConfigType(string(dataType))
	va.viper.SetConfigFile(path)
	return va.viper.ReadInConfig()
}

// SetFromReader loads configuration data from reader.
func (va *ViperAdapter) SetFromReader(reader io.Reader, dataType DataType) error {
	va.viper.SetConfigType(string(dataType))
	return va.viper.ReadConfig(reader)
}

// castKey converts the value of the key with fn, wrapping a conversion error with the key name.
// If skipNil is true, a missing value yields the zero value instead of going through fn.
func castKey[T any](va *ViperAdapter, key string, skipNil bool, fn func(interface{}) (T, error)) (T, error) {
	val := va.Get(key)
	if val == nil && skipNil {
		var zero T
		return zero, nil
	}
	res, err := fn(val)
	return res, WrapKeyErrIfNeeded(key, err)
}

// GetInt tries to retrieve the value associated with the key as an integer.
func (va *ViperAdapter) GetInt(key string) (int, error) {
	return castKey(va, key, false, cast.ToIntE)
}

// GetFloat64 tries to retrieve the value associated with the key as an float64.
func (va *ViperAdapter) GetFloat64(key string) (float64, error) {
	return castKey(va, key, false, cast.ToFloat64E)
}

// GetString tries to retrieve the value associated with the key as a string.
func (va *ViperAdapter) GetString(key string) (string, error) {
	return castKey(va, key, false, cast.ToStringE)
}

// GetBool tries to retrieve the value associated with the key as a bool.
func (va *ViperAdapter) GetBool(key string) (bool, error) {
	return castKey(va, key, false, cast.ToBoolE)
}

// GetStringSlice tries to retrieve the value associated with the key as a slice of strings.
// Comma-separated env values are split by cast.
func (va *ViperAdapter) GetStringSlice(key string) ([]string, error) {
	return castKey(va, key, true, cast.ToStringSliceE)
}

// GetDuration tries to retrieve the value associated with the key as a duration.
// Plain numbers are treated as nanoseconds (see cast.ToDurationE).
func (va *ViperAdapter) GetDuration(key string) (time.Duration, error) {
	return castKey(va, key, true, cast.ToDurationE)
}

// GetSizeInBytes tries to retrieve the value associated with the key as a size in bytes.
// It accepts the same formats as ByteSize.
func (va *ViperAdapter) GetSizeInBytes(key string) (uint64, error) {
	sizeStr, err := va.GetString(key)
	if err != nil || sizeStr == "" {
		return 0, err
	}
	var size ByteSize
	if err = size.parse(sizeStr); err != nil {
		return 0, WrapKeyErr(key, err)
	}
	return uint64(size), nil
}

// GetStringFromSet tries to retrieve the value associated with the key as a string from the specified set.
func (va *ViperAdapter) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	str, err := va.GetString(key)
	if err != nil {
		return "", err
	}
	matches := func(s string) bool { return s == str || (ignoreCase && strings.EqualFold(s, str)) }
	if !slices.ContainsFunc(set, matches) {
		return "", WrapKeyErr(key, fmt.Errorf("unknown value %q, should be one of %v", str, set))
	}
	return str, nil
}

// UnmarshalKey takes a single key and unmarshals it into a Struct.
func (va *ViperAdapter) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	options := make([]viper.DecoderConfigOption, len(opts))
	for i, opt := range opts {
		options[i] = viper.DecoderConfigOption(opt)
	}
	return WrapKeyErrIfNeeded(key, va.viper.UnmarshalKey(key, rawVal, options...))
}

// WrapKeyErr wraps error adding information about a key where this error occurs.
func (va *ViperAdapter) WrapKeyErr(key string, err error) error {
	return WrapKeyErr(key, err)
}

// trimK8sByteSuffix turns k8s power-of-two suffixes (Ki, Mi, ...) into the ones bytefmt understands.
func trimK8sByteSuffix(s string) string {
	for _, suffix := range [...]string{"Ki", "Mi", "Gi", "Ti", "Pi", "Ei"} {
		if strings.HasSuffix(s, suffix) {
			return s[:len(s)-1]
		}
	}
	return s
}
