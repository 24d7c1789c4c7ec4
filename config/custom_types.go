/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"gopkg.in/yaml.v3"
)

// parseNonNegativeInt reports ok=false if s is not an integer at all.
func parseNonNegativeInt(s string) (num int64, ok bool, err error) {
	num, parseErr := strconv.ParseInt(s, 10, 64)
	if parseErr != nil {
		return 0, false, nil
	}
	if num < 0 {
		return 0, true, fmt.Errorf("negative value is not allowed: %d", num)
	}
	return num, true, nil
}

// scalarFromYAML returns the raw text of a YAML scalar node.
func scalarFromYAML(value *yaml.Node, typeName string) (string, error) {
	if value.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("invalid %s format: scalar expected, got %q", typeName, value.Value)
	}
	return value.Value, nil
}

// ByteSize is a size in bytes (message size limits, log file rotation).
// It's decoded from integers or human-readable strings like "4MB" or "512Ki".
type ByteSize uint64

func (b *ByteSize) parse(s string) error {
	s = strings.TrimSpace(strings.Trim(s, `"`))
	num, isInt, err := parseNonNegativeInt(s)
	if err != nil {
		return err
	}
	if isInt {
		*b = ByteSize(num)
		return nil
	}
	bytes, err := bytefmt.ToBytes(trimK8sByteSuffix(s))
	if err != nil {
		return fmt.Errorf("invalid byte size format (%s): %w", s, err)
	}
	*b = ByteSize(bytes)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	return b.parse(string(data))
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	s, err := scalarFromYAML(value, "byte size")
	if err != nil {
		return err
	}
	return b.parse(s)
}

// UnmarshalText is used by mapstructure.TextUnmarshallerHookFunc.
func (b *ByteSize) UnmarshalText(text []byte) error {
	return b.parse(string(text))
}

// Bytes returns the size as int, which is what grpc and lumberjack options take.
func (b ByteSize) Bytes() int {
	return int(b)
}

func (b ByteSize) String() string {
	return bytefmt.ByteSize(uint64(b))
}

// MarshalJSON encodes the size as a human-readable string.
func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// TimeDuration is a duration decoded from integers (nanoseconds) or strings like "1m30s".
type TimeDuration time.Duration

func (d *TimeDuration) parse(s string) error {
	s = strings.TrimSpace(strings.Trim(s, `"`))
	num, isInt, err := parseNonNegativeInt(s)
	if err != nil {
		return err
	}
	if isInt {
		*d = TimeDuration(num)
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid time duration format (%s): %w", s, err)
	}
	*d = TimeDuration(dur)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *TimeDuration) UnmarshalJSON(data []byte) error {
	return d.parse(string(data))
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	s, err := scalarFromYAML(value, "time duration")
	if err != nil {
		return err
	}
	return d.parse(s)
}

// UnmarshalText is used by mapstructure.TextUnmarshallerHookFunc.
func (d *TimeDuration) UnmarshalText(text []byte) error {
	return d.parse(string(text))
}

// Duration converts back to time.Duration.
func (d TimeDuration) Duration() time.Duration {
	return time.Duration(d)
}

func (d TimeDuration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON encodes the duration as a human-readable string.
func (d TimeDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}
