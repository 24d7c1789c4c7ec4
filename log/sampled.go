/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"time"

	"go.uber.org/atomic"
	"golang.org/x/time/rate"
)

// SuppressedFieldKey is the key of the field with the number of messages dropped by a sampled logger
// since the previous written one.
const SuppressedFieldKey = "suppressed"

type sampler struct {
	sometimes  rate.Sometimes
	suppressed atomic.Uint64
}

// SampledLogger writes at most one message per interval and drops the rest.
// Loggers derived via With share the same sampling budget.
type SampledLogger struct {
	FieldLogger
	sampler *sampler
}

// NewSampledLogger wraps the logger so that at most one message per interval is written.
// Every written message carries the number of suppressed ones.
func NewSampledLogger(logger FieldLogger, interval time.Duration) *SampledLogger {
	return &SampledLogger{FieldLogger: logger, sampler: &sampler{sometimes: rate.Sometimes{Interval: interval}}}
}

func (l *SampledLogger) sample(logFn func(string, ...Field), msg string, fields []Field) {
	written := false
	l.sampler.sometimes.Do(func() {
		written = true
		logFn(msg, append(fields, Uint64(SuppressedFieldKey, l.sampler.suppressed.Swap(0)))...)
	})
	if !written {
		l.sampler.suppressed.Inc()
	}
}

// With returns a new sampled logger with the given additional fields.
func (l *SampledLogger) With(fs ...Field) FieldLogger {
	return &SampledLogger{FieldLogger: l.FieldLogger.With(fs...), sampler: l.sampler}
}

// Debug logs message at "debug" level if the sampling budget allows.
func (l *SampledLogger) Debug(msg string, fields ...Field) {
	l.sample(l.FieldLogger.Debug, msg, fields)
}

// Info logs message at "info" level if the sampling budget allows.
func (l *SampledLogger) Info(msg string, fields ...Field) {
	l.sample(l.FieldLogger.Info, msg, fields)
}

// Warn logs message at "warn" level if the sampling budget allows.
func (l *SampledLogger) Warn(msg string, fields ...Field) {
	l.sample(l.FieldLogger.Warn, msg, fields)
}

// Error logs message at "error" level if the sampling budget allows.
func (l *SampledLogger) Error(msg string, fields ...Field) {
	l.sample(l.FieldLogger.Error, msg, fields)
}
