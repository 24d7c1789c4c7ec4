/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"fmt"
	"os"

	"github.com/ssgreg/logf"
)

// CloseFunc flushes buffered entries and closes the channel writer.
type CloseFunc logf.ChannelWriterCloseFunc

// LogFunc allows logging a message with a bound level.
// nolint: revive
type LogFunc = logf.LogFunc

// FieldLogger is an interface for loggers which writes logs in structured format.
type FieldLogger interface {
	With(...Field) FieldLogger

	Debug(string, ...Field)
	Info(string, ...Field)
	Warn(string, ...Field)
	Error(string, ...Field)

	Debugf(string, ...interface{})
	Infof(string, ...interface{})
	Warnf(string, ...interface{})
	Errorf(string, ...interface{})

	AtLevel(Level, func(LogFunc))
	WithLevel(level Level) FieldLogger
}

var logfLevels = map[Level]logf.Level{
	LevelError: logf.LevelError,
	LevelWarn:  logf.LevelWarn,
	LevelInfo:  logf.LevelInfo,
	LevelDebug: logf.LevelDebug,
}

// convertLevelToLogfLevel falls back to "info" for unknown levels.
func convertLevelToLogfLevel(value Level) logf.Level {
	if l, ok := logfLevels[value]; ok {
		return l
	}
	return logf.LevelInfo
}

// NewLogger returns a new logger writing to the configured output asynchronously.
// The returned CloseFunc must be called before exit, otherwise the last entries may be lost.
func NewLogger(cfg *Config) (FieldLogger, CloseFunc) {
	channel, closeFunc := logf.NewChannelWriter(logf.ChannelWriterConfig{
		Appender:          newAppender(cfg, newOutputWriter(cfg)),
		EnableSyncOnError: true,
	})

	fields := []Field{Int("pid", os.Getpid())}
	if cfg.Component != "" {
		fields = append(fields, String("component", cfg.Component))
	}
	logger := logf.NewLogger(convertLevelToLogfLevel(cfg.Level), channel).With(fields...)
	if cfg.AddCaller {
		// Skip the adapter's frame, so the caller points to the code that logs.
		logger = logger.WithCaller().WithCallerSkip(1)
	}
	return &LogfAdapter{logger}, CloseFunc(closeFunc)
}

// NewDisabledLogger returns a new logger that logs nothing.
func NewDisabledLogger() FieldLogger {
	return &LogfAdapter{logf.NewDisabledLogger()}
}

// LogfAdapter adapts logf.Logger to FieldLogger interface.
type LogfAdapter struct {
	Logger *logf.Logger
}

// With returns a new logger with the given additional fields.
func (l *LogfAdapter) With(fs ...Field) FieldLogger {
	return &LogfAdapter{l.Logger.With(fs...)}
}

// WithLevel returns a new logger with additional level check.
// It only makes sense to increase the level: messages below either of the levels are dropped.
func (l *LogfAdapter) WithLevel(level Level) FieldLogger {
	return &LogfAdapter{Logger: l.Logger.WithLevel(convertLevelToLogfLevel(level))}
}

// AtLevel calls fn with a LogFunc bound to the level, only if the level is enabled.
func (l *LogfAdapter) AtLevel(level Level, fn func(logFunc LogFunc)) {
	l.Logger.AtLevel(convertLevelToLogfLevel(level), fn)
}

// Debug logs message at "debug" level.
func (l *LogfAdapter) Debug(msg string, fields ...Field) { l.Logger.Debug(msg, fields...) }

// Info logs message at "info" level.
func (l *LogfAdapter) Info(msg string, fields ...Field) { l.Logger.Info(msg, fields...) }

// Warn logs message at "warn" level.
func (l *LogfAdapter) Warn(msg string, fields ...Field) { l.Logger.Warn(msg, fields...) }

// Error logs message at "error" level.
func (l *LogfAdapter) Error(msg string, fields ...Field) { l.Logger.Error(msg, fields...) }

// Debugf logs a formatted message at "debug" level.
func (l *LogfAdapter) Debugf(format string, args ...interface{}) {
	l.logFormatted(LevelDebug, format, args)
}

// Infof logs a formatted message at "info" level.
func (l *LogfAdapter) Infof(format string, args ...interface{}) {
	l.logFormatted(LevelInfo, format, args)
}

// Warnf logs a formatted message at "warn" level.
func (l *LogfAdapter) Warnf(format string, args ...interface{}) {
	l.logFormatted(LevelWarn, format, args)
}

// Errorf logs a formatted message at "error" level.
func (l *LogfAdapter) Errorf(format string, args ...interface{}) {
	l.logFormatted(LevelError, format, args)
}

// logFormatted formats the message only if the level is enabled.
func (l *LogfAdapter) logFormatted(level Level, format string, args []interface{}) {
	l.AtLevel(level, func(write LogFunc) {
		write(fmt.Sprintf(format, args...))
	})
}
