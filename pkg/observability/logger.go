// Package observability is the logging facade shared by every component.
// Backends live in subpackages: zaplog for production, fake for tests and
// noop where nothing should be written.
package observability

import (
	"context"
	"fmt"
	"strings"
)

// LogLevel is the minimum severity a logger writes.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat selects the encoding of log entries.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// ParseLevel normalises a configured level. An empty value means info.
func ParseLevel(s string) (LogLevel, error) {
	switch level := LogLevel(strings.ToLower(strings.TrimSpace(s))); level {
	case "":
		return LogLevelInfo, nil
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return level, nil
	default:
		return "", fmt.Errorf("unsupported log level %q", s)
	}
}

// ParseFormat normalises a configured format. An empty value means json.
func ParseFormat(s string) (LogFormat, error) {
	switch format := LogFormat(strings.ToLower(strings.TrimSpace(s))); format {
	case "":
		return LogFormatJSON, nil
	case LogFormatJSON, LogFormatText:
		return format, nil
	default:
		return "", fmt.Errorf("unsupported log format %q", s)
	}
}

// Logger writes structured entries. Backends add the trace and span id of
// the span carried by ctx, if any.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)

	// With returns a child logger adding fields to every entry.
	With(fields ...Field) Logger
}
