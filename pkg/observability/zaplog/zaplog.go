// Package zaplog provides the production observability.Logger backed by zap.
package zaplog

import (
	"context"
	"fmt"
	"time"

	"github.com/JailtonJunior94/pipetrace/pkg/observability"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config defines logger configuration.
type Config struct {
	Level       observability.LogLevel
	Format      observability.LogFormat
	ServiceName string
	OutputPaths []string
}

// DefaultConfig returns a JSON logger at info level writing to stdout.
func DefaultConfig(serviceName string) Config {
	return Config{
		Level:       observability.LogLevelInfo,
		Format:      observability.LogFormatJSON,
		ServiceName: serviceName,
		OutputPaths: []string{"stdout"},
	}
}

// Logger implements observability.Logger using zap.
type Logger struct {
	zap *zap.Logger
}

// New builds a zap logger from the configuration.
func New(cfg Config) (*Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Encoding:          encoding(cfg.Format),
		EncoderConfig:     encoderConfig(cfg.Format),
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}

	base, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}

	if cfg.ServiceName != "" {
		base = base.With(zap.String("service", cfg.ServiceName))
	}

	return &Logger{zap: base}, nil
}

// NewFromZap wraps an existing zap logger.
func NewFromZap(l *zap.Logger) *Logger {
	return &Logger{zap: l}
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...observability.Field) {
	l.log(ctx, zapcore.DebugLevel, msg, fields)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...observability.Field) {
	l.log(ctx, zapcore.InfoLevel, msg, fields)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...observability.Field) {
	l.log(ctx, zapcore.WarnLevel, msg, fields)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...observability.Field) {
	l.log(ctx, zapcore.ErrorLevel, msg, fields)
}

// With creates a child logger with additional fields.
func (l *Logger) With(fields ...observability.Field) observability.Logger {
	return &Logger{zap: l.zap.With(convertFields(fields)...)}
}

func (l *Logger) log(ctx context.Context, level zapcore.Level, msg string, fields []observability.Field) {
	ce := l.zap.Check(level, msg)
	if ce == nil {
		return
	}

	zapFields := convertFields(fields)

	if ctx != nil {
		sc := trace.SpanFromContext(ctx).SpanContext()
		if sc.IsValid() {
			zapFields = append(zapFields,
				zap.String("trace_id", sc.TraceID().String()),
				zap.String("span_id", sc.SpanID().String()),
			)
		}
	}

	ce.Write(zapFields...)
}

func convertFields(fields []observability.Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}

	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, convertField(f))
	}
	return out
}

func convertField(f observability.Field) zap.Field {
	switch v := f.Value.(type) {
	case string:
		return zap.String(f.Key, v)
	case []string:
		return zap.Strings(f.Key, v)
	case int:
		return zap.Int(f.Key, v)
	case int64:
		return zap.Int64(f.Key, v)
	case bool:
		return zap.Bool(f.Key, v)
	case time.Duration:
		return zap.Duration(f.Key, v)
	case error:
		return zap.NamedError(f.Key, v)
	default:
		return zap.Any(f.Key, v)
	}
}

func parseLevel(level observability.LogLevel) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}

	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

func encoding(format observability.LogFormat) string {
	if format == observability.LogFormatText {
		return "console"
	}
	return "json"
}

func encoderConfig(format observability.LogFormat) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	if format == observability.LogFormatText {
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return cfg
}
