package noop

import (
	"context"

	"github.com/JailtonJunior94/pipetrace/pkg/observability"
)

// Logger implements observability.Logger with no-op operations.
// Use it when a component is constructed without a logger.
type Logger struct{}

// NewLogger returns a logger that discards everything.
func NewLogger() *Logger {
	return &Logger{}
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...observability.Field) {}

func (l *Logger) Info(ctx context.Context, msg string, fields ...observability.Field) {}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...observability.Field) {}

func (l *Logger) Error(ctx context.Context, msg string, fields ...observability.Field) {}

func (l *Logger) With(fields ...observability.Field) observability.Logger {
	return l
}
