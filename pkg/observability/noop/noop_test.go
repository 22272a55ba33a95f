package noop_test

import (
	"context"
	"testing"

	"github.com/JailtonJunior94/pipetrace/pkg/observability"
	"github.com/JailtonJunior94/pipetrace/pkg/observability/noop"
)

func TestLoggerIsSafeToUse(t *testing.T) {
	var logger observability.Logger = noop.NewLogger()
	ctx := context.Background()

	logger.Debug(ctx, "debug", observability.String("k", "v"))
	logger.Info(ctx, "info")
	logger.Warn(ctx, "warn")
	logger.Error(ctx, "error")

	if logger.With(observability.String("k", "v")) == nil {
		t.Error("With() should not return nil")
	}
}
