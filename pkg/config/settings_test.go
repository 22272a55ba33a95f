package config

import (
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PIPETRACE_CREDENTIALS_FILE", "/etc/pipetrace/credentials.yaml")

	s, err := Load()

	require.NoError(t, err)
	assert.Equal(t, ":8080", s.Server.Address)
	assert.Equal(t, 30*time.Second, s.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, s.Server.ShutdownTimeout)
	assert.Equal(t, []string{"SIGINT", "SIGTERM"}, s.Server.ShutdownSignals)
	assert.Equal(t, "info", s.Log.Level)
	assert.Equal(t, "json", s.Log.Format)
	assert.Equal(t, BackendTenant, s.Tracing.Backend)
	assert.Equal(t, 10000, s.Tracing.BatchSize)
	assert.Equal(t, 60*time.Second, s.Tracing.ExportTimeout)
	assert.Equal(t, 5*time.Second, s.Exporter.Timeout)
	assert.True(t, s.LegacyAttributes)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PIPETRACE_SERVER_ADDRESS", ":9090")
	t.Setenv("PIPETRACE_LOG_LEVEL", "debug")
	t.Setenv("PIPETRACE_TRACING_BACKEND", "log")
	t.Setenv("PIPETRACE_EXPORTER_TIMEOUT", "2s")
	t.Setenv("PIPETRACE_LEGACY_ATTRIBUTES", "false")
	t.Setenv("PIPETRACE_BUILD_STEP_EXTENSIONS", "MavenStep,GradleStep")

	s, err := Load()

	require.NoError(t, err)
	assert.Equal(t, ":9090", s.Server.Address)
	assert.Equal(t, "debug", s.Log.Level)
	assert.Equal(t, BackendLog, s.Tracing.Backend)
	assert.Equal(t, 2*time.Second, s.Exporter.Timeout)
	assert.False(t, s.LegacyAttributes)
	assert.Equal(t, []string{"MavenStep", "GradleStep"}, s.BuildStepExtensions)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	t.Setenv("PIPETRACE_TRACING_BACKEND", "kafka")

	_, err := Load()

	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "tracing.backend", verr.Field)
}

func TestSettingsValidate(t *testing.T) {
	valid := func() Settings {
		return Settings{
			Server: ServerSettings{
				Address: ":8080", ReadTimeout: time.Second, WriteTimeout: time.Second,
				IdleTimeout: time.Second, BodyLimit: 1024,
				ShutdownTimeout: time.Second, ShutdownSignals: []string{"SIGTERM"},
			},
			Log:      LogSettings{Level: "info", Format: "json"},
			Tracing:  TracingSettings{ServiceName: "svc", Backend: BackendMemory, BatchSize: 10, QueueSize: 10, BatchTimeout: time.Second, ExportTimeout: time.Second},
			Exporter: ExporterSettings{Timeout: time.Second},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Settings)
		field  string
	}{
		{name: "valid", mutate: func(*Settings) {}},
		{name: "empty address", mutate: func(s *Settings) { s.Server.Address = " " }, field: "server.address"},
		{name: "zero body limit", mutate: func(s *Settings) { s.Server.BodyLimit = 0 }, field: "server.body_limit"},
		{name: "zero shutdown timeout", mutate: func(s *Settings) { s.Server.ShutdownTimeout = 0 }, field: "server.shutdown_timeout"},
		{name: "unknown signal", mutate: func(s *Settings) { s.Server.ShutdownSignals = []string{"SIGKILLALL"} }, field: "server.shutdown_signals"},
		{name: "bad log format", mutate: func(s *Settings) { s.Log.Format = "xml" }, field: "log.format"},
		{name: "small queue", mutate: func(s *Settings) { s.Tracing.QueueSize = 1 }, field: "tracing.queue_size"},
		{name: "zero exporter timeout", mutate: func(s *Settings) { s.Exporter.Timeout = 0 }, field: "exporter.timeout"},
		{name: "tenant without credentials", mutate: func(s *Settings) { s.Tracing.Backend = BackendTenant }, field: "credentials_file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)

			err := s.Validate()

			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestServerSettingsSignals(t *testing.T) {
	signals, err := ServerSettings{ShutdownSignals: []string{"term", " sighup "}}.Signals()

	require.NoError(t, err)
	assert.Equal(t, []os.Signal{syscall.SIGTERM, syscall.SIGHUP}, signals)

	_, err = ServerSettings{ShutdownSignals: []string{"SIGUSR9"}}.Signals()
	assert.Error(t, err)
}
