// Package config loads process settings from the environment and tenant
// credentials from a YAML file, and serves them to the exporter.
package config

import (
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "PIPETRACE"

// Tracing backends.
const (
	BackendTenant = "tenant"
	BackendLog    = "log"
	BackendMemory = "memory"
)

// Settings holds the process configuration.
type Settings struct {
	Server   ServerSettings   `envconfig:"SERVER"`
	Log      LogSettings      `envconfig:"LOG"`
	Tracing  TracingSettings  `envconfig:"TRACING"`
	Exporter ExporterSettings `envconfig:"EXPORTER"`

	// CredentialsFile points to the YAML file with the API URL and the
	// per-organization keys.
	CredentialsFile     string   `envconfig:"CREDENTIALS_FILE"`
	LegacyAttributes    bool     `envconfig:"LEGACY_ATTRIBUTES" default:"true"`
	BuildStepExtensions []string `envconfig:"BUILD_STEP_EXTENSIONS"`
	DashboardURL        string   `envconfig:"DASHBOARD_URL" default:"https://dashboard.mergify.com"`
}

type ServerSettings struct {
	Address      string        `envconfig:"ADDRESS" default:":8080"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`
	BodyLimit    int64         `envconfig:"BODY_LIMIT" default:"1048576"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	// ShutdownSignals names the signals that stop the server, e.g. SIGTERM.
	ShutdownSignals []string `envconfig:"SHUTDOWN_SIGNALS" default:"SIGINT,SIGTERM"`
}

var signalsByName = map[string]os.Signal{
	"SIGHUP":  syscall.SIGHUP,
	"SIGINT":  syscall.SIGINT,
	"SIGQUIT": syscall.SIGQUIT,
	"SIGTERM": syscall.SIGTERM,
}

// Signals resolves ShutdownSignals. Names are case insensitive and the SIG
// prefix is optional.
func (s ServerSettings) Signals() ([]os.Signal, error) {
	signals := make([]os.Signal, 0, len(s.ShutdownSignals))
	for _, name := range s.ShutdownSignals {
		key := strings.ToUpper(strings.TrimSpace(name))
		if !strings.HasPrefix(key, "SIG") {
			key = "SIG" + key
		}
		sig, ok := signalsByName[key]
		if !ok {
			return nil, fmt.Errorf("unsupported signal %q", name)
		}
		signals = append(signals, sig)
	}
	return signals, nil
}

type LogSettings struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"json"`
}

type TracingSettings struct {
	ServiceName    string        `envconfig:"SERVICE_NAME" default:"jenkins-mergify"`
	ServiceVersion string        `envconfig:"SERVICE_VERSION" default:"dev"`
	Backend        string        `envconfig:"BACKEND" default:"tenant"`
	BatchSize      int           `envconfig:"BATCH_SIZE" default:"10000"`
	BatchTimeout   time.Duration `envconfig:"BATCH_TIMEOUT" default:"5s"`
	ExportTimeout  time.Duration `envconfig:"EXPORT_TIMEOUT" default:"60s"`
	QueueSize      int           `envconfig:"QUEUE_SIZE" default:"20000"`
}

type ExporterSettings struct {
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s"`
}

// Load reads the settings from the environment and validates them.
func Load() (*Settings, error) {
	var s Settings
	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the settings for values the service cannot run with.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.Server.Address) == "" {
		return &ValidationError{Field: "server.address", Reason: "is required"}
	}
	if s.Server.ReadTimeout <= 0 || s.Server.WriteTimeout <= 0 || s.Server.IdleTimeout <= 0 {
		return &ValidationError{Field: "server.timeouts", Reason: "must be positive"}
	}
	if s.Server.BodyLimit <= 0 {
		return &ValidationError{Field: "server.body_limit", Reason: fmt.Sprintf("must be positive, got %d", s.Server.BodyLimit)}
	}
	if s.Server.ShutdownTimeout <= 0 {
		return &ValidationError{Field: "server.shutdown_timeout", Reason: "must be positive"}
	}
	if _, err := s.Server.Signals(); err != nil {
		return &ValidationError{Field: "server.shutdown_signals", Reason: err.Error()}
	}

	switch strings.ToLower(s.Log.Format) {
	case "json", "text":
	default:
		return &ValidationError{Field: "log.format", Reason: fmt.Sprintf("unsupported format %q", s.Log.Format)}
	}

	if strings.TrimSpace(s.Tracing.ServiceName) == "" {
		return &ValidationError{Field: "tracing.service_name", Reason: "is required"}
	}
	switch s.Tracing.Backend {
	case BackendTenant, BackendLog, BackendMemory:
	default:
		return &ValidationError{Field: "tracing.backend", Reason: fmt.Sprintf("unsupported backend %q", s.Tracing.Backend)}
	}
	if s.Tracing.BatchSize <= 0 {
		return &ValidationError{Field: "tracing.batch_size", Reason: fmt.Sprintf("must be positive, got %d", s.Tracing.BatchSize)}
	}
	if s.Tracing.QueueSize < s.Tracing.BatchSize {
		return &ValidationError{Field: "tracing.queue_size", Reason: "must not be smaller than the batch size"}
	}
	if s.Tracing.BatchTimeout <= 0 || s.Tracing.ExportTimeout <= 0 {
		return &ValidationError{Field: "tracing.timeouts", Reason: "must be positive"}
	}

	if s.Exporter.Timeout <= 0 {
		return &ValidationError{Field: "exporter.timeout", Reason: fmt.Sprintf("must be positive, got %v", s.Exporter.Timeout)}
	}

	if s.Tracing.Backend == BackendTenant && strings.TrimSpace(s.CredentialsFile) == "" {
		return &ValidationError{Field: "credentials_file", Reason: "is required by the tenant backend"}
	}
	return nil
}
