package ingest

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/JailtonJunior94/pipetrace/pkg/config"
)

// Config holds the HTTP server configuration.
type Config struct {
	Address            string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	BodyLimit          int64
	ServiceName        string
	ServiceVersion     string
	EnableMetrics      bool
	EnableHealthChecks bool

	// ShutdownTimeout bounds the drain of in-flight requests and components.
	ShutdownTimeout time.Duration
	// Signals stop Start. None means only ctx does.
	Signals []os.Signal
}

// DefaultConfig returns a new Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Address:            ":8080",
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
		IdleTimeout:        120 * time.Second,
		BodyLimit:          1 << 20,
		ServiceName:        "pipetrace",
		ServiceVersion:     "dev",
		EnableMetrics:      false,
		EnableHealthChecks: true,
		ShutdownTimeout:    30 * time.Second,
		Signals:            []os.Signal{os.Interrupt, syscall.SIGTERM},
	}
}

// ConfigFromSettings maps the process settings onto a server Config.
func ConfigFromSettings(s config.ServerSettings, serviceName, serviceVersion string) Config {
	cfg := DefaultConfig()
	cfg.Address = s.Address
	cfg.ReadTimeout = s.ReadTimeout
	cfg.WriteTimeout = s.WriteTimeout
	cfg.IdleTimeout = s.IdleTimeout
	cfg.BodyLimit = s.BodyLimit
	cfg.ShutdownTimeout = s.ShutdownTimeout
	if signals, err := s.Signals(); err == nil {
		cfg.Signals = signals
	}
	cfg.ServiceName = serviceName
	cfg.ServiceVersion = serviceVersion
	return cfg
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return errors.New("address is required")
	}

	if strings.TrimSpace(c.ServiceName) == "" {
		return errors.New("service name is required")
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive, got %v", c.ReadTimeout)
	}

	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive, got %v", c.WriteTimeout)
	}

	if c.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive, got %v", c.IdleTimeout)
	}

	if c.BodyLimit <= 0 {
		return fmt.Errorf("body limit must be positive, got %d", c.BodyLimit)
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %v", c.ShutdownTimeout)
	}

	return nil
}
