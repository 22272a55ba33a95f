// Package tracing builds the TracerProvider that batches closed spans and
// hands them to the configured backend.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/JailtonJunior94/pipetrace/pkg/config"
	"github.com/JailtonJunior94/pipetrace/pkg/observability"
	"github.com/JailtonJunior94/pipetrace/pkg/observability/noop"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	otelsemconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the tracer handed to the lifecycle tracker.
const InstrumentationName = "github.com/JailtonJunior94/pipetrace"

var ErrNoExporter = errors.New("tenant backend requires a span exporter")

// Config configures the provider.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Backend        string
	BatchSize      int
	QueueSize      int
	BatchTimeout   time.Duration
	ExportTimeout  time.Duration
}

// DefaultConfig returns the batching policy used in production: up to
// 10000 spans per export with one minute to deliver them.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "jenkins-mergify",
		ServiceVersion: "dev",
		Backend:        config.BackendTenant,
		BatchSize:      10000,
		QueueSize:      20000,
		BatchTimeout:   5 * time.Second,
		ExportTimeout:  60 * time.Second,
	}
}

// ConfigFromSettings maps the process settings.
func ConfigFromSettings(s config.TracingSettings) Config {
	return Config{
		ServiceName:    s.ServiceName,
		ServiceVersion: s.ServiceVersion,
		Backend:        s.Backend,
		BatchSize:      s.BatchSize,
		QueueSize:      s.QueueSize,
		BatchTimeout:   s.BatchTimeout,
		ExportTimeout:  s.ExportTimeout,
	}
}

// Provider owns the SDK TracerProvider.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
	memory *tracetest.InMemoryExporter
	logger observability.Logger
}

// Option configures New.
type Option func(*options)

type options struct {
	exporter sdktrace.SpanExporter
	writer   io.Writer
	logger   observability.Logger
}

// WithSpanExporter sets the exporter of the tenant backend.
func WithSpanExporter(exporter sdktrace.SpanExporter) Option {
	return func(o *options) {
		o.exporter = exporter
	}
}

// WithWriter sets the destination of the log backend. Default: stdout.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.writer = w
		}
	}
}

func WithLogger(logger observability.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates the provider for cfg.Backend. The tenant and log backends
// batch spans; the memory backend records them synchronously.
func New(ctx context.Context, cfg Config, opts ...Option) (*Provider, error) {
	o := &options{writer: os.Stdout, logger: noop.NewLogger()}
	for _, opt := range opts {
		opt(o)
	}

	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(
			otelsemconv.ServiceName(cfg.ServiceName),
			otelsemconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	p := &Provider{logger: o.logger}
	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}

	switch cfg.Backend {
	case config.BackendTenant:
		if o.exporter == nil {
			return nil, ErrNoExporter
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(o.exporter, batchOptions(cfg)...))
	case config.BackendLog:
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(o.writer))
		if err != nil {
			return nil, fmt.Errorf("failed to create log exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter, batchOptions(cfg)...))
	case config.BackendMemory:
		p.memory = tracetest.NewInMemoryExporter()
		tpOpts = append(tpOpts, sdktrace.WithSyncer(p.memory))
	default:
		return nil, fmt.Errorf("unsupported tracing backend %q", cfg.Backend)
	}

	p.tp = sdktrace.NewTracerProvider(tpOpts...)
	p.tracer = p.tp.Tracer(InstrumentationName)

	o.logger.Info(ctx, "tracing provider started",
		observability.String("backend", cfg.Backend),
		observability.String("service", cfg.ServiceName),
		observability.Int("batch_size", cfg.BatchSize),
	)
	return p, nil
}

func batchOptions(cfg Config) []sdktrace.BatchSpanProcessorOption {
	opts := []sdktrace.BatchSpanProcessorOption{}
	if cfg.BatchSize > 0 {
		opts = append(opts, sdktrace.WithMaxExportBatchSize(cfg.BatchSize))
	}
	if cfg.QueueSize > 0 {
		opts = append(opts, sdktrace.WithMaxQueueSize(cfg.QueueSize))
	}
	if cfg.BatchTimeout > 0 {
		opts = append(opts, sdktrace.WithBatchTimeout(cfg.BatchTimeout))
	}
	if cfg.ExportTimeout > 0 {
		opts = append(opts, sdktrace.WithExportTimeout(cfg.ExportTimeout))
	}
	return opts
}

// Tracer returns the tracer used to open build spans.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// TracerProvider exposes the underlying SDK provider.
func (p *Provider) TracerProvider() *sdktrace.TracerProvider {
	return p.tp
}

// Memory returns the exporter of the memory backend, nil for the others.
func (p *Provider) Memory() *tracetest.InMemoryExporter {
	return p.memory
}

// SetGlobal installs the provider and the W3C propagator as otel globals.
func (p *Provider) SetGlobal() {
	otel.SetTracerProvider(p.tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
}

// ForceFlush exports every span queued so far.
func (p *Provider) ForceFlush(ctx context.Context) error {
	return p.tp.ForceFlush(ctx)
}

// Shutdown flushes the queue and shuts the backend down.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.tp.Shutdown(ctx); err != nil {
		p.logger.Error(ctx, "tracing provider shutdown failed", observability.Error(err))
		return err
	}
	return nil
}
