// Package exporter delivers finished spans to the collection backend, one
// authenticated client per repository.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JailtonJunior94/pipetrace/pkg/config"
	"github.com/JailtonJunior94/pipetrace/pkg/observability"
	"github.com/JailtonJunior94/pipetrace/pkg/observability/noop"
	"github.com/JailtonJunior94/pipetrace/pkg/semconv"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// DefaultTimeout bounds the submission of one partition.
const DefaultTimeout = 5 * time.Second

// Exporter partitions batches by repository and submits each partition to
// the endpoint of that repository with the key of its organization. It
// implements sdktrace.SpanExporter.
type Exporter struct {
	provider config.Provider
	factory  ClientFactory
	timeout  time.Duration
	logger   observability.Logger
	metrics  *Metrics

	clients  atomic.Pointer[sync.Map]
	shutdown atomic.Bool
}

var _ sdktrace.SpanExporter = (*Exporter)(nil)

// Option configures an Exporter.
type Option func(*Exporter)

func WithLogger(logger observability.Logger) Option {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTimeout sets the per-partition deadline. Default: 5 seconds.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Exporter) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithClientFactory replaces the OTLP/HTTP client factory.
func WithClientFactory(factory ClientFactory) Option {
	return func(e *Exporter) {
		if factory != nil {
			e.factory = factory
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(e *Exporter) {
		e.metrics = m
	}
}

// New creates an exporter reading tenants from provider.
func New(provider config.Provider, opts ...Option) *Exporter {
	e := &Exporter{
		provider: provider,
		timeout:  DefaultTimeout,
		logger:   noop.NewLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.factory == nil {
		e.factory = OTLPClientFactory(nil, e.timeout)
	}
	e.clients.Store(&sync.Map{})
	return e
}

// ExportSpans implements sdktrace.SpanExporter. It returns nil only when
// every partition was exported.
func (e *Exporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if e.shutdown.Load() {
		return ErrShutdown
	}
	return e.Export(ctx, spans).Err()
}

// Export submits spans and reports the outcome of every partition. It never
// panics.
func (e *Exporter) Export(ctx context.Context, spans []sdktrace.ReadOnlySpan) Result {
	result := Result{Total: len(spans)}

	order, partitions := e.partition(ctx, spans, &result)
	for _, repository := range order {
		result.Partitions = append(result.Partitions, e.exportPartition(ctx, repository, partitions[repository]))
	}

	e.metrics.record(result)
	e.logger.Debug(ctx, "span batch exported",
		observability.Int("total", result.Total),
		observability.Int("dropped", result.Dropped),
		observability.Int("exported", result.Count(OutcomeExported)),
		observability.Int("failed", result.Count(OutcomeFailed)),
		observability.Int("skipped", result.Count(OutcomeSkipped)),
	)
	return result
}

func (e *Exporter) partition(ctx context.Context, spans []sdktrace.ReadOnlySpan, result *Result) ([]string, map[string][]sdktrace.ReadOnlySpan) {
	var order []string
	partitions := make(map[string][]sdktrace.ReadOnlySpan)

	for _, s := range spans {
		repository := repositoryOf(s)
		if repository == "" {
			result.Dropped++
			e.logger.Debug(ctx, "span without repository name dropped from export",
				observability.String("span", s.Name()),
				observability.String("trace_id", s.SpanContext().TraceID().String()),
			)
			continue
		}
		if _, ok := Owner(repository); !ok {
			result.Dropped++
			e.logger.Debug(ctx, "span with malformed repository name dropped from export",
				observability.String("span", s.Name()),
				observability.String("repository", repository),
			)
			continue
		}
		if _, ok := partitions[repository]; !ok {
			order = append(order, repository)
		}
		partitions[repository] = append(partitions[repository], s)
	}
	return order, partitions
}

func (e *Exporter) exportPartition(ctx context.Context, repository string, spans []sdktrace.ReadOnlySpan) PartitionResult {
	pr := PartitionResult{Repository: repository, Spans: len(spans)}
	owner, _ := Owner(repository)

	client, err := e.client(ctx, repository, owner)
	if errors.Is(err, ErrMissingCredential) {
		e.logger.Warn(ctx, "no API key for organization, spans not exported",
			observability.String("organization", owner),
			observability.String("repository", repository),
			observability.Int("spans", len(spans)),
		)
		pr.Outcome, pr.Err = OutcomeSkipped, err
		return pr
	}
	if err == nil {
		err = e.submit(ctx, client, spans)
	}
	if err != nil {
		e.logger.Warn(ctx, "span export failed",
			observability.String("repository", repository),
			observability.Int("spans", len(spans)),
			observability.Error(err),
		)
		pr.Outcome, pr.Err = OutcomeFailed, err
		return pr
	}

	pr.Outcome = OutcomeExported
	return pr
}

// client returns the cached client of repository, creating it when absent.
func (e *Exporter) client(ctx context.Context, repository, owner string) (sdktrace.SpanExporter, error) {
	cache := e.clients.Load()
	if c, ok := cache.Load(repository); ok {
		return c.(sdktrace.SpanExporter), nil
	}

	token, ok := e.provider.APIKeyForOrg(owner)
	if !ok {
		return nil, ErrMissingCredential
	}

	created, err := e.create(ctx, Endpoint(e.provider.BaseURL(), repository), token)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	actual, loaded := cache.LoadOrStore(repository, created)
	if loaded {
		e.shutdownClient(ctx, repository, created)
		return actual.(sdktrace.SpanExporter), nil
	}
	e.metrics.clientsAdded(1)
	e.logger.Debug(ctx, "client created",
		observability.String("repository", repository),
	)
	return created, nil
}

func (e *Exporter) create(ctx context.Context, endpoint, token string) (client sdktrace.SpanExporter, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.factory(ctx, endpoint, token)
}

func (e *Exporter) submit(ctx context.Context, client sdktrace.SpanExporter, spans []sdktrace.ReadOnlySpan) (err error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return client.ExportSpans(ctx, spans)
}

// Reset drops every cached client so that the next export resolves base URL
// and credentials again. Retired clients are shut down independently.
func (e *Exporter) Reset(ctx context.Context) error {
	retired := e.clients.Swap(&sync.Map{})
	n, err := e.visit(ctx, retired, e.shutdownOne)
	e.metrics.clientsAdded(-n)
	e.logger.Info(ctx, "exporter clients reset", observability.Int("clients", n))
	return err
}

// ForceFlush flushes every cached client that buffers spans.
func (e *Exporter) ForceFlush(ctx context.Context) error {
	_, err := e.visit(ctx, e.clients.Load(), func(ctx context.Context, c sdktrace.SpanExporter) error {
		if f, ok := c.(interface{ ForceFlush(context.Context) error }); ok {
			return f.ForceFlush(ctx)
		}
		return nil
	})
	return err
}

// Shutdown implements sdktrace.SpanExporter. Every cached client is shut
// down; later exports fail with ErrShutdown.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if !e.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	retired := e.clients.Swap(&sync.Map{})
	n, err := e.visit(ctx, retired, e.shutdownOne)
	e.metrics.clientsAdded(-n)
	return err
}

// Clients returns the number of cached clients.
func (e *Exporter) Clients() int {
	n := 0
	e.clients.Load().Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (e *Exporter) shutdownOne(ctx context.Context, c sdktrace.SpanExporter) error {
	return c.Shutdown(ctx)
}

func (e *Exporter) shutdownClient(ctx context.Context, repository string, c sdktrace.SpanExporter) {
	if err := e.isolated(ctx, c, e.shutdownOne); err != nil {
		e.logger.Warn(ctx, "client shutdown failed",
			observability.String("repository", repository),
			observability.Error(err),
		)
	}
}

// visit applies fn to every client of cache. A failing client does not
// prevent the others from being visited.
func (e *Exporter) visit(ctx context.Context, cache *sync.Map, fn func(context.Context, sdktrace.SpanExporter) error) (int, error) {
	var errs []error
	n := 0
	cache.Range(func(key, value any) bool {
		n++
		if err := e.isolated(ctx, value.(sdktrace.SpanExporter), fn); err != nil {
			e.logger.Warn(ctx, "client operation failed",
				observability.String("repository", key.(string)),
				observability.Error(err),
			)
			errs = append(errs, &PartitionError{Repository: key.(string), Err: err})
		}
		return true
	})
	return n, errors.Join(errs...)
}

func (e *Exporter) isolated(ctx context.Context, c sdktrace.SpanExporter, fn func(context.Context, sdktrace.SpanExporter) error) (err error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, c)
}

// Owner returns the organization segment of owner/repo. It reports false
// unless repository is exactly two non-empty segments.
func Owner(repository string) (string, bool) {
	owner, name, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return owner, true
}

func repositoryOf(s sdktrace.ReadOnlySpan) string {
	for _, kv := range s.Attributes() {
		if kv.Key == semconv.VCSRepositoryName {
			return strings.TrimSpace(kv.Value.AsString())
		}
	}
	return ""
}
