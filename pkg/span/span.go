// Package span models one unit of CI work (build, stage or step) as an
// OpenTelemetry span that can be closed exactly once.
package span

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/JailtonJunior94/pipetrace/pkg/observability"
	"github.com/JailtonJunior94/pipetrace/pkg/observability/noop"
	"github.com/JailtonJunior94/pipetrace/pkg/semconv"
	"github.com/JailtonJunior94/pipetrace/pkg/traceparent"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Kind is the level of a span in the build hierarchy.
type Kind int

const (
	KindRoot Kind = iota
	KindStage
	KindStep
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindStage:
		return "stage"
	case KindStep:
		return "step"
	default:
		return "unknown"
	}
}

// Status is the final status of a span.
type Status int

const (
	StatusUnset Status = iota
	StatusOK
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	default:
		return "unset"
	}
}

// Span is a build, stage or step span. It is safe for concurrent use.
type Span struct {
	otel   oteltrace.Span
	kind   Kind
	name   string
	parent oteltrace.SpanID
	logger observability.Logger
	closed atomic.Bool
}

// Option configures span creation.
type Option func(*options)

type options struct {
	logger     observability.Logger
	attributes []attribute.KeyValue
}

// WithLogger sets the logger used to report misuse of the span.
func WithLogger(logger observability.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAttributes sets initial attributes on the span.
func WithAttributes(kvs ...attribute.KeyValue) Option {
	return func(o *options) {
		o.attributes = append(o.attributes, kvs...)
	}
}

// Open starts a span. A nil parent starts a new trace; root spans carry the
// SERVER span kind, stage and step spans are INTERNAL children of parent.
func Open(ctx context.Context, tracer oteltrace.Tracer, kind Kind, name string, parent *Span, opts ...Option) *Span {
	o := &options{logger: noop.NewLogger()}
	for _, opt := range opts {
		opt(o)
	}

	startOpts := make([]oteltrace.SpanStartOption, 0, 2)
	if kind == KindRoot {
		startOpts = append(startOpts, oteltrace.WithSpanKind(oteltrace.SpanKindServer))
	} else {
		startOpts = append(startOpts, oteltrace.WithSpanKind(oteltrace.SpanKindInternal))
	}

	s := &Span{kind: kind, name: name, logger: o.logger}

	if parent == nil {
		startOpts = append(startOpts, oteltrace.WithNewRoot())
	} else {
		ctx = oteltrace.ContextWithSpan(ctx, parent.otel)
		s.parent = parent.SpanContext().SpanID()
	}

	_, s.otel = tracer.Start(ctx, name, startOpts...)
	s.SetAttributes(o.attributes...)
	return s
}

// SetAttributes records attributes on an open span. Keys outside the
// semconv vocabulary are dropped. Calls after Close are ignored.
func (s *Span) SetAttributes(kvs ...attribute.KeyValue) {
	if len(kvs) == 0 {
		return
	}

	if s.closed.Load() {
		s.logger.Warn(context.Background(), "attributes set on closed span ignored",
			observability.String("span", s.name),
			observability.String("kind", s.kind.String()),
			observability.Int("attributes", len(kvs)),
		)
		return
	}

	accepted := make([]attribute.KeyValue, 0, len(kvs))
	for _, kv := range kvs {
		if !semconv.Known(kv.Key) {
			s.logger.Debug(context.Background(), "unknown span attribute dropped",
				observability.String("span", s.name),
				observability.String("key", string(kv.Key)),
			)
			continue
		}
		accepted = append(accepted, kv)
	}
	s.otel.SetAttributes(accepted...)
}

// Close sets the status and the end time. Only the first call has an effect;
// it reports whether this call closed the span.
func (s *Span) Close(status Status, description string) bool {
	if !s.closed.CompareAndSwap(false, true) {
		s.logger.Warn(context.Background(), "span already closed",
			observability.String("span", s.name),
			observability.String("kind", s.kind.String()),
		)
		return false
	}

	switch status {
	case StatusOK:
		s.otel.SetStatus(codes.Ok, "")
	case StatusError:
		s.otel.SetStatus(codes.Error, description)
	default:
		s.otel.SetStatus(codes.Unset, "")
	}
	s.otel.End()
	return true
}

// Closed reports whether Close has been called.
func (s *Span) Closed() bool {
	return s.closed.Load()
}

func (s *Span) Kind() Kind {
	return s.kind
}

func (s *Span) Name() string {
	return s.name
}

// SpanContext returns the identity of the span.
func (s *Span) SpanContext() oteltrace.SpanContext {
	return s.otel.SpanContext()
}

// ParentSpanID returns the parent span id, invalid for root spans.
func (s *Span) ParentSpanID() oteltrace.SpanID {
	return s.parent
}

// Token returns the propagatable trace context token of the span.
func (s *Span) Token() string {
	sc := s.otel.SpanContext()
	return traceparent.Encode(sc.TraceID(), sc.SpanID())
}

// ContextWith returns ctx carrying the span, for trace-aware logging.
func (s *Span) ContextWith(ctx context.Context) context.Context {
	return oteltrace.ContextWithSpan(ctx, s.otel)
}

// StartTime returns the start time recorded by the SDK, zero when the
// underlying tracer is not the SDK.
func (s *Span) StartTime() time.Time {
	if ro, ok := s.otel.(sdktrace.ReadOnlySpan); ok {
		return ro.StartTime()
	}
	return time.Time{}
}

// EndTime returns the end time recorded by the SDK, zero while open.
func (s *Span) EndTime() time.Time {
	if ro, ok := s.otel.(sdktrace.ReadOnlySpan); ok {
		return ro.EndTime()
	}
	return time.Time{}
}
