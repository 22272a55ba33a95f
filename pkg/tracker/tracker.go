// Package tracker turns host engine lifecycle events into build, stage and
// step spans.
package tracker

import (
	"context"
	"fmt"

	"github.com/JailtonJunior94/pipetrace/pkg/observability"
	"github.com/JailtonJunior94/pipetrace/pkg/observability/noop"
	"github.com/JailtonJunior94/pipetrace/pkg/registry"
	"github.com/JailtonJunior94/pipetrace/pkg/semconv"
	"github.com/JailtonJunior94/pipetrace/pkg/span"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MetadataSource is the per-build attribute bag.
type MetadataSource interface {
	AddRepositoryURL(build registry.BuildHandle, source, url string)
	SetCheckoutInfo(build registry.BuildHandle, branch, revision string)
	PopulateAttributes(build registry.BuildHandle, s *span.Span)
}

// Releaser is implemented by metadata sources that free the bag of a build
// once its root span is closed.
type Releaser interface {
	Release(build registry.BuildHandle)
}

// ContextSink receives the trace context token of the innermost open span
// of each build, to be handed to the processes the build launches.
type ContextSink interface {
	Attach(build registry.BuildHandle, token string)
	Forget(build registry.BuildHandle)
}

// Tracker reacts to lifecycle events. All methods are safe for concurrent
// use and never panic.
type Tracker struct {
	tracer     trace.Tracer
	metadata   MetadataSource
	sink       ContextSink
	registry   *registry.Registry
	extensions map[string]struct{}
	legacy     bool
	logger     observability.Logger
	metrics    *Metrics
}

// Option configures a Tracker.
type Option func(*Tracker)

func WithLogger(logger observability.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithBuildStepExtensions names the non-builder step types that are traced
// in freestyle builds.
func WithBuildStepExtensions(names ...string) Option {
	return func(t *Tracker) {
		for _, name := range names {
			t.extensions[name] = struct{}{}
		}
	}
}

// WithContextSink sets where span tokens are attached.
func WithContextSink(sink ContextSink) Option {
	return func(t *Tracker) {
		if sink != nil {
			t.sink = sink
		}
	}
}

// WithRegistry shares an existing registry.
func WithRegistry(r *registry.Registry) Option {
	return func(t *Tracker) {
		if r != nil {
			t.registry = r
		}
	}
}

// WithLegacyAttributes controls the deprecated aliases of the task
// attributes. Enabled by default.
func WithLegacyAttributes(enabled bool) Option {
	return func(t *Tracker) {
		t.legacy = enabled
	}
}

func WithMetrics(m *Metrics) Option {
	return func(t *Tracker) {
		t.metrics = m
	}
}

// New creates a tracker opening spans with tracer.
func New(tracer trace.Tracer, metadata MetadataSource, opts ...Option) *Tracker {
	t := &Tracker{
		tracer:     tracer,
		metadata:   metadata,
		sink:       discardSink{},
		registry:   registry.New(),
		extensions: map[string]struct{}{},
		legacy:     true,
		logger:     noop.NewLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Stats returns the number of open spans per kind.
func (t *Tracker) Stats() registry.Stats {
	return t.registry.Stats()
}

// Registry exposes the open spans.
func (t *Tracker) Registry() *registry.Registry {
	return t.registry
}

// Handle dispatches ev. A panic in any handler is logged and swallowed.
func (t *Tracker) Handle(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error(ctx, "lifecycle handler panicked",
				observability.String("event", fmt.Sprintf("%T", ev)),
				observability.Any("panic", r),
			)
		}
	}()

	switch e := ev.(type) {
	case BuildStarted:
		t.buildStarted(ctx, e)
	case BuildCompleted:
		t.buildCompleted(ctx, e)
	case StageStarted:
		t.stageStarted(ctx, e)
	case StageCompleted:
		t.stageCompleted(ctx, e)
	case StepStarted:
		t.stepStarted(ctx, e)
	case StepCompleted:
		t.stepCompleted(ctx, e)
	default:
		t.logger.Warn(ctx, "unsupported lifecycle event",
			observability.String("event", fmt.Sprintf("%T", ev)),
		)
	}
}

func (t *Tracker) buildStarted(ctx context.Context, e BuildStarted) {
	log := t.logger.With(observability.String("build", string(e.Build)))

	if _, ok := t.registry.Builds.Get(e.Build); ok {
		log.Warn(ctx, "build already has a root span, start ignored")
		t.metrics.eventIgnored("build.started", "duplicate")
		return
	}

	root := span.Open(ctx, t.tracer, span.KindRoot, e.JobName, nil,
		span.WithLogger(log),
		span.WithAttributes(t.taskAttributes(e.JobName, e.JobName, semconv.ScopeJob)...),
	)

	if _, stored := t.registry.Builds.PutIfAbsent(e.Build, root); !stored {
		// Lost a race with a concurrent start of the same build. The span
		// is never ended, so it is never exported.
		log.Warn(ctx, "build already has a root span, start ignored")
		t.metrics.eventIgnored("build.started", "duplicate")
		return
	}
	t.metrics.spanOpened(span.KindRoot.String())

	t.safely(ctx, log, "repository discovery", func() {
		for _, u := range e.RepositoryURLs {
			t.metadata.AddRepositoryURL(e.Build, u.Source, u.URL)
		}
	})
	t.sink.Attach(e.Build, root.Token())

	log.Info(ctx, "build started", observability.String("job", e.JobName))
}

func (t *Tracker) buildCompleted(ctx context.Context, e BuildCompleted) {
	log := t.logger.With(observability.String("build", string(e.Build)))

	root, ok := t.registry.Builds.Remove(e.Build)
	if !ok {
		log.Warn(ctx, "build completed without root span")
		t.metrics.eventIgnored("build.completed", "no_span")
		return
	}

	outcome := t.mapResult(ctx, log, e.Result)
	defer func() {
		t.close(root, outcome)
		t.sink.Forget(e.Build)
		if r, ok := t.metadata.(Releaser); ok {
			t.safely(ctx, log, "metadata release", func() { r.Release(e.Build) })
		}
		log.Info(ctx, "build completed", observability.String("result", outcome.Label))
	}()

	t.safely(ctx, log, "checkout info", func() {
		if e.Branch != "" || e.Revision != "" {
			t.metadata.SetCheckoutInfo(e.Build, e.Branch, e.Revision)
		}
	})
	root.SetAttributes(
		semconv.CICDPipelineResult.String(outcome.Label),
		semconv.CICDPipelineTaskRunResult.String(outcome.Label),
	)
	t.safely(ctx, log, "attribute population", func() {
		t.metadata.PopulateAttributes(e.Build, root)
	})
	t.closeChildren(ctx, log, e.Build, root, outcome)
}

// closeChildren closes the stage and step spans of root that are still open
// when the build completes. Their completion events, if they ever arrive,
// find no span and are ignored.
func (t *Tracker) closeChildren(ctx context.Context, log observability.Logger, build registry.BuildHandle, root *span.Span, outcome Outcome) {
	parent := root.SpanContext().SpanID()
	childOf := func(s *span.Span) bool { return s.ParentSpanID() == parent }

	children := t.registry.Stages.RemoveIf(childOf)
	children = append(children, t.registry.Steps.RemoveIf(childOf)...)
	for _, child := range children {
		log.Warn(ctx, "span still open at build completion, closed with the build result",
			observability.String("span", child.Name()),
			observability.String("kind", child.Kind().String()),
		)
		t.populate(ctx, log, build, child, outcome)
		t.close(child, outcome)
	}
}

func (t *Tracker) stageStarted(ctx context.Context, e StageStarted) {
	if !isStage(e.Descriptor, e.Label) {
		return
	}
	log := t.logger.With(
		observability.String("build", string(e.Build)),
		observability.String("node", string(e.Node)),
	)

	root, ok := t.registry.Builds.Get(e.Build)
	if !ok {
		log.Warn(ctx, "stage started without root span, not traced")
		t.metrics.eventIgnored("stage.started", "no_parent")
		return
	}

	taskName := "Stage(" + e.DisplayName + ")"
	stage := span.Open(ctx, t.tracer, span.KindStage, e.DisplayName, root,
		span.WithLogger(log),
		span.WithAttributes(t.taskAttributes(taskName, string(e.Node), semconv.ScopeStep)...),
	)

	if previous, replaced := t.registry.Stages.Put(e.Node, stage); replaced {
		log.Warn(ctx, "stage started twice, previous span closed")
		t.close(previous, Outcome{Status: span.StatusUnset, Label: LabelUnknown})
	}
	t.metrics.spanOpened(span.KindStage.String())
	t.sink.Attach(e.Build, stage.Token())

	log.Info(ctx, "stage started", observability.String("stage", taskName))
}

func (t *Tracker) stageCompleted(ctx context.Context, e StageCompleted) {
	if !isStage(e.Descriptor, e.Label) {
		return
	}
	log := t.logger.With(
		observability.String("build", string(e.Build)),
		observability.String("node", string(e.Start)),
	)

	stage, ok := t.registry.Stages.Remove(e.Start)
	if !ok {
		log.Warn(ctx, "stage completed without span")
		t.metrics.eventIgnored("stage.completed", "no_span")
		return
	}

	outcome := succeeded(e.Error == "")
	if e.Error == "" && e.Result != "" {
		outcome = t.mapResult(ctx, log, e.Result)
	}
	defer func() {
		t.close(stage, outcome)
		log.Info(ctx, "stage completed", observability.String("result", outcome.Label))
	}()

	t.populate(ctx, log, e.Build, stage, outcome)
}

func (t *Tracker) stepStarted(ctx context.Context, e StepStarted) {
	log := t.logger.With(
		observability.String("build", string(e.Build)),
		observability.String("step", string(e.Step)),
	)

	if !t.traced(e.Name, e.Builder) {
		log.Debug(ctx, "step ignored", observability.String("name", e.Name))
		t.metrics.eventIgnored("step.started", "not_traced")
		return
	}

	root, ok := t.registry.Builds.Get(e.Build)
	if !ok {
		log.Warn(ctx, "step started without root span, not traced")
		t.metrics.eventIgnored("step.started", "no_parent")
		return
	}

	step := span.Open(ctx, t.tracer, span.KindStep, e.Name, root,
		span.WithLogger(log),
		span.WithAttributes(t.taskAttributes(e.Name, string(e.Step), semconv.ScopeStep)...),
	)

	if previous, replaced := t.registry.Steps.Put(e.Step, step); replaced {
		log.Warn(ctx, "step started twice, previous span closed")
		t.close(previous, Outcome{Status: span.StatusUnset, Label: LabelUnknown})
	}
	t.metrics.spanOpened(span.KindStep.String())
	t.sink.Attach(e.Build, step.Token())
}

func (t *Tracker) stepCompleted(ctx context.Context, e StepCompleted) {
	log := t.logger.With(
		observability.String("build", string(e.Build)),
		observability.String("step", string(e.Step)),
	)

	if !t.traced(e.Name, e.Builder) {
		log.Debug(ctx, "step ignored", observability.String("name", e.Name))
		t.metrics.eventIgnored("step.completed", "not_traced")
		return
	}

	step, ok := t.registry.Steps.Remove(e.Step)
	if !ok {
		log.Warn(ctx, "step completed without span")
		t.metrics.eventIgnored("step.completed", "no_span")
		return
	}

	outcome := succeeded(e.CanContinue)
	if e.Result != "" {
		outcome = t.mapResult(ctx, log, e.Result)
	}
	defer t.close(step, outcome)

	t.populate(ctx, log, e.Build, step, outcome)
}

func (t *Tracker) populate(ctx context.Context, log observability.Logger, build registry.BuildHandle, s *span.Span, outcome Outcome) {
	s.SetAttributes(semconv.CICDPipelineTaskRunResult.String(outcome.Label))
	t.safely(ctx, log, "attribute population", func() {
		t.metadata.PopulateAttributes(build, s)
	})
}

// taskAttributes returns the identity attributes of a build, stage or step.
func (t *Tracker) taskAttributes(name, id, scope string) []attribute.KeyValue {
	kvs := []attribute.KeyValue{
		semconv.CICDPipelineTaskName.String(name),
		semconv.CICDPipelineTaskRunID.String(id),
		semconv.CICDPipelineTaskScope.String(scope),
	}
	if t.legacy {
		return semconv.WithLegacy(kvs...)
	}
	return kvs
}

func (t *Tracker) traced(name string, builder bool) bool {
	if builder {
		return true
	}
	_, ok := t.extensions[name]
	return ok
}

func (t *Tracker) mapResult(ctx context.Context, log observability.Logger, result string) Outcome {
	outcome := MapResult(result)
	if !outcome.Known {
		log.Warn(ctx, "result not mapped, span status left unset",
			observability.Error(&UnrecognizedResultError{Result: result}),
		)
	}
	return outcome
}

func (t *Tracker) close(s *span.Span, outcome Outcome) {
	description := ""
	if outcome.Status == span.StatusError {
		description = outcome.Label
	}
	if s.Close(outcome.Status, description) {
		t.metrics.spanClosed(s.Kind().String(), outcome.Status.String())
	}
}

// safely runs fn and logs instead of propagating a panic.
func (t *Tracker) safely(ctx context.Context, log observability.Logger, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(ctx, what+" failed",
				observability.Any("panic", r),
			)
		}
	}()
	fn()
}

type discardSink struct{}

func (discardSink) Attach(registry.BuildHandle, string) {}
func (discardSink) Forget(registry.BuildHandle)         {}
