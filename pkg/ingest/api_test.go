package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/JailtonJunior94/pipetrace/pkg/metadata"
	"github.com/JailtonJunior94/pipetrace/pkg/observability/fake"
	"github.com/JailtonJunior94/pipetrace/pkg/registry"
	"github.com/JailtonJunior94/pipetrace/pkg/traceparent"
	"github.com/JailtonJunior94/pipetrace/pkg/tracker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type apiFixture struct {
	server   *Server
	tracker  *tracker.Tracker
	metadata *metadata.Store
	tokens   *traceparent.Store[registry.BuildHandle]
	exporter *tracetest.InMemoryExporter
	metrics  *Metrics
	reloader *stubReloader
}

type stubReloader struct {
	err   error
	calls int
}

func (r *stubReloader) Reload(context.Context) error {
	r.calls++
	return r.err
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := &apiFixture{
		metadata: metadata.NewStore(),
		tokens:   traceparent.NewStore[registry.BuildHandle](),
		exporter: exporter,
		reloader: &stubReloader{},
	}
	f.tracker = tracker.New(tp.Tracer("ingest-test"), f.metadata, tracker.WithContextSink(f.tokens))

	reg := prometheus.NewRegistry()
	f.metrics = NewMetrics(reg)

	api := NewAPI(f.tracker, f.metadata,
		WithRoots(&f.tracker.Registry().Builds),
		WithEnvironment(f.tokens),
		WithReloader(f.reloader),
		WithDashboardURL("https://dashboard.example.com"),
		WithAPIMetrics(f.metrics),
		WithAPILogger(fake.NewLogger()),
	)

	srv, err := New(fake.NewLogger(),
		WithMetrics(f.metrics, reg),
		WithOpenSpans(f.tracker.Stats),
	)
	require.NoError(t, err)
	srv.RegisterRouters(api)
	f.server = srv
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) event(t *testing.T, ev EventRequest) *httptest.ResponseRecorder {
	t.Helper()
	return f.do(t, http.MethodPost, "/v1/events", ev)
}

func buildPath(build, suffix string) string {
	return "/v1/builds/" + url.PathEscape(build) + suffix
}

func TestEventLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	const build = "folder/app#7"

	rec := f.event(t, EventRequest{
		Type:    TypeBuildStarted,
		Build:   build,
		JobName: "folder/app",
		Pipeline: &PipelineRequest{
			Name:  "folder/app",
			RunID: "7",
		},
		RepositoryURLs: []RepositoryURLRequest{
			{Source: metadata.SourceProject, URL: "https://github.com/owner/repo.git"},
		},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted statusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&accepted))
	assert.Equal(t, "accepted", accepted.Status)
	assert.Equal(t, TypeBuildStarted, accepted.Type)

	require.Equal(t, http.StatusAccepted, f.event(t, EventRequest{
		Type: TypeStageStarted, Build: build, Node: "3",
		Descriptor: tracker.StageDescriptor, Label: "Build", DisplayName: "Build",
	}).Code)
	require.Equal(t, http.StatusAccepted, f.event(t, EventRequest{
		Type: TypeStageCompleted, Build: build, Start: "3",
		Descriptor: tracker.StageDescriptor, Label: "Build",
	}).Code)
	require.Equal(t, http.StatusAccepted, f.event(t, EventRequest{
		Type: TypeBuildCompleted, Build: build, Result: "SUCCESS",
	}).Code)

	spans := f.exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "Build", spans[0].Name)
	assert.Equal(t, "folder/app", spans[1].Name)
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())

	assert.Equal(t, 0, f.tracker.Stats().Builds)
	assert.Equal(t, float64(4), testutil.ToFloat64(f.metrics.requests.WithLabelValues("/v1/events", http.MethodPost, "202")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.events.WithLabelValues(TypeBuildCompleted)))
}

func TestEventRejectsInvalidEnvelopes(t *testing.T) {
	tests := []struct {
		name string
		body any
		code int
	}{
		{name: "malformed json", body: json.RawMessage(`{"type":`), code: http.StatusBadRequest},
		{name: "missing type", body: EventRequest{Build: "b"}, code: http.StatusUnprocessableEntity},
		{name: "missing build", body: EventRequest{Type: TypeBuildCompleted}, code: http.StatusUnprocessableEntity},
		{name: "unknown type", body: EventRequest{Type: "build.paused", Build: "b"}, code: http.StatusUnprocessableEntity},
		{name: "build without job", body: EventRequest{Type: TypeBuildStarted, Build: "b"}, code: http.StatusUnprocessableEntity},
		{name: "stage without node", body: EventRequest{Type: TypeStageStarted, Build: "b"}, code: http.StatusUnprocessableEntity},
		{name: "stage end without start", body: EventRequest{Type: TypeStageCompleted, Build: "b"}, code: http.StatusUnprocessableEntity},
		{name: "step without handle", body: EventRequest{Type: TypeStepStarted, Build: "b"}, code: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t)

			var req *http.Request
			if raw, ok := tt.body.(json.RawMessage); ok {
				req = httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewReader(raw))
			} else {
				b, err := json.Marshal(tt.body)
				require.NoError(t, err)
				req = httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewReader(b))
			}
			rec := httptest.NewRecorder()
			f.server.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

			var problem ProblemDetail
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
			assert.Equal(t, tt.code, problem.Status)
			assert.Equal(t, "/v1/events", problem.Instance)
			assert.NotEmpty(t, problem.RequestID)
			assert.Empty(t, f.exporter.GetSpans())
		})
	}
}

func TestToEventErrors(t *testing.T) {
	_, err := EventRequest{Type: "nope", Build: "b"}.toEvent()
	assert.ErrorIs(t, err, ErrUnknownEventType)

	_, err = EventRequest{Type: TypeStepCompleted, Build: "b"}.toEvent()
	assert.ErrorIs(t, err, ErrMissingField)

	var fieldErr *FieldError
	require.True(t, errors.As(err, &fieldErr))
	assert.Equal(t, "step", fieldErr.Field)
}

func TestCheckoutRecordsRepositoryAndBranch(t *testing.T) {
	f := newAPIFixture(t)
	const build = "app#1"

	require.Equal(t, http.StatusAccepted, f.event(t, EventRequest{Type: TypeBuildStarted, Build: build, JobName: "app"}).Code)

	rec := f.do(t, http.MethodPost, buildPath(build, "/checkout"), CheckoutRequest{
		Env: map[string]string{
			metadata.EnvGitURL:    "git@github.com:owner/repo.git",
			metadata.EnvGitBranch: "origin/main",
			metadata.EnvGitCommit: "abc123",
		},
		SCM: &SCMRequest{Branches: []string{"*/develop"}, Revision: "ignored"},
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	bag, ok := f.metadata.Lookup(build)
	require.True(t, ok)
	source, repoURL, ok := bag.RepositoryURL()
	require.True(t, ok)
	assert.Equal(t, metadata.SourceCheckoutEnv, source)
	assert.Equal(t, "git@github.com:owner/repo.git", repoURL)

	branch, revision := bag.Checkout()
	assert.Equal(t, "main", branch)
	assert.Equal(t, "abc123", revision)
}

func TestCheckoutUnknownBuild(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, buildPath("ghost#1", "/checkout"), CheckoutRequest{})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, ok := f.metadata.Lookup("ghost#1")
	assert.False(t, ok)
}

func TestEnvironmentReturnsTokenAndDashboardLink(t *testing.T) {
	f := newAPIFixture(t)
	const build = "folder/app#9"

	require.Equal(t, http.StatusAccepted, f.event(t, EventRequest{
		Type:     TypeBuildStarted,
		Build:    build,
		JobName:  "folder/app",
		Pipeline: &PipelineRequest{Name: "folder/app", RunID: "9"},
		RepositoryURLs: []RepositoryURLRequest{
			{Source: metadata.SourceProject, URL: "https://github.com/owner/repo"},
		},
	}).Code)

	rec := f.do(t, http.MethodGet, buildPath(build, "/environment"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp EnvironmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, build, resp.Build)

	token := resp.Environment[traceparent.EnvTraceparent]
	traceID, spanID, err := traceparent.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, traceID.String(), resp.Environment[traceparent.EnvTraceID])
	assert.Equal(t, spanID.String(), resp.Environment[traceparent.EnvSpanID])

	assert.True(t, strings.HasPrefix(resp.DashboardURL, "https://dashboard.example.com/ci-insights/jobs?filters="))
	assert.True(t, strings.HasSuffix(resp.DashboardURL, "&login=owner"))
}

func TestEnvironmentWithoutRepositoryHasNoLink(t *testing.T) {
	f := newAPIFixture(t)

	require.Equal(t, http.StatusAccepted, f.event(t, EventRequest{Type: TypeBuildStarted, Build: "b#1", JobName: "b"}).Code)

	rec := f.do(t, http.MethodGet, buildPath("b#1", "/environment"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp EnvironmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.Environment[traceparent.EnvTraceparent])
	assert.Empty(t, resp.DashboardURL)
}

func TestEnvironmentOfFinishedBuild(t *testing.T) {
	f := newAPIFixture(t)

	require.Equal(t, http.StatusAccepted, f.event(t, EventRequest{Type: TypeBuildStarted, Build: "b#1", JobName: "b"}).Code)
	require.Equal(t, http.StatusAccepted, f.event(t, EventRequest{Type: TypeBuildCompleted, Build: "b#1"}).Code)

	rec := f.do(t, http.MethodGet, buildPath("b#1", "/environment"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfigReload(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/config/reload", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.reloader.calls)

	f.reloader.err = errors.New("invalid url")
	rec = f.do(t, http.MethodPost, "/v1/config/reload", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 2, f.reloader.calls)
}
