package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/JailtonJunior94/pipetrace/pkg/config"
	"github.com/JailtonJunior94/pipetrace/pkg/observability"
	"github.com/JailtonJunior94/pipetrace/pkg/observability/fake"
	"github.com/JailtonJunior94/pipetrace/pkg/registry"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routerFunc func(chi.Router)

func (f routerFunc) Register(r chi.Router) { f(r) }

func serve(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BodyLimit = 0

	_, err := New(fake.NewLogger(), WithConfig(cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "body limit")
}

func TestWithAddress(t *testing.T) {
	srv, err := New(nil, WithAddress("9090"))
	require.NoError(t, err)
	assert.Equal(t, ":9090", srv.config.Address)
}

func TestRequestIDIsPropagated(t *testing.T) {
	srv, err := New(fake.NewLogger())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec := serve(t, srv, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get(requestIDHeader))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = serve(t, srv, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Len(t, rec.Header().Get(requestIDHeader), 36)
}

func TestRecoverMiddleware(t *testing.T) {
	logger := fake.NewLogger()
	srv, err := New(logger)
	require.NoError(t, err)
	srv.RegisterRouters(routerFunc(func(r chi.Router) {
		r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
	}))

	rec := serve(t, srv, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, logger.Contains(observability.LogLevelError, "panic recovered"))
}

func TestBodyLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BodyLimit = 16
	srv, err := New(fake.NewLogger(), WithConfig(cfg))
	require.NoError(t, err)
	srv.RegisterRouters(NewAPI(nil, nil))

	body := `{"type":"build.started","build":"` + strings.Repeat("x", 64) + `"}`
	rec := serve(t, srv, httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(body)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHealthReportsChecksAndOpenSpans(t *testing.T) {
	srv, err := New(fake.NewLogger(),
		WithHealthCheck("credentials", func(context.Context) error { return nil }),
		WithOpenSpans(func() registry.Stats { return registry.Stats{Builds: 2, Stages: 1} }),
	)
	require.NoError(t, err)

	rec := serve(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, statusHealthy, health.Status)
	assert.Equal(t, statusHealthy, health.Checks["credentials"].Status)
	require.NotNil(t, health.OpenSpans)
	assert.Equal(t, 2, health.OpenSpans.Builds)
	assert.Equal(t, 1, health.OpenSpans.Stages)
}

func TestHealthUnhealthy(t *testing.T) {
	logger := fake.NewLogger()
	srv, err := New(logger,
		WithHealthCheck("api", func(context.Context) error { return errors.New("unreachable") }),
	)
	require.NoError(t, err)

	rec := serve(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, logger.Contains(observability.LogLevelWarn, "health check failed"))

	rec = serve(t, srv, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestExecuteHealthChecksTimeout(t *testing.T) {
	checks := map[string]HealthCheckFunc{
		"slow": func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		"fast": func(context.Context) error { return nil },
	}

	results, hasErrors := executeHealthChecks(context.Background(), checks, 20*time.Millisecond, 1)

	assert.True(t, hasErrors)
	assert.Len(t, results, 2)
	assert.Equal(t, statusUnhealthy, results["slow"].Status)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv, err := New(fake.NewLogger(), WithMetrics(NewMetrics(reg), reg))
	require.NoError(t, err)

	serve(t, srv, httptest.NewRequest(http.MethodGet, "/live", nil))
	rec := serve(t, srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pipetrace_ingest_http_requests_total{method="GET",route="/live",status="200"} 1`)
}

type recordingShutdowner struct {
	calls int
	err   error
}

func (r *recordingShutdowner) Shutdown(context.Context) error {
	r.calls++
	return r.err
}

func TestShutdownStopsComponentsOnce(t *testing.T) {
	first := &recordingShutdowner{}
	second := &recordingShutdowner{err: errors.New("flush failed")}

	srv, err := New(fake.NewLogger(), WithShutdown(first, second))
	require.NoError(t, err)

	err = srv.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush failed")

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestStartStopsOnContextCancel(t *testing.T) {
	comp := &recordingShutdowner{}
	srv, err := New(fake.NewLogger(), WithAddress("127.0.0.1:0"), WithShutdown(comp))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Equal(t, 1, comp.calls)
}

func TestStartReturnsListenErrorAndStopsComponents(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	comp := &recordingShutdowner{}
	srv, err := New(fake.NewLogger(), WithAddress(busy.Addr().String()), WithShutdown(comp))
	require.NoError(t, err)

	err = srv.Start(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "address already in use")
	assert.Equal(t, 1, comp.calls)
}

func TestConfigFromSettings(t *testing.T) {
	cfg := ConfigFromSettings(config.ServerSettings{
		Address:         ":9000",
		ReadTimeout:     time.Second,
		WriteTimeout:    2 * time.Second,
		IdleTimeout:     3 * time.Second,
		BodyLimit:       512,
		ShutdownTimeout: 4 * time.Second,
		ShutdownSignals: []string{"SIGHUP"},
	}, "pipetrace", "1.2.3")

	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":9000", cfg.Address)
	assert.Equal(t, int64(512), cfg.BodyLimit)
	assert.Equal(t, 4*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []os.Signal{syscall.SIGHUP}, cfg.Signals)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)

	cfg.ShutdownTimeout = 0
	assert.ErrorContains(t, cfg.Validate(), "shutdown timeout")
}
