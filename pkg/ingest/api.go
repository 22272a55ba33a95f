package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/JailtonJunior94/pipetrace/pkg/dashboard"
	"github.com/JailtonJunior94/pipetrace/pkg/metadata"
	"github.com/JailtonJunior94/pipetrace/pkg/observability"
	"github.com/JailtonJunior94/pipetrace/pkg/observability/noop"
	"github.com/JailtonJunior94/pipetrace/pkg/registry"
	"github.com/JailtonJunior94/pipetrace/pkg/span"
	"github.com/JailtonJunior94/pipetrace/pkg/tracker"
	"github.com/go-chi/chi/v5"
)

// EventHandler consumes lifecycle events.
type EventHandler interface {
	Handle(ctx context.Context, ev tracker.Event)
}

// Metadata records what the host engine reports about a build outside of
// lifecycle events.
type Metadata interface {
	SetPipeline(build registry.BuildHandle, p metadata.Pipeline)
	SetCheckoutInfoFromEnv(build registry.BuildHandle, env map[string]string)
	SetCheckoutInfoFromSCM(build registry.BuildHandle, scm metadata.SCM)
	Lookup(build registry.BuildHandle) (*metadata.Bag, bool)
}

// Roots finds the open root span of a build.
type Roots interface {
	Get(build registry.BuildHandle) (*span.Span, bool)
}

// Environment returns the variables to inject into the processes of a build.
type Environment interface {
	Environ(build registry.BuildHandle) map[string]string
}

type Reloader interface {
	Reload(ctx context.Context) error
}

// API is the /v1 router.
type API struct {
	events       EventHandler
	metadata     Metadata
	roots        Roots
	environment  Environment
	reloader     Reloader
	dashboardURL string
	metrics      *Metrics
	logger       observability.Logger
}

// APIOption configures an API.
type APIOption func(*API)

func WithRoots(roots Roots) APIOption {
	return func(a *API) {
		a.roots = roots
	}
}

func WithEnvironment(env Environment) APIOption {
	return func(a *API) {
		a.environment = env
	}
}

// WithReloader enables POST /v1/config/reload.
func WithReloader(r Reloader) APIOption {
	return func(a *API) {
		a.reloader = r
	}
}

// WithDashboardURL sets the dashboard base URL used for deep links. Links
// are omitted while it is empty.
func WithDashboardURL(base string) APIOption {
	return func(a *API) {
		a.dashboardURL = base
	}
}

func WithAPIMetrics(m *Metrics) APIOption {
	return func(a *API) {
		a.metrics = m
	}
}

func WithAPILogger(logger observability.Logger) APIOption {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAPI creates the /v1 router.
func NewAPI(events EventHandler, meta Metadata, opts ...APIOption) *API {
	a := &API{
		events:   events,
		metadata: meta,
		logger:   noop.NewLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register implements Router.
func (a *API) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/events", a.postEvent)
		r.Post("/builds/{build}/checkout", a.postCheckout)
		r.Get("/builds/{build}/environment", a.getEnvironment)
		if a.reloader != nil {
			r.Post("/config/reload", a.postReload)
		}
	})
}

func (a *API) postEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !a.decode(w, r, &req) {
		return
	}

	ev, err := req.toEvent()
	if err != nil {
		writeErrorResponse(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if req.Type == TypeBuildStarted && req.Pipeline != nil {
		a.metadata.SetPipeline(ev.BuildHandle(), req.Pipeline.pipeline())
	}

	a.events.Handle(r.Context(), ev)
	a.metrics.event(req.Type)

	writeJSON(w, http.StatusAccepted, statusResponse{Status: "accepted", Type: req.Type})
}

func (a *API) postCheckout(w http.ResponseWriter, r *http.Request) {
	build, ok := a.openBuild(w, r)
	if !ok {
		return
	}

	var req CheckoutRequest
	if !a.decode(w, r, &req) {
		return
	}

	if len(req.Env) > 0 {
		a.metadata.SetCheckoutInfoFromEnv(build, req.Env)
	}
	if req.SCM != nil {
		a.metadata.SetCheckoutInfoFromSCM(build, req.SCM.scm())
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getEnvironment(w http.ResponseWriter, r *http.Request) {
	build, ok := a.openBuild(w, r)
	if !ok {
		return
	}

	var env map[string]string
	if a.environment != nil {
		env = a.environment.Environ(build)
	}
	if len(env) == 0 {
		writeErrorResponse(w, r, http.StatusNotFound, fmt.Sprintf("no trace context for build %q", build))
		return
	}

	writeJSON(w, http.StatusOK, EnvironmentResponse{
		Build:        string(build),
		Environment:  env,
		DashboardURL: a.dashboardLink(r.Context(), build),
	})
}

func (a *API) postReload(w http.ResponseWriter, r *http.Request) {
	if err := a.reloader.Reload(r.Context()); err != nil {
		writeErrorResponse(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "reloaded"})
}

// openBuild reads the build path parameter and, when roots are known,
// rejects builds without an open root span.
func (a *API) openBuild(w http.ResponseWriter, r *http.Request) (registry.BuildHandle, bool) {
	raw, err := url.PathUnescape(chi.URLParam(r, "build"))
	if err != nil || raw == "" {
		writeErrorResponse(w, r, http.StatusBadRequest, "invalid build handle")
		return "", false
	}
	build := registry.BuildHandle(raw)

	if a.roots != nil {
		if _, ok := a.roots.Get(build); !ok {
			writeErrorResponse(w, r, http.StatusNotFound, fmt.Sprintf("build %q is not running", build))
			return "", false
		}
	}
	return build, true
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeErrorResponse(w, r, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Request body exceeds maximum size of %d bytes", tooLarge.Limit))
		return false
	}
	writeErrorResponse(w, r, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
	return false
}

// dashboardLink returns the deep link of the build's trace, empty when the
// dashboard, the repository or the root span is unknown.
func (a *API) dashboardLink(ctx context.Context, build registry.BuildHandle) string {
	if a.dashboardURL == "" || a.roots == nil {
		return ""
	}
	root, ok := a.roots.Get(build)
	if !ok {
		return ""
	}
	bag, ok := a.metadata.Lookup(build)
	if !ok {
		return ""
	}
	_, repoURL, ok := bag.RepositoryURL()
	if !ok {
		return ""
	}
	repository, ok := metadata.RepositoryName(repoURL)
	if !ok {
		return ""
	}
	owner, name, _ := strings.Cut(repository, "/")

	pipelineName := root.Name()
	if p, ok := bag.Pipeline(); ok && p.Name != "" {
		pipelineName = p.Name
	}

	sc := root.SpanContext()
	link, err := dashboard.Absolute(a.dashboardURL, dashboard.Link{
		Login:        owner,
		Repository:   name,
		JobName:      root.Name(),
		PipelineName: pipelineName,
		TraceID:      sc.TraceID().String(),
		SpanID:       sc.SpanID().String(),
	})
	if err != nil {
		a.logger.Warn(ctx, "failed to build dashboard link",
			observability.String("build", string(build)),
			observability.Error(err),
		)
		return ""
	}
	return link
}
