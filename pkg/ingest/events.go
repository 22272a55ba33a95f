package ingest

import (
	"time"

	"github.com/JailtonJunior94/pipetrace/pkg/metadata"
	"github.com/JailtonJunior94/pipetrace/pkg/registry"
	"github.com/JailtonJunior94/pipetrace/pkg/tracker"
)

// Event types accepted by POST /v1/events.
const (
	TypeBuildStarted   = "build.started"
	TypeBuildCompleted = "build.completed"
	TypeStageStarted   = "stage.started"
	TypeStageCompleted = "stage.completed"
	TypeStepStarted    = "step.started"
	TypeStepCompleted  = "step.completed"
)

// EventRequest is the JSON envelope of a lifecycle event. Which fields are
// read depends on Type.
type EventRequest struct {
	Type  string `json:"type"`
	Build string `json:"build"`

	JobName        string                 `json:"job_name,omitempty"`
	Pipeline       *PipelineRequest       `json:"pipeline,omitempty"`
	RepositoryURLs []RepositoryURLRequest `json:"repository_urls,omitempty"`

	Result   string `json:"result,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Revision string `json:"revision,omitempty"`

	Node        string `json:"node,omitempty"`
	Start       string `json:"start,omitempty"`
	Descriptor  string `json:"descriptor,omitempty"`
	Label       string `json:"label,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Error       string `json:"error,omitempty"`

	Step        string `json:"step,omitempty"`
	Name        string `json:"name,omitempty"`
	Builder     bool   `json:"builder,omitempty"`
	CanContinue bool   `json:"can_continue,omitempty"`
}

// PipelineRequest carries the run identity sent with build.started.
type PipelineRequest struct {
	Name       string    `json:"name"`
	RunID      string    `json:"run_id"`
	URL        string    `json:"url,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	RunnerID   *int      `json:"runner_id,omitempty"`
	RunnerName string    `json:"runner_name,omitempty"`
	Labels     []string  `json:"labels,omitempty"`
}

type RepositoryURLRequest struct {
	Source string `json:"source"`
	URL    string `json:"url"`
}

// CheckoutRequest reports a finished SCM checkout. Env holds the checkout
// environment (GIT_URL, GIT_COMMIT, GIT_BRANCH); SCM the job declaration,
// used only for what the environment left unknown.
type CheckoutRequest struct {
	Env map[string]string `json:"env,omitempty"`
	SCM *SCMRequest       `json:"scm,omitempty"`
}

type SCMRequest struct {
	RemoteURLs []string `json:"remote_urls,omitempty"`
	Branches   []string `json:"branches,omitempty"`
	Revision   string   `json:"revision,omitempty"`
}

// EnvironmentResponse lists the variables to inject into the processes of
// a build, and the dashboard link of its trace when the repository is known.
type EnvironmentResponse struct {
	Build        string            `json:"build"`
	Environment  map[string]string `json:"environment"`
	DashboardURL string            `json:"dashboard_url,omitempty"`
}

type statusResponse struct {
	Status string `json:"status"`
	Type   string `json:"type,omitempty"`
}

func (p PipelineRequest) pipeline() metadata.Pipeline {
	return metadata.Pipeline{
		Name:       p.Name,
		RunID:      p.RunID,
		URL:        p.URL,
		CreatedAt:  p.CreatedAt,
		RunnerID:   p.RunnerID,
		RunnerName: p.RunnerName,
		Labels:     p.Labels,
	}
}

func (s SCMRequest) scm() metadata.SCM {
	return metadata.SCM{RemoteURLs: s.RemoteURLs, Branches: s.Branches, Revision: s.Revision}
}

func required(event, field, value string) error {
	if value == "" {
		return &FieldError{Event: event, Field: field, Err: ErrMissingField}
	}
	return nil
}

// toEvent validates the envelope and converts it to a tracker event.
func (e EventRequest) toEvent() (tracker.Event, error) {
	if err := required("event", "type", e.Type); err != nil {
		return nil, err
	}
	if err := required(e.Type, "build", e.Build); err != nil {
		return nil, err
	}
	build := registry.BuildHandle(e.Build)

	switch e.Type {
	case TypeBuildStarted:
		if err := required(e.Type, "job_name", e.JobName); err != nil {
			return nil, err
		}
		urls := make([]tracker.RepositoryURL, 0, len(e.RepositoryURLs))
		for _, u := range e.RepositoryURLs {
			urls = append(urls, tracker.RepositoryURL{Source: u.Source, URL: u.URL})
		}
		return tracker.BuildStarted{Build: build, JobName: e.JobName, RepositoryURLs: urls}, nil

	case TypeBuildCompleted:
		return tracker.BuildCompleted{Build: build, Result: e.Result, Branch: e.Branch, Revision: e.Revision}, nil

	case TypeStageStarted:
		if err := required(e.Type, "node", e.Node); err != nil {
			return nil, err
		}
		return tracker.StageStarted{
			Build:       build,
			Node:        registry.StageHandle(e.Node),
			Descriptor:  e.Descriptor,
			Label:       e.Label,
			DisplayName: e.DisplayName,
		}, nil

	case TypeStageCompleted:
		if err := required(e.Type, "start", e.Start); err != nil {
			return nil, err
		}
		return tracker.StageCompleted{
			Build:      build,
			Start:      registry.StageHandle(e.Start),
			Descriptor: e.Descriptor,
			Label:      e.Label,
			Error:      e.Error,
			Result:     e.Result,
		}, nil

	case TypeStepStarted:
		if err := required(e.Type, "step", e.Step); err != nil {
			return nil, err
		}
		return tracker.StepStarted{Build: build, Step: registry.StepHandle(e.Step), Name: e.Name, Builder: e.Builder}, nil

	case TypeStepCompleted:
		if err := required(e.Type, "step", e.Step); err != nil {
			return nil, err
		}
		return tracker.StepCompleted{
			Build:       build,
			Step:        registry.StepHandle(e.Step),
			Name:        e.Name,
			Builder:     e.Builder,
			CanContinue: e.CanContinue,
			Result:      e.Result,
		}, nil
	}

	return nil, &FieldError{Event: e.Type, Field: "type", Err: ErrUnknownEventType}
}
