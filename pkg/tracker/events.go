package tracker

import "github.com/JailtonJunior94/pipetrace/pkg/registry"

// StageDescriptor is the step descriptor of a pipeline stage block.
const StageDescriptor = "stage"

// Event is a lifecycle notification from the host engine. The set of events
// is closed: only the types of this package implement it.
type Event interface {
	BuildHandle() registry.BuildHandle
	event()
}

// RepositoryURL is a repository URL discovered on a job, with the name of
// the place it was found in.
type RepositoryURL struct {
	Source string
	URL    string
}

// BuildStarted is sent when a run starts.
type BuildStarted struct {
	Build   registry.BuildHandle
	JobName string
	// RepositoryURLs in discovery order: project level first, then SCM.
	RepositoryURLs []RepositoryURL
}

// BuildCompleted is sent when a run finishes. An empty Result means the
// engine reported none.
type BuildCompleted struct {
	Build    registry.BuildHandle
	Result   string
	Branch   string
	Revision string
}

// StageStarted is sent for every block start node of a pipeline; only
// labelled stage blocks open a span.
type StageStarted struct {
	Build       registry.BuildHandle
	Node        registry.StageHandle
	Descriptor  string
	Label       string
	DisplayName string
}

// StageCompleted is sent for every block end node. Start is the handle of
// the matching start node.
type StageCompleted struct {
	Build      registry.BuildHandle
	Start      registry.StageHandle
	Descriptor string
	Label      string
	// Error is the error marker attached to the end node, empty when the
	// block succeeded.
	Error  string
	Result string
}

// StepStarted is sent when a freestyle build step starts.
type StepStarted struct {
	Build registry.BuildHandle
	Step  registry.StepHandle
	// Name is the simple type name of the step, e.g. Shell.
	Name    string
	Builder bool
}

// StepCompleted is sent when a freestyle build step finishes.
type StepCompleted struct {
	Build       registry.BuildHandle
	Step        registry.StepHandle
	Name        string
	Builder     bool
	CanContinue bool
	Result      string
}

func (e BuildStarted) BuildHandle() registry.BuildHandle   { return e.Build }
func (e BuildCompleted) BuildHandle() registry.BuildHandle { return e.Build }
func (e StageStarted) BuildHandle() registry.BuildHandle   { return e.Build }
func (e StageCompleted) BuildHandle() registry.BuildHandle { return e.Build }
func (e StepStarted) BuildHandle() registry.BuildHandle    { return e.Build }
func (e StepCompleted) BuildHandle() registry.BuildHandle  { return e.Build }

func (BuildStarted) event()   {}
func (BuildCompleted) event() {}
func (StageStarted) event()   {}
func (StageCompleted) event() {}
func (StepStarted) event()    {}
func (StepCompleted) event()  {}

// isStage reports whether a block node belongs to a labelled stage.
func isStage(descriptor, label string) bool {
	return descriptor == StageDescriptor && label != ""
}
