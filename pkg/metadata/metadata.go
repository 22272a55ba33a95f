// Package metadata keeps the per-build attribute bag harvested from the
// host engine and writes it onto spans when they close.
package metadata

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/JailtonJunior94/pipetrace/pkg/observability"
	"github.com/JailtonJunior94/pipetrace/pkg/observability/noop"
	"github.com/JailtonJunior94/pipetrace/pkg/registry"
	"github.com/JailtonJunior94/pipetrace/pkg/semconv"
	"github.com/JailtonJunior94/pipetrace/pkg/span"
	"go.opentelemetry.io/otel/attribute"
)

// Repository URL sources, in the order the host engine discovers them.
const (
	SourceProject     = "GitHubProjectProperty"
	SourceSCMRemote   = "SCMRemoteURL"
	SourceCheckoutEnv = "SCMCheckoutURL"
	SourceGitSCM      = "GitSCM"
)

// ControllerRunnerName names builds executed on the controller itself.
const ControllerRunnerName = "master"

// Checkout environment variables exported by the git plugin.
const (
	EnvGitURL    = "GIT_URL"
	EnvGitCommit = "GIT_COMMIT"
	EnvGitBranch = "GIT_BRANCH"
)

var (
	repositoryName = regexp.MustCompile(`[:/]([^:/]+)/([^:/]+?)(?:\.git)?$`)
	remotePrefix   = regexp.MustCompile(`^[^/]+/`)
)

// Pipeline is the identity of a build run.
type Pipeline struct {
	Name       string
	RunID      string
	URL        string
	CreatedAt  time.Time
	RunnerID   *int
	RunnerName string
	Labels     []string
}

// SCM is the source control configuration declared on a job.
type SCM struct {
	RemoteURLs []string
	Branches   []string
	Revision   string
}

type repositoryURL struct {
	source string
	url    string
}

// Bag is the mutable attribute record of one build.
type Bag struct {
	mu           sync.RWMutex
	pipeline     *Pipeline
	repositories []repositoryURL
	branch       string
	revision     string
}

// Pipeline returns a copy of the pipeline identity.
func (b *Bag) Pipeline() (Pipeline, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.pipeline == nil {
		return Pipeline{}, false
	}
	return *b.pipeline, true
}

// RepositoryURL returns the URL of the first source added.
func (b *Bag) RepositoryURL() (source, url string, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.repositories) == 0 {
		return "", "", false
	}
	return b.repositories[0].source, b.repositories[0].url, true
}

// Checkout returns the checked out branch and revision.
func (b *Bag) Checkout() (branch, revision string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.branch, b.revision
}

func (b *Bag) addRepositoryURL(source, url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.repositories {
		if b.repositories[i].source == source {
			b.repositories[i].url = url
			return
		}
	}
	b.repositories = append(b.repositories, repositoryURL{source: source, url: url})
}

func (b *Bag) attributes() []attribute.KeyValue {
	b.mu.RLock()
	defer b.mu.RUnlock()

	kvs := []attribute.KeyValue{semconv.CICDProviderName.String(semconv.ProviderName)}

	if p := b.pipeline; p != nil {
		kvs = append(kvs,
			semconv.CICDPipelineName.String(p.Name),
			semconv.CICDPipelineRunID.String(p.RunID),
			semconv.CICDPipelineURL.String(p.URL),
			semconv.CICDPipelineLabels.StringSlice(p.Labels),
		)
		if !p.CreatedAt.IsZero() {
			kvs = append(kvs, semconv.CICDPipelineCreatedAt.Int64(p.CreatedAt.UnixMilli()))
		}
		if p.RunnerID != nil {
			kvs = append(kvs, semconv.CICDPipelineRunnerID.Int(*p.RunnerID))
		}
		if p.RunnerName != "" {
			kvs = append(kvs, semconv.CICDPipelineRunnerName.String(p.RunnerName))
		}
	}

	if b.branch != "" {
		kvs = append(kvs, semconv.VCSRefHeadName.String(b.branch))
	}
	if b.revision != "" {
		kvs = append(kvs, semconv.VCSRefHeadRevision.String(b.revision))
	}

	if len(b.repositories) > 0 {
		first := b.repositories[0]
		kvs = append(kvs,
			semconv.VCSRepositoryURLFull.String(first.url),
			semconv.VCSRepositoryURLSource.String(first.source),
		)
		if name, ok := RepositoryName(first.url); ok {
			kvs = append(kvs, semconv.VCSRepositoryName.String(name))
		}
	}
	return kvs
}

// Store holds one bag per build. It is safe for concurrent use.
type Store struct {
	bags   sync.Map
	legacy bool
	logger observability.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLegacyAttributes controls whether deprecated attribute aliases are
// written next to the canonical keys. Enabled by default.
func WithLegacyAttributes(enabled bool) Option {
	return func(s *Store) {
		s.legacy = enabled
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{legacy: true, logger: noop.NewLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ForBuild returns the bag of build, creating it on first reference.
func (s *Store) ForBuild(build registry.BuildHandle) *Bag {
	if v, ok := s.bags.Load(build); ok {
		return v.(*Bag)
	}
	v, _ := s.bags.LoadOrStore(build, &Bag{})
	return v.(*Bag)
}

// Lookup returns the bag of build without creating it.
func (s *Store) Lookup(build registry.BuildHandle) (*Bag, bool) {
	v, ok := s.bags.Load(build)
	if !ok {
		return nil, false
	}
	return v.(*Bag), true
}

// SetPipeline records the identity of the run. An empty runner name means
// the controller.
func (s *Store) SetPipeline(build registry.BuildHandle, p Pipeline) {
	if p.RunnerID != nil && p.RunnerName == "" {
		p.RunnerName = ControllerRunnerName
	}
	p.Labels = append([]string(nil), p.Labels...)

	bag := s.ForBuild(build)
	bag.mu.Lock()
	bag.pipeline = &p
	bag.mu.Unlock()
}

// AddRepositoryURL records url under source. Empty URLs are ignored; adding
// a source twice replaces its URL but keeps its position.
func (s *Store) AddRepositoryURL(build registry.BuildHandle, source, url string) {
	url = strings.TrimSpace(url)
	if url == "" {
		return
	}
	s.ForBuild(build).addRepositoryURL(source, url)
}

// SetCheckoutInfo records the checked out branch and revision. Empty values
// keep what was recorded before.
func (s *Store) SetCheckoutInfo(build registry.BuildHandle, branch, revision string) {
	bag := s.ForBuild(build)
	bag.mu.Lock()
	defer bag.mu.Unlock()
	if branch != "" {
		bag.branch = branch
	}
	if revision != "" {
		bag.revision = revision
	}
}

// SetCheckoutInfoFromEnv reads the checkout from the environment of a
// finished SCM checkout.
func (s *Store) SetCheckoutInfoFromEnv(build registry.BuildHandle, env map[string]string) {
	s.AddRepositoryURL(build, SourceCheckoutEnv, env[EnvGitURL])
	s.SetCheckoutInfo(build, StripRemote(env[EnvGitBranch]), env[EnvGitCommit])
}

// SetCheckoutInfoFromSCM reads the checkout from a job SCM declaration. It
// does nothing once both branch and revision are known.
func (s *Store) SetCheckoutInfoFromSCM(build registry.BuildHandle, scm SCM) {
	branch, revision := s.ForBuild(build).Checkout()
	if branch != "" && revision != "" {
		return
	}

	if len(scm.RemoteURLs) > 0 {
		s.AddRepositoryURL(build, SourceGitSCM, scm.RemoteURLs[0])
	}
	if len(scm.Branches) > 0 {
		branch = StripRemote(scm.Branches[0])
	}
	s.SetCheckoutInfo(build, branch, scm.Revision)
}

// PopulateAttributes writes every attribute known for build onto sp. The bag
// is never created here, so a late span cannot bring back a released build.
func (s *Store) PopulateAttributes(build registry.BuildHandle, sp *span.Span) {
	bag, ok := s.Lookup(build)
	if !ok {
		sp.SetAttributes(semconv.CICDProviderName.String(semconv.ProviderName))
		s.logger.Debug(context.Background(), "no metadata known for build",
			observability.String("build", string(build)),
			observability.String("span", sp.Name()),
		)
		return
	}

	kvs := bag.attributes()
	if s.legacy {
		kvs = semconv.WithLegacy(kvs...)
	}
	sp.SetAttributes(kvs...)

	if _, _, ok := bag.RepositoryURL(); !ok {
		s.logger.Debug(context.Background(), "no repository url known for build",
			observability.String("build", string(build)),
			observability.String("span", sp.Name()),
		)
	}
}

// Release forgets the bag of build.
func (s *Store) Release(build registry.BuildHandle) {
	s.bags.Delete(build)
}

// RepositoryName derives owner/repo from an https or scp-like git URL.
func RepositoryName(url string) (string, bool) {
	url = strings.TrimSuffix(strings.TrimSpace(url), "/")
	url = strings.TrimSuffix(url, ".git")
	if url == "" {
		return "", false
	}
	m := repositoryName.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1] + "/" + m[2], true
}

// StripRemote removes the remote name from a branch such as origin/main.
func StripRemote(branch string) string {
	return remotePrefix.ReplaceAllString(branch, "")
}
