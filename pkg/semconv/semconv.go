// Package semconv holds the attribute vocabulary written on CI spans.
//
// Keys follow the OpenTelemetry CICD and VCS semantic conventions. A few keys
// from an older revision of the schema are still emitted as aliases, see
// Legacy.
package semconv

import "go.opentelemetry.io/otel/attribute"

// ProviderName is the value of cicd.provider.name for every span.
const ProviderName = "jenkins"

const (
	CICDProviderName = attribute.Key("cicd.provider.name")

	// Pipeline
	CICDPipelineName      = attribute.Key("cicd.pipeline.name")
	CICDPipelineRunID     = attribute.Key("cicd.pipeline.run.id")
	CICDPipelineURL       = attribute.Key("cicd.pipeline.url")
	CICDPipelineCreatedAt = attribute.Key("cicd.pipeline.created_at")
	CICDPipelineResult    = attribute.Key("cicd.pipeline.result")
	CICDPipelineLabels    = attribute.Key("cicd.pipeline.labels")

	// Runner
	CICDPipelineRunnerID   = attribute.Key("cicd.pipeline.runner.id")
	CICDPipelineRunnerName = attribute.Key("cicd.pipeline.runner.name")

	// Task (build, stage or step)
	CICDPipelineTaskName      = attribute.Key("cicd.pipeline.task.name")
	CICDPipelineTaskRunID     = attribute.Key("cicd.pipeline.task.run.id")
	CICDPipelineTaskScope     = attribute.Key("cicd.pipeline.task.scope")
	CICDPipelineTaskRunResult = attribute.Key("cicd.pipeline.task.run.result")

	// VCS
	VCSRefHeadName         = attribute.Key("vcs.ref.head.name")
	VCSRefHeadRevision     = attribute.Key("vcs.ref.head.revision")
	VCSRepositoryName      = attribute.Key("vcs.repository.name")
	VCSRepositoryURLFull   = attribute.Key("vcs.repository.url.full")
	VCSRepositoryURLSource = attribute.Key("vcs.repository.url.source")
)

// Deprecated keys still understood by older collection backends.
const (
	LegacyCICDPipelineID    = attribute.Key("cicd.pipeline.id")
	LegacyCICDPipelineScope = attribute.Key("cicd.pipeline.scope")
	LegacyVCSRefBaseName    = attribute.Key("vcs.ref.base.name")
)

// Legacy maps canonical keys to their deprecated alias.
var Legacy = map[attribute.Key]attribute.Key{
	CICDPipelineRunID:     LegacyCICDPipelineID,
	CICDPipelineTaskScope: LegacyCICDPipelineScope,
	VCSRefHeadName:        LegacyVCSRefBaseName,
}

// Task scopes.
const (
	ScopeJob  = "job"
	ScopeStep = "step"
)

// WithLegacy returns kvs followed by the deprecated alias of every canonical
// key that has one.
func WithLegacy(kvs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(kvs)+len(Legacy))
	out = append(out, kvs...)
	for _, kv := range kvs {
		if alias, ok := Legacy[kv.Key]; ok {
			out = append(out, attribute.KeyValue{Key: alias, Value: kv.Value})
		}
	}
	return out
}

// Known reports whether key is part of the vocabulary, canonical or legacy.
func Known(key attribute.Key) bool {
	_, ok := known[key]
	return ok
}

var known = map[attribute.Key]struct{}{
	CICDProviderName: {}, CICDPipelineName: {}, CICDPipelineRunID: {}, CICDPipelineURL: {},
	CICDPipelineCreatedAt: {}, CICDPipelineResult: {}, CICDPipelineLabels: {},
	CICDPipelineRunnerID: {}, CICDPipelineRunnerName: {},
	CICDPipelineTaskName: {}, CICDPipelineTaskRunID: {}, CICDPipelineTaskScope: {}, CICDPipelineTaskRunResult: {},
	VCSRefHeadName: {}, VCSRefHeadRevision: {}, VCSRepositoryName: {}, VCSRepositoryURLFull: {}, VCSRepositoryURLSource: {},
	LegacyCICDPipelineID: {}, LegacyCICDPipelineScope: {}, LegacyVCSRefBaseName: {},
}
