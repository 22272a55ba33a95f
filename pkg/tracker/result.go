package tracker

import (
	"fmt"
	"strings"

	"github.com/JailtonJunior94/pipetrace/pkg/span"
)

// Result labels written to cicd.pipeline.result and
// cicd.pipeline.task.run.result.
const (
	LabelSuccess   = "success"
	LabelSkipped   = "skipped"
	LabelCancelled = "cancelled"
	LabelFailure   = "failure"
	LabelUnknown   = "unknown"
)

// Outcome is a host result translated to a span status and label. Known is
// false for results the table does not cover.
type Outcome struct {
	Status span.Status
	Label  string
	Known  bool
}

// UnrecognizedResultError describes a result the mapping does not cover.
type UnrecognizedResultError struct {
	Result string
}

func (e *UnrecognizedResultError) Error() string {
	return fmt.Sprintf("unrecognized build result %q", e.Result)
}

// MapResult translates a host build result. It is total: absent and unknown
// results map to UNSET.
func MapResult(result string) Outcome {
	switch strings.ToUpper(strings.TrimSpace(result)) {
	case "SUCCESS":
		return Outcome{Status: span.StatusOK, Label: LabelSuccess, Known: true}
	case "NOT_BUILT", "SKIPPED":
		return Outcome{Status: span.StatusOK, Label: LabelSkipped, Known: true}
	case "ABORTED":
		return Outcome{Status: span.StatusError, Label: LabelCancelled, Known: true}
	case "FAILURE", "UNSTABLE":
		return Outcome{Status: span.StatusError, Label: LabelFailure, Known: true}
	case "":
		return Outcome{Status: span.StatusUnset, Label: LabelUnknown, Known: true}
	default:
		return Outcome{Status: span.StatusUnset, Label: LabelUnknown, Known: false}
	}
}

func succeeded(ok bool) Outcome {
	if ok {
		return Outcome{Status: span.StatusOK, Label: LabelSuccess, Known: true}
	}
	return Outcome{Status: span.StatusError, Label: LabelFailure, Known: true}
}
