package exporter

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredential marks a partition whose organization has no API key.
	ErrMissingCredential = errors.New("no API key configured for organization")
	// ErrShutdown is returned by exports attempted after Shutdown.
	ErrShutdown = errors.New("exporter is shut down")
)

// Outcome is what happened to one partition.
type Outcome string

const (
	OutcomeExported Outcome = "exported"
	OutcomeFailed   Outcome = "failed"
	OutcomeSkipped  Outcome = "skipped"
)

// PartitionError reports a partition that was not exported.
type PartitionError struct {
	Repository string
	Err        error
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("export of %s: %v", e.Repository, e.Err)
}

func (e *PartitionError) Unwrap() error {
	return e.Err
}

// PartitionResult is the result of one owner/repo partition.
type PartitionResult struct {
	Repository string
	Spans      int
	Outcome    Outcome
	Err        error
}

// Result aggregates one export call.
type Result struct {
	// Total counts every span handed in, including dropped ones.
	Total int
	// Dropped counts spans without a well-formed owner/repo repository name.
	Dropped    int
	Partitions []PartitionResult
}

// Success reports whether every partition was exported.
func (r Result) Success() bool {
	for _, p := range r.Partitions {
		if p.Outcome != OutcomeExported {
			return false
		}
	}
	return true
}

// Err joins the errors of every partition that was not exported.
func (r Result) Err() error {
	var errs []error
	for _, p := range r.Partitions {
		if p.Outcome == OutcomeExported {
			continue
		}
		errs = append(errs, &PartitionError{Repository: p.Repository, Err: p.Err})
	}
	return errors.Join(errs...)
}

// Count returns the number of partitions with outcome o.
func (r Result) Count(o Outcome) int {
	n := 0
	for _, p := range r.Partitions {
		if p.Outcome == o {
			n++
		}
	}
	return n
}
