// Package registry holds the open spans of running builds, keyed by the
// handle of the execution unit that opened them.
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/JailtonJunior94/pipetrace/pkg/span"
)

// BuildHandle identifies a build run.
type BuildHandle string

// StageHandle identifies the start node of a stage.
type StageHandle string

// StepHandle identifies a freestyle build step.
type StepHandle string

// Table maps handles of one kind to open spans. Every operation is atomic
// per key; there is no table-wide lock.
type Table[H comparable] struct {
	entries sync.Map
	size    atomic.Int64
}

// Put registers s under h and returns the span it replaced, if any.
func (t *Table[H]) Put(h H, s *span.Span) (*span.Span, bool) {
	previous, loaded := t.entries.Swap(h, s)
	if !loaded {
		t.size.Add(1)
		return nil, false
	}
	return previous.(*span.Span), true
}

// PutIfAbsent registers s under h unless a span is already there. It returns
// the registered span and whether s was stored.
func (t *Table[H]) PutIfAbsent(h H, s *span.Span) (*span.Span, bool) {
	actual, loaded := t.entries.LoadOrStore(h, s)
	if loaded {
		return actual.(*span.Span), false
	}
	t.size.Add(1)
	return s, true
}

func (t *Table[H]) Get(h H) (*span.Span, bool) {
	v, ok := t.entries.Load(h)
	if !ok {
		return nil, false
	}
	return v.(*span.Span), true
}

// Remove unregisters the span of h. Of two concurrent removals only one
// observes the span.
func (t *Table[H]) Remove(h H) (*span.Span, bool) {
	v, ok := t.entries.LoadAndDelete(h)
	if !ok {
		return nil, false
	}
	t.size.Add(-1)
	return v.(*span.Span), true
}

// RemoveIf unregisters every span matching match and returns them. A span
// removed concurrently by Remove is returned by exactly one of the two.
func (t *Table[H]) RemoveIf(match func(*span.Span) bool) []*span.Span {
	var removed []*span.Span
	t.entries.Range(func(k, v any) bool {
		s := v.(*span.Span)
		if match(s) && t.entries.CompareAndDelete(k, v) {
			t.size.Add(-1)
			removed = append(removed, s)
		}
		return true
	})
	return removed
}

// Len returns the number of registered spans.
func (t *Table[H]) Len() int {
	return int(t.size.Load())
}

// Registry groups the three tables. The zero value is ready to use.
type Registry struct {
	Builds Table[BuildHandle]
	Stages Table[StageHandle]
	Steps  Table[StepHandle]
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{}
}

// Stats is a point in time view of the table sizes.
type Stats struct {
	Builds int `json:"builds"`
	Stages int `json:"stages"`
	Steps  int `json:"steps"`
}

func (r *Registry) Stats() Stats {
	return Stats{
		Builds: r.Builds.Len(),
		Stages: r.Stages.Len(),
		Steps:  r.Steps.Len(),
	}
}
