package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapmetrics/internal/dag"
	"github.com/leapstack-labs/leapmetrics/internal/resolver"
	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// State carries everything one compilation run knows. Stages read from it
// and record their findings in it; nothing outlives the run.
type State struct {
	// Metrics are all loaded definitions, sorted by name then location
	Metrics []*core.MetricDefinition
	// Index maps each name to its definition. Duplicated names map to nil.
	Index map[string]*core.MetricDefinition
	// Names are all loaded metric names, sorted and unique
	Names []string
	// Unnamed are definitions without a name; they never join the run
	Unnamed []*core.MetricDefinition

	Errors []*core.CompileError
	// Excluded maps a metric name to the kind of error that removed it
	Excluded map[string]core.ErrorKind

	Resolutions map[string]*resolver.Resolution
	Graph       *dag.Graph
}

// NewState indexes metrics and reports duplicated names.
func NewState(metrics []*core.MetricDefinition) *State {
	s := &State{
		Metrics:     append([]*core.MetricDefinition(nil), metrics...),
		Index:       make(map[string]*core.MetricDefinition, len(metrics)),
		Excluded:    make(map[string]core.ErrorKind),
		Resolutions: make(map[string]*resolver.Resolution),
	}
	sort.SliceStable(s.Metrics, func(i, j int) bool {
		a, b := s.Metrics[i], s.Metrics[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Pos.Line < b.Pos.Line
	})

	byName := make(map[string][]*core.MetricDefinition)
	for _, m := range s.Metrics {
		if m.Name == "" {
			s.Unnamed = append(s.Unnamed, m)
			continue
		}
		byName[m.Name] = append(byName[m.Name], m)
	}
	for name, defs := range byName {
		s.Names = append(s.Names, name)
		if len(defs) == 1 {
			s.Index[name] = defs[0]
			continue
		}
		s.Index[name] = nil
		locations := make([]string, len(defs))
		for i, d := range defs {
			locations[i] = d.Location()
		}
		s.Exclude(name, core.NewNameCollisionError(defs[1], []string{name},
			"metric name is defined %d times: %s", len(defs), strings.Join(locations, ", ")))
	}
	sort.Strings(s.Names)
	return s
}

// AddError records an error without excluding any metric.
func (s *State) AddError(err *core.CompileError) {
	s.Errors = append(s.Errors, err)
}

// Exclude removes a metric from the run and records why. Only the first
// reason is kept as the metric's exclusion kind.
func (s *State) Exclude(name string, err *core.CompileError) {
	s.Errors = append(s.Errors, err)
	if _, done := s.Excluded[name]; !done {
		s.Excluded[name] = err.Kind
	}
}

// ExcludeAll removes several metrics for one shared error.
func (s *State) ExcludeAll(names []string, err *core.CompileError) {
	s.Errors = append(s.Errors, err)
	for _, name := range names {
		if _, done := s.Excluded[name]; !done {
			s.Excluded[name] = err.Kind
		}
	}
}

// IsExcluded reports whether name was removed from the run.
func (s *State) IsExcluded(name string) bool {
	_, ok := s.Excluded[name]
	return ok
}

// Active returns the uniquely named, non-excluded metrics in name order.
func (s *State) Active() []*core.MetricDefinition {
	var out []*core.MetricDefinition
	for _, name := range s.Names {
		if m := s.Index[name]; m != nil && !s.IsExcluded(name) {
			out = append(out, m)
		}
	}
	return out
}

// ActiveResolutions returns resolutions of non-excluded metrics in name order.
func (s *State) ActiveResolutions() []*resolver.Resolution {
	var out []*resolver.Resolution
	for _, name := range s.Names {
		if res, ok := s.Resolutions[name]; ok && !s.IsExcluded(name) {
			out = append(out, res)
		}
	}
	return out
}

// ExcludedNames returns every excluded metric name, sorted.
func (s *State) ExcludedNames() []string {
	out := make([]string, 0, len(s.Excluded))
	for name := range s.Excluded {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of recorded errors of kind.
func (s *State) Count(kind core.ErrorKind) int {
	n := 0
	for _, e := range s.Errors {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (s *State) String() string {
	return fmt.Sprintf("%d metrics, %d excluded, %d errors", len(s.Names), len(s.Excluded), len(s.Errors))
}
