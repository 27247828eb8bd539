package compiler

import (
	"errors"
	"strings"

	"github.com/leapstack-labs/leapmetrics/internal/dag"
	"github.com/leapstack-labs/leapmetrics/internal/resolver"
	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// buildGraph adds every loaded metric name as a node and an edge from each
// formula reference to the derived metric using it. Duplicated names are
// nodes too, so their dependents are excluded with them.
func buildGraph(s *State) {
	g := dag.NewGraph()
	for _, name := range s.Names {
		g.AddNode(name, s.Index[name])
	}
	for _, name := range s.Names {
		res, ok := s.Resolutions[name]
		if !ok {
			continue
		}
		for _, ref := range res.References {
			if _, exists := g.GetNode(ref); exists {
				_ = g.AddEdge(ref, name)
			}
		}
	}
	s.Graph = g
}

// excludeCycles turns every dependency cycle among non-excluded metrics
// into a reference error and excludes its members.
func excludeCycles(s *State) {
	active := s.Graph.Without(s.ExcludedNames())
	for _, cycle := range active.Cycles() {
		members := cycle.Members()
		m := s.Index[members[0]]
		s.ExcludeAll(members, core.NewReferenceError(m, members,
			"dependency cycle: %s", strings.Join(cycle.Path, " -> ")))
	}
}

// excludeDependents excludes every metric that transitively references an
// excluded metric. Each is reported with its directly excluded references.
func excludeDependents(s *State) {
	for {
		changed := false
		for _, name := range s.Graph.GetAffectedNodes(s.ExcludedNames()) {
			if s.IsExcluded(name) {
				continue
			}
			var missing []string
			for _, parent := range s.Graph.GetParents(name) {
				if s.IsExcluded(parent) {
					missing = append(missing, parent)
				}
			}
			if len(missing) == 0 {
				continue
			}
			s.Exclude(name, core.NewReferenceError(s.Index[name], []string{name},
				"formula references excluded metric(s): %s", strings.Join(missing, ", ")))
			changed = true
		}
		if !changed {
			return
		}
	}
}

// emissionOrder returns the surviving resolutions so that every metric
// follows the metrics it references, with ties broken by name.
func emissionOrder(s *State) ([]*resolver.Resolution, error) {
	nodes, err := s.Graph.Without(s.ExcludedNames()).TopologicalSort()
	if err != nil {
		var cycleErr *dag.CycleError
		if errors.As(err, &cycleErr) {
			// excludeCycles removes every cycle before ordering.
			return nil, core.NewReferenceError(nil, cycleErr.Members(), "unresolved dependency cycle")
		}
		return nil, err
	}

	out := make([]*resolver.Resolution, 0, len(nodes))
	for _, n := range nodes {
		if res, ok := s.Resolutions[n.ID]; ok {
			out = append(out, res)
		}
	}
	return out, nil
}
