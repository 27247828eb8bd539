// Package grouper groups measure requests by source into semantic models.
//
// Grouping runs in two passes. The first pass finds conflicts across every
// resolution: a dimension or entity redefined differently on a shared
// source, or one measure name requested with two different signatures.
// Every metric involved in a conflict is excluded. The second pass builds
// one semantic model per source from the remaining resolutions, merging
// requests with identical signatures into a single measure.
package grouper

import (
	"sort"

	"github.com/leapstack-labs/leapmetrics/internal/resolver"
	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// MeasureSuffix is appended to the canonical request name of a measure.
const MeasureSuffix = "_measure"

// Measure is one deduplicated measure of a semantic model.
type Measure struct {
	Name      string
	Signature resolver.Signature
	// Spec is the specification of the request that gave the measure its name
	Spec    *core.MeasureSpec
	Column  string
	Filters []string
	// Requests are the request names merged into this measure, sorted
	Requests []string
	// Metrics are the metrics sharing this measure, sorted
	Metrics []string
}

// SemanticModel is every measure, dimension and entity of one source.
type SemanticModel struct {
	Source     string
	Measures   []*Measure
	Dimensions []core.DimensionSpec
	Entities   []core.EntitySpec
}

// Name returns the semantic model name.
func (m *SemanticModel) Name() string {
	return m.Source + "_semantic_model"
}

// AggTimeDimension returns the first time dimension by name, or "".
func (m *SemanticModel) AggTimeDimension() string {
	for _, d := range m.Dimensions {
		if d.Type == core.DimensionTime {
			return d.Name
		}
	}
	return ""
}

// Result is the outcome of grouping.
type Result struct {
	// Models are sorted by source
	Models []*SemanticModel
	// Resolutions are the surviving resolutions, sorted by metric name
	Resolutions []*resolver.Resolution
	// Errors are the name collisions found in the first pass
	Errors []*core.CompileError
	// Excluded holds every metric removed by a collision
	Excluded map[string]bool

	measureNames map[string]map[core.MeasureRole]string
}

// MeasureName returns the emitted measure name used by metric for role.
func (r *Result) MeasureName(metric string, role core.MeasureRole) string {
	return r.measureNames[metric][role]
}

// MeasureCount returns the total number of emitted measures.
func (r *Result) MeasureCount() int {
	n := 0
	for _, m := range r.Models {
		n += len(m.Measures)
	}
	return n
}

// Group groups the given resolutions. Input order does not matter.
func Group(resolutions []*resolver.Resolution) *Result {
	sorted := append([]*resolver.Resolution(nil), resolutions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Metric.Name < sorted[j].Metric.Name
	})

	result := &Result{
		Excluded:     make(map[string]bool),
		measureNames: make(map[string]map[core.MeasureRole]string),
	}

	detectConflicts(sorted, result)

	for _, res := range sorted {
		if !result.Excluded[res.Metric.Name] {
			result.Resolutions = append(result.Resolutions, res)
		}
	}
	build(result)

	core.SortErrors(result.Errors)
	return result
}

// sources returns the distinct sources a resolution requests measures from.
func sources(res *resolver.Resolution) []string {
	seen := make(map[string]bool)
	var out []string
	for _, req := range res.Requests {
		if !seen[req.Source] {
			seen[req.Source] = true
			out = append(out, req.Source)
		}
	}
	sort.Strings(out)
	return out
}

type owner[T any] struct {
	metric *core.MetricDefinition
	spec   T
}

type sourceKey struct {
	source, name string
}

func detectConflicts(sorted []*resolver.Resolution, result *Result) {
	dims := make(map[sourceKey]owner[core.DimensionSpec])
	entities := make(map[sourceKey]owner[core.EntitySpec])
	measures := make(map[string]owner[*resolver.Request])

	collide := func(first, second *core.MetricDefinition, format string, args ...any) {
		result.Excluded[first.Name] = true
		result.Excluded[second.Name] = true
		result.Errors = append(result.Errors,
			core.NewNameCollisionError(second, []string{first.Name, second.Name}, format, args...))
	}

	for _, res := range sorted {
		m := res.Metric

		for _, source := range sources(res) {
			for _, d := range m.Dimensions {
				key := sourceKey{source, d.Name}
				prev, ok := dims[key]
				if !ok {
					dims[key] = owner[core.DimensionSpec]{m, d}
					continue
				}
				if prev.metric != m && !sameDimension(prev.spec, d) {
					collide(prev.metric, m, "dimension %q on source %q is defined differently by %q (%s) and %q (%s)",
						d.Name, source, prev.metric.Name, describeDimension(prev.spec), m.Name, describeDimension(d))
				}
			}
			for _, e := range m.Entities {
				key := sourceKey{source, e.Name}
				prev, ok := entities[key]
				if !ok {
					entities[key] = owner[core.EntitySpec]{m, e}
					continue
				}
				if prev.metric != m && !sameEntity(prev.spec, e) {
					collide(prev.metric, m, "entity %q on source %q is defined differently by %q (%s) and %q (%s)",
						e.Name, source, prev.metric.Name, describeEntity(prev.spec), m.Name, describeEntity(e))
				}
			}
		}

		for _, req := range res.Requests {
			prev, ok := measures[req.Name]
			if !ok {
				measures[req.Name] = owner[*resolver.Request]{m, req}
				continue
			}
			if prev.spec.Signature != req.Signature {
				collide(prev.metric, m, "measure %q is defined differently by %q (%s) and %q (%s)",
					req.Name, prev.metric.Name, prev.spec.Signature, m.Name, req.Signature)
			}
		}
	}
}

func build(result *Result) {
	models := make(map[string]*SemanticModel)
	bySignature := make(map[resolver.Signature]*Measure)
	dimSeen := make(map[sourceKey]bool)
	entSeen := make(map[sourceKey]bool)

	model := func(source string) *SemanticModel {
		sm, ok := models[source]
		if !ok {
			sm = &SemanticModel{Source: source}
			models[source] = sm
		}
		return sm
	}

	for _, res := range result.Resolutions {
		m := res.Metric

		for _, req := range res.Requests {
			sm := model(req.Source)
			ms, ok := bySignature[req.Signature]
			if !ok {
				ms = &Measure{
					Signature: req.Signature,
					Spec:      req.Spec,
					Column:    req.Column,
					Filters:   req.Filters,
				}
				bySignature[req.Signature] = ms
				sm.Measures = append(sm.Measures, ms)
			}
			if !contains(ms.Requests, req.Name) {
				ms.Requests = append(ms.Requests, req.Name)
				sort.Strings(ms.Requests)
				if ms.Requests[0] == req.Name {
					ms.Spec = req.Spec
				}
			}
			if !contains(ms.Metrics, m.Name) {
				ms.Metrics = append(ms.Metrics, m.Name)
			}
		}

		for _, source := range sources(res) {
			sm := model(source)
			for _, d := range m.Dimensions {
				if key := (sourceKey{source, d.Name}); !dimSeen[key] {
					dimSeen[key] = true
					sm.Dimensions = append(sm.Dimensions, d)
				}
			}
			for _, e := range m.Entities {
				if key := (sourceKey{source, e.Name}); !entSeen[key] {
					entSeen[key] = true
					sm.Entities = append(sm.Entities, e)
				}
			}
		}
	}

	for _, ms := range bySignature {
		ms.Name = ms.Requests[0] + MeasureSuffix
		sort.Strings(ms.Metrics)
	}

	for _, res := range result.Resolutions {
		names := make(map[core.MeasureRole]string, len(res.Requests))
		for _, req := range res.Requests {
			names[req.Role] = bySignature[req.Signature].Name
		}
		result.measureNames[res.Metric.Name] = names
	}

	for _, sm := range models {
		sort.Slice(sm.Measures, func(i, j int) bool { return sm.Measures[i].Name < sm.Measures[j].Name })
		sort.Slice(sm.Dimensions, func(i, j int) bool { return sm.Dimensions[i].Name < sm.Dimensions[j].Name })
		sort.Slice(sm.Entities, func(i, j int) bool { return sm.Entities[i].Name < sm.Entities[j].Name })
		result.Models = append(result.Models, sm)
	}
	sort.Slice(result.Models, func(i, j int) bool { return result.Models[i].Source < result.Models[j].Source })
}

func sameDimension(a, b core.DimensionSpec) bool {
	return a.Type == b.Type && a.Grain == b.Grain && a.Expr == b.Expr
}

func sameEntity(a, b core.EntitySpec) bool {
	return a.Type == b.Type && a.Expr == b.Expr
}

func describeDimension(d core.DimensionSpec) string {
	s := string(d.Type)
	if d.Grain != "" {
		s += ", grain " + string(d.Grain)
	}
	if d.Expr != "" {
		s += ", expr " + d.Expr
	}
	return s
}

func describeEntity(e core.EntitySpec) string {
	s := string(e.Type)
	if e.Expr != "" {
		s += ", expr " + e.Expr
	}
	return s
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
