// Package resolver expands validated metrics into measure requests and
// extracts the metric references of derived formulas.
package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// Request is one measure a metric needs from a source.
type Request struct {
	// Name is the explicit side name, or the synthetic name for Role
	Name      string
	Role      core.MeasureRole
	Source    string
	Spec      *core.MeasureSpec
	Column    string
	Filters   []string
	Signature Signature
}

// Resolution is the expansion of a single metric.
type Resolution struct {
	Metric   *core.MetricDefinition
	Requests []*Request
	// References are the metric names a derived formula uses, in order of
	// first appearance.
	References []string
}

// Request returns the request filling role, if any.
func (r *Resolution) Request(role core.MeasureRole) *Request {
	for _, req := range r.Requests {
		if req.Role == role {
			return req
		}
	}
	return nil
}

// Resolver resolves metrics against the set of known metric names.
type Resolver struct {
	names []string
}

// New creates a Resolver. names is the set of every loaded metric name; it
// is the vocabulary for derived formulas.
func New(names []string) *Resolver {
	return &Resolver{names: SortNames(names)}
}

// Resolve expands m. Derived formulas with unknown identifiers return a
// reference error alongside a partial resolution.
func (r *Resolver) Resolve(m *core.MetricDefinition) (*Resolution, error) {
	res := &Resolution{Metric: m}

	switch p := m.Params.(type) {
	case *core.SimpleParams:
		res.add(newRequest(m.Name, core.RoleMeasure, p.Source, p.Measure))
	case *core.RatioParams:
		res.addInput(m.Name, p.Numerator, core.RoleNumerator)
		res.addInput(m.Name, p.Denominator, core.RoleDenominator)
	case *core.ConversionParams:
		res.addInput(m.Name, p.Base, core.RoleBase)
		res.addInput(m.Name, p.Conversion, core.RoleConversion)
	case *core.CumulativeParams:
		res.addInput(m.Name, p.Measure, core.RoleCumulative)
	case *core.DerivedParams:
		refs, unknown := tokenize(p.Formula, r.names)
		res.References = refs
		for _, ref := range refs {
			if ref == m.Name {
				return res, core.NewReferenceError(m, []string{m.Name}, "formula references itself")
			}
		}
		if len(unknown) > 0 {
			return res, core.NewReferenceError(m, []string{m.Name},
				"formula references unknown metric(s): %s", strings.Join(unknown, ", "))
		}
	default:
		return nil, fmt.Errorf("metric %q has no parameters for type %q", m.Name, m.Type)
	}

	return res, nil
}

func (res *Resolution) addInput(metric string, in *core.MeasureInput, role core.MeasureRole) {
	if in == nil {
		return
	}
	res.add(newRequest(in.EffectiveName(metric, role), role, in.Source, in.Measure))
}

func (res *Resolution) add(req *Request) {
	if req != nil {
		res.Requests = append(res.Requests, req)
	}
}

func newRequest(name string, role core.MeasureRole, source string, spec *core.MeasureSpec) *Request {
	if spec == nil {
		return nil
	}
	column := spec.Column
	if column == "" {
		column = name
	}
	req := &Request{
		Name:    name,
		Role:    role,
		Source:  source,
		Spec:    spec,
		Column:  column,
		Filters: NormalizeFilters(spec.Filters),
	}
	req.Signature = signatureOf(req)
	return req
}

// SortNames returns a sorted, de-duplicated copy of names.
func SortNames(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n != "" && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
