// Package validate checks metric definitions against the metrics-first schema.
//
// Structural rules always run. Semantic rules (descriptions, aggregation
// parameters, windows, grains, non-additive dimensions) run when enabled.
// Every rule runs for every metric; errors are collected, never fail-fast.
package validate

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// Options configures a Validator.
type Options struct {
	// Semantic enables the semantic rule set.
	Semantic bool
}

// Validator validates metric definitions.
type Validator struct {
	semantic bool
}

// New creates a Validator.
func New(opts Options) *Validator {
	return &Validator{semantic: opts.Semantic}
}

// Validate returns every schema error found on m.
func (v *Validator) Validate(m *core.MetricDefinition) []*core.CompileError {
	c := &checker{m: m, semantic: v.semantic}
	c.run()
	return c.errs
}

type checker struct {
	m        *core.MetricDefinition
	semantic bool
	errs     []*core.CompileError
}

func (c *checker) fail(pos core.Position, format string, args ...any) {
	c.errs = append(c.errs, core.NewSchemaError(c.m, pos, format, args...))
}

func (c *checker) run() {
	m := c.m
	if len(m.DecodeErrors) > 0 {
		c.errs = append(c.errs, m.DecodeErrors...)
		return
	}

	switch {
	case m.Name == "":
		c.fail(core.Position{}, "missing required field 'name'")
	case !core.ValidName(m.Name):
		c.fail(core.Position{}, "name %q must start with a letter or underscore and contain only letters, digits and underscores", m.Name)
	}

	if c.semantic && strings.TrimSpace(m.Description) == "" {
		c.fail(core.Position{}, "missing required field 'description'")
	}

	if !m.Type.Valid() {
		c.fail(core.Position{}, "unknown metric type %q (expected one of %s)", m.Type, joinTypes())
	}

	switch p := m.Params.(type) {
	case *core.SimpleParams:
		c.checkSimple(p)
	case *core.RatioParams:
		c.checkInput(p.Numerator, "numerator")
		c.checkInput(p.Denominator, "denominator")
	case *core.DerivedParams:
		c.checkDerived(p)
	case *core.ConversionParams:
		c.checkConversion(p)
	case *core.CumulativeParams:
		c.checkCumulative(p)
	}

	c.checkDimensions()
	c.checkEntities()

	if c.semantic && m.OffsetWindow != "" && !core.ValidWindow(m.OffsetWindow) {
		c.fail(core.Position{}, "invalid offset_window %q (expected '<count> <unit>', e.g. '1 month')", m.OffsetWindow)
	}
}

func (c *checker) checkSimple(p *core.SimpleParams) {
	if p.Source == "" {
		c.fail(core.Position{}, "simple metric requires 'source'")
	}
	if p.Measure == nil {
		c.fail(core.Position{}, "simple metric requires 'measure'")
		return
	}
	c.checkMeasure(p.Measure, "measure")
}

func (c *checker) checkDerived(p *core.DerivedParams) {
	if strings.TrimSpace(p.Formula) == "" {
		c.fail(core.Position{}, "derived metric requires 'formula'")
	}
	if p.Source != "" {
		c.fail(core.Position{}, "derived metric must not declare 'source'")
	}
	if p.HasMeasure {
		c.fail(core.Position{}, "derived metric must not declare 'measure'")
	}
}

func (c *checker) checkConversion(p *core.ConversionParams) {
	if p.Entity == "" {
		c.fail(core.Position{}, "conversion metric requires 'entity'")
	}
	c.checkInput(p.Base, "base_measure")
	c.checkInput(p.Conversion, "conversion_measure")

	if !c.semantic {
		return
	}
	if p.Window != "" && !core.ValidWindow(p.Window) {
		c.fail(core.Position{}, "invalid window %q (expected '<count> <unit>', e.g. '7 days')", p.Window)
	}
	if p.Calculation != "" && p.Calculation != core.CalculationConversionRate && p.Calculation != core.CalculationConversions {
		c.fail(core.Position{}, "invalid calculation %q (expected %s or %s)",
			p.Calculation, core.CalculationConversionRate, core.CalculationConversions)
	}
	for i, cp := range p.ConstantProperties {
		if cp.BaseProperty == "" || cp.ConversionProperty == "" {
			c.fail(core.Position{}, "constant_properties[%d] requires both 'base_property' and 'conversion_property'", i)
		}
	}
}

func (c *checker) checkCumulative(p *core.CumulativeParams) {
	c.checkInput(p.Measure, "measure")

	hasWindow, hasGrain := p.Window != "", p.GrainToDate != ""
	switch {
	case hasWindow && hasGrain:
		c.fail(core.Position{}, "cumulative metric must declare exactly one of 'window' or 'grain_to_date', not both")
	case !hasWindow && !hasGrain:
		c.fail(core.Position{}, "cumulative metric must declare exactly one of 'window' or 'grain_to_date'")
	}

	if !c.semantic {
		return
	}
	if hasWindow && !core.ValidWindow(p.Window) {
		c.fail(core.Position{}, "invalid window %q (expected '<count> <unit>', e.g. '7 days')", p.Window)
	}
	if hasGrain && !p.GrainToDate.Valid() {
		c.fail(core.Position{}, "invalid grain_to_date %q (expected day, week, month, quarter or year)", p.GrainToDate)
	}
}

// checkInput validates one side of a ratio/conversion or a cumulative measure.
func (c *checker) checkInput(in *core.MeasureInput, field string) {
	if in == nil {
		c.fail(core.Position{}, "%s metric requires '%s'", c.m.Type, field)
		return
	}
	if in.Name != "" && !core.ValidName(in.Name) {
		c.fail(in.Pos, "%s name %q is not a valid identifier", field, in.Name)
	}
	if in.Source == "" {
		c.fail(in.Pos, "'%s' requires 'source' (on the side or the metric)", field)
	}
	if in.Measure == nil {
		c.fail(in.Pos, "'%s' requires 'measure'", field)
		return
	}
	c.checkMeasure(in.Measure, field)
}

func (c *checker) checkMeasure(spec *core.MeasureSpec, field string) {
	if spec.Aggregation == "" {
		c.fail(spec.Pos, "%s: unknown aggregation %q", field, spec.RawAggregation)
	}
	for i, f := range spec.Filters {
		if strings.TrimSpace(f) == "" {
			c.fail(spec.Pos, "%s: filters[%d] is empty", field, i)
		}
	}

	if !c.semantic {
		return
	}

	params, err := core.DecodeAggParams(spec.AggParams)
	if err != nil {
		c.fail(spec.Pos, "%s: invalid agg_params: %v", field, err)
	} else {
		c.checkAggParams(spec, params, field)
	}

	if nad := spec.NonAdditiveDimension; nad != nil {
		c.checkNonAdditive(spec, nad, field)
	}
}

func (c *checker) checkAggParams(spec *core.MeasureSpec, params core.AggParams, field string) {
	if spec.Aggregation != core.AggPercentile {
		if !params.IsZero() {
			c.fail(spec.Pos, "%s: agg_params are only allowed with the percentile aggregation", field)
		}
		return
	}
	if params.Percentile == nil {
		c.fail(spec.Pos, "%s: percentile aggregation requires agg_params.percentile", field)
	} else if p := *params.Percentile; p <= 0 || p > 1 {
		c.fail(spec.Pos, "%s: agg_params.percentile must be in (0, 1], got %v", field, p)
	}
	if params.UseDiscretePercentile == nil {
		c.fail(spec.Pos, "%s: percentile aggregation requires boolean agg_params.use_discrete_percentile", field)
	}
}

func (c *checker) checkNonAdditive(spec *core.MeasureSpec, nad *core.NonAdditiveDimensionSpec, field string) {
	if nad.Name == "" {
		c.fail(spec.Pos, "%s: non_additive_dimension requires 'name'", field)
	} else if dim, ok := c.m.Dimension(nad.Name); !ok {
		c.fail(spec.Pos, "%s: non_additive_dimension %q is not a dimension of this metric", field, nad.Name)
	} else if dim.Type != core.DimensionTime {
		c.fail(spec.Pos, "%s: non_additive_dimension %q must be a time dimension", field, nad.Name)
	}
	if nad.WindowChoice != core.WindowChoiceMax && nad.WindowChoice != core.WindowChoiceMin {
		c.fail(spec.Pos, "%s: non_additive_dimension.window_choice must be max or min, got %q", field, nad.WindowChoice)
	}
	if len(nad.WindowGroupings) == 0 {
		c.fail(spec.Pos, "%s: non_additive_dimension.window_groupings must not be empty", field)
	}
}

func (c *checker) checkDimensions() {
	seen := make(map[string]bool, len(c.m.Dimensions))
	for _, d := range c.m.Dimensions {
		if d.Name == "" {
			c.fail(d.Pos, "dimension requires 'name'")
			continue
		}
		if seen[d.Name] {
			c.fail(d.Pos, "duplicate dimension %q", d.Name)
		}
		seen[d.Name] = true

		if !c.semantic {
			continue
		}
		switch d.Type {
		case core.DimensionCategorical:
			if d.Grain != "" {
				c.fail(d.Pos, "categorical dimension %q must not declare 'grain'", d.Name)
			}
		case core.DimensionTime:
			if d.Grain == "" {
				c.fail(d.Pos, "time dimension %q requires 'grain'", d.Name)
			} else if !d.Grain.Valid() {
				c.fail(d.Pos, "time dimension %q has invalid grain %q", d.Name, d.Grain)
			}
		default:
			c.fail(d.Pos, "dimension %q has invalid type %q (expected categorical or time)", d.Name, d.Type)
		}
	}
}

func (c *checker) checkEntities() {
	seen := make(map[string]bool, len(c.m.Entities))
	for _, e := range c.m.Entities {
		if e.Name == "" {
			c.fail(e.Pos, "entity requires 'name'")
			continue
		}
		if seen[e.Name] {
			c.fail(e.Pos, "duplicate entity %q", e.Name)
		}
		seen[e.Name] = true

		if c.semantic && !e.Type.Valid() {
			c.fail(e.Pos, "entity %q has invalid type %q (expected primary, foreign, unique or natural)", e.Name, e.Type)
		}
	}
}

func joinTypes() string {
	names := make([]string, len(core.MetricTypes))
	for i, t := range core.MetricTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// filterOperators are the comparison tokens a metric filter is expected to
// contain.
var filterOperators = []string{"=", ">", "<", "!=", " IN ", " in ", "LIKE", "like", " IS ", " is "}

// SuspiciousFilter reports whether a metric filter looks like a bare value
// with no field or comparison.
func SuspiciousFilter(filter string) bool {
	for _, op := range filterOperators {
		if strings.Contains(filter, op) {
			return false
		}
	}
	return true
}

// Summary formats a metric's errors as a single line for logs.
func Summary(errs []*core.CompileError) string {
	if len(errs) == 0 {
		return ""
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Message
	}
	return fmt.Sprintf("%d error(s): %s", len(errs), strings.Join(msgs, "; "))
}
