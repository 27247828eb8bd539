// Package emitter serializes semantic models and metrics into a dbt semantic
// layer document.
//
// The document is built as a yaml.Node tree so key order is fixed by code,
// never by map iteration. Identical input always yields identical bytes.
package emitter

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapmetrics/internal/grouper"
	"github.com/leapstack-labs/leapmetrics/internal/resolver"
	"github.com/leapstack-labs/leapmetrics/pkg/core"
	"gopkg.in/yaml.v3"
)

// Header is written at the top of every generated document.
const Header = "# Code generated by leapmetrics. DO NOT EDIT.\n"

// OutputVersion is the version of the emitted document.
const OutputVersion = 2

// MeasureNamer maps a metric's measure role to the emitted measure name.
type MeasureNamer interface {
	MeasureName(metric string, role core.MeasureRole) string
}

// Input is everything the emitter needs.
type Input struct {
	// Models are emitted in source order regardless of input order
	Models []*grouper.SemanticModel
	// Metrics are emitted in the given order, which must already respect
	// derived-metric dependencies
	Metrics  []*resolver.Resolution
	Measures MeasureNamer
}

// Emit renders the document.
func Emit(in Input) ([]byte, error) {
	root, err := Build(in)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(Header)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return buf.Bytes(), nil
}

// Build returns the document as a node tree.
func Build(in Input) (*yaml.Node, error) {
	models := append([]*grouper.SemanticModel(nil), in.Models...)
	sort.SliceStable(models, func(i, j int) bool { return models[i].Source < models[j].Source })

	modelSeq := seq()
	for _, sm := range models {
		modelSeq.Content = append(modelSeq.Content, semanticModelNode(sm))
	}

	metricSeq := seq()
	for _, res := range in.Metrics {
		n, err := metricNode(res, in.Measures)
		if err != nil {
			return nil, err
		}
		metricSeq.Content = append(metricSeq.Content, n)
	}

	doc := mapping()
	put(doc, "version", intNode(OutputVersion))
	put(doc, "semantic_models", modelSeq)
	put(doc, "metrics", metricSeq)
	return doc, nil
}

func semanticModelNode(sm *grouper.SemanticModel) *yaml.Node {
	n := mapping()
	put(n, "name", str(sm.Name()))
	put(n, "model", str(fmt.Sprintf("ref('%s')", sm.Source)))

	if agg := sm.AggTimeDimension(); agg != "" {
		defaults := mapping()
		put(defaults, "agg_time_dimension", str(agg))
		put(n, "defaults", defaults)
	}

	if len(sm.Entities) > 0 {
		entities := seq()
		for _, e := range sm.Entities {
			en := mapping()
			put(en, "name", str(e.Name))
			put(en, "type", str(string(e.Type)))
			putStr(en, "expr", e.Expr)
			entities.Content = append(entities.Content, en)
		}
		put(n, "entities", entities)
	}

	if len(sm.Dimensions) > 0 {
		dims := seq()
		for _, d := range sm.Dimensions {
			dn := mapping()
			put(dn, "name", str(d.Name))
			put(dn, "type", str(string(d.Type)))
			putStr(dn, "label", d.Label)
			putStr(dn, "expr", d.Expr)
			if d.Type == core.DimensionTime {
				grain := d.Grain
				if grain == "" {
					grain = core.GrainDay
				}
				tp := mapping()
				put(tp, "time_granularity", str(string(grain)))
				put(dn, "type_params", tp)
			}
			dims.Content = append(dims.Content, dn)
		}
		put(n, "dimensions", dims)
	}

	measures := seq()
	for _, m := range sm.Measures {
		measures.Content = append(measures.Content, measureNode(m))
	}
	put(n, "measures", measures)
	return n
}

func measureNode(m *grouper.Measure) *yaml.Node {
	n := mapping()
	put(n, "name", str(m.Name))
	put(n, "agg", str(string(m.Signature.Aggregation)))
	put(n, "expr", str(m.Column))

	params := mapping()
	if m.Signature.Aggregation == core.AggPercentile {
		// Validation has already decoded these; undecodable params are dropped.
		if p, err := core.DecodeAggParams(m.Spec.AggParams); err == nil {
			if p.Percentile != nil {
				put(params, "percentile", floatNode(*p.Percentile))
			}
			if p.UseDiscretePercentile != nil {
				put(params, "use_discrete_percentile", boolNode(*p.UseDiscretePercentile))
			}
			if p.UseApproximatePercentile != nil {
				put(params, "use_approximate_percentile", boolNode(*p.UseApproximatePercentile))
			}
		}
	}
	if len(m.Filters) > 0 {
		put(params, "where", str(strings.Join(m.Filters, " AND ")))
	}
	if len(params.Content) > 0 {
		put(n, "agg_params", params)
	}

	if nad := m.Spec.NonAdditiveDimension; nad != nil {
		nn := mapping()
		put(nn, "name", str(nad.Name))
		putStr(nn, "window_choice", nad.WindowChoice)
		if len(nad.WindowGroupings) > 0 {
			put(nn, "window_groupings", strSeq(nad.WindowGroupings))
		}
		put(n, "non_additive_dimension", nn)
	}
	return n
}

func metricNode(res *resolver.Resolution, names MeasureNamer) (*yaml.Node, error) {
	m := res.Metric
	n := mapping()
	put(n, "name", str(m.Name))
	putStr(n, "description", m.Description)
	put(n, "type", str(string(m.Type)))
	putStr(n, "label", m.Label)
	putStr(n, "filter", m.Filter)

	measure := func(role core.MeasureRole) *yaml.Node {
		return str(names.MeasureName(m.Name, role))
	}
	named := func(role core.MeasureRole) *yaml.Node {
		ref := mapping()
		put(ref, "name", measure(role))
		return ref
	}

	tp := mapping()
	switch p := m.Params.(type) {
	case *core.SimpleParams:
		put(tp, "measure", measure(core.RoleMeasure))

	case *core.RatioParams:
		put(tp, "numerator", measure(core.RoleNumerator))
		put(tp, "denominator", measure(core.RoleDenominator))

	case *core.DerivedParams:
		put(tp, "expr", str(p.Formula))
		refs := seq()
		for _, ref := range res.References {
			rn := mapping()
			put(rn, "name", str(ref))
			refs.Content = append(refs.Content, rn)
		}
		put(tp, "metrics", refs)

	case *core.ConversionParams:
		cp := mapping()
		put(cp, "entity", str(p.Entity))
		put(cp, "base_measure", named(core.RoleBase))
		put(cp, "conversion_measure", named(core.RoleConversion))
		putStr(cp, "window", p.Window)
		putStr(cp, "calculation", p.Calculation)
		if len(p.ConstantProperties) > 0 {
			props := seq()
			for _, c := range p.ConstantProperties {
				pn := mapping()
				put(pn, "base_property", str(c.BaseProperty))
				put(pn, "conversion_property", str(c.ConversionProperty))
				props.Content = append(props.Content, pn)
			}
			put(cp, "constant_properties", props)
		}
		put(tp, "conversion_type_params", cp)

	case *core.CumulativeParams:
		put(tp, "measure", measure(core.RoleCumulative))
		putStr(tp, "window", p.Window)
		putStr(tp, "grain_to_date", string(p.GrainToDate))

	default:
		return nil, fmt.Errorf("metric %q: cannot emit type %q", m.Name, m.Type)
	}
	put(n, "type_params", tp)

	putStr(n, "offset_window", m.OffsetWindow)
	if m.FillNullsWith != nil {
		put(n, "fill_nulls_with", intNode(*m.FillNullsWith))
	}
	if err := putAny(n, "config", m.Config); err != nil {
		return nil, fmt.Errorf("metric %q: config: %w", m.Name, err)
	}
	if err := putAny(n, "meta", m.Meta); err != nil {
		return nil, fmt.Errorf("metric %q: meta: %w", m.Name, err)
	}
	return n, nil
}

func mapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func seq() *yaml.Node {
	return &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
}

func str(s string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
	if strings.Contains(s, "\n") {
		n.Style = yaml.LiteralStyle
	}
	return n
}

func strSeq(values []string) *yaml.Node {
	n := seq()
	for _, v := range values {
		n.Content = append(n.Content, str(v))
	}
	return n
}

func intNode(i int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(i)}
}

// floatNode always renders with a decimal point so the value stays a float
// when read back.
func floatNode(f float64) *yaml.Node {
	v := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(v, ".eEn") {
		v += ".0"
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: v}
}

func boolNode(b bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(b)}
}

func put(m *yaml.Node, key string, value *yaml.Node) {
	m.Content = append(m.Content, str(key), value)
}

func putStr(m *yaml.Node, key, value string) {
	if value != "" {
		put(m, key, str(value))
	}
}

// putAny encodes a free-form map; yaml.v3 sorts map keys.
func putAny(m *yaml.Node, key string, value map[string]any) error {
	if len(value) == 0 {
		return nil
	}
	var n yaml.Node
	if err := n.Encode(value); err != nil {
		return err
	}
	put(m, key, &n)
	return nil
}
