// Package parser parses metrics-first YAML documents into metric definitions.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapmetrics/pkg/core"
	"gopkg.in/yaml.v3"
)

// SupportedVersion is the only document version the compiler understands.
const SupportedVersion = 1

// Document is a parsed metrics-first document.
type Document struct {
	Path    string
	Version int
	Metrics []*core.MetricDefinition
}

// UnknownFieldError reports a key the schema does not define.
type UnknownFieldError struct {
	Field   string
	Context string
}

func (e *UnknownFieldError) Error() string {
	msg := fmt.Sprintf("unknown field %q in %s", e.Field, e.Context)
	if e.Context == "metric" {
		msg += `, use "meta" for custom fields`
	}
	return msg
}

// Known keys per mapping level. Unknown keys invalidate the metric they
// appear in.
var (
	metricKeys = keySet("name", "description", "label", "type", "source", "measure",
		"numerator", "denominator", "base_measure", "conversion_measure", "entity",
		"window", "grain_to_date", "calculation", "constant_properties", "formula",
		"dimensions", "entities", "filter", "offset_window", "fill_nulls_with",
		"meta", "config")
	measureKeys     = keySet("type", "aggregation", "column", "filters", "agg_params", "non_additive_dimension")
	inputKeys       = keySet("name", "source", "measure")
	nonAdditiveKeys = keySet("name", "window_choice", "window_groupings")
	dimensionKeys   = keySet("name", "type", "grain", "expr", "label")
	entityKeys      = keySet("name", "type", "expr")
	propertyKeys    = keySet("base_property", "conversion_property")
)

// markerPatterns detect the document markers in text that failed to parse.
var (
	versionMarker = regexp.MustCompile(`(?m)^version:\s*1\s*(#.*)?$`)
	metricsMarker = regexp.MustCompile(`(?m)^metrics:`)
	errLinePattern = regexp.MustCompile(`line (\d+)`)
)

// LooksLikeMetricsDocument reports whether raw text carries both top-level
// markers. Used to decide whether unparsable YAML is a broken metrics file
// or an unrelated file.
func LooksLikeMetricsDocument(content []byte) bool {
	return versionMarker.Match(content) && metricsMarker.Match(content)
}

// IsMetricsDocument reports whether a decoded document has `version: 1` and
// a `metrics` key at the top level.
func IsMetricsDocument(doc *yaml.Node) bool {
	root := documentRoot(doc)
	if root == nil || root.Kind != yaml.MappingNode {
		return false
	}
	version := mappingValue(root, "version")
	if version == nil || version.Kind != yaml.ScalarNode {
		return false
	}
	if n, err := strconv.Atoi(version.Value); err != nil || n != SupportedVersion {
		return false
	}
	return mappingValue(root, "metrics") != nil
}

// Decode decodes raw YAML into a node tree.
// The returned error is a parse error carrying the offending line.
func Decode(path string, content []byte) (*yaml.Node, error) {
	var doc yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(content))
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &doc, nil
		}
		return nil, core.NewParseError(path, errorPosition(err), "invalid YAML", err)
	}
	return &doc, nil
}

// Parse parses a metrics-first document.
// Callers should check IsMetricsDocument first; Parse reports a missing
// marker as a parse error.
func Parse(path string, content []byte) (*Document, error) {
	doc, err := Decode(path, content)
	if err != nil {
		return nil, err
	}
	return ParseNode(path, doc)
}

// ParseNode parses an already decoded document.
func ParseNode(path string, doc *yaml.Node) (*Document, error) {
	if !IsMetricsDocument(doc) {
		return nil, core.NewParseError(path, core.Position{},
			fmt.Sprintf("not a metrics document: expected top-level 'version: %d' and 'metrics'", SupportedVersion), nil)
	}
	root := documentRoot(doc)

	metrics := mappingValue(root, "metrics")
	if metrics.Kind != yaml.SequenceNode {
		if metrics.Tag == "!!null" {
			return &Document{Path: path, Version: SupportedVersion}, nil
		}
		return nil, core.NewParseError(path, nodePos(metrics), "'metrics' must be a list", nil)
	}

	result := &Document{Path: path, Version: SupportedVersion}
	for _, item := range metrics.Content {
		if item.Kind != yaml.MappingNode {
			return nil, core.NewParseError(path, nodePos(item), "metric entry must be a mapping", nil)
		}
		m, err := parseMetric(path, item)
		if err != nil {
			m = invalidMetric(path, item, err)
		}
		result.Metrics = append(result.Metrics, m)
	}
	return result, nil
}

// invalidMetric keeps a metric whose fields could not be decoded. It carries
// only its identity and the decode failure, which validation reports as a
// schema error for this metric alone.
func invalidMetric(path string, node *yaml.Node, err error) *core.MetricDefinition {
	m := &core.MetricDefinition{Path: path, Pos: nodePos(node)}
	if v := mappingValue(node, "name"); v != nil && v.Kind == yaml.ScalarNode {
		m.Name = strings.TrimSpace(v.Value)
	}
	if v := mappingValue(node, "type"); v != nil && v.Kind == yaml.ScalarNode {
		m.Type = core.MetricType(strings.ToLower(strings.TrimSpace(v.Value)))
	}

	pos, msg, cause := core.Position{}, err.Error(), error(nil)
	var ce *core.CompileError
	if errors.As(err, &ce) {
		pos, msg, cause = ce.Pos, ce.Message, ce.Err
	}
	se := core.NewSchemaError(m, pos, "%s", msg)
	se.Err = cause
	m.DecodeErrors = []*core.CompileError{se}
	return m
}

// rawMetric holds the scalar fields of a metric entry. Polymorphic fields
// (measure, sides, dimensions, entities) are walked from the node tree.
type rawMetric struct {
	Name          string         `yaml:"name"`
	Description   string         `yaml:"description"`
	Label         string         `yaml:"label"`
	Type          string         `yaml:"type"`
	Source        string         `yaml:"source"`
	Entity        string         `yaml:"entity"`
	Window        string         `yaml:"window"`
	GrainToDate   string         `yaml:"grain_to_date"`
	Calculation   string         `yaml:"calculation"`
	Formula       string         `yaml:"formula"`
	Filter        string         `yaml:"filter"`
	OffsetWindow  string         `yaml:"offset_window"`
	FillNullsWith *int           `yaml:"fill_nulls_with"`
	Meta          map[string]any `yaml:"meta"`
	Config        map[string]any `yaml:"config"`
}

type rawMeasure struct {
	Type        string         `yaml:"type"`
	Aggregation string         `yaml:"aggregation"`
	Column      string         `yaml:"column"`
	Filters     stringList     `yaml:"filters"`
	AggParams   map[string]any `yaml:"agg_params"`
}

type rawNonAdditive struct {
	Name            string     `yaml:"name"`
	WindowChoice    string     `yaml:"window_choice"`
	WindowGroupings stringList `yaml:"window_groupings"`
}

type rawDimension struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Grain string `yaml:"grain"`
	Expr  string `yaml:"expr"`
	Label string `yaml:"label"`
}

type rawEntity struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Expr string `yaml:"expr"`
}

type rawProperty struct {
	BaseProperty       string `yaml:"base_property"`
	ConversionProperty string `yaml:"conversion_property"`
}

// stringList accepts either a single string or a list of strings.
type stringList []string

func (l *stringList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		if value.Tag == "!!null" {
			*l = nil
			return nil
		}
		*l = stringList{value.Value}
		return nil
	}
	var items []string
	if err := value.Decode(&items); err != nil {
		return err
	}
	*l = items
	return nil
}

func parseMetric(path string, node *yaml.Node) (*core.MetricDefinition, error) {
	if err := checkKeys(path, node, metricKeys, "metric"); err != nil {
		return nil, err
	}

	var raw rawMetric
	if err := node.Decode(&raw); err != nil {
		return nil, decodeError(path, node, err)
	}

	m := &core.MetricDefinition{
		Name:          strings.TrimSpace(raw.Name),
		Description:   raw.Description,
		Label:         raw.Label,
		Type:          core.MetricType(strings.ToLower(strings.TrimSpace(raw.Type))),
		Filter:        raw.Filter,
		OffsetWindow:  raw.OffsetWindow,
		FillNullsWith: raw.FillNullsWith,
		Meta:          raw.Meta,
		Config:        raw.Config,
		Path:          path,
		Pos:           nodePos(node),
	}
	if m.Type == "" {
		m.Type = core.MetricTypeSimple
	}

	var err error
	if m.Dimensions, err = parseDimensions(path, mappingValue(node, "dimensions")); err != nil {
		return nil, err
	}
	if m.Entities, err = parseEntities(path, mappingValue(node, "entities")); err != nil {
		return nil, err
	}

	switch m.Type {
	case core.MetricTypeSimple:
		spec, err := parseMeasureSpec(path, mappingValue(node, "measure"))
		if err != nil {
			return nil, err
		}
		m.Params = &core.SimpleParams{Source: raw.Source, Measure: spec}

	case core.MetricTypeRatio:
		num, err := parseMeasureInput(path, mappingValue(node, "numerator"), raw.Source)
		if err != nil {
			return nil, err
		}
		den, err := parseMeasureInput(path, mappingValue(node, "denominator"), raw.Source)
		if err != nil {
			return nil, err
		}
		m.Params = &core.RatioParams{Numerator: num, Denominator: den}

	case core.MetricTypeDerived:
		m.Params = &core.DerivedParams{
			Formula:    raw.Formula,
			Source:     raw.Source,
			HasMeasure: mappingValue(node, "measure") != nil,
		}

	case core.MetricTypeConversion:
		base, err := parseMeasureInput(path, mappingValue(node, "base_measure"), raw.Source)
		if err != nil {
			return nil, err
		}
		conv, err := parseMeasureInput(path, mappingValue(node, "conversion_measure"), raw.Source)
		if err != nil {
			return nil, err
		}
		props, err := parseConstantProperties(path, mappingValue(node, "constant_properties"))
		if err != nil {
			return nil, err
		}
		m.Params = &core.ConversionParams{
			Entity:             raw.Entity,
			Base:               base,
			Conversion:         conv,
			Window:             raw.Window,
			Calculation:        raw.Calculation,
			ConstantProperties: props,
		}

	case core.MetricTypeCumulative:
		in, err := parseCumulativeMeasure(path, mappingValue(node, "measure"), raw.Source)
		if err != nil {
			return nil, err
		}
		m.Params = &core.CumulativeParams{
			Measure:     in,
			Window:      raw.Window,
			GrainToDate: core.Grain(strings.ToLower(raw.GrainToDate)),
		}
	}
	// Unknown types keep nil Params; validation reports them.

	return m, nil
}

func parseMeasureSpec(path string, node *yaml.Node) (*core.MeasureSpec, error) {
	if node == nil || node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, core.NewParseError(path, nodePos(node), "measure must be a mapping", nil)
	}
	if err := checkKeys(path, node, measureKeys, "measure"); err != nil {
		return nil, err
	}

	var raw rawMeasure
	if err := node.Decode(&raw); err != nil {
		return nil, decodeError(path, node, err)
	}

	spec := &core.MeasureSpec{
		RawAggregation: raw.Type,
		Column:         strings.TrimSpace(raw.Column),
		Filters:        []string(raw.Filters),
		AggParams:      raw.AggParams,
		Pos:            nodePos(node),
	}
	if spec.RawAggregation == "" {
		spec.RawAggregation = raw.Aggregation
	}
	if spec.RawAggregation == "" {
		spec.Aggregation = core.AggSum
	} else if agg, ok := core.ParseAggregation(spec.RawAggregation); ok {
		spec.Aggregation = agg
	}

	if nad := mappingValue(node, "non_additive_dimension"); nad != nil && nad.Tag != "!!null" {
		if nad.Kind != yaml.MappingNode {
			return nil, core.NewParseError(path, nodePos(nad), "non_additive_dimension must be a mapping", nil)
		}
		if err := checkKeys(path, nad, nonAdditiveKeys, "non_additive_dimension"); err != nil {
			return nil, err
		}
		var rawNAD rawNonAdditive
		if err := nad.Decode(&rawNAD); err != nil {
			return nil, decodeError(path, nad, err)
		}
		spec.NonAdditiveDimension = &core.NonAdditiveDimensionSpec{
			Name:            rawNAD.Name,
			WindowChoice:    strings.ToLower(rawNAD.WindowChoice),
			WindowGroupings: []string(rawNAD.WindowGroupings),
		}
	}

	return spec, nil
}

// parseMeasureInput parses a ratio/conversion side: {name, source, measure}.
// The metric-level source is used when the side does not declare one.
func parseMeasureInput(path string, node *yaml.Node, fallbackSource string) (*core.MeasureInput, error) {
	if node == nil || node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, core.NewParseError(path, nodePos(node), "measure input must be a mapping", nil)
	}
	if err := checkKeys(path, node, inputKeys, "measure input"); err != nil {
		return nil, err
	}

	in := &core.MeasureInput{Pos: nodePos(node)}
	if v := mappingValue(node, "name"); v != nil {
		in.Name = strings.TrimSpace(v.Value)
	}
	if v := mappingValue(node, "source"); v != nil {
		in.Source = strings.TrimSpace(v.Value)
	}
	if in.Source == "" {
		in.Source = fallbackSource
	}

	spec, err := parseMeasureSpec(path, mappingValue(node, "measure"))
	if err != nil {
		return nil, err
	}
	in.Measure = spec
	return in, nil
}

// parseCumulativeMeasure accepts both the nested input form
// ({name, source, measure: {...}}) and a flat measure spec that uses the
// metric-level source.
func parseCumulativeMeasure(path string, node *yaml.Node, source string) (*core.MeasureInput, error) {
	if node == nil || node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind == yaml.MappingNode {
		for _, key := range []string{"measure", "name", "source"} {
			if mappingValue(node, key) != nil {
				return parseMeasureInput(path, node, source)
			}
		}
	}
	spec, err := parseMeasureSpec(path, node)
	if err != nil {
		return nil, err
	}
	return &core.MeasureInput{Source: source, Measure: spec, Pos: nodePos(node)}, nil
}

func parseDimensions(path string, node *yaml.Node) ([]core.DimensionSpec, error) {
	if node == nil || node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, core.NewParseError(path, nodePos(node), "'dimensions' must be a list", nil)
	}

	dims := make([]core.DimensionSpec, 0, len(node.Content))
	for _, item := range node.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			dims = append(dims, bareDimension(item))
		case yaml.MappingNode:
			if err := checkKeys(path, item, dimensionKeys, "dimension"); err != nil {
				return nil, err
			}
			var raw rawDimension
			if err := item.Decode(&raw); err != nil {
				return nil, decodeError(path, item, err)
			}
			dim := core.DimensionSpec{
				Name:  strings.TrimSpace(raw.Name),
				Type:  core.DimensionType(strings.ToLower(raw.Type)),
				Grain: core.Grain(strings.ToLower(raw.Grain)),
				Expr:  raw.Expr,
				Label: raw.Label,
				Pos:   nodePos(item),
			}
			if dim.Type == "" {
				dim.Type = core.DimensionCategorical
			}
			dims = append(dims, dim)
		default:
			return nil, core.NewParseError(path, nodePos(item), "dimension must be a name or a mapping", nil)
		}
	}
	return dims, nil
}

// bareDimension infers a dimension from its name alone: names mentioning
// "date" are day-grain time dimensions, everything else is categorical.
func bareDimension(node *yaml.Node) core.DimensionSpec {
	dim := core.DimensionSpec{
		Name: strings.TrimSpace(node.Value),
		Type: core.DimensionCategorical,
		Pos:  nodePos(node),
	}
	if strings.Contains(strings.ToLower(dim.Name), "date") {
		dim.Type = core.DimensionTime
		dim.Grain = core.GrainDay
	}
	return dim
}

func parseEntities(path string, node *yaml.Node) ([]core.EntitySpec, error) {
	if node == nil || node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, core.NewParseError(path, nodePos(node), "'entities' must be a list", nil)
	}

	entities := make([]core.EntitySpec, 0, len(node.Content))
	for _, item := range node.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			entities = append(entities, core.EntitySpec{
				Name: strings.TrimSpace(item.Value),
				Type: core.EntityPrimary,
				Pos:  nodePos(item),
			})
		case yaml.MappingNode:
			if err := checkKeys(path, item, entityKeys, "entity"); err != nil {
				return nil, err
			}
			var raw rawEntity
			if err := item.Decode(&raw); err != nil {
				return nil, decodeError(path, item, err)
			}
			ent := core.EntitySpec{
				Name: strings.TrimSpace(raw.Name),
				Type: core.EntityType(strings.ToLower(raw.Type)),
				Expr: raw.Expr,
				Pos:  nodePos(item),
			}
			if ent.Type == "" {
				ent.Type = core.EntityPrimary
			}
			entities = append(entities, ent)
		default:
			return nil, core.NewParseError(path, nodePos(item), "entity must be a name or a mapping", nil)
		}
	}
	return entities, nil
}

func parseConstantProperties(path string, node *yaml.Node) ([]core.ConstantProperty, error) {
	if node == nil || node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, core.NewParseError(path, nodePos(node), "'constant_properties' must be a list", nil)
	}
	props := make([]core.ConstantProperty, 0, len(node.Content))
	for _, item := range node.Content {
		if item.Kind != yaml.MappingNode {
			return nil, core.NewParseError(path, nodePos(item), "constant property must be a mapping", nil)
		}
		if err := checkKeys(path, item, propertyKeys, "constant property"); err != nil {
			return nil, err
		}
		var raw rawProperty
		if err := item.Decode(&raw); err != nil {
			return nil, decodeError(path, item, err)
		}
		props = append(props, core.ConstantProperty{
			BaseProperty:       raw.BaseProperty,
			ConversionProperty: raw.ConversionProperty,
		})
	}
	return props, nil
}

// checkKeys rejects keys outside allowed, reporting the key's position.
func checkKeys(path string, node *yaml.Node, allowed map[string]bool, context string) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		if !allowed[key.Value] {
			uf := &UnknownFieldError{Field: key.Value, Context: context}
			return core.NewParseError(path, nodePos(key), uf.Error(), uf)
		}
	}
	return nil
}

func decodeError(path string, node *yaml.Node, err error) error {
	pos := errorPosition(err)
	if pos.IsZero() {
		pos = nodePos(node)
	}
	return core.NewParseError(path, pos, "invalid value", err)
}

// errorPosition extracts the line number yaml.v3 embeds in its messages.
func errorPosition(err error) core.Position {
	m := errLinePattern.FindStringSubmatch(err.Error())
	if m == nil {
		return core.Position{}
	}
	line, _ := strconv.Atoi(m[1])
	return core.Position{Line: line}
}

func documentRoot(doc *yaml.Node) *yaml.Node {
	if doc == nil {
		return nil
	}
	if doc.Kind == yaml.DocumentNode {
		if len(doc.Content) == 0 {
			return nil
		}
		return doc.Content[0]
	}
	return doc
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func nodePos(node *yaml.Node) core.Position {
	return core.Position{Line: node.Line, Column: node.Column}
}

func keySet(keys ...string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}
