package core

import (
	"fmt"
	"regexp"
	"strconv"
)

// MetricType is the kind of metric an analyst declared.
type MetricType string

// Metric type constants.
const (
	MetricTypeSimple     MetricType = "simple"
	MetricTypeRatio      MetricType = "ratio"
	MetricTypeDerived    MetricType = "derived"
	MetricTypeConversion MetricType = "conversion"
	MetricTypeCumulative MetricType = "cumulative"
)

// MetricTypes lists every supported metric type in documentation order.
var MetricTypes = []MetricType{
	MetricTypeSimple,
	MetricTypeRatio,
	MetricTypeDerived,
	MetricTypeConversion,
	MetricTypeCumulative,
}

// Valid reports whether t is a supported metric type.
func (t MetricType) Valid() bool {
	for _, known := range MetricTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Position is a 1-based line/column location inside a source document.
type Position struct {
	Line   int
	Column int
}

// IsZero reports whether the position is unknown.
func (p Position) IsZero() bool {
	return p.Line == 0 && p.Column == 0
}

func (p Position) String() string {
	if p.Column == 0 {
		return strconv.Itoa(p.Line)
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// MetricDefinition is one entry of a metrics-first document.
// It is created fresh per compilation run and never mutated after parsing.
type MetricDefinition struct {
	// Name is unique across the whole compilation unit
	Name        string
	Description string
	Label       string
	Type        MetricType

	// Params holds the type-specific parameters; its concrete type always
	// matches Type.
	Params TypeParams

	Dimensions []DimensionSpec
	Entities   []EntitySpec

	// Metric-level modifiers passed through to the output unchanged
	Filter        string
	OffsetWindow  string
	FillNullsWith *int
	Meta          map[string]any
	Config        map[string]any

	// DecodeErrors are set when the entry's fields could not be decoded.
	// Such a definition carries only Name, Type and provenance.
	DecodeErrors []*CompileError

	// Provenance
	Path string
	Pos  Position
}

// Location returns "path:line:column" for diagnostics.
func (m *MetricDefinition) Location() string {
	if m.Pos.IsZero() {
		return m.Path
	}
	return fmt.Sprintf("%s:%s", m.Path, m.Pos)
}

// Dimension returns the declared dimension with the given name.
func (m *MetricDefinition) Dimension(name string) (DimensionSpec, bool) {
	for _, d := range m.Dimensions {
		if d.Name == name {
			return d, true
		}
	}
	return DimensionSpec{}, false
}

// TypeParams is the sealed set of per-type parameter variants.
// Every switch over it must handle all five implementations.
type TypeParams interface {
	MetricType() MetricType
	isTypeParams()
}

// SimpleParams aggregates one measure on one source.
type SimpleParams struct {
	Source  string
	Measure *MeasureSpec
}

// RatioParams divides one measure by another.
type RatioParams struct {
	Numerator   *MeasureInput
	Denominator *MeasureInput
}

// DerivedParams computes a formula over other metrics.
// Source and HasMeasure are recorded only so validation can reject them.
type DerivedParams struct {
	Formula    string
	Source     string
	HasMeasure bool
}

// ConversionParams measures how often a base event converts.
type ConversionParams struct {
	Entity             string
	Base               *MeasureInput
	Conversion         *MeasureInput
	Window             string
	Calculation        string
	ConstantProperties []ConstantProperty
}

// ConstantProperty pins a property that must match between base and
// conversion events.
type ConstantProperty struct {
	BaseProperty       string
	ConversionProperty string
}

// CumulativeParams accumulates a measure over a window or up to a grain.
type CumulativeParams struct {
	Measure     *MeasureInput
	Window      string
	GrainToDate Grain
}

func (*SimpleParams) MetricType() MetricType     { return MetricTypeSimple }
func (*RatioParams) MetricType() MetricType      { return MetricTypeRatio }
func (*DerivedParams) MetricType() MetricType    { return MetricTypeDerived }
func (*ConversionParams) MetricType() MetricType { return MetricTypeConversion }
func (*CumulativeParams) MetricType() MetricType { return MetricTypeCumulative }

func (*SimpleParams) isTypeParams()     {}
func (*RatioParams) isTypeParams()      {}
func (*DerivedParams) isTypeParams()    {}
func (*ConversionParams) isTypeParams() {}
func (*CumulativeParams) isTypeParams() {}

// Calculation values accepted by conversion metrics.
const (
	CalculationConversionRate = "conversion_rate"
	CalculationConversions    = "conversions"
)

// windowPattern matches "<count> <unit>" windows such as "7 days" or "1 month".
var windowPattern = regexp.MustCompile(`^[1-9][0-9]*\s+(day|week|month|quarter|year)s?$`)

// ValidWindow reports whether s is a well-formed window expression.
func ValidWindow(s string) bool {
	return windowPattern.MatchString(s)
}

// namePattern matches names usable as metric or measure identifiers.
var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidName reports whether s can be used as a metric or measure name.
func ValidName(s string) bool {
	return namePattern.MatchString(s)
}
