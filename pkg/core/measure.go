package core

import (
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Aggregation is the aggregation function of a measure.
type Aggregation string

// Aggregation constants, spelled the way the semantic layer expects them.
const (
	AggSum           Aggregation = "sum"
	AggCount         Aggregation = "count"
	AggCountDistinct Aggregation = "count_distinct"
	AggAverage       Aggregation = "average"
	AggMin           Aggregation = "min"
	AggMax           Aggregation = "max"
	AggMedian        Aggregation = "median"
	AggPercentile    Aggregation = "percentile"
	AggSumBoolean    Aggregation = "sum_boolean"
)

// Aggregations lists every supported aggregation.
var Aggregations = []Aggregation{
	AggSum, AggCount, AggCountDistinct, AggAverage, AggMin,
	AggMax, AggMedian, AggPercentile, AggSumBoolean,
}

// aggregationAliases maps common abbreviations to their canonical aggregation.
var aggregationAliases = map[string]Aggregation{
	"avg":          AggAverage,
	"cnt":          AggCount,
	"cnt_distinct": AggCountDistinct,
	"count_unique": AggCountDistinct,
}

// ParseAggregation resolves an aggregation name or alias.
func ParseAggregation(s string) (Aggregation, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if alias, ok := aggregationAliases[s]; ok {
		return alias, true
	}
	for _, a := range Aggregations {
		if string(a) == s {
			return a, true
		}
	}
	return "", false
}

// MeasureRole names the slot a measure fills inside its metric.
type MeasureRole string

// Measure roles. The role decides the synthetic name of an unnamed measure.
const (
	RoleMeasure     MeasureRole = "measure"
	RoleNumerator   MeasureRole = "numerator"
	RoleDenominator MeasureRole = "denominator"
	RoleBase        MeasureRole = "base"
	RoleConversion  MeasureRole = "conversion"
	RoleCumulative  MeasureRole = "cumulative"
)

// SyntheticName returns the deterministic name given to an unnamed measure.
func SyntheticName(metric string, role MeasureRole) string {
	if role == RoleMeasure {
		return metric
	}
	return metric + "_" + string(role)
}

// MeasureSpec is a single aggregation over a column.
type MeasureSpec struct {
	// Aggregation is the canonical aggregation; empty if RawAggregation is unknown
	Aggregation    Aggregation
	RawAggregation string
	Column         string
	// Filters are predicate strings, compared as a set
	Filters              []string
	AggParams            map[string]any
	NonAdditiveDimension *NonAdditiveDimensionSpec
	Pos                  Position
}

// MeasureInput is one side of a ratio or conversion metric, or the measure
// of a cumulative metric.
type MeasureInput struct {
	// Name is the explicit measure name; empty means a synthetic name is used
	Name    string
	Source  string
	Measure *MeasureSpec
	Pos     Position
}

// EffectiveName returns the explicit name, or the synthetic one for role.
func (in *MeasureInput) EffectiveName(metric string, role MeasureRole) string {
	if in != nil && in.Name != "" {
		return in.Name
	}
	return SyntheticName(metric, role)
}

// NonAdditiveDimensionSpec marks a measure that must not be summed across a
// time dimension (balances, snapshots).
type NonAdditiveDimensionSpec struct {
	Name            string
	WindowChoice    string
	WindowGroupings []string
}

// Window choices for non-additive dimensions.
const (
	WindowChoiceMax = "max"
	WindowChoiceMin = "min"
)

// AggParams are the typed aggregation parameters.
type AggParams struct {
	Percentile               *float64 `mapstructure:"percentile"`
	UseDiscretePercentile    *bool    `mapstructure:"use_discrete_percentile"`
	UseApproximatePercentile *bool    `mapstructure:"use_approximate_percentile"`
}

// IsZero reports whether no parameter is set.
func (p AggParams) IsZero() bool {
	return p.Percentile == nil && p.UseDiscretePercentile == nil && p.UseApproximatePercentile == nil
}

// DecodeAggParams decodes the raw agg_params mapping.
// Unknown keys and mistyped values are errors.
func DecodeAggParams(raw map[string]any) (AggParams, error) {
	var params AggParams
	if len(raw) == 0 {
		return params, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &params,
		ErrorUnused: true,
	})
	if err != nil {
		return params, err
	}
	if err := dec.Decode(raw); err != nil {
		return params, err
	}
	return params, nil
}

// DimensionType is the kind of a dimension.
type DimensionType string

// Dimension types.
const (
	DimensionCategorical DimensionType = "categorical"
	DimensionTime        DimensionType = "time"
)

// Grain is a time granularity.
type Grain string

// Grains, finest first.
const (
	GrainDay     Grain = "day"
	GrainWeek    Grain = "week"
	GrainMonth   Grain = "month"
	GrainQuarter Grain = "quarter"
	GrainYear    Grain = "year"
)

// Valid reports whether g is a supported grain.
func (g Grain) Valid() bool {
	switch g {
	case GrainDay, GrainWeek, GrainMonth, GrainQuarter, GrainYear:
		return true
	}
	return false
}

// DimensionSpec is a dimension declared on a metric.
type DimensionSpec struct {
	Name  string
	Type  DimensionType
	Grain Grain
	Expr  string
	Label string
	Pos   Position
}

// EntityType is the key kind of an entity.
type EntityType string

// Entity types.
const (
	EntityPrimary EntityType = "primary"
	EntityForeign EntityType = "foreign"
	EntityUnique  EntityType = "unique"
	EntityNatural EntityType = "natural"
)

// Valid reports whether t is a supported entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityPrimary, EntityForeign, EntityUnique, EntityNatural:
		return true
	}
	return false
}

// EntitySpec is an entity (join key) declared on a metric.
type EntitySpec struct {
	Name string
	Type EntityType
	Expr string
	Pos  Position
}
