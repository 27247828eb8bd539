package parser

import (
	"errors"
	"testing"

	"github.com/leapstack-labs/leapmetrics/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestIsMetricsDocument(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"version and metrics", "version: 1\nmetrics: []\n", true},
		{"metrics null", "version: 1\nmetrics:\n", true},
		{"wrong version", "version: 2\nmetrics: []\n", false},
		{"no metrics", "version: 1\nmodels: []\n", false},
		{"dbt schema file", "version: 2\nmodels:\n  - name: orders\n", false},
		{"sequence root", "- a\n- b\n", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Decode("f.yml", []byte(tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.want, IsMetricsDocument(doc))
		})
	}
}

func TestLooksLikeMetricsDocument(t *testing.T) {
	assert.True(t, LooksLikeMetricsDocument([]byte("version: 1\nmetrics:\n  - name: [oops\n")))
	assert.False(t, LooksLikeMetricsDocument([]byte("version: 2\nmetrics:\n")))
	assert.False(t, LooksLikeMetricsDocument([]byte("foo: [bar\n")))
}

func TestParse_SimpleMetric(t *testing.T) {
	content := `version: 1
metrics:
  - name: total_revenue
    description: Sum of order amounts
    label: Total Revenue
    source: fct_orders
    measure:
      type: sum
      column: amount
      filters:
        - "status = 'completed'"
    dimensions:
      - order_date
      - customer_segment
      - name: region
        expr: upper(region)
    entities:
      - order_id
      - name: customer_id
        type: foreign
`
	doc, err := Parse("metrics/revenue.yml", []byte(content))
	require.NoError(t, err)
	require.Len(t, doc.Metrics, 1)

	m := doc.Metrics[0]
	assert.Equal(t, "total_revenue", m.Name)
	assert.Equal(t, core.MetricTypeSimple, m.Type)
	assert.Equal(t, "metrics/revenue.yml", m.Path)
	assert.Equal(t, 3, m.Pos.Line)

	params, ok := m.Params.(*core.SimpleParams)
	require.True(t, ok)
	assert.Equal(t, "fct_orders", params.Source)
	require.NotNil(t, params.Measure)
	assert.Equal(t, core.AggSum, params.Measure.Aggregation)
	assert.Equal(t, "amount", params.Measure.Column)
	assert.Equal(t, []string{"status = 'completed'"}, params.Measure.Filters)

	require.Len(t, m.Dimensions, 3)
	assert.Equal(t, core.DimensionTime, m.Dimensions[0].Type)
	assert.Equal(t, core.GrainDay, m.Dimensions[0].Grain)
	assert.Equal(t, core.DimensionCategorical, m.Dimensions[1].Type)
	assert.Equal(t, "upper(region)", m.Dimensions[2].Expr)
	assert.Equal(t, core.DimensionCategorical, m.Dimensions[2].Type)

	require.Len(t, m.Entities, 2)
	assert.Equal(t, core.EntityPrimary, m.Entities[0].Type)
	assert.Equal(t, core.EntityForeign, m.Entities[1].Type)
}

func TestParse_DefaultsAndAliases(t *testing.T) {
	content := `version: 1
metrics:
  - name: orders
    source: fct_orders
    measure:
      column: order_id
  - name: avg_value
    source: fct_orders
    measure:
      aggregation: avg
      column: amount
      filters: "amount > 0"
`
	doc, err := Parse("m.yml", []byte(content))
	require.NoError(t, err)
	require.Len(t, doc.Metrics, 2)

	first := doc.Metrics[0].Params.(*core.SimpleParams)
	assert.Equal(t, core.AggSum, first.Measure.Aggregation)

	second := doc.Metrics[1].Params.(*core.SimpleParams)
	assert.Equal(t, core.AggAverage, second.Measure.Aggregation)
	assert.Equal(t, "avg", second.Measure.RawAggregation)
	assert.Equal(t, []string{"amount > 0"}, second.Measure.Filters)
}

func TestParse_UnknownAggregationKeepsRaw(t *testing.T) {
	content := `version: 1
metrics:
  - name: weird
    source: t
    measure:
      type: geometric_mean
      column: x
`
	doc, err := Parse("m.yml", []byte(content))
	require.NoError(t, err)
	spec := doc.Metrics[0].Params.(*core.SimpleParams).Measure
	assert.Empty(t, spec.Aggregation)
	assert.Equal(t, "geometric_mean", spec.RawAggregation)
}

func TestParse_Ratio(t *testing.T) {
	content := `version: 1
metrics:
  - name: conversion_rate
    type: ratio
    source: fct_sessions
    numerator:
      name: converted_sessions
      measure:
        type: count
        column: session_id
        filters: ["converted = true"]
    denominator:
      source: fct_visits
      measure:
        type: count
        column: session_id
`
	doc, err := Parse("m.yml", []byte(content))
	require.NoError(t, err)

	params, ok := doc.Metrics[0].Params.(*core.RatioParams)
	require.True(t, ok)
	assert.Equal(t, "converted_sessions", params.Numerator.Name)
	assert.Equal(t, "fct_sessions", params.Numerator.Source, "metric source is inherited")
	assert.Equal(t, "fct_visits", params.Denominator.Source)
	assert.Equal(t, "conversion_rate_denominator", params.Denominator.EffectiveName("conversion_rate", core.RoleDenominator))
}

func TestParse_Derived(t *testing.T) {
	content := `version: 1
metrics:
  - name: revenue_per_customer
    type: derived
    formula: total_revenue / monthly_active_customers
`
	doc, err := Parse("m.yml", []byte(content))
	require.NoError(t, err)

	params, ok := doc.Metrics[0].Params.(*core.DerivedParams)
	require.True(t, ok)
	assert.Equal(t, "total_revenue / monthly_active_customers", params.Formula)
	assert.False(t, params.HasMeasure)
}

func TestParse_Conversion(t *testing.T) {
	content := `version: 1
metrics:
  - name: visit_to_buy
    type: conversion
    source: fct_events
    entity: user_id
    window: 7 days
    calculation: conversion_rate
    base_measure:
      name: visits
      measure: {type: count, column: event_id}
    conversion_measure:
      name: buys
      measure: {type: count, column: event_id, filters: "event = 'buy'"}
    constant_properties:
      - base_property: product_id
        conversion_property: product_id
`
	doc, err := Parse("m.yml", []byte(content))
	require.NoError(t, err)

	params, ok := doc.Metrics[0].Params.(*core.ConversionParams)
	require.True(t, ok)
	assert.Equal(t, "user_id", params.Entity)
	assert.Equal(t, "7 days", params.Window)
	assert.Equal(t, "visits", params.Base.Name)
	assert.Equal(t, "buys", params.Conversion.Name)
	assert.Equal(t, []string{"event = 'buy'"}, params.Conversion.Measure.Filters)
	require.Len(t, params.ConstantProperties, 1)
	assert.Equal(t, "product_id", params.ConstantProperties[0].BaseProperty)
}

func TestParse_CumulativeForms(t *testing.T) {
	content := `version: 1
metrics:
  - name: revenue_mtd
    type: cumulative
    source: fct_orders
    grain_to_date: Month
    measure:
      type: sum
      column: amount
  - name: rolling_revenue
    type: cumulative
    window: 7 days
    measure:
      name: rolling_amount
      source: fct_orders
      measure:
        type: sum
        column: amount
`
	doc, err := Parse("m.yml", []byte(content))
	require.NoError(t, err)
	require.Len(t, doc.Metrics, 2)

	flat := doc.Metrics[0].Params.(*core.CumulativeParams)
	assert.Equal(t, core.GrainMonth, flat.GrainToDate)
	assert.Equal(t, "fct_orders", flat.Measure.Source)
	assert.Empty(t, flat.Measure.Name)
	assert.Equal(t, "amount", flat.Measure.Measure.Column)

	nested := doc.Metrics[1].Params.(*core.CumulativeParams)
	assert.Equal(t, "7 days", nested.Window)
	assert.Equal(t, "rolling_amount", nested.Measure.Name)
	assert.Equal(t, "fct_orders", nested.Measure.Source)
	assert.Equal(t, "amount", nested.Measure.Measure.Column)
}

func TestParse_NonAdditiveAndAggParams(t *testing.T) {
	content := `version: 1
metrics:
  - name: balance
    source: fct_balances
    measure:
      type: percentile
      column: balance
      agg_params:
        percentile: 0.9
        use_discrete_percentile: false
      non_additive_dimension:
        name: balance_date
        window_choice: MAX
        window_groupings: account_id
    dimensions:
      - name: balance_date
        type: time
        grain: day
`
	doc, err := Parse("m.yml", []byte(content))
	require.NoError(t, err)

	spec := doc.Metrics[0].Params.(*core.SimpleParams).Measure
	assert.Equal(t, core.AggPercentile, spec.Aggregation)
	assert.Equal(t, 0.9, spec.AggParams["percentile"])
	require.NotNil(t, spec.NonAdditiveDimension)
	assert.Equal(t, "max", spec.NonAdditiveDimension.WindowChoice)
	assert.Equal(t, []string{"account_id"}, spec.NonAdditiveDimension.WindowGroupings)
}

func TestParse_Modifiers(t *testing.T) {
	content := `version: 1
metrics:
  - name: revenue
    source: fct_orders
    measure: {column: amount}
    filter: "{{ Dimension('order_id__is_test') }} = false"
    offset_window: 1 month
    fill_nulls_with: 0
    meta:
      owner: finance
    config:
      enabled: true
`
	doc, err := Parse("m.yml", []byte(content))
	require.NoError(t, err)

	m := doc.Metrics[0]
	assert.Contains(t, m.Filter, "is_test")
	assert.Equal(t, "1 month", m.OffsetWindow)
	require.NotNil(t, m.FillNullsWith)
	assert.Equal(t, 0, *m.FillNullsWith)
	assert.Equal(t, "finance", m.Meta["owner"])
	assert.Equal(t, true, m.Config["enabled"])
}

func TestParse_UnknownTypeKeepsNilParams(t *testing.T) {
	doc, err := Parse("m.yml", []byte("version: 1\nmetrics:\n  - name: x\n    type: funnel\n"))
	require.NoError(t, err)
	assert.Equal(t, core.MetricType("funnel"), doc.Metrics[0].Type)
	assert.Nil(t, doc.Metrics[0].Params)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantLine int
		contains string
	}{
		{
			name:     "metrics not a list",
			content:  "version: 1\nmetrics:\n  name: x\n",
			wantLine: 3,
			contains: "'metrics' must be a list",
		},
		{
			name:     "metric not a mapping",
			content:  "version: 1\nmetrics:\n  - total_revenue\n",
			wantLine: 3,
			contains: "metric entry must be a mapping",
		},
		{
			name:     "invalid yaml",
			content:  "version: 1\nmetrics:\n  - name: [x\n",
			contains: "invalid YAML",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.yml", []byte(tt.content))
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrParse))

			var ce *core.CompileError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, "bad.yml", ce.Path)
			assert.Contains(t, ce.Error(), tt.contains)
			if tt.wantLine > 0 {
				assert.Equal(t, tt.wantLine, ce.Pos.Line)
			}
		})
	}
}

func TestParse_DecodeErrorsStayOnTheirMetric(t *testing.T) {
	tests := []struct {
		name     string
		entry    string
		wantLine int
		contains string
	}{
		{
			name:     "unknown metric field",
			entry:    "  - name: x\n    type: simple\n    owner: finance\n",
			wantLine: 7,
			contains: `unknown field "owner" in metric`,
		},
		{
			name:     "unknown measure field",
			entry:    "  - name: x\n    measure:\n      col: a\n",
			wantLine: 7,
			contains: `unknown field "col" in measure`,
		},
		{
			name:     "dimensions not a list",
			entry:    "  - name: x\n    dimensions: order_date\n",
			wantLine: 6,
			contains: "'dimensions' must be a list",
		},
		{
			name:     "mistyped fill_nulls_with",
			entry:    "  - name: x\n    fill_nulls_with: zero\n",
			wantLine: 6,
			contains: "cannot unmarshal",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := "version: 1\nmetrics:\n  - name: ok\n    source: s\n" + tt.entry
			doc, err := Parse("m.yml", []byte(content))
			require.NoError(t, err)
			require.Len(t, doc.Metrics, 2)

			assert.Empty(t, doc.Metrics[0].DecodeErrors)
			assert.Equal(t, "ok", doc.Metrics[0].Name)

			bad := doc.Metrics[1]
			assert.Equal(t, "x", bad.Name)
			assert.Nil(t, bad.Params)
			assert.Equal(t, 5, bad.Pos.Line)
			require.Len(t, bad.DecodeErrors, 1)

			e := bad.DecodeErrors[0]
			assert.ErrorIs(t, e, core.ErrSchema)
			assert.Equal(t, "m.yml", e.Path)
			assert.Equal(t, []string{"x"}, e.Metrics)
			assert.Equal(t, tt.wantLine, e.Pos.Line)
			assert.Contains(t, e.Error(), tt.contains)
		})
	}
}

func TestParse_UnknownFieldErrorIsExposed(t *testing.T) {
	doc, err := Parse("m.yml", []byte("version: 1\nmetrics:\n  - name: x\n    tags: [a]\n"))
	require.NoError(t, err)
	require.Len(t, doc.Metrics[0].DecodeErrors, 1)

	var uf *UnknownFieldError
	require.True(t, errors.As(doc.Metrics[0].DecodeErrors[0], &uf))
	assert.Equal(t, "tags", uf.Field)
	assert.Contains(t, uf.Error(), `use "meta"`)
}

func TestParseNode_RejectsNonMetricsDocument(t *testing.T) {
	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("version: 2\nmodels: []\n"), &doc))
	_, err := ParseNode("schema.yml", &doc)
	assert.ErrorIs(t, err, core.ErrParse)
}

func TestParse_EmptyMetricsList(t *testing.T) {
	doc, err := Parse("m.yml", []byte("version: 1\nmetrics:\n"))
	require.NoError(t, err)
	assert.Empty(t, doc.Metrics)
}
