package emitter

import (
	"testing"

	"github.com/leapstack-labs/leapmetrics/internal/grouper"
	"github.com/leapstack-labs/leapmetrics/internal/parser"
	"github.com/leapstack-labs/leapmetrics/internal/resolver"
	"github.com/leapstack-labs/leapmetrics/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// compile runs parse, resolve and group, and emits metrics in the given order.
func compile(t *testing.T, content string, order ...string) []byte {
	t.Helper()
	doc, err := parser.Parse("metrics.yml", []byte(content))
	require.NoError(t, err)

	names := make([]string, len(doc.Metrics))
	for i, m := range doc.Metrics {
		names[i] = m.Name
	}
	r := resolver.New(names)
	var resolutions []*resolver.Resolution
	for _, m := range doc.Metrics {
		res, err := r.Resolve(m)
		require.NoError(t, err)
		resolutions = append(resolutions, res)
	}
	grouped := groupAll(t, resolutions)

	byName := make(map[string]*resolver.Resolution)
	for _, res := range grouped.Resolutions {
		byName[res.Metric.Name] = res
	}
	var ordered []*resolver.Resolution
	for _, name := range order {
		require.Contains(t, byName, name)
		ordered = append(ordered, byName[name])
	}

	out, err := Emit(Input{Models: grouped.Models, Metrics: ordered, Measures: grouped})
	require.NoError(t, err)
	return out
}

func groupAll(t *testing.T, resolutions []*resolver.Resolution) *grouper.Result {
	t.Helper()
	result := grouper.Group(resolutions)
	require.Empty(t, result.Errors)
	return result
}

const ordersGolden = `# Code generated by leapmetrics. DO NOT EDIT.
version: 2
semantic_models:
  - name: fct_orders_semantic_model
    model: ref('fct_orders')
    defaults:
      agg_time_dimension: order_date
    entities:
      - name: customer_id
        type: foreign
      - name: order_id
        type: primary
    dimensions:
      - name: customer_segment
        type: categorical
      - name: order_date
        type: time
        type_params:
          time_granularity: day
    measures:
      - name: monthly_active_customers_measure
        agg: count_distinct
        expr: customer_id
      - name: total_revenue_measure
        agg: sum
        expr: amount
        agg_params:
          where: status = 'completed'
metrics:
  - name: monthly_active_customers
    description: Distinct customers with an order
    type: simple
    type_params:
      measure: monthly_active_customers_measure
  - name: total_revenue
    description: Total revenue from completed orders
    type: simple
    type_params:
      measure: total_revenue_measure
  - name: revenue_per_customer
    description: Revenue per active customer
    type: derived
    type_params:
      expr: total_revenue / monthly_active_customers
      metrics:
        - name: total_revenue
        - name: monthly_active_customers
`

func TestEmit_OrdersGolden(t *testing.T) {
	out := compile(t, testutil.OrdersMetrics,
		"monthly_active_customers", "total_revenue", "revenue_per_customer")
	assert.Equal(t, ordersGolden, string(out))
}

func TestEmit_Idempotent(t *testing.T) {
	order := []string{"monthly_active_customers", "total_revenue", "revenue_per_customer"}
	first := compile(t, testutil.OrdersMetrics, order...)
	second := compile(t, testutil.OrdersMetrics, order...)
	assert.Equal(t, first, second)
}

// emitted mirrors the parts of the output document the tests inspect.
type emitted struct {
	Version        int `yaml:"version"`
	SemanticModels []struct {
		Name     string `yaml:"name"`
		Measures []struct {
			Name      string         `yaml:"name"`
			Agg       string         `yaml:"agg"`
			Expr      string         `yaml:"expr"`
			AggParams map[string]any `yaml:"agg_params"`
			NonAdd    *struct {
				Name            string   `yaml:"name"`
				WindowChoice    string   `yaml:"window_choice"`
				WindowGroupings []string `yaml:"window_groupings"`
			} `yaml:"non_additive_dimension"`
		} `yaml:"measures"`
	} `yaml:"semantic_models"`
	Metrics []struct {
		Name          string         `yaml:"name"`
		Type          string         `yaml:"type"`
		Label         string         `yaml:"label"`
		Filter        string         `yaml:"filter"`
		TypeParams    map[string]any `yaml:"type_params"`
		OffsetWindow  string         `yaml:"offset_window"`
		FillNullsWith *int           `yaml:"fill_nulls_with"`
		Meta          map[string]any `yaml:"meta"`
		Config        map[string]any `yaml:"config"`
	} `yaml:"metrics"`
}

func decode(t *testing.T, out []byte) emitted {
	t.Helper()
	var doc emitted
	require.NoError(t, yaml.Unmarshal(out, &doc))
	return doc
}

func TestEmit_TypeShapes(t *testing.T) {
	out := compile(t, `version: 1
metrics:
  - name: aov
    description: Average order value
    label: AOV
    type: ratio
    source: fct_orders
    numerator: {measure: {type: sum, column: amount}}
    denominator: {measure: {type: count, column: order_id}}
    filter: "{{ Dimension('order__is_test') }} = false"
    offset_window: 1 month
    fill_nulls_with: 0
    meta: {owner: finance, tier: 1}
    config: {enabled: true}
  - name: visit_to_buy
    description: Visit to purchase
    type: conversion
    source: fct_events
    entity: user_id
    window: 7 days
    calculation: conversion_rate
    base_measure: {name: visits, measure: {type: count, column: event_id}}
    conversion_measure: {name: buys, measure: {type: count, column: event_id, filters: "event = 'buy'"}}
    constant_properties:
      - {base_property: product_id, conversion_property: product_id}
  - name: revenue_mtd
    description: Revenue month to date
    type: cumulative
    source: fct_orders
    grain_to_date: month
    measure: {type: sum, column: amount}
`, "aov", "revenue_mtd", "visit_to_buy")

	doc := decode(t, out)
	assert.Equal(t, 2, doc.Version)
	require.Len(t, doc.Metrics, 3)

	aov := doc.Metrics[0]
	assert.Equal(t, "ratio", aov.Type)
	assert.Equal(t, "AOV", aov.Label)
	assert.Equal(t, "{{ Dimension('order__is_test') }} = false", aov.Filter)
	assert.Equal(t, map[string]any{
		"numerator":   "aov_numerator_measure",
		"denominator": "aov_denominator_measure",
	}, aov.TypeParams)
	assert.Equal(t, "1 month", aov.OffsetWindow)
	require.NotNil(t, aov.FillNullsWith)
	assert.Equal(t, 0, *aov.FillNullsWith)
	assert.Equal(t, map[string]any{"owner": "finance", "tier": 1}, aov.Meta)
	assert.Equal(t, map[string]any{"enabled": true}, aov.Config)

	mtd := doc.Metrics[1]
	assert.Equal(t, map[string]any{
		"measure":       "aov_numerator_measure",
		"grain_to_date": "month",
	}, mtd.TypeParams, "cumulative shares the identical sum(amount) measure")

	conv := doc.Metrics[2]
	assert.Equal(t, map[string]any{
		"conversion_type_params": map[string]any{
			"entity":             "user_id",
			"base_measure":       map[string]any{"name": "visits_measure"},
			"conversion_measure": map[string]any{"name": "buys_measure"},
			"window":             "7 days",
			"calculation":        "conversion_rate",
			"constant_properties": []any{
				map[string]any{"base_property": "product_id", "conversion_property": "product_id"},
			},
		},
	}, conv.TypeParams)

	require.Len(t, doc.SemanticModels, 2)
	assert.Equal(t, "fct_events_semantic_model", doc.SemanticModels[0].Name)
	assert.Equal(t, "fct_orders_semantic_model", doc.SemanticModels[1].Name)
}

func TestEmit_MeasureParams(t *testing.T) {
	out := compile(t, `version: 1
metrics:
  - name: p90_balance
    description: Balance p90
    source: fct_balances
    measure:
      type: percentile
      column: balance
      filters: ["active = true", "balance > 0"]
      agg_params: {percentile: 1, use_discrete_percentile: false}
      non_additive_dimension:
        name: balance_date
        window_choice: max
        window_groupings: [account_id]
    dimensions:
      - {name: balance_date, type: time, grain: month}
`, "p90_balance")

	doc := decode(t, out)
	require.Len(t, doc.SemanticModels, 1)
	require.Len(t, doc.SemanticModels[0].Measures, 1)

	m := doc.SemanticModels[0].Measures[0]
	assert.Equal(t, "p90_balance_measure", m.Name)
	assert.Equal(t, "percentile", m.Agg)
	assert.Equal(t, "balance", m.Expr)
	assert.Equal(t, map[string]any{
		"percentile":              1.0,
		"use_discrete_percentile": false,
		"where":                   "active = true AND balance > 0",
	}, m.AggParams)
	require.NotNil(t, m.NonAdd)
	assert.Equal(t, "balance_date", m.NonAdd.Name)
	assert.Equal(t, "max", m.NonAdd.WindowChoice)
	assert.Equal(t, []string{"account_id"}, m.NonAdd.WindowGroupings)

	assert.Contains(t, string(out), "percentile: 1.0\n")
	assert.Contains(t, string(out), "time_granularity: month\n")
}

func TestEmit_FilterLiteralsPassThrough(t *testing.T) {
	out := compile(t, `version: 1
metrics:
  - name: ny_orders
    description: Orders shipped to New York
    source: fct_orders
    measure:
      type: count
      column: order_id
      filters: ["city  = 'New   York'"]
`, "ny_orders")

	doc := decode(t, out)
	require.Len(t, doc.SemanticModels, 1)
	require.Len(t, doc.SemanticModels[0].Measures, 1)
	assert.Equal(t, "city = 'New   York'", doc.SemanticModels[0].Measures[0].AggParams["where"])
}

func TestEmit_MultilineStringsUseLiteralStyle(t *testing.T) {
	out := compile(t, `version: 1
metrics:
  - name: revenue
    description: |
      Revenue.
      Completed orders only.
    source: fct_orders
    measure: {column: amount}
`, "revenue")

	assert.Contains(t, string(out), "description: |\n")
	doc := decode(t, out)
	assert.Equal(t, "revenue_measure", doc.Metrics[0].TypeParams["measure"])
}

func TestEmit_Empty(t *testing.T) {
	out, err := Emit(Input{})
	require.NoError(t, err)
	assert.Equal(t, Header+"version: 2\nsemantic_models: []\nmetrics: []\n", string(out))
}
