package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAggregation(t *testing.T) {
	tests := []struct {
		input string
		want  Aggregation
		ok    bool
	}{
		{"sum", AggSum, true},
		{"SUM", AggSum, true},
		{" count_distinct ", AggCountDistinct, true},
		{"avg", AggAverage, true},
		{"average", AggAverage, true},
		{"cnt", AggCount, true},
		{"cnt_distinct", AggCountDistinct, true},
		{"count_unique", AggCountDistinct, true},
		{"percentile", AggPercentile, true},
		{"sum_boolean", AggSumBoolean, true},
		{"stddev", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseAggregation(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeAggParams(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		params, err := DecodeAggParams(nil)
		require.NoError(t, err)
		assert.True(t, params.IsZero())
	})

	t.Run("percentile", func(t *testing.T) {
		params, err := DecodeAggParams(map[string]any{
			"percentile":              0.95,
			"use_discrete_percentile": false,
		})
		require.NoError(t, err)
		require.NotNil(t, params.Percentile)
		require.NotNil(t, params.UseDiscretePercentile)
		assert.InDelta(t, 0.95, *params.Percentile, 1e-9)
		assert.False(t, *params.UseDiscretePercentile)
		assert.Nil(t, params.UseApproximatePercentile)
	})

	t.Run("integer percentile", func(t *testing.T) {
		params, err := DecodeAggParams(map[string]any{"percentile": 1})
		require.NoError(t, err)
		require.NotNil(t, params.Percentile)
		assert.InDelta(t, 1.0, *params.Percentile, 1e-9)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := DecodeAggParams(map[string]any{"percentile": 0.5, "pctl": 0.5})
		assert.Error(t, err)
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := DecodeAggParams(map[string]any{"use_discrete_percentile": "yes"})
		assert.Error(t, err)
	})
}

func TestSyntheticName(t *testing.T) {
	assert.Equal(t, "revenue", SyntheticName("revenue", RoleMeasure))
	assert.Equal(t, "aov_numerator", SyntheticName("aov", RoleNumerator))
	assert.Equal(t, "aov_denominator", SyntheticName("aov", RoleDenominator))
	assert.Equal(t, "trial_base", SyntheticName("trial", RoleBase))
	assert.Equal(t, "trial_conversion", SyntheticName("trial", RoleConversion))
	assert.Equal(t, "running_cumulative", SyntheticName("running", RoleCumulative))

	named := &MeasureInput{Name: "orders"}
	assert.Equal(t, "orders", named.EffectiveName("aov", RoleDenominator))

	var missing *MeasureInput
	assert.Equal(t, "aov_numerator", missing.EffectiveName("aov", RoleNumerator))
}

func TestValidWindow(t *testing.T) {
	for _, w := range []string{"7 days", "1 day", "2 weeks", "1 month", "3 quarters", "1 year"} {
		assert.True(t, ValidWindow(w), w)
	}
	for _, w := range []string{"", "days", "0 days", "7", "7 fortnights", "-1 day"} {
		assert.False(t, ValidWindow(w), w)
	}
}
