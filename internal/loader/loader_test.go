package loader

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leapmetrics/internal/testutil"
	"github.com/leapstack-labs/leapmetrics/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ParsesAndSkips(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, root, "metrics/orders.yml", testutil.OrdersMetrics)
	testutil.WriteFile(t, root, "metrics/schema.yml", "version: 2\nmodels:\n  - name: fct_orders\n")
	testutil.WriteFile(t, root, "metrics/notes.txt", "not yaml at all")
	testutil.WriteFile(t, root, "metrics/broken_other.yml", "foo: [bar\n")

	l := New(Options{
		Dirs:   []string{filepath.Join(root, "metrics"), filepath.Join(root, "missing")},
		Logger: testutil.NewTestLogger(t),
	})
	result, err := l.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Scanned)
	assert.Equal(t, 2, result.Skipped)
	assert.False(t, result.HasErrors())
	require.Len(t, result.Metrics, 3)
	assert.Equal(t, "total_revenue", result.Metrics[0].Name)
	assert.Equal(t, filepath.Join(root, "metrics", "orders.yml"), result.Metrics[0].Path)
}

func TestLoad_BrokenMetricsFileIsParseError(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, root, "metrics/good.yml", testutil.OrdersMetrics)
	testutil.WriteFile(t, root, "metrics/bad.yml", "version: 1\nmetrics:\n  - name: [oops\n")

	result, err := New(Options{Dirs: []string{filepath.Join(root, "metrics")}}).Load(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.ErrorIs(t, result.Errors[0], core.ErrParse)
	assert.Equal(t, filepath.Join(root, "metrics", "bad.yml"), result.Errors[0].Path)
	assert.Positive(t, result.Errors[0].Pos.Line)
	assert.Len(t, result.Metrics, 3, "good file still loads")
}

func TestLoad_OrderIndependentOfConcurrency(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"c", "a", "b", "nested/d"} {
		testutil.WriteFile(t, root, "metrics/"+name+".yml",
			"version: 1\nmetrics:\n  - name: m_"+filepath.Base(name)+"\n    source: s\n    measure: {column: x}\n")
	}

	var want []string
	for _, concurrency := range []int{1, 4, 16} {
		result, err := New(Options{
			Dirs:        []string{filepath.Join(root, "metrics")},
			Concurrency: concurrency,
		}).Load(context.Background())
		require.NoError(t, err)

		var got []string
		for _, m := range result.Metrics {
			got = append(got, m.Name)
		}
		if want == nil {
			want = got
		}
		assert.Equal(t, want, got)
	}
	assert.Equal(t, []string{"m_a", "m_b", "m_c", "m_d"}, want)
}

func TestLoad_SingleFileAndDuplicates(t *testing.T) {
	root := t.TempDir()
	path := testutil.WriteFile(t, root, "metrics/orders.yml", testutil.OrdersMetrics)

	result, err := New(Options{Dirs: []string{path, filepath.Join(root, "metrics")}}).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned, "same file reached twice is loaded once")
}

func TestLoad_HiddenDirectoriesIgnored(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, root, "metrics/.cache/orders.yml", testutil.OrdersMetrics)

	result, err := New(Options{Dirs: []string{filepath.Join(root, "metrics")}}).Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Scanned)
}

func TestLoad_Cancelled(t *testing.T) {
	root := testutil.SetupMetricsProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{Dirs: []string{filepath.Join(root, "metrics")}}).Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsYAML(t *testing.T) {
	assert.True(t, IsYAML("a.yml"))
	assert.True(t, IsYAML("a.YAML"))
	assert.False(t, IsYAML("a.json"))
}
