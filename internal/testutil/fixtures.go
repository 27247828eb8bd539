package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// OrdersMetrics is the canonical fct_orders scenario: two simple metrics on
// one source and a derived metric over both.
const OrdersMetrics = `version: 1
metrics:
  - name: total_revenue
    description: Total revenue from completed orders
    source: fct_orders
    measure:
      type: sum
      column: amount
      filters:
        - "status = 'completed'"
    dimensions:
      - name: order_date
        type: time
        grain: day
      - name: customer_segment
        type: categorical
    entities:
      - name: order_id
        type: primary
      - name: customer_id
        type: foreign

  - name: monthly_active_customers
    description: Distinct customers with an order
    source: fct_orders
    measure:
      type: count_distinct
      column: customer_id
    dimensions:
      - name: order_date
        type: time
        grain: day
    entities:
      - name: customer_id
        type: foreign

  - name: revenue_per_customer
    description: Revenue per active customer
    type: derived
    formula: total_revenue / monthly_active_customers
`

// WriteFile writes content to root/rel, creating parent directories.
func WriteFile(t testing.TB, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// SetupMetricsProject creates a temporary project with the orders scenario
// under metrics/ and returns its root.
func SetupMetricsProject(t testing.TB) string {
	t.Helper()
	root := t.TempDir()
	WriteFile(t, root, "metrics/orders.yml", OrdersMetrics)
	return root
}
