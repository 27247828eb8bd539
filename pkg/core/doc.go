// Package core defines the shared language of the metrics-first compiler.
//
// This package contains:
//   - Metric definitions as written by analysts (MetricDefinition)
//   - The per-type parameter variants (SimpleParams, RatioParams, ...)
//   - Measure, dimension and entity specifications
//   - The error kinds reported by every pipeline stage (CompileError)
//
// The Golden Rule: pkg/core imports ONLY stdlib and mapstructure.
// All other packages depend on core, not the reverse.
package core
