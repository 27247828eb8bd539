package compiler

import (
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// Report summarizes one compilation run. It is data only; rendering is left
// to the caller.
type Report struct {
	RunID     string
	StartedAt time.Time

	DocumentsScanned int
	DocumentsSkipped int

	MetricsLoaded   int
	MetricsCompiled int
	MetricsSkipped  int
	// SkippedMetrics are the names of excluded metrics, sorted
	SkippedMetrics []string

	SemanticModels int
	Measures       int

	// Errors are sorted by kind, then location
	Errors []*core.CompileError

	OutputPath string
	Written    bool
	Unchanged  bool
	DryRun     bool

	Success  bool
	Duration time.Duration
}

// HasErrors returns true if any error was recorded.
func (r *Report) HasErrors() bool {
	return len(r.Errors) > 0
}

// ErrorsByKind groups errors by kind.
func (r *Report) ErrorsByKind() map[core.ErrorKind][]*core.CompileError {
	out := make(map[core.ErrorKind][]*core.CompileError)
	for _, e := range r.Errors {
		out[e.Kind] = append(out[e.Kind], e)
	}
	return out
}

// Outcome returns "success" or "failure".
func (r *Report) Outcome() string {
	if r.Success {
		return "success"
	}
	return "failure"
}

// OutputState describes what happened to the output file.
func (r *Report) OutputState() string {
	switch {
	case r.DryRun:
		return "dry run"
	case r.Unchanged:
		return "unchanged"
	case r.Written:
		return "written"
	default:
		return "not written"
	}
}

// Summary returns a human-readable summary.
func (r *Report) Summary() string {
	var counts []string
	byKind := r.ErrorsByKind()
	for _, kind := range core.ErrorKinds {
		if n := len(byKind[kind]); n > 0 {
			counts = append(counts, fmt.Sprintf("%d %s", n, kind))
		}
	}
	errs := "no errors"
	if len(counts) > 0 {
		errs = strings.Join(counts, ", ")
	}

	return fmt.Sprintf(
		"Documents: %d scanned (%d skipped) | "+
			"Metrics: %d loaded (%d compiled, %d skipped) | "+
			"Semantic models: %d (%d measures) | "+
			"Errors: %s | Output: %s | Duration: %s",
		r.DocumentsScanned, r.DocumentsSkipped,
		r.MetricsLoaded, r.MetricsCompiled, r.MetricsSkipped,
		r.SemanticModels, r.Measures,
		errs, r.OutputState(),
		r.Duration.Round(time.Millisecond),
	)
}
