package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapmetrics/internal/cli/output"
	"github.com/leapstack-labs/leapmetrics/internal/compiler"
	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// renderReport prints a compilation report in the renderer's mode.
// title names the run, e.g. "Compilation" or "Validation".
func renderReport(r *output.Renderer, title string, report *compiler.Report, details bool) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(reportOutput(report))
	}

	r.Header(1, title)
	r.KeyValue("Documents", fmt.Sprintf("%d scanned, %d skipped", report.DocumentsScanned, report.DocumentsSkipped))
	r.KeyValue("Metrics", fmt.Sprintf("%d loaded, %d compiled, %d skipped",
		report.MetricsLoaded, report.MetricsCompiled, report.MetricsSkipped))
	r.KeyValue("Semantic models", fmt.Sprintf("%d (%d measures)", report.SemanticModels, report.Measures))
	r.KeyValue("Output", fmt.Sprintf("%s (%s)", report.OutputPath, report.OutputState()))
	if details {
		r.KeyValue("Run ID", report.RunID)
		r.KeyValue("Duration", report.Duration.String())
	}
	r.Println("")

	if details && len(report.SkippedMetrics) > 0 {
		r.Header(2, "Skipped Metrics")
		kinds := skippedKinds(report.Errors)
		for _, name := range report.SkippedMetrics {
			r.StatusLine(name, "skipped", string(kinds[name]))
		}
		r.Println("")
	}

	if report.HasErrors() {
		renderErrors(r, report, details)
	}

	if report.Success {
		r.Success(fmt.Sprintf("%s succeeded: %d metrics", title, report.MetricsCompiled))
	} else {
		r.Error(fmt.Sprintf("%s failed: %d errors", title, len(report.Errors)))
	}
	return nil
}

// renderErrors lists errors grouped by kind, or as one table with details.
func renderErrors(r *output.Renderer, report *compiler.Report, details bool) {
	if details {
		r.Header(2, "Errors")
		rows := make([][]string, 0, len(report.Errors))
		for _, e := range report.Errors {
			rows = append(rows, []string{
				string(e.Kind),
				location(e),
				strings.Join(e.Metrics, ", "),
				errorMessage(e),
			})
		}
		r.Table([]string{"Kind", "Location", "Metrics", "Message"}, rows)
		r.Println("")
		return
	}

	byKind := report.ErrorsByKind()
	for _, kind := range core.ErrorKinds {
		errs := byKind[kind]
		if len(errs) == 0 {
			continue
		}
		r.Header(2, fmt.Sprintf("%s Errors (%d)", r.Title(string(kind)), len(errs)))
		for _, e := range errs {
			r.StatusLine(e.Error(), "failed", "")
		}
		r.Println("")
	}
}

// skippedKinds maps each excluded metric to the kind of its first error.
func skippedKinds(errs []*core.CompileError) map[string]core.ErrorKind {
	out := make(map[string]core.ErrorKind)
	for _, e := range errs {
		for _, name := range e.Metrics {
			if _, ok := out[name]; !ok {
				out[name] = e.Kind
			}
		}
	}
	return out
}

func location(e *core.CompileError) string {
	if e.Path == "" || e.Pos.IsZero() {
		return e.Path
	}
	return e.Path + ":" + e.Pos.String()
}

func errorMessage(e *core.CompileError) string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func reportOutput(report *compiler.Report) output.ReportOutput {
	out := output.ReportOutput{
		RunID:      report.RunID,
		Outcome:    report.Outcome(),
		Output:     report.OutputState(),
		OutputFile: report.OutputPath,
		DurationMS: report.Duration.Milliseconds(),
		Documents: output.DocumentCounts{
			Scanned: report.DocumentsScanned,
			Skipped: report.DocumentsSkipped,
		},
		Metrics: output.MetricCounts{
			Loaded:   report.MetricsLoaded,
			Compiled: report.MetricsCompiled,
			Skipped:  report.MetricsSkipped,
			Excluded: report.SkippedMetrics,
		},
		SemanticModels: report.SemanticModels,
		Measures:       report.Measures,
		Errors:         make([]output.ErrorInfo, 0, len(report.Errors)),
	}
	for _, e := range report.Errors {
		out.Errors = append(out.Errors, output.ErrorInfo{
			Kind:    string(e.Kind),
			File:    e.Path,
			Line:    e.Pos.Line,
			Column:  e.Pos.Column,
			Metrics: e.Metrics,
			Message: errorMessage(e),
		})
	}
	return out
}
