// Package compiler runs the metrics-first pipeline: load, validate, resolve,
// order, group, emit and write.
//
// Output is staged in memory and written only when the outcome allows it,
// so a failed run never leaves a partially written document behind.
package compiler

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapmetrics/internal/emitter"
	"github.com/leapstack-labs/leapmetrics/internal/grouper"
	"github.com/leapstack-labs/leapmetrics/internal/loader"
	"github.com/leapstack-labs/leapmetrics/internal/resolver"
	"github.com/leapstack-labs/leapmetrics/internal/validate"
	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// Config holds compiler configuration.
type Config struct {
	// InputDirs are scanned recursively for metrics-first documents
	InputDirs []string
	// OutputPath is the generated document
	OutputPath string
	// ValidateSchema enables the semantic validation rules
	ValidateSchema bool
	// FailOnValidationError blocks the write on any schema error; otherwise
	// invalid metrics are skipped
	FailOnValidationError bool
	// FailOnCompilationError blocks the write on parse, reference and
	// name-collision errors
	FailOnCompilationError bool
	// Concurrency caps parallel parsing; 0 means GOMAXPROCS
	Concurrency int
	// DryRun stages the output without writing it
	DryRun bool
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Compiler compiles metrics-first documents.
type Compiler struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a compiler.
func New(cfg Config) *Compiler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Compiler{cfg: cfg, logger: logger}
}

// Config returns the compiler configuration.
func (c *Compiler) Config() Config {
	return c.cfg
}

// Output is a compiled, not yet written, document.
type Output struct {
	Content []byte
	// Metrics are the compiled metrics in emission order
	Metrics []*resolver.Resolution
	Models  []*grouper.SemanticModel
	State   *State
	// Writable is false when the configured escalation rules block the write
	Writable bool
}

// Compile runs every stage up to emission. Malformed input is reported in
// the Report; the returned error is reserved for I/O failures and
// cancellation.
func (c *Compiler) Compile(ctx context.Context) (*Output, *Report, error) {
	start := time.Now()
	report := &Report{
		RunID:      uuid.NewString(),
		StartedAt:  start,
		OutputPath: c.cfg.OutputPath,
		DryRun:     c.cfg.DryRun,
	}
	logger := c.logger.With("run_id", report.RunID)
	logger.Info("starting compilation", "inputs", c.cfg.InputDirs, "output", c.cfg.OutputPath)

	// 1. Load
	loaded, err := loader.New(loader.Options{
		Dirs:        c.cfg.InputDirs,
		Concurrency: c.cfg.Concurrency,
		Logger:      logger,
	}).Load(ctx)
	if err != nil {
		return nil, c.fail(report, start), err
	}
	report.DocumentsScanned = loaded.Scanned
	report.DocumentsSkipped = loaded.Skipped
	report.MetricsLoaded = len(loaded.Metrics)

	state := NewState(loaded.Metrics)
	for _, e := range loaded.Errors {
		state.AddError(e)
	}

	// 2. Validate
	v := validate.New(validate.Options{Semantic: c.cfg.ValidateSchema})
	for _, m := range state.Unnamed {
		for _, e := range v.Validate(m) {
			state.AddError(e)
		}
	}
	for _, m := range state.Active() {
		if errs := v.Validate(m); len(errs) > 0 {
			logger.Debug("metric failed validation", "metric", m.Name, "errors", validate.Summary(errs))
			for _, e := range errs {
				state.Exclude(m.Name, e)
			}
			continue
		}
		if m.Filter != "" && validate.SuspiciousFilter(m.Filter) {
			logger.Warn("metric filter may be missing a field name", "metric", m.Name, "filter", m.Filter)
		}
	}

	// 3. Resolve
	r := resolver.New(state.Names)
	for _, m := range state.Active() {
		res, err := r.Resolve(m)
		if err != nil {
			state.Exclude(m.Name, asCompileError(m, err))
			continue
		}
		state.Resolutions[m.Name] = res
	}

	// 4. Dependency graph and cycles
	buildGraph(state)
	excludeCycles(state)

	// 5. Group
	grouped := grouper.Group(state.ActiveResolutions())
	for _, e := range grouped.Errors {
		state.ExcludeAll(e.Metrics, e)
	}
	excludeDependents(state)

	ordered, err := emissionOrder(state)
	if err != nil {
		return nil, c.fail(report, start), err
	}

	// 6. Emit
	content, err := emitter.Emit(emitter.Input{
		Models:   grouped.Models,
		Metrics:  ordered,
		Measures: grouped,
	})
	if err != nil {
		return nil, c.fail(report, start), err
	}

	core.SortErrors(state.Errors)
	report.Errors = state.Errors
	report.MetricsCompiled = len(ordered)
	report.SkippedMetrics = state.ExcludedNames()
	report.MetricsSkipped = len(report.SkippedMetrics)
	report.SemanticModels = len(grouped.Models)
	report.Measures = grouped.MeasureCount()

	writable, success := c.escalate(state)
	report.Success = success
	report.Duration = time.Since(start)

	logger.Info("compilation finished",
		"metrics_compiled", report.MetricsCompiled,
		"metrics_skipped", report.MetricsSkipped,
		"semantic_models", report.SemanticModels,
		"errors", len(report.Errors),
		"writable", writable)

	return &Output{
		Content:  content,
		Metrics:  ordered,
		Models:   grouped.Models,
		State:    state,
		Writable: writable,
	}, report, nil
}

// Run compiles and, when allowed, writes the output document.
// Write failures are returned as an io_write CompileError and recorded in
// the report.
func (c *Compiler) Run(ctx context.Context) (*Report, error) {
	out, report, err := c.Compile(ctx)
	if err != nil {
		return report, err
	}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	if c.cfg.DryRun || !out.Writable {
		if !out.Writable {
			c.logger.Warn("output not written because of errors", "output", c.cfg.OutputPath, "errors", len(report.Errors))
		}
		return report, nil
	}

	// Abort before touching the filesystem if the run was cancelled.
	if err := ctx.Err(); err != nil {
		report.Success = false
		return report, err
	}

	written, err := writeAtomic(c.cfg.OutputPath, out.Content)
	if err != nil {
		werr := core.NewIOWriteError(c.cfg.OutputPath, err)
		report.Errors = append(report.Errors, werr)
		report.Success = false
		return report, werr
	}
	report.Written = written
	report.Unchanged = !written
	if written {
		c.logger.Info("wrote semantic models", "output", c.cfg.OutputPath, "bytes", len(out.Content))
	} else {
		c.logger.Debug("output unchanged", "output", c.cfg.OutputPath)
	}
	return report, nil
}

// escalate applies the configured failure rules to the recorded errors.
func (c *Compiler) escalate(s *State) (writable, success bool) {
	writable, success = true, true

	if s.Count(core.KindParse) > 0 && c.cfg.FailOnCompilationError {
		writable, success = false, false
	}
	if s.Count(core.KindSchema) > 0 && c.cfg.FailOnValidationError {
		writable, success = false, false
	}
	if s.Count(core.KindReference)+s.Count(core.KindNameCollision) > 0 {
		success = false
		if c.cfg.FailOnCompilationError {
			writable = false
		}
	}
	return writable, success
}

func (c *Compiler) fail(report *Report, start time.Time) *Report {
	report.Success = false
	report.Duration = time.Since(start)
	return report
}

func asCompileError(m *core.MetricDefinition, err error) *core.CompileError {
	var ce *core.CompileError
	if errors.As(err, &ce) {
		return ce
	}
	return core.NewReferenceError(m, []string{m.Name}, "%v", err)
}

// OutputPath joins the output location settings into the document path.
func OutputPath(dir, name, suffix string) string {
	return filepath.Join(dir, name+suffix+".yml")
}
