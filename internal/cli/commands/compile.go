package commands

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/leapstack-labs/leapmetrics/internal/cli/output"
	"github.com/leapstack-labs/leapmetrics/internal/compiler"
	"github.com/leapstack-labs/leapmetrics/pkg/core"
	"github.com/spf13/cobra"
)

// CompileOptions holds options for the compile command.
type CompileOptions struct {
	DryRun bool
	Watch  bool
}

// NewCompileCommand creates the compile command.
func NewCompileCommand() *cobra.Command {
	opts := &CompileOptions{}

	cmd := &cobra.Command{
		Use:   "compile [paths...]",
		Short: "Compile metrics into dbt semantic models",
		Long: `Compile metrics-first YAML documents into a single dbt semantic layer file.

Metrics are loaded from the configured input directories (or the given
paths), validated, deduplicated into shared measures and grouped into one
semantic model per source. The output is written only when the run's
errors allow it, and is left untouched when nothing changed.

Output adapts to environment:
  - Terminal: Styled, colored output
  - Piped/Scripted: Markdown format (agent-friendly)

Use --output to override: auto, text, markdown, json`,
		Example: `  # Compile the configured input directories
  leapmetrics compile

  # Compile a specific directory without writing
  leapmetrics compile metrics/finance --dry-run

  # Recompile whenever a metrics file changes
  leapmetrics compile --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Compile without writing the output file")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Recompile when input files change")

	return cmd
}

func runCompile(cmd *cobra.Command, args []string, opts *CompileOptions) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	comp := compiler.New(cmdCtx.CompilerConfig(args, opts.DryRun))
	r := cmdCtx.Renderer
	details := cmdCtx.Cfg.ShowCompilationDetails

	if opts.Watch {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		r.Muted("Watching for changes. Press Ctrl+C to stop.")
		return comp.Watch(ctx, func(report *compiler.Report, err error) {
			if rerr := finishRun(r, "Compilation", report, err, details); rerr != nil && !errors.Is(rerr, ErrFailed) {
				r.Error(rerr.Error())
			}
		})
	}

	report, err := comp.Run(cmd.Context())
	return finishRun(r, "Compilation", report, err, details)
}

// finishRun renders the report and maps the outcome to a command error.
// Errors already shown in the report come back as ErrFailed.
func finishRun(r *output.Renderer, title string, report *compiler.Report, err error, details bool) error {
	if err != nil {
		var ce *core.CompileError
		if report == nil || !errors.As(err, &ce) {
			return err
		}
	}
	if rerr := renderReport(r, title, report, details); rerr != nil {
		return rerr
	}
	if err != nil || !report.Success {
		return ErrFailed
	}
	return nil
}
