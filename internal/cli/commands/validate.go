package commands

import (
	"github.com/leapstack-labs/leapmetrics/internal/compiler"
	"github.com/spf13/cobra"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [paths...]",
		Short: "Check metrics without writing output",
		Long: `Run every compilation stage except the write and report the errors found.

The exit status is the same as compile would return, so validate can gate
CI before the semantic layer file is regenerated.`,
		Example: `  # Validate the configured input directories
  leapmetrics validate

  # Validate one directory and print the report as JSON
  leapmetrics validate metrics/finance --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args)
		},
	}

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	comp := compiler.New(cmdCtx.CompilerConfig(args, true))
	_, report, err := comp.Compile(cmd.Context())
	return finishRun(cmdCtx.Renderer, "Validation", report, err, cmdCtx.Cfg.ShowCompilationDetails)
}
