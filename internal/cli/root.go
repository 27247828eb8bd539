// Package cli provides the command-line interface for leapmetrics.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/leapstack-labs/leapmetrics/internal/cli/commands"
	"github.com/leapstack-labs/leapmetrics/internal/cli/config"
	"github.com/leapstack-labs/leapmetrics/internal/cli/output"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// configKey is used to store config in context.
type configKey struct{}

// rendererKey is used to store renderer in context.
type rendererKey struct{}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "leapmetrics",
		Short: "leapmetrics - metrics-first semantic layer compiler",
		Long: `leapmetrics compiles metrics-first YAML into dbt semantic layer files.

Analysts declare metrics with their measure, dimensions and entities inline.
leapmetrics validates them, deduplicates shared measures and writes one
semantic model per source next to the metrics that use them.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			var err error
			cfg, err = config.LoadConfig(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			level := slog.LevelWarn
			if cfg.VerboseLogging {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			// Store config, logger and renderer in context
			ctx := context.WithValue(cmd.Context(), configKey{}, cfg)
			ctx = context.WithValue(ctx, config.LoggerKey(), logger)

			mode := output.Mode(cfg.OutputFormat)
			renderer := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)
			ctx = context.WithValue(ctx, rendererKey{}, renderer)
			cmd.SetContext(ctx)

			if configFile := config.GetConfigFileUsed(); configFile != "" {
				logger.Debug("using config file", "path", configFile)
			}
			logger.Debug("configuration loaded",
				"project_root", cfg.ProjectRoot,
				"inputs", cfg.InputDirectories,
				"output", cfg.OutputPath())

			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set version template
	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Metrics-first compiler for the dbt semantic layer
`)

	// Global persistent flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./leapmetrics.yaml)")
	flags.String("project-dir", "", "Project root (default: nearest directory with leapmetrics.yaml or dbt_project.yml)")
	flags.StringSlice("input-dir", nil, "Directory to scan for metrics (repeatable)")
	flags.String("output-dir", "", "Directory for the generated file")
	flags.String("suffix", "", "Suffix appended to the output name")
	flags.Bool("no-validate", false, "Skip semantic validation rules")
	flags.BoolP("verbose", "v", false, "Verbose logging")
	flags.Bool("details", false, "Show per-metric compilation details")
	flags.StringP("output", "o", "", "Output format (auto|text|markdown|json)")
	flags.Bool("fail-on-validation-error", true, "Fail and skip the write on any schema error")
	flags.Bool("fail-on-compilation-error", true, "Fail and skip the write on parse or reference errors")
	flags.Int("concurrency", 0, "Maximum files parsed in parallel (0 = GOMAXPROCS)")

	// Register completion for output flag
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "text", "markdown", "json"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.MarkPersistentFlagDirname("input-dir")
	_ = rootCmd.MarkPersistentFlagDirname("output-dir")
	_ = rootCmd.MarkPersistentFlagDirname("project-dir")

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewCompileCommand())
	rootCmd.AddCommand(commands.NewValidateCommand())
	rootCmd.AddCommand(commands.NewListCommand())
	rootCmd.AddCommand(commands.NewDAGCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command. A failed compilation has already been
// reported, so only other errors are printed.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, commands.ErrFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return err
	}
	return nil
}

// GetConfig retrieves the config from the command context.
func GetConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	// Return default config if none in context
	return &config.Config{
		InputDirectories:       []string{"metrics"},
		OutputDirectory:        config.DefaultOutputDirectory,
		OutputName:             config.DefaultOutputName,
		CompiledFileSuffix:     config.DefaultCompiledFileSuffix,
		ValidateSchema:         true,
		FailOnCompilationError: true,
		FailOnValidationError:  true,
		OutputFormat:           config.DefaultOutput,
	}
}

// GetRenderer retrieves the renderer from the command context.
func GetRenderer(ctx context.Context) *output.Renderer {
	if r, ok := ctx.Value(rendererKey{}).(*output.Renderer); ok {
		return r
	}
	// Return default renderer if none in context
	return output.NewRenderer(os.Stdout, os.Stderr, output.ModeAuto)
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for leapmetrics.

To load completions:

Bash:
  $ source <(leapmetrics completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ leapmetrics completion bash > /etc/bash_completion.d/leapmetrics
  # macOS:
  $ leapmetrics completion bash > $(brew --prefix)/etc/bash_completion.d/leapmetrics

Zsh:
  $ leapmetrics completion zsh > "${fpath[1]}/_leapmetrics"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ leapmetrics completion fish | source

  # To load completions for each session, execute once:
  $ leapmetrics completion fish > ~/.config/fish/completions/leapmetrics.fish

PowerShell:
  PS> leapmetrics completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
