// Package commands implements the leapmetrics subcommands.
package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/leapmetrics/internal/cli/config"
	"github.com/leapstack-labs/leapmetrics/internal/cli/output"
	"github.com/leapstack-labs/leapmetrics/internal/compiler"
	"github.com/spf13/cobra"
)

// ErrFailed is returned when a run completed but its outcome is failure.
// The report has already been rendered, so callers only set the exit code.
var ErrFailed = errors.New("compilation failed")

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext from the loaded configuration.
// If no configuration was loaded by the root command, it is loaded now.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg, err := getConfig()
	if err != nil {
		return nil, err
	}
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}, nil
}

// getConfig returns the current configuration, loading it from the working
// directory when the root command did not.
func getConfig() (*config.Config, error) {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg, nil
	}
	cfg, err := config.LoadConfig("", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// CompilerConfig builds the compiler configuration. Non-empty paths replace
// the configured input directories.
func (c *CommandContext) CompilerConfig(paths []string, dryRun bool) compiler.Config {
	inputs := c.Cfg.InputDirectories
	if len(paths) > 0 {
		inputs = make([]string, len(paths))
		for i, p := range paths {
			inputs[i] = absPath(p)
		}
	}

	return compiler.Config{
		InputDirs:              inputs,
		OutputPath:             c.Cfg.OutputPath(),
		ValidateSchema:         c.Cfg.ValidateSchema,
		FailOnValidationError:  c.Cfg.FailOnValidationError,
		FailOnCompilationError: c.Cfg.FailOnCompilationError,
		Concurrency:            c.Cfg.Concurrency,
		DryRun:                 dryRun,
		Logger:                 c.Logger,
	}
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// Helper functions shared across commands

// relPath returns path relative to root, or path unchanged if it lies
// outside root.
func relPath(root, path string) string {
	if root == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

func contains(slice []string, s string) bool {
	for _, item := range slice {
		if item == s {
			return true
		}
	}
	return false
}
