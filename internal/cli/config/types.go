// Package config provides configuration management for the leapmetrics CLI.
//
// Settings are layered from defaults, the dbt project's
// vars.dbt_metrics_first block, leapmetrics.yaml, LEAPMETRICS_* environment
// variables and command-line flags, each overriding the one before.
package config

import (
	"path/filepath"

	intconfig "github.com/leapstack-labs/leapmetrics/internal/config"
)

// Config holds all CLI configuration options.
type Config struct {
	InputDirectories   []string `koanf:"input_directories"`
	OutputDirectory    string   `koanf:"output_directory"`
	OutputName         string   `koanf:"output_name"`
	CompiledFileSuffix string   `koanf:"compiled_file_suffix"`

	ValidateSchema         bool `koanf:"validate_schema"`
	VerboseLogging         bool `koanf:"verbose_logging"`
	FailOnCompilationError bool `koanf:"fail_on_compilation_error"`
	FailOnValidationError  bool `koanf:"fail_on_validation_error"`
	ShowCompilationDetails bool `koanf:"show_compilation_details"`

	// Concurrency caps parallel parsing; 0 means GOMAXPROCS
	Concurrency  int    `koanf:"concurrency"`
	OutputFormat string `koanf:"output"`

	// ProjectRoot anchors relative paths. Set by the loader.
	ProjectRoot string `koanf:"-"`
}

// Default configuration values - uses shared defaults from internal/config
const (
	DefaultOutputDirectory    = intconfig.DefaultOutputDirectory
	DefaultOutputName         = intconfig.DefaultOutputName
	DefaultCompiledFileSuffix = intconfig.DefaultCompiledFileSuffix
	DefaultOutput             = intconfig.DefaultOutput
)

// OutputPath returns the generated document's path.
func (c *Config) OutputPath() string {
	return filepath.Join(c.OutputDirectory, c.OutputName+c.CompiledFileSuffix+".yml")
}
