package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	intconfig "github.com/leapstack-labs/leapmetrics/internal/config"
	"github.com/spf13/pflag"
)

// loggerKey is used to store logger in context.
// This key is shared with root.go via both using the same type.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "LEAPMETRICS_"

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config // Stores the loaded config for access by commands
)

// flagKeys maps flag names to config keys where they differ.
var flagKeys = map[string]string{
	"input-dir":                 "input_directories",
	"output-dir":                "output_directory",
	"suffix":                    "compiled_file_suffix",
	"verbose":                   "verbose_logging",
	"details":                   "show_compilation_details",
	"fail-on-validation-error":  "fail_on_validation_error",
	"fail-on-compilation-error": "fail_on_compilation_error",
}

// inferProjectRoot determines the project root from CLI flags and filesystem.
// Priority:
//  1. Explicit --project-dir flag
//  2. Directory of an explicit --config file
//  3. Search upward from CWD for leapmetrics.yaml or dbt_project.yml
//  4. Current working directory
func inferProjectRoot(cfgFile string, flags *pflag.FlagSet) string {
	if flags != nil && flags.Changed("project-dir") {
		if projectDir, _ := flags.GetString("project-dir"); projectDir != "" {
			return absOrClean(projectDir)
		}
	}

	if cfgFile != "" {
		return filepath.Dir(absOrClean(cfgFile))
	}

	cwd, err := os.Getwd()
	if err != nil || cwd == "" {
		return "."
	}
	if root := intconfig.FindProjectRoot(cwd, maxUpwardSearchLevels); root != "" {
		return root
	}
	return cwd
}

func absOrClean(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// LoadConfig loads configuration from defaults, the dbt project, the config
// file, environment variables and flags.
// Precedence (highest to lowest): flags > env vars > config file > dbt_project.yml vars > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	// Reset koanf for fresh load
	k = koanf.New(".")
	configFileUsed = ""

	projectRoot := inferProjectRoot(cfgFile, flags)

	// 1. Load defaults
	if err := k.Load(confmap.Provider(intconfig.Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Load the dbt project's vars.dbt_metrics_first block
	vars, err := intconfig.LoadDbtVars(projectRoot)
	if err != nil {
		return nil, err
	}
	if vars != nil {
		if err := k.Load(confmap.Provider(vars, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load dbt project vars: %w", err)
		}
	}

	// 3. Find and load config file
	if cfgFile == "" {
		cfgFile = intconfig.FindConfigFile(projectRoot)
	} else if _, err := os.Stat(cfgFile); err != nil {
		return nil, fmt.Errorf("config file not found: %s", cfgFile)
	}
	configFileUsed = cfgFile
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 4. Load environment variables (LEAPMETRICS_ prefix)
	// Transform: LEAPMETRICS_OUTPUT_DIRECTORY -> output_directory
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		if key == "input_directories" {
			return key, splitList(value)
		}
		return key, value
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 5. Load flags (highest priority - overrides env vars and config file)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, flagValue(flags)), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 6. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 7. Resolve relative paths. Paths given as flags are relative to the
	// working directory; all others to the project root.
	cfg.ProjectRoot = projectRoot
	inputBase, outputBase := projectRoot, projectRoot
	if flags != nil {
		if flags.Changed("input-dir") {
			inputBase = absOrClean(".")
		}
		if flags.Changed("output-dir") {
			outputBase = absOrClean(".")
		}
	}
	for i, dir := range cfg.InputDirectories {
		cfg.InputDirectories[i] = resolvePathRelativeTo(dir, inputBase)
	}
	cfg.OutputDirectory = resolvePathRelativeTo(cfg.OutputDirectory, outputBase)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Store config for access by commands
	currentConfig = &cfg

	return &cfg, nil
}

// flagValue maps explicitly set flags to config keys.
func flagValue(flags *pflag.FlagSet) func(f *pflag.Flag) (string, interface{}) {
	return func(f *pflag.Flag) (string, interface{}) {
		// Only load flags that were explicitly set
		if !f.Changed {
			return "", nil
		}
		switch f.Name {
		case "config", "project-dir":
			return "", nil
		case "no-validate":
			v, _ := flags.GetBool("no-validate")
			return "validate_schema", !v
		}
		if key, ok := flagKeys[f.Name]; ok {
			return key, posflag.FlagVal(flags, f)
		}
		// Transform kebab-case to snake_case for config keys
		return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
// This is available after LoadConfig is called.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.New(slog.DiscardHandler)
	}
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}
