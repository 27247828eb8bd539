package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/leapstack-labs/leapmetrics/internal/cli/output"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if len(c.InputDirectories) == 0 {
		return fmt.Errorf("input_directories must not be empty")
	}
	if c.OutputDirectory == "" {
		return fmt.Errorf("output_directory is required")
	}
	if c.OutputName == "" {
		return fmt.Errorf("output_name is required")
	}
	if strings.ContainsAny(c.OutputName+c.CompiledFileSuffix, `/\`) {
		return fmt.Errorf("output_name and compiled_file_suffix must not contain path separators")
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must be >= 0, got %d", c.Concurrency)
	}
	if c.OutputFormat != "" && !output.ValidMode(c.OutputFormat) {
		return fmt.Errorf("invalid output format %q (expected auto, text, markdown or json)", c.OutputFormat)
	}
	return nil
}

// ExistingInputDirectories returns the input directories that exist.
// Missing directories are allowed so defaults can name optional locations.
func (c *Config) ExistingInputDirectories() []string {
	var out []string
	for _, dir := range c.InputDirectories {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			out = append(out, dir)
		}
	}
	return out
}
