package config

// Default configuration values.
const (
	DefaultOutputDirectory    = "models"
	DefaultOutputName         = "metrics_first"
	DefaultCompiledFileSuffix = "_semantic_models"
	DefaultOutput             = "auto" // Auto-detect: TTY=text, non-TTY=markdown
)

// DefaultInputDirectories are scanned when no input directory is configured.
var DefaultInputDirectories = []string{"metrics", "semantic_models", "models/metrics"}

// Defaults returns the default value of every configuration key.
func Defaults() map[string]any {
	return map[string]any{
		"input_directories":         append([]string(nil), DefaultInputDirectories...),
		"output_directory":          DefaultOutputDirectory,
		"output_name":               DefaultOutputName,
		"compiled_file_suffix":      DefaultCompiledFileSuffix,
		"validate_schema":           true,
		"verbose_logging":           false,
		"fail_on_compilation_error": true,
		"fail_on_validation_error":  true,
		"show_compilation_details":  false,
		"concurrency":               0,
		"output":                    DefaultOutput,
	}
}
