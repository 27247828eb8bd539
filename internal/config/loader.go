// Package config locates a project and reads the settings it carries outside
// the CLI's own config file.
//
// A project root is the nearest directory holding leapmetrics.yaml,
// leapmetrics.yml or dbt_project.yml. Settings may also live in the dbt
// project file under vars.dbt_metrics_first.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "leapmetrics.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "leapmetrics.yml"

// DbtProjectFile is the dbt project file.
const DbtProjectFile = "dbt_project.yml"

// DbtVarsKey is where settings live inside the dbt project file.
const DbtVarsKey = "vars.dbt_metrics_first"

// FindConfigFile returns the config file in dir, or "" if there is none.
func FindConfigFile(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// IsProjectRoot reports whether dir holds a config file or a dbt project.
func IsProjectRoot(dir string) bool {
	if FindConfigFile(dir) != "" {
		return true
	}
	_, err := os.Stat(filepath.Join(dir, DbtProjectFile))
	return err == nil
}

// FindProjectRoot walks up at most maxLevels directories from startDir
// looking for a project root. Returns "" if none is found.
func FindProjectRoot(startDir string, maxLevels int) string {
	dir := startDir
	for i := 0; i < maxLevels; i++ {
		if IsProjectRoot(dir) {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			return ""
		}
		dir = parent
	}
	return ""
}

// LoadDbtVars reads the vars.dbt_metrics_first block of dir's dbt project
// file. Returns nil, nil when the file or the block is absent.
func LoadDbtVars(dir string) (map[string]any, error) {
	path := filepath.Join(dir, DbtProjectFile)
	if _, err := os.Stat(path); err != nil {
		return nil, nil //nolint:nilerr // a missing dbt project is not an error
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	vars := k.Cut(DbtVarsKey).Raw()
	if len(vars) == 0 {
		return nil, nil
	}
	return vars, nil
}
