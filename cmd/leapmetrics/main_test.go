// Package main provides tests for the leapmetrics CLI.
package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapmetrics/internal/cli"
	"github.com/leapstack-labs/leapmetrics/internal/cli/config"
	clitestutil "github.com/leapstack-labs/leapmetrics/internal/cli/testutil"
)

func TestVersionCommand(t *testing.T) {
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)
	root := clitestutil.SetupTestProject(t)

	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--project-dir", root, "version"})

	if err := cmd.Execute(); err != nil {
		t.Errorf("version command error = %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "leapmetrics") {
		t.Errorf("version output should contain 'leapmetrics', got: %s", output)
	}
}

func TestCompileCommand(t *testing.T) {
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)
	root := clitestutil.SetupTestProject(t)

	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--project-dir", root, "--output", "markdown", "compile"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("compile command error = %v\n%s", err, buf.String())
	}

	content, err := os.ReadFile(filepath.Join(root, "models", "metrics_first_semantic_models.yml"))
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	for _, want := range []string{"semantic_models:", "metrics:", "revenue_per_customer"} {
		if !strings.Contains(string(content), want) {
			t.Errorf("output should contain %q", want)
		}
	}
	clitestutil.AssertValidMarkdown(t, buf.String())
}
