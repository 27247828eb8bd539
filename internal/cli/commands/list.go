package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapmetrics/internal/cli/output"
	"github.com/leapstack-labs/leapmetrics/internal/compiler"
	"github.com/spf13/cobra"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List compiled metrics",
		Long: `List every metric that compiles, in the order it is emitted, with its
sources and the shared measures it uses.

Output adapts to environment:
  - Terminal: Styled table
  - Piped/Scripted: Markdown table (agent-friendly)

Use --output to override: auto, text, markdown, json`,
		Example: `  # List metrics (auto-detect output format)
  leapmetrics list

  # List metrics as JSON
  leapmetrics list --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd)
		},
	}

	return cmd
}

func runList(cmd *cobra.Command) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	out, report, err := compiler.New(cmdCtx.CompilerConfig(nil, true)).Compile(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to compile metrics: %w", err)
	}

	list := buildList(out, cmdCtx.Cfg.ProjectRoot)

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(list)
	}

	r.Header(1, fmt.Sprintf("Metrics (%d total)", list.Summary.Metrics))
	rows := make([][]string, 0, len(list.Metrics))
	for _, m := range list.Metrics {
		uses := m.Measures
		if len(m.References) > 0 {
			uses = m.References
		}
		rows = append(rows, []string{
			m.Name,
			m.Type,
			strings.Join(m.Sources, ", "),
			strings.Join(uses, ", "),
			m.Description,
		})
	}
	r.Table([]string{"Name", "Type", "Sources", "Uses", "Description"}, rows)
	r.Println("")
	r.Muted(fmt.Sprintf("Total: %d metrics, %d semantic models, %d measures",
		list.Summary.Metrics, list.Summary.SemanticModels, list.Summary.Measures))

	if report.MetricsSkipped > 0 {
		r.Warning(fmt.Sprintf("%d metrics skipped because of errors; run validate for details", report.MetricsSkipped))
	}
	return nil
}

// buildList describes the compiled metrics in emission order. Files are
// shown relative to root when possible.
func buildList(out *compiler.Output, root string) output.ListOutput {
	measures := make(map[string][]string)
	measureCount := 0
	for _, model := range out.Models {
		measureCount += len(model.Measures)
		for _, m := range model.Measures {
			for _, metric := range m.Metrics {
				measures[metric] = append(measures[metric], m.Name)
			}
		}
	}

	list := output.ListOutput{
		Metrics: make([]output.MetricInfo, 0, len(out.Metrics)),
		Summary: output.ListSummary{
			Metrics:        len(out.Metrics),
			SemanticModels: len(out.Models),
			Measures:       measureCount,
		},
	}
	for _, res := range out.Metrics {
		m := res.Metric
		names := measures[m.Name]
		sort.Strings(names)

		var sources []string
		for _, req := range res.Requests {
			if !contains(sources, req.Source) {
				sources = append(sources, req.Source)
			}
		}
		sort.Strings(sources)

		list.Metrics = append(list.Metrics, output.MetricInfo{
			Name:        m.Name,
			Type:        string(m.Type),
			Sources:     sources,
			Measures:    names,
			References:  res.References,
			Description: m.Description,
			File:        relPath(root, m.Path),
		})
	}
	return list
}
