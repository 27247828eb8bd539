package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapmetrics/internal/cli/output"
	"github.com/leapstack-labs/leapmetrics/internal/compiler"
	"github.com/spf13/cobra"
)

// GraphQuerier provides read-only access to DAG structure.
type GraphQuerier interface {
	GetParents(string) []string
	GetChildren(string) []string
	NodeCount() int
	EdgeCount() int
}

// NewDAGCommand creates the dag command.
func NewDAGCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dag",
		Short: "Show the metric dependency graph",
		Long: `Display the dependency graph (DAG) of compiled metrics.

Derived metrics depend on the metrics their formula references. Metrics are
grouped by level: level 0 holds metrics with no references, and every other
metric sits one level above the deepest metric it uses. Metrics excluded by
errors are left out.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format (agent-friendly)`,
		Example: `  # Show the DAG
  leapmetrics dag

  # Output as JSON
  leapmetrics dag --output json

  # Output as Markdown
  leapmetrics dag --output markdown`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDAG(cmd)
		},
	}

	return cmd
}

func runDAG(cmd *cobra.Command) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	out, _, err := compiler.New(cmdCtx.CompilerConfig(nil, true)).Compile(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to compile metrics: %w", err)
	}

	graph := out.State.Graph.Without(out.State.ExcludedNames())

	// Get execution levels
	levels, err := graph.GetExecutionLevels()
	if err != nil {
		return fmt.Errorf("failed to get dependency levels: %w", err)
	}

	effectiveMode := r.EffectiveMode()
	switch effectiveMode {
	case output.ModeJSON:
		return dagJSON(r, graph, levels)
	case output.ModeMarkdown:
		return dagMarkdown(r, graph, levels)
	default:
		return dagText(r, graph, levels)
	}
}

// dagText outputs DAG in styled text format.
func dagText(r *output.Renderer, graph GraphQuerier, levels [][]string) error {
	styles := r.Styles()

	r.Header(1, "Metric Dependency Graph")

	for i, level := range levels {
		r.Println(styles.Header2.Render(fmt.Sprintf("Level %d:", i)))
		for _, metric := range level {
			deps := graph.GetParents(metric)
			children := graph.GetChildren(metric)

			r.Printf("  %s\n", styles.MetricName.Render(metric))
			if len(deps) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("depends on:"), strings.Join(deps, ", "))
			}
			if len(children) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("used by:"), strings.Join(children, ", "))
			}
		}
		r.Println("")
	}

	r.Println(styles.Muted.Render(fmt.Sprintf("Total: %d metrics, %d dependencies", graph.NodeCount(), graph.EdgeCount())))

	return nil
}

// dagMarkdown outputs DAG in markdown format.
func dagMarkdown(r *output.Renderer, graph GraphQuerier, levels [][]string) error {
	r.Println(output.FormatHeader(1, "Metric Dependency Graph"))
	r.Println("")

	for i, level := range levels {
		levelName := fmt.Sprintf("Level %d", i)
		if i == 0 {
			levelName = "Level 0 (Base Metrics)"
		}
		r.Println(output.FormatHeader(2, levelName))

		for _, metric := range level {
			deps := graph.GetParents(metric)
			children := graph.GetChildren(metric)

			r.Printf("- %s\n", metric)
			if len(deps) > 0 {
				r.Printf("  - depends on: %s\n", strings.Join(deps, ", "))
			}
			if len(children) > 0 {
				r.Printf("  - used by: %s\n", strings.Join(children, ", "))
			}
		}
		r.Println("")
	}

	r.Println(output.FormatHeader(2, "Summary"))
	r.Println(output.FormatKeyValue("Total Metrics", fmt.Sprintf("%d", graph.NodeCount())))
	r.Println(output.FormatKeyValue("Total Dependencies", fmt.Sprintf("%d", graph.EdgeCount())))

	return nil
}

// dagJSON outputs DAG in JSON format.
func dagJSON(r *output.Renderer, graph GraphQuerier, levels [][]string) error {
	dagOutput := output.DAGOutput{
		Levels:       make([]output.DAGLevel, 0, len(levels)),
		TotalMetrics: graph.NodeCount(),
		TotalEdges:   graph.EdgeCount(),
	}

	for i, level := range levels {
		dagLevel := output.DAGLevel{
			Level:   i,
			Metrics: make([]output.DAGNode, 0, len(level)),
		}

		for _, metric := range level {
			dagLevel.Metrics = append(dagLevel.Metrics, output.DAGNode{
				Name:      metric,
				DependsOn: graph.GetParents(metric),
				UsedBy:    graph.GetChildren(metric),
			})
		}

		dagOutput.Levels = append(dagOutput.Levels, dagLevel)
	}

	return r.JSON(dagOutput)
}
