package output

// ReportOutput is the JSON form of a compilation report.
type ReportOutput struct {
	RunID      string `json:"run_id"`
	Outcome    string `json:"outcome"`
	Output     string `json:"output"`
	OutputFile string `json:"output_file"`
	DurationMS int64  `json:"duration_ms"`

	Documents DocumentCounts `json:"documents"`
	Metrics   MetricCounts   `json:"metrics"`

	SemanticModels int `json:"semantic_models"`
	Measures       int `json:"measures"`

	Errors []ErrorInfo `json:"errors"`
}

// DocumentCounts counts scanned input documents.
type DocumentCounts struct {
	Scanned int `json:"scanned"`
	Skipped int `json:"skipped"`
}

// MetricCounts counts metrics through the pipeline.
type MetricCounts struct {
	Loaded   int      `json:"loaded"`
	Compiled int      `json:"compiled"`
	Skipped  int      `json:"skipped"`
	Excluded []string `json:"excluded,omitempty"`
}

// ErrorInfo is one compile error.
type ErrorInfo struct {
	Kind    string   `json:"kind"`
	File    string   `json:"file,omitempty"`
	Line    int      `json:"line,omitempty"`
	Column  int      `json:"column,omitempty"`
	Metrics []string `json:"metrics,omitempty"`
	Message string   `json:"message"`
}

// MetricInfo describes one compiled metric for list output.
type MetricInfo struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Sources     []string `json:"sources,omitempty"`
	Measures    []string `json:"measures,omitempty"`
	References  []string `json:"references,omitempty"`
	Description string   `json:"description,omitempty"`
	File        string   `json:"file"`
}

// ListOutput is the JSON form of the list command.
type ListOutput struct {
	Metrics []MetricInfo `json:"metrics"`
	Summary ListSummary  `json:"summary"`
}

// ListSummary totals the list output.
type ListSummary struct {
	Metrics        int `json:"metrics"`
	SemanticModels int `json:"semantic_models"`
	Measures       int `json:"measures"`
}

// DAGOutput is the JSON form of the dag command.
type DAGOutput struct {
	Levels       []DAGLevel `json:"levels"`
	TotalMetrics int        `json:"total_metrics"`
	TotalEdges   int        `json:"total_edges"`
}

// DAGLevel is one dependency level.
type DAGLevel struct {
	Level   int       `json:"level"`
	Metrics []DAGNode `json:"metrics"`
}

// DAGNode is a metric and its formula references.
type DAGNode struct {
	Name      string   `json:"name"`
	DependsOn []string `json:"depends_on,omitempty"`
	UsedBy    []string `json:"used_by,omitempty"`
}
