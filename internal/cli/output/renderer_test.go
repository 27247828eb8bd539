package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTest(mode OutputMode, isTTY bool) (*Renderer, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return NewRendererWithTTY(out, errOut, isTTY, mode), out, errOut
}

func TestMode(t *testing.T) {
	tests := []struct {
		in   string
		want OutputMode
	}{
		{"", ModeAuto},
		{"auto", ModeAuto},
		{"text", ModeText},
		{"TEXT", ModeText},
		{"markdown", ModeMarkdown},
		{"md", ModeMarkdown},
		{"json", ModeJSON},
		{"yaml", ModeAuto},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Mode(tt.in))
		})
	}

	assert.True(t, ValidMode("json"))
	assert.True(t, ValidMode("md"))
	assert.False(t, ValidMode("yaml"))
}

func TestEffectiveMode(t *testing.T) {
	tests := []struct {
		name  string
		mode  OutputMode
		isTTY bool
		want  OutputMode
	}{
		{"auto on terminal", ModeAuto, true, ModeText},
		{"auto when piped", ModeAuto, false, ModeMarkdown},
		{"explicit text when piped", ModeText, false, ModeText},
		{"explicit json on terminal", ModeJSON, true, ModeJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := newTest(tt.mode, tt.isTTY)
			assert.Equal(t, tt.want, r.EffectiveMode())
			assert.Equal(t, tt.isTTY, r.IsTTY())
		})
	}
}

func TestNewRenderer_BufferIsNotTTY(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, ModeAuto)
	assert.False(t, r.IsTTY())
	assert.Equal(t, ModeMarkdown, r.EffectiveMode())
}

func TestRenderer_Markdown(t *testing.T) {
	r, out, errOut := newTest(ModeMarkdown, false)

	r.Header(1, "Compilation")
	r.KeyValue("Metrics", "3")
	r.StatusLine("total_revenue", "success", "")
	r.StatusLine("broken", "failed", "schema")
	r.Success("Done")
	r.Muted("note")
	r.Warning("careful")
	r.Error("bad")

	assert.Equal(t, "# Compilation\n\n"+
		"- **Metrics:** 3\n"+
		"- total_revenue: success\n"+
		"- broken: failed (schema)\n"+
		"**Done**\n"+
		"_note_\n", out.String())
	assert.Equal(t, "> Warning: careful\n> Error: bad\n", errOut.String())
}

func TestRenderer_TextWithoutColor(t *testing.T) {
	// Not a TTY, so the ASCII profile strips every style.
	r, out, _ := newTest(ModeText, false)

	r.Header(2, "Errors")
	r.StatusLine("total_revenue", "success", "fct_orders")
	r.Success("Compiled")

	assert.Equal(t, "Errors\n  ✓ total_revenue fct_orders\n✓ Compiled\n", out.String())
	assert.NotContains(t, out.String(), "\x1b[")
}

func TestRenderer_Table(t *testing.T) {
	header := []string{"Name", "Type"}
	rows := [][]string{{"total_revenue", "simple"}, {"revenue_per_customer", "derived"}}

	md, out, _ := newTest(ModeMarkdown, false)
	md.Table(header, rows)
	assert.Contains(t, out.String(), "| Name | Type |")
	assert.Contains(t, out.String(), "| total_revenue | simple |")

	text, out, _ := newTest(ModeText, false)
	text.Table(header, rows)
	assert.Contains(t, out.String(), "┌")
	assert.Contains(t, out.String(), "revenue_per_customer")
}

func TestRenderer_JSON(t *testing.T) {
	r, out, _ := newTest(ModeJSON, false)
	require.NoError(t, r.JSON(ListSummary{Metrics: 3, SemanticModels: 1, Measures: 2}))

	var got map[string]int
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, map[string]int{"metrics": 3, "semantic_models": 1, "measures": 2}, got)
}

func TestRenderer_Title(t *testing.T) {
	r, _, _ := newTest(ModeText, false)
	assert.Equal(t, "Name Collision", r.Title("name_collision"))
	assert.Equal(t, "Io Write", r.Title("io_write"))
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "## Summary", FormatHeader(2, "Summary"))
	assert.Equal(t, "# Top", FormatHeader(0, "Top"))
	assert.Equal(t, "- **Output:** written", FormatKeyValue("Output", "written"))
	assert.Equal(t, "```yaml\na: 1\n```", FormatCodeBlock("yaml", "a: 1\n"))
}
