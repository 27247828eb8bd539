package output

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Styles holds the lipgloss styles used for text output.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style

	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style

	MetricName lipgloss.Style
	Path       lipgloss.Style

	// Status icons, rendered with String()
	StatusSuccess lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusSkipped lipgloss.Style
}

// NewStyles builds styles bound to a lipgloss renderer. Without a color
// profile (ASCII), every style renders as plain text.
func NewStyles(r *lipgloss.Renderer) *Styles {
	green := lipgloss.Color("2")
	yellow := lipgloss.Color("3")
	red := lipgloss.Color("1")
	gray := lipgloss.Color("8")
	cyan := lipgloss.Color("6")

	return &Styles{
		Header1: r.NewStyle().Bold(true).Underline(true),
		Header2: r.NewStyle().Bold(true),
		Bold:    r.NewStyle().Bold(true),
		Muted:   r.NewStyle().Foreground(gray),

		Success: r.NewStyle().Foreground(green),
		Warning: r.NewStyle().Foreground(yellow),
		Error:   r.NewStyle().Foreground(red).Bold(true),
		Info:    r.NewStyle().Foreground(cyan),

		MetricName: r.NewStyle().Foreground(cyan),
		Path:       r.NewStyle().Foreground(gray).Italic(true),

		StatusSuccess: r.NewStyle().Foreground(green).SetString("✓"),
		StatusFailed:  r.NewStyle().Foreground(red).SetString("✗"),
		StatusSkipped: r.NewStyle().Foreground(yellow).SetString("-"),
	}
}

// colorProfile picks the termenv profile for a writer.
func colorProfile(isTTY bool) termenv.Profile {
	if !isTTY {
		return termenv.Ascii
	}
	return termenv.EnvColorProfile()
}
