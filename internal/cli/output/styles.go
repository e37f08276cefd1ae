package output

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Styles holds the lipgloss styles used for text output.
type Styles struct {
	Header  lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style
	Key     lipgloss.Style
	Path    lipgloss.Style
}

// newStyles builds styles bound to w. Without a terminal every style
// renders as plain text.
func newStyles(w io.Writer, isTTY bool) *Styles {
	var lr *lipgloss.Renderer
	if isTTY {
		lr = lipgloss.NewRenderer(w)
	} else {
		lr = lipgloss.NewRenderer(w, termenv.WithProfile(termenv.Ascii))
	}

	return &Styles{
		Header:  lr.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Bold:    lr.NewStyle().Bold(true),
		Muted:   lr.NewStyle().Foreground(lipgloss.Color("8")),
		Success: lr.NewStyle().Foreground(lipgloss.Color("10")),
		Warning: lr.NewStyle().Foreground(lipgloss.Color("11")),
		Error:   lr.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		Info:    lr.NewStyle().Foreground(lipgloss.Color("14")),
		Key:     lr.NewStyle().Foreground(lipgloss.Color("8")),
		Path:    lr.NewStyle().Foreground(lipgloss.Color("13")),
	}
}
