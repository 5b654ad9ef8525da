package render

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	bucketStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true).Underline(true)
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	summaryStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#4CAF50")).Padding(0, 1)
	loadingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999")).Italic(true)
)

// Terminal renders views as styled text.
type Terminal struct {
	width int
}

// NewTerminal creates a terminal renderer wrapping text at width columns
// (0 disables wrapping).
func NewTerminal(width int) *Terminal {
	return &Terminal{width: width}
}

// SetWidth changes the wrap width.
func (t *Terminal) SetWidth(width int) {
	t.width = width
}

// Render returns the text form of a view. The loading indicator is left to
// the caller, which may animate it.
func (t *Terminal) Render(v View) string {
	var b strings.Builder
	for _, bucket := range v.Buckets {
		b.WriteString(bucketStyle.Render(bucket.Label))
		b.WriteString("\n\n")
		for _, card := range bucket.Cards {
			b.WriteString(titleStyle.Render(card.Title))
			b.WriteString("\n")
			if card.Failed {
				b.WriteString(t.wrap(errorStyle, card.Text))
			} else {
				b.WriteString(t.wrap(lipgloss.NewStyle(), strings.TrimSpace(card.Text)))
			}
			b.WriteString("\n\n")
		}
	}

	if s := v.Summary; s != nil {
		var body strings.Builder
		body.WriteString(titleStyle.Render(s.Title))
		body.WriteString("\n")
		if s.Error != "" {
			body.WriteString(errorStyle.Render(s.Error))
		}
		for _, f := range s.Fields {
			body.WriteString("\n")
			body.WriteString(labelStyle.Render(f.Label + ":"))
			if len(f.Items) == 0 {
				body.WriteString(" " + f.Value)
				continue
			}
			for _, item := range f.Items {
				body.WriteString("\n  • " + item)
			}
		}
		style := summaryStyle
		if t.width > 4 {
			style = style.Width(t.width - 2)
		}
		b.WriteString(style.Render(body.String()))
		b.WriteString("\n")
	}
	return b.String()
}

// Status returns a one-line description of the run state.
func (t *Terminal) Status(v View) string {
	if v.Loading && v.Current != "" {
		return loadingStyle.Render("Running " + v.Current + "...")
	}
	return loadingStyle.Render(v.State.String())
}

func (t *Terminal) wrap(style lipgloss.Style, text string) string {
	if t.width > 0 {
		style = style.Width(t.width)
	}
	return style.Render(text)
}
