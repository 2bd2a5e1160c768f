package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme is the color scheme of terminal output.
type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
	Good    lipgloss.Color
	Warn    lipgloss.Color
	Bad     lipgloss.Color
}

// DefaultTheme is a green accent on a dark terminal.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Good:    lipgloss.Color("#3fb950"),
	Warn:    lipgloss.Color("#d29922"),
	Bad:     lipgloss.Color("#f85149"),
}

// Styles are the lipgloss styles derived from a Theme.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Border lipgloss.Style
	Help   lipgloss.Style
	Good   lipgloss.Style
	Warn   lipgloss.Style
	Bad    lipgloss.Style
}

// NewStyles derives styles from t.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Label:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border: lipgloss.NewStyle().Foreground(t.Primary),
		Help:   lipgloss.NewStyle().Foreground(t.Dim),
		Good:   lipgloss.NewStyle().Foreground(t.Good),
		Warn:   lipgloss.NewStyle().Foreground(t.Warn),
		Bad:    lipgloss.NewStyle().Foreground(t.Bad),
	}
}

// State renders a connection or audio state name in the color of its
// stability: stable connected states are good, transient states warn and
// disconnected states are dim.
func (s Styles) State(state string) string {
	switch state {
	case "connected", "audio_connected", "AudioOn", "Connected":
		return s.Good.Render(state)
	case "connecting", "disconnecting", "audio_connecting",
		"Connecting", "Disconnecting", "AudioConnecting", "AudioDisconnecting":
		return s.Warn.Render(state)
	case "disconnected", "audio_disconnected", "Disconnected":
		return s.Help.Render(state)
	default:
		return state
	}
}

// Section is a labeled block of lines inside a Frame.
type Section struct {
	Label string
	Lines []string
}

// Frame is a bordered box with a title line and labeled sections.
type Frame struct {
	Styles   Styles
	Title    string
	Status   string
	Sections []Section
	Help     string
}

// Render draws the frame width columns wide. Each section is as tall as
// its content.
func (f Frame) Render(width int) string {
	if width < 8 {
		width = 8
	}
	bc := f.Styles.Border
	inner := width - 4

	var lines []string
	lines = append(lines, bc.Render("╭"+strings.Repeat("─", width-2)+"╮"))

	title := f.Styles.Title.Render(f.Title)
	status := ""
	if f.Status != "" {
		status = f.Styles.Help.Render("[" + f.Status + "]")
	}
	pad := max(0, width-5-lipgloss.Width(title)-lipgloss.Width(status))
	lines = append(lines, bc.Render("│")+" "+title+" "+status+strings.Repeat(" ", pad)+" "+bc.Render("│"))

	for _, sec := range f.Sections {
		label := f.Styles.Label.Render(sec.Label)
		fill := max(0, width-3-lipgloss.Width(label))
		lines = append(lines, bc.Render("├─")+label+bc.Render(strings.Repeat("─", fill)+"┤"))
		content := sec.Lines
		if len(content) == 0 {
			content = []string{f.Styles.Help.Render("(none)")}
		}
		for _, text := range content {
			if lipgloss.Width(text) > inner {
				text = truncate(text, inner-1) + "…"
			}
			lines = append(lines, bc.Render("│")+" "+text+
				strings.Repeat(" ", max(0, inner-lipgloss.Width(text)))+" "+bc.Render("│"))
		}
	}

	lines = append(lines, bc.Render("╰"+strings.Repeat("─", width-2)+"╯"))
	if f.Help != "" {
		lines = append(lines, f.Styles.Help.Render(f.Help))
	}
	return strings.Join(lines, "\n")
}

// truncate cuts s to at most width display columns without splitting a
// rune.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	cur := 0
	for i, r := range s {
		w := lipgloss.Width(string(r))
		if cur+w > width {
			return s[:i]
		}
		cur += w
	}
	return s
}
