package render

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
)

// styles holds the table styles. Every style is a no-op when color is off.
type styles struct {
	title   lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	noColor bool
}

func newStyles(noColor bool) styles {
	if noColor {
		plain := lipgloss.NewStyle()
		return styles{plain, plain, plain, plain, plain, true}
	}
	return styles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(primaryColor),
		muted:   lipgloss.NewStyle().Foreground(mutedColor),
		success: lipgloss.NewStyle().Foreground(successColor),
		warning: lipgloss.NewStyle().Foreground(warningColor),
		failure: lipgloss.NewStyle().Foreground(errorColor),
	}
}

func (s styles) heading(text string) string {
	if s.noColor {
		return "== " + text + " =="
	}
	return s.title.Render(text)
}

func (s styles) label(text string) string {
	if s.noColor {
		return text
	}
	return s.muted.Render(text)
}

// state colors a task state.
func (s styles) state(state string) string {
	if s.noColor {
		return state
	}
	switch state {
	case "complete":
		return s.success.Render(state)
	case "launched", "polling", "queued":
		return s.warning.Render(state)
	case "failed":
		return s.failure.Render(state)
	default:
		return state
	}
}
