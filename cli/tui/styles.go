// Package tui renders the ledger status as an interactive Bubble Tea view.
//
// It is opt-in (status --tui), read-only, and shows the same payload as
// the json, table and yaml formats.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleColor     = lipgloss.Color("#7C3AED")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	highlightColor = lipgloss.Color("#3B82F6")
	textColor      = lipgloss.Color("#FFFFFF")
)

var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(titleColor).MarginBottom(1)
	LabelStyle = lipgloss.NewStyle().Foreground(mutedColor).Width(16)
	ValueStyle = lipgloss.NewStyle().Foreground(textColor)
	HelpStyle  = lipgloss.NewStyle().Foreground(mutedColor).MarginTop(1)

	// BoxStyle frames the metrics panel.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(1, 2)

	// StatBoxStyle frames one counter; its border takes the counter's color.
	StatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2).
			Width(20).
			Align(lipgloss.Center)
	StatLabelStyle = lipgloss.NewStyle().Foreground(mutedColor).Align(lipgloss.Center)
	StatValueStyle = lipgloss.NewStyle().Bold(true).Foreground(textColor).Align(lipgloss.Center)
)
