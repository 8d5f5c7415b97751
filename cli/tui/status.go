package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/isobar/cli/reader"
)

// StatusModel is a Bubble Tea model for the status view.
// It lists batches and shows the selected batch in detail.
type StatusModel struct {
	data     *reader.StatusResponse
	cursor   int
	width    int
	height   int
	quitting bool
}

// NewStatusModel creates a new status model.
func NewStatusModel(data *reader.StatusResponse) StatusModel {
	return StatusModel{data: data}
}

// Init implements tea.Model.
func (m StatusModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.data != nil && m.cursor < len(m.data.Batches)-1 {
				m.cursor++
			}
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatusModel) View() string {
	if m.quitting {
		return ""
	}
	if m.data == nil {
		return "Invalid data type for status"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Ledger Status"))
	b.WriteString("\n\n")

	if len(m.data.Batches) == 0 {
		b.WriteString(LabelStyle.Render("(no batches)"))
	} else {
		b.WriteString(m.renderBatchList())
		b.WriteString("\n\n")
		b.WriteString(m.renderBatch(m.data.Batches[m.cursor]))
	}

	if m.data.Metrics != nil {
		b.WriteString("\n\n")
		b.WriteString(m.renderMetrics(m.data.Metrics))
	}

	help := HelpStyle.Render("↑/↓ select batch • q quit")
	return b.String() + "\n" + help
}

func (m StatusModel) renderBatchList() string {
	var b strings.Builder
	for i, batch := range m.data.Batches {
		prefix := "  "
		style := ValueStyle
		if i == m.cursor {
			prefix = "> "
			style = style.Bold(true).Foreground(highlightColor)
		}
		line := fmt.Sprintf("%s%-8s %-16s %s", prefix, batch.Flow, batch.Scope, batch.BatchID)
		b.WriteString(style.Render(line))
		if i < len(m.data.Batches)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m StatusModel) renderBatch(batch reader.BatchRow) string {
	boxes := []string{
		m.renderStatBox("Completed", batch.Completed, successColor),
		m.renderStatBox("Skipped", batch.Skipped, warningColor),
		m.renderStatBox("Failed", batch.Failed, errorColor),
	}

	var b strings.Builder
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s", LabelStyle.Render("Day:"), ValueStyle.Render(batch.Day)))
	if batch.LastRunIndex > 0 {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%s %s", LabelStyle.Render("Last Run:"), ValueStyle.Render(fmt.Sprintf("%d", batch.LastRunIndex))))
	}
	if batch.Bytes > 0 {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%s %s", LabelStyle.Render("Bytes:"), ValueStyle.Render(fmt.Sprintf("%d", batch.Bytes))))
	}
	return b.String()
}

func (m StatusModel) renderMetrics(s *reader.MetricsSnapshot) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Latest Metrics (%s %s)", s.Flow, s.BatchID)))
	b.WriteString("\n")
	rows := [][2]string{
		{"Runs:", fmt.Sprintf("%d started, %d completed, %d failed", s.RunsStarted, s.RunsCompleted, s.RunsFailed)},
		{"Fetches:", fmt.Sprintf("%d requested, %d fetched, %d skipped, %d failed", s.FetchRequested, s.FetchSucceeded, s.FetchSkipped, s.FetchFailed)},
		{"Ledger:", fmt.Sprintf("%d ok, %d failed", s.LedgerWriteSuccess, s.LedgerWriteFailure)},
		{"Recorded:", s.Ts},
	}
	for i, r := range rows {
		b.WriteString(fmt.Sprintf("%s %s", LabelStyle.Render(r[0]), ValueStyle.Render(r[1])))
		if i < len(rows)-1 {
			b.WriteString("\n")
		}
	}
	return BoxStyle.Render(b.String())
}

func (m StatusModel) renderStatBox(label string, value int, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

// RunStatusTUI runs the status TUI.
func RunStatusTUI(data any) error {
	resp, ok := data.(*reader.StatusResponse)
	if !ok {
		return fmt.Errorf("invalid data type for status: %T", data)
	}
	return runProgram(NewStatusModel(resp))
}

// RenderStatusStatic renders status data without full TUI (for fallback).
func RenderStatusStatic(data *reader.StatusResponse) string {
	model := NewStatusModel(data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
