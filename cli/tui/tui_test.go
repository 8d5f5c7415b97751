package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/isobar/cli/reader"
)

func TestIsTUISupported(t *testing.T) {
	tests := []struct {
		viewType string
		want     bool
	}{
		{"status", true},

		// Not supported: output-only commands
		{"plan", false},
		{"version", false},
		{"sequence", false},
		{"fetch", false},

		{"unknown", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.viewType, func(t *testing.T) {
			got := IsTUISupported(tt.viewType)
			if got != tt.want {
				t.Errorf("IsTUISupported(%q) = %v, want %v", tt.viewType, got, tt.want)
			}
		})
	}
}

func TestSupportedTUIViews(t *testing.T) {
	views := SupportedTUIViews()
	if len(views) != 1 {
		t.Errorf("SupportedTUIViews() returned %d views, expected 1", len(views))
	}
	for _, v := range views {
		if !IsTUISupported(v) {
			t.Errorf("SupportedTUIViews() returned %q but IsTUISupported returns false", v)
		}
	}
}

func TestRun_UnsupportedViewType(t *testing.T) {
	if err := Run("plan", nil); err == nil {
		t.Error("Expected error for unsupported view type")
	}
}

func TestRunStatusTUI_InvalidData(t *testing.T) {
	if err := RunStatusTUI("not a status"); err == nil {
		t.Error("Expected error for invalid data type")
	}
}

func sampleStatus() *reader.StatusResponse {
	return &reader.StatusResponse{
		Batches: []reader.BatchRow{
			{Flow: "sequence", Scope: "held_suarez", BatchID: "b-1", Day: "2026-10-01", Completed: 3, Failed: 1, LastRunIndex: 3},
			{Flow: "fetch", Scope: "era5", BatchID: "b-2", Day: "2026-10-02", Completed: 80, Skipped: 2, Bytes: 4096},
		},
		Metrics: &reader.MetricsSnapshot{
			Ts:             "2026-10-02T00:00:00Z",
			Flow:           "fetch",
			BatchID:        "b-2",
			FetchRequested: 82,
			FetchSucceeded: 80,
			FetchSkipped:   2,
		},
	}
}

func TestStatusModel_Navigation(t *testing.T) {
	m := NewStatusModel(sampleStatus())

	down := tea.KeyMsg{Type: tea.KeyDown}
	up := tea.KeyMsg{Type: tea.KeyUp}

	next, _ := m.Update(down)
	m = next.(StatusModel)
	if m.cursor != 1 {
		t.Fatalf("cursor = %d after down, want 1", m.cursor)
	}

	// Clamped at the last batch.
	next, _ = m.Update(down)
	m = next.(StatusModel)
	if m.cursor != 1 {
		t.Errorf("cursor = %d after second down, want 1", m.cursor)
	}

	next, _ = m.Update(up)
	m = next.(StatusModel)
	next, _ = m.Update(up)
	m = next.(StatusModel)
	if m.cursor != 0 {
		t.Errorf("cursor = %d after up, want 0", m.cursor)
	}
}

func TestStatusModel_Quit(t *testing.T) {
	m := NewStatusModel(sampleStatus())
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if v := next.(StatusModel).View(); v != "" {
		t.Errorf("View() after quit = %q, want empty", v)
	}
}

func TestRenderStatusStatic(t *testing.T) {
	out := RenderStatusStatic(sampleStatus())
	for _, want := range []string{"Ledger Status", "held_suarez", "era5", "Latest Metrics"} {
		if !strings.Contains(out, want) {
			t.Errorf("static render missing %q", want)
		}
	}
}

func TestRenderStatusStatic_Empty(t *testing.T) {
	out := RenderStatusStatic(&reader.StatusResponse{})
	if !strings.Contains(out, "no batches") {
		t.Errorf("static render of empty status missing placeholder: %q", out)
	}
}
