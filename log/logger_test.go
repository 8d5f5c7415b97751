package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pithecene-io/isobar/types"
)

func TestLogger_IncludesFlowContext(t *testing.T) {
	var buf bytes.Buffer
	meta := &types.FlowMeta{Flow: types.FlowSequence, Scope: "IscaZonal", BatchID: "batch-1"}
	logger := NewLoggerWithWriter(meta, &buf)

	logger.Info("run completed", map[string]any{"run_index": 3})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v (%q)", err, buf.String())
	}

	if entry["flow"] != "sequence" {
		t.Errorf("flow = %v, want sequence", entry["flow"])
	}
	if entry["scope"] != "IscaZonal" {
		t.Errorf("scope = %v, want IscaZonal", entry["scope"])
	}
	if entry["batch_id"] != "batch-1" {
		t.Errorf("batch_id = %v, want batch-1", entry["batch_id"])
	}
	if entry["message"] != "run completed" {
		t.Errorf("message = %v", entry["message"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok {
		t.Fatalf("fields missing: %v", entry)
	}
	if fields["run_index"] != float64(3) {
		t.Errorf("run_index = %v, want 3", fields["run_index"])
	}
}

func TestLogger_OmitsEmptyBatchID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&types.FlowMeta{Flow: types.FlowFetch, Scope: "era5"}, &buf)
	logger.Warn("retrying", nil)

	if strings.Contains(buf.String(), "batch_id") {
		t.Errorf("batch_id should be omitted when empty: %s", buf.String())
	}
}

func TestLogger_WithOutput(t *testing.T) {
	var first, second bytes.Buffer
	logger := NewLoggerWithWriter(&types.FlowMeta{Flow: types.FlowFetch, Scope: "era5"}, &first)
	redirected := logger.WithOutput(&second)

	redirected.Error("boom", map[string]any{"error": "x"})

	if first.Len() != 0 {
		t.Errorf("original writer should be untouched, got %q", first.String())
	}
	if !strings.Contains(second.String(), `"level":"error"`) {
		t.Errorf("expected error level in redirected output, got %q", second.String())
	}
}
