package reader

import (
	"strings"
	"testing"
)

func TestParseMetricsRecord(t *testing.T) {
	// Simulate a JSON-round-tripped record (float64 values)
	record := map[string]any{
		"record_kind":                   "metrics",
		"ts":                            "2026-10-16T15:00:00Z",
		"runs_started_total":            float64(20),
		"runs_completed_total":          float64(19),
		"runs_failed_total":             float64(1),
		"executor_launch_success_total": float64(20),
		"executor_launch_failure_total": float64(0),
		"fetch_requested_total":         float64(0),
		"ledger_write_success_total":    float64(21),
		"ledger_write_failure_total":    float64(0),
		"flow":                          "sequence",
		"scope":                         "IscaZonal",
		"batch_id":                      "b-1",
		"storage_backend":               "s3",
	}

	parsed, err := ParseMetricsRecord(record)
	if err != nil {
		t.Fatalf("ParseMetricsRecord failed: %v", err)
	}

	if parsed.Ts != "2026-10-16T15:00:00Z" {
		t.Errorf("Ts = %q, want %q", parsed.Ts, "2026-10-16T15:00:00Z")
	}
	if parsed.RunsStarted != 20 || parsed.RunsCompleted != 19 || parsed.RunsFailed != 1 {
		t.Errorf("runs = %d/%d/%d", parsed.RunsStarted, parsed.RunsCompleted, parsed.RunsFailed)
	}
	if parsed.LedgerWriteSuccess != 21 {
		t.Errorf("LedgerWriteSuccess = %d, want 21", parsed.LedgerWriteSuccess)
	}
	if parsed.Scope != "IscaZonal" || parsed.StorageBackend != "s3" {
		t.Errorf("dimensions = %+v", parsed)
	}
}

func TestParseMetricsRecord_DirectInt64(t *testing.T) {
	record := map[string]any{
		"ts":                    "2026-10-16T15:00:00Z",
		"fetch_requested_total": int64(82),
		"bytes_fetched_total":   int64(1 << 30),
		"flow":                  "fetch",
		"batch_id":              "b-2",
	}
	parsed, err := ParseMetricsRecord(record)
	if err != nil {
		t.Fatalf("ParseMetricsRecord failed: %v", err)
	}
	if parsed.FetchRequested != 82 || parsed.BytesFetched != 1<<30 {
		t.Errorf("fetch = %d/%d", parsed.FetchRequested, parsed.BytesFetched)
	}
}

func TestParseMetricsRecord_MissingRequired(t *testing.T) {
	base := func() map[string]any {
		return map[string]any{"ts": "x", "flow": "fetch", "batch_id": "b"}
	}
	for _, field := range []string{"ts", "flow", "batch_id"} {
		t.Run(field, func(t *testing.T) {
			record := base()
			delete(record, field)
			_, err := ParseMetricsRecord(record)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), field) {
				t.Errorf("error %q should mention %s", err, field)
			}
		})
	}

	if _, err := ParseMetricsRecord(nil); err == nil {
		t.Error("expected error for nil record")
	}
}

func TestParseRecordRow(t *testing.T) {
	run, ok := ParseRecordRow(map[string]any{
		"record_kind": "run",
		"batch_id":    "b-1",
		"run_index":   float64(3),
		"status":      "failed",
		"exit_code":   float64(137),
		"duration_ms": float64(5000),
		"error":       "killed",
	})
	if !ok {
		t.Fatal("run record not parsed")
	}
	if run.Unit != "run 3" || run.ExitCode != 137 || run.Error != "killed" {
		t.Errorf("run row = %+v", run)
	}

	f, ok := ParseRecordRow(map[string]any{
		"record_kind": "fetch",
		"batch_id":    "b-2",
		"destination": "/data/era5-GLBx0.25-b_sfc-1979.nc",
		"status":      "fetched",
		"bytes":       int64(1024),
		"attempts":    2,
	})
	if !ok {
		t.Fatal("fetch record not parsed")
	}
	if f.Unit != "/data/era5-GLBx0.25-b_sfc-1979.nc" || f.Bytes != 1024 || f.Attempts != 2 {
		t.Errorf("fetch row = %+v", f)
	}

	if _, ok := ParseRecordRow(map[string]any{"record_kind": "metrics"}); ok {
		t.Error("metrics record should not parse as a row")
	}
}
