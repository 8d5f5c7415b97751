package reader

import (
	"errors"
	"strconv"
)

// ParseMetricsRecord converts a ledger record (map[string]any) to a MetricsSnapshot.
// Handles both int64 (direct writes) and float64 (JSON round-trips) for numeric fields.
func ParseMetricsRecord(record map[string]any) (*MetricsSnapshot, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}

	snap := &MetricsSnapshot{
		Ts: toString(record["ts"]),

		RunsStarted:           toInt64(record["runs_started_total"]),
		RunsCompleted:         toInt64(record["runs_completed_total"]),
		RunsFailed:            toInt64(record["runs_failed_total"]),
		ExecutorLaunchSuccess: toInt64(record["executor_launch_success_total"]),
		ExecutorLaunchFailure: toInt64(record["executor_launch_failure_total"]),

		FetchRequested: toInt64(record["fetch_requested_total"]),
		FetchSucceeded: toInt64(record["fetch_succeeded_total"]),
		FetchSkipped:   toInt64(record["fetch_skipped_total"]),
		FetchFailed:    toInt64(record["fetch_failed_total"]),
		FetchRetried:   toInt64(record["fetch_retried_total"]),
		BytesFetched:   toInt64(record["bytes_fetched_total"]),

		LedgerWriteSuccess: toInt64(record["ledger_write_success_total"]),
		LedgerWriteFailure: toInt64(record["ledger_write_failure_total"]),

		Flow:           toString(record["flow"]),
		Scope:          toString(record["scope"]),
		BatchID:        toString(record["batch_id"]),
		StorageBackend: toString(record["storage_backend"]),
	}

	// The write path always populates these; missing values indicate
	// a malformed record.
	switch {
	case snap.Ts == "":
		return nil, errors.New("metrics record missing required field: ts")
	case snap.Flow == "":
		return nil, errors.New("metrics record missing required field: flow")
	case snap.BatchID == "":
		return nil, errors.New("metrics record missing required field: batch_id")
	}

	return snap, nil
}

// ParseRecordRow flattens a run or fetch record. Other kinds return false.
func ParseRecordRow(record map[string]any) (RecordRow, bool) {
	row := RecordRow{
		Kind:       toString(record["record_kind"]),
		BatchID:    toString(record["batch_id"]),
		Status:     toString(record["status"]),
		DurationMs: toInt64(record["duration_ms"]),
		Error:      toString(record["error"]),
	}
	switch row.Kind {
	case "run":
		row.Unit = "run " + strconv.FormatInt(toInt64(record["run_index"]), 10)
		row.ExitCode = toInt64(record["exit_code"])
	case "fetch":
		row.Unit = toString(record["destination"])
		row.Bytes = toInt64(record["bytes"])
		row.Attempts = toInt64(record["attempts"])
	default:
		return RecordRow{}, false
	}
	return row, true
}

// toInt64 converts a value to int64, handling float64 from JSON and int64 from direct writes.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
