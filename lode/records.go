package lode

import (
	"time"

	"github.com/pithecene-io/isobar/metrics"
	"github.com/pithecene-io/isobar/types"
)

// RecordKind discriminator values. Each kind lands in its own partition.
const (
	RecordKindRun     = "run"
	RecordKindFetch   = "fetch"
	RecordKindMetrics = "metrics"
)

// Run record status values.
const (
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Fetch record status values.
const (
	FetchStatusFetched = "fetched"
	FetchStatusSkipped = "skipped"
	FetchStatusFailed  = "failed"
)

// RunRecord describes one executor invocation.
type RunRecord struct {
	RunIndex   int
	UseRestart bool
	Cores      int
	Resolution string
	Status     string
	ExitCode   int
	Error      string
	StartedAt  time.Time
	Duration   time.Duration
}

// FetchRecord describes one fetch request outcome.
type FetchRecord struct {
	Dataset     string
	Tag         string
	Year        int
	Destination string
	Status      string
	Bytes       int64
	Attempts    int
	Variables   []string
	Error       string
	Duration    time.Duration
}

func (c Config) partition(kind string) map[string]any {
	return map[string]any{
		"record_kind":      kind,
		"contract_version": types.ContractVersion,
		"flow":             c.Flow,
		"scope":            c.Scope,
		"day":              c.Day,
		"batch_id":         c.BatchID,
	}
}

func toRunRecordMap(rec RunRecord, cfg Config) map[string]any {
	m := cfg.partition(RecordKindRun)
	m["run_index"] = rec.RunIndex
	m["use_restart"] = rec.UseRestart
	m["cores"] = rec.Cores
	m["resolution"] = rec.Resolution
	m["status"] = rec.Status
	m["exit_code"] = rec.ExitCode
	m["started_at"] = rec.StartedAt.UTC().Format(time.RFC3339Nano)
	m["duration_ms"] = rec.Duration.Milliseconds()
	if rec.Error != "" {
		m["error"] = rec.Error
	}
	return m
}

func toFetchRecordMap(rec FetchRecord, cfg Config) map[string]any {
	m := cfg.partition(RecordKindFetch)
	m["dataset"] = rec.Dataset
	m["tag"] = rec.Tag
	m["year"] = rec.Year
	m["destination"] = rec.Destination
	m["status"] = rec.Status
	m["bytes"] = rec.Bytes
	m["attempts"] = rec.Attempts
	m["duration_ms"] = rec.Duration.Milliseconds()
	if len(rec.Variables) > 0 {
		m["variables"] = rec.Variables
	}
	if rec.Error != "" {
		m["error"] = rec.Error
	}
	return m
}

func toMetricsRecordMap(snap metrics.Snapshot, completedAt time.Time, cfg Config) map[string]any {
	m := cfg.partition(RecordKindMetrics)
	m["ts"] = completedAt.UTC().Format(time.RFC3339Nano)
	m["storage_backend"] = snap.StorageBackend

	m["runs_started_total"] = snap.RunsStarted
	m["runs_completed_total"] = snap.RunsCompleted
	m["runs_failed_total"] = snap.RunsFailed
	m["executor_launch_success_total"] = snap.ExecutorLaunchSuccess
	m["executor_launch_failure_total"] = snap.ExecutorLaunchFailure

	m["fetch_requested_total"] = snap.FetchRequested
	m["fetch_succeeded_total"] = snap.FetchSucceeded
	m["fetch_skipped_total"] = snap.FetchSkipped
	m["fetch_failed_total"] = snap.FetchFailed
	m["fetch_retried_total"] = snap.FetchRetried
	m["bytes_fetched_total"] = snap.BytesFetched

	m["ledger_write_success_total"] = snap.LedgerWriteSuccess
	m["ledger_write_failure_total"] = snap.LedgerWriteFailure
	return m
}
