package reader

import "github.com/pithecene-io/isobar/lode"

// BatchRow is one line of the batch listing.
type BatchRow = lode.BatchSummary

// RecordRow flattens a run or fetch record for listing.
type RecordRow struct {
	Kind    string `json:"kind"`
	BatchID string `json:"batch_id"`
	// Unit is the run index (sequence) or destination file (fetch).
	Unit       string `json:"unit"`
	Status     string `json:"status"`
	Bytes      int64  `json:"bytes,omitempty"`
	Attempts   int64  `json:"attempts,omitempty"`
	ExitCode   int64  `json:"exit_code,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// MetricsSnapshot is the decoded metrics record of one flow invocation.
type MetricsSnapshot struct {
	Ts string `json:"ts"`

	// Sequencer
	RunsStarted           int64 `json:"runs_started"`
	RunsCompleted         int64 `json:"runs_completed"`
	RunsFailed            int64 `json:"runs_failed"`
	ExecutorLaunchSuccess int64 `json:"executor_launch_success"`
	ExecutorLaunchFailure int64 `json:"executor_launch_failure"`

	// Fetcher
	FetchRequested int64 `json:"fetch_requested"`
	FetchSucceeded int64 `json:"fetch_succeeded"`
	FetchSkipped   int64 `json:"fetch_skipped"`
	FetchFailed    int64 `json:"fetch_failed"`
	FetchRetried   int64 `json:"fetch_retried"`
	BytesFetched   int64 `json:"bytes_fetched"`

	// Ledger
	LedgerWriteSuccess int64 `json:"ledger_write_success"`
	LedgerWriteFailure int64 `json:"ledger_write_failure"`

	// Dimensions
	Flow           string `json:"flow"`
	Scope          string `json:"scope"`
	BatchID        string `json:"batch_id"`
	StorageBackend string `json:"storage_backend"`
}

// StatusResponse is the payload of the status command.
type StatusResponse struct {
	Batches []BatchRow       `json:"batches"`
	Metrics *MetricsSnapshot `json:"metrics,omitempty"`
}
