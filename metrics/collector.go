// Package metrics provides per-flow metrics collection.
//
// The Collector accumulates counters during a single sequence or fetch
// batch. It is a leaf package with no internal dependencies; the final
// Snapshot is persisted to the ledger when the flow completes.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all collected metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Run sequencer
	RunsStarted   int64 `json:"runs_started"`
	RunsCompleted int64 `json:"runs_completed"`
	RunsFailed    int64 `json:"runs_failed"`

	// Model executor
	ExecutorLaunchSuccess int64 `json:"executor_launch_success"`
	ExecutorLaunchFailure int64 `json:"executor_launch_failure"`

	// Batch fetcher
	FetchRequested int64 `json:"fetch_requested"`
	FetchSucceeded int64 `json:"fetch_succeeded"`
	FetchSkipped   int64 `json:"fetch_skipped"`
	FetchFailed    int64 `json:"fetch_failed"`
	FetchRetried   int64 `json:"fetch_retried"`
	BytesFetched   int64 `json:"bytes_fetched"`

	// Ledger / storage
	LedgerWriteSuccess int64 `json:"ledger_write_success"`
	LedgerWriteFailure int64 `json:"ledger_write_failure"`

	// Dimensions (informational, set at construction)
	Flow           string `json:"flow"`
	Scope          string `json:"scope"`
	StorageBackend string `json:"storage_backend"`
	BatchID        string `json:"batch_id"`
}

// Collector accumulates metrics during a single flow.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(flow, scope, storageBackend, batchID string) *Collector {
	return &Collector{s: Snapshot{
		Flow:           flow,
		Scope:          scope,
		StorageBackend: storageBackend,
		BatchID:        batchID,
	}}
}

func (c *Collector) add(field func(*Snapshot) *int64, n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	*field(&c.s) += n
	c.mu.Unlock()
}

// --- Run sequencer ---

// IncRunStarted records a run start.
func (c *Collector) IncRunStarted() {
	c.add(func(s *Snapshot) *int64 { return &s.RunsStarted }, 1)
}

// IncRunCompleted records a successful run.
func (c *Collector) IncRunCompleted() {
	c.add(func(s *Snapshot) *int64 { return &s.RunsCompleted }, 1)
}

// IncRunFailed records a run the executor reported as failed.
func (c *Collector) IncRunFailed() {
	c.add(func(s *Snapshot) *int64 { return &s.RunsFailed }, 1)
}

// --- Model executor ---

// IncExecutorLaunchSuccess records a model process that started.
func (c *Collector) IncExecutorLaunchSuccess() {
	c.add(func(s *Snapshot) *int64 { return &s.ExecutorLaunchSuccess }, 1)
}

// IncExecutorLaunchFailure records a model process that could not start.
func (c *Collector) IncExecutorLaunchFailure() {
	c.add(func(s *Snapshot) *int64 { return &s.ExecutorLaunchFailure }, 1)
}

// --- Batch fetcher ---

// IncFetchRequested records a planned fetch request.
func (c *Collector) IncFetchRequested() {
	c.add(func(s *Snapshot) *int64 { return &s.FetchRequested }, 1)
}

// IncFetchSucceeded records a retrieved file of n bytes.
func (c *Collector) IncFetchSucceeded(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.s.FetchSucceeded++
	c.s.BytesFetched += n
	c.mu.Unlock()
}

// IncFetchSkipped records a request whose destination already existed.
func (c *Collector) IncFetchSkipped() {
	c.add(func(s *Snapshot) *int64 { return &s.FetchSkipped }, 1)
}

// IncFetchFailed records a request that failed after all attempts.
func (c *Collector) IncFetchFailed() {
	c.add(func(s *Snapshot) *int64 { return &s.FetchFailed }, 1)
}

// IncFetchRetried records one retry attempt.
func (c *Collector) IncFetchRetried() {
	c.add(func(s *Snapshot) *int64 { return &s.FetchRetried }, 1)
}

// --- Ledger / storage ---
// Ledger counters are per-call, not per-record.

// IncLedgerWriteSuccess records a successful ledger write.
func (c *Collector) IncLedgerWriteSuccess() {
	c.add(func(s *Snapshot) *int64 { return &s.LedgerWriteSuccess }, 1)
}

// IncLedgerWriteFailure records a failed ledger write.
func (c *Collector) IncLedgerWriteFailure() {
	c.add(func(s *Snapshot) *int64 { return &s.LedgerWriteFailure }, 1)
}

// --- Snapshot ---

// Snapshot returns a point-in-time copy of all metrics.
// The Collector can continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
