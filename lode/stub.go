package lode

import (
	"context"
	"sync"
	"time"

	"github.com/pithecene-io/isobar/metrics"
)

// StubLedger records writes in memory for testing.
type StubLedger struct {
	mu      sync.Mutex
	Runs    []RunRecord
	Fetches []FetchRecord
	Metrics []metrics.Snapshot
	// Err, when set, is returned from every write.
	Err    error
	Closed bool
}

// NewStubLedger creates an empty stub ledger.
func NewStubLedger() *StubLedger {
	return &StubLedger{}
}

// WriteRun implements Ledger.
func (s *StubLedger) WriteRun(_ context.Context, rec RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Runs = append(s.Runs, rec)
	return nil
}

// WriteFetch implements Ledger.
func (s *StubLedger) WriteFetch(_ context.Context, rec FetchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Fetches = append(s.Fetches, rec)
	return nil
}

// WriteMetrics implements Ledger.
func (s *StubLedger) WriteMetrics(_ context.Context, snap metrics.Snapshot, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Metrics = append(s.Metrics, snap)
	return nil
}

// Close implements Ledger.
func (s *StubLedger) Close() error {
	s.mu.Lock()
	s.Closed = true
	s.mu.Unlock()
	return nil
}

// FetchesSnapshot returns a copy of the recorded fetch records.
func (s *StubLedger) FetchesSnapshot() []FetchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FetchRecord(nil), s.Fetches...)
}

// Verify StubLedger implements Ledger.
var _ Ledger = (*StubLedger)(nil)
