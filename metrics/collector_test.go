package metrics

import (
	"sync"
	"testing"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("sequence", "IscaZonal", "fs", "batch-001")

	c.IncRunStarted()
	c.IncRunStarted()
	c.IncRunCompleted()
	c.IncRunFailed()
	c.IncExecutorLaunchSuccess()
	c.IncExecutorLaunchFailure()
	c.IncExecutorLaunchFailure()
	c.IncFetchRequested()
	c.IncFetchRequested()
	c.IncFetchRequested()
	c.IncFetchSucceeded(100)
	c.IncFetchSucceeded(250)
	c.IncFetchSkipped()
	c.IncFetchFailed()
	c.IncFetchRetried()
	c.IncFetchRetried()
	c.IncLedgerWriteSuccess()
	c.IncLedgerWriteFailure()

	s := c.Snapshot()

	tests := []struct {
		name string
		got  int64
		want int64
	}{
		{"RunsStarted", s.RunsStarted, 2},
		{"RunsCompleted", s.RunsCompleted, 1},
		{"RunsFailed", s.RunsFailed, 1},
		{"ExecutorLaunchSuccess", s.ExecutorLaunchSuccess, 1},
		{"ExecutorLaunchFailure", s.ExecutorLaunchFailure, 2},
		{"FetchRequested", s.FetchRequested, 3},
		{"FetchSucceeded", s.FetchSucceeded, 2},
		{"BytesFetched", s.BytesFetched, 350},
		{"FetchSkipped", s.FetchSkipped, 1},
		{"FetchFailed", s.FetchFailed, 1},
		{"FetchRetried", s.FetchRetried, 2},
		{"LedgerWriteSuccess", s.LedgerWriteSuccess, 1},
		{"LedgerWriteFailure", s.LedgerWriteFailure, 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

func TestCollector_Dimensions(t *testing.T) {
	s := NewCollector("fetch", "era5", "s3", "batch-7").Snapshot()

	if s.Flow != "fetch" {
		t.Errorf("Flow = %q, want %q", s.Flow, "fetch")
	}
	if s.Scope != "era5" {
		t.Errorf("Scope = %q, want %q", s.Scope, "era5")
	}
	if s.StorageBackend != "s3" {
		t.Errorf("StorageBackend = %q, want %q", s.StorageBackend, "s3")
	}
	if s.BatchID != "batch-7" {
		t.Errorf("BatchID = %q, want %q", s.BatchID, "batch-7")
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector

	c.IncRunStarted()
	c.IncRunCompleted()
	c.IncRunFailed()
	c.IncExecutorLaunchSuccess()
	c.IncExecutorLaunchFailure()
	c.IncFetchRequested()
	c.IncFetchSucceeded(10)
	c.IncFetchSkipped()
	c.IncFetchFailed()
	c.IncFetchRetried()
	c.IncLedgerWriteSuccess()
	c.IncLedgerWriteFailure()

	if s := c.Snapshot(); s != (Snapshot{}) {
		t.Errorf("nil Snapshot() = %+v, want zero", s)
	}
}

func TestCollector_SnapshotIsolation(t *testing.T) {
	c := NewCollector("sequence", "exp", "fs", "")
	c.IncRunStarted()

	s1 := c.Snapshot()
	c.IncRunStarted()
	s2 := c.Snapshot()

	if s1.RunsStarted != 1 {
		t.Errorf("s1.RunsStarted = %d, want 1", s1.RunsStarted)
	}
	if s2.RunsStarted != 2 {
		t.Errorf("s2.RunsStarted = %d, want 2", s2.RunsStarted)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector("fetch", "era5", "fs", "")

	const workers = 8
	const perWorker = 100

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				c.IncFetchRequested()
				c.IncFetchSucceeded(1)
				_ = c.Snapshot()
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	if s.FetchRequested != workers*perWorker {
		t.Errorf("FetchRequested = %d, want %d", s.FetchRequested, workers*perWorker)
	}
	if s.BytesFetched != workers*perWorker {
		t.Errorf("BytesFetched = %d, want %d", s.BytesFetched, workers*perWorker)
	}
}
