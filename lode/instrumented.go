package lode

import (
	"context"
	"time"

	"github.com/pithecene-io/isobar/metrics"
)

// InstrumentedLedger wraps a Ledger and records write metrics.
// Each write increments ledger_write_success or ledger_write_failure.
type InstrumentedLedger struct {
	inner     Ledger
	collector *metrics.Collector
}

// NewInstrumentedLedger wraps a ledger with metrics instrumentation.
func NewInstrumentedLedger(inner Ledger, collector *metrics.Collector) *InstrumentedLedger {
	return &InstrumentedLedger{inner: inner, collector: collector}
}

func (l *InstrumentedLedger) record(err error) error {
	if err != nil {
		l.collector.IncLedgerWriteFailure()
	} else {
		l.collector.IncLedgerWriteSuccess()
	}
	return err
}

// WriteRun delegates to the inner ledger and records success or failure.
func (l *InstrumentedLedger) WriteRun(ctx context.Context, rec RunRecord) error {
	return l.record(l.inner.WriteRun(ctx, rec))
}

// WriteFetch delegates to the inner ledger and records success or failure.
func (l *InstrumentedLedger) WriteFetch(ctx context.Context, rec FetchRecord) error {
	return l.record(l.inner.WriteFetch(ctx, rec))
}

// WriteMetrics delegates to the inner ledger. The snapshot is taken by the
// caller, so this write is not reflected in the snapshot it persists.
func (l *InstrumentedLedger) WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error {
	return l.record(l.inner.WriteMetrics(ctx, snap, completedAt))
}

// Close delegates to the inner ledger.
func (l *InstrumentedLedger) Close() error {
	return l.inner.Close()
}

// Verify InstrumentedLedger implements Ledger.
var _ Ledger = (*InstrumentedLedger)(nil)
