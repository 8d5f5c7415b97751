// Package reader provides read-only ledger access for the status command.
package reader

import (
	"context"
	"errors"

	lodelib "github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/isobar/lode"
)

// Reader abstracts read-only ledger access for CLI commands.
type Reader interface {
	// Batches summarizes every batch matching f, in ledger order.
	Batches(ctx context.Context, f lode.Filter) ([]BatchRow, error)
	// Records lists run and fetch records matching f.
	Records(ctx context.Context, f lode.Filter) ([]RecordRow, error)
	// LatestMetrics returns the newest metrics snapshot matching f,
	// or nil when none has been written.
	LatestMetrics(ctx context.Context, f lode.Filter) (*MetricsSnapshot, error)
}

// LodeReader reads a ledger dataset.
type LodeReader struct {
	ds lodelib.Dataset
}

// NewLodeReader wraps a read dataset.
func NewLodeReader(ds lodelib.Dataset) *LodeReader {
	return &LodeReader{ds: ds}
}

// Batches implements Reader.
func (r *LodeReader) Batches(ctx context.Context, f lode.Filter) ([]BatchRow, error) {
	records, err := lode.QueryRecords(ctx, r.ds, f)
	if err != nil {
		return nil, err
	}
	return lode.SummarizeBatches(records), nil
}

// Records implements Reader.
func (r *LodeReader) Records(ctx context.Context, f lode.Filter) ([]RecordRow, error) {
	records, err := lode.QueryRecords(ctx, r.ds, f)
	if err != nil {
		return nil, err
	}
	rows := make([]RecordRow, 0, len(records))
	for _, rec := range records {
		if row, ok := ParseRecordRow(rec); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// LatestMetrics implements Reader.
func (r *LodeReader) LatestMetrics(ctx context.Context, f lode.Filter) (*MetricsSnapshot, error) {
	record, err := lode.QueryLatestMetrics(ctx, r.ds, f)
	if errors.Is(err, lode.ErrNoMetricsFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ParseMetricsRecord(record)
}

// Verify LodeReader implements Reader.
var _ Reader = (*LodeReader)(nil)
