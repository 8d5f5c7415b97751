package reader

import (
	"context"

	"github.com/pithecene-io/isobar/lode"
)

// StubReader serves fixed data for testing.
type StubReader struct {
	BatchRows  []BatchRow
	RecordRows []RecordRow
	Metrics    *MetricsSnapshot
	Err        error
}

// NewStubReader creates an empty stub reader.
func NewStubReader() *StubReader {
	return &StubReader{}
}

// Batches implements Reader. The filter is applied to Flow, Scope and BatchID.
func (r *StubReader) Batches(_ context.Context, f lode.Filter) ([]BatchRow, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	var out []BatchRow
	for _, b := range r.BatchRows {
		if (f.Flow == "" || b.Flow == f.Flow) &&
			(f.Scope == "" || b.Scope == f.Scope) &&
			(f.BatchID == "" || b.BatchID == f.BatchID) {
			out = append(out, b)
		}
	}
	return out, nil
}

// Records implements Reader. The filter is applied to BatchID and RecordKind.
func (r *StubReader) Records(_ context.Context, f lode.Filter) ([]RecordRow, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	var out []RecordRow
	for _, row := range r.RecordRows {
		if (f.BatchID == "" || row.BatchID == f.BatchID) &&
			(f.RecordKind == "" || row.Kind == f.RecordKind) {
			out = append(out, row)
		}
	}
	return out, nil
}

// LatestMetrics implements Reader.
func (r *StubReader) LatestMetrics(_ context.Context, _ lode.Filter) (*MetricsSnapshot, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Metrics, nil
}

// Verify StubReader implements Reader.
var _ Reader = (*StubReader)(nil)
