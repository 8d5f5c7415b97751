package lode

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/justapithecus/lode/lode"
)

// ErrNoMetricsFound is returned when no metrics records exist in the dataset.
var ErrNoMetricsFound = errors.New("no metrics records found")

// Filter narrows ledger queries. Empty fields match everything.
type Filter struct {
	Flow       string
	Scope      string
	BatchID    string
	RecordKind string
}

func (f Filter) matchesSnapshot(snap *lode.DatasetSnapshot) bool {
	return snapshotMatchesFilter(snap, "flow", f.Flow) &&
		snapshotMatchesFilter(snap, "scope", f.Scope) &&
		snapshotMatchesFilter(snap, "batch_id", f.BatchID) &&
		snapshotMatchesFilter(snap, "record_kind", f.RecordKind)
}

// Manifest path filtering is a coarse pre-filter; record fields are authoritative.
func (f Filter) matchesRecord(record map[string]any) bool {
	for key, want := range map[string]string{
		"flow":        f.Flow,
		"scope":       f.Scope,
		"batch_id":    f.BatchID,
		"record_kind": f.RecordKind,
	} {
		if want != "" && toString(record[key]) != want {
			return false
		}
	}
	return true
}

// QueryRecords returns every record matching the filter, oldest snapshot first.
func QueryRecords(ctx context.Context, ds lode.Dataset, f Filter) ([]map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "isobar/snapshots")
	}

	var out []map[string]any
	for _, snap := range snapshots {
		if !f.matchesSnapshot(snap) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("isobar/snapshot/%s", snap.ID))
		}
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || !f.matchesRecord(record) {
				continue
			}
			out = append(out, record)
		}
	}
	return out, nil
}

// QueryLatestMetrics finds the most recent metrics record matching the filter.
// The filter's RecordKind is ignored.
func QueryLatestMetrics(ctx context.Context, ds lode.Dataset, f Filter) (map[string]any, error) {
	f.RecordKind = RecordKindMetrics
	records, err := QueryRecords(ctx, ds, f)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoMetricsFound
	}

	// Snapshot order follows creation time; ts breaks ties within a snapshot.
	sort.SliceStable(records, func(i, j int) bool {
		return toString(records[i]["ts"]) < toString(records[j]["ts"])
	})
	return records[len(records)-1], nil
}

// BatchSummary aggregates the ledger records of one batch.
type BatchSummary struct {
	Flow      string `json:"flow"`
	Scope     string `json:"scope"`
	BatchID   string `json:"batch_id"`
	Day       string `json:"day"`
	Completed int    `json:"completed"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	// LastRunIndex is the highest completed run index (sequence flow only).
	LastRunIndex int   `json:"last_run_index,omitempty"`
	Bytes        int64 `json:"bytes,omitempty"`
}

// SummarizeBatches groups run and fetch records by batch, in first-seen order.
func SummarizeBatches(records []map[string]any) []BatchSummary {
	var order []string
	byBatch := make(map[string]*BatchSummary)

	for _, r := range records {
		kind := toString(r["record_kind"])
		if kind != RecordKindRun && kind != RecordKindFetch {
			continue
		}
		id := toString(r["batch_id"])
		s, ok := byBatch[id]
		if !ok {
			s = &BatchSummary{
				Flow:    toString(r["flow"]),
				Scope:   toString(r["scope"]),
				BatchID: id,
				Day:     toString(r["day"]),
			}
			byBatch[id] = s
			order = append(order, id)
		}

		switch toString(r["status"]) {
		case RunStatusCompleted, FetchStatusFetched:
			s.Completed++
			if kind == RecordKindRun {
				s.LastRunIndex = max(s.LastRunIndex, int(toInt64(r["run_index"])))
			}
			s.Bytes += toInt64(r["bytes"])
		case FetchStatusSkipped:
			s.Skipped++
		case RunStatusFailed:
			s.Failed++
		}
	}

	out := make([]BatchSummary, 0, len(order))
	for _, id := range order {
		out = append(out, *byBatch[id])
	}
	return out
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toInt64 converts a decoded JSON number to int64.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
