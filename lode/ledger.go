// Package lode persists the isobar run and fetch ledger to Lode storage.
//
// Every run attempt, every fetch result and a final metrics snapshot are
// written as JSONL records under a Hive layout partitioned by
// flow/scope/day/batch_id/record_kind. Fetched data files can additionally
// be mirrored into the same store under a files/ prefix.
package lode

import (
	"context"
	"errors"
	"time"

	"github.com/pithecene-io/isobar/metrics"
)

// DefaultDataset is the Lode dataset ID used by isobar.
const DefaultDataset = "isobar"

// PartitionKeys is the Hive layout shared by the write and read paths.
var PartitionKeys = []string{"flow", "scope", "day", "batch_id", "record_kind"}

// DeriveDay computes the partition day from a flow start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// Config holds ledger partition configuration.
type Config struct {
	// Dataset is the Lode dataset ID.
	Dataset string
	// Flow is "sequence" or "fetch".
	Flow string
	// Scope is the experiment name or archive tag.
	Scope string
	// Day is derived from the flow start time (YYYY-MM-DD UTC).
	Day string
	// BatchID identifies one invocation of a flow.
	BatchID string
	// StorageBackend names the backend ("fs" or "s3") for metrics dimensions.
	StorageBackend string
}

// Validate checks that every partition key is set.
func (c Config) Validate() error {
	switch {
	case c.Dataset == "":
		return errors.New("dataset is required")
	case c.Flow == "":
		return errors.New("flow is required")
	case c.Scope == "":
		return errors.New("scope is required")
	case c.Day == "":
		return errors.New("day is required")
	case c.BatchID == "":
		return errors.New("batch_id is required")
	}
	return nil
}

// Ledger records flow progress.
type Ledger interface {
	// WriteRun records one run attempt of the sequencer.
	WriteRun(ctx context.Context, rec RunRecord) error
	// WriteFetch records the result of one fetch request.
	WriteFetch(ctx context.Context, rec FetchRecord) error
	// WriteMetrics records the final metrics snapshot of a flow.
	WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error
	// Close releases ledger resources.
	Close() error
}
