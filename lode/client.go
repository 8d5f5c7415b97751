package lode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/isobar/metrics"
)

// LodeClient is a Lode-backed Ledger.
type LodeClient struct {
	dataset      lode.Dataset
	config       Config
	storeFactory lode.StoreFactory

	// Lazily created store for PutFile.
	storeOnce sync.Once
	store     lode.Store
	storeErr  error

	mu sync.Mutex // serializes dataset writes
}

// NewLodeClient creates a ledger with filesystem storage rooted at root.
func NewLodeClient(cfg Config, root string) (*LodeClient, error) {
	return NewLodeClientWithFactory(cfg, lode.NewFSFactory(root))
}

// NewLodeClientWithFactory creates a ledger with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewLodeClientWithFactory(cfg Config, factory lode.StoreFactory) (*LodeClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ledger config: %w", err)
	}
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return newClient(ds, cfg, factory), nil
}

func newClient(ds lode.Dataset, cfg Config, factory lode.StoreFactory) *LodeClient {
	return &LodeClient{
		dataset:      ds,
		config:       cfg,
		storeFactory: factory,
	}
}

func newDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(PartitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// Config returns the partition configuration.
func (c *LodeClient) Config() Config {
	return c.config
}

func (c *LodeClient) write(ctx context.Context, kind string, record map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.dataset.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		return WrapWriteError(err, fmt.Sprintf("%s/%s/%s", c.config.Dataset, c.config.BatchID, kind))
	}
	return nil
}

// WriteRun records one run attempt.
func (c *LodeClient) WriteRun(ctx context.Context, rec RunRecord) error {
	return c.write(ctx, RecordKindRun, toRunRecordMap(rec, c.config))
}

// WriteFetch records one fetch outcome.
func (c *LodeClient) WriteFetch(ctx context.Context, rec FetchRecord) error {
	return c.write(ctx, RecordKindFetch, toFetchRecordMap(rec, c.config))
}

// WriteMetrics records the final metrics snapshot.
func (c *LodeClient) WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error {
	return c.write(ctx, RecordKindMetrics, toMetricsRecordMap(snap, completedAt, c.config))
}

// Close releases client resources.
func (c *LodeClient) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

// Verify LodeClient implements Ledger.
var _ Ledger = (*LodeClient)(nil)
