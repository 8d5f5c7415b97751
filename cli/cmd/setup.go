package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	lodelibrary "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/isobar/adapter"
	"github.com/pithecene-io/isobar/adapter/redis"
	"github.com/pithecene-io/isobar/adapter/webhook"
	"github.com/pithecene-io/isobar/cli/config"
	"github.com/pithecene-io/isobar/lode"
	"github.com/pithecene-io/isobar/log"
	"github.com/pithecene-io/isobar/metrics"
	"github.com/pithecene-io/isobar/types"
)

// Exit codes shared by the sequence and fetch commands.
const (
	exitSuccess             = 0
	exitCollaboratorFailure = 1
	exitSetupError          = 2
	exitStorageFailure      = 3
)

// finalizeTimeout bounds metrics and notification writes after a flow ends.
const finalizeTimeout = 30 * time.Second

// loadConfig returns the file config named by --config, or Defaults.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		cfg := config.Defaults()
		return &cfg, nil
	}
	return config.Load(path)
}

// storageFromFlags overlays storage flags on the config file values.
func storageFromFlags(c *cli.Context, st config.StorageConfig) config.StorageConfig {
	if c.IsSet("storage-dataset") {
		st.Dataset = c.String("storage-dataset")
	}
	if c.IsSet("storage-backend") {
		st.Backend = c.String("storage-backend")
	}
	if c.IsSet("storage-path") {
		st.Path = c.String("storage-path")
	}
	if c.IsSet("storage-region") {
		st.Region = c.String("storage-region")
	}
	if c.IsSet("storage-endpoint") {
		st.Endpoint = c.String("storage-endpoint")
	}
	if c.IsSet("storage-s3-path-style") {
		st.S3PathStyle = c.Bool("storage-s3-path-style")
	}
	if st.Dataset == "" {
		st.Dataset = lode.DefaultDataset
	}
	if st.Backend == "" {
		st.Backend = "fs"
	}
	return st
}

// adapterFromFlags overlays adapter flags on the config file values.
func adapterFromFlags(c *cli.Context, ac config.AdapterConfig) config.AdapterConfig {
	if c.IsSet("adapter") {
		ac.Type = c.String("adapter")
	}
	if c.IsSet("adapter-url") {
		ac.URL = c.String("adapter-url")
	}
	if c.IsSet("adapter-channel") {
		ac.Channel = c.String("adapter-channel")
	}
	if c.IsSet("adapter-secret") {
		ac.Secret = c.String("adapter-secret")
	}
	return ac
}

func s3Config(st config.StorageConfig) lode.S3Config {
	bucket, prefix := lode.ParseS3Path(st.Path)
	return lode.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       st.Region,
		Endpoint:     st.Endpoint,
		UsePathStyle: st.S3PathStyle,
	}
}

// buildLedger creates the ledger client for one flow invocation.
// Returns nil when no storage path is configured; the flow then runs
// without a ledger.
func buildLedger(ctx context.Context, st config.StorageConfig, meta types.FlowMeta, startTime time.Time) (*lode.LodeClient, error) {
	if st.Path == "" {
		return nil, nil
	}

	cfg := lode.Config{
		Dataset:        st.Dataset,
		Flow:           string(meta.Flow),
		Scope:          meta.Scope,
		Day:            lode.DeriveDay(startTime),
		BatchID:        meta.BatchID,
		StorageBackend: st.Backend,
	}

	switch st.Backend {
	case "fs":
		return lode.NewLodeClient(cfg, st.Path)
	case "s3":
		return lode.NewLodeS3Client(ctx, cfg, s3Config(st))
	default:
		return nil, fmt.Errorf("unknown storage-backend: %s (must be fs or s3)", st.Backend)
	}
}

// buildReadDataset creates a Lode Dataset for reading.
func buildReadDataset(ctx context.Context, st config.StorageConfig) (lodelibrary.Dataset, error) {
	if st.Path == "" {
		return nil, errors.New("--storage-path (or storage.path in the config file) is required")
	}
	switch st.Backend {
	case "fs":
		return lode.NewReadDatasetFS(st.Dataset, st.Path)
	case "s3":
		return lode.NewReadDatasetS3(ctx, st.Dataset, s3Config(st))
	default:
		return nil, fmt.Errorf("unsupported storage-backend: %s (must be fs or s3)", st.Backend)
	}
}

// buildAdapters creates the configured completion adapters.
func buildAdapters(ac config.AdapterConfig) ([]adapter.Adapter, error) {
	switch ac.Type {
	case "", "none":
		return nil, nil
	case "webhook":
		cfg := webhook.Config{
			URL:     ac.URL,
			Headers: ac.Headers,
			Timeout: ac.Timeout.Duration,
			Retries: webhook.DefaultRetries,
			Secret:  ac.Secret,
		}
		if ac.Retries != nil {
			cfg.Retries = *ac.Retries
		}
		a, err := webhook.New(cfg)
		if err != nil {
			return nil, err
		}
		return []adapter.Adapter{a}, nil
	case "redis":
		cfg := redis.Config{
			URL:             ac.URL,
			Channel:         ac.Channel,
			Timeout:         ac.Timeout.Duration,
			Retries:         redis.DefaultRetries,
			LatestKeyPrefix: ac.LatestKeyPrefix,
			LatestTTL:       ac.LatestTTL.Duration,
		}
		if ac.Retries != nil {
			cfg.Retries = *ac.Retries
		}
		a, err := redis.New(cfg)
		if err != nil {
			return nil, err
		}
		return []adapter.Adapter{a}, nil
	default:
		return nil, fmt.Errorf("unknown adapter: %s (must be webhook or redis)", ac.Type)
	}
}

// finalize writes the metrics snapshot and publishes the completion event.
// ledger may be nil.
// A metrics write failure upgrades a successful outcome to storage_failure;
// notification failures are logged only.
func finalize(
	ledger lode.Ledger,
	collector *metrics.Collector,
	adapters []adapter.Adapter,
	event *adapter.CompletedEvent,
	logger *log.Logger,
	status types.OutcomeStatus,
) types.OutcomeStatus {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if ledger != nil {
		if err := ledger.WriteMetrics(ctx, collector.Snapshot(), time.Now()); err != nil {
			logger.Error("failed to write metrics snapshot", map[string]any{"error": err.Error()})
			if status == types.OutcomeSuccess {
				status = types.OutcomeStorageFailure
				event.Message = err.Error()
			}
		}
	}

	event.Outcome = string(status)
	if len(adapters) > 0 {
		if err := adapter.PublishAll(ctx, event, adapters...); err != nil {
			logger.Warn("completion notification failed", map[string]any{"error": err.Error()})
		}
	}
	return status
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

func outcomeToExitCode(status types.OutcomeStatus) int {
	switch status {
	case types.OutcomeSuccess:
		return exitSuccess
	case types.OutcomeCollaboratorFailure, types.OutcomeCanceled:
		return exitCollaboratorFailure
	case types.OutcomeSetupError:
		return exitSetupError
	case types.OutcomeStorageFailure:
		return exitStorageFailure
	default:
		return exitCollaboratorFailure
	}
}

// setupExit reports a configuration error with the setup exit code.
func setupExit(format string, args ...any) error {
	return cli.Exit(fmt.Sprintf(format, args...), exitSetupError)
}
