package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/isobar/adapter"
	"github.com/pithecene-io/isobar/cds"
	"github.com/pithecene-io/isobar/cli/config"
	"github.com/pithecene-io/isobar/fetch"
	"github.com/pithecene-io/isobar/lode"
	"github.com/pithecene-io/isobar/log"
	"github.com/pithecene-io/isobar/metrics"
	"github.com/pithecene-io/isobar/types"
)

// batchFlags are shared by fetch and plan.
func batchFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{
			Name:  "archive",
			Usage: "Archive prefix of every file name",
		},
		&cli.StringFlag{
			Name:  "data-dir",
			Usage: "Destination directory for fetched files",
		},
		&cli.IntFlag{
			Name:  "start-year",
			Usage: "First year of the batch (inclusive)",
		},
		&cli.IntFlag{
			Name:  "end-year",
			Usage: "Last year of the batch (inclusive)",
		},
	}
}

// FetchCommand returns the fetch command.
// It retrieves every (template, year) request of the batch into the data directory.
func FetchCommand() *cli.Command {
	flags := batchFlags()
	flags = append(flags,
		// Execution flags
		&cli.IntFlag{
			Name:  "parallel",
			Usage: "Maximum concurrent requests",
		},
		&cli.IntFlag{
			Name:  "retries",
			Usage: "Additional attempts per request",
		},
		&cli.DurationFlag{
			Name:  "retry-backoff",
			Usage: "First retry delay, doubled per attempt",
		},
		&cli.BoolFlag{
			Name:  "skip-existing",
			Usage: "Skip requests whose destination already exists",
		},
		&cli.BoolFlag{
			Name:  "continue-on-error",
			Usage: "Keep fetching after a failed request",
		},
		&cli.BoolFlag{
			Name:  "verify",
			Usage: "Check every downloaded file is NetCDF",
		},
		&cli.BoolFlag{
			Name:  "mirror",
			Usage: "Copy fetched files into the ledger storage",
		},
		// Retrieval service flags
		&cli.StringFlag{
			Name:  "cds-url",
			Usage: "Retrieval service API URL (default: CDSAPI_URL or ~/.cdsapirc)",
		},
		&cli.StringFlag{
			Name:  "cds-key",
			Usage: "Retrieval service access token, or uid:secret for the legacy API (default: CDSAPI_KEY or ~/.cdsapirc)",
		},
		&cli.StringFlag{
			Name:  "batch-id",
			Usage: "Batch ID for logs and the ledger (default: random UUID)",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Suppress result output",
		},
	)
	flags = append(flags, StorageFlags()...)
	flags = append(flags, AdapterFlags()...)

	return &cli.Command{
		Name:   "fetch",
		Usage:  "Retrieve the monthly-mean reanalysis batch",
		Flags:  flags,
		Action: fetchAction,
	}
}

// fetchFromFlags overlays batch flags on the config file values.
func fetchFromFlags(c *cli.Context, fc config.FetchConfig) config.FetchConfig {
	if c.IsSet("archive") {
		fc.Archive = c.String("archive")
	}
	if c.IsSet("data-dir") {
		fc.DataDir = c.String("data-dir")
	}
	if c.IsSet("start-year") {
		fc.StartYear = c.Int("start-year")
	}
	if c.IsSet("end-year") {
		fc.EndYear = c.Int("end-year")
	}
	if c.IsSet("parallel") {
		fc.Parallel = c.Int("parallel")
	}
	if c.IsSet("retries") {
		fc.Retries = c.Int("retries")
	}
	if c.IsSet("retry-backoff") {
		fc.RetryBackoff = config.Duration{Duration: c.Duration("retry-backoff")}
	}
	if c.IsSet("skip-existing") {
		fc.SkipExisting = c.Bool("skip-existing")
	}
	if c.IsSet("continue-on-error") {
		fc.ContinueOnError = c.Bool("continue-on-error")
	}
	if c.IsSet("verify") {
		fc.Verify = c.Bool("verify")
	}
	if c.IsSet("mirror") {
		fc.Mirror = c.Bool("mirror")
	}
	if c.IsSet("cds-url") {
		fc.CDS.URL = c.String("cds-url")
	}
	if c.IsSet("cds-key") {
		fc.CDS.Key = c.String("cds-key")
	}
	return fc
}

// naming returns the destination naming of the batch.
func naming(fc config.FetchConfig) (fetch.Naming, error) {
	if fc.DataDir == "" {
		return fetch.Naming{}, errors.New("--data-dir (or fetch.data_dir in the config file) is required")
	}
	if fc.Archive == "" {
		return fetch.Naming{}, errors.New("archive must not be empty")
	}
	return fetch.Naming{DataDir: fc.DataDir, Archive: fc.Archive}, nil
}

// cdsCredentials resolves service credentials. Explicit values win over
// the environment and the rc file; an explicit key with no URL anywhere
// targets cds.DefaultURL.
func cdsCredentials(cc config.CDSConfig) (cds.Credentials, error) {
	if cc.URL != "" && cc.Key != "" {
		creds := cds.Credentials{URL: cc.URL, Key: cc.Key}
		return creds, creds.Validate()
	}
	creds, err := cds.LoadCredentials()
	if cc.Key != "" {
		creds.Key = cc.Key
		if creds.URL == "" {
			creds.URL = cds.DefaultURL
		}
		return creds, creds.Validate()
	}
	if err != nil {
		return cds.Credentials{}, err
	}
	if cc.URL != "" {
		creds.URL = cc.URL
	}
	return creds, nil
}

func fetchAction(c *cli.Context) error {
	fileCfg, err := loadConfig(c)
	if err != nil {
		return setupExit("%v", err)
	}
	fc := fetchFromFlags(c, fileCfg.Fetch)
	st := storageFromFlags(c, fileCfg.Storage)

	names, err := naming(fc)
	if err != nil {
		return setupExit("invalid fetch config: %v", err)
	}
	if fc.Mirror && st.Path == "" {
		return setupExit("--mirror requires --storage-path")
	}

	creds, err := cdsCredentials(fc.CDS)
	if err != nil {
		return setupExit("retrieval credentials: %v", err)
	}

	adapters, err := buildAdapters(adapterFromFlags(c, fileCfg.Adapter))
	if err != nil {
		return setupExit("invalid adapter config: %v", err)
	}

	batchID := c.String("batch-id")
	if batchID == "" {
		batchID = uuid.NewString()
	}
	meta := types.FlowMeta{Flow: types.FlowFetch, Scope: fc.Archive, BatchID: batchID}
	logger := log.NewLogger(&meta)
	defer logger.Sync()
	collector := metrics.NewCollector(string(meta.Flow), meta.Scope, st.Backend, meta.BatchID)

	client, err := cds.New(cds.Config{
		Credentials:     creds,
		Timeout:         fc.CDS.Timeout.Duration,
		PollInterval:    fc.CDS.PollInterval.Duration,
		MaxPollInterval: fc.CDS.MaxPollInterval.Duration,
		Logger:          logger,
	})
	if err != nil {
		return setupExit("invalid retrieval config: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	startTime := time.Now()
	lodeClient, err := buildLedger(ctx, st, meta, startTime)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to initialize ledger: %v", err), exitStorageFailure)
	}

	fetchCfg := fetch.Config{
		BatchID:         batchID,
		Templates:       fc.Templates,
		StartYear:       fc.StartYear,
		EndYear:         fc.EndYear,
		Naming:          names,
		Parallel:        fc.Parallel,
		Retries:         fc.Retries,
		RetryBackoff:    fc.RetryBackoff.Duration,
		SkipExisting:    fc.SkipExisting,
		ContinueOnError: fc.ContinueOnError,
		Verify:          fc.Verify,
		Logger:          logger,
		Collector:       collector,
	}
	var ledger lode.Ledger
	if lodeClient != nil {
		ledger = lodeClient
		fetchCfg.Ledger = lode.NewInstrumentedLedger(lodeClient, collector)
		if fc.Mirror {
			fetchCfg.Mirror = lodeClient
		}
	}

	fetcher, err := fetch.New(fetchCfg, client)
	if err != nil {
		return setupExit("invalid fetch config: %v", err)
	}

	result, fetchErr := fetcher.FetchAll(ctx)
	if fetchErr != nil {
		logger.Error("batch halted", map[string]any{"error": fetchErr.Error()})
	}

	event := &adapter.CompletedEvent{
		ContractVersion: types.ContractVersion,
		EventType:       adapter.EventBatchCompleted,
		Flow:            string(meta.Flow),
		Scope:           meta.Scope,
		BatchID:         meta.BatchID,
		Day:             lode.DeriveDay(startTime),
		Message:         result.Outcome.Message,
		StoragePath:     st.Path,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		Completed:       result.Fetched,
		Skipped:         result.Skipped,
		Failed:          result.Failed,
		DurationMs:      result.Duration.Milliseconds(),
	}
	result.Outcome.Status = finalize(ledger, collector, adapters, event, logger, result.Outcome.Status)

	if !c.Bool("quiet") {
		printFetchResult(result, names)
	}

	return cli.Exit("", outcomeToExitCode(result.Outcome.Status))
}

func printFetchResult(result *fetch.BatchResult, names fetch.Naming) {
	fmt.Printf("\nbatch_id=%s, outcome=%s, duration=%s\n",
		result.BatchID,
		result.Outcome.Status,
		result.Duration.Round(time.Millisecond),
	)

	fmt.Printf("\n=== Batch Result ===\n")
	fmt.Printf("Archive:      %s\n", names.Archive)
	fmt.Printf("Data Dir:     %s\n", names.DataDir)
	fmt.Printf("Requests:     %d\n", result.Requests)
	fmt.Printf("Fetched:      %d\n", result.Fetched)
	fmt.Printf("Skipped:      %d\n", result.Skipped)
	fmt.Printf("Failed:       %d\n", result.Failed)
	fmt.Printf("Outcome:      %s\n", result.Outcome.Status)
	fmt.Printf("Message:      %s\n", result.Outcome.Message)

	var failed []fetch.FileResult
	for _, f := range result.Files {
		if f.Error != "" {
			failed = append(failed, f)
		}
	}
	if len(failed) > 0 {
		fmt.Printf("\n=== Failed Requests ===\n")
		for _, f := range failed {
			fmt.Printf("  - %s: %s\n", f.Destination, f.Error)
		}
	}
}
