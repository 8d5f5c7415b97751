package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/isobar/adapter"
	"github.com/pithecene-io/isobar/cli/config"
	"github.com/pithecene-io/isobar/lode"
	"github.com/pithecene-io/isobar/log"
	"github.com/pithecene-io/isobar/metrics"
	"github.com/pithecene-io/isobar/model"
	"github.com/pithecene-io/isobar/namelist"
	"github.com/pithecene-io/isobar/runtime"
	"github.com/pithecene-io/isobar/types"
)

// stateFileName is the default checkpoint file under <data>/<exp>/.
const stateFileName = "sequence.state"

// SequenceCommand returns the sequence command.
// It compiles the model once and executes the configured runs in order.
func SequenceCommand() *cli.Command {
	flags := []cli.Flag{
		ConfigFlag,
		// Experiment flags
		&cli.StringFlag{
			Name:  "experiment",
			Usage: "Experiment name (names the run and data directories)",
		},
		&cli.StringFlag{
			Name:    "code-base",
			Usage:   "Model code base directory (build command runs here)",
			EnvVars: []string{"GFDL_BASE"},
		},
		&cli.StringFlag{
			Name:  "build-command",
			Usage: "Command that compiles the model, split on whitespace",
		},
		&cli.StringFlag{
			Name:  "executable",
			Usage: "Path to the compiled model executable",
		},
		&cli.StringFlag{
			Name:  "launcher",
			Usage: "MPI launcher used when cores > 1",
		},
		&cli.StringFlag{
			Name:    "work-dir",
			Usage:   "Root of the per-experiment run directories",
			EnvVars: []string{"GFDL_WORK"},
		},
		&cli.StringFlag{
			Name:    "data-dir",
			Usage:   "Root of the per-experiment output and restart archives",
			EnvVars: []string{"GFDL_DATA"},
		},
		&cli.StringSliceFlag{
			Name:  "input-file",
			Usage: "File copied into INPUT/ before every run (repeatable)",
		},
		&cli.StringFlag{
			Name:  "namelist",
			Usage: "Base input.nml to start from",
		},
		&cli.StringFlag{
			Name:  "resolution",
			Usage: "Spectral resolution: " + strings.Join(model.Resolutions(), ", "),
		},
		&cli.IntFlag{
			Name:  "levels",
			Usage: "Number of vertical levels",
		},
		// Sequence flags
		&cli.IntFlag{
			Name:  "cores",
			Usage: "Cores per run",
		},
		&cli.IntFlag{
			Name:  "runs",
			Usage: "Total runs, including the cold start",
		},
		&cli.BoolFlag{
			Name:  "overwrite-data",
			Usage: "Allow runs to replace existing output",
		},
		&cli.BoolFlag{
			Name:  "resume",
			Usage: "Continue after the last checkpointed run",
		},
		&cli.StringFlag{
			Name:  "state-path",
			Usage: "Checkpoint file (default <data-dir>/<experiment>/" + stateFileName + ")",
		},
		&cli.StringFlag{
			Name:  "batch-id",
			Usage: "Batch ID for logs and the ledger (default: random UUID)",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Suppress result output",
		},
	}
	flags = append(flags, StorageFlags()...)
	flags = append(flags, AdapterFlags()...)

	return &cli.Command{
		Name:   "sequence",
		Usage:  "Compile the model and execute a cold start followed by restart runs",
		Flags:  flags,
		Action: sequenceAction,
	}
}

// sequenceFromFlags overlays sequence flags on the config file values.
func sequenceFromFlags(c *cli.Context, sc config.SequenceConfig) config.SequenceConfig {
	if c.IsSet("experiment") {
		sc.Experiment = c.String("experiment")
	}
	if c.IsSet("code-base") {
		sc.CodeBase = c.String("code-base")
	}
	if c.IsSet("build-command") {
		sc.BuildCommand = strings.Fields(c.String("build-command"))
	}
	if c.IsSet("executable") {
		sc.Executable = c.String("executable")
	}
	if c.IsSet("launcher") {
		sc.Launcher = c.String("launcher")
	}
	if c.IsSet("work-dir") {
		sc.WorkDir = c.String("work-dir")
	}
	if c.IsSet("data-dir") {
		sc.DataDir = c.String("data-dir")
	}
	if c.IsSet("input-file") {
		sc.InputFiles = c.StringSlice("input-file")
	}
	if c.IsSet("namelist") {
		sc.Namelist = c.String("namelist")
	}
	if c.IsSet("resolution") {
		sc.Resolution = c.String("resolution")
	}
	if c.IsSet("levels") {
		sc.Levels = c.Int("levels")
	}
	if c.IsSet("cores") {
		sc.Cores = c.Int("cores")
	}
	if c.IsSet("runs") {
		sc.Runs = c.Int("runs")
	}
	if c.IsSet("overwrite-data") {
		sc.OverwriteData = c.Bool("overwrite-data")
	}
	if c.IsSet("resume") {
		sc.Resume = c.Bool("resume")
	}
	if c.IsSet("state-path") {
		sc.StatePath = c.String("state-path")
	}
	if sc.StatePath == "" && sc.DataDir != "" && sc.Experiment != "" {
		sc.StatePath = filepath.Join(sc.DataDir, sc.Experiment, stateFileName)
	}
	return sc
}

// buildRunSpec reads the base namelist, applies overrides and builds the
// immutable run specification.
func buildRunSpec(sc config.SequenceConfig) (*model.RunSpec, error) {
	nml := namelist.New()
	if sc.Namelist != "" {
		read, err := namelist.Read(sc.Namelist)
		if err != nil {
			return nil, err
		}
		nml = read
	}

	groups := make([]string, 0, len(sc.Overrides))
	for g := range sc.Overrides {
		groups = append(groups, g)
	}
	slices.Sort(groups)
	for _, g := range groups {
		keys := make([]string, 0, len(sc.Overrides[g]))
		for k := range sc.Overrides[g] {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			if err := nml.Set(g, k, sc.Overrides[g][k]); err != nil {
				return nil, fmt.Errorf("namelist override: %w", err)
			}
		}
	}

	table, err := sc.Diag.Table()
	if err != nil {
		return nil, err
	}

	return model.NewRunSpec(sc.Experiment, table, nml, sc.ResolutionSpec())
}

func sequenceAction(c *cli.Context) error {
	fileCfg, err := loadConfig(c)
	if err != nil {
		return setupExit("%v", err)
	}
	sc := sequenceFromFlags(c, fileCfg.Sequence)
	st := storageFromFlags(c, fileCfg.Storage)

	spec, err := buildRunSpec(sc)
	if err != nil {
		return setupExit("invalid run specification: %v", err)
	}

	adapters, err := buildAdapters(adapterFromFlags(c, fileCfg.Adapter))
	if err != nil {
		return setupExit("invalid adapter config: %v", err)
	}

	batchID := c.String("batch-id")
	if batchID == "" {
		batchID = uuid.NewString()
	}
	meta := types.FlowMeta{Flow: types.FlowSequence, Scope: sc.Experiment, BatchID: batchID}
	logger := log.NewLogger(&meta)
	defer logger.Sync()
	collector := metrics.NewCollector(string(meta.Flow), meta.Scope, st.Backend, meta.BatchID)

	executor, err := runtime.NewProcessExecutor(runtime.ProcessConfig{
		Experiment:    sc.Experiment,
		CodeBaseDir:   sc.CodeBase,
		BuildCommand:  sc.BuildCommand,
		Executable:    sc.Executable,
		Launcher:      sc.Launcher,
		WorkDir:       sc.WorkDir,
		DataDir:       sc.DataDir,
		InputFiles:    sc.InputFiles,
		OverwriteData: sc.OverwriteData,
		Env:           sc.Env,
		Logger:        logger,
		Collector:     collector,
	})
	if err != nil {
		return setupExit("invalid executor config: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Start time is "now" - used to derive the ledger partition day
	startTime := time.Now()
	client, err := buildLedger(ctx, st, meta, startTime)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to initialize ledger: %v", err), exitStorageFailure)
	}

	seqCfg := runtime.SequenceConfig{
		Spec:      spec,
		Executor:  executor,
		Total:     sc.Runs,
		Cores:     sc.Cores,
		Resume:    sc.Resume,
		StatePath: sc.StatePath,
		Logger:    logger,
		Collector: collector,
	}
	var ledger lode.Ledger
	if client != nil {
		ledger = client
		seqCfg.Ledger = lode.NewInstrumentedLedger(client, collector)
	}

	sequencer, err := runtime.NewSequencer(seqCfg)
	if err != nil {
		return setupExit("invalid sequence config: %v", err)
	}

	result := &runtime.SequenceResult{Experiment: sc.Experiment}
	flowErr := sequencer.Initialize(ctx)
	if flowErr != nil {
		logger.Error("initialization failed", map[string]any{"error": flowErr.Error()})
		result.Outcome = types.Outcome{Status: initStatus(flowErr), Message: flowErr.Error()}
		result.Duration = time.Since(startTime)
	} else {
		result, flowErr = sequencer.RunSequence(ctx)
		if flowErr != nil {
			logger.Error("sequence halted", map[string]any{"error": flowErr.Error()})
		}
	}

	event := &adapter.CompletedEvent{
		ContractVersion: types.ContractVersion,
		EventType:       adapter.EventSequenceCompleted,
		Flow:            string(meta.Flow),
		Scope:           meta.Scope,
		BatchID:         meta.BatchID,
		Day:             lode.DeriveDay(startTime),
		Message:         result.Outcome.Message,
		StoragePath:     st.Path,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		Completed:       len(result.Completed),
		DurationMs:      result.Duration.Milliseconds(),
	}
	if result.FailedAt != nil {
		event.Failed = 1
	}
	result.Outcome.Status = finalize(ledger, collector, adapters, event, logger, result.Outcome.Status)

	if !c.Bool("quiet") {
		printSequenceResult(result, flowErr, meta, sc)
	}

	return cli.Exit("", outcomeToExitCode(result.Outcome.Status))
}

// initStatus classifies an Initialize failure. Anything that is not a
// cancellation or a ledger failure happened before the first run and is
// reported as a setup error.
func initStatus(err error) types.OutcomeStatus {
	status := runtime.ClassifyError(err)
	if status == types.OutcomeCollaboratorFailure {
		return types.OutcomeSetupError
	}
	return status
}

func printSequenceResult(result *runtime.SequenceResult, flowErr error, meta types.FlowMeta, sc config.SequenceConfig) {
	fmt.Printf("\nexperiment=%s, batch_id=%s, outcome=%s, duration=%s\n",
		result.Experiment,
		meta.BatchID,
		result.Outcome.Status,
		result.Duration.Round(time.Millisecond),
	)

	fmt.Printf("\n=== Sequence Result ===\n")
	fmt.Printf("Experiment:   %s\n", result.Experiment)
	fmt.Printf("Resolution:   %s\n", sc.ResolutionSpec())
	fmt.Printf("Cores:        %d\n", sc.Cores)
	fmt.Printf("Runs:         %d of %d completed\n", len(result.Completed), sc.Runs)
	if len(result.Completed) > 0 {
		first := result.Completed[0]
		last := result.Completed[len(result.Completed)-1]
		fmt.Printf("Completed:    run %d..%d\n", first, last)
	}
	if result.FailedAt != nil {
		fmt.Printf("Failed At:    run %d\n", *result.FailedAt)
	}
	fmt.Printf("Outcome:      %s\n", result.Outcome.Status)
	fmt.Printf("Message:      %s\n", result.Outcome.Message)

	var runErr *runtime.RunError
	if errors.As(flowErr, &runErr) {
		fmt.Printf("Exit Code:    %d\n", runErr.ExitCode)
		if runErr.StderrTail != "" {
			fmt.Printf("\n=== Model Stderr ===\n")
			fmt.Printf("%s\n", runErr.StderrTail)
		}
	}
}
