package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/pithecene-io/isobar/iox"
	"github.com/pithecene-io/isobar/log"
	"github.com/pithecene-io/isobar/metrics"
	"github.com/pithecene-io/isobar/model"
)

const (
	// DefaultLauncher is the MPI launcher used when cores > 1.
	DefaultLauncher = "mpirun"
	// stderrTailBytes bounds the stderr excerpt carried by RunError.
	stderrTailBytes = 4096
	// modelLogName is the stdout capture of each run. It is written in the
	// run directory and archived with the run's output.
	modelLogName = "model.log"
)

// ProcessConfig configures a ProcessExecutor.
type ProcessConfig struct {
	// Experiment names the run and data directories.
	Experiment string
	// CodeBaseDir is where BuildCommand runs.
	CodeBaseDir string
	// BuildCommand compiles the model. Empty means the executable is prebuilt.
	BuildCommand []string
	// Executable is the model binary.
	Executable string
	// Launcher is the MPI launcher. Defaults to DefaultLauncher.
	Launcher string
	// WorkDir holds per-experiment run directories.
	WorkDir string
	// DataDir holds per-experiment outputs and restart archives.
	DataDir string
	// InputFiles are copied into INPUT/ before every run.
	InputFiles []string
	// OverwriteData allows a run to replace existing output.
	OverwriteData bool
	// Env is appended to the inherited environment of model processes.
	Env []string
	// Logger receives executor progress. May be nil.
	Logger *log.Logger
	// Collector records launch metrics. May be nil.
	Collector *metrics.Collector
}

// ProcessExecutor runs an FMS-style model as an external process.
//
// Layout:
//
//	<work>/<exp>/                 run directory (INPUT/, RESTART/, input.nml, diag_table)
//	<data>/<exp>/run%04d/         model output of each run
//	<data>/<exp>/restarts/res%04d restart state written by each run
type ProcessExecutor struct {
	config ProcessConfig
	logger *log.Logger

	mu   sync.Mutex
	spec *model.RunSpec
}

// NewProcessExecutor validates cfg and returns an executor.
func NewProcessExecutor(cfg ProcessConfig) (*ProcessExecutor, error) {
	switch {
	case cfg.Experiment == "":
		return nil, errors.New("experiment is required")
	case cfg.Executable == "":
		return nil, errors.New("executable is required")
	case cfg.WorkDir == "":
		return nil, errors.New("work directory is required")
	case cfg.DataDir == "":
		return nil, errors.New("data directory is required")
	}
	if cfg.Launcher == "" {
		cfg.Launcher = DefaultLauncher
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &ProcessExecutor{config: cfg, logger: logger}, nil
}

// RunDir returns the experiment's working directory.
func (p *ProcessExecutor) RunDir() string {
	return filepath.Join(p.config.WorkDir, p.config.Experiment)
}

// OutputDir returns the output directory of run i.
func (p *ProcessExecutor) OutputDir(i model.RunIndex) string {
	return filepath.Join(p.config.DataDir, p.config.Experiment, fmt.Sprintf("run%04d", int(i)))
}

// RestartDir returns the restart archive written by run i.
func (p *ProcessExecutor) RestartDir(i model.RunIndex) string {
	return filepath.Join(p.config.DataDir, p.config.Experiment, "restarts", fmt.Sprintf("res%04d", int(i)))
}

// Compile runs the build command and checks that the executable exists.
func (p *ProcessExecutor) Compile(ctx context.Context) error {
	if len(p.config.BuildCommand) > 0 {
		cmd := exec.CommandContext(ctx, p.config.BuildCommand[0], p.config.BuildCommand[1:]...)
		cmd.Dir = p.config.CodeBaseDir
		cmd.Env = p.env()
		out, err := cmd.CombinedOutput()
		if err != nil {
			return fmt.Errorf("build command failed: %w: %s", err, tail(out, stderrTailBytes))
		}
		p.logger.Debug("build finished", map[string]any{"output_bytes": len(out)})
	}

	info, err := os.Stat(p.config.Executable)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrExecutableMissing, p.config.Executable)
	}
	if info.IsDir() || info.Mode()&0o111 == 0 {
		return fmt.Errorf("%w: %s is not executable", ErrExecutableMissing, p.config.Executable)
	}
	return nil
}

// ClearRunDir removes the experiment's run directory. Outputs under the
// data directory are kept.
func (p *ProcessExecutor) ClearRunDir(_ context.Context) error {
	if err := os.RemoveAll(p.RunDir()); err != nil {
		return fmt.Errorf("failed to remove %s: %w", p.RunDir(), err)
	}
	return nil
}

// Apply attaches spec. The spec's experiment must match the executor's.
func (p *ProcessExecutor) Apply(spec *model.RunSpec) error {
	if spec.Experiment() != p.config.Experiment {
		return fmt.Errorf("spec experiment %q does not match executor experiment %q",
			spec.Experiment(), p.config.Experiment)
	}
	p.mu.Lock()
	p.spec = spec
	p.mu.Unlock()
	return nil
}

// Run executes one segment.
func (p *ProcessExecutor) Run(ctx context.Context, index model.RunIndex, useRestart bool, cores int) error {
	if err := index.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	spec := p.spec
	p.mu.Unlock()
	if spec == nil {
		return ErrNoSpec
	}

	outDir := p.OutputDir(index)
	if err := p.prepareOutput(outDir); err != nil {
		return err
	}
	if err := p.prepareRunDir(index, useRestart, spec); err != nil {
		return err
	}

	if err := p.launch(ctx, index, cores); err != nil {
		return err
	}

	return p.archive(index, outDir)
}

func (p *ProcessExecutor) prepareOutput(outDir string) error {
	entries, err := os.ReadDir(outDir)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("failed to inspect %s: %w", outDir, err)
	case len(entries) > 0 && !p.config.OverwriteData:
		return fmt.Errorf("%w: %s", ErrOutputExists, outDir)
	case len(entries) > 0:
		p.logger.Warn("overwriting existing run output", map[string]any{"dir": outDir})
		if err := os.RemoveAll(outDir); err != nil {
			return fmt.Errorf("failed to clear %s: %w", outDir, err)
		}
	}
	return os.MkdirAll(outDir, 0o755)
}

func (p *ProcessExecutor) prepareRunDir(index model.RunIndex, useRestart bool, spec *model.RunSpec) error {
	runDir := p.RunDir()
	inputDir := filepath.Join(runDir, "INPUT")
	restartDir := filepath.Join(runDir, "RESTART")

	for _, dir := range []string{inputDir, restartDir} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to reset %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	for _, f := range p.config.InputFiles {
		if err := copyFile(f, filepath.Join(inputDir, filepath.Base(f))); err != nil {
			return fmt.Errorf("failed to stage input file: %w", err)
		}
	}

	if useRestart {
		prev := p.RestartDir(index - 1)
		if _, err := os.Stat(prev); err != nil {
			return fmt.Errorf("%w: run %d needs %s", ErrMissingRestart, index, prev)
		}
		if err := copyDirFiles(prev, inputDir); err != nil {
			return fmt.Errorf("failed to stage restart state: %w", err)
		}
	}

	if err := spec.Namelist().WriteFile(filepath.Join(runDir, "input.nml")); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(runDir, "diag_table"))
	if err != nil {
		return fmt.Errorf("failed to create diag_table: %w", err)
	}
	if err := spec.Diag().Render(f); err != nil {
		iox.DiscardClose(f)
		return fmt.Errorf("failed to write diag_table: %w", err)
	}
	return f.Close()
}

func (p *ProcessExecutor) launch(ctx context.Context, index model.RunIndex, cores int) error {
	name, args := p.command(cores)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = p.RunDir()
	cmd.Env = p.env()

	logFile, err := os.Create(filepath.Join(p.RunDir(), modelLogName))
	if err != nil {
		return fmt.Errorf("failed to create model log: %w", err)
	}
	defer iox.DiscardClose(logFile)

	stderr := iox.NewTailBuffer(stderrTailBytes)
	cmd.Stdout = logFile
	cmd.Stderr = io.MultiWriter(logFile, stderr)

	p.logger.Info("launching model", map[string]any{
		"run_index": int(index),
		"command":   strings.Join(append([]string{name}, args...), " "),
	})

	if err := cmd.Start(); err != nil {
		p.config.Collector.IncExecutorLaunchFailure()
		return fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	p.config.Collector.IncExecutorLaunchSuccess()

	err = cmd.Wait()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("run %d interrupted: %w", index, ctxErr)
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("model wait failed: %w", err)
	}
	code := -1
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
		code = status.ExitStatus()
	}
	return &RunError{Index: index, ExitCode: code, StderrTail: strings.TrimSpace(stderr.String())}
}

func (p *ProcessExecutor) command(cores int) (string, []string) {
	if cores <= 1 {
		return p.config.Executable, nil
	}
	return p.config.Launcher, []string{"-np", strconv.Itoa(cores), p.config.Executable}
}

// archive moves NetCDF output and the model log into the run's output
// directory and RESTART/ into the run's restart archive. A failed run leaves
// its output directory empty, so it can be retried.
func (p *ProcessExecutor) archive(index model.RunIndex, outDir string) error {
	runDir := p.RunDir()

	matches, err := filepath.Glob(filepath.Join(runDir, "*.nc"))
	if err != nil {
		return err
	}
	if err := moveFile(filepath.Join(runDir, modelLogName), filepath.Join(outDir, modelLogName)); err != nil {
		return fmt.Errorf("failed to archive model log: %w", err)
	}
	for _, m := range matches {
		if err := moveFile(m, filepath.Join(outDir, filepath.Base(m))); err != nil {
			return fmt.Errorf("failed to archive output: %w", err)
		}
	}

	resDir := p.RestartDir(index)
	if err := os.RemoveAll(resDir); err != nil {
		return fmt.Errorf("failed to reset %s: %w", resDir, err)
	}
	if err := os.MkdirAll(resDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", resDir, err)
	}
	entries, err := os.ReadDir(filepath.Join(runDir, "RESTART"))
	if err != nil {
		return fmt.Errorf("failed to read restart state: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		src := filepath.Join(runDir, "RESTART", e.Name())
		if err := moveFile(src, filepath.Join(resDir, e.Name())); err != nil {
			return fmt.Errorf("failed to archive restart state: %w", err)
		}
	}

	p.logger.Info("run archived", map[string]any{
		"run_index":     int(index),
		"output_files":  len(matches),
		"restart_files": len(entries),
	})
	return nil
}

func (p *ProcessExecutor) env() []string {
	if len(p.config.Env) == 0 {
		return nil
	}
	return deduplicateEnv(append(os.Environ(), p.config.Env...))
}

// deduplicateEnv keeps the last occurrence of each env var key, so
// configured values win over inherited duplicates from os.Environ().
func deduplicateEnv(env []string) []string {
	seen := make(map[string]int, len(env))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		seen[key] = i
	}
	result := make([]string, 0, len(seen))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		if seen[key] == i {
			result = append(result, entry)
		}
	}
	return result
}

func tail(b []byte, n int) string {
	b = bytes.TrimSpace(b)
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}

// Verify ProcessExecutor implements Executor.
var _ Executor = (*ProcessExecutor)(nil)
