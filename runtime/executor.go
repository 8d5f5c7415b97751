// Package runtime drives an experiment through its numbered model runs.
//
// The Sequencer owns ordering and restart semantics; the Executor owns
// everything the external model code base does (building, run directory
// layout, launching the parallel job, archiving output).
package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/pithecene-io/isobar/model"
)

// Executor abstracts the external model code base.
type Executor interface {
	// Compile builds the model executable.
	Compile(ctx context.Context) error
	// ClearRunDir removes any previous working state for the experiment.
	ClearRunDir(ctx context.Context) error
	// Apply attaches the run specification used by subsequent runs.
	Apply(spec *model.RunSpec) error
	// Run executes one simulation segment. It returns only after the
	// segment has finished and its output and restart state are in place.
	Run(ctx context.Context, index model.RunIndex, useRestart bool, cores int) error
}

// Sentinel errors returned by executors.
var (
	// ErrNoSpec indicates Run was called before Apply.
	ErrNoSpec = errors.New("run specification not applied")
	// ErrMissingRestart indicates the previous run left no restart state.
	ErrMissingRestart = errors.New("restart state missing")
	// ErrOutputExists indicates the run's output directory is already populated.
	ErrOutputExists = errors.New("run output already exists")
	// ErrExecutableMissing indicates Compile produced no executable.
	ErrExecutableMissing = errors.New("model executable missing")
	// ErrLaunch indicates the model process could not be started.
	ErrLaunch = errors.New("failed to launch model")
)

// RunError reports a model run that exited unsuccessfully.
type RunError struct {
	// Index is the failed run.
	Index model.RunIndex
	// ExitCode is the process exit code (-1 when killed by a signal).
	ExitCode int
	// StderrTail holds the last bytes the model wrote to stderr.
	StderrTail string
}

func (e *RunError) Error() string {
	if e.StderrTail == "" {
		return fmt.Sprintf("run %d exited with code %d", e.Index, e.ExitCode)
	}
	return fmt.Sprintf("run %d exited with code %d: %s", e.Index, e.ExitCode, e.StderrTail)
}

// ExitCodeOf returns the model exit code carried by err, or 0 when err is
// not a *RunError.
func ExitCodeOf(err error) int {
	var re *RunError
	if errors.As(err, &re) {
		return re.ExitCode
	}
	return 0
}
