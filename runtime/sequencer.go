package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/isobar/lode"
	"github.com/pithecene-io/isobar/log"
	"github.com/pithecene-io/isobar/metrics"
	"github.com/pithecene-io/isobar/model"
	"github.com/pithecene-io/isobar/types"
)

// SequenceConfig configures a Sequencer.
type SequenceConfig struct {
	// Spec is the run specification attached at Initialize.
	Spec *model.RunSpec
	// Executor runs the model.
	Executor Executor
	// Total is the number of runs, including the cold start.
	Total int
	// Cores is passed through to every run.
	Cores int
	// Resume continues after the last checkpointed run instead of starting over.
	// Requires StatePath.
	Resume bool
	// StatePath is the checkpoint file. Empty disables checkpointing.
	StatePath string
	// Logger receives progress. If nil, logging is discarded.
	Logger *log.Logger
	// Collector records run metrics. May be nil.
	Collector *metrics.Collector
	// Ledger records every run attempt. May be nil.
	Ledger lode.Ledger
}

// SequenceResult summarizes a sequence.
type SequenceResult struct {
	// Experiment is the experiment name.
	Experiment string
	// Completed lists successful runs in execution order.
	Completed []model.RunIndex
	// FailedAt is the run that halted the sequence, if any.
	FailedAt *model.RunIndex
	// Outcome is the final classification.
	Outcome types.Outcome
	// Duration is the wall time of RunSequence.
	Duration time.Duration
}

// Sequencer runs a cold start followed by restart-dependent runs, strictly
// in index order, halting at the first failure.
type Sequencer struct {
	config      SequenceConfig
	logger      *log.Logger
	start       model.RunIndex
	initialized bool
}

// NewSequencer validates cfg and returns a Sequencer.
func NewSequencer(cfg SequenceConfig) (*Sequencer, error) {
	switch {
	case cfg.Spec == nil:
		return nil, errors.New("run specification is required")
	case cfg.Executor == nil:
		return nil, errors.New("executor is required")
	case cfg.Total < 1:
		return nil, fmt.Errorf("total runs must be >= 1, got %d", cfg.Total)
	case cfg.Cores < 1:
		return nil, fmt.Errorf("cores must be >= 1, got %d", cfg.Cores)
	case cfg.Resume && cfg.StatePath == "":
		return nil, errors.New("resume requires a checkpoint path")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Sequencer{config: cfg, logger: logger, start: 1}, nil
}

// StartIndex returns the first run RunSequence will execute.
// Valid after Initialize.
func (s *Sequencer) StartIndex() model.RunIndex {
	return s.start
}

// Initialize compiles the model, clears the experiment's run directory and
// attaches the run specification. When resuming from a checkpoint the run
// directory is kept and the sequence continues after the last completed run.
func (s *Sequencer) Initialize(ctx context.Context) error {
	exp := s.config.Spec.Experiment()

	resumeFrom, err := s.resumePoint()
	if err != nil {
		return err
	}

	s.logger.Info("compiling model", map[string]any{"experiment": exp})
	if err := s.config.Executor.Compile(ctx); err != nil {
		return fmt.Errorf("compile failed: %w", err)
	}

	if resumeFrom > 0 {
		s.logger.Info("resuming from checkpoint", map[string]any{
			"last_completed": resumeFrom,
		})
		s.start = model.RunIndex(resumeFrom + 1)
	} else {
		s.logger.Info("clearing run directory", map[string]any{"experiment": exp})
		if err := s.config.Executor.ClearRunDir(ctx); err != nil {
			return fmt.Errorf("failed to clear run directory: %w", err)
		}
		if s.config.StatePath != "" {
			if err := RemoveCheckpoint(s.config.StatePath); err != nil {
				return err
			}
		}
		s.start = 1
	}

	if err := s.config.Executor.Apply(s.config.Spec); err != nil {
		return fmt.Errorf("failed to apply run specification: %w", err)
	}

	s.initialized = true
	return nil
}

// resumePoint returns the last completed run to resume after, or 0 to start fresh.
func (s *Sequencer) resumePoint() (int, error) {
	if !s.config.Resume {
		return 0, nil
	}
	cp, err := LoadCheckpoint(s.config.StatePath)
	if errors.Is(err, ErrNoCheckpoint) {
		s.logger.Warn("no checkpoint found, starting from run 1", map[string]any{
			"state_path": s.config.StatePath,
		})
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if cp.Experiment != s.config.Spec.Experiment() {
		return 0, fmt.Errorf("%w: %q", ErrCheckpointMismatch, cp.Experiment)
	}
	return cp.LastCompleted, nil
}

// RunSequence executes runs StartIndex..Total. Run 1 never uses a restart;
// every later run does. The result is always non-nil; the error is the
// failure that halted the sequence.
func (s *Sequencer) RunSequence(ctx context.Context) (*SequenceResult, error) {
	started := time.Now()
	result := &SequenceResult{Experiment: s.config.Spec.Experiment()}

	finish := func(err error) (*SequenceResult, error) {
		result.Duration = time.Since(started)
		result.Outcome = types.Outcome{Status: ClassifyError(err)}
		if err != nil {
			result.Outcome.Message = err.Error()
		} else {
			result.Outcome.Message = fmt.Sprintf("%d runs completed", len(result.Completed))
		}
		return result, err
	}

	if !s.initialized {
		return finish(errors.New("sequencer not initialized"))
	}

	total := model.RunIndex(s.config.Total)
	if s.start > total {
		s.logger.Info("sequence already complete", map[string]any{
			"total": s.config.Total,
		})
		return finish(nil)
	}

	for i := s.start; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return finish(fmt.Errorf("sequence interrupted before run %d: %w", i, err))
		}

		if err := s.runOne(ctx, i); err != nil {
			failed := i
			result.FailedAt = &failed
			return finish(err)
		}
		result.Completed = append(result.Completed, i)

		if s.config.StatePath != "" {
			err := SaveCheckpoint(s.config.StatePath, &Checkpoint{
				Experiment:    result.Experiment,
				LastCompleted: int(i),
				Total:         s.config.Total,
				UpdatedAt:     time.Now().UTC(),
			})
			if err != nil {
				return finish(err)
			}
		}
	}

	s.logger.Info("sequence completed", map[string]any{
		"runs":     len(result.Completed),
		"duration": time.Since(started).String(),
	})
	return finish(nil)
}

func (s *Sequencer) runOne(ctx context.Context, i model.RunIndex) error {
	useRestart := i.UsesRestart()
	runStart := time.Now()

	s.config.Collector.IncRunStarted()
	s.logger.Info("starting run", map[string]any{
		"run_index":   int(i),
		"use_restart": useRestart,
		"cores":       s.config.Cores,
	})

	runErr := s.config.Executor.Run(ctx, i, useRestart, s.config.Cores)

	rec := lode.RunRecord{
		RunIndex:   int(i),
		UseRestart: useRestart,
		Cores:      s.config.Cores,
		Resolution: s.config.Spec.Resolution().String(),
		Status:     lode.RunStatusCompleted,
		StartedAt:  runStart,
		Duration:   time.Since(runStart),
	}
	if runErr != nil {
		rec.Status = lode.RunStatusFailed
		rec.ExitCode = ExitCodeOf(runErr)
		rec.Error = runErr.Error()
		s.config.Collector.IncRunFailed()
		s.logger.Error("run failed", map[string]any{
			"run_index": int(i),
			"error":     runErr.Error(),
		})
	} else {
		s.config.Collector.IncRunCompleted()
		s.logger.Info("run completed", map[string]any{
			"run_index": int(i),
			"duration":  rec.Duration.String(),
		})
	}

	if s.config.Ledger != nil {
		// Use a non-canceled context so interrupted runs are still recorded.
		if err := s.config.Ledger.WriteRun(context.WithoutCancel(ctx), rec); err != nil {
			if runErr != nil {
				return errors.Join(runErr, err)
			}
			return fmt.Errorf("failed to record run %d: %w", i, err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("run %d failed: %w", i, runErr)
	}
	return nil
}
