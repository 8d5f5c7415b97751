package model

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/isobar/diag"
	"github.com/pithecene-io/isobar/namelist"
)

// ErrInvalidRunIndex is returned for run indices below 1.
var ErrInvalidRunIndex = errors.New("run index must be >= 1")

// RunIndex identifies one simulation segment. Run 1 is the cold start.
type RunIndex int

// UsesRestart reports whether the run consumes the previous run's restart state.
func (i RunIndex) UsesRestart() bool {
	return i > 1
}

// Validate checks i >= 1.
func (i RunIndex) Validate() error {
	if i < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidRunIndex, int(i))
	}
	return nil
}

// RunSpec is the configuration bundle for one experiment.
// It has no setters; accessors return copies.
type RunSpec struct {
	experiment string
	diag       *diag.Table
	nml        *namelist.Namelist
	resolution Resolution
}

// NewRunSpec validates its inputs and captures private copies of the
// diag table and namelist with the resolution applied.
func NewRunSpec(experiment string, table *diag.Table, nml *namelist.Namelist, res Resolution) (*RunSpec, error) {
	if experiment == "" {
		return nil, errors.New("experiment name is required")
	}
	if table == nil {
		return nil, errors.New("diag table is required")
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid diag table: %w", err)
	}
	if nml == nil {
		nml = namelist.New()
	}

	ownNml := nml.Clone()
	if err := res.Apply(ownNml); err != nil {
		return nil, fmt.Errorf("invalid resolution: %w", err)
	}

	return &RunSpec{
		experiment: experiment,
		diag:       table.Clone(),
		nml:        ownNml,
		resolution: res,
	}, nil
}

// Experiment returns the experiment name.
func (s *RunSpec) Experiment() string { return s.experiment }

// Resolution returns the spatial resolution.
func (s *RunSpec) Resolution() Resolution { return s.resolution }

// Diag returns a copy of the diagnostic schedule.
func (s *RunSpec) Diag() *diag.Table { return s.diag.Clone() }

// Namelist returns a copy of the resolved namelist.
func (s *RunSpec) Namelist() *namelist.Namelist { return s.nml.Clone() }
