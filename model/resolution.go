// Package model describes the immutable configuration of a multi-run
// experiment: diagnostic schedule, namelist and spatial resolution.
package model

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/pithecene-io/isobar/namelist"
)

// ErrUnknownResolution is returned for spectral truncations with no grid mapping.
var ErrUnknownResolution = errors.New("unknown resolution")

// SpectralGroup is the namelist group carrying grid dimensions.
const SpectralGroup = "spectral_dynamics_nml"

type grid struct {
	lonMax, latMax, numFourier, numSpherical int
}

var grids = map[string]grid{
	"T21":  {lonMax: 64, latMax: 32, numFourier: 21, numSpherical: 22},
	"T42":  {lonMax: 128, latMax: 64, numFourier: 42, numSpherical: 43},
	"T85":  {lonMax: 256, latMax: 128, numFourier: 85, numSpherical: 86},
	"T170": {lonMax: 512, latMax: 256, numFourier: 170, numSpherical: 171},
}

// Resolutions lists the known truncation labels in ascending order.
func Resolutions() []string {
	out := make([]string, 0, len(grids))
	for k := range grids {
		out = append(out, k)
	}
	slices.SortFunc(out, func(a, b string) int {
		return grids[a].numFourier - grids[b].numFourier
	})
	return out
}

// Resolution is a horizontal truncation label plus a vertical level count.
type Resolution struct {
	Label  string `json:"label" yaml:"label"`
	Levels int    `json:"levels" yaml:"levels"`
}

// Validate checks the label is known and the level count positive.
func (r Resolution) Validate() error {
	if _, ok := grids[strings.ToUpper(r.Label)]; !ok {
		return fmt.Errorf("%w: %q (known: %s)", ErrUnknownResolution, r.Label, strings.Join(Resolutions(), ", "))
	}
	if r.Levels <= 0 {
		return fmt.Errorf("levels must be positive, got %d", r.Levels)
	}
	return nil
}

// String returns e.g. "T85L96".
func (r Resolution) String() string {
	return fmt.Sprintf("%sL%d", strings.ToUpper(r.Label), r.Levels)
}

// Apply writes the grid dimensions into nml.
func (r Resolution) Apply(nml *namelist.Namelist) error {
	if err := r.Validate(); err != nil {
		return err
	}
	g := grids[strings.ToUpper(r.Label)]
	for _, kv := range []struct {
		key string
		val int
	}{
		{"lon_max", g.lonMax},
		{"lat_max", g.latMax},
		{"num_fourier", g.numFourier},
		{"num_spherical", g.numSpherical},
		{"num_levels", r.Levels},
	} {
		if err := nml.Set(SpectralGroup, kv.key, kv.val); err != nil {
			return err
		}
	}
	return nil
}
