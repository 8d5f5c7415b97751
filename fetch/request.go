// Package fetch plans and executes batches of monthly-mean reanalysis
// retrievals, one NetCDF file per (template, year).
package fetch

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
)

// Defaults for the monthly-mean request shape.
const (
	DefaultProduct = "monthly_averaged_reanalysis"
	DefaultTime    = "00:00"
	DefaultFormat  = "netcdf"
	DefaultArchive = "era5-GLBx0.25"
)

// Template is a fixed request shape covering one variable set.
type Template struct {
	// Tag identifies the variable set in file names (e.g. "b_air").
	Tag string `yaml:"tag" json:"tag"`
	// Dataset is the remote dataset name.
	Dataset string `yaml:"dataset" json:"dataset"`
	// Variables are requested together into one file.
	Variables []string `yaml:"variables" json:"variables"`
	// PressureLevel in hPa, or nil for single-level data.
	PressureLevel *int `yaml:"pressure_level,omitempty" json:"pressure_level,omitempty"`
}

// Validate checks the template is complete.
func (t Template) Validate() error {
	switch {
	case t.Tag == "":
		return errors.New("template tag is required")
	case t.Dataset == "":
		return fmt.Errorf("template %s: dataset is required", t.Tag)
	case len(t.Variables) == 0:
		return fmt.Errorf("template %s: at least one variable is required", t.Tag)
	case t.PressureLevel != nil && *t.PressureLevel <= 0:
		return fmt.Errorf("template %s: pressure level must be positive", t.Tag)
	}
	return nil
}

// Request is one unit of retrieval work. It maps 1:1 to a destination file.
type Request struct {
	Template Template
	Year     int
	Months   []int
	Time     string
	Product  string
	Format   string
}

// NewRequest builds the monthly-mean request for t and year.
func NewRequest(t Template, year int) Request {
	return Request{
		Template: t,
		Year:     year,
		Months:   []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
		Time:     DefaultTime,
		Product:  DefaultProduct,
		Format:   DefaultFormat,
	}
}

// Params returns the request body sent to the retrieval service.
func (r Request) Params() map[string]any {
	p := map[string]any{
		"format":       r.Format,
		"product_type": r.Product,
		"variable":     slices.Clone(r.Template.Variables),
		"year":         strconv.Itoa(r.Year),
		"month":        slices.Clone(r.Months),
		"time":         r.Time,
	}
	if r.Template.PressureLevel != nil {
		p["pressure_level"] = strconv.Itoa(*r.Template.PressureLevel)
	}
	return p
}

// Naming computes destination paths.
type Naming struct {
	// DataDir is the destination directory.
	DataDir string
	// Archive is the leading archive tag (e.g. "era5-GLBx0.25").
	Archive string
}

// FileName returns <archive>-<tag>[-<level>hPa]-<year>.nc.
func (n Naming) FileName(r Request) string {
	level := ""
	if r.Template.PressureLevel != nil {
		level = fmt.Sprintf("-%dhPa", *r.Template.PressureLevel)
	}
	return fmt.Sprintf("%s-%s%s-%d.nc", n.Archive, r.Template.Tag, level, r.Year)
}

// Destination returns the full destination path of r.
func (n Naming) Destination(r Request) string {
	return filepath.Join(n.DataDir, n.FileName(r))
}

// Level returns a pointer to hPa, for building templates.
func Level(hPa int) *int {
	return &hPa
}

// DefaultTemplates returns the two buoyancy templates: upper-air
// hydrometeors and thermodynamics at 500 hPa, and surface temperature
// and pressure.
func DefaultTemplates() []Template {
	return []Template{
		{
			Tag:     "b_air",
			Dataset: "reanalysis-era5-pressure-levels-monthly-means",
			Variables: []string{
				"geopotential",
				"specific_cloud_ice_water_content",
				"specific_cloud_liquid_water_content",
				"specific_humidity",
				"specific_rain_water_content",
				"specific_snow_water_content",
				"temperature",
			},
			PressureLevel: Level(500),
		},
		{
			Tag:       "b_sfc",
			Dataset:   "reanalysis-era5-single-levels-monthly-means",
			Variables: []string{"2m_temperature", "surface_pressure"},
		},
	}
}
