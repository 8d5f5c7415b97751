// Package diag builds the diagnostic output schedule written to the model's
// diag_table file.
package diag

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Calendar names accepted by the model's time manager.
const (
	CalendarThirtyDay = "thirty_day"
	CalendarJulian    = "julian"
	CalendarNoLeap    = "no_leap"
	CalendarNone      = "no_calendar"
)

// Sentinel errors returned by Validate.
var (
	ErrNoFiles        = errors.New("diag table declares no output files")
	ErrInvalidFreq    = errors.New("output frequency must be positive")
	ErrInvalidUnits   = errors.New("unknown time unit")
	ErrDuplicateField = errors.New("duplicate diagnostic field")
	ErrNoFields       = errors.New("diag table declares no fields")
)

var validUnits = map[string]bool{
	"seconds": true,
	"minutes": true,
	"hours":   true,
	"days":    true,
	"months":  true,
}

// Field is a single (module, name) diagnostic.
type Field struct {
	Module  string `json:"module" yaml:"module"`
	Name    string `json:"name" yaml:"name"`
	TimeAvg bool   `json:"time_avg" yaml:"time_avg"`
}

// File is a named output stream with a sampling cadence.
type File struct {
	Name      string  `json:"name" yaml:"name"`
	Freq      int     `json:"freq" yaml:"freq"`
	Units     string  `json:"units" yaml:"units"`
	TimeUnits string  `json:"time_units" yaml:"time_units"`
	Fields    []Field `json:"fields" yaml:"fields"`
}

// Table is the full diagnostic output schedule.
type Table struct {
	Calendar string `json:"calendar" yaml:"calendar"`
	Files    []File `json:"files" yaml:"files"`
}

// New returns an empty table using the given calendar.
// An empty calendar selects thirty_day.
func New(calendar string) *Table {
	if calendar == "" {
		calendar = CalendarThirtyDay
	}
	return &Table{Calendar: calendar}
}

// AddFile declares an output stream.
func (t *Table) AddFile(name string, freq int, units, timeUnits string) {
	t.Files = append(t.Files, File{
		Name:      name,
		Freq:      freq,
		Units:     units,
		TimeUnits: timeUnits,
	})
}

// AddField attaches a field to every output stream declared so far.
// Streams declared later do not receive it, so with no streams the call
// is a no-op.
func (t *Table) AddField(module, name string, timeAvg bool) {
	for i := range t.Files {
		t.Files[i].Fields = append(t.Files[i].Fields, Field{
			Module:  module,
			Name:    name,
			TimeAvg: timeAvg,
		})
	}
}

// Validate checks the table is renderable.
func (t *Table) Validate() error {
	if len(t.Files) == 0 {
		return ErrNoFiles
	}
	for _, f := range t.Files {
		if f.Name == "" {
			return errors.New("output file name is required")
		}
		if f.Freq <= 0 {
			return fmt.Errorf("%w: %s has freq %d", ErrInvalidFreq, f.Name, f.Freq)
		}
		if !validUnits[f.Units] {
			return fmt.Errorf("%w: %s units %q", ErrInvalidUnits, f.Name, f.Units)
		}
		if !validUnits[f.TimeUnits] {
			return fmt.Errorf("%w: %s time_units %q", ErrInvalidUnits, f.Name, f.TimeUnits)
		}
		if len(f.Fields) == 0 {
			return fmt.Errorf("%w: %s", ErrNoFields, f.Name)
		}
		seen := make(map[string]bool, len(f.Fields))
		for _, fld := range f.Fields {
			key := fld.Module + "/" + fld.Name
			if seen[key] {
				return fmt.Errorf("%w: %s in %s", ErrDuplicateField, key, f.Name)
			}
			seen[key] = true
		}
	}
	return nil
}

// FieldCount returns the number of distinct field entries across all files.
func (t *Table) FieldCount() int {
	n := 0
	for _, f := range t.Files {
		n += len(f.Fields)
	}
	return n
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := &Table{Calendar: t.Calendar, Files: make([]File, len(t.Files))}
	for i, f := range t.Files {
		f.Fields = append([]Field(nil), f.Fields...)
		out.Files[i] = f
	}
	return out
}

// Render writes the table in diag_table format.
func (t *Table) Render(w io.Writer) error {
	var b strings.Builder

	b.WriteString("\"FMS Model results\"\n")
	if t.Calendar == CalendarNone {
		b.WriteString("0 0 0 0 0 0\n")
	} else {
		b.WriteString("0001 1 1 0 0 0\n")
	}

	b.WriteString("#output files\n")
	for _, f := range t.Files {
		fmt.Fprintf(&b, "%q, %d, %q, 1, %q, \"time\",\n", f.Name, f.Freq, f.Units, f.TimeUnits)
	}

	b.WriteString("#diagnostic field entries.\n")
	for _, f := range t.Files {
		for _, fld := range f.Fields {
			fmt.Fprintf(&b, "%q, %q, %q, %q, \"all\", %s, \"none\", 2,\n",
				fld.Module, fld.Name, fld.Name, f.Name, fortranBool(fld.TimeAvg))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func fortranBool(v bool) string {
	if v {
		return ".true."
	}
	return ".false."
}

// Default returns the monthly atmosphere schedule used by the zonal
// experiment: one 30-day stream carrying surface, dynamics, mixed layer
// and precipitation diagnostics.
func Default() *Table {
	t := New(CalendarThirtyDay)
	t.AddFile("atmos_monthly", 30, "days", "days")

	t.AddField("dynamics", "ps", true)
	t.AddField("dynamics", "bk", false)
	t.AddField("dynamics", "pk", false)
	t.AddField("dynamics", "zsurf", false)
	for _, name := range []string{
		"div", "vor", "ucomp", "vcomp", "temp", "omega",
		"height", "height_half", "sphum",
	} {
		t.AddField("dynamics", name, true)
	}
	t.AddField("mixed_layer", "t_surf", true)
	t.AddField("atmosphere", "precipitation", true)
	return t
}
