package diag

import (
	"errors"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	table := Default()

	if err := table.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if len(table.Files) != 1 {
		t.Fatalf("len(Files) = %d, want 1", len(table.Files))
	}
	f := table.Files[0]
	if f.Name != "atmos_monthly" || f.Freq != 30 || f.Units != "days" || f.TimeUnits != "days" {
		t.Errorf("unexpected file: %+v", f)
	}
	if table.FieldCount() != 15 {
		t.Errorf("FieldCount() = %d, want 15", table.FieldCount())
	}

	notAveraged := map[string]bool{"bk": true, "pk": true, "zsurf": true}
	for _, fld := range f.Fields {
		if fld.TimeAvg == notAveraged[fld.Name] {
			t.Errorf("field %s/%s TimeAvg = %v", fld.Module, fld.Name, fld.TimeAvg)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		build   func() *Table
		wantErr error
	}{
		{
			name:    "no files",
			build:   func() *Table { return New("") },
			wantErr: ErrNoFiles,
		},
		{
			name: "zero freq",
			build: func() *Table {
				tb := New("")
				tb.AddFile("daily", 0, "days", "days")
				tb.AddField("dynamics", "ps", true)
				return tb
			},
			wantErr: ErrInvalidFreq,
		},
		{
			name: "bad units",
			build: func() *Table {
				tb := New("")
				tb.AddFile("daily", 1, "fortnights", "days")
				tb.AddField("dynamics", "ps", true)
				return tb
			},
			wantErr: ErrInvalidUnits,
		},
		{
			name: "no fields",
			build: func() *Table {
				tb := New("")
				tb.AddFile("daily", 1, "days", "days")
				return tb
			},
			wantErr: ErrNoFields,
		},
		{
			name: "duplicate field",
			build: func() *Table {
				tb := New("")
				tb.AddFile("daily", 1, "days", "days")
				tb.AddField("dynamics", "ps", true)
				tb.AddField("dynamics", "ps", false)
				return tb
			},
			wantErr: ErrDuplicateField,
		},
		{
			name: "same name different module",
			build: func() *Table {
				tb := New("")
				tb.AddFile("daily", 1, "days", "days")
				tb.AddField("dynamics", "temp", true)
				tb.AddField("mixed_layer", "temp", true)
				return tb
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build().Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAddField_AttachesToEveryFile(t *testing.T) {
	tb := New("")
	tb.AddFile("atmos_daily", 1, "days", "days")
	tb.AddFile("atmos_monthly", 30, "days", "days")
	tb.AddField("dynamics", "ps", true)

	for _, f := range tb.Files {
		if len(f.Fields) != 1 {
			t.Errorf("%s has %d fields, want 1", f.Name, len(f.Fields))
		}
	}
}

func TestAddField_OnlyDeclaredFiles(t *testing.T) {
	tb := New("")
	tb.AddField("dynamics", "ps", true)
	if err := tb.Validate(); !errors.Is(err, ErrNoFiles) {
		t.Errorf("Validate() with no files = %v, want ErrNoFiles", err)
	}

	tb.AddFile("atmos_monthly", 30, "days", "days")
	if n := len(tb.Files[0].Fields); n != 0 {
		t.Errorf("file declared after AddField has %d fields, want 0", n)
	}
	if err := tb.Validate(); !errors.Is(err, ErrNoFields) {
		t.Errorf("Validate() = %v, want ErrNoFields", err)
	}
}

func TestRender(t *testing.T) {
	tb := New("")
	tb.AddFile("atmos_monthly", 30, "days", "days")
	tb.AddField("dynamics", "ps", true)
	tb.AddField("dynamics", "bk", false)

	var sb strings.Builder
	if err := tb.Render(&sb); err != nil {
		t.Fatalf("Render() = %v", err)
	}

	want := `"FMS Model results"
0001 1 1 0 0 0
#output files
"atmos_monthly", 30, "days", 1, "days", "time",
#diagnostic field entries.
"dynamics", "ps", "ps", "atmos_monthly", "all", .true., "none", 2,
"dynamics", "bk", "bk", "atmos_monthly", "all", .false., "none", 2,
`
	if sb.String() != want {
		t.Errorf("Render() mismatch\n got:\n%s\nwant:\n%s", sb.String(), want)
	}
}

func TestRender_NoCalendar(t *testing.T) {
	tb := New(CalendarNone)
	tb.AddFile("atmos_daily", 1, "days", "days")
	tb.AddField("dynamics", "ps", true)

	var sb strings.Builder
	if err := tb.Render(&sb); err != nil {
		t.Fatalf("Render() = %v", err)
	}
	lines := strings.Split(sb.String(), "\n")
	if lines[1] != "0 0 0 0 0 0" {
		t.Errorf("base date = %q, want zeros", lines[1])
	}
}

func TestClone_IsIndependent(t *testing.T) {
	orig := Default()
	clone := orig.Clone()

	orig.Files[0].Fields[0].Name = "mutated"
	orig.AddField("dynamics", "extra", true)

	if clone.Files[0].Fields[0].Name != "ps" {
		t.Errorf("clone shares field storage: %q", clone.Files[0].Fields[0].Name)
	}
	if clone.FieldCount() != 15 {
		t.Errorf("clone FieldCount() = %d, want 15", clone.FieldCount())
	}
}
