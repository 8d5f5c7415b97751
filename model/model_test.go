package model

import (
	"errors"
	"reflect"
	"testing"

	"github.com/pithecene-io/isobar/diag"
	"github.com/pithecene-io/isobar/namelist"
)

func TestResolution_Apply(t *testing.T) {
	tests := []struct {
		label string
		want  map[string]int
	}{
		{"T21", map[string]int{"lon_max": 64, "lat_max": 32, "num_fourier": 21, "num_spherical": 22}},
		{"T42", map[string]int{"lon_max": 128, "lat_max": 64, "num_fourier": 42, "num_spherical": 43}},
		{"t85", map[string]int{"lon_max": 256, "lat_max": 128, "num_fourier": 85, "num_spherical": 86}},
		{"T170", map[string]int{"lon_max": 512, "lat_max": 256, "num_fourier": 170, "num_spherical": 171}},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			nml := namelist.New()
			if err := (Resolution{Label: tt.label, Levels: 96}).Apply(nml); err != nil {
				t.Fatalf("Apply() = %v", err)
			}
			for k, v := range tt.want {
				got, _ := nml.Get(SpectralGroup, k)
				if got != v {
					t.Errorf("%s = %v, want %d", k, got, v)
				}
			}
			if got, _ := nml.Get(SpectralGroup, "num_levels"); got != 96 {
				t.Errorf("num_levels = %v, want 96", got)
			}
		})
	}
}

func TestResolution_Validate(t *testing.T) {
	if err := (Resolution{Label: "T999", Levels: 10}).Validate(); !errors.Is(err, ErrUnknownResolution) {
		t.Errorf("Validate(T999) = %v, want ErrUnknownResolution", err)
	}
	if err := (Resolution{Label: "T42", Levels: 0}).Validate(); err == nil {
		t.Error("Validate(levels=0) should fail")
	}
	if got := (Resolution{Label: "t85", Levels: 96}).String(); got != "T85L96" {
		t.Errorf("String() = %q", got)
	}
}

func TestResolutions_Ordered(t *testing.T) {
	want := []string{"T21", "T42", "T85", "T170"}
	if got := Resolutions(); !reflect.DeepEqual(got, want) {
		t.Errorf("Resolutions() = %v, want %v", got, want)
	}
}

func TestRunIndex(t *testing.T) {
	if RunIndex(1).UsesRestart() {
		t.Error("run 1 must not use restart")
	}
	for _, i := range []RunIndex{2, 3, 20} {
		if !i.UsesRestart() {
			t.Errorf("run %d must use restart", i)
		}
	}
	if err := RunIndex(0).Validate(); !errors.Is(err, ErrInvalidRunIndex) {
		t.Errorf("Validate(0) = %v", err)
	}
}

func TestNewRunSpec(t *testing.T) {
	nml := namelist.New()
	_ = nml.Set("main_nml", "days", 30)
	table := diag.Default()

	spec, err := NewRunSpec("IscaZonal", table, nml, Resolution{Label: "T85", Levels: 96})
	if err != nil {
		t.Fatalf("NewRunSpec() = %v", err)
	}

	if spec.Experiment() != "IscaZonal" {
		t.Errorf("Experiment() = %q", spec.Experiment())
	}
	if got, _ := spec.Namelist().Get(SpectralGroup, "lon_max"); got != 256 {
		t.Errorf("lon_max = %v, want 256", got)
	}
	if _, ok := nml.Get(SpectralGroup, "lon_max"); ok {
		t.Error("NewRunSpec must not modify the caller's namelist")
	}
}

func TestNewRunSpec_Immutable(t *testing.T) {
	nml := namelist.New()
	_ = nml.Set("main_nml", "days", 30)
	table := diag.Default()

	spec, err := NewRunSpec("exp", table, nml, Resolution{Label: "T42", Levels: 25})
	if err != nil {
		t.Fatalf("NewRunSpec() = %v", err)
	}

	_ = nml.Set("main_nml", "days", 1)
	table.AddField("dynamics", "extra", true)
	_ = spec.Namelist().Set("main_nml", "days", 2)
	spec.Diag().AddField("dynamics", "other", true)

	if got, _ := spec.Namelist().Get("main_nml", "days"); got != 30 {
		t.Errorf("days = %v, want 30", got)
	}
	if got := spec.Diag().FieldCount(); got != 15 {
		t.Errorf("FieldCount() = %d, want 15", got)
	}
}

func TestNewRunSpec_Errors(t *testing.T) {
	res := Resolution{Label: "T42", Levels: 25}
	tests := []struct {
		name  string
		exp   string
		table *diag.Table
		res   Resolution
	}{
		{"empty experiment", "", diag.Default(), res},
		{"nil table", "exp", nil, res},
		{"invalid table", "exp", diag.New(""), res},
		{"bad resolution", "exp", diag.Default(), Resolution{Label: "T1", Levels: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRunSpec(tt.exp, tt.table, nil, tt.res); err == nil {
				t.Error("NewRunSpec() should fail")
			}
		})
	}
}
