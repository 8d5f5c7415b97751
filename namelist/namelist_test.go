package namelist

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const sample = `
! zonal experiment
&main_nml
    days   = 30,
    hours  = 0,
    dt_atmos = 720 /

&spectral_dynamics_nml
    damping_order = 4,
    water_correction_limit = 200.e2,
    reference_sea_level_press = 1.0e5,
    valid_range_t = 100., 800.,
    vert_coord_option = 'uneven_sigma',
    surf_res = 0.2d0,
    exponent = 2.5,
    robert_coeff = 0.03
    use_virtual_temperature = .true.
/

&idealized_moist_phys_nml
    two_stream_gray = T,
    do_simple = .false.
    sigmas = 3*0.5
    names = 2*'abc'
/
`

func TestParse(t *testing.T) {
	nml, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}

	wantGroups := []string{"main_nml", "spectral_dynamics_nml", "idealized_moist_phys_nml"}
	if got := nml.Groups(); !reflect.DeepEqual(got, wantGroups) {
		t.Fatalf("Groups() = %v, want %v", got, wantGroups)
	}

	tests := []struct {
		group, key string
		want       any
	}{
		{"main_nml", "days", 30},
		{"main_nml", "dt_atmos", 720},
		{"spectral_dynamics_nml", "water_correction_limit", 20000.0},
		{"spectral_dynamics_nml", "reference_sea_level_press", 100000.0},
		{"spectral_dynamics_nml", "valid_range_t", []any{100.0, 800.0}},
		{"spectral_dynamics_nml", "vert_coord_option", "uneven_sigma"},
		{"spectral_dynamics_nml", "surf_res", 0.2},
		{"spectral_dynamics_nml", "robert_coeff", 0.03},
		{"spectral_dynamics_nml", "use_virtual_temperature", true},
		{"idealized_moist_phys_nml", "two_stream_gray", true},
		{"idealized_moist_phys_nml", "do_simple", false},
		{"idealized_moist_phys_nml", "sigmas", []any{0.5, 0.5, 0.5}},
		{"idealized_moist_phys_nml", "names", []any{"abc", "abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.group+"."+tt.key, func(t *testing.T) {
			got, ok := nml.Get(tt.group, tt.key)
			if !ok {
				t.Fatalf("Get(%s, %s) missing", tt.group, tt.key)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Get(%s, %s) = %#v, want %#v", tt.group, tt.key, got, tt.want)
			}
		})
	}
}

func TestParse_CaseInsensitive(t *testing.T) {
	nml, err := Parse(strings.NewReader("&MAIN_NML\n  Days = 5\n&END\n"))
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	got, ok := nml.Get("main_nml", "DAYS")
	if !ok || got != 5 {
		t.Errorf("Get() = %v, %v; want 5, true", got, ok)
	}
}

func TestParse_QuotedEscapes(t *testing.T) {
	nml, err := Parse(strings.NewReader(`&g s = 'it''s', d = "a/b" /`))
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if got, _ := nml.Get("g", "s"); got != "it's" {
		t.Errorf("s = %q", got)
	}
	if got, _ := nml.Get("g", "d"); got != "a/b" {
		t.Errorf("d = %q", got)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unterminated group", "&g a = 1\n"},
		{"unterminated string", "&g a = 'abc /"},
		{"missing equals", "&g a 1 /"},
		{"missing value", "&g a = /"},
		{"bad scalar", "&g a = banana /"},
		{"bad repeat", "&g a = 0*1 /"},
		{"missing name", "& a = 1 /"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			if !errors.Is(err, ErrSyntax) {
				t.Fatalf("Parse() = %v, want ErrSyntax", err)
			}
		})
	}
}

func TestSet(t *testing.T) {
	nml := New()
	if err := nml.Set("spectral_dynamics_nml", "lon_max", int64(256)); err != nil {
		t.Fatalf("Set() = %v", err)
	}
	if err := nml.Set("spectral_dynamics_nml", "levels", []int{1, 2}); err != nil {
		t.Fatalf("Set() = %v", err)
	}
	if got, _ := nml.Get("spectral_dynamics_nml", "lon_max"); got != 256 {
		t.Errorf("lon_max = %#v, want int 256", got)
	}
	if got, _ := nml.Get("spectral_dynamics_nml", "levels"); !reflect.DeepEqual(got, []any{1, 2}) {
		t.Errorf("levels = %#v", got)
	}

	err := nml.Set("g", "k", map[string]int{})
	if !errors.Is(err, ErrUnsupportedValue) {
		t.Errorf("Set(map) = %v, want ErrUnsupportedValue", err)
	}
}

func TestSet_PreservesKeyOrder(t *testing.T) {
	nml := New()
	_ = nml.Set("g", "b", 1)
	_ = nml.Set("g", "a", 2)
	_ = nml.Set("g", "b", 3)

	if got := nml.Keys("g"); !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Errorf("Keys() = %v", got)
	}
}

func TestClone_IsIndependent(t *testing.T) {
	nml, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	clone := nml.Clone()

	_ = nml.Set("main_nml", "days", 99)
	list, _ := nml.Get("idealized_moist_phys_nml", "sigmas")
	list.([]any)[0] = 9.0

	if got, _ := clone.Get("main_nml", "days"); got != 30 {
		t.Errorf("clone days = %v, want 30", got)
	}
	if got, _ := clone.Get("idealized_moist_phys_nml", "sigmas"); got.([]any)[0] != 0.5 {
		t.Errorf("clone sigmas shares storage: %v", got)
	}
}

func TestRender_RoundTrip(t *testing.T) {
	nml, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}

	var sb strings.Builder
	if err := nml.Render(&sb); err != nil {
		t.Fatalf("Render() = %v", err)
	}

	again, err := Parse(strings.NewReader(sb.String()))
	if err != nil {
		t.Fatalf("re-Parse() = %v\n%s", err, sb.String())
	}
	for _, g := range nml.Groups() {
		for _, k := range nml.Keys(g) {
			want, _ := nml.Get(g, k)
			got, _ := again.Get(g, k)
			if !reflect.DeepEqual(got, want) {
				t.Errorf("%s.%s = %#v after round trip, want %#v", g, k, got, want)
			}
		}
	}
}

func TestRender_Format(t *testing.T) {
	nml := New()
	_ = nml.Set("main_nml", "days", 30)
	_ = nml.Set("main_nml", "calendar", "thirty_day")
	_ = nml.Set("main_nml", "ratio", 2.0)
	_ = nml.Set("main_nml", "flags", []bool{true, false})

	var sb strings.Builder
	if err := nml.Render(&sb); err != nil {
		t.Fatalf("Render() = %v", err)
	}
	want := "&main_nml\n" +
		"    days = 30\n" +
		"    calendar = 'thirty_day'\n" +
		"    ratio = 2.0\n" +
		"    flags = .true., .false.\n" +
		"/\n"
	if sb.String() != want {
		t.Errorf("Render() =\n%s\nwant\n%s", sb.String(), want)
	}
}

func TestReadWriteFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "namelist.nml")
	if err := os.WriteFile(src, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}

	nml, err := Read(src)
	if err != nil {
		t.Fatalf("Read() = %v", err)
	}

	out := filepath.Join(dir, "input.nml")
	if err := nml.WriteFile(out); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}
	if _, err := Read(out); err != nil {
		t.Fatalf("Read(rendered) = %v", err)
	}

	if _, err := Read(filepath.Join(dir, "missing.nml")); err == nil {
		t.Error("Read(missing) should fail")
	}
}
