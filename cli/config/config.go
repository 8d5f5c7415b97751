package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/isobar/diag"
	"github.com/pithecene-io/isobar/fetch"
	"github.com/pithecene-io/isobar/model"
)

// Config represents an isobar.yaml configuration file.
// Values act as defaults for the sequence and fetch flags.
// CLI flags always override config values.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Adapter  AdapterConfig  `yaml:"adapter"`
	Sequence SequenceConfig `yaml:"sequence"`
	Fetch    FetchConfig    `yaml:"fetch"`
}

// StorageConfig holds ledger storage defaults from the config file.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds completion-notification defaults from the config file.
type AdapterConfig struct {
	Type            string            `yaml:"type"`
	URL             string            `yaml:"url"`
	Channel         string            `yaml:"channel,omitempty"`
	Headers         map[string]string `yaml:"headers,omitempty"`
	Secret          string            `yaml:"secret,omitempty"`
	LatestKeyPrefix string            `yaml:"latest_key_prefix,omitempty"`
	LatestTTL       Duration          `yaml:"latest_ttl,omitempty"`
	Timeout         Duration          `yaml:"timeout,omitempty"`
	Retries         *int              `yaml:"retries,omitempty"`
}

// SequenceConfig describes one model experiment.
type SequenceConfig struct {
	Experiment    string   `yaml:"experiment"`
	CodeBase      string   `yaml:"code_base"`
	BuildCommand  []string `yaml:"build_command"`
	Executable    string   `yaml:"executable"`
	Launcher      string   `yaml:"launcher"`
	WorkDir       string   `yaml:"work_dir"`
	DataDir       string   `yaml:"data_dir"`
	InputFiles    []string `yaml:"input_files"`
	Namelist      string   `yaml:"namelist"`
	Resolution    string   `yaml:"resolution"`
	Levels        int      `yaml:"levels"`
	Cores         int      `yaml:"cores"`
	Runs          int      `yaml:"runs"`
	OverwriteData bool     `yaml:"overwrite_data"`
	Resume        bool     `yaml:"resume"`
	StatePath     string   `yaml:"state_path"`
	Env           []string `yaml:"env"`
	// Overrides are applied to the namelist after it is read, before the
	// resolution. Keyed by group, then by variable.
	Overrides map[string]map[string]any `yaml:"overrides"`
	Diag      DiagConfig                `yaml:"diag"`
}

// DiagConfig describes the diagnostic output schedule. An empty Files
// list selects the default monthly table.
type DiagConfig struct {
	Calendar string      `yaml:"calendar"`
	Files    []DiagFile  `yaml:"files"`
	Fields   []DiagField `yaml:"fields"`
}

// DiagFile is one output stream.
type DiagFile struct {
	Name      string `yaml:"name"`
	Freq      int    `yaml:"freq"`
	Units     string `yaml:"units"`
	TimeUnits string `yaml:"time_units"`
}

// DiagField is one diagnostic written to every stream.
type DiagField struct {
	Module  string `yaml:"module"`
	Name    string `yaml:"name"`
	TimeAvg bool   `yaml:"time_avg"`
}

// FetchConfig describes a reanalysis batch.
type FetchConfig struct {
	Archive         string           `yaml:"archive"`
	DataDir         string           `yaml:"data_dir"`
	StartYear       int              `yaml:"start_year"`
	EndYear         int              `yaml:"end_year"`
	Templates       []fetch.Template `yaml:"templates"`
	Parallel        int              `yaml:"parallel"`
	Retries         int              `yaml:"retries"`
	RetryBackoff    Duration         `yaml:"retry_backoff"`
	SkipExisting    bool             `yaml:"skip_existing"`
	ContinueOnError bool             `yaml:"continue_on_error"`
	Verify          bool             `yaml:"verify"`
	Mirror          bool             `yaml:"mirror"`
	CDS             CDSConfig        `yaml:"cds"`
}

// CDSConfig holds retrieval service settings. Empty URL and Key fall back
// to CDSAPI_URL, CDSAPI_KEY and ~/.cdsapirc.
type CDSConfig struct {
	URL             string   `yaml:"url"`
	Key             string   `yaml:"key"`
	Timeout         Duration `yaml:"timeout"`
	PollInterval    Duration `yaml:"poll_interval"`
	MaxPollInterval Duration `yaml:"max_poll_interval"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Defaults returns the configuration of the reference experiment and
// reanalysis batch: a 20-run T85L96 experiment on 64 cores, and the two
// buoyancy templates over 1979-2019.
func Defaults() Config {
	return Config{
		Storage: StorageConfig{
			Dataset: "isobar",
			Backend: "fs",
		},
		Sequence: SequenceConfig{
			Experiment: "IscaZonal",
			Launcher:   "mpirun",
			Resolution: "T85",
			Levels:     96,
			Cores:      64,
			Runs:       20,
		},
		Fetch: FetchConfig{
			Archive:   fetch.DefaultArchive,
			StartYear: 1979,
			EndYear:   2019,
			Templates: fetch.DefaultTemplates(),
			Parallel:  1,
		},
	}
}

// ResolutionSpec returns the configured model resolution.
func (s SequenceConfig) ResolutionSpec() model.Resolution {
	return model.Resolution{Label: s.Resolution, Levels: s.Levels}
}

// Table builds the diagnostic table, falling back to diag.Default.
func (d DiagConfig) Table() (*diag.Table, error) {
	if len(d.Files) == 0 {
		if len(d.Fields) > 0 {
			return nil, errors.New("diag fields require at least one output file")
		}
		return diag.Default(), nil
	}
	calendar := d.Calendar
	if calendar == "" {
		calendar = diag.CalendarThirtyDay
	}
	t := diag.New(calendar)
	for _, f := range d.Files {
		timeUnits := f.TimeUnits
		if timeUnits == "" {
			timeUnits = f.Units
		}
		t.AddFile(f.Name, f.Freq, f.Units, timeUnits)
	}
	for _, f := range d.Fields {
		t.AddField(f.Module, f.Name, f.TimeAvg)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}
