package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dvloznov/transactions-dataflow/internal/gcs"
	"gopkg.in/yaml.v3"
)

// Runner names accepted in Config.Runner.
const (
	RunnerDirect       = "direct"
	RunnerBigQueryLoad = "bigquery-load"
)

// ErrMissingField is wrapped by Validate for every required setting that is empty.
var ErrMissingField = errors.New("missing required setting")

// Config holds the execution configuration of a load.
type Config struct {
	// Execution engine: "direct" or "bigquery-load".
	Runner string `yaml:"runner"`

	// Cloud project used for BigQuery jobs and as the default table project.
	Project string `yaml:"project"`

	// Region where BigQuery load jobs run, e.g. europe-west1.
	Region string `yaml:"region"`

	// Scratch locations; staged load files go under TempLocation
	// (falls back to StagingLocation).
	TempLocation    string `yaml:"temp_location"`
	StagingLocation string `yaml:"staging_location"`

	JobName string `yaml:"job_name"`

	// Input is the gs:// URI of the delimited transactions file.
	Input string `yaml:"input"`

	// OutputTable is "project:dataset.table" or "project.dataset.table".
	OutputTable string `yaml:"output_table"`

	SkipHeaderLines int `yaml:"skip_header_lines"`

	// Rows per transform batch and concurrent transform workers.
	BatchSize int `yaml:"batch_size"`
	Workers   int `yaml:"workers"`

	// Optional service account key; Application Default Credentials otherwise.
	CredentialsFile string `yaml:"credentials_file"`

	// TrackRuns records each execution in <RunsDataset>.load_runs.
	TrackRuns   bool   `yaml:"track_runs"`
	RunsDataset string `yaml:"runs_dataset"`

	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Runner:          RunnerBigQueryLoad,
		Region:          "europe-west1",
		JobName:         "transactions-dataflow-job",
		SkipHeaderLines: 1,
		BatchSize:       500,
		Workers:         4,
		LogLevel:        "info",
	}
}

// Load loads configuration from a YAML file and applies environment overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
			// Defaults plus environment.
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies LOADER_* environment variables on top of the file.
func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"LOADER_RUNNER":           &c.Runner,
		"LOADER_PROJECT":          &c.Project,
		"LOADER_REGION":           &c.Region,
		"LOADER_TEMP_LOCATION":    &c.TempLocation,
		"LOADER_STAGING_LOCATION": &c.StagingLocation,
		"LOADER_JOB_NAME":         &c.JobName,
		"LOADER_INPUT":            &c.Input,
		"LOADER_OUTPUT_TABLE":     &c.OutputTable,
		"LOADER_CREDENTIALS_FILE": &c.CredentialsFile,
		"LOADER_RUNS_DATASET":     &c.RunsDataset,
		"LOADER_LOG_LEVEL":        &c.LogLevel,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"LOADER_SKIP_HEADER_LINES": &c.SkipHeaderLines,
		"LOADER_BATCH_SIZE":        &c.BatchSize,
		"LOADER_WORKERS":           &c.Workers,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", key, v, err)
		}
		*dst = n
	}

	if v := os.Getenv("LOADER_TRACK_RUNS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid LOADER_TRACK_RUNS=%q: %w", v, err)
		}
		c.TrackRuns = b
	}

	// Fall back to the standard project variable when nothing else set one.
	if c.Project == "" {
		c.Project = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}

	return nil
}

// StagingPrefix returns where engines may write scratch objects.
func (c *Config) StagingPrefix() string {
	if c.TempLocation != "" {
		return c.TempLocation
	}
	return c.StagingLocation
}

// Validate reports every missing or malformed setting at once.
func (c *Config) Validate() error {
	var errs []error

	missing := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingField, name))
		}
	}
	missing("runner", c.Runner)
	missing("project", c.Project)
	missing("job_name", c.JobName)
	missing("input", c.Input)
	missing("output_table", c.OutputTable)

	if c.Input != "" {
		if _, _, err := gcs.ParseURI(c.Input); err != nil {
			errs = append(errs, fmt.Errorf("input: %w", err))
		}
	}

	// An empty runner is reported once, as missing.
	switch strings.TrimSpace(c.Runner) {
	case "", RunnerDirect:
	case RunnerBigQueryLoad:
		if c.StagingPrefix() == "" {
			errs = append(errs, fmt.Errorf("%w: temp_location (required by the %s runner)", ErrMissingField, RunnerBigQueryLoad))
		} else if _, _, err := gcs.ParsePrefix(c.StagingPrefix()); err != nil {
			errs = append(errs, fmt.Errorf("temp_location: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("runner: unknown runner %q", c.Runner))
	}

	if c.SkipHeaderLines < 0 {
		errs = append(errs, fmt.Errorf("skip_header_lines: must not be negative, got %d", c.SkipHeaderLines))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch_size: must be positive, got %d", c.BatchSize))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers: must be positive, got %d", c.Workers))
	}

	return errors.Join(errs...)
}
