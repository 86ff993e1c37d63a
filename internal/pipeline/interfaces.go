package pipeline

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/transactions-dataflow/internal/domain"
	infra "github.com/dvloznov/transactions-dataflow/internal/infra/bigquery"
)

// SplitFunc turns one input line into fields (the Parse stage).
type SplitFunc func(line string) []string

// FormatFunc turns fields into a record, or nil to drop the row (the Format stage).
type FormatFunc func(fields []string) *domain.TransactionRecord

// KeepFunc decides whether a formatted value reaches the sink (the Filter stage).
type KeepFunc func(rec *domain.TransactionRecord) bool

// Source describes the text input of a job.
type Source struct {
	URI             string // gs://bucket/object
	SkipHeaderLines int
}

// Sink describes the warehouse output of a job.
type Sink struct {
	Table             infra.TableRef
	Schema            bigquery.Schema
	WriteDisposition  bigquery.TableWriteDisposition
	CreateDisposition bigquery.TableCreateDisposition
}

// Job is a declared, not yet executed, five-stage pipeline. The stage
// functions must be pure apart from diagnostics so an engine can call them
// from any goroutine, in any grouping, any number of times.
type Job struct {
	Name   string
	Source Source
	Sink   Sink

	Split  SplitFunc
	Format FormatFunc
	Keep   KeepFunc

	// Counters, when set, is the diagnostics sink behind Format; the pipeline
	// reads defaulted-amount totals from it after the run.
	Counters *DiagnosticCounters
}

// ErrInvalidJob is wrapped by Job.Validate failures.
var ErrInvalidJob = errors.New("invalid job")

// Validate checks that every stage and descriptor is set.
func (j *Job) Validate() error {
	var errs []error
	if j.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if j.Source.URI == "" {
		errs = append(errs, errors.New("source URI is required"))
	}
	if j.Source.SkipHeaderLines < 0 {
		errs = append(errs, errors.New("skip header lines must not be negative"))
	}
	if j.Sink.Table.TableID == "" {
		errs = append(errs, errors.New("sink table is required"))
	}
	if len(j.Sink.Schema) == 0 {
		errs = append(errs, errors.New("sink schema is required"))
	}
	if j.Split == nil || j.Format == nil || j.Keep == nil {
		errs = append(errs, errors.New("split, format and keep functions are required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidJob, errors.Join(errs...))
	}
	return nil
}

// Apply runs Parse, Format and Filter on one line and returns the surviving
// record, or nil when the row is dropped.
func (j *Job) Apply(line string) *domain.TransactionRecord {
	rec := j.Format(j.Split(line))
	if !j.Keep(rec) {
		return nil
	}
	return rec
}

// Engine executes a declared Job: it owns reading, parallelism and writing.
type Engine interface {
	// Name identifies the engine in logs and run records.
	Name() string

	// Run executes the job to completion. Row-level problems never fail a run;
	// only storage, warehouse or cancellation errors do.
	Run(ctx context.Context, job *Job) (*domain.RunStats, error)
}

// RunTracker records the lifecycle of a pipeline execution.
type RunTracker interface {
	StartLoadRun(ctx context.Context, info infra.LoadRunInfo) (string, error)
	MarkLoadRunSucceeded(ctx context.Context, runID string, stats *domain.RunStats) error
	MarkLoadRunFailed(ctx context.Context, runID string, runErr error)
}
