package pipeline

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/transactions-dataflow/internal/config"
	"github.com/dvloznov/transactions-dataflow/internal/domain"
	infra "github.com/dvloznov/transactions-dataflow/internal/infra/bigquery"
	"github.com/dvloznov/transactions-dataflow/internal/logger"
	"github.com/rs/zerolog"
)

// NewTransactionsJob declares the transactions flow for cfg:
// Read CSV → Parse CSV → Format Data → Filter Invalid Records → Write to BigQuery.
// Row diagnostics go to diag (through a counter).
func NewTransactionsJob(cfg *config.Config, diag Diagnostics) (*Job, error) {
	table, err := infra.ParseTableSpec(cfg.OutputTable, cfg.Project)
	if err != nil {
		return nil, fmt.Errorf("NewTransactionsJob: %w", err)
	}

	counters := NewDiagnosticCounters(diag)

	job := &Job{
		Name: cfg.JobName,
		Source: Source{
			URI:             cfg.Input,
			SkipHeaderLines: cfg.SkipHeaderLines,
		},
		Sink: Sink{
			Table:             table,
			Schema:            infra.TransactionsSchema(),
			WriteDisposition:  bigquery.WriteAppend,
			CreateDisposition: bigquery.CreateIfNeeded,
		},
		Split: SplitLine,
		Format: func(fields []string) *domain.TransactionRecord {
			return FormatRecord(fields, counters)
		},
		Keep:     KeepRecord,
		Counters: counters,
	}

	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("NewTransactionsJob: %w", err)
	}
	return job, nil
}

// Pipeline hands declared jobs to an engine and records each run.
type Pipeline struct {
	engine  Engine
	tracker RunTracker
	log     zerolog.Logger
}

// NewPipeline creates a pipeline. tracker may be nil to skip run bookkeeping.
func NewPipeline(engine Engine, tracker RunTracker, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		engine:  engine,
		tracker: tracker,
		log:     log,
	}
}

// Run executes job on the engine.
func (p *Pipeline) Run(ctx context.Context, job *Job) (*domain.RunStats, error) {
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}

	log := p.log.With().
		Str("job_name", job.Name).
		Str("runner", p.engine.Name()).
		Str("source", job.Source.URI).
		Str("table", job.Sink.Table.String()).
		Logger()
	ctx = logger.WithContext(ctx, log)

	for i, stage := range Stages {
		log.Debug().Int("stage", i+1).Str("name", stage).Msg("Pipeline stage")
	}

	var runID string
	if p.tracker != nil {
		id, err := p.tracker.StartLoadRun(ctx, infra.LoadRunInfo{
			JobName:     job.Name,
			Runner:      p.engine.Name(),
			SourceURI:   job.Source.URI,
			TargetTable: job.Sink.Table.String(),
		})
		if err != nil {
			return nil, fmt.Errorf("Run: starting load run: %w", err)
		}
		runID = id
		log = log.With().Str("run_id", runID).Logger()
		ctx = logger.WithContext(ctx, log)
	}

	log.Info().Msg("Starting pipeline execution")

	stats, err := p.engine.Run(ctx, job)
	if err != nil {
		if p.tracker != nil {
			p.tracker.MarkLoadRunFailed(ctx, runID, err)
		}
		log.Error().Err(err).Msg("Pipeline execution failed")
		return nil, fmt.Errorf("Run: %s: %w", job.Name, err)
	}
	if stats == nil {
		stats = &domain.RunStats{}
	}
	if job.Counters != nil {
		stats.AmountsDefaulted = job.Counters.InvalidAmounts()
	}

	if p.tracker != nil {
		// A load that landed succeeds even when bookkeeping fails.
		if err := p.tracker.MarkLoadRunSucceeded(ctx, runID, stats); err != nil {
			log.Error().Err(err).Msg("Failed to mark load run succeeded")
		}
	}

	log.Info().
		Int64("lines_read", stats.LinesRead).
		Int64("records_written", stats.RecordsWritten).
		Int64("records_dropped", stats.RecordsDropped).
		Int64("amounts_defaulted", stats.AmountsDefaulted).
		Msg("Pipeline execution complete")

	return stats, nil
}
