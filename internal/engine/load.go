package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dvloznov/transactions-dataflow/internal/config"
	"github.com/dvloznov/transactions-dataflow/internal/domain"
	"github.com/dvloznov/transactions-dataflow/internal/gcs"
	infra "github.com/dvloznov/transactions-dataflow/internal/infra/bigquery"
	"github.com/dvloznov/transactions-dataflow/internal/logger"
	"github.com/dvloznov/transactions-dataflow/internal/pipeline"
	"github.com/google/uuid"
)

const (
	stagedContentType = "application/x-ndjson"
	cleanupTimeout    = 30 * time.Second
)

// LoadEngine transforms the source in-process, stages the records as
// newline-delimited JSON under the temp location and appends them with a
// single BigQuery load job. The table receives every row or none.
type LoadEngine struct {
	storage ObjectStore
	loader  TableLoader
	opts    Options
}

// NewLoadEngine creates a LoadEngine.
func NewLoadEngine(storage ObjectStore, loader TableLoader, opts Options) *LoadEngine {
	return &LoadEngine{
		storage: storage,
		loader:  loader,
		opts:    opts.withDefaults(),
	}
}

func (e *LoadEngine) Name() string {
	return config.RunnerBigQueryLoad
}

// StagedObjectURI returns where a run of jobName stages its records.
func StagedObjectURI(tempLocation, jobName string) (string, error) {
	return gcs.JoinURI(tempLocation, infra.JobIDPrefix(jobName)+"/"+uuid.NewString()+".json")
}

// Run executes job. The load job runs even when no record survives, so the
// table is still created when the sink allows it.
func (e *LoadEngine) Run(ctx context.Context, job *pipeline.Job) (*domain.RunStats, error) {
	log := logger.FromContext(ctx)

	stagedURI, err := StagedObjectURI(e.opts.TempLocation, job.Name)
	if err != nil {
		return nil, fmt.Errorf("LoadEngine.Run: staging location: %w", err)
	}
	log = log.With().Str("staged_uri", stagedURI).Logger()

	stats, err := e.stage(ctx, job, stagedURI)
	if err != nil {
		return stats, fmt.Errorf("LoadEngine.Run: %w", err)
	}
	defer e.cleanup(ctx, stagedURI)

	log.Info().
		Int64("records_staged", stats.RecordsWritten).
		Msg("Records staged, starting load job")

	result, err := e.loader.LoadTransactionsFromGCS(ctx, infra.LoadRequest{
		SourceURI:         stagedURI,
		Table:             job.Sink.Table,
		Schema:            job.Sink.Schema,
		WriteDisposition:  job.Sink.WriteDisposition,
		CreateDisposition: job.Sink.CreateDisposition,
		Location:          e.opts.Location,
		JobIDPrefix:       job.Name,
	})
	if err != nil {
		staged := stats.RecordsWritten
		stats.RecordsWritten = 0
		log.Error().Err(err).Int64("records_staged", staged).Msg("Load job failed")
		return stats, fmt.Errorf("LoadEngine.Run: %w", err)
	}

	if result.OutputRows != stats.RecordsWritten {
		log.Warn().
			Int64("records_staged", stats.RecordsWritten).
			Int64("output_rows", result.OutputRows).
			Msg("Load job row count differs from staged records")
	}
	stats.RecordsWritten = result.OutputRows

	log.Info().
		Str("bq_job_id", result.JobID).
		Int64("output_rows", result.OutputRows).
		Msg("Load job complete")

	return stats, nil
}

// stage writes the transformed records to stagedURI. RecordsWritten in the
// returned stats counts staged records. On failure the upload is abandoned.
func (e *LoadEngine) stage(ctx context.Context, job *pipeline.Job, stagedURI string) (*domain.RunStats, error) {
	r, err := e.storage.OpenObject(ctx, job.Source.URI)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	// Cancelling the writer's context abandons the upload.
	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := e.storage.CreateObject(writeCtx, stagedURI, stagedContentType)
	if err != nil {
		return nil, fmt.Errorf("creating staged object: %w", err)
	}

	stats := &domain.RunStats{}
	enc := json.NewEncoder(w)
	counts, err := readLines(ctx, r, job.Source.SkipHeaderLines, e.opts.BatchSize, func(batch []string) error {
		records, dropped, err := transformBatch(ctx, job, batch, e.opts.Workers)
		if err != nil {
			return err
		}
		stats.RecordsDropped += dropped

		for _, rec := range records {
			if err := enc.Encode(rec); err != nil {
				return fmt.Errorf("staging record %s: %w", rec.TransactionID, err)
			}
		}
		stats.RecordsWritten += int64(len(records))
		return nil
	})
	stats.LinesRead = counts.read
	stats.HeaderLinesSkipped = counts.skipped
	if err != nil {
		cancel()
		_ = w.Close()
		return stats, err
	}

	if err := w.Close(); err != nil {
		return stats, fmt.Errorf("committing staged object: %w", err)
	}
	return stats, nil
}

// cleanup deletes the staged object. Failures are logged, never returned.
func (e *LoadEngine) cleanup(ctx context.Context, stagedURI string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := e.storage.DeleteObject(ctx, stagedURI); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().
			Err(err).
			Str("staged_uri", stagedURI).
			Msg("Failed to delete staged object")
	}
}

var _ pipeline.Engine = (*LoadEngine)(nil)
