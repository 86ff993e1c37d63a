package engine

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/transactions-dataflow/internal/config"
	"github.com/dvloznov/transactions-dataflow/internal/domain"
	"github.com/dvloznov/transactions-dataflow/internal/logger"
	"github.com/dvloznov/transactions-dataflow/internal/pipeline"
)

// ErrUnsupportedDisposition is returned when a sink asks the direct engine to
// do anything other than append.
var ErrUnsupportedDisposition = errors.New("unsupported write disposition")

// DirectEngine runs a job in-process: it streams the source object, transforms
// batches concurrently and appends them with streaming inserts.
type DirectEngine struct {
	storage ObjectStore
	writer  TableWriter
	opts    Options
}

// NewDirectEngine creates a DirectEngine.
func NewDirectEngine(storage ObjectStore, writer TableWriter, opts Options) *DirectEngine {
	return &DirectEngine{
		storage: storage,
		writer:  writer,
		opts:    opts.withDefaults(),
	}
}

func (e *DirectEngine) Name() string {
	return config.RunnerDirect
}

// Run executes job. Batches are written in input order; a failure stops the
// run and rows from earlier batches stay in the table. Once any insert has been
// attempted the returned error wraps domain.ErrPartialWrite.
func (e *DirectEngine) Run(ctx context.Context, job *pipeline.Job) (*domain.RunStats, error) {
	log := logger.FromContext(ctx)

	if wd := job.Sink.WriteDisposition; wd != "" && wd != bigquery.WriteAppend {
		return nil, fmt.Errorf("DirectEngine.Run: %w: %s", ErrUnsupportedDisposition, wd)
	}

	if job.Sink.CreateDisposition != bigquery.CreateNever {
		if err := e.writer.EnsureTable(ctx, job.Sink.Table, job.Sink.Schema); err != nil {
			return nil, fmt.Errorf("DirectEngine.Run: %w", err)
		}
	}

	r, err := e.storage.OpenObject(ctx, job.Source.URI)
	if err != nil {
		return nil, fmt.Errorf("DirectEngine.Run: %w", err)
	}
	defer r.Close()

	stats := &domain.RunStats{}
	attempted := false
	counts, err := readLines(ctx, r, job.Source.SkipHeaderLines, e.opts.BatchSize, func(batch []string) error {
		records, dropped, err := transformBatch(ctx, job, batch, e.opts.Workers)
		if err != nil {
			return err
		}
		stats.RecordsDropped += dropped
		if len(records) == 0 {
			return nil
		}

		// A failed insert may still have appended part of the batch.
		attempted = true
		if err := e.writer.InsertTransactions(ctx, job.Sink.Table, records); err != nil {
			return err
		}
		stats.RecordsWritten += int64(len(records))

		log.Debug().
			Int("batch_lines", len(batch)).
			Int("batch_records", len(records)).
			Int64("records_written", stats.RecordsWritten).
			Msg("Batch written")
		return nil
	})
	stats.LinesRead = counts.read
	stats.HeaderLinesSkipped = counts.skipped
	if err != nil {
		if attempted {
			return stats, fmt.Errorf("DirectEngine.Run: %w: %w", domain.ErrPartialWrite, err)
		}
		return stats, fmt.Errorf("DirectEngine.Run: %w", err)
	}

	return stats, nil
}

var _ pipeline.Engine = (*DirectEngine)(nil)
