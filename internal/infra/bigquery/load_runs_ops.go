package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/transactions-dataflow/internal/domain"
	"github.com/dvloznov/transactions-dataflow/internal/logger"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

// maxErrorMessageLen caps error_message so a huge wrapped error cannot fail the update.
const maxErrorMessageLen = 2000

// LoadRunInfo describes a run at the moment it starts.
type LoadRunInfo struct {
	JobName     string
	Runner      string
	SourceURI   string
	TargetTable string
}

func runQuery(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

// StartLoadRunWithClient inserts a new row into load_runs with status=RUNNING
// and returns the generated run_id.
func StartLoadRunWithClient(ctx context.Context, client *bigquery.Client, runs TableRef, info LoadRunInfo) (string, error) {
	runID := uuid.NewString()
	started := time.Now().UTC()

	q := client.Query(fmt.Sprintf(`
		INSERT %s (
			run_id,
			job_name,
			runner,
			source_uri,
			target_table,
			run_date,
			started_ts,
			status
		)
		VALUES (
			@run_id,
			@job_name,
			@runner,
			@source_uri,
			@target_table,
			@run_date,
			@started_ts,
			@status
		)
	`, runs.SQLName()))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "job_name", Value: info.JobName},
		{Name: "runner", Value: info.Runner},
		{Name: "source_uri", Value: info.SourceURI},
		{Name: "target_table", Value: info.TargetTable},
		{Name: "run_date", Value: civil.DateOf(started)},
		{Name: "started_ts", Value: started},
		{Name: "status", Value: LoadRunStatusRunning},
	}

	if err := runQuery(ctx, q); err != nil {
		return "", fmt.Errorf("StartLoadRun: %w", err)
	}

	return runID, nil
}

// MarkLoadRunSucceededWithClient sets status=SUCCESS, finished_ts and the row counters.
func MarkLoadRunSucceededWithClient(ctx context.Context, client *bigquery.Client, runs TableRef, runID string, stats *domain.RunStats) error {
	if stats == nil {
		stats = &domain.RunStats{}
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = NULL,
		    lines_read = @lines_read,
		    records_written = @records_written,
		    records_dropped = @records_dropped,
		    amounts_defaulted = @amounts_defaulted
		WHERE run_id = @run_id
	`, runs.SQLName()))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: LoadRunStatusSuccess},
		{Name: "finished_ts", Value: time.Now().UTC()},
		{Name: "lines_read", Value: stats.LinesRead},
		{Name: "records_written", Value: stats.RecordsWritten},
		{Name: "records_dropped", Value: stats.RecordsDropped},
		{Name: "amounts_defaulted", Value: stats.AmountsDefaulted},
		{Name: "run_id", Value: runID},
	}

	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("MarkLoadRunSucceeded: %w", err)
	}
	return nil
}

// MarkLoadRunFailedWithClient sets status=FAILED, finished_ts and error_message.
// Failures here are logged, not returned, so they never mask the run's own error.
func MarkLoadRunFailedWithClient(ctx context.Context, client *bigquery.Client, runs TableRef, runID string, runErr error) {
	log := logger.FromContext(ctx)

	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, runs.SQLName()))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: LoadRunStatusFailed},
		{Name: "finished_ts", Value: time.Now().UTC()},
		{Name: "error_message", Value: truncateError(runErr)},
		{Name: "run_id", Value: runID},
	}

	if err := runQuery(ctx, q); err != nil {
		log.Error().
			Err(err).
			Str("run_id", runID).
			Msg("MarkLoadRunFailed: updating run")
	}
}

// ListLoadRunsWithClient returns the most recent runs, newest first.
func ListLoadRunsWithClient(ctx context.Context, client *bigquery.Client, runs TableRef, limit int) ([]*LoadRunRow, error) {
	if limit <= 0 {
		limit = 20
	}

	q := client.Query(fmt.Sprintf(`
		SELECT
			run_id,
			job_name,
			runner,
			source_uri,
			target_table,
			run_date,
			started_ts,
			finished_ts,
			status,
			error_message,
			lines_read,
			records_written,
			records_dropped,
			amounts_defaulted
		FROM %s
		ORDER BY started_ts DESC
		LIMIT @limit
	`, runs.SQLName()))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListLoadRuns: query read: %w", err)
	}

	var rows []*LoadRunRow
	for {
		var r LoadRunRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListLoadRuns: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxErrorMessageLen {
		msg = msg[:maxErrorMessageLen]
	}
	return msg
}
