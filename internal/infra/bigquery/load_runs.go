package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

// LoadRunsTable is the table that records every pipeline execution.
const LoadRunsTable = "load_runs"

// Load run statuses.
const (
	LoadRunStatusRunning = "RUNNING"
	LoadRunStatusSuccess = "SUCCESS"
	LoadRunStatusFailed  = "FAILED"
)

type LoadRunRow struct {
	RunID   string `bigquery:"run_id" json:"run_id"`     // REQUIRED
	JobName string `bigquery:"job_name" json:"job_name"` // REQUIRED
	Runner  string `bigquery:"runner" json:"runner"`     // NULLABLE

	SourceURI   string `bigquery:"source_uri" json:"source_uri"`     // REQUIRED
	TargetTable string `bigquery:"target_table" json:"target_table"` // REQUIRED

	RunDate    civil.Date             `bigquery:"run_date" json:"run_date"`       // REQUIRED, partition column
	StartedTS  time.Time              `bigquery:"started_ts" json:"started_ts"`   // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts" json:"finished_ts"` // NULLABLE

	Status       string              `bigquery:"status" json:"status"`               // REQUIRED
	ErrorMessage bigquery.NullString `bigquery:"error_message" json:"error_message"` // NULLABLE

	LinesRead        bigquery.NullInt64 `bigquery:"lines_read" json:"lines_read"`
	RecordsWritten   bigquery.NullInt64 `bigquery:"records_written" json:"records_written"`
	RecordsDropped   bigquery.NullInt64 `bigquery:"records_dropped" json:"records_dropped"`
	AmountsDefaulted bigquery.NullInt64 `bigquery:"amounts_defaulted" json:"amounts_defaulted"`
}
