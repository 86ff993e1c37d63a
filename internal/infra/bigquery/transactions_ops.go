package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/transactions-dataflow/internal/domain"
	"google.golang.org/api/iterator"
)

// LoadRequest describes a load job from newline-delimited JSON in GCS.
type LoadRequest struct {
	SourceURI         string
	Table             TableRef
	Schema            bigquery.Schema
	WriteDisposition  bigquery.TableWriteDisposition
	CreateDisposition bigquery.TableCreateDisposition
	Location          string // job region, e.g. europe-west1
	JobIDPrefix       string
}

// LoadResult reports the outcome of a completed load job.
type LoadResult struct {
	JobID      string
	OutputRows int64
}

// EnsureTableWithClient creates the table with the given schema when it does
// not exist yet. An existing table is left untouched.
func EnsureTableWithClient(ctx context.Context, client *bigquery.Client, ref TableRef, schema bigquery.Schema) error {
	table := client.DatasetInProject(ref.ProjectID, ref.DatasetID).Table(ref.TableID)

	_, err := table.Metadata(ctx)
	if err == nil {
		return nil
	}
	if !IsNotFound(err) {
		return fmt.Errorf("EnsureTable: reading metadata for %s: %w", ref, err)
	}

	if err := table.Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil {
		// Another writer may have created it between the two calls.
		if IsAlreadyExists(err) {
			return nil
		}
		return fmt.Errorf("EnsureTable: creating %s: %w", ref, err)
	}

	return nil
}

// InsertTransactionsWithClient appends records to the table via streaming inserts.
func InsertTransactionsWithClient(ctx context.Context, client *bigquery.Client, ref TableRef, records []*domain.TransactionRecord) error {
	rows := NewTransactionRows(records)
	if len(rows) == 0 {
		return nil
	}

	inserter := client.DatasetInProject(ref.ProjectID, ref.DatasetID).Table(ref.TableID).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertTransactions: inserting %d rows into %s: %w", len(rows), ref, err)
	}

	return nil
}

// LoadTransactionsFromGCSWithClient runs a load job from newline-delimited
// JSON in GCS into the table and waits for it to finish.
func LoadTransactionsFromGCSWithClient(ctx context.Context, client *bigquery.Client, req LoadRequest) (*LoadResult, error) {
	gcsRef := bigquery.NewGCSReference(req.SourceURI)
	gcsRef.SourceFormat = bigquery.JSON
	gcsRef.Schema = req.Schema

	loader := client.DatasetInProject(req.Table.ProjectID, req.Table.DatasetID).Table(req.Table.TableID).LoaderFrom(gcsRef)
	loader.WriteDisposition = req.WriteDisposition
	loader.CreateDisposition = req.CreateDisposition
	loader.JobIDConfig = bigquery.JobIDConfig{
		JobID:          JobIDPrefix(req.JobIDPrefix),
		AddJobIDSuffix: req.JobIDPrefix != "",
		Location:       req.Location,
	}

	job, err := loader.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("LoadTransactionsFromGCS: starting load into %s: %w", req.Table, err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("LoadTransactionsFromGCS: waiting for job %s: %w", job.ID(), err)
	}
	if err := status.Err(); err != nil {
		return nil, fmt.Errorf("LoadTransactionsFromGCS: job %s error: %w", job.ID(), err)
	}

	result := &LoadResult{JobID: job.ID()}
	if status.Statistics != nil {
		if details, ok := status.Statistics.Details.(*bigquery.LoadStatistics); ok {
			result.OutputRows = details.OutputRows
		}
	}

	return result, nil
}

// QueryRecentTransactionsWithClient returns up to limit rows from the table.
// The table has no ingestion column, so rows are ordered by transaction_date.
func QueryRecentTransactionsWithClient(ctx context.Context, client *bigquery.Client, ref TableRef, limit int) ([]*TransactionView, error) {
	if limit <= 0 {
		limit = 20
	}

	q := client.Query(fmt.Sprintf(`
		SELECT
			transaction_id,
			customer_id,
			amount,
			transaction_date
		FROM %s
		ORDER BY transaction_date DESC
		LIMIT @limit
	`, ref.SQLName()))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryRecentTransactions: query read: %w", err)
	}

	var rows []*TransactionView
	for {
		var r TransactionView
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryRecentTransactions: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}
