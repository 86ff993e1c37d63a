package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/transactions-dataflow/internal/domain"
	"google.golang.org/api/option"
)

// TransactionRepository provides the write and inspection operations on the
// transactions table.
type TransactionRepository interface {
	// EnsureTable creates the table with the given schema if it does not exist.
	EnsureTable(ctx context.Context, ref TableRef, schema bigquery.Schema) error

	// InsertTransactions appends records to the table via streaming inserts.
	InsertTransactions(ctx context.Context, ref TableRef, records []*domain.TransactionRecord) error

	// LoadTransactionsFromGCS runs a load job from staged JSON files.
	LoadTransactionsFromGCS(ctx context.Context, req LoadRequest) (*LoadResult, error)

	// QueryRecentTransactions returns up to limit rows from the table.
	QueryRecentTransactions(ctx context.Context, ref TableRef, limit int) ([]*TransactionView, error)
}

// LoadRunRepository provides the bookkeeping operations on the load_runs table.
type LoadRunRepository interface {
	// StartLoadRun inserts a new run with status=RUNNING and returns the run_id.
	StartLoadRun(ctx context.Context, info LoadRunInfo) (string, error)

	// MarkLoadRunSucceeded sets status=SUCCESS, finished_ts and counters for a run.
	MarkLoadRunSucceeded(ctx context.Context, runID string, stats *domain.RunStats) error

	// MarkLoadRunFailed sets status=FAILED, finished_ts and error_message for a run.
	MarkLoadRunFailed(ctx context.Context, runID string, runErr error)

	// ListLoadRuns retrieves the most recent runs.
	ListLoadRuns(ctx context.Context, limit int) ([]*LoadRunRow, error)
}

// BigQueryRepository is the concrete implementation of TransactionRepository
// and LoadRunRepository. It holds a shared BigQuery client to avoid creating a
// new connection for each operation.
type BigQueryRepository struct {
	client    *bigquery.Client
	runsTable TableRef
}

// NewBigQueryRepository creates a repository bound to projectID. runsTable
// locates the load_runs table.
func NewBigQueryRepository(ctx context.Context, projectID string, runsTable TableRef, opts ...option.ClientOption) (*BigQueryRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryRepository: creating client: %w", err)
	}
	return &BigQueryRepository{
		client:    client,
		runsTable: runsTable,
	}, nil
}

// Close closes the BigQuery client connection. This should be called when
// the repository is no longer needed to release resources.
func (r *BigQueryRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// EnsureTable delegates to EnsureTableWithClient with the shared client.
func (r *BigQueryRepository) EnsureTable(ctx context.Context, ref TableRef, schema bigquery.Schema) error {
	return EnsureTableWithClient(ctx, r.client, ref, schema)
}

// InsertTransactions delegates to InsertTransactionsWithClient with the shared client.
func (r *BigQueryRepository) InsertTransactions(ctx context.Context, ref TableRef, records []*domain.TransactionRecord) error {
	return InsertTransactionsWithClient(ctx, r.client, ref, records)
}

// LoadTransactionsFromGCS delegates to LoadTransactionsFromGCSWithClient with the shared client.
func (r *BigQueryRepository) LoadTransactionsFromGCS(ctx context.Context, req LoadRequest) (*LoadResult, error) {
	return LoadTransactionsFromGCSWithClient(ctx, r.client, req)
}

// QueryRecentTransactions delegates to QueryRecentTransactionsWithClient with the shared client.
func (r *BigQueryRepository) QueryRecentTransactions(ctx context.Context, ref TableRef, limit int) ([]*TransactionView, error) {
	return QueryRecentTransactionsWithClient(ctx, r.client, ref, limit)
}

// StartLoadRun delegates to StartLoadRunWithClient with the shared client.
func (r *BigQueryRepository) StartLoadRun(ctx context.Context, info LoadRunInfo) (string, error) {
	return StartLoadRunWithClient(ctx, r.client, r.runsTable, info)
}

// MarkLoadRunSucceeded delegates to MarkLoadRunSucceededWithClient with the shared client.
func (r *BigQueryRepository) MarkLoadRunSucceeded(ctx context.Context, runID string, stats *domain.RunStats) error {
	return MarkLoadRunSucceededWithClient(ctx, r.client, r.runsTable, runID, stats)
}

// MarkLoadRunFailed delegates to MarkLoadRunFailedWithClient with the shared client.
func (r *BigQueryRepository) MarkLoadRunFailed(ctx context.Context, runID string, runErr error) {
	MarkLoadRunFailedWithClient(ctx, r.client, r.runsTable, runID, runErr)
}

// ListLoadRuns delegates to ListLoadRunsWithClient with the shared client.
func (r *BigQueryRepository) ListLoadRuns(ctx context.Context, limit int) ([]*LoadRunRow, error) {
	return ListLoadRunsWithClient(ctx, r.client, r.runsTable, limit)
}

var (
	_ TransactionRepository = (*BigQueryRepository)(nil)
	_ LoadRunRepository     = (*BigQueryRepository)(nil)
)
