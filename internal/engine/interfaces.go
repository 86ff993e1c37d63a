package engine

import (
	"context"
	"io"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/transactions-dataflow/internal/domain"
	infra "github.com/dvloznov/transactions-dataflow/internal/infra/bigquery"
)

// ObjectStore is the slice of the storage service the engines need.
type ObjectStore interface {
	OpenObject(ctx context.Context, uri string) (io.ReadCloser, error)
	CreateObject(ctx context.Context, uri, contentType string) (io.WriteCloser, error)
	DeleteObject(ctx context.Context, uri string) error
}

// TableWriter appends rows with streaming inserts.
type TableWriter interface {
	EnsureTable(ctx context.Context, ref infra.TableRef, schema bigquery.Schema) error
	InsertTransactions(ctx context.Context, ref infra.TableRef, records []*domain.TransactionRecord) error
}

// TableLoader runs warehouse load jobs from staged files.
type TableLoader interface {
	LoadTransactionsFromGCS(ctx context.Context, req infra.LoadRequest) (*infra.LoadResult, error)
}
