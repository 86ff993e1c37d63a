package engine

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/transactions-dataflow/internal/domain"
	"github.com/dvloznov/transactions-dataflow/internal/gcsuploader"
	infra "github.com/dvloznov/transactions-dataflow/internal/infra/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStagedObjectURI(t *testing.T) {
	uri, err := StagedObjectURI(tempURI+"/", "transactions dataflow job")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(uri, tempURI+"/transactions_dataflow_job/"), uri)
	assert.True(t, strings.HasSuffix(uri, ".json"), uri)

	other, err := StagedObjectURI(tempURI, "transactions dataflow job")
	require.NoError(t, err)
	assert.NotEqual(t, uri, other, "each run stages to its own object")

	_, err = StagedObjectURI("/tmp", "job")
	assert.Error(t, err)
}

func TestLoadEngine_Run(t *testing.T) {
	store := newMemStore(map[string]string{sourceURI: csvLines(
		header,
		"T1,C1,12.50,2024-01-05",
		"T2,C9,abc,2024-02-01",
		"T3,C1,5",
		"",
	)})
	loader := &fakeLoader{store: store}
	job := testJob(t)

	stats, err := NewLoadEngine(store, loader, Options{TempLocation: tempURI, Location: "europe-west1"}).Run(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, &domain.RunStats{
		LinesRead:          5,
		HeaderLinesSkipped: 1,
		RecordsDropped:     2,
		RecordsWritten:     2,
	}, stats)
	assert.Equal(t, []*domain.TransactionRecord{
		{TransactionID: "T1", CustomerID: "C1", Amount: 12.5, TransactionDate: "2024-01-05"},
		{TransactionID: "T2", CustomerID: "C9", Amount: 0, TransactionDate: "2024-02-01"},
	}, loader.loaded)

	require.Len(t, loader.requests, 1)
	req := loader.requests[0]
	assert.True(t, strings.HasPrefix(req.SourceURI, tempURI+"/"), req.SourceURI)
	assert.Equal(t, job.Sink.Table, req.Table)
	assert.Equal(t, bigquery.WriteAppend, req.WriteDisposition)
	assert.Equal(t, bigquery.CreateIfNeeded, req.CreateDisposition)
	assert.Equal(t, "europe-west1", req.Location)
	assert.Equal(t, "transactions-dataflow-job", req.JobIDPrefix)
	assert.Len(t, req.Schema, 4)

	assert.Equal(t, []string{req.SourceURI}, store.deleted)
	assert.Equal(t, 1, store.count(), "only the source remains")
}

func TestLoadEngine_StagedFileIsNDJSON(t *testing.T) {
	store := newMemStore(map[string]string{sourceURI: csvLines(header, "T1,C1,12.50,2024-01-05")})
	var staged string
	loader := &fakeLoader{store: store}
	capture := &capturingLoader{next: loader, capture: func(uri string) {
		data, _ := store.get(uri)
		staged = string(data)
	}}

	_, err := NewLoadEngine(store, capture, Options{TempLocation: tempURI}).Run(context.Background(), testJob(t))

	require.NoError(t, err)
	assert.Equal(t, `{"transaction_id":"T1","customer_id":"C1","amount":12.5,"transaction_date":"2024-01-05"}`+"\n", staged)
}

func TestLoadEngine_HeaderOnlyStillLoads(t *testing.T) {
	store := newMemStore(map[string]string{sourceURI: csvLines(header)})
	loader := &fakeLoader{store: store}

	stats, err := NewLoadEngine(store, loader, Options{TempLocation: tempURI}).Run(context.Background(), testJob(t))

	require.NoError(t, err)
	assert.Len(t, loader.requests, 1)
	assert.Zero(t, stats.RecordsWritten)
}

func TestLoadEngine_LoadFailure(t *testing.T) {
	store := newMemStore(map[string]string{sourceURI: csvLines(header, "T1,C1,1,d")})
	loadErr := errors.New("invalid schema")
	loader := &fakeLoader{store: store, LoadErr: loadErr}

	stats, err := NewLoadEngine(store, loader, Options{TempLocation: tempURI}).Run(context.Background(), testJob(t))

	assert.ErrorIs(t, err, loadErr)
	require.NotNil(t, stats)
	assert.Zero(t, stats.RecordsWritten, "nothing is appended when the load job fails")
	assert.Len(t, store.deleted, 1, "the staged object is removed")
}

func TestLoadEngine_MissingSource(t *testing.T) {
	store := newMemStore(nil)
	loader := &fakeLoader{store: store}

	_, err := NewLoadEngine(store, loader, Options{TempLocation: tempURI}).Run(context.Background(), testJob(t))

	assert.ErrorIs(t, err, gcsuploader.ErrObjectNotFound)
	assert.Empty(t, loader.requests)
}

func TestLoadEngine_CancelledAbandonsStagedObject(t *testing.T) {
	store := newMemStore(map[string]string{sourceURI: csvLines(header, "T1,C1,1,d")})
	loader := &fakeLoader{store: store}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLoadEngine(store, loader, Options{TempLocation: tempURI}).Run(ctx, testJob(t))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, loader.requests)
	assert.Equal(t, 1, store.count(), "nothing was committed")
}

func TestLoadEngine_CleanupFailureIsNotFatal(t *testing.T) {
	store := newMemStore(map[string]string{sourceURI: csvLines(header, "T1,C1,1,d")})
	store.DeleteErr = errors.New("forbidden")
	loader := &fakeLoader{store: store}

	stats, err := NewLoadEngine(store, loader, Options{TempLocation: tempURI}).Run(context.Background(), testJob(t))

	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.RecordsWritten)
}

// capturingLoader observes the staged URI before delegating.
type capturingLoader struct {
	next    TableLoader
	capture func(uri string)
}

func (c *capturingLoader) LoadTransactionsFromGCS(ctx context.Context, req infra.LoadRequest) (*infra.LoadResult, error) {
	c.capture(req.SourceURI)
	return c.next.LoadTransactionsFromGCS(ctx, req)
}

func TestLoadEngine_StagesNonFiniteAmounts(t *testing.T) {
	store := newMemStore(map[string]string{sourceURI: csvLines(header, "T1,C1,nan,d", "T2,C1,1e400,d")})
	loader := &fakeLoader{store: store}

	_, err := NewLoadEngine(store, loader, Options{TempLocation: tempURI}).Run(context.Background(), testJob(t))

	require.NoError(t, err)
	require.Len(t, loader.loaded, 2)
	assert.True(t, math.IsNaN(loader.loaded[0].Amount))
	assert.True(t, math.IsInf(loader.loaded[1].Amount, 1))
}
