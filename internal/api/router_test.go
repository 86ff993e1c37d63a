package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/transactions-dataflow/internal/api/handlers"
	"github.com/dvloznov/transactions-dataflow/internal/api/middleware"
	infra "github.com/dvloznov/transactions-dataflow/internal/infra/bigquery"
	"github.com/dvloznov/transactions-dataflow/internal/jobs"
	"github.com/dvloznov/transactions-dataflow/internal/jobs/inmemory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockRepository is a mock of the BigQuery reads the API performs.
type MockRepository struct {
	QueryRecentTransactionsFunc func(ctx context.Context, ref infra.TableRef, limit int) ([]*infra.TransactionView, error)
	ListLoadRunsFunc            func(ctx context.Context, limit int) ([]*infra.LoadRunRow, error)
}

func (m *MockRepository) QueryRecentTransactions(ctx context.Context, ref infra.TableRef, limit int) ([]*infra.TransactionView, error) {
	if m.QueryRecentTransactionsFunc != nil {
		return m.QueryRecentTransactionsFunc(ctx, ref, limit)
	}
	return nil, nil
}

func (m *MockRepository) ListLoadRuns(ctx context.Context, limit int) ([]*infra.LoadRunRow, error) {
	if m.ListLoadRunsFunc != nil {
		return m.ListLoadRunsFunc(ctx, limit)
	}
	return nil, nil
}

var testTable = infra.TableRef{ProjectID: "p", DatasetID: "ds_analysis", TableID: "customer_transactions"}

func newTestServer(t *testing.T, repo *MockRepository, withRuns bool) (http.Handler, *inmemory.Store) {
	t.Helper()
	store := inmemory.NewStore()
	queue := inmemory.NewQueue(10, store)
	t.Cleanup(func() { _ = queue.Close() })

	log := zerolog.Nop()
	h := Handlers{
		Loads:        handlers.NewLoadsHandler(queue, store, testTable.String(), log),
		Transactions: handlers.NewTransactionsHandler(repo, testTable, log),
	}
	if withRuns {
		h.Runs = handlers.NewRunsHandler(repo, log)
	}
	return middleware.Chain(NewRouter(h), log), store
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestEnqueueLoad(t *testing.T) {
	srv, store := newTestServer(t, &MockRepository{}, false)

	rec := do(t, srv, http.MethodPost, "/api/loads", `{"gcs_uri":"gs://stanley-dataflow-bucket/transactions.csv"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp["status"])
	require.NotEmpty(t, resp["job_id"])

	job, err := store.GetJob(context.Background(), resp["job_id"])
	require.NoError(t, err)
	assert.Equal(t, "gs://stanley-dataflow-bucket/transactions.csv", job.GCSURI)
	assert.Equal(t, "p:ds_analysis.customer_transactions", job.Table)

	rec = do(t, srv, http.MethodGet, "/api/loads/"+resp["job_id"], "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"gcs_uri":"gs://stanley-dataflow-bucket/transactions.csv"`)

	rec = do(t, srv, http.MethodGet, "/api/loads", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

func TestEnqueueLoad_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t, &MockRepository{}, false)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{`},
		{name: "missing uri", body: `{}`},
		{name: "not a gs uri", body: `{"gcs_uri":"/tmp/transactions.csv"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/loads", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetLoad_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, &MockRepository{}, false)

	rec := do(t, srv, http.MethodGet, "/api/loads/unknown", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTransactions(t *testing.T) {
	var gotLimit int
	var gotTable infra.TableRef
	repo := &MockRepository{
		QueryRecentTransactionsFunc: func(ctx context.Context, ref infra.TableRef, limit int) ([]*infra.TransactionView, error) {
			gotLimit = limit
			gotTable = ref
			return []*infra.TransactionView{{
				TransactionID: bigquery.NullString{StringVal: "T1", Valid: true},
				Amount:        bigquery.NullFloat64{Float64: 12.5, Valid: true},
			}}, nil
		},
	}
	srv, _ := newTestServer(t, repo, false)

	rec := do(t, srv, http.MethodGet, "/api/transactions?limit=5", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, gotLimit)
	assert.Equal(t, testTable, gotTable)
	assert.Contains(t, rec.Body.String(), `"transaction_id":"T1"`)
	assert.Contains(t, rec.Body.String(), `"amount":12.5`)
}

func TestListTransactions_InvalidLimit(t *testing.T) {
	srv, _ := newTestServer(t, &MockRepository{}, false)

	rec := do(t, srv, http.MethodGet, "/api/transactions?limit=-1", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTransactions_EmptyIsArray(t *testing.T) {
	srv, _ := newTestServer(t, &MockRepository{}, false)

	rec := do(t, srv, http.MethodGet, "/api/transactions", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestListRuns(t *testing.T) {
	repo := &MockRepository{
		ListLoadRunsFunc: func(ctx context.Context, limit int) ([]*infra.LoadRunRow, error) {
			return []*infra.LoadRunRow{{RunID: "run-1", Status: infra.LoadRunStatusSuccess}}, nil
		},
	}
	srv, _ := newTestServer(t, repo, true)

	rec := do(t, srv, http.MethodGet, "/api/runs", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"run_id":"run-1"`)
	assert.Contains(t, rec.Body.String(), `"status":"SUCCESS"`)
}

func TestListRuns_RepositoryError(t *testing.T) {
	repo := &MockRepository{
		ListLoadRunsFunc: func(ctx context.Context, limit int) ([]*infra.LoadRunRow, error) {
			return nil, errors.New("table not found")
		},
	}
	srv, _ := newTestServer(t, repo, true)

	rec := do(t, srv, http.MethodGet, "/api/runs", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListRuns_Disabled(t *testing.T) {
	srv, _ := newTestServer(t, &MockRepository{}, false)

	rec := do(t, srv, http.MethodGet, "/api/runs", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, &MockRepository{}, true)

	for _, target := range []string{"/api/loads/x", "/api/transactions", "/api/runs"} {
		rec := do(t, srv, http.MethodDelete, target, "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, target)
	}
}

func TestHealthAndCORS(t *testing.T) {
	srv, _ := newTestServer(t, &MockRepository{}, false)

	rec := do(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, srv, http.MethodOptions, "/api/loads", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	srv, _ := newTestServer(t, &MockRepository{}, false)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestEnqueueLoad_WithRunningWorkers(t *testing.T) {
	store := inmemory.NewStore()
	queue := inmemory.NewQueue(50, store, inmemory.WithWorkerCount(4))

	ctx, cancel := context.WithCancel(context.Background())
	var handled atomic.Int64
	require.NoError(t, queue.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		handled.Add(1)
		return nil
	}))
	t.Cleanup(func() {
		_ = queue.Stop(context.Background())
		cancel()
	})

	log := zerolog.Nop()
	srv := middleware.Chain(NewRouter(Handlers{
		Loads: handlers.NewLoadsHandler(queue, store, testTable.String(), log),
	}), log)

	const n = 50
	ids := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		rec := do(t, srv, http.MethodPost, "/api/loads", `{"gcs_uri":"gs://stanley-dataflow-bucket/transactions.csv"}`)
		require.Equal(t, http.StatusAccepted, rec.Code)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, string(jobs.JobStatusPending), resp["status"])
		ids[resp["job_id"]] = true
	}
	assert.Len(t, ids, n, "job ids are unique")

	assert.Eventually(t, func() bool { return handled.Load() == n }, 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		done, err := store.ListJobs(context.Background(), jobs.JobFilter{Status: jobs.JobStatusCompleted, Limit: n})
		return err == nil && len(done) == n
	}, 5*time.Second, 10*time.Millisecond)
}
