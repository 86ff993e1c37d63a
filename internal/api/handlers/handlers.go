package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/transactions-dataflow/internal/api/middleware"
	"github.com/dvloznov/transactions-dataflow/internal/gcs"
	infra "github.com/dvloznov/transactions-dataflow/internal/infra/bigquery"
	"github.com/dvloznov/transactions-dataflow/internal/jobs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultListLimit = 20
	maxListLimit     = 1000
)

// TransactionReader reads back loaded transactions.
type TransactionReader interface {
	QueryRecentTransactions(ctx context.Context, ref infra.TableRef, limit int) ([]*infra.TransactionView, error)
}

// RunLister lists recorded load runs.
type RunLister interface {
	ListLoadRuns(ctx context.Context, limit int) ([]*infra.LoadRunRow, error)
}

// parseLimit reads the limit query parameter, clamped to [1, maxListLimit].
func parseLimit(r *http.Request) (int, error) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(limit, maxListLimit), nil
}

// LoadsHandler handles load job endpoints.
type LoadsHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
	table     string
	log       zerolog.Logger
}

// NewLoadsHandler creates a new loads handler. table is recorded on every
// enqueued job.
func NewLoadsHandler(publisher jobs.Publisher, store jobs.JobStore, table string, log zerolog.Logger) *LoadsHandler {
	return &LoadsHandler{
		publisher: publisher,
		store:     store,
		table:     table,
		log:       log,
	}
}

// EnqueueLoad handles POST /api/loads
func (h *LoadsHandler) EnqueueLoad(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GCSURI string `json:"gcs_uri"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.GCSURI == "" {
		middleware.WriteError(w, http.StatusBadRequest, "gcs_uri is required")
		return
	}
	if _, _, err := gcs.ParseURI(req.GCSURI); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "gcs_uri must look like gs://bucket/object")
		return
	}

	ctx := r.Context()

	// The queue's workers own job once it is published.
	jobID := uuid.NewString()
	status := jobs.JobStatusPending
	job := &jobs.LoadFileJob{
		JobID:  jobID,
		GCSURI: req.GCSURI,
		Table:  h.table,
		Status: status,
	}

	if err := h.publisher.PublishLoadFile(ctx, job); err != nil {
		h.log.Error().Err(err).Str("gcs_uri", req.GCSURI).Msg("Failed to enqueue load job")
		code := http.StatusInternalServerError
		if errors.Is(err, jobs.ErrQueueClosed) {
			code = http.StatusServiceUnavailable
		}
		middleware.WriteError(w, code, "Failed to enqueue load job")
		return
	}

	h.log.Info().
		Str("job_id", jobID).
		Str("gcs_uri", req.GCSURI).
		Str("request_id", middleware.GetRequestID(ctx)).
		Msg("Load job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":  jobID,
		"gcs_uri": req.GCSURI,
		"status":  string(status),
	})
}

// GetLoad handles GET /api/loads/{id}
func (h *LoadsHandler) GetLoad(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListLoads handles GET /api/loads
func (h *LoadsHandler) ListLoads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		GCSURI: query.Get("gcs_uri"),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// TransactionsHandler handles transaction endpoints.
type TransactionsHandler struct {
	repo  TransactionReader
	table infra.TableRef
	log   zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler reading table.
func NewTransactionsHandler(repo TransactionReader, table infra.TableRef, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		repo:  repo,
		table: table,
		log:   log,
	}
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	transactions, err := h.repo.QueryRecentTransactions(r.Context(), h.table, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query transactions")
		return
	}

	if transactions == nil {
		transactions = []*infra.TransactionView{}
	}
	middleware.WriteJSON(w, http.StatusOK, transactions)
}

// RunsHandler handles load run endpoints.
type RunsHandler struct {
	repo RunLister
	log  zerolog.Logger
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(repo RunLister, log zerolog.Logger) *RunsHandler {
	return &RunsHandler{
		repo: repo,
		log:  log,
	}
}

// ListRuns handles GET /api/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := h.repo.ListLoadRuns(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list load runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list load runs")
		return
	}

	if runs == nil {
		runs = []*infra.LoadRunRow{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
