package api

import (
	"net/http"
	"strings"

	"github.com/dvloznov/transactions-dataflow/internal/api/handlers"
	"github.com/dvloznov/transactions-dataflow/internal/api/middleware"
)

// Handlers groups the endpoint handlers served by the API.
type Handlers struct {
	Loads        *handlers.LoadsHandler
	Transactions *handlers.TransactionsHandler
	// Runs is nil when run tracking is disabled.
	Runs *handlers.RunsHandler
}

// NewRouter registers every endpoint on a new ServeMux.
func NewRouter(h Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	// Loads endpoints
	mux.HandleFunc("/api/loads", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.Loads.ListLoads(w, r)
		case http.MethodPost:
			h.Loads.EnqueueLoad(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/loads/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		jobID := strings.TrimPrefix(r.URL.Path, "/api/loads/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		h.Loads.GetLoad(w, r, jobID)
	})

	// Transactions endpoints
	mux.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			h.Transactions.ListTransactions(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Runs endpoints
	mux.HandleFunc("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		if h.Runs == nil {
			middleware.WriteError(w, http.StatusNotFound, "Run tracking is disabled")
			return
		}
		h.Runs.ListRuns(w, r)
	})

	mux.HandleFunc("/health", handlers.Health)

	return mux
}
