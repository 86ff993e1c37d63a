package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/transactions-dataflow/internal/api"
	"github.com/dvloznov/transactions-dataflow/internal/api/handlers"
	"github.com/dvloznov/transactions-dataflow/internal/api/middleware"
	"github.com/dvloznov/transactions-dataflow/internal/app"
	"github.com/dvloznov/transactions-dataflow/internal/config"
	infra "github.com/dvloznov/transactions-dataflow/internal/infra/bigquery"
	"github.com/dvloznov/transactions-dataflow/internal/jobs"
	"github.com/dvloznov/transactions-dataflow/internal/jobs/inmemory"
	"github.com/dvloznov/transactions-dataflow/internal/logger"
)

func main() {
	var (
		port       = flag.String("port", "8080", "HTTP server port")
		configPath = flag.String("config", "configs/loader.yaml", "Path to the YAML configuration file")
		workers    = flag.Int("workers", 2, "Number of load jobs processed concurrently")
	)
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log, err = logger.WithLevel(log, cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid log level")
	}

	table, err := infra.ParseTableSpec(cfg.OutputTable, cfg.Project)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid output table")
	}

	ctx := logger.WithContext(context.Background(), log)

	loader, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise loader")
	}
	defer loader.Close()

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore, inmemory.WithWorkerCount(*workers))

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job jobs.Job) error {
		loadJob, ok := job.(*jobs.LoadFileJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", loadJob.JobID).
			Str("gcs_uri", loadJob.GCSURI).
			Msg("Processing load job")

		stats, err := loader.RunFile(ctx, loadJob.GCSURI)
		if err != nil {
			return err
		}
		loadJob.Stats = stats

		log.Info().
			Str("job_id", loadJob.JobID).
			Int64("records_written", stats.RecordsWritten).
			Msg("Load job completed successfully")

		return nil
	}

	if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}

	h := api.Handlers{
		Loads:        handlers.NewLoadsHandler(jobQueue, jobStore, table.String(), log),
		Transactions: handlers.NewTransactionsHandler(loader.Repository(), table, log),
	}
	if cfg.TrackRuns {
		h.Runs = handlers.NewRunsHandler(loader.Repository(), log)
	}

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      middleware.Chain(api.NewRouter(h), log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight loads finish before cancelling them.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
