package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/transactions-dataflow/internal/config"
	"github.com/dvloznov/transactions-dataflow/internal/domain"
	"github.com/dvloznov/transactions-dataflow/internal/engine"
	"github.com/dvloznov/transactions-dataflow/internal/gcsuploader"
	infra "github.com/dvloznov/transactions-dataflow/internal/infra/bigquery"
	"github.com/dvloznov/transactions-dataflow/internal/pipeline"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// Services are the backends a Loader runs against.
type Services struct {
	Storage engine.ObjectStore
	Writer  engine.TableWriter
	Loader  engine.TableLoader
	// Tracker is optional; nil disables run bookkeeping.
	Tracker pipeline.RunTracker
}

// Loader runs the transactions flow for a configuration. It is safe for
// concurrent use: every run declares its own job.
type Loader struct {
	cfg      *config.Config
	log      zerolog.Logger
	pipeline *pipeline.Pipeline
	closers  []func() error

	storage *gcsuploader.GCSStorageService
	repo    *infra.BigQueryRepository
}

// RunsTable locates the load_runs table: RunsDataset when set, otherwise the
// dataset of the output table.
func RunsTable(cfg *config.Config) (infra.TableRef, error) {
	out, err := infra.ParseTableSpec(cfg.OutputTable, cfg.Project)
	if err != nil {
		return infra.TableRef{}, fmt.Errorf("RunsTable: %w", err)
	}
	ref := out.InDataset(infra.LoadRunsTable)
	if cfg.RunsDataset != "" {
		ref.ProjectID = cfg.Project
		ref.DatasetID = cfg.RunsDataset
	}
	return ref, nil
}

// ClientOptions returns the Google client options implied by cfg.
func ClientOptions(cfg *config.Config) []option.ClientOption {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	return opts
}

// New validates cfg and connects to Cloud Storage and BigQuery.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("New: invalid configuration: %w", err)
	}

	runsTable, err := RunsTable(cfg)
	if err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}

	opts := ClientOptions(cfg)

	storage, err := gcsuploader.NewGCSStorageService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}

	repo, err := infra.NewBigQueryRepository(ctx, cfg.Project, runsTable, opts...)
	if err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("New: %w", err)
	}

	svc := Services{Storage: storage, Writer: repo, Loader: repo}
	if cfg.TrackRuns {
		svc.Tracker = repo
	}

	l, err := NewWithServices(cfg, log, svc)
	if err != nil {
		_ = repo.Close()
		_ = storage.Close()
		return nil, err
	}
	l.storage = storage
	l.repo = repo
	l.closers = append(l.closers, repo.Close, storage.Close)
	return l, nil
}

// NewWithServices builds a Loader on existing backends.
func NewWithServices(cfg *config.Config, log zerolog.Logger, svc Services) (*Loader, error) {
	eng, err := engine.New(cfg.Runner, engine.Deps{
		Storage: svc.Storage,
		Writer:  svc.Writer,
		Loader:  svc.Loader,
	}, engine.OptionsFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("NewWithServices: %w", err)
	}

	return &Loader{
		cfg:      cfg,
		log:      log,
		pipeline: pipeline.NewPipeline(eng, svc.Tracker, log),
	}, nil
}

// Storage returns the Cloud Storage service, or nil for a Loader built on
// injected services.
func (l *Loader) Storage() *gcsuploader.GCSStorageService {
	return l.storage
}

// Repository returns the BigQuery repository, or nil for a Loader built on
// injected services.
func (l *Loader) Repository() *infra.BigQueryRepository {
	return l.repo
}

// Config returns the configuration the Loader was built with.
func (l *Loader) Config() *config.Config {
	return l.cfg
}

// Run loads the configured input.
func (l *Loader) Run(ctx context.Context) (*domain.RunStats, error) {
	return l.RunFile(ctx, l.cfg.Input)
}

// RunFile loads inputURI into the configured table.
func (l *Loader) RunFile(ctx context.Context, inputURI string) (*domain.RunStats, error) {
	cfg := *l.cfg
	if inputURI != "" {
		cfg.Input = inputURI
	}

	job, err := pipeline.NewTransactionsJob(&cfg, pipeline.NewLogDiagnostics(l.log))
	if err != nil {
		return nil, fmt.Errorf("RunFile: %w", err)
	}

	return l.pipeline.Run(ctx, job)
}

// Close releases the cloud clients.
func (l *Loader) Close() error {
	var errs []error
	for _, c := range l.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
