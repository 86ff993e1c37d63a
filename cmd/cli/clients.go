package main

import (
	"context"

	"github.com/dvloznov/transactions-dataflow/internal/app"
	"github.com/dvloznov/transactions-dataflow/internal/config"
	"github.com/dvloznov/transactions-dataflow/internal/gcsuploader"
	infra "github.com/dvloznov/transactions-dataflow/internal/infra/bigquery"
)

func newStorage(ctx context.Context, cfg *config.Config) (*gcsuploader.GCSStorageService, error) {
	return gcsuploader.NewGCSStorageService(ctx, app.ClientOptions(cfg)...)
}

func newRepository(ctx context.Context, cfg *config.Config) (*infra.BigQueryRepository, error) {
	runsTable, err := app.RunsTable(cfg)
	if err != nil {
		return nil, err
	}
	return infra.NewBigQueryRepository(ctx, cfg.Project, runsTable, app.ClientOptions(cfg)...)
}
