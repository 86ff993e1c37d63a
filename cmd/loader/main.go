package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dvloznov/transactions-dataflow/internal/app"
	"github.com/dvloznov/transactions-dataflow/internal/config"
	"github.com/dvloznov/transactions-dataflow/internal/logger"
)

func main() {
	log := logger.New()

	configPath := flag.String("config", "configs/loader.yaml", "Path to the YAML configuration file")
	input := flag.String("input", "", "GCS URI of the transactions CSV (overrides config)")
	runner := flag.String("runner", "", "Execution engine: direct or bigquery-load (overrides config)")
	outputTable := flag.String("output-table", "", "Destination table, project:dataset.table (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("Failed to load configuration")
	}
	if *input != "" {
		cfg.Input = *input
	}
	if *runner != "" {
		cfg.Runner = *runner
	}
	if *outputTable != "" {
		cfg.OutputTable = *outputTable
	}

	log, err = logger.WithLevel(log, cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid log level")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	loader, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise loader")
	}
	defer loader.Close()

	log.Info().
		Str("input", cfg.Input).
		Str("output_table", cfg.OutputTable).
		Str("runner", cfg.Runner).
		Msg("Starting load")

	stats, err := loader.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Load failed")
		loader.Close()
		os.Exit(1)
	}

	fmt.Printf("Load completed: %d lines read, %d records written, %d dropped, %d amounts defaulted.\n",
		stats.LinesRead, stats.RecordsWritten, stats.RecordsDropped, stats.AmountsDefaulted)
}
