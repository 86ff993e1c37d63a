package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dvloznov/transactions-dataflow/internal/app"
	"github.com/dvloznov/transactions-dataflow/internal/config"
	"github.com/dvloznov/transactions-dataflow/internal/gcs"
	infra "github.com/dvloznov/transactions-dataflow/internal/infra/bigquery"
	"github.com/dvloznov/transactions-dataflow/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	configPath string
	log        zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "cli",
	Short:         "Transactions dataflow CLI",
	Long:          "Loads transaction CSV files from Cloud Storage into BigQuery and inspects the results.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log = logger.New()
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run [gs://bucket/object.csv]",
	Short: "Load a transactions file into BigQuery",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLoad,
}

var uploadCmd = &cobra.Command{
	Use:   "upload FILE",
	Short: "Upload a local CSV file to Cloud Storage",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpload,
}

var transactionsCmd = &cobra.Command{
	Use:   "transactions",
	Short: "Show the most recent rows of the transactions table",
	RunE:  runTransactions,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration (file plus LOADER_* overrides)",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent load runs",
	RunE:  runRuns,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/loader.yaml", "Path to the YAML configuration file")

	runCmd.Flags().String("runner", "", "Execution engine: direct or bigquery-load")
	runCmd.Flags().Duration("timeout", 30*time.Minute, "Maximum run time")

	uploadCmd.Flags().String("dest", "", "Destination gs:// URI or prefix ending in / (defaults to the bucket of the configured input)")

	configCmd.Flags().String("write", "", "Write the effective configuration to this file instead of printing it")

	transactionsCmd.Flags().Int("limit", 20, "Number of rows to show")
	runsCmd.Flags().Int("limit", 20, "Number of runs to show")

	rootCmd.AddCommand(runCmd, uploadCmd, transactionsCmd, runsCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and applies the log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	lvl, err := logger.WithLevel(log, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	log = lvl
	return cfg, nil
}

func runLoad(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Input = args[0]
	}
	if runner, _ := cmd.Flags().GetString("runner"); runner != "" {
		cfg.Runner = runner
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	loader, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer loader.Close()

	stats, err := loader.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Loaded %s into %s\n", cfg.Input, cfg.OutputTable)
	fmt.Printf("  lines read:        %d\n", stats.LinesRead)
	fmt.Printf("  header skipped:    %d\n", stats.HeaderLinesSkipped)
	fmt.Printf("  records written:   %d\n", stats.RecordsWritten)
	fmt.Printf("  records dropped:   %d\n", stats.RecordsDropped)
	fmt.Printf("  amounts defaulted: %d\n", stats.AmountsDefaulted)
	return nil
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	filePath := args[0]

	dest, _ := cmd.Flags().GetString("dest")
	dest, err = uploadDestination(dest, cfg.Input, filePath)
	if err != nil {
		return err
	}
	bucket, object, err := gcs.ParseURI(dest)
	if err != nil {
		return err
	}

	ctx := logger.WithContext(cmd.Context(), log)

	storage, err := newStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer storage.Close()

	log.Info().Str("file", filePath).Str("dest", dest).Msg("Uploading file to GCS")

	if err := storage.UploadFile(ctx, bucket, object, filePath); err != nil {
		return err
	}

	fmt.Printf("Uploaded %s to %s\n", filePath, dest)
	fmt.Printf("Load it with: cli run %s\n", dest)
	return nil
}

// uploadDestination resolves where a local file is uploaded. An empty dest
// means the bucket of the configured input; a dest ending in "/" is a prefix.
// The object keeps the local file name unless dest names one.
func uploadDestination(dest, input, filePath string) (string, error) {
	name := filepath.Base(filePath)
	if dest == "" {
		bucket, _, err := gcs.ParseURI(input)
		if err != nil {
			return "", fmt.Errorf("no --dest given and the configured input is unusable: %w", err)
		}
		return gcs.ObjectURI(bucket, name), nil
	}
	if strings.HasSuffix(dest, "/") || gcs.ExtractFilenameFromURI(dest) == strings.TrimPrefix(dest, gcs.URIScheme) {
		return gcs.JoinURI(dest, name)
	}
	return dest, nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("write"); path != "" {
		if err := cfg.Save(path); err != nil {
			return err
		}
		fmt.Printf("Wrote configuration to %s\n", path)
		return nil
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runTransactions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	table, err := infra.ParseTableSpec(cfg.OutputTable, cfg.Project)
	if err != nil {
		return err
	}

	ctx := logger.WithContext(cmd.Context(), log)
	repo, err := newRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	rows, err := repo.QueryRecentTransactions(ctx, table, limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TRANSACTION_ID\tCUSTOMER_ID\tAMOUNT\tTRANSACTION_DATE")
	for _, r := range rows {
		date := ""
		if r.TransactionDate.Valid {
			date = r.TransactionDate.Timestamp.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\n", r.TransactionID.StringVal, r.CustomerID.StringVal, r.Amount.Float64, date)
	}
	return w.Flush()
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	ctx := logger.WithContext(cmd.Context(), log)
	repo, err := newRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	runs, err := repo.ListLoadRuns(ctx, limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN_ID\tSTATUS\tRUNNER\tSTARTED\tWRITTEN\tDROPPED\tSOURCE")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.RunID, r.Status, r.Runner, r.StartedTS.Format(time.RFC3339),
			r.RecordsWritten.Int64, r.RecordsDropped.Int64, r.SourceURI)
	}
	return w.Flush()
}
