package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/transactions-dataflow/internal/app"
	"github.com/dvloznov/transactions-dataflow/internal/config"
	infra "github.com/dvloznov/transactions-dataflow/internal/infra/bigquery"
	"github.com/dvloznov/transactions-dataflow/internal/logger"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// target is the project and dataset migrations are applied to.
type target struct {
	ProjectID string
	DatasetID string
}

func (t target) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", t.ProjectID, t.DatasetID, name)
}

var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

var errInvalidFilename = errors.New("invalid migration filename")

func main() {
	var (
		configPath    = flag.String("config", "configs/loader.yaml", "Path to the YAML configuration file")
		projectID     = flag.String("project", "", "GCP project ID (defaults to the configured project)")
		datasetID     = flag.String("dataset", "", "BigQuery dataset ID (defaults to the dataset of the output table)")
		appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
		migrationsDir = flag.String("migrations", "migrations/bigquery", "Path to migrations directory")
		dryRun        = flag.Bool("dry-run", false, "List pending migrations without applying them")
	)
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	tgt, err := resolveTarget(cfg, *projectID, *datasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot determine migration target")
	}

	ctx := logger.WithContext(context.Background(), log)

	client, err := bigquery.NewClient(ctx, tgt.ProjectID, app.ClientOptions(cfg)...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer client.Close()

	log.Info().Str("project", tgt.ProjectID).Str("dataset", tgt.DatasetID).Msg("Connected to BigQuery")

	if err := run(ctx, client, tgt, *migrationsDir, *appliedBy, *dryRun, log); err != nil {
		log.Error().Err(err).Msg("Migration failed")
		client.Close()
		os.Exit(1)
	}
}

// resolveTarget picks project and dataset: flags first, then configuration.
func resolveTarget(cfg *config.Config, projectFlag, datasetFlag string) (target, error) {
	tgt := target{ProjectID: projectFlag, DatasetID: datasetFlag}
	if tgt.ProjectID == "" {
		tgt.ProjectID = cfg.Project
	}
	if tgt.DatasetID == "" && cfg.OutputTable != "" {
		ref, err := infra.ParseTableSpec(cfg.OutputTable, tgt.ProjectID)
		if err != nil {
			return target{}, err
		}
		tgt.DatasetID = ref.DatasetID
	}
	if tgt.ProjectID == "" {
		return target{}, fmt.Errorf("project is required: pass -project or set it in the configuration")
	}
	if tgt.DatasetID == "" {
		return target{}, fmt.Errorf("dataset is required: pass -dataset or set output_table in the configuration")
	}
	return tgt, nil
}

func run(ctx context.Context, client *bigquery.Client, tgt target, dir, appliedBy string, dryRun bool, log zerolog.Logger) error {
	if err := ensureSchemaMigrationsTable(ctx, client, tgt); err != nil {
		return fmt.Errorf("ensuring schema_migrations table: %w", err)
	}

	migrations, err := readMigrations(findMigrationsDir(dir), tgt, log)
	if err != nil {
		return err
	}
	log.Info().Int("count", len(migrations)).Msg("Found migration files")

	appliedMigrations, err := getAppliedMigrations(ctx, client, tgt)
	if err != nil {
		return err
	}
	log.Info().Int("count", len(appliedMigrations)).Msg("Found already applied migrations")

	pending := pendingMigrations(migrations, appliedMigrations, log)

	if dryRun {
		for _, m := range pending {
			log.Info().Str("migration", m.Filename).Msg("[PENDING]")
		}
		return nil
	}

	for _, migration := range pending {
		mlog := log.With().Str("migration", migration.Filename).Logger()
		mlog.Info().Msg("[RUN]")

		if err := runStatement(ctx, client.Query(migration.SQL)); err != nil {
			return fmt.Errorf("executing %s: %w", migration.Filename, err)
		}
		if err := recordMigration(ctx, client, tgt, migration, appliedBy); err != nil {
			return fmt.Errorf("recording %s: %w", migration.Filename, err)
		}

		mlog.Info().Msg("[OK]")
	}

	if len(pending) == 0 {
		log.Info().Msg("No new migrations to apply. Dataset is up to date.")
	} else {
		log.Info().Int("applied", len(pending)).Msg("Successfully applied migrations")
	}
	return nil
}

// pendingMigrations returns migrations not yet applied, in version order.
// A changed checksum on an applied migration is reported but not re-run.
func pendingMigrations(all []Migration, applied []AppliedMigration, log zerolog.Logger) []Migration {
	appliedByVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		appliedByVersion[am.Version] = am
	}

	var pending []Migration
	for _, m := range all {
		am, ok := appliedByVersion[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if am.Checksum != "" && am.Checksum != m.Checksum {
			log.Warn().Str("migration", m.Filename).Msg("Applied migration has changed since it ran")
		}
		log.Debug().Str("migration", m.Filename).Msg("[SKIP] already applied")
	}
	return pending
}

// findMigrationsDir falls back to the repository root when run from cmd/migrate.
func findMigrationsDir(dir string) string {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if alt := filepath.Join("..", "..", dir); dirExists(alt) {
			return alt
		}
	}
	return dir
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// parseMigrationFilename splits "0001_name.sql" into version and name.
func parseMigrationFilename(filename string) (int, string, error) {
	matches := migrationPattern.FindStringSubmatch(filename)
	if matches == nil {
		return 0, "", fmt.Errorf("%w: %s", errInvalidFilename, filename)
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, "", fmt.Errorf("%w: %s", errInvalidFilename, filename)
	}
	return version, matches[2], nil
}

// renderMigration substitutes the {{PROJECT_ID}} and {{DATASET_ID}} placeholders.
func renderMigration(sql string, tgt target) string {
	sql = strings.ReplaceAll(sql, "{{PROJECT_ID}}", tgt.ProjectID)
	return strings.ReplaceAll(sql, "{{DATASET_ID}}", tgt.DatasetID)
}

// checksum hashes the unrendered file so the same migration matches across datasets.
func checksum(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}

// readMigrations reads all migration files from dir, sorted by version.
func readMigrations(dir string, tgt target, log zerolog.Logger) ([]Migration, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		version, name, err := parseMigrationFilename(file.Name())
		if err != nil {
			log.Warn().Str("file", file.Name()).Msg("Skipping file with invalid format")
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %04d: %s and %s", version, prev, file.Name())
		}
		seen[version] = file.Name()

		content, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", file.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			Filename: file.Name(),
			SQL:      renderMigration(string(content), tgt),
			Checksum: checksum(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// ensureSchemaMigrationsTable creates the schema_migrations table if it doesn't exist
func ensureSchemaMigrationsTable(ctx context.Context, client *bigquery.Client, tgt target) error {
	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`, tgt.table("schema_migrations"))

	return runStatement(ctx, client.Query(sql))
}

// getAppliedMigrations retrieves the list of already applied migrations
func getAppliedMigrations(ctx context.Context, client *bigquery.Client, tgt target) ([]AppliedMigration, error) {
	sql := fmt.Sprintf(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM %s
		ORDER BY version ASC
	`, tgt.table("schema_migrations"))

	it, err := client.Query(sql).Read(ctx)
	if err != nil {
		if infra.IsNotFound(err) {
			return []AppliedMigration{}, nil
		}
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64               `bigquery:"version"`
			Name      string              `bigquery:"name"`
			AppliedAt time.Time           `bigquery:"applied_at"`
			Checksum  bigquery.NullString `bigquery:"checksum"`
			AppliedBy bigquery.NullString `bigquery:"applied_by"`
		}

		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}

		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}

	return applied, nil
}

// recordMigration records a successfully applied migration in schema_migrations
func recordMigration(ctx context.Context, client *bigquery.Client, tgt target, migration Migration, appliedBy string) error {
	query := client.Query(fmt.Sprintf(`
		INSERT INTO %s
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, tgt.table("schema_migrations")))
	query.Parameters = []bigquery.QueryParameter{
		{Name: "version", Value: migration.Version},
		{Name: "name", Value: migration.Name},
		{Name: "checksum", Value: migration.Checksum},
		{Name: "applied_by", Value: appliedBy},
	}

	return runStatement(ctx, query)
}

// runStatement runs a query job and waits for it to finish.
func runStatement(ctx context.Context, query *bigquery.Query) error {
	job, err := query.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}

	return nil
}
