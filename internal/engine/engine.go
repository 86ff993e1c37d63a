package engine

import (
	"errors"
	"fmt"

	"github.com/dvloznov/transactions-dataflow/internal/config"
	"github.com/dvloznov/transactions-dataflow/internal/pipeline"
)

// ErrUnknownRunner is returned by New for a runner name it does not know.
var ErrUnknownRunner = errors.New("unknown runner")

const (
	defaultBatchSize = 500
	defaultWorkers   = 4
)

// Options tune how an engine reads and transforms input.
type Options struct {
	// BatchSize is the number of lines transformed and written together.
	BatchSize int
	// Workers is the number of goroutines transforming one batch.
	Workers int
	// TempLocation is the gs:// prefix for staged load files.
	TempLocation string
	// Location is the region BigQuery jobs run in.
	Location string
}

// OptionsFromConfig derives engine options from the loader configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BatchSize:    cfg.BatchSize,
		Workers:      cfg.Workers,
		TempLocation: cfg.StagingPrefix(),
		Location:     cfg.Region,
	}
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	return o
}

// Deps are the storage and warehouse services an engine talks to.
type Deps struct {
	Storage ObjectStore
	Writer  TableWriter
	Loader  TableLoader
}

// New returns the engine registered under runner.
func New(runner string, deps Deps, opts Options) (pipeline.Engine, error) {
	if deps.Storage == nil {
		return nil, fmt.Errorf("New: storage is required")
	}
	opts = opts.withDefaults()

	switch runner {
	case config.RunnerDirect:
		if deps.Writer == nil {
			return nil, fmt.Errorf("New: %s runner requires a table writer", runner)
		}
		return NewDirectEngine(deps.Storage, deps.Writer, opts), nil
	case config.RunnerBigQueryLoad:
		if deps.Loader == nil {
			return nil, fmt.Errorf("New: %s runner requires a table loader", runner)
		}
		if opts.TempLocation == "" {
			return nil, fmt.Errorf("New: %s runner requires a temp location", runner)
		}
		return NewLoadEngine(deps.Storage, deps.Loader, opts), nil
	default:
		return nil, fmt.Errorf("New: %w: %q", ErrUnknownRunner, runner)
	}
}
