package engine

import (
	"context"

	"github.com/dvloznov/transactions-dataflow/internal/domain"
	"github.com/dvloznov/transactions-dataflow/internal/pipeline"
	"golang.org/x/sync/errgroup"
)

// transformBatch runs Parse, Format and Filter over lines on up to workers
// goroutines. Surviving records keep input order.
func transformBatch(ctx context.Context, job *pipeline.Job, lines []string, workers int) ([]*domain.TransactionRecord, int64, error) {
	results := make([]*domain.TransactionRecord, len(lines))

	chunk := (len(lines) + workers - 1) / workers
	if chunk == 0 {
		return nil, 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(lines); start += chunk {
		start := start
		end := min(start+chunk, len(lines))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if i%256 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				results[i] = job.Apply(lines[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	kept := results[:0]
	var dropped int64
	for _, rec := range results {
		if rec == nil {
			dropped++
			continue
		}
		kept = append(kept, rec)
	}
	return kept, dropped, nil
}
