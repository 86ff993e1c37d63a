package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// lineCounts reports what readLines consumed.
type lineCounts struct {
	read    int64
	skipped int64
}

// readLines reads newline-terminated lines from r, drops the first skip lines
// and hands the rest to fn in batches of at most batchSize. Line terminators
// ("\n" or "\r\n") are stripped. A final newline does not produce an empty
// trailing line, but empty lines in the body are delivered.
func readLines(ctx context.Context, r io.Reader, skip, batchSize int, fn func(batch []string) error) (lineCounts, error) {
	var counts lineCounts
	br := bufio.NewReader(r)
	batch := make([]string, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(batch); err != nil {
			return err
		}
		batch = make([]string, 0, batchSize)
		return nil
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return counts, fmt.Errorf("readLines: line %d: %w", counts.read+1, err)
		}
		if line == "" && errors.Is(err, io.EOF) {
			break
		}

		counts.read++
		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")

		if counts.skipped < int64(skip) {
			counts.skipped++
		} else {
			batch = append(batch, line)
			if len(batch) >= batchSize {
				if ferr := flush(); ferr != nil {
					return counts, ferr
				}
			}
		}

		if errors.Is(err, io.EOF) {
			break
		}
	}

	if err := flush(); err != nil {
		return counts, err
	}
	return counts, nil
}
