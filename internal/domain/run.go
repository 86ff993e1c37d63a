package domain

import "errors"

// ErrPartialWrite marks a failed run that may already have appended rows to
// the destination table. Re-running it from the start would duplicate them.
var ErrPartialWrite = errors.New("partial write")

// RunStats summarises a single execution of the load pipeline.
type RunStats struct {
	LinesRead          int64 `json:"lines_read"` // every line read, header lines included
	HeaderLinesSkipped int64 `json:"header_lines_skipped"`
	RecordsDropped     int64 `json:"records_dropped"`   // arity mismatches
	AmountsDefaulted   int64 `json:"amounts_defaulted"` // rows kept with amount=0.0
	RecordsWritten     int64 `json:"records_written"`
}
