package pipeline

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Diagnostics receives row-level warnings from the format step. Implementations
// must be safe for concurrent use: engines format rows on several goroutines.
type Diagnostics interface {
	// MalformedRow reports a line that did not split into ExpectedFieldCount fields.
	MalformedRow(fields []string)

	// InvalidAmount reports an amount value that was replaced by DefaultAmount.
	InvalidAmount(value string)
}

// LogDiagnostics writes each diagnostic as a zerolog warning.
type LogDiagnostics struct {
	log zerolog.Logger
}

// NewLogDiagnostics creates a Diagnostics that logs through log.
func NewLogDiagnostics(log zerolog.Logger) *LogDiagnostics {
	return &LogDiagnostics{log: log}
}

func (d *LogDiagnostics) MalformedRow(fields []string) {
	d.log.Warn().
		Strs("fields", fields).
		Int("field_count", len(fields)).
		Msg("Skipping malformed row")
}

func (d *LogDiagnostics) InvalidAmount(value string) {
	d.log.Warn().
		Str("value", value).
		Float64("default", DefaultAmount).
		Msg("Invalid amount value, assigning default")
}

// NopDiagnostics discards every diagnostic.
type NopDiagnostics struct{}

func (NopDiagnostics) MalformedRow([]string) {}
func (NopDiagnostics) InvalidAmount(string)  {}

// DiagnosticCounters counts diagnostics and forwards them to another sink.
type DiagnosticCounters struct {
	next           Diagnostics
	malformedRows  atomic.Int64
	invalidAmounts atomic.Int64
}

// NewDiagnosticCounters wraps next; a nil next only counts.
func NewDiagnosticCounters(next Diagnostics) *DiagnosticCounters {
	if next == nil {
		next = NopDiagnostics{}
	}
	return &DiagnosticCounters{next: next}
}

func (c *DiagnosticCounters) MalformedRow(fields []string) {
	c.malformedRows.Add(1)
	c.next.MalformedRow(fields)
}

func (c *DiagnosticCounters) InvalidAmount(value string) {
	c.invalidAmounts.Add(1)
	c.next.InvalidAmount(value)
}

// MalformedRows returns how many rows were dropped on arity.
func (c *DiagnosticCounters) MalformedRows() int64 {
	return c.malformedRows.Load()
}

// InvalidAmounts returns how many amounts were defaulted.
func (c *DiagnosticCounters) InvalidAmounts() int64 {
	return c.invalidAmounts.Load()
}

var (
	_ Diagnostics = (*LogDiagnostics)(nil)
	_ Diagnostics = NopDiagnostics{}
	_ Diagnostics = (*DiagnosticCounters)(nil)
)
