package pipeline

import (
	"math"
	"sync"
	"testing"

	"github.com/dvloznov/transactions-dataflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingDiagnostics captures diagnostics for assertions.
type recordingDiagnostics struct {
	mu        sync.Mutex
	malformed [][]string
	amounts   []string
}

func (r *recordingDiagnostics) MalformedRow(fields []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.malformed = append(r.malformed, fields)
}

func (r *recordingDiagnostics) InvalidAmount(value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.amounts = append(r.amounts, value)
}

func TestFormatRecord(t *testing.T) {
	tests := []struct {
		name          string
		fields        []string
		want          *domain.TransactionRecord
		wantMalformed int
		wantAmounts   []string
	}{
		{
			name:   "valid row",
			fields: []string{"T1", "C1", "12.50", "2024-01-05"},
			want:   &domain.TransactionRecord{TransactionID: "T1", CustomerID: "C1", Amount: 12.5, TransactionDate: "2024-01-05"},
		},
		{
			name:        "non numeric amount is defaulted",
			fields:      []string{"T2", "C9", "abc", "2024-02-01"},
			want:        &domain.TransactionRecord{TransactionID: "T2", CustomerID: "C9", Amount: 0.0, TransactionDate: "2024-02-01"},
			wantAmounts: []string{"abc"},
		},
		{
			name:          "too few fields",
			fields:        []string{"T3", "C1", "5"},
			wantMalformed: 1,
		},
		{
			name:          "too many fields",
			fields:        []string{"T4", "C1", "5", "2024-01-01", "extra"},
			wantMalformed: 1,
		},
		{
			name:          "empty line",
			fields:        []string{""},
			wantMalformed: 1,
		},
		{
			name:   "empty non amount fields are kept",
			fields: []string{"", "", "0", ""},
			want:   &domain.TransactionRecord{Amount: 0},
		},
		{
			name:        "empty amount is defaulted",
			fields:      []string{"T5", "C1", "", "2024-01-01"},
			want:        &domain.TransactionRecord{TransactionID: "T5", CustomerID: "C1", TransactionDate: "2024-01-01"},
			wantAmounts: []string{""},
		},
		{
			name:   "amount with surrounding whitespace",
			fields: []string{"T6", "C1", " 7.25 ", "2024-01-01"},
			want:   &domain.TransactionRecord{TransactionID: "T6", CustomerID: "C1", Amount: 7.25, TransactionDate: "2024-01-01"},
		},
		{
			name:   "negative and exponent amounts",
			fields: []string{"T7", "C1", "-1.5e2", "2024-01-01"},
			want:   &domain.TransactionRecord{TransactionID: "T7", CustomerID: "C1", Amount: -150, TransactionDate: "2024-01-01"},
		},
		{
			name:        "hexadecimal is not a number",
			fields:      []string{"T8", "C1", "0x1p4", "2024-01-01"},
			want:        &domain.TransactionRecord{TransactionID: "T8", CustomerID: "C1", TransactionDate: "2024-01-01"},
			wantAmounts: []string{"0x1p4"},
		},
		{
			name:   "digit separators",
			fields: []string{"T9", "C1", "1_000", "2024-01-01"},
			want:   &domain.TransactionRecord{TransactionID: "T9", CustomerID: "C1", Amount: 1000, TransactionDate: "2024-01-01"},
		},
		{
			name:   "id and date are passed through unchecked",
			fields: []string{" T10 ", "C1", "1", "not-a-date"},
			want:   &domain.TransactionRecord{TransactionID: " T10 ", CustomerID: "C1", Amount: 1, TransactionDate: "not-a-date"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diag := &recordingDiagnostics{}

			got := FormatRecord(tt.fields, diag)

			assert.Equal(t, tt.want, got)
			assert.Len(t, diag.malformed, tt.wantMalformed)
			assert.Equal(t, tt.wantAmounts, diag.amounts)
		})
	}
}

func TestFormatRecord_MalformedRowReportsFields(t *testing.T) {
	diag := &recordingDiagnostics{}
	fields := []string{"T3", "C1", "5"}

	require.Nil(t, FormatRecord(fields, diag))

	require.Len(t, diag.malformed, 1)
	assert.Equal(t, fields, diag.malformed[0])
	assert.Empty(t, diag.amounts, "a dropped row never reaches amount parsing")
}

func TestFormatRecord_NilDiagnostics(t *testing.T) {
	assert.NotPanics(t, func() {
		FormatRecord([]string{"a"}, nil)
		FormatRecord([]string{"T", "C", "x", "d"}, nil)
	})
}

func TestFormatRecord_Deterministic(t *testing.T) {
	fields := []string{"T1", "C1", "3.14159", "2024-03-01"}

	first := FormatRecord(fields, NopDiagnostics{})
	second := FormatRecord(fields, NopDiagnostics{})

	assert.Equal(t, first, second)
	assert.NotSame(t, first, second)
}

func TestFormatRecord_NonFiniteAmounts(t *testing.T) {
	tests := []struct {
		raw  string
		want func(float64) bool
	}{
		{"nan", math.IsNaN},
		{"-NaN", math.IsNaN},
		{"inf", func(v float64) bool { return math.IsInf(v, 1) }},
		{"+Infinity", func(v float64) bool { return math.IsInf(v, 1) }},
		{"-inf", func(v float64) bool { return math.IsInf(v, -1) }},
		{"1e400", func(v float64) bool { return math.IsInf(v, 1) }},
		{"-1e400", func(v float64) bool { return math.IsInf(v, -1) }},
		{"1e-400", func(v float64) bool { return v == 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			diag := &recordingDiagnostics{}

			rec := FormatRecord([]string{"T", "C", tt.raw, "d"}, diag)

			require.NotNil(t, rec)
			assert.True(t, tt.want(rec.Amount), "got %v", rec.Amount)
			assert.Empty(t, diag.amounts, "a parseable amount is not reported")
		})
	}
}

func TestFormatRecord_RejectsNearNumbers(t *testing.T) {
	for _, raw := range []string{"0X10", "-0x1p4", "infinit", "nan1", "1__000", "_1", "1,5", "$5"} {
		diag := &recordingDiagnostics{}

		rec := FormatRecord([]string{"T", "C", raw, "d"}, diag)

		require.NotNil(t, rec, raw)
		assert.Equal(t, DefaultAmount, rec.Amount, raw)
		assert.Equal(t, []string{raw}, diag.amounts, raw)
	}
}

func TestKeepRecord(t *testing.T) {
	assert.True(t, KeepRecord(&domain.TransactionRecord{TransactionID: "T1"}))
	assert.True(t, KeepRecord(&domain.TransactionRecord{}), "empty fields are not filtered")
	assert.False(t, KeepRecord(nil))
}
