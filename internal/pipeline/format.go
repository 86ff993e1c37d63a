package pipeline

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/dvloznov/transactions-dataflow/internal/domain"
)

// FormatRecord converts a split line into a TransactionRecord.
//
// A field list whose length is not ExpectedFieldCount is reported through
// diag.MalformedRow and yields nil: the row is dropped. An amount that does not
// parse is reported through diag.InvalidAmount and replaced by DefaultAmount:
// the row is kept. No other field is checked.
func FormatRecord(fields []string, diag Diagnostics) *domain.TransactionRecord {
	if diag == nil {
		diag = NopDiagnostics{}
	}

	if len(fields) != ExpectedFieldCount {
		diag.MalformedRow(fields)
		return nil
	}

	amount, ok := parseAmount(fields[2])
	if !ok {
		diag.InvalidAmount(fields[2])
		amount = DefaultAmount
	}

	return &domain.TransactionRecord{
		TransactionID:   fields[0],
		CustomerID:      fields[1],
		Amount:          amount,
		TransactionDate: fields[3],
	}
}

// parseAmount reads a decimal floating-point number. Surrounding whitespace
// is ignored. "nan", "inf" and "infinity" are accepted in any case with an
// optional sign, and a value too large for float64 becomes ±Inf. Hexadecimal
// literals are not numbers here.
func parseAmount(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)

	unsigned := s
	if strings.HasPrefix(unsigned, "+") || strings.HasPrefix(unsigned, "-") {
		unsigned = unsigned[1:]
	}
	if strings.HasPrefix(unsigned, "0x") || strings.HasPrefix(unsigned, "0X") {
		return 0, false
	}
	if strings.EqualFold(unsigned, "nan") {
		return math.NaN(), true
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Out of range still yields ±Inf (or 0 on underflow).
		if errors.Is(err, strconv.ErrRange) {
			return v, true
		}
		return 0, false
	}
	return v, true
}
