package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// TransactionRecord is one customer transaction after the format step.
// TransactionDate is carried as the raw source text; the warehouse column is a
// TIMESTAMP and parses it on write.
type TransactionRecord struct {
	TransactionID   string  `json:"transaction_id" bigquery:"transaction_id"`
	CustomerID      string  `json:"customer_id" bigquery:"customer_id"`
	Amount          float64 `json:"amount" bigquery:"amount"`
	TransactionDate string  `json:"transaction_date" bigquery:"transaction_date"`
}

// transactionJSON is the wire form of TransactionRecord.
type transactionJSON struct {
	TransactionID   string          `json:"transaction_id"`
	CustomerID      string          `json:"customer_id"`
	Amount          json.RawMessage `json:"amount"`
	TransactionDate string          `json:"transaction_date"`
}

// FloatValue returns v unchanged, or the string BigQuery accepts for a
// non-finite FLOAT64: "NaN", "Infinity" or "-Infinity".
func FloatValue(v float64) any {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	}
	return v
}

// ParseFloatValue is the inverse of FloatValue for a JSON value. null reads as 0.
func ParseFloatValue(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		switch s {
		case "NaN":
			return math.NaN(), nil
		case "Infinity":
			return math.Inf(1), nil
		case "-Infinity":
			return math.Inf(-1), nil
		}
		return 0, fmt.Errorf("ParseFloatValue: unexpected string %q", s)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return f, nil
}

// MarshalJSON writes non-finite amounts as strings, which encoding/json
// cannot otherwise represent.
func (r TransactionRecord) MarshalJSON() ([]byte, error) {
	amount, err := json.Marshal(FloatValue(r.Amount))
	if err != nil {
		return nil, err
	}
	return json.Marshal(transactionJSON{
		TransactionID:   r.TransactionID,
		CustomerID:      r.CustomerID,
		Amount:          amount,
		TransactionDate: r.TransactionDate,
	})
}

// UnmarshalJSON reads the form written by MarshalJSON.
func (r *TransactionRecord) UnmarshalJSON(data []byte) error {
	var aux transactionJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	amount, err := ParseFloatValue(aux.Amount)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	*r = TransactionRecord{
		TransactionID:   aux.TransactionID,
		CustomerID:      aux.CustomerID,
		Amount:          amount,
		TransactionDate: aux.TransactionDate,
	}
	return nil
}
