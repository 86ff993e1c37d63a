package bigquery

import (
	"encoding/json"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/transactions-dataflow/internal/domain"
)

// TransactionRow is the write-side row of the transactions table.
type TransactionRow struct {
	TransactionID   string  `bigquery:"transaction_id"`
	CustomerID      string  `bigquery:"customer_id"`
	Amount          float64 `bigquery:"amount"`
	TransactionDate string  `bigquery:"transaction_date"` // TIMESTAMP, parsed by BigQuery
}

// Save implements bigquery.ValueSaver. The date is sent as text so the
// warehouse applies its own TIMESTAMP parsing to the source value. Non-finite
// amounts are sent in their string form.
func (r *TransactionRow) Save() (map[string]bigquery.Value, string, error) {
	return map[string]bigquery.Value{
		"transaction_id":   r.TransactionID,
		"customer_id":      r.CustomerID,
		"amount":           domain.FloatValue(r.Amount),
		"transaction_date": r.TransactionDate,
	}, bigquery.NoDedupeID, nil
}

// NewTransactionRows maps formatted records onto table rows.
func NewTransactionRows(records []*domain.TransactionRecord) []*TransactionRow {
	rows := make([]*TransactionRow, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		rows = append(rows, &TransactionRow{
			TransactionID:   rec.TransactionID,
			CustomerID:      rec.CustomerID,
			Amount:          rec.Amount,
			TransactionDate: rec.TransactionDate,
		})
	}
	return rows
}

// TransactionView is the read-side row returned by inspection queries.
// Columns are nullable because the table is append-only from external files.
type TransactionView struct {
	TransactionID   bigquery.NullString    `bigquery:"transaction_id" json:"transaction_id"`
	CustomerID      bigquery.NullString    `bigquery:"customer_id" json:"customer_id"`
	Amount          bigquery.NullFloat64   `bigquery:"amount" json:"amount"`
	TransactionDate bigquery.NullTimestamp `bigquery:"transaction_date" json:"transaction_date"`
}

// MarshalJSON renders a non-finite amount as a string.
func (v TransactionView) MarshalJSON() ([]byte, error) {
	type view TransactionView
	out := struct {
		view
		Amount any `json:"amount"`
	}{view: view(v)}
	if v.Amount.Valid {
		out.Amount = domain.FloatValue(v.Amount.Float64)
	}
	return json.Marshal(out)
}
