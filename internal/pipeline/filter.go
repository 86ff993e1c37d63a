package pipeline

import "github.com/dvloznov/transactions-dataflow/internal/domain"

// KeepRecord is the null filter: it keeps every record the format step produced.
func KeepRecord(rec *domain.TransactionRecord) bool {
	return rec != nil
}
