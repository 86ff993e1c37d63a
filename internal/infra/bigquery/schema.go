package bigquery

import (
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
)

// TransactionsSchemaSpec is the fixed column layout of the transactions table.
const TransactionsSchemaSpec = "transaction_id:STRING, customer_id:STRING, amount:FLOAT, transaction_date:TIMESTAMP"

var fieldTypes = map[string]bigquery.FieldType{
	"STRING":    bigquery.StringFieldType,
	"BYTES":     bigquery.BytesFieldType,
	"INTEGER":   bigquery.IntegerFieldType,
	"INT64":     bigquery.IntegerFieldType,
	"FLOAT":     bigquery.FloatFieldType,
	"FLOAT64":   bigquery.FloatFieldType,
	"NUMERIC":   bigquery.NumericFieldType,
	"BOOLEAN":   bigquery.BooleanFieldType,
	"BOOL":      bigquery.BooleanFieldType,
	"TIMESTAMP": bigquery.TimestampFieldType,
	"DATE":      bigquery.DateFieldType,
	"DATETIME":  bigquery.DateTimeFieldType,
	"TIME":      bigquery.TimeFieldType,
	"JSON":      bigquery.JSONFieldType,
}

// ParseSchemaSpec parses a "name:TYPE, name:TYPE" column list into a schema.
// All columns are NULLABLE.
func ParseSchemaSpec(spec string) (bigquery.Schema, error) {
	var schema bigquery.Schema
	seen := make(map[string]bool)

	for _, col := range strings.Split(spec, ",") {
		col = strings.TrimSpace(col)
		if col == "" {
			continue
		}

		name, typ, ok := strings.Cut(col, ":")
		name = strings.TrimSpace(name)
		typ = strings.ToUpper(strings.TrimSpace(typ))
		if !ok || name == "" || typ == "" {
			return nil, fmt.Errorf("ParseSchemaSpec: column %q: want name:TYPE", col)
		}

		ft, known := fieldTypes[typ]
		if !known {
			return nil, fmt.Errorf("ParseSchemaSpec: column %q: unsupported type %q", name, typ)
		}
		if seen[name] {
			return nil, fmt.Errorf("ParseSchemaSpec: duplicate column %q", name)
		}
		seen[name] = true

		schema = append(schema, &bigquery.FieldSchema{Name: name, Type: ft})
	}

	if len(schema) == 0 {
		return nil, fmt.Errorf("ParseSchemaSpec: no columns in %q", spec)
	}
	return schema, nil
}

// TransactionsSchema returns the schema of the transactions table.
func TransactionsSchema() bigquery.Schema {
	schema, err := ParseSchemaSpec(TransactionsSchemaSpec)
	if err != nil {
		panic(fmt.Sprintf("TransactionsSchema: %v", err))
	}
	return schema
}
