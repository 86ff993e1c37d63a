package bigquery

import (
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionsSchema(t *testing.T) {
	schema := TransactionsSchema()
	require.Len(t, schema, 4)

	want := []struct {
		name string
		typ  bigquery.FieldType
	}{
		{"transaction_id", bigquery.StringFieldType},
		{"customer_id", bigquery.StringFieldType},
		{"amount", bigquery.FloatFieldType},
		{"transaction_date", bigquery.TimestampFieldType},
	}
	for i, w := range want {
		assert.Equal(t, w.name, schema[i].Name)
		assert.Equal(t, w.typ, schema[i].Type)
		assert.False(t, schema[i].Required, "columns are NULLABLE")
	}
}

func TestParseSchemaSpec(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantLen int
		wantErr bool
	}{
		{name: "lower case types", spec: "id:string, n:int64", wantLen: 2},
		{name: "trailing comma", spec: "id:STRING,", wantLen: 1},
		{name: "missing type", spec: "id", wantErr: true},
		{name: "unknown type", spec: "id:GEOGRAPHY", wantErr: true},
		{name: "duplicate column", spec: "id:STRING, id:STRING", wantErr: true},
		{name: "empty", spec: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchemaSpec(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.wantLen)
		})
	}
}
