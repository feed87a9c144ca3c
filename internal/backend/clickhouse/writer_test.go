package clickhouse

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costplane/costplane/internal/types"
)

func TestColumnDDL(t *testing.T) {
	assert.Equal(t, "Nullable(String)", columnDDL(types.ColumnString))
	assert.Equal(t, "Nullable(DateTime)", columnDDL(types.ColumnDateTime))
	assert.Equal(t, "Nullable(Decimal(20, 8))", columnDDL(types.ColumnDecimal))
	// Map and Tuple cannot be Nullable.
	assert.Equal(t, "Map(String, Nullable(String))", columnDDL(types.ColumnMap))
}

func TestConvertValue(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		colType types.ColumnType
		want    any
		wantErr bool
	}{
		{"nil passes through", nil, types.ColumnDecimal, nil, false},
		{"string stays string", "abc", types.ColumnString, "abc", false},
		{"decimal parses", "1.50", types.ColumnDecimal, decimal.RequireFromString("1.50"), false},
		{"decimal rejects garbage", "abc", types.ColumnDecimal, nil, true},
		{"float parses", "2.5", types.ColumnFloat64, 2.5, false},
		{"timestamp parses", "2024-01-01T00:00:00Z", types.ColumnDateTime,
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), false},
		{"timestamp rejects garbage", "yesterday", types.ColumnDateTime, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convertValue(tt.value, tt.colType)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if want, ok := tt.want.(decimal.Decimal); ok {
				assert.True(t, want.Equal(got.(decimal.Decimal)))
				return
			}
			if want, ok := tt.want.(time.Time); ok {
				assert.True(t, want.Equal(got.(time.Time)))
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, "`aws_billing`", quoteIdent("aws_billing"))
	assert.Equal(t, "`we``ird`", quoteIdent("we`ird"))
}
