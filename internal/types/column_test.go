package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapAWSV1ColumnType(t *testing.T) {
	assert.Equal(t, ColumnString, MapAWSV1ColumnType("String"))
	assert.Equal(t, ColumnString, MapAWSV1ColumnType("Interval"))
	assert.Equal(t, ColumnString, MapAWSV1ColumnType("OptionalString"))
	assert.Equal(t, ColumnDateTime, MapAWSV1ColumnType("DateTime"))
	assert.Equal(t, ColumnDecimal, MapAWSV1ColumnType("Decimal"))
	assert.Equal(t, ColumnDecimal, MapAWSV1ColumnType("BigDecimal"))
	assert.Equal(t, ColumnDecimal, MapAWSV1ColumnType("OptionalBigDecimal"))
	// Unknown vendor types degrade to text.
	assert.Equal(t, ColumnString, MapAWSV1ColumnType("Mystery"))
}

func TestMapAWSV2ColumnType(t *testing.T) {
	assert.Equal(t, ColumnString, MapAWSV2ColumnType("string"))
	assert.Equal(t, ColumnDateTime64, MapAWSV2ColumnType("timestamp"))
	assert.Equal(t, ColumnFloat64, MapAWSV2ColumnType("double"))
	assert.Equal(t, ColumnMap, MapAWSV2ColumnType("map"))
	assert.Equal(t, ColumnTuple, MapAWSV2ColumnType("struct"))
	assert.Equal(t, ColumnString, MapAWSV2ColumnType("mystery"))
}
