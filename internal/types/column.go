package types

// ColumnType is the closed set of column types a normalized manifest may
// carry. The names follow the analytical-database spelling; adapters that
// cannot express a type natively degrade it to a string column.
type ColumnType string

const (
	ColumnString     ColumnType = "String"
	ColumnDateTime   ColumnType = "DateTime"
	ColumnDateTime64 ColumnType = "DateTime64(9)"
	ColumnDecimal    ColumnType = "Decimal(20, 8)"
	ColumnFloat64    ColumnType = "Float64"
	ColumnMap        ColumnType = "Map(String, Nullable(String))"
	ColumnTuple      ColumnType = "Tuple(edp_discount Nullable(String))"
)

func (c ColumnType) String() string {
	return string(c)
}

// awsV1ColumnTypes maps CUR v1 manifest column types. Unknown source types
// default to String.
var awsV1ColumnTypes = map[string]ColumnType{
	"String":             ColumnString,
	"Interval":           ColumnString,
	"DateTime":           ColumnDateTime,
	"Decimal":            ColumnDecimal,
	"BigDecimal":         ColumnDecimal,
	"OptionalBigDecimal": ColumnDecimal,
	"OptionalString":     ColumnString,
}

// awsV2ColumnTypes maps CUR v2 manifest column types. Old v2 manifests omit
// the type entirely, which also defaults to String.
var awsV2ColumnTypes = map[string]ColumnType{
	"string":    ColumnString,
	"timestamp": ColumnDateTime64,
	"double":    ColumnFloat64,
	"map":       ColumnMap,
	"struct":    ColumnTuple,
}

// MapAWSV1ColumnType resolves a CUR v1 source type.
func MapAWSV1ColumnType(src string) ColumnType {
	if t, ok := awsV1ColumnTypes[src]; ok {
		return t
	}
	return ColumnString
}

// MapAWSV2ColumnType resolves a CUR v2 source type.
func MapAWSV2ColumnType(src string) ColumnType {
	if t, ok := awsV2ColumnTypes[src]; ok {
		return t
	}
	return ColumnString
}
