package common

import (
	"fmt"
	"strings"
)

// Type is the static result type of an expression or value.
type Type int8

const (
	// For expressions whose type cannot be determined statically
	UnknownType Type = iota
	BooleanType
	IntType
	LongType
	DoubleType
	StringType
	BinaryStreamType
	DateType
)

// AllTypes lists every Type, in declaration order.
var AllTypes = []Type{UnknownType, BooleanType, IntType, LongType, DoubleType, StringType, BinaryStreamType, DateType}

// IsLong reports whether values of this type are integral. Dates are stored as epoch milliseconds and count as
// longs.
func (t Type) IsLong() bool {
	return t == IntType || t == LongType || t == DateType
}

// IsDouble reports whether values of this type can be compared and computed as doubles. Every long type is also a
// double type; the converse does not hold.
func (t Type) IsDouble() bool {
	return t.IsLong() || t == DoubleType
}

func (t Type) IsBoolean() bool {
	return t == BooleanType
}

func (t Type) IsBinaryStream() bool {
	return t == BinaryStreamType
}

func (t Type) String() string {
	switch t {
	case UnknownType:
		return "unknown"
	case BooleanType:
		return "boolean"
	case IntType:
		return "int"
	case LongType:
		return "long"
	case DoubleType:
		return "double"
	case StringType:
		return "string"
	case BinaryStreamType:
		return "stream"
	case DateType:
		return "date"
	}
	return "invalid"
}

// MaxVarCharLength is the longest VARCHAR value, in UTF-16 code units, that fits the single-byte length prefix.
const MaxVarCharLength = 255

// ColumnType identifies the physical encoding of a stored column.
type ColumnType int8

const (
	InvalidColumn ColumnType = iota
	IntColumn
	LongColumn
	DateColumn
	VarCharColumn
)

// ResultType returns the expression type produced by reading a column of this type.
func (c ColumnType) ResultType() Type {
	switch c {
	case IntColumn:
		return IntType
	case LongColumn:
		return LongType
	case DateColumn:
		return DateType
	case VarCharColumn:
		return StringType
	}
	return UnknownType
}

// MaxSize returns the largest number of bytes a non-NULL value of this column type occupies in a row.
func (c ColumnType) MaxSize() int {
	switch c {
	case IntColumn:
		return 4
	case LongColumn, DateColumn:
		return 8
	case VarCharColumn:
		return 1 + 2*MaxVarCharLength + 2
	default:
		panic("unknown column type")
	}
}

// IsValid reports whether the column type has a row encoding.
func (c ColumnType) IsValid() bool {
	return c >= IntColumn && c <= VarCharColumn
}

func (c ColumnType) String() string {
	switch c {
	case IntColumn:
		return "INT"
	case LongColumn:
		return "LONG"
	case DateColumn:
		return "DATE"
	case VarCharColumn:
		return "VARCHAR"
	}
	return "INVALID"
}

// MarshalText renders the column type by its SQL name, which is how it appears in catalog and schema files.
func (c ColumnType) MarshalText() ([]byte, error) {
	if !c.IsValid() {
		return nil, fmt.Errorf("invalid column type %d", c)
	}
	return []byte(c.String()), nil
}

func (c *ColumnType) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "INT", "INTEGER":
		*c = IntColumn
	case "LONG", "BIGINT":
		*c = LongColumn
	case "DATE", "TIMESTAMP":
		*c = DateColumn
	case "VARCHAR", "STRING":
		*c = VarCharColumn
	default:
		return fmt.Errorf("unknown column type %q", string(text))
	}
	return nil
}

// ObjectID is a unique identifier for a table or index in the database.
type ObjectID uint32

const InvalidObjectID ObjectID = 0

// RecordID identifies a stored row by its table and slot number.
type RecordID struct {
	Oid  ObjectID
	Slot int32
}

// IsNil checks if the RecordID refers to a valid table.
func (r RecordID) IsNil() bool {
	return r.Oid == InvalidObjectID
}

func (r RecordID) String() string {
	return fmt.Sprintf("rid(%d, %d)", r.Oid, r.Slot)
}

type TransactionID uint64

const InvalidTransactionID TransactionID = 0
