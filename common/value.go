package common

import (
	"bytes"
	"encoding/binary"
	"math"
	"strconv"
	"time"
)

// DateLayout is the canonical text form of a DATE value. Dates are always rendered in UTC.
const DateLayout = "2006-01-02 15:04:05.000"

// FormatDate renders epoch milliseconds in DateLayout.
func FormatDate(millis int64) string {
	return time.UnixMilli(millis).UTC().Format(DateLayout)
}

// Value is a typed scalar with explicit NULL. It carries result cells, parameters, index keys and sort keys.
//
// Long-family values (int, long, date) and booleans (0/1) share the integer slot. The zero Value is "nil": it has
// UnknownType and is not NULL. This is NOT to be confused with SQL NULL, which every type can carry.
type Value struct {
	t    Type
	null bool
	num  int64
	dbl  float64
	str  string
	raw  []byte
}

func NewIntValue(v int32) Value {
	return Value{t: IntType, num: int64(v)}
}

func NewLongValue(v int64) Value {
	return Value{t: LongType, num: v}
}

// NewDateValue creates a DATE from epoch milliseconds.
func NewDateValue(millis int64) Value {
	return Value{t: DateType, num: millis}
}

func NewDoubleValue(v float64) Value {
	return Value{t: DoubleType, dbl: v}
}

func NewStringValue(v string) Value {
	return Value{t: StringType, str: v}
}

func NewBooleanValue(v bool) Value {
	if v {
		return Value{t: BooleanType, num: 1}
	}
	return Value{t: BooleanType}
}

// NewBytesValue creates a binary stream value. The slice is not copied.
func NewBytesValue(v []byte) Value {
	return Value{t: BinaryStreamType, raw: v}
}

// NewNullValue creates a NULL of the given type.
func NewNullValue(t Type) Value {
	return Value{t: t, null: true}
}

func (v Value) Type() Type {
	return v.t
}

// IsNull returns true if the Value is SQL NULL.
func (v Value) IsNull() bool {
	return v.null
}

// IsNil returns true for the uninitialized zero Value.
func (v Value) IsNil() bool {
	return v.t == UnknownType && !v.null
}

// LongValue returns the underlying (non-NULL) integer of a long-family or boolean value.
func (v Value) LongValue() int64 {
	Assert(v.t.IsLong() || v.t == BooleanType, "type mismatch in LongValue: %s", v.t)
	Assert(!v.null, "accessing value of NULL %s", v.t)
	return v.num
}

// DoubleValue returns the value as a double. Long-family values are promoted.
func (v Value) DoubleValue() float64 {
	Assert(v.t.IsDouble(), "type mismatch in DoubleValue: %s", v.t)
	Assert(!v.null, "accessing value of NULL %s", v.t)
	if v.t.IsLong() {
		return float64(v.num)
	}
	return v.dbl
}

// StringValue returns the underlying (non-NULL) string.
func (v Value) StringValue() string {
	Assert(v.t == StringType, "type mismatch in StringValue: %s", v.t)
	Assert(!v.null, "accessing value of NULL string")
	return v.str
}

// BoolValue returns the underlying (non-NULL) boolean.
func (v Value) BoolValue() bool {
	Assert(v.t == BooleanType, "type mismatch in BoolValue: %s", v.t)
	Assert(!v.null, "accessing value of NULL boolean")
	return v.num != 0
}

// BytesValue returns the underlying (non-NULL) bytes of a binary stream value.
func (v Value) BytesValue() []byte {
	Assert(v.t == BinaryStreamType, "type mismatch in BytesValue: %s", v.t)
	Assert(!v.null, "accessing value of NULL stream")
	return v.raw
}

// String returns the SQL text form of the value. NULL renders as "NULL".
func (v Value) String() string {
	if v.null {
		return "NULL"
	}
	switch v.t {
	case IntType, LongType:
		return strconv.FormatInt(v.num, 10)
	case DateType:
		return FormatDate(v.num)
	case DoubleType:
		return strconv.FormatFloat(v.dbl, 'g', -1, 64)
	case StringType:
		return v.str
	case BooleanType:
		if v.num != 0 {
			return "true"
		}
		return "false"
	case BinaryStreamType:
		return string(v.raw)
	}
	return ""
}

// Compare compares two Values.
// Returns -1 if v < other, 0 if v == other, 1 if v > other.
// NULL is considered less than non-NULL values. Numeric values compare as longs when both are long-typed and as
// doubles otherwise; comparing a number with a string is an invariant violation.
func (v Value) Compare(other Value) int {
	if v.null && other.null {
		return 0
	}
	if v.null {
		return -1
	}
	if other.null {
		return 1
	}

	switch {
	case (v.t.IsLong() || v.t == BooleanType) && (other.t.IsLong() || other.t == BooleanType):
		return compareOrdered(v.num, other.num)
	case v.t.IsDouble() && other.t.IsDouble():
		return compareOrdered(v.DoubleValue(), other.DoubleValue())
	case v.t == StringType && other.t == StringType:
		return compareOrdered(v.str, other.str)
	case v.t == BinaryStreamType && other.t == BinaryStreamType:
		return bytes.Compare(v.raw, other.raw)
	}
	panic("type mismatch in comparison: " + v.t.String() + " vs " + other.t.String())
}

func compareOrdered[T int64 | float64 | string](a, b T) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// AppendKey appends a byte encoding of the value that is equal for equal values of the same type family. It is used
// for hash keys and group keys, not for ordering.
func (v Value) AppendKey(buf []byte) []byte {
	if v.null {
		return append(buf, 0)
	}
	switch {
	case v.t.IsLong() || v.t == BooleanType:
		buf = append(buf, 'L')
		return binary.BigEndian.AppendUint64(buf, uint64(v.num))
	case v.t == DoubleType:
		buf = append(buf, 'D')
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(v.dbl))
	case v.t == StringType:
		buf = append(buf, 'S')
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(v.str)))
		return append(buf, v.str...)
	default:
		buf = append(buf, 'B')
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(v.raw)))
		return append(buf, v.raw...)
	}
}
