package storage

import (
	"encoding/binary"

	"golang.org/x/text/encoding/unicode"

	"mit.edu/dsg/rowdb/common"
)

// Column values are stored big-endian:
//
//	INT      4 bytes, two's complement
//	LONG     8 bytes, two's complement
//	DATE     8 bytes, epoch milliseconds
//	VARCHAR  1 length byte (UTF-16 code units), 2 bytes per unit high byte first, 2 zero bytes
//
// Every Put function writes at the start of buf and returns the number of bytes written. The caller provides a
// buffer of at least ColumnType.MaxSize bytes.

const (
	IntSize  = 4
	LongSize = 8
)

func PutInt(buf []byte, v int32) int {
	binary.BigEndian.PutUint32(buf, uint32(v))
	return IntSize
}

func GetInt(buf []byte) int32 {
	return int32(binary.BigEndian.Uint32(buf))
}

func PutLong(buf []byte, v int64) int {
	binary.BigEndian.PutUint64(buf, uint64(v))
	return LongSize
}

func GetLong(buf []byte) int64 {
	return int64(binary.BigEndian.Uint64(buf))
}

// PutVarChar encodes s as UTF-16BE with a one-byte length prefix and a two-byte terminator. Strings longer than
// common.MaxVarCharLength code units are rejected with an EncodingError and nothing is written.
func PutVarChar(buf []byte, s string) (int, error) {
	units, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(s))
	if err != nil {
		return 0, common.WrapError(common.EncodingError, err, "cannot encode %q as UTF-16", s)
	}
	n := len(units) / 2
	if n > common.MaxVarCharLength {
		return 0, common.NewError(common.EncodingError,
			"VARCHAR value of %d code units exceeds the limit of %d", n, common.MaxVarCharLength)
	}
	size := 1 + len(units) + 2
	common.Assert(len(buf) >= size, "VARCHAR buffer too small: %d < %d", len(buf), size)

	buf[0] = byte(n)
	copy(buf[1:], units)
	buf[size-2] = 0
	buf[size-1] = 0
	return size, nil
}

// VarCharSize returns the number of bytes occupied by the encoded VARCHAR at the start of buf.
func VarCharSize(buf []byte) int {
	return 1 + 2*int(buf[0]) + 2
}

// GetVarChar decodes the VARCHAR at the start of buf.
func GetVarChar(buf []byte) string {
	n := int(buf[0])
	s, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder().Bytes(buf[1 : 1+2*n])
	// The decoder replaces malformed surrogates instead of failing
	common.Assert(err == nil, "UTF-16 decode failed: %v", err)
	return string(s)
}

// ColumnSize returns the number of bytes occupied by the encoded non-NULL value of type ct at the start of buf.
func ColumnSize(ct common.ColumnType, buf []byte) int {
	switch ct {
	case common.IntColumn:
		return IntSize
	case common.LongColumn, common.DateColumn:
		return LongSize
	case common.VarCharColumn:
		return VarCharSize(buf)
	}
	panic("unknown column type " + ct.String())
}

// PutValue encodes v as a column of type ct. NULL values return -1 and write nothing.
func PutValue(buf []byte, ct common.ColumnType, v common.Value) (int, error) {
	if v.IsNull() {
		return -1, nil
	}
	switch ct {
	case common.IntColumn:
		if !v.Type().IsLong() {
			return 0, common.NewError(common.EncodingError, "cannot store %s value in INT column", v.Type())
		}
		return PutInt(buf, int32(v.LongValue())), nil
	case common.LongColumn, common.DateColumn:
		if !v.Type().IsLong() {
			return 0, common.NewError(common.EncodingError, "cannot store %s value in %s column", v.Type(), ct)
		}
		return PutLong(buf, v.LongValue()), nil
	case common.VarCharColumn:
		if v.Type() != common.StringType {
			return PutVarChar(buf, v.String())
		}
		return PutVarChar(buf, v.StringValue())
	}
	return 0, common.NewError(common.UnsupportedOperationError, "no encoding for column type %s", ct)
}

// GetValue decodes the non-NULL value of type ct at the start of buf.
func GetValue(ct common.ColumnType, buf []byte) common.Value {
	switch ct {
	case common.IntColumn:
		return common.NewIntValue(GetInt(buf))
	case common.LongColumn:
		return common.NewLongValue(GetLong(buf))
	case common.DateColumn:
		return common.NewDateValue(GetLong(buf))
	case common.VarCharColumn:
		return common.NewStringValue(GetVarChar(buf))
	}
	panic("unknown column type " + ct.String())
}
