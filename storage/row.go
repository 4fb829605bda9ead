package storage

import (
	"fmt"

	"mit.edu/dsg/rowdb/common"
)

// RawRow is the stored form of a row: a NULL bitmap of ceil(n/8) bytes followed by the encoded non-NULL columns in
// order. Bit i (byte i/8, bit i%8) set means column i is NULL and occupies no bytes. It does not know what data it
// contains. You need a RowDesc to read it.
type RawRow []byte

// RowDesc describes the physical layout of the rows of one table.
type RowDesc struct {
	columns    []common.ColumnType
	bitmapSize int
	maxSize    int
}

// NewRowDesc creates a descriptor for the given column types.
func NewRowDesc(columns []common.ColumnType) *RowDesc {
	bitmapSize := (len(columns) + 7) / 8
	size := bitmapSize
	for _, ct := range columns {
		common.Assert(ct.IsValid(), "invalid column type %d", ct)
		size += ct.MaxSize()
	}
	return &RowDesc{columns: columns, bitmapSize: bitmapSize, maxSize: size}
}

func (desc *RowDesc) String() string {
	return fmt.Sprintf("%v", desc.columns)
}

// NumColumns returns the number of columns in the physical schema.
func (desc *RowDesc) NumColumns() int {
	return len(desc.columns)
}

// ColumnType returns the type of column i.
func (desc *RowDesc) ColumnType(i int) common.ColumnType {
	return desc.columns[i]
}

// MaxRowSize returns the largest encoded size of a row.
func (desc *RowDesc) MaxRowSize() int {
	return desc.maxSize
}

// IsNull reports whether column i of row is NULL.
func (desc *RowDesc) IsNull(row RawRow, i int) bool {
	return row[i/8]&(1<<(i%8)) != 0
}

// Offset returns the byte offset of column i. Rows are variable-length, so this walks the preceding columns.
func (desc *RowDesc) Offset(row RawRow, i int) int {
	common.Assert(i >= 0 && i < len(desc.columns), "column %d out of range", i)
	offset := desc.bitmapSize
	for c := 0; c < i; c++ {
		if desc.IsNull(row, c) {
			continue
		}
		offset += ColumnSize(desc.columns[c], row[offset:])
	}
	return offset
}

// ColumnBytes returns the encoded bytes of column i, or nil if it is NULL. The slice aliases row.
func (desc *RowDesc) ColumnBytes(row RawRow, i int) []byte {
	if desc.IsNull(row, i) {
		return nil
	}
	offset := desc.Offset(row, i)
	return row[offset : offset+ColumnSize(desc.columns[i], row[offset:])]
}

// GetValue deserializes column i of row.
func (desc *RowDesc) GetValue(row RawRow, i int) common.Value {
	ct := desc.columns[i]
	if desc.IsNull(row, i) {
		return common.NewNullValue(ct.ResultType())
	}
	return GetValue(ct, row[desc.Offset(row, i):])
}

// Decode deserializes every column of row.
func (desc *RowDesc) Decode(row RawRow) []common.Value {
	values := make([]common.Value, len(desc.columns))
	offset := desc.bitmapSize
	for i, ct := range desc.columns {
		if desc.IsNull(row, i) {
			values[i] = common.NewNullValue(ct.ResultType())
			continue
		}
		values[i] = GetValue(ct, row[offset:])
		offset += ColumnSize(ct, row[offset:])
	}
	return values
}

// Encode serializes a full row of values.
func (desc *RowDesc) Encode(values []common.Value) (RawRow, error) {
	common.Assert(len(values) == len(desc.columns), "row has %d values for %d columns", len(values), len(desc.columns))
	b := NewRowBuilder(desc)
	for i, v := range values {
		n, err := PutValue(b.Free(), desc.columns[i], v)
		if err != nil {
			return nil, err
		}
		b.Advance(n)
	}
	return b.Row(), nil
}

// RowBuilder assembles a RawRow column by column. A writer encodes the next column into Free and then reports the
// number of bytes it wrote with Advance; a negative count marks the column NULL.
type RowBuilder struct {
	desc *RowDesc
	buf  []byte
	pos  int
	col  int
}

func NewRowBuilder(desc *RowDesc) *RowBuilder {
	return &RowBuilder{desc: desc, buf: make([]byte, desc.maxSize), pos: desc.bitmapSize}
}

// Reset prepares the builder for a new row, reusing its buffer.
func (b *RowBuilder) Reset() {
	clear(b.buf[:b.desc.bitmapSize])
	b.pos = b.desc.bitmapSize
	b.col = 0
}

// Column returns the index of the next column to be written.
func (b *RowBuilder) Column() int {
	return b.col
}

// ColumnType returns the type of the next column to be written.
func (b *RowBuilder) ColumnType() common.ColumnType {
	return b.desc.columns[b.col]
}

// Free returns the unwritten tail of the buffer. It always has room for the next column.
func (b *RowBuilder) Free() []byte {
	return b.buf[b.pos:]
}

// Advance completes the current column. n is the number of bytes written into Free, or -1 for NULL.
func (b *RowBuilder) Advance(n int) {
	common.Assert(b.col < len(b.desc.columns), "row already has %d columns", len(b.desc.columns))
	if n < 0 {
		b.buf[b.col/8] |= 1 << (b.col % 8)
	} else {
		b.pos += n
	}
	b.col++
}

// Row returns a copy of the assembled row. Every column must have been written.
func (b *RowBuilder) Row() RawRow {
	common.Assert(b.col == len(b.desc.columns), "row has %d of %d columns", b.col, len(b.desc.columns))
	row := make(RawRow, b.pos)
	copy(row, b.buf[:b.pos])
	return row
}
