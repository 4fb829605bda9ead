package rowdb

import (
	"strconv"
	"strings"

	"mit.edu/dsg/rowdb/common"
	"mit.edu/dsg/rowdb/sql"
)

// ResultSet is a cursor over materialized rows. It starts before the first row; Next moves it forward. Columns are
// numbered from 1.
type ResultSet struct {
	columns []sql.ResultColumn
	rows    [][]common.Value
	pos     int
	wasNull bool
	closed  bool
}

func newResultSet(res *sql.SelectResult) *ResultSet {
	rows := make([][]common.Value, res.NumRows())
	for i := range rows {
		rows[i] = res.Row(i)
	}
	return NewResultSet(res.Columns(), rows)
}

// NewResultSet builds a result set over the given rows. Each row must have one value per column.
func NewResultSet(columns []sql.ResultColumn, rows [][]common.Value) *ResultSet {
	for _, row := range rows {
		common.Assert(len(row) == len(columns), "row with %d cells for %d columns", len(row), len(columns))
	}
	return &ResultSet{columns: columns, rows: rows, pos: -1}
}

// Next advances to the next row and reports whether there is one.
func (rs *ResultSet) Next() bool {
	if rs.closed || rs.pos >= len(rs.rows) {
		return false
	}
	rs.pos++
	return rs.pos < len(rs.rows)
}

func (rs *ResultSet) ColumnCount() int {
	return len(rs.columns)
}

// ColumnName returns the name of column i.
func (rs *ResultSet) ColumnName(i int) (string, error) {
	if i < 1 || i > len(rs.columns) {
		return "", common.NewError(common.NoSuchObjectError, "column %d out of range", i)
	}
	return rs.columns[i-1].Name, nil
}

// FindColumn returns the number of the first column with the given name, ignoring case.
func (rs *ResultSet) FindColumn(name string) (int, error) {
	for i, c := range rs.columns {
		if strings.EqualFold(c.Name, name) {
			return i + 1, nil
		}
	}
	return 0, common.NewError(common.NoSuchObjectError, "no column named '%s'", name)
}

// WasNull reports whether the last value read was NULL.
func (rs *ResultSet) WasNull() bool {
	return rs.wasNull
}

// GetString returns column i of the current row as text. NULL is the empty string.
func (rs *ResultSet) GetString(i int) (string, error) {
	v, err := rs.value(i)
	if err != nil || v.IsNull() {
		return "", err
	}
	return v.String(), nil
}

// GetLong returns column i of the current row as an integer. Strings are parsed; doubles are truncated. NULL is 0.
func (rs *ResultSet) GetLong(i int) (int64, error) {
	v, err := rs.value(i)
	if err != nil || v.IsNull() {
		return 0, err
	}
	switch t := v.Type(); {
	case t.IsLong(), t == common.BooleanType:
		return v.LongValue(), nil
	case t == common.DoubleType:
		return int64(v.DoubleValue()), nil
	case t == common.StringType:
		n, err := strconv.ParseInt(strings.TrimSpace(v.StringValue()), 10, 64)
		if err != nil {
			return 0, common.WrapError(common.ParseError, err, "column %d is not an integer", i)
		}
		return n, nil
	}
	return 0, common.NewError(common.UnsupportedOperationError, "cannot read %s column %d as a long", v.Type(), i)
}

// GetDouble returns column i of the current row as a double. Strings are parsed. NULL is 0.
func (rs *ResultSet) GetDouble(i int) (float64, error) {
	v, err := rs.value(i)
	if err != nil || v.IsNull() {
		return 0, err
	}
	switch t := v.Type(); {
	case t.IsDouble():
		return v.DoubleValue(), nil
	case t == common.StringType:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.StringValue()), 64)
		if err != nil {
			return 0, common.WrapError(common.ParseError, err, "column %d is not a number", i)
		}
		return f, nil
	}
	return 0, common.NewError(common.UnsupportedOperationError, "cannot read %s column %d as a double", v.Type(), i)
}

func (rs *ResultSet) value(i int) (common.Value, error) {
	if rs.closed {
		return common.Value{}, common.NewError(common.TransactionClosedError, "result set is closed")
	}
	if rs.pos < 0 || rs.pos >= len(rs.rows) {
		return common.Value{}, common.NewError(common.UnsupportedOperationError, "result set is not on a row")
	}
	if i < 1 || i > len(rs.columns) {
		return common.Value{}, common.NewError(common.NoSuchObjectError, "column %d out of range", i)
	}
	v := rs.rows[rs.pos][i-1]
	rs.wasNull = v.IsNull()
	return v, nil
}

// Close releases the rows. Closing twice is a no-op.
func (rs *ResultSet) Close() error {
	rs.closed = true
	rs.rows = nil
	return nil
}
