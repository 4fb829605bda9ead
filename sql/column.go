package sql

import (
	"io"
	"strconv"
	"strings"

	"mit.edu/dsg/rowdb/catalog"
	"mit.edu/dsg/rowdb/common"
	"mit.edu/dsg/rowdb/storage"
)

// identifierExpr is an unresolved column reference. Bind replaces it with a ColumnExpr.
type identifierExpr struct {
	baseExpr
	alias string
	name  string
}

// Column references a column. alias may be empty when the name is unambiguous across the FROM list.
func Column(alias, name string) Expr {
	return &identifierExpr{alias: alias, name: name}
}

func (e *identifierExpr) Bind(q *Query) (Expr, error) {
	item, column, err := q.resolveColumn(e.alias, e.name)
	if err != nil {
		return nil, err
	}
	return newColumnExpr(item, column), nil
}

func (e *identifierExpr) EvalLong(ctx *QueryContext) (int64, error) {
	return 0, unsupported("EvalLong on an unbound column")
}

func (e *identifierExpr) EvalDouble(ctx *QueryContext) (float64, error) {
	return 0, unsupported("EvalDouble on an unbound column")
}

func (e *identifierExpr) EvalDate(ctx *QueryContext) (int64, error) {
	return 0, unsupported("EvalDate on an unbound column")
}

func (e *identifierExpr) String() string {
	if e.alias == "" {
		return e.name
	}
	return e.alias + "." + e.name
}

// starExpr stands for every column of one FROM item, or of all of them. The SELECT compiler expands it before
// binding.
type starExpr struct {
	baseExpr
	alias string
}

// Star selects every column of the aliased item, or of every item when alias is empty.
func Star(alias string) Expr {
	return &starExpr{alias: alias}
}

func (e *starExpr) Bind(q *Query) (Expr, error) {
	return nil, common.NewError(common.BindError, "%s is only allowed as a SELECT column", e)
}

func (e *starExpr) EvalLong(ctx *QueryContext) (int64, error) {
	return 0, unsupported("EvalLong")
}

func (e *starExpr) EvalDouble(ctx *QueryContext) (float64, error) {
	return 0, unsupported("EvalDouble")
}

func (e *starExpr) EvalDate(ctx *QueryContext) (int64, error) {
	return 0, unsupported("EvalDate")
}

func (e *starExpr) String() string {
	if e.alias == "" {
		return "*"
	}
	return e.alias + ".*"
}

// ColumnExpr reads a column of the current row of its FROM item. A missing row (an empty group) reads as NULL.
type ColumnExpr struct {
	baseExpr
	item   *FromItem
	column int
	ct     common.ColumnType
}

func newColumnExpr(item *FromItem, column int) *ColumnExpr {
	return &ColumnExpr{item: item, column: column, ct: item.table.Columns[column].Type}
}

func (e *ColumnExpr) Bind(q *Query) (Expr, error) {
	return e, nil
}

func (e *ColumnExpr) Type() common.Type {
	return e.ct.ResultType()
}

func (e *ColumnExpr) Name() string {
	return e.item.table.Columns[e.column].Name
}

func (e *ColumnExpr) Table() *catalog.Table {
	return e.item.table
}

// Item returns the FROM item the column belongs to.
func (e *ColumnExpr) Item() *FromItem {
	return e.item
}

// ColumnIndex returns the position of the column in its table.
func (e *ColumnExpr) ColumnIndex() int {
	return e.column
}

func (e *ColumnExpr) Cost(fromList []*FromItem) Cost {
	if containsItem(fromList, e.item) {
		return CostConstant
	}
	return CostNoTable
}

// bytes returns the encoded column of the current row, or nil for NULL.
func (e *ColumnExpr) bytes(ctx *QueryContext) []byte {
	row := ctx.Row(e.item.index)
	if row == nil {
		return nil
	}
	return e.item.heap.StorageSchema().ColumnBytes(row, e.column)
}

func (e *ColumnExpr) IsNull(ctx *QueryContext) (bool, error) {
	return e.bytes(ctx) == nil, nil
}

func (e *ColumnExpr) EvalBoolean(ctx *QueryContext) (Bool, error) {
	b := e.bytes(ctx)
	switch {
	case b == nil:
		return Unknown, nil
	case e.ct == common.VarCharColumn:
		return parseBoolean(storage.GetVarChar(b))
	}
	return BoolOf(e.long(b) != 0), nil
}

func (e *ColumnExpr) long(b []byte) int64 {
	if e.ct == common.IntColumn {
		return int64(storage.GetInt(b))
	}
	return storage.GetLong(b)
}

func (e *ColumnExpr) EvalString(ctx *QueryContext) (string, bool, error) {
	b := e.bytes(ctx)
	if b == nil {
		return "", false, nil
	}
	switch e.ct {
	case common.VarCharColumn:
		return storage.GetVarChar(b), true, nil
	case common.DateColumn:
		return common.FormatDate(storage.GetLong(b)), true, nil
	}
	return strconv.FormatInt(e.long(b), 10), true, nil
}

func (e *ColumnExpr) EvalLong(ctx *QueryContext) (int64, error) {
	b := e.bytes(ctx)
	switch {
	case b == nil:
		return 0, nil
	case e.ct == common.VarCharColumn:
		return parseLong(storage.GetVarChar(b))
	}
	return e.long(b), nil
}

func (e *ColumnExpr) EvalDouble(ctx *QueryContext) (float64, error) {
	b := e.bytes(ctx)
	switch {
	case b == nil:
		return 0, nil
	case e.ct == common.VarCharColumn:
		return parseDouble(storage.GetVarChar(b))
	}
	return float64(e.long(b)), nil
}

func (e *ColumnExpr) EvalDate(ctx *QueryContext) (int64, error) {
	b := e.bytes(ctx)
	switch {
	case b == nil:
		return 0, common.NewError(common.ParseError, "cannot convert NULL to a date")
	case e.ct == common.VarCharColumn:
		return ctx.ParseDate(storage.GetVarChar(b))
	}
	return e.long(b), nil
}

func (e *ColumnExpr) EvalStream(ctx *QueryContext) (io.Reader, error) {
	s, _, err := e.EvalString(ctx)
	if err != nil {
		return nil, err
	}
	return strings.NewReader(s), nil
}

// EvalToResult writes the typed column value.
func (e *ColumnExpr) EvalToResult(ctx *QueryContext, res *SelectResult) error {
	b := e.bytes(ctx)
	if b == nil {
		res.WriteValue(common.NewNullValue(e.Type()))
		return nil
	}
	res.WriteValue(storage.GetValue(e.ct, b))
	return nil
}

// EvalToBuffer copies the stored bytes when the target column has the same type, and converts otherwise.
func (e *ColumnExpr) EvalToBuffer(ctx *QueryContext, buf []byte, columnType common.ColumnType) (int, error) {
	if columnType != e.ct {
		return encodeExpr(e, ctx, buf, columnType)
	}
	b := e.bytes(ctx)
	if b == nil {
		return -1, nil
	}
	return copy(buf, b), nil
}

func (e *ColumnExpr) String() string {
	return e.item.alias + "." + e.Name()
}
