package sql

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"mit.edu/dsg/rowdb/common"
)

// StringExpr is a string literal. It only knows its string value; every other evaluation parses it.
type StringExpr struct {
	baseExpr
	value string
}

func String(s string) *StringExpr {
	return &StringExpr{value: s}
}

func (e *StringExpr) Bind(q *Query) (Expr, error) {
	return e, nil
}

func (e *StringExpr) Type() common.Type {
	return common.StringType
}

func (e *StringExpr) Cost(fromList []*FromItem) Cost {
	return CostConstant
}

func (e *StringExpr) EvalString(ctx *QueryContext) (string, bool, error) {
	return e.value, true, nil
}

func (e *StringExpr) EvalBoolean(ctx *QueryContext) (Bool, error) {
	return parseBoolean(e.value)
}

func (e *StringExpr) EvalLong(ctx *QueryContext) (int64, error) {
	return LongFromString(e, ctx)
}

func (e *StringExpr) EvalDouble(ctx *QueryContext) (float64, error) {
	return DoubleFromString(e, ctx)
}

func (e *StringExpr) EvalDate(ctx *QueryContext) (int64, error) {
	return DateFromString(e, ctx)
}

func (e *StringExpr) EvalStream(ctx *QueryContext) (io.Reader, error) {
	return strings.NewReader(e.value), nil
}

func (e *StringExpr) String() string {
	return "'" + strings.ReplaceAll(e.value, "'", "''") + "'"
}

// LongExpr is an integer literal.
type LongExpr struct {
	baseExpr
	value int64
}

func Long(n int64) *LongExpr {
	return &LongExpr{value: n}
}

func (e *LongExpr) Bind(q *Query) (Expr, error) {
	return e, nil
}

func (e *LongExpr) Type() common.Type {
	return common.LongType
}

func (e *LongExpr) Cost(fromList []*FromItem) Cost {
	return CostConstant
}

func (e *LongExpr) EvalBoolean(ctx *QueryContext) (Bool, error) {
	return BoolOf(e.value != 0), nil
}

func (e *LongExpr) EvalString(ctx *QueryContext) (string, bool, error) {
	return strconv.FormatInt(e.value, 10), true, nil
}

func (e *LongExpr) EvalLong(ctx *QueryContext) (int64, error) {
	return e.value, nil
}

func (e *LongExpr) EvalDouble(ctx *QueryContext) (float64, error) {
	return float64(e.value), nil
}

func (e *LongExpr) EvalDate(ctx *QueryContext) (int64, error) {
	return e.value, nil
}

func (e *LongExpr) EvalToResult(ctx *QueryContext, res *SelectResult) error {
	res.WriteValue(common.NewLongValue(e.value))
	return nil
}

func (e *LongExpr) String() string {
	return strconv.FormatInt(e.value, 10)
}

// DoubleExpr is a floating-point literal.
type DoubleExpr struct {
	baseExpr
	value float64
}

func Double(f float64) *DoubleExpr {
	return &DoubleExpr{value: f}
}

func (e *DoubleExpr) Bind(q *Query) (Expr, error) {
	return e, nil
}

func (e *DoubleExpr) Type() common.Type {
	return common.DoubleType
}

func (e *DoubleExpr) Cost(fromList []*FromItem) Cost {
	return CostConstant
}

func (e *DoubleExpr) EvalBoolean(ctx *QueryContext) (Bool, error) {
	return BoolOf(e.value != 0), nil
}

func (e *DoubleExpr) EvalString(ctx *QueryContext) (string, bool, error) {
	return formatDouble(e.value), true, nil
}

func (e *DoubleExpr) EvalLong(ctx *QueryContext) (int64, error) {
	return int64(e.value), nil
}

func (e *DoubleExpr) EvalDouble(ctx *QueryContext) (float64, error) {
	return e.value, nil
}

func (e *DoubleExpr) EvalDate(ctx *QueryContext) (int64, error) {
	return int64(e.value), nil
}

func (e *DoubleExpr) EvalToResult(ctx *QueryContext, res *SelectResult) error {
	res.WriteValue(common.NewDoubleValue(e.value))
	return nil
}

func (e *DoubleExpr) String() string {
	return formatDouble(e.value)
}

// BoolExpr is TRUE or FALSE.
type BoolExpr struct {
	baseExpr
	value bool
}

func Boolean(b bool) *BoolExpr {
	return &BoolExpr{value: b}
}

func (e *BoolExpr) Bind(q *Query) (Expr, error) {
	return e, nil
}

func (e *BoolExpr) Type() common.Type {
	return common.BooleanType
}

func (e *BoolExpr) Cost(fromList []*FromItem) Cost {
	return CostConstant
}

func (e *BoolExpr) EvalBoolean(ctx *QueryContext) (Bool, error) {
	return BoolOf(e.value), nil
}

func (e *BoolExpr) EvalString(ctx *QueryContext) (string, bool, error) {
	return boolString(e, ctx)
}

func (e *BoolExpr) EvalLong(ctx *QueryContext) (int64, error) {
	return boolLong(e, ctx)
}

func (e *BoolExpr) EvalDouble(ctx *QueryContext) (float64, error) {
	return boolDouble(e, ctx)
}

func (e *BoolExpr) EvalDate(ctx *QueryContext) (int64, error) {
	return 0, unsupported("EvalDate")
}

func (e *BoolExpr) String() string {
	if e.value {
		return "TRUE"
	}
	return "FALSE"
}

// NullExpr is the NULL literal.
type NullExpr struct {
	baseExpr
}

func Null() *NullExpr {
	return &NullExpr{}
}

func (e *NullExpr) Bind(q *Query) (Expr, error) {
	return e, nil
}

func (e *NullExpr) Cost(fromList []*FromItem) Cost {
	return CostConstant
}

func (e *NullExpr) IsNull(ctx *QueryContext) (bool, error) {
	return true, nil
}

func (e *NullExpr) EvalBoolean(ctx *QueryContext) (Bool, error) {
	return Unknown, nil
}

func (e *NullExpr) EvalString(ctx *QueryContext) (string, bool, error) {
	return "", false, nil
}

func (e *NullExpr) EvalLong(ctx *QueryContext) (int64, error) {
	return 0, nil
}

func (e *NullExpr) EvalDouble(ctx *QueryContext) (float64, error) {
	return 0, nil
}

func (e *NullExpr) EvalDate(ctx *QueryContext) (int64, error) {
	return 0, nil
}

func (e *NullExpr) String() string {
	return "NULL"
}

// ParamExpr is a statement parameter, numbered from 0. It is untyped until a comparison with a typed expression
// gives it that expression's type.
type ParamExpr struct {
	baseExpr
	index int
	typ   common.Type
}

func Param(index int) *ParamExpr {
	return &ParamExpr{index: index}
}

func (e *ParamExpr) Bind(q *Query) (Expr, error) {
	if e.index < 0 {
		return nil, common.NewError(common.BindError, "invalid parameter index %d", e.index)
	}
	q.useParam(e.index)
	return &ParamExpr{index: e.index, typ: e.typ}, nil
}

// withType returns a copy of the parameter typed as t.
func (e *ParamExpr) withType(t common.Type) *ParamExpr {
	return &ParamExpr{index: e.index, typ: t}
}

func (e *ParamExpr) Type() common.Type {
	return e.typ
}

func (e *ParamExpr) Cost(fromList []*FromItem) Cost {
	return CostConstant
}

func (e *ParamExpr) IsNull(ctx *QueryContext) (bool, error) {
	v, err := ctx.Param(e.index)
	return err == nil && v.IsNull(), err
}

func (e *ParamExpr) EvalBoolean(ctx *QueryContext) (Bool, error) {
	v, err := ctx.Param(e.index)
	if err != nil {
		return Unknown, err
	}
	return valueBoolean(v)
}

func (e *ParamExpr) EvalString(ctx *QueryContext) (string, bool, error) {
	v, err := ctx.Param(e.index)
	if err != nil {
		return "", false, err
	}
	s, ok := valueString(v)
	return s, ok, nil
}

func (e *ParamExpr) EvalLong(ctx *QueryContext) (int64, error) {
	v, err := ctx.Param(e.index)
	if err != nil {
		return 0, err
	}
	return ValueToLong(v)
}

func (e *ParamExpr) EvalDouble(ctx *QueryContext) (float64, error) {
	v, err := ctx.Param(e.index)
	if err != nil {
		return 0, err
	}
	return ValueToDouble(v)
}

func (e *ParamExpr) EvalDate(ctx *QueryContext) (int64, error) {
	v, err := ctx.Param(e.index)
	if err != nil {
		return 0, err
	}
	return valueDate(ctx, v)
}

func (e *ParamExpr) EvalStream(ctx *QueryContext) (io.Reader, error) {
	v, err := ctx.Param(e.index)
	if err != nil {
		return nil, err
	}
	if v.Type() == common.BinaryStreamType && !v.IsNull() {
		return bytes.NewReader(v.BytesValue()), nil
	}
	s, _ := valueString(v)
	return strings.NewReader(s), nil
}

func (e *ParamExpr) EvalToResult(ctx *QueryContext, res *SelectResult) error {
	v, err := ctx.Param(e.index)
	if err != nil {
		return err
	}
	res.WriteValue(v)
	return nil
}

func (e *ParamExpr) String() string {
	return fmt.Sprintf("?%d", e.index)
}

// isLiteral reports whether e is a literal whose value is known at bind time.
func isLiteral(e Expr) bool {
	switch e.(type) {
	case *StringExpr, *LongExpr, *DoubleExpr, *BoolExpr, *NullExpr:
		return true
	}
	return false
}
