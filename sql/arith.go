package sql

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"mit.edu/dsg/rowdb/common"
)

type ArithOp int

const (
	OpAdd ArithOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
)

func (op ArithOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	}
	return "???"
}

// ArithExpr is a binary arithmetic operation. It computes in longs when both operands are long-typed and in
// doubles otherwise. A NULL operand, or a zero divisor, makes the result NULL.
type ArithExpr struct {
	baseExpr
	op    ArithOp
	left  Expr
	right Expr
	typ   common.Type
}

func Arith(op ArithOp, left, right Expr) Expr {
	return &ArithExpr{op: op, left: left, right: right}
}

func Add(left, right Expr) Expr { return Arith(OpAdd, left, right) }
func Sub(left, right Expr) Expr { return Arith(OpSub, left, right) }
func Mul(left, right Expr) Expr { return Arith(OpMul, left, right) }
func Div(left, right Expr) Expr { return Arith(OpDiv, left, right) }
func Mod(left, right Expr) Expr { return Arith(OpMod, left, right) }

func (e *ArithExpr) Bind(q *Query) (Expr, error) {
	left, err := e.left.Bind(q)
	if err != nil {
		return nil, err
	}
	right, err := e.right.Bind(q)
	if err != nil {
		return nil, err
	}
	typ := common.DoubleType
	if IsLong(left) && IsLong(right) {
		typ = common.LongType
	}
	bound := &ArithExpr{op: e.op, left: left, right: right, typ: typ}
	if isLiteral(left) && isLiteral(right) {
		return fold(bound), nil
	}
	return bound, nil
}

// fold replaces an expression over literals by its value. An expression that fails to evaluate is kept, so the
// error surfaces when the statement runs.
func fold(e interface {
	Expr
	eval(ctx *QueryContext) (common.Value, error)
}) Expr {
	ctx := AllocateQueryContext()
	defer FreeQueryContext(ctx)
	v, err := e.eval(ctx)
	if err != nil {
		return e
	}
	return valueLiteral(v)
}

// valueLiteral returns the literal node for v.
func valueLiteral(v common.Value) Expr {
	if v.IsNull() {
		return Null()
	}
	switch t := v.Type(); {
	case t.IsLong():
		return Long(v.LongValue())
	case t == common.DoubleType:
		return Double(v.DoubleValue())
	case t == common.BooleanType:
		return Boolean(v.BoolValue())
	}
	return String(v.String())
}

func (e *ArithExpr) Type() common.Type {
	return e.typ
}

func (e *ArithExpr) Cost(fromList []*FromItem) Cost {
	return maxCost(fromList, e.left, e.right)
}

func (e *ArithExpr) eval(ctx *QueryContext) (common.Value, error) {
	for _, side := range []Expr{e.left, e.right} {
		null, err := side.IsNull(ctx)
		if err != nil {
			return common.Value{}, err
		}
		if null {
			return common.NewNullValue(e.typ), nil
		}
	}
	if e.typ == common.LongType {
		a, err := e.left.EvalLong(ctx)
		if err != nil {
			return common.Value{}, err
		}
		b, err := e.right.EvalLong(ctx)
		if err != nil {
			return common.Value{}, err
		}
		return e.longOp(a, b), nil
	}
	a, err := e.left.EvalDouble(ctx)
	if err != nil {
		return common.Value{}, err
	}
	b, err := e.right.EvalDouble(ctx)
	if err != nil {
		return common.Value{}, err
	}
	return e.doubleOp(a, b), nil
}

func (e *ArithExpr) longOp(a, b int64) common.Value {
	switch e.op {
	case OpAdd:
		return common.NewLongValue(a + b)
	case OpSub:
		return common.NewLongValue(a - b)
	case OpMul:
		return common.NewLongValue(a * b)
	case OpDiv:
		if b == 0 {
			return common.NewNullValue(common.LongType)
		}
		return common.NewLongValue(a / b)
	case OpMod:
		if b == 0 {
			return common.NewNullValue(common.LongType)
		}
		return common.NewLongValue(a % b)
	}
	panic("unknown arithmetic operator")
}

func (e *ArithExpr) doubleOp(a, b float64) common.Value {
	switch e.op {
	case OpAdd:
		return common.NewDoubleValue(a + b)
	case OpSub:
		return common.NewDoubleValue(a - b)
	case OpMul:
		return common.NewDoubleValue(a * b)
	case OpDiv:
		if b == 0 {
			return common.NewNullValue(common.DoubleType)
		}
		return common.NewDoubleValue(a / b)
	case OpMod:
		if b == 0 {
			return common.NewNullValue(common.DoubleType)
		}
		return common.NewDoubleValue(math.Mod(a, b))
	}
	panic("unknown arithmetic operator")
}

func (e *ArithExpr) IsNull(ctx *QueryContext) (bool, error) {
	v, err := e.eval(ctx)
	return err == nil && v.IsNull(), err
}

func (e *ArithExpr) EvalBoolean(ctx *QueryContext) (Bool, error) {
	v, err := e.eval(ctx)
	if err != nil {
		return Unknown, err
	}
	return valueBoolean(v)
}

func (e *ArithExpr) EvalString(ctx *QueryContext) (string, bool, error) {
	v, err := e.eval(ctx)
	if err != nil {
		return "", false, err
	}
	s, ok := valueString(v)
	return s, ok, nil
}

func (e *ArithExpr) EvalLong(ctx *QueryContext) (int64, error) {
	v, err := e.eval(ctx)
	if err != nil {
		return 0, err
	}
	return ValueToLong(v)
}

func (e *ArithExpr) EvalDouble(ctx *QueryContext) (float64, error) {
	v, err := e.eval(ctx)
	if err != nil {
		return 0, err
	}
	return ValueToDouble(v)
}

func (e *ArithExpr) EvalDate(ctx *QueryContext) (int64, error) {
	v, err := e.eval(ctx)
	if err != nil {
		return 0, err
	}
	return valueDate(ctx, v)
}

func (e *ArithExpr) EvalToResult(ctx *QueryContext, res *SelectResult) error {
	v, err := e.eval(ctx)
	if err != nil {
		return err
	}
	res.WriteValue(v)
	return nil
}

func (e *ArithExpr) InitGroup(ctx *QueryContext) error {
	return initGroupAll(ctx, e.left, e.right)
}

func (e *ArithExpr) EvalGroup(ctx *QueryContext) error {
	return evalGroupAll(ctx, e.left, e.right)
}

func (e *ArithExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.left.String(), e.op.String(), e.right.String())
}

// ConcatExpr joins two strings. A NULL operand makes the result NULL.
type ConcatExpr struct {
	baseExpr
	left  Expr
	right Expr
}

func Concat(left, right Expr) Expr {
	return &ConcatExpr{left: left, right: right}
}

func (e *ConcatExpr) Bind(q *Query) (Expr, error) {
	left, err := e.left.Bind(q)
	if err != nil {
		return nil, err
	}
	right, err := e.right.Bind(q)
	if err != nil {
		return nil, err
	}
	bound := &ConcatExpr{left: left, right: right}
	if isLiteral(left) && isLiteral(right) {
		return fold(bound), nil
	}
	return bound, nil
}

func (e *ConcatExpr) Type() common.Type {
	return common.StringType
}

func (e *ConcatExpr) Cost(fromList []*FromItem) Cost {
	return maxCost(fromList, e.left, e.right)
}

func (e *ConcatExpr) eval(ctx *QueryContext) (common.Value, error) {
	s, ok, err := e.EvalString(ctx)
	if err != nil {
		return common.Value{}, err
	}
	if !ok {
		return common.NewNullValue(common.StringType), nil
	}
	return common.NewStringValue(s), nil
}

func (e *ConcatExpr) IsNull(ctx *QueryContext) (bool, error) {
	_, ok, err := e.EvalString(ctx)
	return err == nil && !ok, err
}

func (e *ConcatExpr) EvalString(ctx *QueryContext) (string, bool, error) {
	a, ok, err := e.left.EvalString(ctx)
	if err != nil || !ok {
		return "", false, err
	}
	b, ok, err := e.right.EvalString(ctx)
	if err != nil || !ok {
		return "", false, err
	}
	return a + b, true, nil
}

func (e *ConcatExpr) EvalBoolean(ctx *QueryContext) (Bool, error) {
	s, ok, err := e.EvalString(ctx)
	if err != nil || !ok {
		return Unknown, err
	}
	return parseBoolean(s)
}

func (e *ConcatExpr) EvalLong(ctx *QueryContext) (int64, error) {
	return LongFromString(e, ctx)
}

func (e *ConcatExpr) EvalDouble(ctx *QueryContext) (float64, error) {
	return DoubleFromString(e, ctx)
}

func (e *ConcatExpr) EvalDate(ctx *QueryContext) (int64, error) {
	return DateFromString(e, ctx)
}

func (e *ConcatExpr) EvalStream(ctx *QueryContext) (io.Reader, error) {
	s, _, err := e.EvalString(ctx)
	if err != nil {
		return nil, err
	}
	return strings.NewReader(s), nil
}

func (e *ConcatExpr) InitGroup(ctx *QueryContext) error {
	return initGroupAll(ctx, e.left, e.right)
}

func (e *ConcatExpr) EvalGroup(ctx *QueryContext) error {
	return evalGroupAll(ctx, e.left, e.right)
}

func (e *ConcatExpr) String() string {
	return fmt.Sprintf("(%s || %s)", e.left.String(), e.right.String())
}

// NegExpr is unary minus.
type NegExpr struct {
	baseExpr
	operand Expr
}

func Neg(operand Expr) Expr {
	return &NegExpr{operand: operand}
}

func (e *NegExpr) Bind(q *Query) (Expr, error) {
	operand, err := e.operand.Bind(q)
	if err != nil {
		return nil, err
	}
	bound := &NegExpr{operand: operand}
	if isLiteral(operand) {
		return fold(bound), nil
	}
	return bound, nil
}

func (e *NegExpr) Type() common.Type {
	if IsLong(e.operand) {
		return common.LongType
	}
	return common.DoubleType
}

func (e *NegExpr) Cost(fromList []*FromItem) Cost {
	return maxCost(fromList, e.operand)
}

func (e *NegExpr) eval(ctx *QueryContext) (common.Value, error) {
	null, err := e.operand.IsNull(ctx)
	if err != nil {
		return common.Value{}, err
	}
	if null {
		return common.NewNullValue(e.Type()), nil
	}
	if e.Type() == common.LongType {
		n, err := e.operand.EvalLong(ctx)
		return common.NewLongValue(-n), err
	}
	f, err := e.operand.EvalDouble(ctx)
	return common.NewDoubleValue(-f), err
}

func (e *NegExpr) IsNull(ctx *QueryContext) (bool, error) {
	return e.operand.IsNull(ctx)
}

func (e *NegExpr) EvalBoolean(ctx *QueryContext) (Bool, error) {
	v, err := e.eval(ctx)
	if err != nil {
		return Unknown, err
	}
	return valueBoolean(v)
}

func (e *NegExpr) EvalString(ctx *QueryContext) (string, bool, error) {
	v, err := e.eval(ctx)
	if err != nil {
		return "", false, err
	}
	if v.IsNull() {
		return "", false, nil
	}
	if v.Type() == common.LongType {
		return strconv.FormatInt(v.LongValue(), 10), true, nil
	}
	return formatDouble(v.DoubleValue()), true, nil
}

func (e *NegExpr) EvalLong(ctx *QueryContext) (int64, error) {
	v, err := e.eval(ctx)
	if err != nil {
		return 0, err
	}
	return ValueToLong(v)
}

func (e *NegExpr) EvalDouble(ctx *QueryContext) (float64, error) {
	v, err := e.eval(ctx)
	if err != nil {
		return 0, err
	}
	return ValueToDouble(v)
}

func (e *NegExpr) EvalDate(ctx *QueryContext) (int64, error) {
	return 0, unsupported("EvalDate on a negation")
}

func (e *NegExpr) EvalToResult(ctx *QueryContext, res *SelectResult) error {
	v, err := e.eval(ctx)
	if err != nil {
		return err
	}
	res.WriteValue(v)
	return nil
}

func (e *NegExpr) InitGroup(ctx *QueryContext) error {
	return e.operand.InitGroup(ctx)
}

func (e *NegExpr) EvalGroup(ctx *QueryContext) error {
	return e.operand.EvalGroup(ctx)
}

func (e *NegExpr) String() string {
	return "-" + e.operand.String()
}
