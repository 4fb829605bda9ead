package sql

import (
	"cmp"
	"fmt"
	"strings"

	"mit.edu/dsg/rowdb/common"
)

type CmpOp int

const (
	OpEq CmpOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

func (op CmpOp) String() string {
	switch op {
	case OpEq:
		return "="
	case OpNe:
		return "<>"
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	}
	return "???"
}

// holds reports whether the operator accepts a three-way comparison result.
func (op CmpOp) holds(c int) bool {
	switch op {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGe:
		return c >= 0
	}
	panic("unknown comparison operator")
}

// flip returns the operator with its operands swapped: a < b is b > a.
func (op CmpOp) flip() CmpOp {
	switch op {
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	}
	return op
}

// cmpKind is the evaluator a comparison uses for both operands.
type cmpKind int

const (
	cmpLong cmpKind = iota
	cmpDate
	cmpDouble
	cmpString
)

func (k cmpKind) String() string {
	switch k {
	case cmpLong:
		return "long"
	case cmpDate:
		return "date"
	case cmpDouble:
		return "double"
	}
	return "string"
}

func integral(t common.Type) bool {
	return t.IsLong() || t == common.BooleanType
}

// compareKind picks how two operands are compared: as longs when both are integral, as dates when one side is a
// date, as doubles when one side is numeric, and as strings otherwise. A string compared with a number is parsed
// as a number.
func compareKind(lt, rt common.Type) cmpKind {
	switch {
	case integral(lt) && integral(rt):
		return cmpLong
	case lt == common.DateType || rt == common.DateType:
		return cmpDate
	case lt == common.DoubleType || rt == common.DoubleType:
		return cmpDouble
	case lt.IsLong() || rt.IsLong():
		return cmpLong
	}
	return cmpString
}

// runKind refines a bound comparison kind with the run-time values of parameters. A parameter typed from a long
// operand may be bound to a double, which compares as a double instead of being truncated.
func runKind(ctx *QueryContext, kind cmpKind, operands ...Expr) cmpKind {
	if kind != cmpLong {
		return kind
	}
	for _, e := range operands {
		p, ok := e.(*ParamExpr)
		if !ok {
			continue
		}
		if v, err := ctx.Param(p.index); err == nil && !v.IsNull() && v.Type() == common.DoubleType {
			return cmpDouble
		}
	}
	return kind
}

// CompareExpr is a binary comparison. Besides being a predicate, it is what the planner uses to find index lookups
// and range scans.
type CompareExpr struct {
	baseExpr
	op    CmpOp
	left  Expr
	right Expr
	kind  cmpKind
	// from is the FROM list the comparison was bound against
	from []*FromItem
}

func Cmp(op CmpOp, left, right Expr) Expr {
	return &CompareExpr{op: op, left: left, right: right}
}

func Eq(left, right Expr) Expr { return Cmp(OpEq, left, right) }
func Ne(left, right Expr) Expr { return Cmp(OpNe, left, right) }
func Lt(left, right Expr) Expr { return Cmp(OpLt, left, right) }
func Le(left, right Expr) Expr { return Cmp(OpLe, left, right) }
func Gt(left, right Expr) Expr { return Cmp(OpGt, left, right) }
func Ge(left, right Expr) Expr { return Cmp(OpGe, left, right) }

// typeParams gives an untyped parameter the type of the expression it is compared with.
func typeParams(left, right Expr) (Expr, Expr) {
	if p, ok := left.(*ParamExpr); ok && p.typ == common.UnknownType {
		left = p.withType(right.Type())
	}
	if p, ok := right.(*ParamExpr); ok && p.typ == common.UnknownType {
		right = p.withType(left.Type())
	}
	return left, right
}

func (e *CompareExpr) Bind(q *Query) (Expr, error) {
	left, err := e.left.Bind(q)
	if err != nil {
		return nil, err
	}
	right, err := e.right.Bind(q)
	if err != nil {
		return nil, err
	}
	left, right = typeParams(left, right)
	return &CompareExpr{
		op:    e.op,
		left:  left,
		right: right,
		kind:  compareKind(left.Type(), right.Type()),
		from:  q.from,
	}, nil
}

func (e *CompareExpr) Type() common.Type {
	return common.BooleanType
}

// Left and Right return the operands.
func (e *CompareExpr) Left() Expr  { return e.left }
func (e *CompareExpr) Right() Expr { return e.right }
func (e *CompareExpr) Op() CmpOp   { return e.op }

func (e *CompareExpr) IsNull(ctx *QueryContext) (bool, error) {
	return boolNull(e, ctx)
}

func (e *CompareExpr) EvalBoolean(ctx *QueryContext) (Bool, error) {
	for _, side := range []Expr{e.left, e.right} {
		null, err := side.IsNull(ctx)
		if err != nil || null {
			return Unknown, err
		}
	}
	c, ok, err := e.compare(ctx)
	if err != nil || !ok {
		return Unknown, err
	}
	return BoolOf(e.op.holds(c)), nil
}

// compare evaluates both operands with the comparison's kind. ok is false if a string operand turns out NULL.
func (e *CompareExpr) compare(ctx *QueryContext) (int, bool, error) {
	switch runKind(ctx, e.kind, e.left, e.right) {
	case cmpLong:
		a, err := e.left.EvalLong(ctx)
		if err != nil {
			return 0, false, err
		}
		b, err := e.right.EvalLong(ctx)
		return cmp.Compare(a, b), err == nil, err
	case cmpDate:
		a, err := e.left.EvalDate(ctx)
		if err != nil {
			return 0, false, err
		}
		b, err := e.right.EvalDate(ctx)
		return cmp.Compare(a, b), err == nil, err
	case cmpDouble:
		a, err := e.left.EvalDouble(ctx)
		if err != nil {
			return 0, false, err
		}
		b, err := e.right.EvalDouble(ctx)
		return cmp.Compare(a, b), err == nil, err
	}
	a, aok, err := e.left.EvalString(ctx)
	if err != nil || !aok {
		return 0, false, err
	}
	b, bok, err := e.right.EvalString(ctx)
	if err != nil || !bok {
		return 0, false, err
	}
	return strings.Compare(a, b), true, nil
}

func (e *CompareExpr) EvalString(ctx *QueryContext) (string, bool, error) {
	return boolString(e, ctx)
}

func (e *CompareExpr) EvalLong(ctx *QueryContext) (int64, error) {
	return boolLong(e, ctx)
}

func (e *CompareExpr) EvalDouble(ctx *QueryContext) (float64, error) {
	return boolDouble(e, ctx)
}

func (e *CompareExpr) EvalDate(ctx *QueryContext) (int64, error) {
	return 0, unsupported("EvalDate on a comparison")
}

func (e *CompareExpr) InitGroup(ctx *QueryContext) error {
	return initGroupAll(ctx, e.left, e.right)
}

func (e *CompareExpr) EvalGroup(ctx *QueryContext) error {
	return evalGroupAll(ctx, e.left, e.right)
}

// Cost is the access cost when the comparison constrains a column of the last item in terms of the items before
// it, and the cost of its operands otherwise.
func (e *CompareExpr) Cost(fromList []*FromItem) Cost {
	cost := maxCost(fromList, e.left, e.right)
	if cost >= CostNoTable || len(fromList) == 0 {
		return cost
	}
	last := fromList[len(fromList)-1]
	if col, _, op, ok := e.driver(last, fromList[:len(fromList)-1]); ok {
		return e.accessCost(col, op)
	}
	return cost
}

// driver returns the column of item this comparison constrains, the expression it is compared with, and the
// operator oriented as "column op other". ok is false unless other can be evaluated from prefix alone.
func (e *CompareExpr) driver(item *FromItem, prefix []*FromItem) (col *ColumnExpr, other Expr, op CmpOp, ok bool) {
	if c, isCol := e.left.(*ColumnExpr); isCol && c.item == item && e.right.Cost(prefix) < CostNoTable {
		return c, e.right, e.op, true
	}
	if c, isCol := e.right.(*ColumnExpr); isCol && c.item == item && e.left.Cost(prefix) < CostNoTable {
		return c, e.left, e.op.flip(), true
	}
	return nil, nil, 0, false
}

// keyCompatible reports whether the comparison orders values the way an index on col does.
func (e *CompareExpr) keyCompatible(col *ColumnExpr) bool {
	switch e.kind {
	case cmpLong, cmpDouble:
		return IsLong(col)
	case cmpDate:
		return col.Type() == common.DateType
	}
	return col.Type() == common.StringType
}

func (e *CompareExpr) accessCost(col *ColumnExpr, op CmpOp) Cost {
	if !e.keyCompatible(col) {
		return CostScan
	}
	switch op {
	case OpEq:
		if col.item.IndexOn(col.column, false) != nil {
			return CostIndex
		}
		if col.item.Unique(col.column) {
			return CostUnique
		}
	case OpLt, OpLe, OpGt, OpGe:
		if col.item.IndexOn(col.column, true) != nil {
			return CostIndex
		}
	}
	return CostScan
}

func (e *CompareExpr) IndexExpr(item *FromItem) RowIterateExpr {
	col, other, op, ok := e.driver(item, withoutItem(e.from, item))
	if !ok {
		return nil
	}
	switch e.accessCost(col, op) {
	case CostIndex:
		if op == OpEq {
			return &indexLookupExpr{item: item, index: col.item.IndexOn(col.column, false), key: other, kind: e.kind}
		}
		r := &indexRangeExpr{item: item, index: col.item.IndexOn(col.column, true), kind: e.kind}
		bound := &rangeBound{expr: other, inclusive: op == OpLe || op == OpGe}
		if op == OpGt || op == OpGe {
			r.low = bound
		} else {
			r.high = bound
		}
		return r
	case CostUnique:
		return &uniqueScanExpr{item: item, column: col.column, key: other, kind: e.kind}
	}
	return nil
}

func (e *CompareExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.left.String(), e.op.String(), e.right.String())
}
