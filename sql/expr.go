package sql

import (
	"io"

	"mit.edu/dsg/rowdb/catalog"
	"mit.edu/dsg/rowdb/common"
)

// Expr represents a node in an expression tree.
//
// A tree is built unbound, then Bind resolves it against a Query exactly once. Bind may return a different node
// (a resolved column, a folded constant), and the caller must keep the returned node. Bound nodes are immutable
// and may be shared by concurrent executions: everything that changes while a query runs, from the current rows to
// aggregate accumulators, lives in the QueryContext.
//
// Every node implements the typed evaluators it supports. EvalLong, EvalDouble and EvalDate are deliberately not
// provided by baseExpr. A node whose native value is a string delegates them to LongFromString, DoubleFromString
// and DateFromString, so the fallback is spelled out in the node rather than inherited by accident.
type Expr interface {
	// Bind resolves the expression against the query and returns the node to evaluate.
	Bind(q *Query) (Expr, error)

	// Type returns the static result type. It does not change after Bind.
	Type() common.Type

	// Name returns the column name the expression is bound to, or "".
	Name() string

	// Table returns the table the expression is bound to, or nil.
	Table() *catalog.Table

	// Cost estimates the cost of evaluating the expression as a filter once the tables in fromList are available.
	// The last element of fromList is the table being added to the join order.
	Cost(fromList []*FromItem) Cost

	// IndexExpr returns an access path that uses this expression to produce the rows of item, or nil.
	IndexExpr(item *FromItem) RowIterateExpr

	// IsNull reports whether the expression is NULL for the current row.
	IsNull(ctx *QueryContext) (bool, error)

	// EvalBoolean evaluates the expression as a predicate.
	EvalBoolean(ctx *QueryContext) (Bool, error)

	// EvalString evaluates the expression as a string. ok is false when the value is NULL.
	EvalString(ctx *QueryContext) (s string, ok bool, err error)

	// EvalLong evaluates the expression as a long. NULL evaluates to 0; callers that care check IsNull.
	EvalLong(ctx *QueryContext) (int64, error)

	// EvalDouble evaluates the expression as a double. NULL evaluates to 0.
	EvalDouble(ctx *QueryContext) (float64, error)

	// EvalDate evaluates the expression as epoch milliseconds.
	EvalDate(ctx *QueryContext) (int64, error)

	// EvalStream evaluates the expression as a byte stream.
	EvalStream(ctx *QueryContext) (io.Reader, error)

	// InitGroup resets the aggregate state of the current group.
	InitGroup(ctx *QueryContext) error

	// EvalGroup folds the current row into the aggregate state of the current group.
	EvalGroup(ctx *QueryContext) error

	String() string
}

// baseExpr supplies the defaults shared by every node. Embedders must still implement Bind, EvalLong, EvalDouble,
// EvalDate and String.
type baseExpr struct{}

func (baseExpr) Type() common.Type {
	return common.UnknownType
}

func (baseExpr) Name() string {
	return ""
}

func (baseExpr) Table() *catalog.Table {
	return nil
}

func (baseExpr) Cost(fromList []*FromItem) Cost {
	return CostInvalid
}

func (baseExpr) IndexExpr(item *FromItem) RowIterateExpr {
	return nil
}

func (baseExpr) IsNull(ctx *QueryContext) (bool, error) {
	return false, nil
}

// EvalBoolean has no sensible default: a node usable as a predicate must say what it means.
func (baseExpr) EvalBoolean(ctx *QueryContext) (Bool, error) {
	return Unknown, unsupported("EvalBoolean")
}

func (baseExpr) EvalString(ctx *QueryContext) (string, bool, error) {
	return "", false, unsupported("EvalString")
}

func (baseExpr) EvalStream(ctx *QueryContext) (io.Reader, error) {
	return nil, unsupported("EvalStream")
}

func (baseExpr) InitGroup(ctx *QueryContext) error {
	return nil
}

func (baseExpr) EvalGroup(ctx *QueryContext) error {
	return nil
}

func unsupported(op string) error {
	return common.NewError(common.UnsupportedOperationError, "expression does not support %s", op)
}

// IsLong reports whether e produces an integral value (int, long or date).
func IsLong(e Expr) bool {
	return e.Type().IsLong()
}

// IsDouble reports whether e can be evaluated as a double. It is true whenever IsLong is.
func IsDouble(e Expr) bool {
	return e.Type().IsDouble()
}

func IsBoolean(e Expr) bool {
	return e.Type().IsBoolean()
}

func IsBinaryStream(e Expr) bool {
	return e.Type().IsBinaryStream()
}

// SplitAnd appends the top-level conjuncts of e to list. Any expression other than AND is its own single conjunct.
func SplitAnd(e Expr, list []Expr) []Expr {
	if and, ok := e.(*AndExpr); ok {
		for _, operand := range and.operands {
			list = SplitAnd(operand, list)
		}
		return list
	}
	return append(list, e)
}

// CreateOrder returns the comparator for key column index that matches e's type: IntOrder for int, LongOrder for
// the other long types, DoubleOrder for doubles and StringOrder for everything else.
func CreateOrder(e Expr, index int) Order {
	switch {
	case e.Type() == common.IntType:
		return NewIntOrder(index)
	case IsLong(e):
		return NewLongOrder(index)
	case IsDouble(e):
		return NewDoubleOrder(index)
	default:
		return NewStringOrder(index)
	}
}

// IsSelect reports whether the predicate accepts the current row. Only True does; False and Unknown both reject.
func IsSelect(e Expr, ctx *QueryContext) (bool, error) {
	b, err := e.EvalBoolean(ctx)
	if err != nil {
		return false, err
	}
	return b == True, nil
}

// maxCost returns the largest cost of exprs against fromList, or CostConstant when there are none.
func maxCost(fromList []*FromItem, exprs ...Expr) Cost {
	cost := CostConstant
	for _, e := range exprs {
		cost = max(cost, e.Cost(fromList))
	}
	return cost
}

// bindAll binds each expression in place.
func bindAll(q *Query, exprs []Expr) error {
	for i, e := range exprs {
		bound, err := e.Bind(q)
		if err != nil {
			return err
		}
		exprs[i] = bound
	}
	return nil
}

func initGroupAll(ctx *QueryContext, exprs ...Expr) error {
	for _, e := range exprs {
		if err := e.InitGroup(ctx); err != nil {
			return err
		}
	}
	return nil
}

func evalGroupAll(ctx *QueryContext, exprs ...Expr) error {
	for _, e := range exprs {
		if err := e.EvalGroup(ctx); err != nil {
			return err
		}
	}
	return nil
}
