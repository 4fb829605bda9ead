package sql

import (
	"strings"

	"mit.edu/dsg/rowdb/common"
)

// Predicates render as 1 and 0 outside of a boolean context. Unknown is NULL.

func boolNull(e Expr, ctx *QueryContext) (bool, error) {
	b, err := e.EvalBoolean(ctx)
	return b == Unknown, err
}

func boolString(e Expr, ctx *QueryContext) (string, bool, error) {
	b, err := e.EvalBoolean(ctx)
	if err != nil || b == Unknown {
		return "", false, err
	}
	if b == True {
		return "1", true, nil
	}
	return "0", true, nil
}

func boolLong(e Expr, ctx *QueryContext) (int64, error) {
	b, err := e.EvalBoolean(ctx)
	if b == True {
		return 1, err
	}
	return 0, err
}

func boolDouble(e Expr, ctx *QueryContext) (float64, error) {
	n, err := boolLong(e, ctx)
	return float64(n), err
}

// boolPredicate supplies the non-boolean evaluators of a predicate node.
type boolPredicate struct {
	baseExpr
	self Expr
}

func (p boolPredicate) Type() common.Type {
	return common.BooleanType
}

func (p boolPredicate) IsNull(ctx *QueryContext) (bool, error) {
	return boolNull(p.self, ctx)
}

func (p boolPredicate) EvalString(ctx *QueryContext) (string, bool, error) {
	return boolString(p.self, ctx)
}

func (p boolPredicate) EvalLong(ctx *QueryContext) (int64, error) {
	return boolLong(p.self, ctx)
}

func (p boolPredicate) EvalDouble(ctx *QueryContext) (float64, error) {
	return boolDouble(p.self, ctx)
}

func (p boolPredicate) EvalDate(ctx *QueryContext) (int64, error) {
	return 0, unsupported("EvalDate on a predicate")
}

// AndExpr is the conjunction of its operands. Nested ANDs are flattened when bound so that SplitAnd sees every
// conjunct.
type AndExpr struct {
	boolPredicate
	operands []Expr
}

func And(operands ...Expr) Expr {
	e := &AndExpr{operands: operands}
	e.self = e
	return e
}

func (e *AndExpr) Bind(q *Query) (Expr, error) {
	bound := make([]Expr, 0, len(e.operands))
	for _, operand := range e.operands {
		b, err := operand.Bind(q)
		if err != nil {
			return nil, err
		}
		bound = SplitAnd(b, bound)
	}
	if len(bound) == 1 {
		return bound[0], nil
	}
	out := &AndExpr{operands: bound}
	out.self = out
	return out, nil
}

// Operands returns the conjuncts.
func (e *AndExpr) Operands() []Expr {
	return e.operands
}

func (e *AndExpr) EvalBoolean(ctx *QueryContext) (Bool, error) {
	result := True
	for _, operand := range e.operands {
		b, err := operand.EvalBoolean(ctx)
		if err != nil {
			return Unknown, err
		}
		result = result.And(b)
		if result == False {
			return False, nil
		}
	}
	return result, nil
}

// Cost is the cheapest conjunct, since each one alone can drive the access. A conjunct that cannot be evaluated
// yet makes the whole conjunction unevaluable.
func (e *AndExpr) Cost(fromList []*FromItem) Cost {
	if worst := maxCost(fromList, e.operands...); worst >= CostNoTable {
		return worst
	}
	cost := CostInvalid
	for _, operand := range e.operands {
		cost = min(cost, operand.Cost(fromList))
	}
	return cost
}

func (e *AndExpr) IndexExpr(item *FromItem) RowIterateExpr {
	for _, operand := range e.operands {
		if it := operand.IndexExpr(item); it != nil {
			return it
		}
	}
	return nil
}

func (e *AndExpr) InitGroup(ctx *QueryContext) error {
	return initGroupAll(ctx, e.operands...)
}

func (e *AndExpr) EvalGroup(ctx *QueryContext) error {
	return evalGroupAll(ctx, e.operands...)
}

func (e *AndExpr) String() string {
	return joinExprs(e.operands, " AND ")
}

// OrExpr is the disjunction of its operands.
type OrExpr struct {
	boolPredicate
	operands []Expr
}

func Or(operands ...Expr) Expr {
	e := &OrExpr{operands: operands}
	e.self = e
	return e
}

func (e *OrExpr) Bind(q *Query) (Expr, error) {
	bound := make([]Expr, len(e.operands))
	copy(bound, e.operands)
	if err := bindAll(q, bound); err != nil {
		return nil, err
	}
	out := &OrExpr{operands: bound}
	out.self = out
	return out, nil
}

func (e *OrExpr) EvalBoolean(ctx *QueryContext) (Bool, error) {
	result := False
	for _, operand := range e.operands {
		b, err := operand.EvalBoolean(ctx)
		if err != nil {
			return Unknown, err
		}
		result = result.Or(b)
		if result == True {
			return True, nil
		}
	}
	return result, nil
}

// Cost is the most expensive disjunct, since every one of them is evaluated.
func (e *OrExpr) Cost(fromList []*FromItem) Cost {
	return maxCost(fromList, e.operands...)
}

func (e *OrExpr) InitGroup(ctx *QueryContext) error {
	return initGroupAll(ctx, e.operands...)
}

func (e *OrExpr) EvalGroup(ctx *QueryContext) error {
	return evalGroupAll(ctx, e.operands...)
}

func (e *OrExpr) String() string {
	return joinExprs(e.operands, " OR ")
}

// NotExpr negates a predicate.
type NotExpr struct {
	boolPredicate
	operand Expr
}

func Not(operand Expr) Expr {
	e := &NotExpr{operand: operand}
	e.self = e
	return e
}

func (e *NotExpr) Bind(q *Query) (Expr, error) {
	operand, err := e.operand.Bind(q)
	if err != nil {
		return nil, err
	}
	return Not(operand), nil
}

func (e *NotExpr) EvalBoolean(ctx *QueryContext) (Bool, error) {
	b, err := e.operand.EvalBoolean(ctx)
	if err != nil {
		return Unknown, err
	}
	return b.Not(), nil
}

func (e *NotExpr) Cost(fromList []*FromItem) Cost {
	return maxCost(fromList, e.operand)
}

func (e *NotExpr) InitGroup(ctx *QueryContext) error {
	return e.operand.InitGroup(ctx)
}

func (e *NotExpr) EvalGroup(ctx *QueryContext) error {
	return e.operand.EvalGroup(ctx)
}

func (e *NotExpr) String() string {
	return "NOT " + e.operand.String()
}

// NullCheckExpr is IS NULL or IS NOT NULL. Unlike every other predicate it is never Unknown.
type NullCheckExpr struct {
	boolPredicate
	operand Expr
	negate  bool
}

// IsNull tests operand IS NULL.
func IsNull(operand Expr) Expr {
	e := &NullCheckExpr{operand: operand}
	e.self = e
	return e
}

// IsNotNull tests operand IS NOT NULL.
func IsNotNull(operand Expr) Expr {
	e := &NullCheckExpr{operand: operand, negate: true}
	e.self = e
	return e
}

func (e *NullCheckExpr) Bind(q *Query) (Expr, error) {
	operand, err := e.operand.Bind(q)
	if err != nil {
		return nil, err
	}
	out := &NullCheckExpr{operand: operand, negate: e.negate}
	out.self = out
	return out, nil
}

func (e *NullCheckExpr) EvalBoolean(ctx *QueryContext) (Bool, error) {
	null, err := e.operand.IsNull(ctx)
	if err != nil {
		return Unknown, err
	}
	return BoolOf(null != e.negate), nil
}

func (e *NullCheckExpr) Cost(fromList []*FromItem) Cost {
	return maxCost(fromList, e.operand)
}

func (e *NullCheckExpr) InitGroup(ctx *QueryContext) error {
	return e.operand.InitGroup(ctx)
}

func (e *NullCheckExpr) EvalGroup(ctx *QueryContext) error {
	return e.operand.EvalGroup(ctx)
}

func (e *NullCheckExpr) String() string {
	if e.negate {
		return e.operand.String() + " IS NOT NULL"
	}
	return e.operand.String() + " IS NULL"
}

func joinExprs(exprs []Expr, sep string) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}
