package sql

import (
	"cmp"
	"fmt"
	"strings"

	"mit.edu/dsg/rowdb/common"
)

// Order compares sort keys. Each Order looks at one position of a key vector and decides ties by the next Order in
// its chain.
//
// The comparator kind must agree with the kind of key it reads. An Order therefore produces its own keys with
// EvalKey, using the evaluator that matches its kind, instead of trusting the caller to pick one. Use CreateOrder to
// get the right kind for an expression.
type Order interface {
	// Index returns the key position this order compares.
	Index() int

	// Descending reports whether larger keys sort first.
	Descending() bool
	SetDescending(desc bool)

	// Next returns the order consulted on ties, or nil.
	Next() Order
	SetNext(next Order)

	// EvalKey evaluates e for the current row into the key kind this order compares.
	EvalKey(e Expr, ctx *QueryContext) (common.Value, error)

	// Compare orders two key vectors. NULL sorts before every other key in ascending order.
	Compare(a, b []common.Value) int

	String() string
}

type orderBase struct {
	index int
	desc  bool
	next  Order
}

func (o *orderBase) Index() int {
	return o.index
}

func (o *orderBase) Descending() bool {
	return o.desc
}

func (o *orderBase) SetDescending(desc bool) {
	o.desc = desc
}

func (o *orderBase) Next() Order {
	return o.next
}

func (o *orderBase) SetNext(next Order) {
	o.next = next
}

// finish applies the direction to c and falls through to the chained order on a tie.
func (o *orderBase) finish(c int, a, b []common.Value) int {
	if o.desc {
		c = -c
	}
	if c == 0 && o.next != nil {
		return o.next.Compare(a, b)
	}
	return c
}

// nulls compares the NULL-ness of two keys. done is false when both are non-NULL.
func nulls(a, b common.Value) (c int, done bool) {
	switch {
	case a.IsNull() && b.IsNull():
		return 0, true
	case a.IsNull():
		return -1, true
	case b.IsNull():
		return 1, true
	}
	return 0, false
}

func (o *orderBase) describe(kind string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s(%d", kind, o.index)
	if o.desc {
		sb.WriteString(" DESC")
	}
	sb.WriteString(")")
	if o.next != nil {
		sb.WriteString(", ")
		sb.WriteString(o.next.String())
	}
	return sb.String()
}

// ChainOrders links orders so that each one breaks the ties of the one before it, and returns the first.
func ChainOrders(orders ...Order) Order {
	for i := len(orders) - 2; i >= 0; i-- {
		orders[i].SetNext(orders[i+1])
	}
	if len(orders) == 0 {
		return nil
	}
	return orders[0]
}

// IntOrder compares 32-bit integer keys.
type IntOrder struct {
	orderBase
}

func NewIntOrder(index int) *IntOrder {
	return &IntOrder{orderBase{index: index}}
}

func (o *IntOrder) EvalKey(e Expr, ctx *QueryContext) (common.Value, error) {
	null, err := e.IsNull(ctx)
	if err != nil || null {
		return common.NewNullValue(common.IntType), err
	}
	v, err := e.EvalLong(ctx)
	return common.NewIntValue(int32(v)), err
}

func (o *IntOrder) Compare(a, b []common.Value) int {
	x, y := a[o.index], b[o.index]
	c, done := nulls(x, y)
	if !done {
		c = cmp.Compare(int32(x.LongValue()), int32(y.LongValue()))
	}
	return o.finish(c, a, b)
}

func (o *IntOrder) String() string {
	return o.describe("int")
}

// LongOrder compares 64-bit integer keys, including dates.
type LongOrder struct {
	orderBase
}

func NewLongOrder(index int) *LongOrder {
	return &LongOrder{orderBase{index: index}}
}

func (o *LongOrder) EvalKey(e Expr, ctx *QueryContext) (common.Value, error) {
	null, err := e.IsNull(ctx)
	if err != nil || null {
		return common.NewNullValue(common.LongType), err
	}
	v, err := e.EvalLong(ctx)
	return common.NewLongValue(v), err
}

func (o *LongOrder) Compare(a, b []common.Value) int {
	x, y := a[o.index], b[o.index]
	c, done := nulls(x, y)
	if !done {
		c = cmp.Compare(x.LongValue(), y.LongValue())
	}
	return o.finish(c, a, b)
}

func (o *LongOrder) String() string {
	return o.describe("long")
}

// DoubleOrder compares floating-point keys.
type DoubleOrder struct {
	orderBase
}

func NewDoubleOrder(index int) *DoubleOrder {
	return &DoubleOrder{orderBase{index: index}}
}

func (o *DoubleOrder) EvalKey(e Expr, ctx *QueryContext) (common.Value, error) {
	null, err := e.IsNull(ctx)
	if err != nil || null {
		return common.NewNullValue(common.DoubleType), err
	}
	v, err := e.EvalDouble(ctx)
	return common.NewDoubleValue(v), err
}

func (o *DoubleOrder) Compare(a, b []common.Value) int {
	x, y := a[o.index], b[o.index]
	c, done := nulls(x, y)
	if !done {
		c = cmp.Compare(x.DoubleValue(), y.DoubleValue())
	}
	return o.finish(c, a, b)
}

func (o *DoubleOrder) String() string {
	return o.describe("double")
}

// StringOrder compares string keys by byte order.
type StringOrder struct {
	orderBase
}

func NewStringOrder(index int) *StringOrder {
	return &StringOrder{orderBase{index: index}}
}

func (o *StringOrder) EvalKey(e Expr, ctx *QueryContext) (common.Value, error) {
	s, ok, err := e.EvalString(ctx)
	if err != nil || !ok {
		return common.NewNullValue(common.StringType), err
	}
	return common.NewStringValue(s), nil
}

func (o *StringOrder) Compare(a, b []common.Value) int {
	x, y := a[o.index], b[o.index]
	c, done := nulls(x, y)
	if !done {
		c = strings.Compare(x.StringValue(), y.StringValue())
	}
	return o.finish(c, a, b)
}

func (o *StringOrder) String() string {
	return o.describe("string")
}
