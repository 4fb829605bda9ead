package sql

import (
	"cmp"
	"fmt"
	"io"
	"strings"

	"mit.edu/dsg/rowdb/common"
)

type aggKind int

const (
	aggCountAll aggKind = iota
	aggCount
	aggSum
	aggMin
	aggMax
	aggAvg
)

func (k aggKind) String() string {
	switch k {
	case aggCountAll, aggCount:
		return "COUNT"
	case aggSum:
		return "SUM"
	case aggMin:
		return "MIN"
	case aggMax:
		return "MAX"
	case aggAvg:
		return "AVG"
	}
	return "???"
}

// AggregateExpr folds its argument over the rows of a group. The accumulator lives in a QueryContext group slot
// claimed at bind time, so the bound node itself holds no state.
//
// NULL arguments are skipped. Every aggregate except COUNT is NULL over a group without non-NULL arguments.
type AggregateExpr struct {
	baseExpr
	kind aggKind
	arg  Expr
	slot int
	typ  common.Type
}

// CountAll is COUNT(*).
func CountAll() Expr { return &AggregateExpr{kind: aggCountAll} }

func Count(arg Expr) Expr { return &AggregateExpr{kind: aggCount, arg: arg} }
func Sum(arg Expr) Expr   { return &AggregateExpr{kind: aggSum, arg: arg} }
func Min(arg Expr) Expr   { return &AggregateExpr{kind: aggMin, arg: arg} }
func Max(arg Expr) Expr   { return &AggregateExpr{kind: aggMax, arg: arg} }
func Avg(arg Expr) Expr   { return &AggregateExpr{kind: aggAvg, arg: arg} }

func (e *AggregateExpr) Bind(q *Query) (Expr, error) {
	slot, err := q.beginAggregate(e.kind.String())
	if err != nil {
		return nil, err
	}
	defer q.endAggregate()

	bound := &AggregateExpr{kind: e.kind, slot: slot}
	if e.arg != nil {
		if bound.arg, err = e.arg.Bind(q); err != nil {
			return nil, err
		}
	}
	switch e.kind {
	case aggCountAll, aggCount:
		bound.typ = common.LongType
	case aggSum:
		bound.typ = common.DoubleType
		if IsLong(bound.arg) {
			bound.typ = common.LongType
		}
	case aggAvg:
		bound.typ = common.DoubleType
	default:
		bound.typ = bound.arg.Type()
	}
	return bound, nil
}

func (e *AggregateExpr) Type() common.Type {
	return e.typ
}

func (e *AggregateExpr) InitGroup(ctx *QueryContext) error {
	*ctx.aggSlot(e.slot) = aggState{}
	return nil
}

// integral reports whether MIN and MAX accumulate in the long slot.
func (e *AggregateExpr) integral() bool {
	return integral(e.typ)
}

func (e *AggregateExpr) EvalGroup(ctx *QueryContext) error {
	s := ctx.aggSlot(e.slot)
	if e.kind == aggCountAll {
		s.count++
		return nil
	}
	null, err := e.arg.IsNull(ctx)
	if err != nil || null {
		return err
	}
	s.count++

	switch e.kind {
	case aggSum:
		if e.typ == common.LongType {
			n, err := e.arg.EvalLong(ctx)
			s.long += n
			return err
		}
		f, err := e.arg.EvalDouble(ctx)
		s.dbl += f
		return err
	case aggAvg:
		f, err := e.arg.EvalDouble(ctx)
		s.dbl += f
		return err
	case aggMin, aggMax:
		return e.foldExtreme(ctx, s)
	}
	return nil
}

func (e *AggregateExpr) foldExtreme(ctx *QueryContext, s *aggState) error {
	better := func(c int) bool {
		if e.kind == aggMin {
			return c < 0
		}
		return c > 0
	}
	switch {
	case e.integral():
		n, err := e.arg.EvalLong(ctx)
		if err != nil {
			return err
		}
		if !s.seen || better(cmp.Compare(n, s.long)) {
			s.long = n
		}
	case e.typ == common.DoubleType:
		f, err := e.arg.EvalDouble(ctx)
		if err != nil {
			return err
		}
		if !s.seen || better(cmp.Compare(f, s.dbl)) {
			s.dbl = f
		}
	default:
		str, _, err := e.arg.EvalString(ctx)
		if err != nil {
			return err
		}
		if !s.seen || better(strings.Compare(str, s.str)) {
			s.str = str
		}
	}
	s.seen = true
	return nil
}

// value returns the aggregate of the current group.
func (e *AggregateExpr) value(ctx *QueryContext) common.Value {
	s := ctx.aggSlot(e.slot)
	switch e.kind {
	case aggCountAll, aggCount:
		return common.NewLongValue(s.count)
	case aggSum:
		switch {
		case s.count == 0:
			return common.NewNullValue(e.typ)
		case e.typ == common.LongType:
			return common.NewLongValue(s.long)
		}
		return common.NewDoubleValue(s.dbl)
	case aggAvg:
		if s.count == 0 {
			return common.NewNullValue(e.typ)
		}
		return common.NewDoubleValue(s.dbl / float64(s.count))
	}
	if !s.seen {
		return common.NewNullValue(e.typ)
	}
	switch e.typ {
	case common.IntType:
		return common.NewIntValue(int32(s.long))
	case common.LongType:
		return common.NewLongValue(s.long)
	case common.DateType:
		return common.NewDateValue(s.long)
	case common.BooleanType:
		return common.NewBooleanValue(s.long != 0)
	case common.DoubleType:
		return common.NewDoubleValue(s.dbl)
	}
	return common.NewStringValue(s.str)
}

func (e *AggregateExpr) IsNull(ctx *QueryContext) (bool, error) {
	return e.value(ctx).IsNull(), nil
}

func (e *AggregateExpr) EvalBoolean(ctx *QueryContext) (Bool, error) {
	return valueBoolean(e.value(ctx))
}

func (e *AggregateExpr) EvalString(ctx *QueryContext) (string, bool, error) {
	s, ok := valueString(e.value(ctx))
	return s, ok, nil
}

func (e *AggregateExpr) EvalLong(ctx *QueryContext) (int64, error) {
	return ValueToLong(e.value(ctx))
}

func (e *AggregateExpr) EvalDouble(ctx *QueryContext) (float64, error) {
	return ValueToDouble(e.value(ctx))
}

func (e *AggregateExpr) EvalDate(ctx *QueryContext) (int64, error) {
	return valueDate(ctx, e.value(ctx))
}

func (e *AggregateExpr) EvalStream(ctx *QueryContext) (io.Reader, error) {
	s, _ := valueString(e.value(ctx))
	return strings.NewReader(s), nil
}

func (e *AggregateExpr) EvalToResult(ctx *QueryContext, res *SelectResult) error {
	res.WriteValue(e.value(ctx))
	return nil
}

func (e *AggregateExpr) String() string {
	if e.kind == aggCountAll {
		return "COUNT(*)"
	}
	return fmt.Sprintf("%s(%s)", e.kind, e.arg)
}
