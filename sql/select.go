package sql

import (
	"mit.edu/dsg/rowdb/common"
	"mit.edu/dsg/rowdb/transaction"
)

// SelectQuery is a compiled SELECT. Rows are produced by the plan. Grouped queries fold every row into its group
// and emit one row per group. The result is then sorted and cut to the limit.
type SelectQuery struct {
	plan      *Plan
	numParams int
	numSlots  int

	columns []ResultColumn
	exprs   []Expr
	having  Expr

	grouped   bool
	groupBy   []Expr
	groupKeys []Order

	orderExprs []Expr
	orders     []Order
	order      Order

	limit int
}

func (s *Select) compile(db *Database) (Executable, error) {
	q, err := newQuery(db, s.From)
	if err != nil {
		return nil, err
	}
	items, err := expandStars(q, s.Columns)
	if err != nil {
		return nil, err
	}
	if s.Limit < 0 {
		return nil, common.NewError(common.BindError, "negative LIMIT %d", s.Limit)
	}

	where, err := q.bindOne(clauseWhere, s.Where)
	if err != nil {
		return nil, err
	}
	groupBy := append([]Expr(nil), s.GroupBy...)
	if err := q.bindIn(clauseGroupBy, groupBy); err != nil {
		return nil, err
	}
	exprs := make([]Expr, len(items))
	for i, item := range items {
		exprs[i] = item.Expr
	}
	if err := q.bindIn(clauseSelect, exprs); err != nil {
		return nil, err
	}
	having, err := q.bindOne(clauseHaving, s.Having)
	if err != nil {
		return nil, err
	}
	orderExprs := make([]Expr, len(s.OrderBy))
	for i, ob := range s.OrderBy {
		orderExprs[i] = ob.Expr
	}
	if err := q.bindIn(clauseOrderBy, orderExprs); err != nil {
		return nil, err
	}

	plan, err := buildPlan(q.from, where)
	if err != nil {
		return nil, err
	}

	sq := &SelectQuery{
		plan:       plan,
		numParams:  q.numParams,
		numSlots:   q.groupSlots,
		exprs:      exprs,
		having:     having,
		grouped:    len(groupBy) > 0 || q.hasAggregates,
		groupBy:    groupBy,
		orderExprs: orderExprs,
		limit:      s.Limit,
	}
	if having != nil && !sq.grouped {
		return nil, common.NewError(common.BindError, "HAVING requires GROUP BY or an aggregate")
	}
	for i, e := range exprs {
		sq.columns = append(sq.columns, ResultColumn{Name: columnName(items[i], e), Type: e.Type()})
	}
	for i, e := range groupBy {
		sq.groupKeys = append(sq.groupKeys, CreateOrder(e, i))
	}
	for i, e := range orderExprs {
		o := CreateOrder(e, i)
		o.SetDescending(s.OrderBy[i].Desc)
		sq.orders = append(sq.orders, o)
	}
	if len(sq.orders) > 0 {
		sq.order = ChainOrders(sq.orders...)
	}
	return sq, nil
}

// expandStars replaces * and alias.* by the columns they stand for.
func expandStars(q *Query, items []SelectItem) ([]SelectItem, error) {
	var out []SelectItem
	for _, item := range items {
		star, ok := item.Expr.(*starExpr)
		if !ok {
			out = append(out, item)
			continue
		}
		matched := false
		for _, from := range q.from {
			if star.alias != "" && star.alias != from.alias {
				continue
			}
			matched = true
			for col := range from.table.Columns {
				out = append(out, SelectItem{Expr: newColumnExpr(from, col)})
			}
		}
		if !matched {
			return nil, common.NewError(common.BindError, "unknown table alias in %s", star)
		}
	}
	return out, nil
}

func columnName(item SelectItem, e Expr) string {
	switch {
	case item.As != "":
		return item.As
	case e.Name() != "":
		return e.Name()
	}
	return e.String()
}

func (s *SelectQuery) Plan() *Plan {
	return s.plan
}

func (s *SelectQuery) NumParams() int {
	return s.numParams
}

func (s *SelectQuery) ReturnsRows() bool {
	return true
}

// Columns describes the result columns.
func (s *SelectQuery) Columns() []ResultColumn {
	return s.columns
}

func (s *SelectQuery) Execute(ctx *QueryContext) error {
	res := NewSelectResult(s.columns)
	ctx.setResult(res)
	var keys [][]common.Value

	emit := func() error {
		if s.having != nil {
			ok, err := IsSelect(s.having, ctx)
			if err != nil || !ok {
				return err
			}
		}
		res.StartRow()
		for _, e := range s.exprs {
			if err := EvalToResult(e, ctx, res); err != nil {
				return err
			}
		}
		if s.order != nil {
			key := make([]common.Value, len(s.orders))
			for i, o := range s.orders {
				v, err := o.EvalKey(s.orderExprs[i], ctx)
				if err != nil {
					return err
				}
				key[i] = v
			}
			keys = append(keys, key)
		} else if s.limit > 0 && res.NumRows() >= s.limit {
			return errStopScan
		}
		return nil
	}

	if !s.grouped {
		if err := s.plan.execute(ctx, transaction.LockModeS, emit); err != nil {
			return err
		}
	} else {
		if err := s.fold(ctx); err != nil {
			return err
		}
		for i := 0; i < ctx.numGroups(); i++ {
			ctx.restoreGroup(i)
			if err := emit(); err != nil {
				if err == errStopScan {
					break
				}
				return err
			}
		}
	}

	if s.order != nil {
		res.sortRows(keys, s.order)
	}
	if s.limit > 0 {
		res.limit(s.limit)
	}
	return nil
}

// aggregated returns every expression that may hold an aggregate.
func (s *SelectQuery) aggregated() []Expr {
	exprs := append([]Expr(nil), s.exprs...)
	if s.having != nil {
		exprs = append(exprs, s.having)
	}
	return append(exprs, s.orderExprs...)
}

// fold distributes the rows into groups in first-appearance order and accumulates their aggregates. Without GROUP
// BY, every row belongs to one group, which exists even when there are no rows.
func (s *SelectQuery) fold(ctx *QueryContext) error {
	aggregated := s.aggregated()
	groups := make(map[string]int)
	var buf []byte
	err := s.plan.execute(ctx, transaction.LockModeS, func() error {
		buf = buf[:0]
		for i, o := range s.groupKeys {
			v, err := o.EvalKey(s.groupBy[i], ctx)
			if err != nil {
				return err
			}
			buf = v.AppendKey(buf)
		}
		if g, ok := groups[string(buf)]; ok {
			ctx.selectGroup(g)
		} else {
			groups[string(buf)] = ctx.newGroup(s.numSlots)
			if err := initGroupAll(ctx, aggregated...); err != nil {
				return err
			}
		}
		return evalGroupAll(ctx, aggregated...)
	})
	if err != nil {
		return err
	}
	if len(s.groupBy) == 0 && ctx.numGroups() == 0 {
		ctx.newGroup(s.numSlots)
		return initGroupAll(ctx, aggregated...)
	}
	return nil
}
