package sql

import (
	"errors"
	"fmt"
	"strings"

	"mit.edu/dsg/rowdb/common"
	"mit.edu/dsg/rowdb/transaction"
)

// errStopScan ends a plan execution early without reporting an error, for instance once a LIMIT is reached.
var errStopScan = errors.New("stop scan")

// planLevel is one table of the join order: how its rows are produced and which WHERE conjuncts are checked as
// soon as its row is current.
type planLevel struct {
	item    *FromItem
	access  RowIterateExpr
	cost    Cost
	filters []Expr
}

// Plan is a nested-loop join over the FROM list in the chosen order.
type Plan struct {
	// checks are conjuncts that reference no table. They are evaluated once before any row is read.
	checks []Expr
	levels []planLevel
}

// buildPlan picks the join order greedily. At each step it places the unplaced item with the cheapest access,
// which is a full scan unless some conjunct offers an index or unique lookup given the items placed so far. Ties
// keep declaration order. Every conjunct is then attached to the first level at which it can be evaluated.
func buildPlan(from []*FromItem, where Expr) (*Plan, error) {
	var conjuncts []Expr
	if where != nil {
		conjuncts = SplitAnd(where, nil)
	}

	p := &Plan{}
	placed := make([]*FromItem, 0, len(from))
	remaining := append([]*FromItem(nil), from...)
	for len(remaining) > 0 {
		best := -1
		var bestLevel planLevel
		for i, item := range remaining {
			level := accessPath(conjuncts, append(placed[:len(placed):len(placed)], item))
			if best < 0 || level.cost < bestLevel.cost {
				best, bestLevel = i, level
			}
		}
		placed = append(placed, bestLevel.item)
		remaining = append(remaining[:best], remaining[best+1:]...)
		p.levels = append(p.levels, bestLevel)
	}

	for _, c := range conjuncts {
		if err := p.attach(c, placed); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// accessPath returns the cheapest way to read the last item of candidate.
func accessPath(conjuncts []Expr, candidate []*FromItem) planLevel {
	item := candidate[len(candidate)-1]
	level := planLevel{item: item, cost: CostScan}
	for _, c := range conjuncts {
		cost := c.Cost(candidate)
		if cost >= level.cost {
			continue
		}
		if access := c.IndexExpr(item); access != nil {
			level.cost, level.access = cost, access
		}
	}
	if level.access == nil {
		level.access = &scanExpr{item: item}
	}
	return level
}

func (p *Plan) attach(c Expr, order []*FromItem) error {
	cost := c.Cost(nil)
	if cost >= CostInvalid {
		return common.NewError(common.BindError, "%s cannot be used as a filter", c)
	}
	if cost < CostNoTable {
		p.checks = append(p.checks, c)
		return nil
	}
	for i := range p.levels {
		cost = c.Cost(order[:i+1])
		if cost < CostNoTable {
			p.levels[i].filters = append(p.levels[i].filters, c)
			return nil
		}
	}
	return common.NewError(common.BindError, "%s references a table that is not in FROM", c)
}

// NumLevels returns the number of tables in the join.
func (p *Plan) NumLevels() int {
	return len(p.levels)
}

// Access describes the access path of join level i.
func (p *Plan) Access(i int) string {
	return p.levels[i].access.String()
}

// execute runs fn once for every combination of rows that passes the filters. The current rows are set in ctx when
// fn runs. An empty FROM list produces a single combination of no rows.
func (p *Plan) execute(ctx *QueryContext, mode transaction.DBLockMode, fn func() error) error {
	ctx.prepare(len(p.levels))
	ok, err := allSelect(ctx, p.checks)
	if err != nil || !ok {
		return err
	}
	err = p.run(ctx, mode, 0, fn)
	if errors.Is(err, errStopScan) {
		return nil
	}
	return err
}

func (p *Plan) run(ctx *QueryContext, mode transaction.DBLockMode, depth int, fn func() error) error {
	if depth == len(p.levels) {
		return fn()
	}
	level := &p.levels[depth]
	it, err := level.access.Open(ctx, mode)
	if err != nil {
		return err
	}
	defer it.Close()

	for it.Next() {
		ctx.SetRow(level.item.index, it.CurrentRID(), it.CurrentRow())
		ok, err := allSelect(ctx, level.filters)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := p.run(ctx, mode, depth+1, fn); err != nil {
			return err
		}
	}
	ctx.SetRow(level.item.index, common.RecordID{}, nil)
	return it.Error()
}

func allSelect(ctx *QueryContext, filters []Expr) (bool, error) {
	for _, f := range filters {
		ok, err := IsSelect(f, ctx)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// String renders the plan for EXPLAIN output, one join level per line.
func (p *Plan) String() string {
	var sb strings.Builder
	for _, c := range p.checks {
		fmt.Fprintf(&sb, "check %s\n", c)
	}
	for i, level := range p.levels {
		fmt.Fprintf(&sb, "%d. %s cost=%s\n", i+1, level.access, level.cost)
		for _, f := range level.filters {
			fmt.Fprintf(&sb, "   filter %s\n", f)
		}
	}
	return sb.String()
}
