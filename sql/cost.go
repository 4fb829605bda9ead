package sql

import (
	"math"
	"strconv"
)

// Cost is the planner's relative weight of an access path. Lower is better. The values are not time units; each
// tier is at least two orders of magnitude above the previous one so that a cheaper tier always wins.
type Cost int64

const (
	// CostConstant is the cost of an expression that needs no table at all.
	CostConstant Cost = 0
	// CostIndex is the cost of probing an index.
	CostIndex Cost = 100
	// CostUnique is the cost of a scan that stops at the first match on a unique column.
	CostUnique Cost = 10000
	// CostScan is the cost of reading every row of a table.
	CostScan Cost = 1000000
	// CostNoTable marks an expression that references a table not yet available in the join order.
	CostNoTable Cost = math.MaxInt32
	// CostInvalid marks an expression that can never be used as a filter, such as an aggregate.
	CostInvalid Cost = math.MaxInt64 / 1000
)

func (c Cost) String() string {
	switch c {
	case CostNoTable:
		return "no-table"
	case CostInvalid:
		return "invalid"
	}
	return strconv.FormatInt(int64(c), 10)
}
