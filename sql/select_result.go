package sql

import (
	"sort"

	"mit.edu/dsg/rowdb/common"
)

// ResultColumn describes one column of a SelectResult.
type ResultColumn struct {
	Name string
	Type common.Type
}

// SelectResult is the materialized output of a SELECT. Expressions append cells to the row started last;
// readers walk the finished rows.
type SelectResult struct {
	columns []ResultColumn
	rows    [][]common.Value
}

func NewSelectResult(columns []ResultColumn) *SelectResult {
	return &SelectResult{columns: columns}
}

func (r *SelectResult) Columns() []ResultColumn {
	return r.columns
}

func (r *SelectResult) NumRows() int {
	return len(r.rows)
}

// Row returns the cells of row i.
func (r *SelectResult) Row(i int) []common.Value {
	return r.rows[i]
}

// StartRow begins a new row. Each column of the row is then written with one Write call, in order.
func (r *SelectResult) StartRow() {
	r.rows = append(r.rows, make([]common.Value, 0, len(r.columns)))
}

func (r *SelectResult) write(v common.Value) {
	common.Assert(len(r.rows) > 0, "write before StartRow")
	last := len(r.rows) - 1
	common.Assert(len(r.rows[last]) < len(r.columns), "row already has %d cells", len(r.columns))
	r.rows[last] = append(r.rows[last], v)
}

// WriteNull writes a NULL cell of the column's type.
func (r *SelectResult) WriteNull() {
	r.write(common.NewNullValue(r.columns[r.nextColumn()].Type))
}

func (r *SelectResult) WriteString(s string) {
	r.write(common.NewStringValue(s))
}

func (r *SelectResult) WriteValue(v common.Value) {
	r.write(v)
}

func (r *SelectResult) nextColumn() int {
	common.Assert(len(r.rows) > 0, "write before StartRow")
	return len(r.rows[len(r.rows)-1])
}

// sortRows reorders the rows by their sort keys. keys[i] belongs to row i. The sort is stable, so rows with equal
// keys keep their production order.
func (r *SelectResult) sortRows(keys [][]common.Value, order Order) {
	common.Assert(len(keys) == len(r.rows), "%d sort keys for %d rows", len(keys), len(r.rows))
	perm := make([]int, len(r.rows))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(i, j int) bool {
		return order.Compare(keys[perm[i]], keys[perm[j]]) < 0
	})
	sorted := make([][]common.Value, len(r.rows))
	for i, p := range perm {
		sorted[i] = r.rows[p]
	}
	r.rows = sorted
}

// limit drops every row past the first n.
func (r *SelectResult) limit(n int) {
	if n >= 0 && n < len(r.rows) {
		clear(r.rows[n:])
		r.rows = r.rows[:n]
	}
}
