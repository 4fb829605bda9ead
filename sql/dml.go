package sql

import (
	"mit.edu/dsg/rowdb/common"
	"mit.edu/dsg/rowdb/indexing"
	"mit.edu/dsg/rowdb/storage"
	"mit.edu/dsg/rowdb/transaction"
)

// target is the table a data-changing statement writes to.
type target struct {
	db   *Database
	item *FromItem
}

func newTarget(db *Database, table string) (*Query, *target, error) {
	q, err := newQuery(db, []TableRef{{Name: table}})
	if err != nil {
		return nil, nil, err
	}
	return q, &target{db: db, item: q.from[0]}, nil
}

// indexes returns the indexes to maintain. They are looked up on every execution, because an index created after
// the statement was compiled must still be kept up to date.
func (t *target) indexes() []indexing.Index {
	return t.db.indexes.IndexesFor(t.db.catalog.TableIndexes(t.item.table))
}

func (t *target) desc() *storage.RowDesc {
	return t.item.heap.StorageSchema()
}

func (t *target) String() string {
	return t.item.String()
}

// checkUnique rejects row if a column declared UNIQUE collides with another row. Columns with a unique index are
// left to the index, which enforces the constraint when the entry is inserted. self is the row's own RecordID when
// the row is being updated.
func (t *target) checkUnique(ctx *QueryContext, indexes []indexing.Index, row storage.RawRow, self common.RecordID, changed []bool) error {
	desc := t.desc()
	for col, c := range t.item.table.Columns {
		if !c.Unique || (changed != nil && !changed[col]) || desc.IsNull(row, col) {
			continue
		}
		key := indexing.NewKey(desc.GetValue(row, col))
		if idx := indexOn(indexes, col); idx != nil {
			if idx.Metadata().Unique {
				continue
			}
			rids, err := idx.ScanKey(key, nil, ctx.txn)
			if err != nil {
				return err
			}
			for _, rid := range rids {
				if rid != self {
					return uniqueViolation(t.item, col, key)
				}
			}
			continue
		}
		if err := t.scanUnique(ctx, col, key, self); err != nil {
			return err
		}
	}
	return nil
}

func (t *target) scanUnique(ctx *QueryContext, col int, key indexing.Key, self common.RecordID) error {
	desc := t.desc()
	it, err := t.item.heap.Iterator(ctx.txn, transaction.LockModeX)
	if err != nil {
		return err
	}
	defer it.Close()
	for it.Next() {
		if it.CurrentRID() == self || desc.IsNull(it.CurrentRow(), col) {
			continue
		}
		if indexing.NewKey(desc.GetValue(it.CurrentRow(), col)).Equals(key) {
			return uniqueViolation(t.item, col, key)
		}
	}
	return it.Error()
}

func uniqueViolation(item *FromItem, col int, key indexing.Key) error {
	return common.NewError(common.ConstraintError, "duplicate value %s for unique column '%s.%s'",
		key.String(), item.table.Name, item.table.Columns[col].Name)
}

func indexOn(indexes []indexing.Index, col int) indexing.Index {
	for _, idx := range indexes {
		if idx.Metadata().Column == col {
			return idx
		}
	}
	return nil
}

func indexKey(desc *storage.RowDesc, row storage.RawRow, idx indexing.Index) indexing.Key {
	return indexing.NewKey(desc.GetValue(row, idx.Metadata().Column))
}

// InsertQuery is a compiled INSERT.
type InsertQuery struct {
	*target
	numParams int
	// slots maps each table column to its position in a VALUES row, or -1 when the column is left NULL.
	slots []int
	rows  [][]Expr
}

func (s *Insert) compile(db *Database) (Executable, error) {
	q, t, err := newTarget(db, s.Table)
	if err != nil {
		return nil, err
	}
	table := t.item.table
	slots := make([]int, len(table.Columns))
	width := len(table.Columns)
	if len(s.Columns) == 0 {
		for i := range slots {
			slots[i] = i
		}
	} else {
		for i := range slots {
			slots[i] = -1
		}
		seen := make([]bool, len(table.Columns))
		for i, name := range s.Columns {
			col, err := targetColumn(t.item, name, seen)
			if err != nil {
				return nil, err
			}
			slots[col] = i
		}
		width = len(s.Columns)
	}

	rows := make([][]Expr, len(s.Rows))
	for i, row := range s.Rows {
		if len(row) != width {
			return nil, common.NewError(common.BindError, "VALUES row %d has %d values for %d columns", i, len(row), width)
		}
		rows[i] = append([]Expr(nil), row...)
		if err := q.bindIn(clauseValues, rows[i]); err != nil {
			return nil, err
		}
	}
	return &InsertQuery{target: t, numParams: q.numParams, slots: slots, rows: rows}, nil
}

func (s *InsertQuery) Plan() *Plan {
	return nil
}

func (s *InsertQuery) NumParams() int {
	return s.numParams
}

func (s *InsertQuery) ReturnsRows() bool {
	return false
}

func (s *InsertQuery) Execute(ctx *QueryContext) error {
	return atomically(ctx, func() error {
		if err := lockItem(ctx, s.item, transaction.LockModeX); err != nil {
			return err
		}
		indexes := s.indexes()
		desc := s.desc()
		b := storage.NewRowBuilder(desc)
		for _, values := range s.rows {
			b.Reset()
			for col, slot := range s.slots {
				if slot < 0 {
					b.Advance(-1)
					continue
				}
				n, err := EvalToBuffer(values[slot], ctx, b.Free(), desc.ColumnType(col))
				if err != nil {
					return err
				}
				b.Advance(n)
			}
			row := b.Row()
			if err := s.checkUnique(ctx, indexes, row, common.RecordID{Slot: -1}, nil); err != nil {
				return err
			}
			rid, err := s.item.heap.InsertRow(ctx.txn, row)
			if err != nil {
				return err
			}
			for _, idx := range indexes {
				if err := idx.InsertEntry(indexKey(desc, row, idx), rid, ctx.txn); err != nil {
					return err
				}
			}
			ctx.addRowUpdate()
			ctx.addGeneratedKey(rid)
		}
		return nil
	})
}

// matched is a row selected by the WHERE clause of an UPDATE or DELETE.
type matched struct {
	rid common.RecordID
	row storage.RawRow
}

// collect runs the plan to completion before anything is changed, so that a statement never sees its own writes.
func collect(ctx *QueryContext, plan *Plan, item *FromItem) ([]matched, error) {
	var rows []matched
	err := plan.execute(ctx, transaction.LockModeX, func() error {
		rows = append(rows, matched{rid: ctx.RID(item.index), row: ctx.Row(item.index)})
		return nil
	})
	return rows, err
}

// UpdateQuery is a compiled UPDATE.
type UpdateQuery struct {
	*target
	plan      *Plan
	numParams int
	// values holds the new value of each column, nil for the columns not assigned
	values []Expr
}

func (s *Update) compile(db *Database) (Executable, error) {
	q, t, err := newTarget(db, s.Table)
	if err != nil {
		return nil, err
	}
	if len(s.Set) == 0 {
		return nil, common.NewError(common.BindError, "UPDATE of '%s' assigns no columns", s.Table)
	}
	seen := make([]bool, len(t.item.table.Columns))
	values := make([]Expr, len(t.item.table.Columns))
	for _, a := range s.Set {
		col, err := targetColumn(t.item, a.Column, seen)
		if err != nil {
			return nil, err
		}
		if values[col], err = q.bindOne(clauseSet, a.Value); err != nil {
			return nil, err
		}
	}
	where, err := q.bindOne(clauseWhere, s.Where)
	if err != nil {
		return nil, err
	}
	plan, err := buildPlan(q.from, where)
	if err != nil {
		return nil, err
	}
	return &UpdateQuery{target: t, plan: plan, numParams: q.numParams, values: values}, nil
}

func (s *UpdateQuery) Plan() *Plan {
	return s.plan
}

func (s *UpdateQuery) NumParams() int {
	return s.numParams
}

func (s *UpdateQuery) ReturnsRows() bool {
	return false
}

func (s *UpdateQuery) Execute(ctx *QueryContext) error {
	return atomically(ctx, func() error {
		rows, err := collect(ctx, s.plan, s.item)
		if err != nil {
			return err
		}
		indexes := s.indexes()
		desc := s.desc()
		changed := make([]bool, len(s.values))
		for col, e := range s.values {
			changed[col] = e != nil
		}
		b := storage.NewRowBuilder(desc)
		for _, m := range rows {
			ctx.SetRow(s.item.index, m.rid, m.row)
			b.Reset()
			for col, e := range s.values {
				if e == nil {
					old := desc.ColumnBytes(m.row, col)
					if old == nil {
						b.Advance(-1)
					} else {
						b.Advance(copy(b.Free(), old))
					}
					continue
				}
				n, err := EvalToBuffer(e, ctx, b.Free(), desc.ColumnType(col))
				if err != nil {
					return err
				}
				b.Advance(n)
			}
			updated := b.Row()
			if err := s.checkUnique(ctx, indexes, updated, m.rid, changed); err != nil {
				return err
			}
			if err := s.item.heap.UpdateRow(ctx.txn, m.rid, updated); err != nil {
				return err
			}
			for _, idx := range indexes {
				before, after := indexKey(desc, m.row, idx), indexKey(desc, updated, idx)
				if before.Compare(after) == 0 {
					continue
				}
				if err := idx.DeleteEntry(before, m.rid, ctx.txn); err != nil {
					return err
				}
				if err := idx.InsertEntry(after, m.rid, ctx.txn); err != nil {
					return err
				}
			}
			ctx.addRowUpdate()
		}
		return nil
	})
}

// DeleteQuery is a compiled DELETE.
type DeleteQuery struct {
	*target
	plan      *Plan
	numParams int
}

func (s *Delete) compile(db *Database) (Executable, error) {
	q, t, err := newTarget(db, s.Table)
	if err != nil {
		return nil, err
	}
	where, err := q.bindOne(clauseWhere, s.Where)
	if err != nil {
		return nil, err
	}
	plan, err := buildPlan(q.from, where)
	if err != nil {
		return nil, err
	}
	return &DeleteQuery{target: t, plan: plan, numParams: q.numParams}, nil
}

func (s *DeleteQuery) Plan() *Plan {
	return s.plan
}

func (s *DeleteQuery) NumParams() int {
	return s.numParams
}

func (s *DeleteQuery) ReturnsRows() bool {
	return false
}

func (s *DeleteQuery) Execute(ctx *QueryContext) error {
	return atomically(ctx, func() error {
		rows, err := collect(ctx, s.plan, s.item)
		if err != nil {
			return err
		}
		indexes := s.indexes()
		desc := s.desc()
		for _, m := range rows {
			if err := s.item.heap.DeleteRow(ctx.txn, m.rid); err != nil {
				return err
			}
			for _, idx := range indexes {
				if err := idx.DeleteEntry(indexKey(desc, m.row, idx), m.rid, ctx.txn); err != nil {
					return err
				}
			}
			ctx.addRowUpdate()
		}
		return nil
	})
}
