package sql

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"mit.edu/dsg/rowdb/common"
	"mit.edu/dsg/rowdb/indexing"
	"mit.edu/dsg/rowdb/storage"
	"mit.edu/dsg/rowdb/transaction"
)

// RowIterateExpr is an access path: it produces the rows of one FROM item. Paths other than the full scan are
// driven by a comparison, and may produce rows the rest of the WHERE clause still rejects.
type RowIterateExpr interface {
	// Open starts producing rows under the lock mode the statement reads with.
	Open(ctx *QueryContext, mode transaction.DBLockMode) (RowIterator, error)
	String() string
}

// RowIterator follows the same pattern as storage.TableHeapIterator, which is one.
type RowIterator interface {
	Next() bool
	CurrentRID() common.RecordID
	CurrentRow() storage.RawRow
	Error() error
	Close() error
}

// scanExpr reads every live row of its item.
type scanExpr struct {
	item *FromItem
}

func (s *scanExpr) Open(ctx *QueryContext, mode transaction.DBLockMode) (RowIterator, error) {
	return s.item.heap.Iterator(ctx.txn, mode)
}

func (s *scanExpr) String() string {
	return "scan " + s.item.String()
}

func lockItem(ctx *QueryContext, item *FromItem, mode transaction.DBLockMode) error {
	if ctx.txn == nil {
		return nil
	}
	return ctx.txn.AcquireLock(transaction.NewTableLockTag(item.table.Oid), mode)
}

// lookupKey evaluates the expression an index is searched with into an index key for the comparison kind. ok is false
// when no row can match: the key is NULL, or an equality lookup in a long index with a fractional double.
func lookupKey(ctx *QueryContext, e Expr, kind cmpKind, equality bool) (key indexing.Key, ok bool, err error) {
	null, err := e.IsNull(ctx)
	if err != nil || null {
		return indexing.NilKey, false, err
	}
	switch runKind(ctx, kind, e) {
	case cmpLong:
		n, err := e.EvalLong(ctx)
		return indexing.NewKey(common.NewLongValue(n)), err == nil, err
	case cmpDate:
		n, err := e.EvalDate(ctx)
		return indexing.NewKey(common.NewLongValue(n)), err == nil, err
	case cmpDouble:
		f, err := e.EvalDouble(ctx)
		if err != nil {
			return indexing.NilKey, false, err
		}
		if !equality {
			return indexing.NewKey(common.NewDoubleValue(f)), true, nil
		}
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return indexing.NilKey, false, nil
		}
		return indexing.NewKey(common.NewLongValue(int64(f))), true, nil
	}
	s, ok, err := e.EvalString(ctx)
	if err != nil || !ok {
		return indexing.NilKey, false, err
	}
	return indexing.NewKey(common.NewStringValue(s)), true, nil
}

// indexLookupExpr fetches the rows whose indexed column equals a key.
type indexLookupExpr struct {
	item  *FromItem
	index indexing.Index
	key   Expr
	kind  cmpKind
}

func (l *indexLookupExpr) Open(ctx *QueryContext, mode transaction.DBLockMode) (RowIterator, error) {
	if err := lockItem(ctx, l.item, mode); err != nil {
		return nil, err
	}
	key, ok, err := lookupKey(ctx, l.key, l.kind, true)
	if err != nil {
		return nil, err
	}
	it := &ridIterator{heap: l.item.heap, ctx: ctx, forUpdate: mode == transaction.LockModeX, pos: -1}
	if !ok {
		return it, nil
	}
	if it.rids, err = l.index.ScanKey(key, nil, ctx.txn); err != nil {
		return nil, err
	}
	return it, nil
}

func (l *indexLookupExpr) String() string {
	return fmt.Sprintf("index %s on %s (%s = %s)", l.index.Metadata().Name, l.item, l.item.table.Columns[l.index.Metadata().Column].Name, l.key)
}

// ridIterator reads a list of RecordIDs from the heap. Rows deleted since the index was read are skipped.
type ridIterator struct {
	heap      *storage.TableHeap
	ctx       *QueryContext
	forUpdate bool
	rids      []common.RecordID
	pos       int
	row       storage.RawRow
	err       error
}

func (it *ridIterator) Next() bool {
	for it.err == nil && it.pos+1 < len(it.rids) {
		it.pos++
		row, err := it.heap.ReadRow(it.ctx.txn, it.rids[it.pos], it.forUpdate)
		if errors.Is(err, storage.ErrRowDeleted) {
			continue
		}
		if err != nil {
			it.err = err
			return false
		}
		it.row = row
		return true
	}
	it.row = nil
	return false
}

func (it *ridIterator) CurrentRID() common.RecordID {
	return it.rids[it.pos]
}

func (it *ridIterator) CurrentRow() storage.RawRow {
	return it.row
}

func (it *ridIterator) Error() error {
	return it.err
}

func (it *ridIterator) Close() error {
	it.rids = nil
	it.row = nil
	return nil
}

type rangeBound struct {
	expr      Expr
	inclusive bool
}

// indexRangeExpr walks an ordered index between two bounds. A nil bound is open.
type indexRangeExpr struct {
	item  *FromItem
	index indexing.Index
	kind  cmpKind
	low   *rangeBound
	high  *rangeBound
}

func (r *indexRangeExpr) bound(ctx *QueryContext, b *rangeBound) (indexing.Bound, bool, error) {
	if b == nil {
		return indexing.Unbounded, true, nil
	}
	key, ok, err := lookupKey(ctx, b.expr, r.kind, false)
	return indexing.Bound{Key: key, Inclusive: b.inclusive}, ok, err
}

func (r *indexRangeExpr) Open(ctx *QueryContext, mode transaction.DBLockMode) (RowIterator, error) {
	if err := lockItem(ctx, r.item, mode); err != nil {
		return nil, err
	}
	low, lok, err := r.bound(ctx, r.low)
	if err != nil {
		return nil, err
	}
	high, hok, err := r.bound(ctx, r.high)
	if err != nil {
		return nil, err
	}
	it := &ridIterator{heap: r.item.heap, ctx: ctx, forUpdate: mode == transaction.LockModeX, pos: -1}
	if !lok || !hok {
		return it, nil
	}
	scan, err := r.index.ScanRange(low, high, ctx.txn)
	if err != nil {
		return nil, err
	}
	defer scan.Close()
	for scan.Next() {
		it.rids = append(it.rids, scan.Value())
	}
	if err := scan.Error(); err != nil {
		return nil, err
	}
	return it, nil
}

func (r *indexRangeExpr) String() string {
	column := r.item.table.Columns[r.index.Metadata().Column].Name
	var conds []string
	describe := func(b *rangeBound, strict, loose string) {
		if b == nil {
			return
		}
		op := strict
		if b.inclusive {
			op = loose
		}
		conds = append(conds, fmt.Sprintf("%s %s %s", column, op, b.expr))
	}
	describe(r.low, ">", ">=")
	describe(r.high, "<", "<=")
	return fmt.Sprintf("index-range %s on %s (%s)", r.index.Metadata().Name, r.item, strings.Join(conds, " AND "))
}

// uniqueScanExpr scans the heap for the single row whose unique column equals a key, and stops at the first match.
type uniqueScanExpr struct {
	item   *FromItem
	column int
	key    Expr
	kind   cmpKind
}

func (u *uniqueScanExpr) Open(ctx *QueryContext, mode transaction.DBLockMode) (RowIterator, error) {
	heapIt, err := u.item.heap.Iterator(ctx.txn, mode)
	if err != nil {
		return nil, err
	}
	key, ok, err := lookupKey(ctx, u.key, u.kind, true)
	if err != nil {
		heapIt.Close()
		return nil, err
	}
	return &uniqueIterator{
		TableHeapIterator: heapIt,
		desc:              u.item.heap.StorageSchema(),
		column:            u.column,
		key:               key,
		done:              !ok,
	}, nil
}

func (u *uniqueScanExpr) String() string {
	return fmt.Sprintf("unique-scan %s (%s = %s)", u.item, u.item.table.Columns[u.column].Name, u.key)
}

type uniqueIterator struct {
	*storage.TableHeapIterator
	desc   *storage.RowDesc
	column int
	key    indexing.Key
	done   bool
}

func (it *uniqueIterator) Next() bool {
	for !it.done && it.TableHeapIterator.Next() {
		if it.desc.IsNull(it.CurrentRow(), it.column) {
			continue
		}
		if indexing.NewKey(it.desc.GetValue(it.CurrentRow(), it.column)).Equals(it.key) {
			it.done = true
			return true
		}
	}
	it.done = true
	return false
}
