package storage

import (
	"errors"
	"sync"

	"mit.edu/dsg/rowdb/catalog"
	"mit.edu/dsg/rowdb/common"
	"mit.edu/dsg/rowdb/transaction"
)

var ErrRowDeleted = errors.New("row has been deleted")

// TableHeap holds the rows of one table in memory. A row lives in a numbered slot; a bitmap tracks which slots are
// live, and freed slots are reused by later inserts.
//
// Stored RawRows are never modified in place. Updates swap in a new slice, so a row handed to a reader stays valid.
// Every mutation made under a transaction pushes an undo task onto it.
type TableHeap struct {
	oid  common.ObjectID
	desc *RowDesc

	mu       sync.RWMutex
	rows     []RawRow
	live     *Bitmap
	freeHint int
}

// NewTableHeap creates an empty heap for the table.
func NewTableHeap(table *catalog.Table) *TableHeap {
	return &TableHeap{
		oid:  table.Oid,
		desc: NewRowDesc(table.ColumnTypes()),
		live: NewBitmap(0),
	}
}

func (tableHeap *TableHeap) Oid() common.ObjectID {
	return tableHeap.oid
}

// StorageSchema returns the physical layout descriptor of the rows in this table.
func (tableHeap *TableHeap) StorageSchema() *RowDesc {
	return tableHeap.desc
}

// NumRows returns the number of live rows.
func (tableHeap *TableHeap) NumRows() int {
	tableHeap.mu.RLock()
	defer tableHeap.mu.RUnlock()
	return tableHeap.live.Count()
}

func lockTable(txn *transaction.TransactionContext, oid common.ObjectID, mode transaction.DBLockMode) error {
	if txn == nil {
		return nil
	}
	return txn.AcquireLock(transaction.NewTableLockTag(oid), mode)
}

// InsertRow stores a row in a free slot and returns its RecordID.
func (tableHeap *TableHeap) InsertRow(txn *transaction.TransactionContext, row RawRow) (common.RecordID, error) {
	if err := lockTable(txn, tableHeap.oid, transaction.LockModeX); err != nil {
		return common.RecordID{}, err
	}

	tableHeap.mu.Lock()
	defer tableHeap.mu.Unlock()
	slot := tableHeap.live.FindFirstZero(tableHeap.freeHint)
	if slot == -1 {
		slot = len(tableHeap.rows)
		tableHeap.rows = append(tableHeap.rows, nil)
		tableHeap.live.Grow(len(tableHeap.rows))
	}
	tableHeap.freeHint = slot + 1
	tableHeap.rows[slot] = row
	tableHeap.live.SetBit(slot, true)

	rid := common.RecordID{Oid: tableHeap.oid, Slot: int32(slot)}
	if txn != nil {
		txn.AddUndo(transaction.UndoTask{Target: tableHeap, Type: transaction.UndoInsert, RID: rid})
	}
	return rid, nil
}

// DeleteRow marks a row as deleted. If the row has been deleted, return ErrRowDeleted.
func (tableHeap *TableHeap) DeleteRow(txn *transaction.TransactionContext, rid common.RecordID) error {
	if err := lockTable(txn, tableHeap.oid, transaction.LockModeX); err != nil {
		return err
	}

	tableHeap.mu.Lock()
	defer tableHeap.mu.Unlock()
	if !tableHeap.isLive(rid) {
		return ErrRowDeleted
	}
	before := tableHeap.rows[rid.Slot]
	tableHeap.live.SetBit(int(rid.Slot), false)
	tableHeap.freeHint = min(tableHeap.freeHint, int(rid.Slot))
	if txn != nil {
		txn.AddUndo(transaction.UndoTask{Target: tableHeap, Type: transaction.UndoDelete, RID: rid, Image: before})
	}
	return nil
}

// ReadRow returns the stored row. If forUpdate is true, read acquires an exclusive table lock instead of a shared
// one. If the row has been deleted, return ErrRowDeleted.
func (tableHeap *TableHeap) ReadRow(txn *transaction.TransactionContext, rid common.RecordID, forUpdate bool) (RawRow, error) {
	mode := transaction.LockModeS
	if forUpdate {
		mode = transaction.LockModeX
	}
	if err := lockTable(txn, tableHeap.oid, mode); err != nil {
		return nil, err
	}

	tableHeap.mu.RLock()
	defer tableHeap.mu.RUnlock()
	if !tableHeap.isLive(rid) {
		return nil, ErrRowDeleted
	}
	return tableHeap.rows[rid.Slot], nil
}

// UpdateRow replaces a row with new bytes. If the row has been deleted, return ErrRowDeleted.
func (tableHeap *TableHeap) UpdateRow(txn *transaction.TransactionContext, rid common.RecordID, updated RawRow) error {
	if err := lockTable(txn, tableHeap.oid, transaction.LockModeX); err != nil {
		return err
	}

	tableHeap.mu.Lock()
	defer tableHeap.mu.Unlock()
	if !tableHeap.isLive(rid) {
		return ErrRowDeleted
	}
	before := tableHeap.rows[rid.Slot]
	tableHeap.rows[rid.Slot] = updated
	if txn != nil {
		txn.AddUndo(transaction.UndoTask{Target: tableHeap, Type: transaction.UndoUpdate, RID: rid, Image: before})
	}
	return nil
}

func (tableHeap *TableHeap) isLive(rid common.RecordID) bool {
	common.Assert(rid.Oid == tableHeap.oid, "%s does not belong to table %d", rid, tableHeap.oid)
	slot := int(rid.Slot)
	return slot >= 0 && slot < tableHeap.live.Len() && tableHeap.live.LoadBit(slot)
}

// Undo implements transaction.UndoCallback.
func (tableHeap *TableHeap) Undo(task transaction.UndoTask) {
	tableHeap.mu.Lock()
	defer tableHeap.mu.Unlock()
	slot := int(task.RID.Slot)
	switch task.Type {
	case transaction.UndoInsert:
		tableHeap.live.SetBit(slot, false)
		tableHeap.rows[slot] = nil
		tableHeap.freeHint = min(tableHeap.freeHint, slot)
	case transaction.UndoDelete:
		tableHeap.rows[slot] = task.Image
		tableHeap.live.SetBit(slot, true)
	case transaction.UndoUpdate:
		tableHeap.rows[slot] = task.Image
	default:
		panic("unhandled undo type " + task.Type.String())
	}
}

// Iterator creates a new TableHeapIterator to scan the table. It acquires the supplied lock on the table first,
// shared for reading or exclusive when the caller goes on to modify the rows it visits.
func (tableHeap *TableHeap) Iterator(txn *transaction.TransactionContext, mode transaction.DBLockMode) (*TableHeapIterator, error) {
	if err := lockTable(txn, tableHeap.oid, mode); err != nil {
		return nil, err
	}
	return &TableHeapIterator{tableHeap: tableHeap, slot: -1}, nil
}

// TableHeapIterator iterates over the live rows of the heap in slot order.
type TableHeapIterator struct {
	tableHeap *TableHeap
	slot      int
	row       RawRow
}

// Next advances the iterator to the next live row.
func (it *TableHeapIterator) Next() bool {
	it.tableHeap.mu.RLock()
	defer it.tableHeap.mu.RUnlock()
	next := it.tableHeap.live.NextSetBit(it.slot + 1)
	if next == -1 {
		it.slot = it.tableHeap.live.Len()
		it.row = nil
		return false
	}
	it.slot = next
	it.row = it.tableHeap.rows[next]
	return true
}

// CurrentRow returns the bytes of the row at the current cursor position.
func (it *TableHeapIterator) CurrentRow() RawRow {
	return it.row
}

// CurrentRID returns the RecordID of the current row.
func (it *TableHeapIterator) CurrentRID() common.RecordID {
	return common.RecordID{Oid: it.tableHeap.oid, Slot: int32(it.slot)}
}

// Error returns the first error encountered during iteration, if any.
func (it *TableHeapIterator) Error() error {
	return nil
}

// Close releases any resources associated with the TableHeapIterator
func (it *TableHeapIterator) Close() error {
	it.row = nil
	return nil
}
