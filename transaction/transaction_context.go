package transaction

import (
	"mit.edu/dsg/rowdb/common"
)

type txnState int

const (
	txnActive txnState = iota
	txnCommitted
	txnAborted
)

// TransactionContext holds the runtime state of a single transaction.
type TransactionContext struct {
	id         common.TransactionID
	autoCommit bool
	state      txnState
	lm         *LockManager
	heldLocks  map[DBLockTag]DBLockMode

	// undoStack holds in-memory undo actions for heaps and indexes, replayed in reverse on abort.
	undoStack []UndoTask
}

// ID returns the transaction id. Smaller ids belong to older transactions.
func (txn *TransactionContext) ID() common.TransactionID {
	return txn.id
}

// AutoCommit reports whether the transaction commits at the end of each statement.
func (txn *TransactionContext) AutoCommit() bool {
	return txn.autoCommit
}

// CheckActive returns a TransactionClosedError once the transaction has committed or rolled back.
func (txn *TransactionContext) CheckActive() error {
	if txn.state != txnActive {
		return common.NewError(common.TransactionClosedError, "transaction %d is closed", txn.id)
	}
	return nil
}

// AddUndo registers an action to be executed if the transaction aborts.
func (txn *TransactionContext) AddUndo(task UndoTask) {
	txn.undoStack = append(txn.undoStack, task)
}

// NumUndo returns the number of recorded undo actions.
func (txn *TransactionContext) NumUndo() int {
	return len(txn.undoStack)
}

// UndoTo rolls back the changes recorded after mark (a prior NumUndo result), newest first. The transaction stays
// active and keeps its locks, so a failed statement can be undone without aborting the whole transaction.
func (txn *TransactionContext) UndoTo(mark int) {
	for i := len(txn.undoStack) - 1; i >= mark; i-- {
		task := txn.undoStack[i]
		task.Target.Undo(task)
	}
	clear(txn.undoStack[mark:])
	txn.undoStack = txn.undoStack[:mark]
}

// AcquireLock attempts to acquire a lock on the specified table, checking for reentrancy (if the lock is already
// held). If the lock cannot be acquired immediately, this call may block or fail due to a deadlock.
func (txn *TransactionContext) AcquireLock(tag DBLockTag, mode DBLockMode) error {
	if err := txn.CheckActive(); err != nil {
		return err
	}
	if held, ok := txn.heldLocks[tag]; ok && CoveredBy(mode, held) {
		return nil
	}
	if err := txn.lm.Lock(txn.id, tag, mode); err != nil {
		return err
	}
	txn.heldLocks[tag] = mode
	return nil
}

// LockMode returns the mode held on tag, if any.
func (txn *TransactionContext) LockMode(tag DBLockTag) (DBLockMode, bool) {
	mode, ok := txn.heldLocks[tag]
	return mode, ok
}

// ReleaseAllLocks releases all locks held by this transaction.
// This is called during the Commit or Rollback phase of the transaction lifecycle.
func (txn *TransactionContext) ReleaseAllLocks() {
	for tag := range txn.heldLocks {
		txn.lm.Unlock(txn.id, tag)
	}
	clear(txn.heldLocks)
}

// Reset clears the transaction context for reuse.
// This is critical when using sync.Pool to avoid leaking data between users.
func (txn *TransactionContext) Reset(id common.TransactionID, autoCommit bool) {
	txn.id = id
	txn.autoCommit = autoCommit
	txn.state = txnActive
	clear(txn.heldLocks)
	clear(txn.undoStack)
	txn.undoStack = txn.undoStack[:0]
}
