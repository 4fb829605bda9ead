package transaction

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"mit.edu/dsg/rowdb/common"
)

// TransactionManager is the central component managing the lifecycle of transactions.
// It coordinates with the LockManager for concurrency control and replays undo stacks on rollback.
type TransactionManager struct {
	// activeTxns maps TransactionIDs to their runtime context
	activeTxns  *xsync.MapOf[common.TransactionID, *TransactionContext]
	lockManager *LockManager
	logger      *slog.Logger

	nextTxnID atomic.Uint64
	// Pool to recycle transaction contexts
	txnPool sync.Pool
}

// NewTransactionManager initializes the transaction manager. A nil logger discards output.
func NewTransactionManager(lockManager *LockManager, logger *slog.Logger) *TransactionManager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	tm := &TransactionManager{
		activeTxns:  xsync.NewMapOf[common.TransactionID, *TransactionContext](),
		lockManager: lockManager,
		logger:      logger,
		txnPool: sync.Pool{
			New: func() any {
				return &TransactionContext{
					id:        common.InvalidTransactionID,
					heldLocks: make(map[DBLockTag]DBLockMode),
					undoStack: make([]UndoTask, 0, 16),
				}
			},
		},
	}
	return tm
}

// Begin starts a new transaction and returns the initialized context.
func (tm *TransactionManager) Begin(autoCommit bool) *TransactionContext {
	tid := common.TransactionID(tm.nextTxnID.Add(1))

	txn := tm.txnPool.Get().(*TransactionContext)
	txn.lm = tm.lockManager
	txn.Reset(tid, autoCommit)
	tm.activeTxns.Store(tid, txn)
	return txn
}

// Commit completes a transaction and makes its effects visible. The context must not be used afterwards.
func (tm *TransactionManager) Commit(txn *TransactionContext) error {
	if err := txn.CheckActive(); err != nil {
		return err
	}
	txn.state = txnCommitted
	tm.finish(txn)
	return nil
}

// Rollback undoes every change of the transaction, newest first, and releases its locks.
func (tm *TransactionManager) Rollback(txn *TransactionContext) error {
	if err := txn.CheckActive(); err != nil {
		return err
	}
	n := len(txn.undoStack)
	txn.UndoTo(0)
	tm.logger.Debug("transaction rolled back", "txn", txn.id, "undone", n)
	txn.state = txnAborted
	tm.finish(txn)
	return nil
}

func (tm *TransactionManager) finish(txn *TransactionContext) {
	txn.ReleaseAllLocks()
	tm.activeTxns.Delete(txn.id)
	clear(txn.undoStack)
	txn.undoStack = txn.undoStack[:0]
	tm.txnPool.Put(txn)
}

// NumActive returns the number of transactions that have begun and not yet finished.
func (tm *TransactionManager) NumActive() int {
	return tm.activeTxns.Size()
}
