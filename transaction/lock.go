package transaction

import (
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"mit.edu/dsg/rowdb/common"
)

// DBLockTag identifies a lockable resource. Locking is table-granular, so a tag is a table oid.
type DBLockTag struct {
	Oid common.ObjectID
}

// NewTableLockTag creates a DBLockTag representing a whole table.
func NewTableLockTag(oid common.ObjectID) DBLockTag {
	return DBLockTag{Oid: oid}
}

func (t DBLockTag) String() string {
	return fmt.Sprintf("Table(%d)", t.Oid)
}

// DBLockMode represents the type of access a transaction is requesting.
type DBLockMode int

const (
	// LockModeS (Shared) allows reading a table. Multiple transactions can hold S locks simultaneously.
	LockModeS DBLockMode = iota
	// LockModeX (Exclusive) allows modification. It is incompatible with all other modes.
	LockModeX
)

func (m DBLockMode) String() string {
	switch m {
	case LockModeS:
		return "LockModeS"
	case LockModeX:
		return "LockModeX"
	}
	return "Unknown lock mode"
}

// Compatible reports whether a request in mode req can be granted while another transaction holds held.
func Compatible(req, held DBLockMode) bool {
	return req == LockModeS && held == LockModeS
}

// CoveredBy returns true if the 'held' lock is strong enough to satisfy the 'req' lock.
func CoveredBy(req, held DBLockMode) bool {
	return held == LockModeX || req == held
}

type dbLockRequest struct {
	txnID   common.TransactionID
	mode    DBLockMode
	upgrade bool
	granted bool
	cond    *sync.Cond
}

type dbLock struct {
	mutex   sync.Mutex
	holders map[common.TransactionID]DBLockMode
	waiters []*dbLockRequest
}

func (l *dbLock) canGrant(r *dbLockRequest) bool {
	for tid, mode := range l.holders {
		if tid == r.txnID {
			continue
		}
		if !Compatible(r.mode, mode) {
			return false
		}
	}
	return true
}

// lock implements wait-die: a requester that conflicts with an older transaction (a smaller id) aborts, while an
// older requester waits for younger ones.
func (l *dbLock) lock(tag DBLockTag, txnID common.TransactionID, mode DBLockMode) error {
	held, upgrade := l.holders[txnID]
	if upgrade && CoveredBy(mode, held) {
		return nil
	}
	request := &dbLockRequest{txnID: txnID, mode: mode, upgrade: upgrade}

	blocked := false
	for tid, m := range l.holders {
		if tid == txnID || Compatible(mode, m) {
			continue
		}
		if txnID > tid {
			return common.NewError(common.DeadlockError,
				"deadlock (wait-die): txn %d aborting for holder %d of %s", txnID, tid, tag)
		}
		blocked = true
	}
	// Upgrades are logically ahead of the queue
	if !upgrade {
		for _, w := range l.waiters {
			if Compatible(mode, w.mode) {
				continue
			}
			if txnID > w.txnID {
				return common.NewError(common.DeadlockError,
					"deadlock (wait-die): txn %d aborting for waiter %d of %s", txnID, w.txnID, tag)
			}
			blocked = true
		}
	}

	if !blocked {
		l.holders[txnID] = mode
		return nil
	}

	request.cond = sync.NewCond(&l.mutex)
	if upgrade {
		l.waiters = append([]*dbLockRequest{request}, l.waiters...)
	} else {
		l.waiters = append(l.waiters, request)
	}
	for !request.granted {
		request.cond.Wait()
	}
	return nil
}

// unlock releases the lock and grants waiters in queue order until one conflicts.
func (l *dbLock) unlock(tid common.TransactionID) {
	delete(l.holders, tid)

	i := 0
	for i < len(l.waiters) {
		w := l.waiters[i]
		if !l.canGrant(w) {
			break
		}
		l.holders[w.txnID] = w.mode
		w.granted = true
		w.cond.Signal()
		l.waiters[i] = nil
		i++
	}
	l.waiters = l.waiters[i:]
}

func (l *dbLock) idle() bool {
	return len(l.holders) == 0 && len(l.waiters) == 0
}

// LockManager manages the granting, releasing, and waiting of table locks.
type LockManager struct {
	lockTable *xsync.MapOf[DBLockTag, *dbLock]
}

// NewLockManager initializes a new LockManager.
func NewLockManager() *LockManager {
	return &LockManager{
		lockTable: xsync.NewMapOf[DBLockTag, *dbLock](),
	}
}

// Lock acquires a lock on a table with the requested mode. If the lock cannot be acquired immediately, the
// transaction blocks until it is granted or aborted. It returns nil if the lock is successfully acquired, or
// DBError(DeadlockError) in case of a potential deadlock.
func (lm *LockManager) Lock(tid common.TransactionID, tag DBLockTag, mode DBLockMode) error {
	for {
		lock, _ := lm.lockTable.LoadOrCompute(tag, func() *dbLock {
			return &dbLock{holders: make(map[common.TransactionID]DBLockMode)}
		})
		lock.mutex.Lock()
		// A concurrent Unlock may have retired this lock from the table
		if current, ok := lm.lockTable.Load(tag); !ok || current != lock {
			lock.mutex.Unlock()
			continue
		}
		err := lock.lock(tag, tid, mode)
		if err != nil && lock.idle() {
			lm.lockTable.Delete(tag)
		}
		lock.mutex.Unlock()
		return err
	}
}

// Unlock releases the lock held by the transaction on the specified table.
func (lm *LockManager) Unlock(tid common.TransactionID, tag DBLockTag) {
	lock, ok := lm.lockTable.Load(tag)
	if !ok {
		return
	}

	lock.mutex.Lock()
	defer lock.mutex.Unlock()
	lock.unlock(tid)
	if lock.idle() {
		lm.lockTable.Delete(tag)
	}
}

// LockHeld checks if any transaction currently holds a lock on the given table.
func (lm *LockManager) LockHeld(tag DBLockTag) bool {
	lock, ok := lm.lockTable.Load(tag)
	if !ok {
		return false
	}
	lock.mutex.Lock()
	defer lock.mutex.Unlock()
	return len(lock.holders) != 0
}
