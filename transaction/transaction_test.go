package transaction

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mit.edu/dsg/rowdb/common"
)

type recordingTarget struct {
	undone []UndoTask
}

func (r *recordingTarget) Undo(task UndoTask) {
	r.undone = append(r.undone, task)
}

func TestRollbackReplaysInReverse(t *testing.T) {
	tm := NewTransactionManager(NewLockManager(), nil)
	txn := tm.Begin(false)
	assert.Equal(t, 1, tm.NumActive())

	target := &recordingTarget{}
	for i := 0; i < 3; i++ {
		txn.AddUndo(UndoTask{Target: target, Type: UndoInsert, RID: common.RecordID{Oid: 1, Slot: int32(i)}})
	}
	require.NoError(t, tm.Rollback(txn))

	require.Len(t, target.undone, 3)
	for i, task := range target.undone {
		assert.Equal(t, int32(2-i), task.RID.Slot)
	}
	assert.Equal(t, 0, tm.NumActive())
	assert.True(t, common.IsErrorCode(txn.CheckActive(), common.TransactionClosedError))
	assert.True(t, common.IsErrorCode(tm.Commit(txn), common.TransactionClosedError))
}

func TestUndoToKeepsEarlierChanges(t *testing.T) {
	tm := NewTransactionManager(NewLockManager(), nil)
	txn := tm.Begin(false)
	tag := NewTableLockTag(3)
	require.NoError(t, txn.AcquireLock(tag, LockModeX))

	target := &recordingTarget{}
	txn.AddUndo(UndoTask{Target: target, Type: UndoInsert, RID: common.RecordID{Oid: 1, Slot: 0}})
	mark := txn.NumUndo()
	txn.AddUndo(UndoTask{Target: target, Type: UndoInsert, RID: common.RecordID{Oid: 1, Slot: 1}})
	txn.AddUndo(UndoTask{Target: target, Type: UndoDelete, RID: common.RecordID{Oid: 1, Slot: 2}})

	txn.UndoTo(mark)
	require.Len(t, target.undone, 2)
	assert.Equal(t, int32(2), target.undone[0].RID.Slot)
	assert.Equal(t, int32(1), target.undone[1].RID.Slot)
	assert.Equal(t, 1, txn.NumUndo())
	require.NoError(t, txn.CheckActive())
	_, held := txn.LockMode(tag)
	assert.True(t, held)

	require.NoError(t, tm.Rollback(txn))
	require.Len(t, target.undone, 3)
	assert.Equal(t, int32(0), target.undone[2].RID.Slot)
}

func TestCommitReleasesLocks(t *testing.T) {
	lm := NewLockManager()
	tm := NewTransactionManager(lm, nil)
	tag := NewTableLockTag(7)

	txn := tm.Begin(true)
	assert.True(t, txn.AutoCommit())
	require.NoError(t, txn.AcquireLock(tag, LockModeS))
	require.NoError(t, txn.AcquireLock(tag, LockModeX))
	// X covers S
	require.NoError(t, txn.AcquireLock(tag, LockModeS))
	mode, ok := txn.LockMode(tag)
	require.True(t, ok)
	assert.Equal(t, LockModeX, mode)
	assert.True(t, lm.LockHeld(tag))

	require.NoError(t, tm.Commit(txn))
	assert.False(t, lm.LockHeld(tag))
}

func TestSharedLocksAreCompatible(t *testing.T) {
	tm := NewTransactionManager(NewLockManager(), nil)
	tag := NewTableLockTag(1)
	older := tm.Begin(false)
	younger := tm.Begin(false)

	require.NoError(t, older.AcquireLock(tag, LockModeS))
	require.NoError(t, younger.AcquireLock(tag, LockModeS))
	require.NoError(t, tm.Commit(older))
	require.NoError(t, tm.Commit(younger))
}

func TestWaitDieYoungerAborts(t *testing.T) {
	tm := NewTransactionManager(NewLockManager(), nil)
	tag := NewTableLockTag(1)
	older := tm.Begin(false)
	younger := tm.Begin(false)

	require.NoError(t, older.AcquireLock(tag, LockModeX))
	err := younger.AcquireLock(tag, LockModeS)
	assert.True(t, common.IsErrorCode(err, common.DeadlockError))
	require.NoError(t, tm.Rollback(younger))
	require.NoError(t, tm.Commit(older))
}

func TestWaitDieOlderWaits(t *testing.T) {
	tm := NewTransactionManager(NewLockManager(), nil)
	tag := NewTableLockTag(1)
	older := tm.Begin(false)
	younger := tm.Begin(false)

	require.NoError(t, younger.AcquireLock(tag, LockModeX))

	var wg sync.WaitGroup
	acquired := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		acquired <- older.AcquireLock(tag, LockModeX)
	}()

	select {
	case <-acquired:
		t.Fatal("older transaction acquired a lock held exclusively by another transaction")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, tm.Commit(younger))
	wg.Wait()
	require.NoError(t, <-acquired)
	mode, ok := older.LockMode(tag)
	require.True(t, ok)
	assert.Equal(t, LockModeX, mode)
	require.NoError(t, tm.Commit(older))
}

func TestUpgradeWaitsForOtherReaders(t *testing.T) {
	tm := NewTransactionManager(NewLockManager(), nil)
	tag := NewTableLockTag(3)
	older := tm.Begin(false)
	younger := tm.Begin(false)

	require.NoError(t, older.AcquireLock(tag, LockModeS))
	require.NoError(t, younger.AcquireLock(tag, LockModeS))

	// The younger reader cannot upgrade past the older one.
	assert.True(t, common.IsErrorCode(younger.AcquireLock(tag, LockModeX), common.DeadlockError))

	done := make(chan error, 1)
	go func() { done <- older.AcquireLock(tag, LockModeX) }()
	require.NoError(t, tm.Rollback(younger))
	require.NoError(t, <-done)
	require.NoError(t, tm.Commit(older))
}
