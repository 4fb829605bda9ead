package indexing

import (
	"sync"

	"github.com/tidwall/btree"

	"mit.edu/dsg/rowdb/common"
	"mit.edu/dsg/rowdb/transaction"
)

type btreeItem struct {
	key Key
	rid common.RecordID
}

// MemBTreeIndex is a B-Tree based index implementation.
// It is a wrapper around github.com/tidwall/btree, specialized for database Keys and RecordIDs.
type MemBTreeIndex struct {
	tree     *btree.BTreeG[btreeItem]
	metadata *IndexMetadata
	// writeLatch makes the unique check and the insert atomic
	writeLatch sync.Mutex
}

func NewMemBTreeIndex(metadata *IndexMetadata) *MemBTreeIndex {
	// less function defines the ordering of items in the BTree.
	// Primary order by Key, secondary order by RecordID (to support non-unique keys).
	less := func(a, b btreeItem) bool {
		cmp := a.key.Compare(b.key)
		if cmp != 0 {
			return cmp < 0
		}
		// Tie-breaker: RecordID ensures uniqueness for the Set
		if a.rid.Oid != b.rid.Oid {
			return a.rid.Oid < b.rid.Oid
		}
		return a.rid.Slot < b.rid.Slot
	}

	return &MemBTreeIndex{
		tree:     btree.NewBTreeG(less),
		metadata: metadata,
	}
}

func (index *MemBTreeIndex) Metadata() *IndexMetadata {
	return index.metadata
}

func (index *MemBTreeIndex) Ordered() bool {
	return true
}

// pivot sorts before every entry with the given key, since real RecordIDs never use the invalid oid.
func pivot(key Key) btreeItem {
	return btreeItem{key: key, rid: common.RecordID{}}
}

func (index *MemBTreeIndex) InsertEntry(key Key, rid common.RecordID, txn *transaction.TransactionContext) error {
	if key.IsNull() {
		return nil
	}
	index.writeLatch.Lock()
	defer index.writeLatch.Unlock()

	if index.metadata.Unique {
		duplicate := false
		index.tree.Ascend(pivot(key), func(item btreeItem) bool {
			if !item.key.Equals(key) {
				return false
			}
			if item.rid != rid {
				duplicate = true
				return false
			}
			return true
		})
		if duplicate {
			return constraintError(index.metadata, key)
		}
	}

	if _, replaced := index.tree.Set(btreeItem{key: key, rid: rid}); replaced {
		return nil
	}
	if txn != nil {
		txn.AddUndo(transaction.UndoTask{
			Target: index,
			Type:   transaction.UndoInsert,
			Key:    key.Value,
			RID:    rid,
		})
	}
	return nil
}

func (index *MemBTreeIndex) DeleteEntry(key Key, rid common.RecordID, txn *transaction.TransactionContext) error {
	if key.IsNull() {
		return nil
	}
	index.writeLatch.Lock()
	defer index.writeLatch.Unlock()

	val, deleted := index.tree.Delete(btreeItem{key: key, rid: rid})
	if txn != nil && deleted {
		txn.AddUndo(transaction.UndoTask{
			Target: index,
			Type:   transaction.UndoDelete,
			Key:    val.key.Value,
			RID:    rid,
		})
	}
	return nil
}

func (index *MemBTreeIndex) ScanKey(key Key, output []common.RecordID, txn *transaction.TransactionContext) ([]common.RecordID, error) {
	if key.IsNull() {
		return output, nil
	}
	index.tree.Ascend(pivot(key), func(item btreeItem) bool {
		if !item.key.Equals(key) {
			return false // Stop iterating once the key changes
		}
		output = append(output, item.rid)
		return true
	})
	return output, nil
}

func (index *MemBTreeIndex) ScanRange(low, high Bound, txn *transaction.TransactionContext) (ScanIterator, error) {
	// Use Copy-On-Write for a consistent snapshot iterator
	snapshot := index.tree.Copy()
	iter := snapshot.Iter()

	it := &MemBTreeIndexIterator{
		iter:      iter,
		high:      high,
		firstCall: true,
	}
	if low.Key.IsNil() {
		it.hasMore = iter.First()
	} else {
		it.hasMore = iter.Seek(pivot(low.Key))
		if !low.Inclusive {
			for it.hasMore && iter.Item().key.Equals(low.Key) {
				it.hasMore = iter.Next()
			}
		}
	}
	it.hasMore = it.hasMore && it.inRange()
	return it, nil
}

// Undo implements transaction.UndoCallback.
func (index *MemBTreeIndex) Undo(task transaction.UndoTask) {
	index.writeLatch.Lock()
	defer index.writeLatch.Unlock()
	switch task.Type {
	case transaction.UndoInsert:
		index.tree.Delete(btreeItem{key: NewKey(task.Key), rid: task.RID})
	case transaction.UndoDelete:
		index.tree.Set(btreeItem{key: NewKey(task.Key), rid: task.RID})
	default:
		panic("unhandled undo type " + task.Type.String())
	}
}

// MemBTreeIndexIterator implements ScanIterator for BTree range scans.
type MemBTreeIndexIterator struct {
	iter      btree.IterG[btreeItem]
	high      Bound
	firstCall bool
	hasMore   bool
}

func (it *MemBTreeIndexIterator) inRange() bool {
	if it.high.Key.IsNil() {
		return true
	}
	cmp := it.iter.Item().key.Compare(it.high.Key)
	return cmp < 0 || (cmp == 0 && it.high.Inclusive)
}

func (it *MemBTreeIndexIterator) Next() bool {
	if it.firstCall {
		it.firstCall = false
		return it.hasMore
	}
	if !it.hasMore {
		return false
	}
	it.hasMore = it.iter.Next() && it.inRange()
	return it.hasMore
}

func (it *MemBTreeIndexIterator) Key() Key {
	return it.iter.Item().key
}

func (it *MemBTreeIndexIterator) Value() common.RecordID {
	return it.iter.Item().rid
}

func (it *MemBTreeIndexIterator) Error() error {
	return nil
}

func (it *MemBTreeIndexIterator) Close() error {
	it.iter.Release()
	return nil
}
