package indexing

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"mit.edu/dsg/rowdb/common"
	"mit.edu/dsg/rowdb/transaction"
)

// bucket holds the list of RecordIDs for a specific Key.
type bucket struct {
	sync.RWMutex
	key     Key
	rids    []common.RecordID
	removed bool
}

// MemHashIndex is a concurrent hash index using xsync.MapOf.
// It maps the byte encoding of a Key to a bucket of RecordIDs.
type MemHashIndex struct {
	m        *xsync.MapOf[string, *bucket]
	metadata *IndexMetadata
}

func NewMemHashIndex(metadata *IndexMetadata) *MemHashIndex {
	return &MemHashIndex{
		m:        xsync.NewMapOf[string, *bucket](),
		metadata: metadata,
	}
}

func (index *MemHashIndex) Metadata() *IndexMetadata {
	return index.metadata
}

func (index *MemHashIndex) Ordered() bool {
	return false
}

func (index *MemHashIndex) InsertEntry(key Key, rid common.RecordID, txn *transaction.TransactionContext) error {
	return index.insertEntry(key, rid, txn, index.metadata.Unique)
}

func (index *MemHashIndex) insertEntry(key Key, rid common.RecordID, txn *transaction.TransactionContext, unique bool) error {
	if key.IsNull() {
		return nil
	}
	encoded := key.encoded()
	for {
		b, _ := index.m.LoadOrCompute(encoded, func() *bucket {
			return &bucket{key: key, rids: make([]common.RecordID, 0, 1)}
		})
		b.Lock()
		// Race with a removal -- try again
		if b.removed {
			b.Unlock()
			continue
		}
		for _, r := range b.rids {
			if r == rid {
				b.Unlock()
				return nil
			}
		}
		if unique && len(b.rids) > 0 {
			b.Unlock()
			return constraintError(index.metadata, key)
		}
		b.rids = append(b.rids, rid)
		b.Unlock()

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
}

// removeEntry drops rid from the key's bucket and reports whether it was present.
func (index *MemHashIndex) removeEntry(key Key, rid common.RecordID) bool {
	encoded := key.encoded()
	b, ok := index.m.Load(encoded)
	if !ok {
		return false
	}

	b.Lock()
	defer b.Unlock()
	for i, r := range b.rids {
		if r != rid {
			continue
		}
		// Found it. Remove via swap-with-last
		lastIdx := len(b.rids) - 1
		b.rids[i] = b.rids[lastIdx]
		b.rids = b.rids[:lastIdx]
		if len(b.rids) == 0 {
			b.removed = true
			index.m.Delete(encoded)
		}
		return true
	}
	return false
}

func (index *MemHashIndex) DeleteEntry(key Key, rid common.RecordID, txn *transaction.TransactionContext) error {
	if key.IsNull() {
		return nil
	}
	if index.removeEntry(key, rid) && txn != nil {
		txn.AddUndo(transaction.UndoTask{
			Target: index,
			Type:   transaction.UndoDelete,
			Key:    key.Value,
			RID:    rid,
		})
	}
	return nil
}

func (index *MemHashIndex) ScanKey(key Key, output []common.RecordID, txn *transaction.TransactionContext) ([]common.RecordID, error) {
	if key.IsNull() {
		return output, nil
	}
	encoded := key.encoded()
	for {
		b, ok := index.m.Load(encoded)
		if !ok {
			return output, nil
		}

		b.RLock()
		if b.removed {
			b.RUnlock()
			continue
		}
		// Append all RIDs in this bucket
		output = append(output, b.rids...)
		b.RUnlock()
		return output, nil
	}
}

func (index *MemHashIndex) ScanRange(low, high Bound, txn *transaction.TransactionContext) (ScanIterator, error) {
	return nil, common.NewError(common.UnsupportedOperationError, "range scans not supported for hash index '%s'", index.metadata.Name)
}

// Undo implements transaction.UndoCallback.
func (index *MemHashIndex) Undo(task transaction.UndoTask) {
	key := NewKey(task.Key)
	switch task.Type {
	case transaction.UndoInsert:
		index.removeEntry(key, task.RID)
	case transaction.UndoDelete:
		// Undo runs newest first, so any entry that would clash with the restored one is already gone
		_ = index.insertEntry(key, task.RID, nil, false)
	default:
		panic("unhandled undo type " + task.Type.String())
	}
}
