package transaction

import (
	"mit.edu/dsg/rowdb/common"
)

// UndoCallback is implemented by table heaps and indexes to roll back their changes when a transaction aborts. Both
// are memory-only, so rollback replays the transaction's undo stack in reverse instead of reading a log.
type UndoCallback interface {
	Undo(task UndoTask)
}

type UndoType int

const (
	// UndoInsert removes a row (or index entry) the transaction inserted.
	UndoInsert UndoType = iota
	// UndoDelete restores a row (or index entry) the transaction deleted.
	UndoDelete
	// UndoUpdate restores the image a row had before the transaction updated it.
	UndoUpdate
)

func (t UndoType) String() string {
	switch t {
	case UndoInsert:
		return "insert"
	case UndoDelete:
		return "delete"
	case UndoUpdate:
		return "update"
	}
	return "unknown"
}

// UndoTask represents a single undo action, such as removing a row that was inserted by the current transaction.
// It is a value struct (not a pointer) to avoid heap allocation per op.
//
// Heaps use RID and Image (the row bytes before the change). Indexes use RID and Key.
type UndoTask struct {
	Target UndoCallback
	Type   UndoType
	RID    common.RecordID
	Key    common.Value
	Image  []byte
}
