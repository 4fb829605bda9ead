package indexing

import (
	"mit.edu/dsg/rowdb/common"
	"mit.edu/dsg/rowdb/transaction"
)

// IndexMetadata describes the structure of the index and how it relates to the base table.
type IndexMetadata struct {
	Oid  common.ObjectID
	Name string
	// Column is the position of the indexed column in the base table.
	Column int
	// KeyType is the result type of the indexed column. Lookup keys are converted to it before probing.
	KeyType common.Type
	Unique  bool
}

// Bound is one end of a range scan. A NilKey bound is open (Infinity).
type Bound struct {
	Key       Key
	Inclusive bool
}

// Unbounded is the open range bound.
var Unbounded = Bound{Key: NilKey}

// Index defines the interface for database indexes (e.g., B-Tree, Hash).
// An index maps the value of one column to one or more RecordIDs (RIDs).
//
// NULL keys are never stored: inserting or deleting one is a no-op, and no scan returns it. Two NULLs therefore
// never violate a unique index.
type Index interface {
	// Metadata returns the metadata associated with this index.
	Metadata() *IndexMetadata

	// Ordered reports whether the index supports range scans.
	Ordered() bool

	// InsertEntry adds a mapping from the given key to the specified RecordID. On a unique index it fails with a
	// ConstraintError if another RecordID already has an equal key.
	InsertEntry(key Key, rid common.RecordID, txn *transaction.TransactionContext) error

	// DeleteEntry removes the mapping between the given key and the specified RecordID.
	DeleteEntry(key Key, rid common.RecordID, txn *transaction.TransactionContext) error

	// ScanKey performs a point lookup. It finds all RecordIDs associated with the exact `key`.
	// The results are appended to the provided `output` slice, which allows the caller
	// to reuse memory and avoid allocations.
	ScanKey(key Key, output []common.RecordID, txn *transaction.TransactionContext) ([]common.RecordID, error)

	// ScanRange returns an iterator over the entries between low and high in ascending key order. Unordered
	// indexes return UnsupportedOperationError.
	ScanRange(low, high Bound, txn *transaction.TransactionContext) (ScanIterator, error)
}

// ScanIterator iterates over the results of a range scan.
// It follows the standard Iterator pattern (Init -> Next -> Close).
type ScanIterator interface {
	// Next advances the iterator to the next entry.
	// Returns true if an entry exists, false if the scan is exhausted.
	Next() bool

	// Key returns the current key at the cursor.
	Key() Key

	// Value returns the current value at the cursor.
	Value() common.RecordID

	// Error returns the first unexpected error encountered by the iterator.
	Error() error

	// Close releases any resources held by the iterator.
	Close() error
}

func constraintError(md *IndexMetadata, key Key) error {
	return common.NewError(common.ConstraintError, "duplicate key %s violates unique index '%s'", key.String(), md.Name)
}
