package indexing

import (
	"mit.edu/dsg/rowdb/common"
)

// Key represents a search key in an index: the value of the indexed column.
type Key struct {
	common.Value
}

// NilKey represents an empty or uninitialized key.
// It is used to represent open bounds (Infinity) in range scans.
var NilKey = Key{}

// NewKey wraps a value as a key.
func NewKey(v common.Value) Key {
	return Key{Value: v}
}

// IsNil checks if the key is the NilKey (sentinel value).
func (k Key) IsNil() bool {
	return k.Value.IsNil()
}

// encoded returns the byte encoding used by hash buckets. Keys of the same type family that compare equal encode
// identically.
func (k Key) encoded() string {
	return string(k.AppendKey(nil))
}

// Hash computes a hash value for the key based on its encoding.
func (k Key) Hash() uint64 {
	if k.IsNil() {
		return 0
	}
	return common.Hash(k.AppendKey(nil))
}

// Equals checks if two keys hold equal values.
func (k Key) Equals(other Key) bool {
	if k.IsNil() || other.IsNil() {
		return k.IsNil() && other.IsNil()
	}
	return k.Value.Compare(other.Value) == 0
}

// Compare compares this key with another key.
// Returns:
//   - -1 if k < other
//   - 0 if k == other
//   - +1 if k > other
func (k Key) Compare(other Key) int {
	return k.Value.Compare(other.Value)
}
