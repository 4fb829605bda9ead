package indexing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mit.edu/dsg/rowdb/catalog"
	"mit.edu/dsg/rowdb/common"
	"mit.edu/dsg/rowdb/transaction"
)

func rid(slot int32) common.RecordID {
	return common.RecordID{Oid: 1, Slot: slot}
}

func longKey(v int64) Key {
	return NewKey(common.NewLongValue(v))
}

func newIndexes(unique bool) map[string]Index {
	md := func(name string) *IndexMetadata {
		return &IndexMetadata{Oid: 2, Name: name, Column: 0, KeyType: common.LongType, Unique: unique}
	}
	return map[string]Index{
		"btree": NewMemBTreeIndex(md("btree")),
		"hash":  NewMemHashIndex(md("hash")),
	}
}

func TestIndexPointLookup(t *testing.T) {
	for name, idx := range newIndexes(false) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, idx.InsertEntry(longKey(5), rid(0), nil))
			require.NoError(t, idx.InsertEntry(longKey(5), rid(1), nil))
			require.NoError(t, idx.InsertEntry(longKey(6), rid(2), nil))
			require.NoError(t, idx.InsertEntry(NewKey(common.NewNullValue(common.LongType)), rid(3), nil))

			rids, err := idx.ScanKey(longKey(5), nil, nil)
			require.NoError(t, err)
			assert.ElementsMatch(t, []common.RecordID{rid(0), rid(1)}, rids)

			// Int keys find long entries
			rids, err = idx.ScanKey(NewKey(common.NewIntValue(6)), nil, nil)
			require.NoError(t, err)
			assert.Equal(t, []common.RecordID{rid(2)}, rids)

			rids, err = idx.ScanKey(NewKey(common.NewNullValue(common.LongType)), nil, nil)
			require.NoError(t, err)
			assert.Empty(t, rids)

			require.NoError(t, idx.DeleteEntry(longKey(5), rid(0), nil))
			rids, err = idx.ScanKey(longKey(5), nil, nil)
			require.NoError(t, err)
			assert.Equal(t, []common.RecordID{rid(1)}, rids)
		})
	}
}

func TestIndexUnique(t *testing.T) {
	for name, idx := range newIndexes(true) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, idx.InsertEntry(longKey(1), rid(0), nil))
			err := idx.InsertEntry(longKey(1), rid(1), nil)
			assert.True(t, common.IsErrorCode(err, common.ConstraintError))
			// Re-inserting the same entry is not a violation
			require.NoError(t, idx.InsertEntry(longKey(1), rid(0), nil))

			null := NewKey(common.NewNullValue(common.LongType))
			require.NoError(t, idx.InsertEntry(null, rid(2), nil))
			require.NoError(t, idx.InsertEntry(null, rid(3), nil))
		})
	}
}

func TestIndexUndo(t *testing.T) {
	for name, idx := range newIndexes(true) {
		t.Run(name, func(t *testing.T) {
			tm := transaction.NewTransactionManager(transaction.NewLockManager(), nil)
			require.NoError(t, idx.InsertEntry(longKey(1), rid(0), nil))

			txn := tm.Begin(false)
			require.NoError(t, idx.DeleteEntry(longKey(1), rid(0), txn))
			require.NoError(t, idx.InsertEntry(longKey(1), rid(7), txn))
			require.NoError(t, idx.InsertEntry(longKey(2), rid(8), txn))
			assert.Equal(t, 3, txn.NumUndo())
			require.NoError(t, tm.Rollback(txn))

			rids, err := idx.ScanKey(longKey(1), nil, nil)
			require.NoError(t, err)
			assert.Equal(t, []common.RecordID{rid(0)}, rids)
			rids, err = idx.ScanKey(longKey(2), nil, nil)
			require.NoError(t, err)
			assert.Empty(t, rids)
		})
	}
}

func collectRange(t *testing.T, idx Index, low, high Bound) []int64 {
	it, err := idx.ScanRange(low, high, nil)
	require.NoError(t, err)
	defer it.Close()
	var keys []int64
	for it.Next() {
		keys = append(keys, it.Key().LongValue())
	}
	require.NoError(t, it.Error())
	return keys
}

func TestBTreeRangeScan(t *testing.T) {
	idx := newIndexes(false)["btree"]
	for i := int64(0); i < 10; i++ {
		require.NoError(t, idx.InsertEntry(longKey(i*10), rid(int32(i)), nil))
	}

	tests := []struct {
		name      string
		low, high Bound
		expected  []int64
	}{
		{"all", Unbounded, Unbounded, []int64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90}},
		{">= 70", Bound{longKey(70), true}, Unbounded, []int64{70, 80, 90}},
		{"> 70", Bound{longKey(70), false}, Unbounded, []int64{80, 90}},
		{"< 20", Unbounded, Bound{longKey(20), false}, []int64{0, 10}},
		{"<= 20", Unbounded, Bound{longKey(20), true}, []int64{0, 10, 20}},
		{"between", Bound{longKey(15), true}, Bound{longKey(45), true}, []int64{20, 30, 40}},
		{"empty", Bound{longKey(91), true}, Unbounded, nil},
		{"double bound", Bound{NewKey(common.NewDoubleValue(24.5)), false}, Unbounded, []int64{30, 40, 50, 60, 70, 80, 90}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, collectRange(t, idx, tt.low, tt.high))
		})
	}
}

func TestHashRangeScanUnsupported(t *testing.T) {
	_, err := newIndexes(false)["hash"].ScanRange(Unbounded, Unbounded, nil)
	assert.True(t, common.IsErrorCode(err, common.UnsupportedOperationError))
}

func TestIndexManager(t *testing.T) {
	provider := &catalog.MemoryCatalogManager{}
	c, err := catalog.NewCatalog(provider)
	require.NoError(t, err)
	_, err = c.AddTable("t", []catalog.Column{{Name: "a", Type: common.IntColumn}, {Name: "b", Type: common.VarCharColumn}}, provider)
	require.NoError(t, err)
	def, err := c.AddIndex("t_b", "t", "hash", "b", true, provider)
	require.NoError(t, err)

	im, err := NewIndexManager(c)
	require.NoError(t, err)
	idx, err := im.GetIndex(def.Oid)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Metadata().Column)
	assert.Equal(t, common.StringType, idx.Metadata().KeyType)
	assert.False(t, idx.Ordered())

	table, err := c.GetTableMetadata("t")
	require.NoError(t, err)
	assert.Equal(t, []Index{idx}, im.IndexesFor(c.TableIndexes(table)))

	pending := catalog.Index{Oid: 42, Name: "t_a", Type: "btree", Column: "a"}
	assert.Equal(t, []Index{idx}, im.IndexesFor(append(c.TableIndexes(table), pending)))
	built, err := NewIndex(table, pending)
	require.NoError(t, err)
	assert.Same(t, built, im.Register(built))
	assert.Len(t, im.IndexesFor(append(c.TableIndexes(table), pending)), 2)

	_, err = NewIndex(table, catalog.Index{Oid: 43, Name: "t_c", Type: "btree", Column: "c"})
	assert.True(t, common.IsErrorCode(err, common.NoSuchObjectError))

	_, err = im.GetIndex(99)
	assert.True(t, common.IsErrorCode(err, common.NoSuchObjectError))
}
