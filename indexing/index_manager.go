package indexing

import (
	"github.com/puzpuzpuz/xsync/v3"

	"mit.edu/dsg/rowdb/catalog"
	"mit.edu/dsg/rowdb/common"
)

// IndexManager manages the runtime lifecycle of index structures. Indexes may be created at runtime, so they live in
// a concurrent map keyed by index oid.
type IndexManager struct {
	runtimeIndexes *xsync.MapOf[common.ObjectID, Index]
}

// NewIndexManager initializes the IndexManager by creating empty runtime index
// structures for every index defined in the Catalog.
func NewIndexManager(c *catalog.Catalog) (*IndexManager, error) {
	im := &IndexManager{
		runtimeIndexes: xsync.NewMapOf[common.ObjectID, Index](),
	}
	for _, table := range c.AllTables() {
		for _, def := range table.Indexes {
			if _, err := im.CreateIndex(table, def); err != nil {
				return nil, err
			}
		}
	}
	return im, nil
}

// NewIndex builds an empty runtime index for def without registering it. Callers that must populate an index before
// queries can see it build it here and Register it afterwards.
func NewIndex(table *catalog.Table, def catalog.Index) (Index, error) {
	col := table.ColumnIndex(def.Column)
	if col < 0 {
		return nil, common.NewError(common.NoSuchObjectError,
			"column '%s' in index definition does not exist in table '%s'", def.Column, table.Name)
	}
	md := &IndexMetadata{
		Oid:     def.Oid,
		Name:    def.Name,
		Column:  col,
		KeyType: table.Columns[col].Type.ResultType(),
		Unique:  def.Unique,
	}

	switch def.Type {
	case "hash":
		return NewMemHashIndex(md), nil
	case "btree":
		return NewMemBTreeIndex(md), nil
	}
	return nil, common.NewError(common.UnsupportedOperationError, "unsupported index type '%s' for index '%s'", def.Type, def.Name)
}

// CreateIndex builds and registers an empty runtime index for def, or returns the existing one.
func (im *IndexManager) CreateIndex(table *catalog.Table, def catalog.Index) (Index, error) {
	if idx, ok := im.runtimeIndexes.Load(def.Oid); ok {
		return idx, nil
	}
	idx, err := NewIndex(table, def)
	if err != nil {
		return nil, err
	}
	return im.Register(idx), nil
}

// Register makes idx visible under its metadata oid. If an index with that oid exists, it is kept and returned.
func (im *IndexManager) Register(idx Index) Index {
	actual, _ := im.runtimeIndexes.LoadOrStore(idx.Metadata().Oid, idx)
	return actual
}

// GetIndex retrieves an active index by its oid.
func (im *IndexManager) GetIndex(oid common.ObjectID) (Index, error) {
	if idx, exists := im.runtimeIndexes.Load(oid); exists {
		return idx, nil
	}
	return nil, common.NewError(common.NoSuchObjectError, "index %d not found", oid)
}

// IndexesFor returns the runtime indexes for the given definitions, in order. Definitions whose index is still being
// built are skipped.
func (im *IndexManager) IndexesFor(defs []catalog.Index) []Index {
	result := make([]Index, 0, len(defs))
	for _, def := range defs {
		if idx, ok := im.runtimeIndexes.Load(def.Oid); ok {
			result = append(result, idx)
		}
	}
	return result
}
