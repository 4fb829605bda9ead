package storage

import (
	"github.com/puzpuzpuz/xsync/v3"

	"mit.edu/dsg/rowdb/catalog"
	"mit.edu/dsg/rowdb/common"
)

// TableManager manages the lifecycle of TableHeap objects. Tables may be created at runtime, so heaps live in a
// concurrent map keyed by table oid.
type TableManager struct {
	tables *xsync.MapOf[common.ObjectID, *TableHeap]
}

// NewTableManager initializes the TableManager and eagerly creates TableHeap instances
// for all tables defined in the Catalog.
func NewTableManager(c *catalog.Catalog) *TableManager {
	tm := &TableManager{
		tables: xsync.NewMapOf[common.ObjectID, *TableHeap](),
	}
	for _, tableDef := range c.AllTables() {
		tm.CreateTable(tableDef)
	}
	return tm
}

// CreateTable returns the heap for table, creating it if needed.
func (tm *TableManager) CreateTable(table *catalog.Table) *TableHeap {
	heap, _ := tm.tables.LoadOrCompute(table.Oid, func() *TableHeap {
		return NewTableHeap(table)
	})
	return heap
}

// GetTable retrieves the TableHeap for a given table oid.
func (tm *TableManager) GetTable(oid common.ObjectID) (*TableHeap, error) {
	if heap, exists := tm.tables.Load(oid); exists {
		return heap, nil
	}
	return nil, common.NewError(common.NoSuchObjectError, "table %d has no heap", oid)
}
