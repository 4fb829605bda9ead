package sql

import (
	"fmt"

	"mit.edu/dsg/rowdb/catalog"
	"mit.edu/dsg/rowdb/indexing"
	"mit.edu/dsg/rowdb/storage"
)

// FromItem binds one entry of a query's FROM list to a physical table. It is an argument to cost functions and the
// owner of a row slot in the QueryContext. It is never evaluated itself.
type FromItem struct {
	alias   string
	table   *catalog.Table
	heap    *storage.TableHeap
	indexes []indexing.Index
	// index is the item's position in the FROM list and the row slot it reads in the QueryContext
	index int
}

// NewFromItem creates the binding for a table. indexes are the runtime indexes usable by queries on it.
func NewFromItem(alias string, table *catalog.Table, heap *storage.TableHeap, indexes []indexing.Index, index int) *FromItem {
	if alias == "" {
		alias = table.Name
	}
	return &FromItem{alias: alias, table: table, heap: heap, indexes: indexes, index: index}
}

func (item *FromItem) Alias() string {
	return item.alias
}

func (item *FromItem) Table() *catalog.Table {
	return item.table
}

func (item *FromItem) Heap() *storage.TableHeap {
	return item.heap
}

func (item *FromItem) Indexes() []indexing.Index {
	return item.indexes
}

// Index returns the position of the item in the FROM list.
func (item *FromItem) Index() int {
	return item.index
}

// IndexOn returns an index whose key is column, or nil. When ordered is true only indexes supporting range scans
// qualify. Unique indexes are preferred, then ordered ones.
func (item *FromItem) IndexOn(column int, ordered bool) indexing.Index {
	var best indexing.Index
	bestRank := -1
	for _, idx := range item.indexes {
		md := idx.Metadata()
		if md.Column != column || (ordered && !idx.Ordered()) {
			continue
		}
		rank := 0
		if md.Unique {
			rank += 2
		}
		if idx.Ordered() {
			rank++
		}
		if rank > bestRank {
			best, bestRank = idx, rank
		}
	}
	return best
}

// Unique reports whether values of column are unique, by declaration or through a unique index.
func (item *FromItem) Unique(column int) bool {
	if item.table.Columns[column].Unique {
		return true
	}
	idx := item.IndexOn(column, false)
	return idx != nil && idx.Metadata().Unique
}

func (item *FromItem) String() string {
	if item.alias == item.table.Name {
		return item.alias
	}
	return fmt.Sprintf("%s %s", item.table.Name, item.alias)
}

func containsItem(fromList []*FromItem, item *FromItem) bool {
	for _, it := range fromList {
		if it == item {
			return true
		}
	}
	return false
}

// withoutItem returns fromList minus item.
func withoutItem(fromList []*FromItem, item *FromItem) []*FromItem {
	result := make([]*FromItem, 0, len(fromList))
	for _, it := range fromList {
		if it != item {
			result = append(result, it)
		}
	}
	return result
}
