package sql

import (
	"mit.edu/dsg/rowdb/catalog"
	"mit.edu/dsg/rowdb/common"
	"mit.edu/dsg/rowdb/indexing"
	"mit.edu/dsg/rowdb/storage"
)

// Database resolves table names into FromItems while queries are compiled.
type Database struct {
	catalog *catalog.Catalog
	tables  *storage.TableManager
	indexes *indexing.IndexManager
}

func NewDatabase(c *catalog.Catalog, tables *storage.TableManager, indexes *indexing.IndexManager) *Database {
	return &Database{catalog: c, tables: tables, indexes: indexes}
}

func (db *Database) Catalog() *catalog.Catalog {
	return db.catalog
}

func (db *Database) newFromItem(ref TableRef, index int) (*FromItem, error) {
	table, err := db.catalog.GetTableMetadata(ref.Name)
	if err != nil {
		return nil, err
	}
	heap, err := db.tables.GetTable(table.Oid)
	if err != nil {
		return nil, err
	}
	indexes := db.indexes.IndexesFor(db.catalog.TableIndexes(table))
	return NewFromItem(ref.Alias, table, heap, indexes, index), nil
}

type clause int

const (
	clauseSelect clause = iota
	clauseWhere
	clauseGroupBy
	clauseHaving
	clauseOrderBy
	clauseValues
	clauseSet
)

func (c clause) String() string {
	switch c {
	case clauseSelect:
		return "SELECT"
	case clauseWhere:
		return "WHERE"
	case clauseGroupBy:
		return "GROUP BY"
	case clauseHaving:
		return "HAVING"
	case clauseOrderBy:
		return "ORDER BY"
	case clauseValues:
		return "VALUES"
	case clauseSet:
		return "SET"
	}
	return "?"
}

// Query is the binding context of a compiled statement. Expressions resolve their column references against its
// FROM list, and claim parameter and aggregate slots from it.
type Query struct {
	db         *Database
	from       []*FromItem
	numParams  int
	groupSlots int

	clause        clause
	inAggregate   bool
	hasAggregates bool
}

func newQuery(db *Database, refs []TableRef) (*Query, error) {
	q := &Query{db: db}
	seen := make(map[string]bool)
	for i, ref := range refs {
		item, err := db.newFromItem(ref, i)
		if err != nil {
			return nil, err
		}
		if seen[item.alias] {
			return nil, common.NewError(common.BindError, "table alias '%s' appears twice in FROM", item.alias)
		}
		seen[item.alias] = true
		q.from = append(q.from, item)
	}
	return q, nil
}

// FromItems returns the FROM list in declaration order.
func (q *Query) FromItems() []*FromItem {
	return q.from
}

// NumParams returns one more than the highest parameter index used by the query.
func (q *Query) NumParams() int {
	return q.numParams
}

// NumGroupSlots returns the number of aggregate accumulators the query needs per group.
func (q *Query) NumGroupSlots() int {
	return q.groupSlots
}

// resolveColumn finds the FROM item and column position of a column reference. An empty alias matches every item.
func (q *Query) resolveColumn(alias, name string) (*FromItem, int, error) {
	var found *FromItem
	column := -1
	for _, item := range q.from {
		if alias != "" && item.alias != alias {
			continue
		}
		idx := item.table.ColumnIndex(name)
		if idx < 0 {
			continue
		}
		if found != nil {
			return nil, -1, common.NewError(common.BindError, "column '%s' is ambiguous", name)
		}
		found, column = item, idx
	}
	if found == nil {
		if alias != "" {
			return nil, -1, common.NewError(common.BindError, "unknown column '%s.%s'", alias, name)
		}
		return nil, -1, common.NewError(common.BindError, "unknown column '%s'", name)
	}
	return found, column, nil
}

func (q *Query) useParam(index int) {
	q.numParams = max(q.numParams, index+1)
}

// beginAggregate checks that an aggregate is allowed here and claims its accumulator slot. endAggregate must follow
// once the argument is bound.
func (q *Query) beginAggregate(name string) (int, error) {
	switch q.clause {
	case clauseWhere, clauseGroupBy, clauseValues, clauseSet:
		return -1, common.NewError(common.BindError, "aggregate %s is not allowed in %s", name, q.clause)
	}
	if q.inAggregate {
		return -1, common.NewError(common.BindError, "aggregate %s cannot be nested inside another aggregate", name)
	}
	q.inAggregate = true
	q.hasAggregates = true
	slot := q.groupSlots
	q.groupSlots++
	return slot, nil
}

func (q *Query) endAggregate() {
	q.inAggregate = false
}

// bindIn binds exprs in place as part of clause c.
func (q *Query) bindIn(c clause, exprs []Expr) error {
	q.clause = c
	return bindAll(q, exprs)
}

// bindOne binds a single expression as part of clause c. A nil expression stays nil.
func (q *Query) bindOne(c clause, e Expr) (Expr, error) {
	if e == nil {
		return nil, nil
	}
	q.clause = c
	return e.Bind(q)
}
