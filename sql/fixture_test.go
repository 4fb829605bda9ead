package sql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"mit.edu/dsg/rowdb/catalog"
	"mit.edu/dsg/rowdb/common"
	"mit.edu/dsg/rowdb/indexing"
	"mit.edu/dsg/rowdb/storage"
	"mit.edu/dsg/rowdb/transaction"
)

type fixture struct {
	t        *testing.T
	provider *catalog.MemoryCatalogManager
	catalog  *catalog.Catalog
	tables   *storage.TableManager
	indexes  *indexing.IndexManager
	txns     *transaction.TransactionManager
	db       *Database
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	provider := &catalog.MemoryCatalogManager{}
	c, err := catalog.NewCatalog(provider)
	require.NoError(t, err)
	im, err := indexing.NewIndexManager(c)
	require.NoError(t, err)
	tm := storage.NewTableManager(c)
	return &fixture{
		t:        t,
		provider: provider,
		catalog:  c,
		tables:   tm,
		indexes:  im,
		txns:     transaction.NewTransactionManager(transaction.NewLockManager(), nil),
		db:       NewDatabase(c, tm, im),
	}
}

func (f *fixture) createTable(name string, columns ...catalog.Column) *catalog.Table {
	f.t.Helper()
	table, err := f.catalog.AddTable(name, columns, f.provider)
	require.NoError(f.t, err)
	f.tables.CreateTable(table)
	return table
}

// createIndex adds an index and fills it with the rows already in the table.
func (f *fixture) createIndex(name, table, indexType, column string, unique bool) {
	f.t.Helper()
	def, err := f.catalog.AddIndex(name, table, indexType, column, unique, f.provider)
	require.NoError(f.t, err)
	meta, err := f.catalog.GetTableMetadata(table)
	require.NoError(f.t, err)
	idx, err := f.indexes.CreateIndex(meta, *def)
	require.NoError(f.t, err)

	heap, err := f.tables.GetTable(meta.Oid)
	require.NoError(f.t, err)
	it, err := heap.Iterator(nil, transaction.LockModeS)
	require.NoError(f.t, err)
	defer it.Close()
	for it.Next() {
		key := indexing.NewKey(heap.StorageSchema().GetValue(it.CurrentRow(), idx.Metadata().Column))
		require.NoError(f.t, idx.InsertEntry(key, it.CurrentRID(), nil))
	}
	require.NoError(f.t, it.Error())
}

func (f *fixture) compile(stmt Stmt) Executable {
	f.t.Helper()
	exe, err := Compile(f.db, stmt)
	require.NoError(f.t, err)
	return exe
}

// try executes exe in its own auto-commit transaction, committing on success and rolling back on failure.
func (f *fixture) try(exe Executable, params ...any) (*QueryContext, error) {
	f.t.Helper()
	txn := f.txns.Begin(true)
	ctx, err := f.tryIn(txn, exe, params...)
	if err != nil {
		require.NoError(f.t, f.txns.Rollback(txn))
		return ctx, err
	}
	require.NoError(f.t, f.txns.Commit(txn))
	return ctx, nil
}

// tryIn executes exe inside txn without ending it.
func (f *fixture) tryIn(txn *transaction.TransactionContext, exe Executable, params ...any) (*QueryContext, error) {
	f.t.Helper()
	values := make([]common.Value, len(params))
	for i, p := range params {
		v, err := ParamValue(p)
		require.NoError(f.t, err)
		values[i] = v
	}
	ctx := AllocateQueryContext()
	f.t.Cleanup(func() { FreeQueryContext(ctx) })
	ctx.Init(txn, values)
	return ctx, exe.Execute(ctx)
}

func (f *fixture) run(stmt Stmt, params ...any) *QueryContext {
	f.t.Helper()
	ctx, err := f.try(f.compile(stmt), params...)
	require.NoError(f.t, err)
	return ctx
}

// query runs a SELECT and renders each result row as its cells joined by commas.
func (f *fixture) query(stmt Stmt, params ...any) []string {
	f.t.Helper()
	return rows(f.run(stmt, params...).Result())
}

func (f *fixture) update(stmt Stmt, params ...any) int {
	f.t.Helper()
	return f.run(stmt, params...).RowUpdateCount()
}

func rows(res *SelectResult) []string {
	out := make([]string, 0, res.NumRows())
	for i := 0; i < res.NumRows(); i++ {
		cells := make([]string, 0, len(res.Columns()))
		for _, v := range res.Row(i) {
			cells = append(cells, v.String())
		}
		out = append(out, strings.Join(cells, ","))
	}
	return out
}

func values(exprs ...Expr) []Expr {
	return exprs
}

func all() []SelectItem {
	return []SelectItem{{Expr: Star("")}}
}

func items(exprs ...Expr) []SelectItem {
	out := make([]SelectItem, len(exprs))
	for i, e := range exprs {
		out[i] = SelectItem{Expr: e}
	}
	return out
}

func from(names ...string) []TableRef {
	refs := make([]TableRef, len(names))
	for i, name := range names {
		table, alias, _ := strings.Cut(name, " ")
		refs[i] = TableRef{Name: table, Alias: alias}
	}
	return refs
}

func col(name string) Expr {
	alias, column, ok := strings.Cut(name, ".")
	if !ok {
		return Column("", name)
	}
	return Column(alias, column)
}

// newUsers creates users(id INT UNIQUE, name VARCHAR, age LONG) holding three rows.
func newUsers(f *fixture) {
	f.createTable("users",
		catalog.Column{Name: "id", Type: common.IntColumn, Unique: true},
		catalog.Column{Name: "name", Type: common.VarCharColumn},
		catalog.Column{Name: "age", Type: common.LongColumn},
	)
	f.run(&Insert{Table: "users", Rows: [][]Expr{
		values(Long(1), String("alice"), Long(30)),
		values(Long(2), String("bob"), Long(25)),
		values(Long(3), String("carol"), Null()),
	}})
}
