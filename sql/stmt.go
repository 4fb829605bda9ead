package sql

import (
	"mit.edu/dsg/rowdb/common"
)

// Stmt is a statement tree as a parser would produce it. Expressions in it are unbound.
type Stmt interface {
	compile(db *Database) (Executable, error)
}

// Executable is a compiled statement. It is immutable and may be executed any number of times, concurrently, each
// time with its own QueryContext.
type Executable interface {
	// Execute runs the statement in ctx. A SELECT leaves its rows in ctx.Result(); other statements report
	// ctx.RowUpdateCount(). A failed statement leaves no partial changes in its transaction.
	Execute(ctx *QueryContext) error

	// Plan returns the access plan, or nil for statements that read no table.
	Plan() *Plan

	// NumParams returns the number of parameters the statement expects.
	NumParams() int

	// ReturnsRows reports whether the statement produces a result set.
	ReturnsRows() bool
}

// Compile binds stmt against the database and plans it.
func Compile(db *Database, stmt Stmt) (Executable, error) {
	return stmt.compile(db)
}

// TableRef names a table in FROM. Alias defaults to the table name.
type TableRef struct {
	Name  string
	Alias string
}

// SelectItem is one output column. As names the column in the result; when empty the column is named after the
// expression.
type SelectItem struct {
	Expr Expr
	As   string
}

type OrderBy struct {
	Expr Expr
	Desc bool
}

// Select is a SELECT statement. Limit 0 means no limit.
type Select struct {
	Columns []SelectItem
	From    []TableRef
	Where   Expr
	GroupBy []Expr
	Having  Expr
	OrderBy []OrderBy
	Limit   int
}

// Insert adds Rows to Table. Columns names the target of each value; when empty, a row lists every column of the
// table in order. Columns left out are NULL.
type Insert struct {
	Table   string
	Columns []string
	Rows    [][]Expr
}

type Assignment struct {
	Column string
	Value  Expr
}

// Update sets columns of the rows of Table matched by Where, or of every row when Where is nil.
type Update struct {
	Table string
	Set   []Assignment
	Where Expr
}

// Delete removes the rows of Table matched by Where, or every row when Where is nil.
type Delete struct {
	Table string
	Where Expr
}

// atomically runs fn as one statement: if fn fails, every change it made in the transaction is undone, and changes
// made by earlier statements are kept.
func atomically(ctx *QueryContext, fn func() error) error {
	if ctx.txn == nil {
		return fn()
	}
	if err := ctx.txn.CheckActive(); err != nil {
		return err
	}
	mark := ctx.txn.NumUndo()
	if err := fn(); err != nil {
		ctx.txn.UndoTo(mark)
		return err
	}
	return nil
}

// targetColumn resolves a column name of an INSERT or UPDATE target.
func targetColumn(item *FromItem, name string, seen []bool) (int, error) {
	col := item.table.ColumnIndex(name)
	if col < 0 {
		return -1, common.NewError(common.BindError, "unknown column '%s' in table '%s'", name, item.table.Name)
	}
	if seen[col] {
		return -1, common.NewError(common.BindError, "column '%s' is assigned twice", name)
	}
	seen[col] = true
	return col, nil
}
