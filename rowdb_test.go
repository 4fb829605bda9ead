package rowdb

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mit.edu/dsg/rowdb/catalog"
	"mit.edu/dsg/rowdb/common"
	"mit.edu/dsg/rowdb/config"
	"mit.edu/dsg/rowdb/sql"
)

// newTestDB opens an in-memory database whose debug log is captured in the returned buffer.
func newTestDB(t *testing.T) (*DB, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	db, err := New(config.Default(), logger)
	require.NoError(t, err)
	return db, &logs
}

func newStatementT(t *testing.T, conn *Connection) *Statement {
	t.Helper()
	stmt, err := conn.CreateStatement()
	require.NoError(t, err)
	t.Cleanup(func() { _ = stmt.Close() })
	return stmt
}

// newUsers creates users(id INT UNIQUE, name VARCHAR, age LONG) holding three rows.
func newUsers(t *testing.T, db *DB) {
	t.Helper()
	_, err := db.CreateTable("users",
		catalog.Column{Name: "id", Type: common.IntColumn, Unique: true},
		catalog.Column{Name: "name", Type: common.VarCharColumn},
		catalog.Column{Name: "age", Type: common.LongColumn},
	)
	require.NoError(t, err)
	conn := db.Connect()
	defer conn.Close()
	n, err := newStatementT(t, conn).ExecuteUpdate(&sql.Insert{Table: "users", Rows: [][]sql.Expr{
		{sql.Long(1), sql.String("alice"), sql.Long(30)},
		{sql.Long(2), sql.String("bob"), sql.Long(25)},
		{sql.Long(3), sql.String("carol"), sql.Null()},
	}})
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func selectUsers(where sql.Expr) *sql.Select {
	return &sql.Select{
		Columns: []sql.SelectItem{{Expr: sql.Column("", "id")}, {Expr: sql.Column("", "name")}, {Expr: sql.Column("", "age")}},
		From:    []sql.TableRef{{Name: "users"}},
		Where:   where,
		OrderBy: []sql.OrderBy{{Expr: sql.Column("", "id")}},
	}
}

func countUsers(t *testing.T, conn *Connection) int64 {
	t.Helper()
	rs, err := newStatementT(t, conn).ExecuteQuery(&sql.Select{
		Columns: []sql.SelectItem{{Expr: sql.CountAll(), As: "n"}},
		From:    []sql.TableRef{{Name: "users"}},
	})
	require.NoError(t, err)
	require.True(t, rs.Next())
	n, err := rs.GetLong(1)
	require.NoError(t, err)
	return n
}

func TestResultSet(t *testing.T) {
	db, _ := newTestDB(t)
	newUsers(t, db)
	conn := db.Connect()
	defer conn.Close()
	stmt := newStatementT(t, conn)

	rs, err := stmt.ExecuteQuery(selectUsers(nil))
	require.NoError(t, err)
	assert.Equal(t, -1, stmt.UpdateCount())
	assert.Equal(t, 3, rs.ColumnCount())
	name, err := rs.ColumnName(2)
	require.NoError(t, err)
	assert.Equal(t, "name", name)
	age, err := rs.FindColumn("AGE")
	require.NoError(t, err)
	assert.Equal(t, 3, age)
	_, err = rs.FindColumn("email")
	assert.True(t, common.IsErrorCode(err, common.NoSuchObjectError))

	_, err = rs.GetString(1)
	assert.Error(t, err, "before the first row")

	var got []string
	for rs.Next() {
		id, err := rs.GetLong(1)
		require.NoError(t, err)
		name, err := rs.GetString(2)
		require.NoError(t, err)
		years, err := rs.GetLong(age)
		require.NoError(t, err)
		if rs.WasNull() {
			got = append(got, name+":?")
			continue
		}
		assert.Positive(t, id)
		got = append(got, name+":"+strings.Repeat("x", int(years/10)))
	}
	assert.Equal(t, []string{"alice:xxx", "bob:xx", "carol:?"}, got)
	assert.False(t, rs.Next(), "stays after the last row")

	_, err = rs.GetString(4)
	assert.Error(t, err)
	require.NoError(t, rs.Close())
	assert.False(t, rs.Next())
	_, err = rs.GetLong(1)
	assert.True(t, common.IsErrorCode(err, common.TransactionClosedError))
}

func TestResultSetConversions(t *testing.T) {
	db, _ := newTestDB(t)
	newUsers(t, db)
	conn := db.Connect()
	defer conn.Close()

	rs, err := newStatementT(t, conn).ExecuteQuery(&sql.Select{
		Columns: []sql.SelectItem{
			{Expr: sql.Avg(sql.Column("", "age")), As: "avg"},
			{Expr: sql.Concat(sql.String("4"), sql.String("2")), As: "digits"},
			{Expr: sql.String("many"), As: "word"},
		},
		From: []sql.TableRef{{Name: "users"}},
	})
	require.NoError(t, err)
	require.True(t, rs.Next())

	avg, err := rs.GetDouble(1)
	require.NoError(t, err)
	assert.InDelta(t, 27.5, avg, 1e-9)
	truncated, err := rs.GetLong(1)
	require.NoError(t, err)
	assert.Equal(t, int64(27), truncated)

	digits, err := rs.GetLong(2)
	require.NoError(t, err)
	assert.Equal(t, int64(42), digits)
	asDouble, err := rs.GetDouble(2)
	require.NoError(t, err)
	assert.Equal(t, 42.0, asDouble)

	_, err = rs.GetLong(3)
	assert.True(t, common.IsErrorCode(err, common.ParseError))
	assert.False(t, rs.Next())
}

func TestAutoCommitRollsBackFailedStatement(t *testing.T) {
	db, logs := newTestDB(t)
	newUsers(t, db)
	conn := db.Connect()
	defer conn.Close()
	stmt := newStatementT(t, conn)

	_, err := stmt.ExecuteUpdate(&sql.Insert{Table: "users", Rows: [][]sql.Expr{
		{sql.Long(4), sql.String("dave"), sql.Null()},
		{sql.Long(1), sql.String("dup"), sql.Null()},
	}})
	assert.True(t, common.IsErrorCode(err, common.ConstraintError))
	assert.Equal(t, -1, stmt.UpdateCount())
	assert.Equal(t, int64(3), countUsers(t, conn))
	assert.Zero(t, db.NumActiveTransactions())
	assert.Contains(t, logs.String(), "level=INFO msg=\"statement rolled back\"")
}

func TestManualCommit(t *testing.T) {
	db, _ := newTestDB(t)
	newUsers(t, db)
	conn := db.Connect()
	defer conn.Close()
	assert.True(t, conn.AutoCommit())
	assert.True(t, common.IsErrorCode(conn.Commit(), common.UnsupportedOperationError))

	require.NoError(t, conn.SetAutoCommit(false))
	stmt := newStatementT(t, conn)
	insert := &sql.Insert{Table: "users", Columns: []string{"id", "name"}, Rows: [][]sql.Expr{{sql.Param(0), sql.Param(1)}}}

	_, err := stmt.ExecuteUpdate(insert, 4, "dave")
	require.NoError(t, err)
	assert.Equal(t, 1, db.NumActiveTransactions())
	assert.Equal(t, int64(4), countUsers(t, conn), "the transaction sees its own insert")
	require.NoError(t, conn.Rollback())
	assert.Zero(t, db.NumActiveTransactions())
	assert.Equal(t, int64(3), countUsers(t, conn))

	// a failed statement is undone on its own; earlier statements of the transaction stay
	_, err = stmt.ExecuteUpdate(insert, 4, "dave")
	require.NoError(t, err)
	_, err = stmt.ExecuteUpdate(insert, 4, "again")
	assert.True(t, common.IsErrorCode(err, common.ConstraintError))
	require.NoError(t, conn.Commit())
	require.NoError(t, conn.Commit(), "nothing to commit")

	other := db.Connect()
	defer other.Close()
	rs, err := newStatementT(t, other).ExecuteQuery(selectUsers(sql.Eq(sql.Column("", "id"), sql.Param(0))), 4)
	require.NoError(t, err)
	require.True(t, rs.Next())
	name, err := rs.GetString(2)
	require.NoError(t, err)
	assert.Equal(t, "dave", name)
	assert.False(t, rs.Next())
}

func TestSetAutoCommitCommitsOpenTransaction(t *testing.T) {
	db, _ := newTestDB(t)
	newUsers(t, db)
	conn := db.Connect()
	require.NoError(t, conn.SetAutoCommit(false))
	n, err := newStatementT(t, conn).ExecuteUpdate(&sql.Delete{Table: "users", Where: sql.Gt(sql.Column("", "id"), sql.Long(1))})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, conn.SetAutoCommit(true))
	assert.Zero(t, db.NumActiveTransactions())
	require.NoError(t, conn.Close())

	// closing a connection rolls back its open transaction
	conn = db.Connect()
	require.NoError(t, conn.SetAutoCommit(false))
	_, err = newStatementT(t, conn).ExecuteUpdate(&sql.Delete{Table: "users"})
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.Zero(t, db.NumActiveTransactions())

	_, err = conn.CreateStatement()
	assert.True(t, common.IsErrorCode(err, common.TransactionClosedError))
	assert.Equal(t, int64(1), countUsers(t, db.Connect()))
}

func TestExecute(t *testing.T) {
	db, _ := newTestDB(t)
	newUsers(t, db)
	conn := db.Connect()
	defer conn.Close()
	stmt := newStatementT(t, conn)

	isQuery, err := stmt.Execute(selectUsers(sql.Eq(sql.Column("", "name"), sql.String("bob"))))
	require.NoError(t, err)
	assert.True(t, isQuery)
	rs := stmt.ResultSet()
	require.NotNil(t, rs)
	require.True(t, rs.Next())
	id, err := rs.GetLong(1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)

	isQuery, err = stmt.Execute(&sql.Update{
		Table: "users",
		Set:   []sql.Assignment{{Column: "age", Value: sql.Add(sql.Column("", "age"), sql.Long(1))}},
		Where: sql.IsNotNull(sql.Column("", "age")),
	})
	require.NoError(t, err)
	assert.False(t, isQuery)
	assert.Nil(t, stmt.ResultSet())
	assert.Equal(t, 2, stmt.UpdateCount())

	_, err = stmt.ExecuteQuery(&sql.Delete{Table: "users"})
	assert.True(t, common.IsErrorCode(err, common.UnsupportedOperationError))
	_, err = stmt.ExecuteUpdate(selectUsers(nil))
	assert.True(t, common.IsErrorCode(err, common.UnsupportedOperationError))
	assert.Equal(t, int64(3), countUsers(t, conn))
}

func TestStatementErrors(t *testing.T) {
	db, _ := newTestDB(t)
	newUsers(t, db)
	conn := db.Connect()
	defer conn.Close()
	stmt := newStatementT(t, conn)

	_, err := stmt.ExecuteQuery(selectUsers(sql.Eq(sql.Column("", "id"), sql.Param(0))))
	assert.True(t, common.IsErrorCode(err, common.BindError), "missing parameter")
	_, err = stmt.ExecuteQuery(selectUsers(nil), 1)
	assert.True(t, common.IsErrorCode(err, common.BindError), "extra parameter")
	_, err = stmt.ExecuteQuery(selectUsers(sql.Eq(sql.Column("", "id"), sql.Param(0))), struct{}{})
	assert.Error(t, err, "unsupported parameter type")
	_, err = stmt.ExecuteQuery(&sql.Select{Columns: []sql.SelectItem{{Expr: sql.Column("", "id")}}, From: []sql.TableRef{{Name: "ghosts"}}})
	assert.True(t, common.IsErrorCode(err, common.NoSuchObjectError))
	assert.Zero(t, db.NumActiveTransactions())

	require.NoError(t, stmt.Close())
	require.NoError(t, stmt.Close())
	_, err = stmt.ExecuteQuery(selectUsers(nil))
	assert.True(t, common.IsErrorCode(err, common.TransactionClosedError))
	assert.Nil(t, stmt.ResultSet())
}

func TestPreparedExecution(t *testing.T) {
	db, logs := newTestDB(t)
	newUsers(t, db)
	byID, err := db.Compile(selectUsers(sql.Eq(sql.Column("", "id"), sql.Param(0))))
	require.NoError(t, err)
	conn := db.Connect()
	defer conn.Close()
	stmt := newStatementT(t, conn)

	for id, want := range map[int]string{1: "alice", 2: "bob", 3: "carol"} {
		rs, err := stmt.ExecuteCompiledQuery(byID, id)
		require.NoError(t, err)
		require.True(t, rs.Next())
		name, err := rs.GetString(2)
		require.NoError(t, err)
		assert.Equal(t, want, name)
	}
	assert.Contains(t, logs.String(), "msg=\"executing statement\"")
	assert.Contains(t, logs.String(), "params=1")
	assert.Contains(t, logs.String(), "unique-scan users (id = ?0)")

	deleteAll, err := db.Compile(&sql.Delete{Table: "users"})
	require.NoError(t, err)
	n, err := stmt.ExecuteCompiledUpdate(deleteAll)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStatementLogAboveDebug(t *testing.T) {
	var logs bytes.Buffer
	db, err := New(config.Default(), slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelInfo})))
	require.NoError(t, err)
	newUsers(t, db)
	conn := db.Connect()
	defer conn.Close()
	stmt := newStatementT(t, conn)

	rs, err := stmt.ExecuteQuery(selectUsers(sql.Eq(sql.Column("", "id"), sql.Param(0))), 2)
	require.NoError(t, err)
	require.True(t, rs.Next())
	assert.NotContains(t, logs.String(), "executing statement")
	assert.NotContains(t, logs.String(), "unique-scan")
}

func TestGeneratedKeys(t *testing.T) {
	db, _ := newTestDB(t)
	newUsers(t, db)
	conn := db.Connect()
	defer conn.Close()
	stmt := newStatementT(t, conn)
	insert := &sql.Insert{Table: "users", Columns: []string{"id"}, Rows: [][]sql.Expr{{sql.Long(7)}, {sql.Long(8)}}}

	_, err := stmt.ExecuteUpdate(insert)
	require.NoError(t, err)
	assert.False(t, stmt.GeneratedKeys().Next(), "keys are off by default")

	stmt.SetReturnGeneratedKeys(true)
	_, err = stmt.ExecuteUpdate(&sql.Insert{Table: "users", Columns: []string{"id"}, Rows: [][]sql.Expr{{sql.Long(9)}, {sql.Long(10)}}})
	require.NoError(t, err)
	keys := stmt.GeneratedKeys()
	assert.Equal(t, 2, keys.ColumnCount())
	users, err := db.Catalog().GetTableMetadata("users")
	require.NoError(t, err)

	slots := map[int64]bool{}
	for keys.Next() {
		oid, err := keys.GetLong(1)
		require.NoError(t, err)
		assert.Equal(t, int64(users.Oid), oid)
		slot, err := keys.GetLong(2)
		require.NoError(t, err)
		slots[slot] = true
	}
	assert.Len(t, slots, 2)
}

func TestCreateIndexOnPopulatedTable(t *testing.T) {
	db, _ := newTestDB(t)
	newUsers(t, db)

	require.NoError(t, db.CreateIndex("users_age", "users", "btree", "age", false))
	exe, err := db.Compile(selectUsers(sql.Gt(sql.Column("", "age"), sql.Long(26))))
	require.NoError(t, err)
	assert.Equal(t, "index-range users_age on users (age > 26)", exe.Plan().Access(0))

	conn := db.Connect()
	defer conn.Close()
	rs, err := newStatementT(t, conn).ExecuteCompiledQuery(exe)
	require.NoError(t, err)
	require.True(t, rs.Next())
	name, err := rs.GetString(2)
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
	assert.False(t, rs.Next())

	err = db.CreateIndex("users_age", "users", "hash", "age", false)
	assert.True(t, common.IsErrorCode(err, common.DuplicateObjectError))
	err = db.CreateIndex("users_zip", "users", "hash", "zip", false)
	assert.True(t, common.IsErrorCode(err, common.NoSuchObjectError))
	err = db.CreateIndex("users_ghost", "ghosts", "hash", "id", false)
	assert.True(t, common.IsErrorCode(err, common.NoSuchObjectError))
}

func TestCreateUniqueIndexOverDuplicates(t *testing.T) {
	db, _ := newTestDB(t)
	newUsers(t, db)
	conn := db.Connect()
	defer conn.Close()
	_, err := newStatementT(t, conn).ExecuteUpdate(&sql.Insert{Table: "users", Rows: [][]sql.Expr{{sql.Long(4), sql.String("bob"), sql.Null()}}})
	require.NoError(t, err)

	err = db.CreateIndex("users_name", "users", "hash", "name", true)
	assert.True(t, common.IsErrorCode(err, common.ConstraintError))
	users, err := db.Catalog().GetTableMetadata("users")
	require.NoError(t, err)
	assert.Empty(t, users.Indexes, "a failed build leaves the catalog unchanged")
	assert.Zero(t, db.NumActiveTransactions())
}

func TestApplySchema(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	db, err := New(cfg, nil)
	require.NoError(t, err)

	require.NoError(t, db.ApplySchema([]byte(`
tables:
  - name: products
    columns:
      - {name: id, type: INT, unique: true}
      - {name: title, type: VARCHAR}
    indexes:
      - {column: title, type: hash}
`)))
	conn := db.Connect()
	stmt := newStatementT(t, conn)
	_, err = stmt.ExecuteUpdate(&sql.Insert{Table: "products", Rows: [][]sql.Expr{{sql.Long(1), sql.String("lamp")}, {sql.Long(2), sql.String("desk")}}})
	require.NoError(t, err)
	exe, err := db.Compile(&sql.Select{
		Columns: []sql.SelectItem{{Expr: sql.Column("", "id")}},
		From:    []sql.TableRef{{Name: "products"}},
		Where:   sql.Eq(sql.Column("", "title"), sql.String("desk")),
	})
	require.NoError(t, err)
	assert.Equal(t, "index products_title on products (title = 'desk')", exe.Plan().Access(0))
	rs, err := stmt.ExecuteCompiledQuery(exe)
	require.NoError(t, err)
	require.True(t, rs.Next())
	id, err := rs.GetLong(1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
	require.NoError(t, conn.Close())

	err = db.ApplySchema([]byte("tables:\n  - name: products\n    columns: [{name: id, type: INT}]\n"))
	assert.True(t, common.IsErrorCode(err, common.DuplicateObjectError))
	err = db.ApplySchema([]byte("tables: [{name: x, colums: []}]"))
	assert.True(t, common.IsErrorCode(err, common.ParseError))

	// the catalog survives a reopen; rows do not
	reopened, err := New(cfg, nil)
	require.NoError(t, err)
	products, err := reopened.Catalog().GetTableMetadata("products")
	require.NoError(t, err)
	require.Len(t, products.Indexes, 1)
	rs, err = newStatementT(t, reopened.Connect()).ExecuteQuery(&sql.Select{
		Columns: []sql.SelectItem{{Expr: sql.CountAll(), As: "n"}},
		From:    []sql.TableRef{{Name: "products"}},
	})
	require.NoError(t, err)
	require.True(t, rs.Next())
	n, err := rs.GetLong(1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpenRejectsBadConfig(t *testing.T) {
	_, err := Open(config.Config{LogLevel: "chatty"})
	assert.True(t, common.IsErrorCode(err, common.ParseError))
}
