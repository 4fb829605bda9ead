package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mit.edu/dsg/rowdb/common"
)

func usersColumns() []Column {
	return []Column{
		{Name: "id", Type: common.IntColumn, Unique: true},
		{Name: "name", Type: common.VarCharColumn},
		{Name: "born", Type: common.DateColumn},
	}
}

func TestCatalogAddTable(t *testing.T) {
	provider := &MemoryCatalogManager{}
	c, err := NewCatalog(provider)
	require.NoError(t, err)

	users, err := c.AddTable("users", usersColumns(), provider)
	require.NoError(t, err)
	assert.NotEqual(t, common.InvalidObjectID, users.Oid)
	assert.Equal(t, 1, users.ColumnIndex("name"))
	assert.Equal(t, -1, users.ColumnIndex("missing"))
	assert.Equal(t, []common.ColumnType{common.IntColumn, common.VarCharColumn, common.DateColumn}, users.ColumnTypes())

	_, err = c.AddTable("users", usersColumns(), provider)
	assert.True(t, common.IsErrorCode(err, common.DuplicateObjectError))

	_, err = c.AddTable("bad", []Column{{Name: "a", Type: common.IntColumn}, {Name: "a", Type: common.LongColumn}}, provider)
	assert.True(t, common.IsErrorCode(err, common.DuplicateObjectError))

	_, err = c.AddTable("bad", []Column{{Name: "a"}}, provider)
	assert.True(t, common.IsErrorCode(err, common.UnsupportedOperationError))

	byOid, err := c.GetTableByOid(users.Oid)
	require.NoError(t, err)
	assert.Same(t, users, byOid)

	_, err = c.GetTableMetadata("nope")
	assert.True(t, common.IsErrorCode(err, common.NoSuchObjectError))

	assert.Len(t, c.FindTablesWithColumnName("id"), 1)
}

func TestCatalogAddIndex(t *testing.T) {
	provider := &MemoryCatalogManager{}
	c, err := NewCatalog(provider)
	require.NoError(t, err)
	_, err = c.AddTable("users", usersColumns(), provider)
	require.NoError(t, err)

	idx, err := c.AddIndex("users_name", "users", "btree", "name", false, provider)
	require.NoError(t, err)
	assert.True(t, idx.Ordered())

	_, err = c.AddIndex("users_name", "users", "hash", "id", false, provider)
	assert.True(t, common.IsErrorCode(err, common.DuplicateObjectError))
	_, err = c.AddIndex("users_x", "users", "bitmap", "id", false, provider)
	assert.True(t, common.IsErrorCode(err, common.UnsupportedOperationError))
	_, err = c.AddIndex("users_x", "users", "hash", "zip", false, provider)
	assert.True(t, common.IsErrorCode(err, common.NoSuchObjectError))

	users, err := c.GetTableMetadata("users")
	require.NoError(t, err)
	assert.Len(t, users.IndexesOn("name"), 1)
	assert.Empty(t, users.IndexesOn("id"))
}

func TestCatalogPersistence(t *testing.T) {
	dir := t.TempDir()
	provider := NewDiskCatalogManager(dir)
	c, err := NewCatalog(provider)
	require.NoError(t, err)
	_, err = c.AddTable("users", usersColumns(), provider)
	require.NoError(t, err)
	_, err = c.AddIndex("users_id", "users", "hash", "id", true, provider)
	require.NoError(t, err)

	reloaded, err := NewCatalog(NewDiskCatalogManager(dir))
	require.NoError(t, err)
	users, err := reloaded.GetTableMetadata("users")
	require.NoError(t, err)
	assert.Equal(t, usersColumns(), users.Columns)
	require.Len(t, users.Indexes, 1)
	assert.True(t, users.Indexes[0].Unique)

	// Object ids keep increasing across reloads.
	orders, err := reloaded.AddTable("orders", []Column{{Name: "id", Type: common.LongColumn}}, provider)
	require.NoError(t, err)
	assert.Greater(t, orders.Oid, users.Indexes[0].Oid)
}

func TestSchemaRoundTrip(t *testing.T) {
	doc := []byte(`
tables:
  - name: users
    columns:
      - {name: id, type: INT, unique: true}
      - {name: name, type: varchar}
    indexes:
      - {name: users_name, type: btree, column: name}
      - {column: id, type: hash}
  - name: events
    columns:
      - {name: at, type: TIMESTAMP}
`)
	s, err := ParseSchema(doc)
	require.NoError(t, err)
	require.Len(t, s.Tables, 2)
	assert.Equal(t, common.VarCharColumn, s.Tables[0].Columns[1].Type)
	assert.Equal(t, "users_id", s.Tables[0].Indexes[1].Name)
	assert.Equal(t, common.DateColumn, s.Tables[1].Columns[0].Type)

	provider := &MemoryCatalogManager{}
	c, err := NewCatalog(provider)
	require.NoError(t, err)
	require.NoError(t, s.Apply(c, provider))

	out, err := c.Schema().Marshal()
	require.NoError(t, err)
	again, err := ParseSchema(out)
	require.NoError(t, err)
	assert.Equal(t, s, again)
}

func TestSchemaErrors(t *testing.T) {
	_, err := ParseSchema([]byte("tables:\n  - name: t\n    columns:\n      - {name: a, type: BLOB}\n"))
	assert.True(t, common.IsErrorCode(err, common.ParseError))

	_, err = ParseSchema([]byte("tables:\n  - name: t\n    colums: []\n"))
	assert.True(t, common.IsErrorCode(err, common.ParseError))

	s, err := ParseSchema(nil)
	require.NoError(t, err)
	assert.Empty(t, s.Tables)
}
