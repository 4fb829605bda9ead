package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"mit.edu/dsg/rowdb/common"
)

// Catalog manages the database schema and provides fast lookups.
// The catalog is serialized as a single JSON blob through a PersistenceProvider every time it changes.
//
// Tables and indexes may be added at runtime. A Table handed out by the catalog is never mutated afterwards except
// for its index list, which only grows; queries compiled before an index was added simply do not use it.
type Catalog struct {
	catalogState

	mu sync.RWMutex
	// In-memory structures for fast lookups
	tableMap  map[string]*Table          // TableName -> Table
	oidMap    map[common.ObjectID]*Table // TableOid -> Table
	columnMap map[string][]*Table        // ColumnName -> List of Tables containing this column
}

// Column represents the basic unit of a table schema.
type Column struct {
	Name   string            `json:"name" yaml:"name"`
	Type   common.ColumnType `json:"type" yaml:"type"`
	Unique bool              `json:"unique,omitempty" yaml:"unique,omitempty"`
}

// Index describes a physical access path over a single column of a table.
type Index struct {
	Oid      common.ObjectID `json:"oid"`
	TableOid common.ObjectID `json:"table_oid"`
	Name     string          `json:"name"`
	Type     string          `json:"type"` // "hash" or "btree"
	Column   string          `json:"column"`
	Unique   bool            `json:"unique,omitempty"`
}

// Ordered reports whether the index supports range scans.
func (i *Index) Ordered() bool {
	return i.Type == "btree"
}

// Table is the primary metadata structure. It groups columns and their
// associated indexes under a unique ObjectID.
type Table struct {
	Oid     common.ObjectID `json:"oid"`
	Name    string          `json:"name"`
	Columns []Column        `json:"columns"`
	Indexes []Index         `json:"indexes"`
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, col := range t.Columns {
		if col.Name == name {
			return i
		}
	}
	return -1
}

// ColumnTypes returns the physical types of the table's columns in order.
func (t *Table) ColumnTypes() []common.ColumnType {
	types := make([]common.ColumnType, len(t.Columns))
	for i, col := range t.Columns {
		types[i] = col.Type
	}
	return types
}

// IndexesOn returns the indexes whose key is the named column.
func (t *Table) IndexesOn(column string) []Index {
	var result []Index
	for _, idx := range t.Indexes {
		if idx.Column == column {
			result = append(result, idx)
		}
	}
	return result
}

func (t *Table) String() string {
	b, _ := json.MarshalIndent(t, "", "  ")
	return string(b)
}

// PersistenceProvider abstracts how the catalog is saved to and loaded from disk.
type PersistenceProvider interface {
	LoadCatalogState() (json string, err error)
	SaveCatalogState(json string) error
}

type catalogState struct {
	NextId uint32   `json:"next_id"`
	Tables []*Table `json:"tables"`
}

func (c *Catalog) toJSON() (string, error) {
	b, err := json.MarshalIndent(&c.catalogState, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *Catalog) fromJSON(jsonData string) error {
	if err := json.Unmarshal([]byte(jsonData), &c.catalogState); err != nil {
		return err
	}
	for _, t := range c.Tables {
		c.register(t)
	}
	return nil
}

func (c *Catalog) register(t *Table) {
	c.tableMap[t.Name] = t
	c.oidMap[t.Oid] = t
	for _, f := range t.Columns {
		c.columnMap[f.Name] = append(c.columnMap[f.Name], t)
	}
}

// NewCatalog initializes a catalog. It attempts to load existing state
// from the provider; if no state exists, it starts with an empty database.
func NewCatalog(provider PersistenceProvider) (*Catalog, error) {
	result := &Catalog{
		catalogState: catalogState{
			NextId: 0,
			Tables: make([]*Table, 0),
		},
		tableMap:  make(map[string]*Table),
		oidMap:    make(map[common.ObjectID]*Table),
		columnMap: make(map[string][]*Table),
	}

	jsonData, err := provider.LoadCatalogState()
	if errors.Is(err, os.ErrNotExist) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	if err = result.fromJSON(jsonData); err != nil {
		// Parsing errors are fatal system errors, usually indicating corruption
		return nil, fmt.Errorf("failed to parse catalog state: %w", err)
	}
	return result, nil
}

// AddTable registers a new table in the catalog.
// It assigns a globally unique ObjectID to the table and persists the updated state. If the table with that name
// already exists, it returns DuplicateObjectError.
func (c *Catalog) AddTable(tableName string, columns []Column, provider PersistenceProvider) (*Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tableMap[tableName]; exists {
		return nil, common.NewError(common.DuplicateObjectError, "table '%s' already exists", tableName)
	}
	if len(columns) == 0 {
		return nil, common.NewError(common.BindError, "table '%s' has no columns", tableName)
	}
	seen := make(map[string]bool)
	for _, col := range columns {
		if seen[col.Name] {
			return nil, common.NewError(common.DuplicateObjectError, "column '%s' appears twice in table '%s'", col.Name, tableName)
		}
		seen[col.Name] = true
		if !col.Type.IsValid() {
			return nil, common.NewError(common.UnsupportedOperationError, "column '%s' has no row encoding for type %s", col.Name, col.Type)
		}
	}

	// oid 0 is reserved for INVALID
	c.NextId++
	t := &Table{
		Oid:     common.ObjectID(c.NextId),
		Name:    tableName,
		Columns: append([]Column(nil), columns...),
		Indexes: make([]Index, 0),
	}
	c.Tables = append(c.Tables, t)
	c.register(t)

	jsonData, err := c.toJSON()
	if err != nil {
		return nil, err
	}
	return t, provider.SaveCatalogState(jsonData)
}

// GetTableMetadata fetches the schema for a specific table name.
func (c *Catalog) GetTableMetadata(tableName string) (*Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	table, exists := c.tableMap[tableName]
	if !exists {
		return nil, common.NewError(common.NoSuchObjectError, "table '%s' does not exist", tableName)
	}
	return table, nil
}

// GetTableByOid fetches the schema for a table by its ObjectID.
func (c *Catalog) GetTableByOid(oid common.ObjectID) (*Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	table, exists := c.oidMap[oid]
	if !exists {
		return nil, common.NewError(common.NoSuchObjectError, "table %d does not exist", oid)
	}
	return table, nil
}

// AllTables returns every table, in creation order.
func (c *Catalog) AllTables() []*Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Table(nil), c.Tables...)
}

// TableIndexes returns a snapshot of the index definitions of a table. Use it instead of reading Table.Indexes
// directly while indexes may be added concurrently.
func (c *Catalog) TableIndexes(table *Table) []Index {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Index(nil), table.Indexes...)
}

// FindTablesWithColumnName returns all tables that contain a column with
// the given name.
func (c *Catalog) FindTablesWithColumnName(columnName string) []*Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Table(nil), c.columnMap[columnName]...)
}

// AddIndex attaches a new single-column index to a table. If an index with that name already exists on the table,
// it returns DuplicateObjectError.
func (c *Catalog) AddIndex(indexName string, tableName string, indexType string, columnName string, unique bool, provider PersistenceProvider) (*Index, error) {
	table, err := c.GetTableMetadata(tableName)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, idx := range table.Indexes {
		if idx.Name == indexName {
			return nil, common.NewError(common.DuplicateObjectError, "index '%s' already exists on table '%s'", indexName, tableName)
		}
	}
	if indexType != "hash" && indexType != "btree" {
		return nil, common.NewError(common.UnsupportedOperationError, "unsupported index type '%s' for index '%s'", indexType, indexName)
	}
	if table.ColumnIndex(columnName) < 0 {
		return nil, common.NewError(common.NoSuchObjectError, "column '%s' does not exist in table '%s'", columnName, tableName)
	}

	c.NextId++
	idx := Index{
		Oid:      common.ObjectID(c.NextId),
		TableOid: table.Oid,
		Name:     indexName,
		Type:     indexType,
		Column:   columnName,
		Unique:   unique,
	}
	table.Indexes = append(table.Indexes, idx)

	jsonData, err := c.toJSON()
	if err != nil {
		return nil, err
	}
	return &idx, provider.SaveCatalogState(jsonData)
}

const CatalogFileName = "catalog.json"

// DiskCatalogManager persists the catalog as a JSON file in a directory.
type DiskCatalogManager struct {
	rootPath string
}

func NewDiskCatalogManager(rootPath string) *DiskCatalogManager {
	return &DiskCatalogManager{
		rootPath: rootPath,
	}
}

// LoadCatalogState implements the catalog.PersistenceProvider interface.
func (dcm *DiskCatalogManager) LoadCatalogState() (string, error) {
	content, err := os.ReadFile(filepath.Join(dcm.rootPath, CatalogFileName))
	if err != nil {
		return "", err // Let the caller (Catalog) handle os.ErrNotExist
	}
	return string(content), nil
}

// SaveCatalogState writes the catalog through a temporary file and renames it into place.
func (dcm *DiskCatalogManager) SaveCatalogState(jsonData string) error {
	tmpPath := filepath.Join(dcm.rootPath, CatalogFileName+".tmp")
	finalPath := filepath.Join(dcm.rootPath, CatalogFileName)

	if err := os.WriteFile(tmpPath, []byte(jsonData), 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, finalPath)
}

// MemoryCatalogManager keeps the catalog state in memory only.
type MemoryCatalogManager struct {
	mu    sync.Mutex
	state string
	saved bool
}

func (m *MemoryCatalogManager) LoadCatalogState() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.saved {
		return "", os.ErrNotExist
	}
	return m.state, nil
}

func (m *MemoryCatalogManager) SaveCatalogState(jsonData string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = jsonData
	m.saved = true
	return nil
}
