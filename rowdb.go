// Package rowdb is the statement layer of the database: it owns the catalog, storage, indexes and transactions, and
// runs compiled statements on behalf of connections.
package rowdb

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"mit.edu/dsg/rowdb/catalog"
	"mit.edu/dsg/rowdb/config"
	"mit.edu/dsg/rowdb/indexing"
	"mit.edu/dsg/rowdb/sql"
	"mit.edu/dsg/rowdb/storage"
	"mit.edu/dsg/rowdb/transaction"
)

// DB is the top-level container for the database system.
type DB struct {
	provider catalog.PersistenceProvider
	catalog  *catalog.Catalog
	tables   *storage.TableManager
	indexes  *indexing.IndexManager
	txns     *transaction.TransactionManager
	db       *sql.Database
	logger   *slog.Logger
}

// Open builds a database from cfg, logging to stderr. With a data directory the catalog is loaded from and saved to
// it; row data always lives in memory.
func Open(cfg config.Config) (*DB, error) {
	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		return nil, err
	}
	return New(cfg, logger)
}

// New is Open with a caller-supplied logger. A nil logger discards output.
func New(cfg config.Config, logger *slog.Logger) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var provider catalog.PersistenceProvider = &catalog.MemoryCatalogManager{}
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, err
		}
		provider = catalog.NewDiskCatalogManager(cfg.DataDir)
	}
	c, err := catalog.NewCatalog(provider)
	if err != nil {
		return nil, err
	}
	indexes, err := indexing.NewIndexManager(c)
	if err != nil {
		return nil, err
	}
	tables := storage.NewTableManager(c)
	locks := transaction.NewLockManager()

	logger.Info("database opened", "data_dir", cfg.DataDir, "tables", len(c.AllTables()))
	return &DB{
		provider: provider,
		catalog:  c,
		tables:   tables,
		indexes:  indexes,
		txns:     transaction.NewTransactionManager(locks, logger),
		db:       sql.NewDatabase(c, tables, indexes),
		logger:   logger,
	}, nil
}

func (d *DB) Catalog() *catalog.Catalog {
	return d.catalog
}

func (d *DB) Logger() *slog.Logger {
	return d.logger
}

// CreateTable registers a table in the catalog and allocates its heap.
func (d *DB) CreateTable(name string, columns ...catalog.Column) (*catalog.Table, error) {
	table, err := d.catalog.AddTable(name, columns, d.provider)
	if err != nil {
		return nil, err
	}
	d.tables.CreateTable(table)
	d.logger.Debug("table created", "table", name, "oid", table.Oid, "columns", len(columns))
	return table, nil
}

// CreateIndex builds an index over the rows already in the table and then publishes it. The table is share-locked
// for the duration, so writers wait until the index is visible to them. If the rows violate a unique index, nothing
// is added to the catalog.
func (d *DB) CreateIndex(name, table, indexType, column string, unique bool) error {
	meta, err := d.catalog.GetTableMetadata(table)
	if err != nil {
		return err
	}
	heap, err := d.tables.GetTable(meta.Oid)
	if err != nil {
		return err
	}
	idx, err := indexing.NewIndex(meta, catalog.Index{Name: name, TableOid: meta.Oid, Type: indexType, Column: column, Unique: unique})
	if err != nil {
		return err
	}

	txn := d.txns.Begin(true)
	if err := d.populate(txn, heap, idx); err != nil {
		_ = d.txns.Rollback(txn)
		return fmt.Errorf("building index '%s': %w", name, err)
	}
	def, err := d.catalog.AddIndex(name, table, indexType, column, unique, d.provider)
	if err != nil {
		_ = d.txns.Rollback(txn)
		return err
	}
	idx.Metadata().Oid = def.Oid
	d.indexes.Register(idx)
	d.logger.Debug("index created", "index", name, "table", table, "oid", def.Oid, "rows", heap.NumRows())
	return d.txns.Commit(txn)
}

func (d *DB) populate(txn *transaction.TransactionContext, heap *storage.TableHeap, idx indexing.Index) error {
	it, err := heap.Iterator(txn, transaction.LockModeS)
	if err != nil {
		return err
	}
	defer it.Close()
	desc := heap.StorageSchema()
	for it.Next() {
		key := indexing.NewKey(desc.GetValue(it.CurrentRow(), idx.Metadata().Column))
		if err := idx.InsertEntry(key, it.CurrentRID(), txn); err != nil {
			return err
		}
	}
	return it.Error()
}

// ApplySchema creates the tables and indexes of a YAML schema document, in document order.
func (d *DB) ApplySchema(data []byte) error {
	s, err := catalog.ParseSchema(data)
	if err != nil {
		return err
	}
	applyErr := s.Apply(d.catalog, d.provider)
	// objects created before a failure stay, so they still need their heaps and indexes
	for _, ts := range s.Tables {
		meta, err := d.catalog.GetTableMetadata(ts.Name)
		if err != nil {
			continue
		}
		d.tables.CreateTable(meta)
		for _, def := range meta.Indexes {
			if _, err := d.indexes.CreateIndex(meta, def); err != nil {
				return err
			}
		}
	}
	if applyErr != nil {
		return applyErr
	}
	d.logger.Debug("schema applied", "tables", len(s.Tables))
	return nil
}

// Compile binds and plans stmt. The result may be executed by any number of statements.
func (d *DB) Compile(stmt sql.Stmt) (sql.Executable, error) {
	return sql.Compile(d.db, stmt)
}

// Connect opens a connection in auto-commit mode.
func (d *DB) Connect() *Connection {
	return &Connection{db: d, autoCommit: true}
}

// NumActiveTransactions returns the number of transactions that have begun and not yet finished.
func (d *DB) NumActiveTransactions() int {
	return d.txns.NumActive()
}
