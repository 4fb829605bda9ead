package rowdb

import (
	"sync"

	"mit.edu/dsg/rowdb/common"
	"mit.edu/dsg/rowdb/transaction"
)

// Connection is a session with the database. In auto-commit mode every statement runs in its own transaction; in
// manual mode statements share one transaction until Commit or Rollback ends it.
//
// A connection may be shared by several goroutines, but its statements run one at a time.
type Connection struct {
	db *DB

	mu         sync.Mutex
	autoCommit bool
	// txn is the open manual-mode transaction, begun by the first statement after Commit or Rollback
	txn    *transaction.TransactionContext
	closed bool
}

func (c *Connection) AutoCommit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoCommit
}

// SetAutoCommit switches the commit mode. Turning auto-commit on commits the open transaction.
func (c *Connection) SetAutoCommit(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	if on && c.txn != nil {
		if err := c.endLocked(true); err != nil {
			return err
		}
	}
	c.autoCommit = on
	return nil
}

// Commit makes the changes of the open transaction visible. It is a no-op when nothing ran since the last commit.
func (c *Connection) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkManual("commit"); err != nil {
		return err
	}
	return c.endLocked(true)
}

// Rollback undoes the changes of the open transaction.
func (c *Connection) Rollback() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkManual("rollback"); err != nil {
		return err
	}
	return c.endLocked(false)
}

// CreateStatement returns a new statement bound to this connection. Close it to release its context.
func (c *Connection) CreateStatement() (*Statement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return newStatement(c), nil
}

// Close rolls back the open transaction, if any. Closing twice is a no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.endLocked(false)
}

func (c *Connection) checkOpen() error {
	if c.closed {
		return common.NewError(common.TransactionClosedError, "connection is closed")
	}
	return nil
}

func (c *Connection) checkManual(op string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if c.autoCommit {
		return common.NewError(common.UnsupportedOperationError, "cannot %s in auto-commit mode", op)
	}
	return nil
}

// run executes fn inside the connection's transaction and, in auto-commit mode, ends the transaction with the
// statement. The connection lock is held throughout.
func (c *Connection) run(stmtID string, fn func(txn *transaction.TransactionContext) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}

	txns := c.db.txns
	if !c.autoCommit {
		if c.txn == nil {
			c.txn = txns.Begin(false)
		}
		// a failed statement has already undone its own changes; the transaction stays open
		return fn(c.txn)
	}

	txn := txns.Begin(true)
	if err := fn(txn); err != nil {
		c.db.logger.Info("statement rolled back", "stmt", stmtID, "txn", txn.ID(), "err", err)
		if rbErr := txns.Rollback(txn); rbErr != nil {
			return rbErr
		}
		return err
	}
	return txns.Commit(txn)
}

func (c *Connection) endLocked(commit bool) error {
	if c.txn == nil {
		return nil
	}
	txn := c.txn
	c.txn = nil
	if commit {
		return c.db.txns.Commit(txn)
	}
	return c.db.txns.Rollback(txn)
}
