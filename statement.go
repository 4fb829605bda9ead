package rowdb

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"mit.edu/dsg/rowdb/common"
	"mit.edu/dsg/rowdb/sql"
	"mit.edu/dsg/rowdb/transaction"
)

// Statement executes statements on a connection. It owns one pooled QueryContext, reused by every execution, so a
// Statement must not be used by two goroutines at once. Executing again invalidates the previous update count and
// generated keys but not a previously returned ResultSet.
type Statement struct {
	conn *Connection
	ctx  *sql.QueryContext

	updateCount int
	hasResult   bool
	closed      bool
}

func newStatement(conn *Connection) *Statement {
	return &Statement{conn: conn, ctx: sql.AllocateQueryContext(), updateCount: -1}
}

// SetReturnGeneratedKeys makes later INSERTs record the RecordIDs of the rows they add.
func (s *Statement) SetReturnGeneratedKeys(on bool) {
	if s.closed {
		return
	}
	s.ctx.SetReturnGeneratedKeys(on)
}

// ExecuteQuery runs a statement that returns rows.
func (s *Statement) ExecuteQuery(stmt sql.Stmt, params ...any) (*ResultSet, error) {
	exe, err := s.compile(stmt)
	if err != nil {
		return nil, err
	}
	return s.ExecuteCompiledQuery(exe, params...)
}

// ExecuteCompiledQuery is ExecuteQuery for a statement compiled with DB.Compile.
func (s *Statement) ExecuteCompiledQuery(exe sql.Executable, params ...any) (*ResultSet, error) {
	if !exe.ReturnsRows() {
		return nil, common.NewError(common.UnsupportedOperationError, "statement does not return rows")
	}
	if err := s.run(exe, params); err != nil {
		return nil, err
	}
	return newResultSet(s.ctx.Result()), nil
}

// ExecuteUpdate runs an INSERT, UPDATE or DELETE and returns the number of rows it changed.
func (s *Statement) ExecuteUpdate(stmt sql.Stmt, params ...any) (int, error) {
	exe, err := s.compile(stmt)
	if err != nil {
		return 0, err
	}
	return s.ExecuteCompiledUpdate(exe, params...)
}

// ExecuteCompiledUpdate is ExecuteUpdate for a statement compiled with DB.Compile.
func (s *Statement) ExecuteCompiledUpdate(exe sql.Executable, params ...any) (int, error) {
	if exe.ReturnsRows() {
		return 0, common.NewError(common.UnsupportedOperationError, "statement returns rows")
	}
	if err := s.run(exe, params); err != nil {
		return 0, err
	}
	return s.updateCount, nil
}

// Execute runs any statement and reports whether it produced a result set, which ResultSet then returns.
func (s *Statement) Execute(stmt sql.Stmt, params ...any) (bool, error) {
	exe, err := s.compile(stmt)
	if err != nil {
		return false, err
	}
	if err := s.run(exe, params); err != nil {
		return false, err
	}
	return s.hasResult, nil
}

// ResultSet returns the rows of the last Execute, or nil when it produced none.
func (s *Statement) ResultSet() *ResultSet {
	if !s.hasResult {
		return nil
	}
	return newResultSet(s.ctx.Result())
}

// UpdateCount returns the number of rows changed by the last execution, or -1 when it returned rows or failed.
func (s *Statement) UpdateCount() int {
	return s.updateCount
}

// GeneratedKeys returns the RecordIDs added by the last INSERT as a result set with columns table_oid and slot. It
// is empty unless SetReturnGeneratedKeys was turned on.
func (s *Statement) GeneratedKeys() *ResultSet {
	var keys []common.RecordID
	if !s.closed {
		keys = s.ctx.GeneratedKeys()
	}
	rows := make([][]common.Value, len(keys))
	for i, rid := range keys {
		rows[i] = []common.Value{common.NewLongValue(int64(rid.Oid)), common.NewIntValue(rid.Slot)}
	}
	return NewResultSet([]sql.ResultColumn{
		{Name: "table_oid", Type: common.LongType},
		{Name: "slot", Type: common.IntType},
	}, rows)
}

// Close returns the statement's context to the pool. Closing twice is a no-op.
func (s *Statement) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.hasResult = false
	sql.FreeQueryContext(s.ctx)
	s.ctx = nil
	return nil
}

func (s *Statement) compile(stmt sql.Stmt) (sql.Executable, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.conn.db.Compile(stmt)
}

func (s *Statement) checkOpen() error {
	if s.closed {
		return common.NewError(common.TransactionClosedError, "statement is closed")
	}
	return nil
}

func (s *Statement) run(exe sql.Executable, params []any) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.updateCount = -1
	s.hasResult = false
	if len(params) != exe.NumParams() {
		return common.NewError(common.BindError, "statement takes %d parameters, got %d", exe.NumParams(), len(params))
	}
	values := make([]common.Value, len(params))
	for i, p := range params {
		v, err := sql.ParamValue(p)
		if err != nil {
			return err
		}
		values[i] = v
	}

	id := uuid.NewString()
	logger := s.conn.db.logger
	// rendering the plan walks the whole expression tree
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		if plan := exe.Plan(); plan != nil {
			logger.Debug("executing statement", "stmt", id, "params", len(values), "plan", plan.String())
		} else {
			logger.Debug("executing statement", "stmt", id, "params", len(values))
		}
	}

	err := s.conn.run(id, func(txn *transaction.TransactionContext) error {
		s.ctx.Init(txn, values)
		return exe.Execute(s.ctx)
	})
	if err != nil {
		return err
	}
	if exe.ReturnsRows() {
		s.hasResult = true
	} else {
		s.updateCount = s.ctx.RowUpdateCount()
	}
	return nil
}
