package sql

import (
	"sync"

	"mit.edu/dsg/rowdb/common"
	"mit.edu/dsg/rowdb/storage"
	"mit.edu/dsg/rowdb/transaction"
)

// QueryContext is the mutable state of one statement execution: the transaction, the parameters, the current row of
// every FROM item, aggregate accumulators and the result. A context is owned by one goroutine from
// AllocateQueryContext until FreeQueryContext, and must not be used after it is freed.
type QueryContext struct {
	txn    *transaction.TransactionContext
	params []common.Value

	// rows and rids hold the current row of each FROM item, indexed by FromItem.Index
	rows []storage.RawRow
	rids []common.RecordID

	result *SelectResult

	groups []*groupState
	group  *groupState

	dates dateParser

	rowUpdateCount      int
	returnGeneratedKeys bool
	generatedKeys       []common.RecordID
}

// groupState is one GROUP BY group: a representative row per FROM item, used to evaluate the non-aggregate
// expressions of the group, and one accumulator per aggregate of the query.
type groupState struct {
	rows  []storage.RawRow
	rids  []common.RecordID
	slots []aggState
}

type aggState struct {
	count int64
	long  int64
	dbl   float64
	str   string
	// seen is true once a non-NULL value has been folded in
	seen bool
}

var queryContextPool = sync.Pool{
	New: func() any {
		return &QueryContext{}
	},
}

// AllocateQueryContext takes a context from the pool. It is safe for concurrent use.
func AllocateQueryContext() *QueryContext {
	return queryContextPool.Get().(*QueryContext)
}

// FreeQueryContext resets ctx and returns it to the pool.
func FreeQueryContext(ctx *QueryContext) {
	ctx.reset()
	ctx.returnGeneratedKeys = false
	queryContextPool.Put(ctx)
}

func (ctx *QueryContext) reset() {
	ctx.txn = nil
	ctx.params = nil
	clear(ctx.rows)
	ctx.rows = ctx.rows[:0]
	ctx.rids = ctx.rids[:0]
	ctx.result = nil
	clear(ctx.groups)
	ctx.groups = ctx.groups[:0]
	ctx.group = nil
	ctx.dates.reset()
	ctx.rowUpdateCount = 0
	ctx.generatedKeys = ctx.generatedKeys[:0]
}

// Init prepares the context for one execution under txn. The generated-keys setting survives Init.
func (ctx *QueryContext) Init(txn *transaction.TransactionContext, params []common.Value) {
	keep := ctx.returnGeneratedKeys
	ctx.reset()
	ctx.txn = txn
	ctx.params = params
	ctx.returnGeneratedKeys = keep
}

// Transaction returns the transaction the statement runs in.
func (ctx *QueryContext) Transaction() *transaction.TransactionContext {
	return ctx.txn
}

// Param returns the value of parameter i.
func (ctx *QueryContext) Param(i int) (common.Value, error) {
	if i < 0 || i >= len(ctx.params) {
		return common.Value{}, common.NewError(common.BindError, "parameter %d is not set", i)
	}
	return ctx.params[i], nil
}

// NumParams returns the number of parameter values supplied.
func (ctx *QueryContext) NumParams() int {
	return len(ctx.params)
}

// prepare sizes the row slots for a FROM list of n items.
func (ctx *QueryContext) prepare(n int) {
	for len(ctx.rows) < n {
		ctx.rows = append(ctx.rows, nil)
		ctx.rids = append(ctx.rids, common.RecordID{})
	}
	clear(ctx.rows)
	clear(ctx.rids)
}

// SetRow makes row the current row of FROM item i.
func (ctx *QueryContext) SetRow(i int, rid common.RecordID, row storage.RawRow) {
	ctx.rids[i] = rid
	ctx.rows[i] = row
}

// Row returns the current row of FROM item i, or nil if there is none.
func (ctx *QueryContext) Row(i int) storage.RawRow {
	if i >= len(ctx.rows) {
		return nil
	}
	return ctx.rows[i]
}

// RID returns the RecordID of the current row of FROM item i.
func (ctx *QueryContext) RID(i int) common.RecordID {
	return ctx.rids[i]
}

// Result returns the result of the last SELECT executed in this context.
func (ctx *QueryContext) Result() *SelectResult {
	return ctx.result
}

func (ctx *QueryContext) setResult(res *SelectResult) {
	ctx.result = res
}

// RowUpdateCount returns the number of rows inserted, updated or deleted by the last statement.
func (ctx *QueryContext) RowUpdateCount() int {
	return ctx.rowUpdateCount
}

func (ctx *QueryContext) addRowUpdate() {
	ctx.rowUpdateCount++
}

// SetReturnGeneratedKeys asks INSERT to record the RecordIDs of the rows it creates.
func (ctx *QueryContext) SetReturnGeneratedKeys(on bool) {
	ctx.returnGeneratedKeys = on
}

func (ctx *QueryContext) ReturnGeneratedKeys() bool {
	return ctx.returnGeneratedKeys
}

func (ctx *QueryContext) addGeneratedKey(rid common.RecordID) {
	if ctx.returnGeneratedKeys {
		ctx.generatedKeys = append(ctx.generatedKeys, rid)
	}
}

// GeneratedKeys returns the RecordIDs recorded by the last INSERT.
func (ctx *QueryContext) GeneratedKeys() []common.RecordID {
	return ctx.generatedKeys
}

// ParseDate parses a date string with this context's parser.
func (ctx *QueryContext) ParseDate(s string) (int64, error) {
	return ctx.dates.parse(s)
}

// newGroup starts a group whose representative rows are the current rows, makes it current and returns its number.
func (ctx *QueryContext) newGroup(numSlots int) int {
	g := &groupState{
		rows:  append([]storage.RawRow(nil), ctx.rows...),
		rids:  append([]common.RecordID(nil), ctx.rids...),
		slots: make([]aggState, numSlots),
	}
	ctx.groups = append(ctx.groups, g)
	ctx.group = g
	return len(ctx.groups) - 1
}

// selectGroup makes group i current without touching the current rows.
func (ctx *QueryContext) selectGroup(i int) {
	ctx.group = ctx.groups[i]
}

// restoreGroup makes group i current and its representative rows the current rows.
func (ctx *QueryContext) restoreGroup(i int) {
	g := ctx.groups[i]
	ctx.group = g
	copy(ctx.rows, g.rows)
	copy(ctx.rids, g.rids)
}

func (ctx *QueryContext) numGroups() int {
	return len(ctx.groups)
}

func (ctx *QueryContext) aggSlot(slot int) *aggState {
	common.Assert(ctx.group != nil, "aggregate evaluated outside of a group")
	return &ctx.group.slots[slot]
}
