package sql

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mit.edu/dsg/rowdb/catalog"
	"mit.edu/dsg/rowdb/common"
)

func newGolden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

// newAccessTable creates t(a INT, b INT UNIQUE, c INT, d VARCHAR) with a hash index on a, a btree index on c and a
// hash index on d, holding rows 1..10.
func newAccessTable(f *fixture) {
	f.createTable("t",
		catalog.Column{Name: "a", Type: common.IntColumn},
		catalog.Column{Name: "b", Type: common.IntColumn, Unique: true},
		catalog.Column{Name: "c", Type: common.IntColumn},
		catalog.Column{Name: "d", Type: common.VarCharColumn},
	)
	f.createIndex("t_a", "t", "hash", "a", false)
	f.createIndex("t_c", "t", "btree", "c", false)
	f.createIndex("t_d", "t", "hash", "d", false)
	insert := f.compile(&Insert{Table: "t", Rows: [][]Expr{values(Param(0), Param(0), Param(0), Param(1))}})
	for i := 1; i <= 10; i++ {
		_, err := f.try(insert, i, string(rune('a'+i-1)))
		require.NoError(f.t, err)
	}
}

func TestAccessPathChoice(t *testing.T) {
	f := newFixture(t)
	newAccessTable(f)

	tests := []struct {
		name   string
		where  Expr
		access string
		cost   string
		ids    []string
	}{
		{"index beats unique scan", And(Eq(col("b"), Long(3)), Eq(col("a"), Long(3))), "index t_a on t (a = 3)", "cost=100", []string{"3"}},
		{"unique scan beats full scan", Eq(col("b"), Long(4)), "unique-scan t (b = 4)", "cost=10000", []string{"4"}},
		{"no usable access", Gt(col("b"), Long(8)), "scan t", "cost=1000000", []string{"9", "10"}},
		{"range on btree", Gt(col("c"), Long(8)), "index-range t_c on t (c > 8)", "cost=100", []string{"9", "10"}},
		{"flipped range", Ge(Long(2), col("c")), "index-range t_c on t (c <= 2)", "cost=100", []string{"1", "2"}},
		{"two bounds", And(Gt(col("c"), Long(5)), Le(col("c"), Long(7))), "index-range t_c on t (c > 5)", "cost=100", []string{"6", "7"}},
		{"range on hash", Lt(col("a"), Long(3)), "scan t", "cost=1000000", []string{"1", "2"}},
		{"string index", Eq(col("d"), String("e")), "index t_d on t (d = 'e')", "cost=100", []string{"5"}},
		{"string index with a long key", Eq(col("d"), Long(5)), "scan t", "cost=1000000", nil},
		{"fractional key", Eq(col("a"), Double(2.5)), "index t_a on t (a = 2.5)", "cost=100", nil},
		{"integral double key", Eq(col("a"), Double(2)), "index t_a on t (a = 2)", "cost=100", []string{"2"}},
		{"null key", Eq(col("a"), Null()), "index t_a on t (a = NULL)", "cost=100", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exe := f.compile(&Select{Columns: items(col("a")), From: from("t"), Where: tt.where})
			plan := exe.Plan()
			require.Equal(t, 1, plan.NumLevels())
			assert.Equal(t, tt.access, plan.Access(0))
			assert.Contains(t, plan.String(), tt.cost)

			ctx, err := f.try(exe)
			if tt.name == "string index with a long key" {
				assert.True(t, common.IsErrorCode(err, common.ParseError), "'a' is not a number")
				return
			}
			require.NoError(t, err)
			if tt.ids == nil {
				assert.Empty(t, rows(ctx.Result()))
				return
			}
			assert.Equal(t, tt.ids, rows(ctx.Result()))
		})
	}
}

func TestPlanChecks(t *testing.T) {
	f := newFixture(t)
	newAccessTable(f)
	exe := f.compile(&Select{
		Columns: items(col("a")),
		From:    from("t"),
		Where:   And(Eq(Param(0), Long(1)), Eq(col("a"), Long(2))),
	})
	newGolden(t).Assert(t, "check_plan", []byte(exe.Plan().String()))

	ctx, err := f.try(exe, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, rows(ctx.Result()))
	ctx, err = f.try(exe, 0)
	require.NoError(t, err)
	assert.Empty(t, rows(ctx.Result()), "a failing check reads no rows")
}

func newShop(f *fixture) {
	f.createTable("users",
		catalog.Column{Name: "id", Type: common.IntColumn},
		catalog.Column{Name: "name", Type: common.VarCharColumn},
	)
	f.createTable("orders",
		catalog.Column{Name: "id", Type: common.IntColumn},
		catalog.Column{Name: "user_id", Type: common.IntColumn},
		catalog.Column{Name: "amount", Type: common.LongColumn},
	)
	f.createIndex("users_id", "users", "hash", "id", true)
	f.createIndex("orders_user", "orders", "btree", "user_id", false)
	f.run(&Insert{Table: "users", Rows: [][]Expr{
		values(Long(1), String("alice")),
		values(Long(2), String("bob")),
	}})
	f.run(&Insert{Table: "orders", Rows: [][]Expr{
		values(Long(10), Long(1), Long(5)),
		values(Long(11), Long(1), Long(50)),
		values(Long(12), Long(2), Long(70)),
	}})
}

func TestJoinOrder(t *testing.T) {
	f := newFixture(t)
	newShop(f)

	exe := f.compile(&Select{
		Columns: items(col("u.name"), col("o.amount")),
		From:    from("orders o", "users u"),
		Where: And(
			Eq(col("o.user_id"), col("u.id")),
			Eq(col("u.id"), Param(0)),
			Gt(col("o.amount"), Long(10)),
		),
	})
	newGolden(t).Assert(t, "join_plan", []byte(exe.Plan().String()))

	ctx, err := f.try(exe, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice,50"}, rows(ctx.Result()))

	// without the parameter, the scan goes first and the join looks up the users index
	exe = f.compile(&Select{
		Columns: items(col("u.name"), col("o.amount")),
		From:    from("orders o", "users u"),
		Where:   Eq(col("o.user_id"), col("u.id")),
	})
	require.Equal(t, 2, exe.Plan().NumLevels())
	assert.Equal(t, "scan orders o", exe.Plan().Access(0))
	assert.Equal(t, "index users_id on users u (id = o.user_id)", exe.Plan().Access(1))
	ctx, err = f.try(exe)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice,5", "alice,50", "bob,70"}, rows(ctx.Result()))
}

func TestAndCost(t *testing.T) {
	f := newFixture(t)
	newAccessTable(f)
	q, err := newQuery(f.db, []TableRef{{Name: "t", Alias: "x"}, {Name: "t", Alias: "y"}})
	require.NoError(t, err)
	outer := q.FromItems()[:1]

	cost := func(e Expr) Cost {
		t.Helper()
		bound, err := e.Bind(q)
		require.NoError(t, err)
		return bound.Cost(outer)
	}
	indexed := Eq(Column("x", "a"), Long(3))
	scanned := Gt(Column("x", "b"), Long(3))
	joined := Eq(Column("x", "c"), Column("y", "c"))

	require.Equal(t, CostIndex, cost(indexed))
	require.Equal(t, CostScan, cost(scanned))
	require.Equal(t, CostNoTable, cost(joined))
	assert.Equal(t, CostIndex, cost(And(scanned, indexed)))
	assert.Equal(t, CostNoTable, cost(And(indexed, joined)), "a conjunct over a later table defers the whole AND")
}
