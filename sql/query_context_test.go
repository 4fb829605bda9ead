package sql

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mit.edu/dsg/rowdb/common"
)

func TestQueryContextReuse(t *testing.T) {
	ctx := AllocateQueryContext()
	ctx.SetReturnGeneratedKeys(true)
	ctx.Init(nil, []common.Value{common.NewLongValue(1)})
	ctx.prepare(2)
	ctx.SetRow(1, common.RecordID{Oid: 1, Slot: 3}, []byte{1})
	ctx.addRowUpdate()
	ctx.addGeneratedKey(common.RecordID{Oid: 1, Slot: 3})

	ctx.Init(nil, nil)
	assert.True(t, ctx.ReturnGeneratedKeys(), "Init keeps the generated-keys setting")
	assert.Zero(t, ctx.RowUpdateCount())
	assert.Empty(t, ctx.GeneratedKeys())
	assert.Zero(t, ctx.NumParams())
	assert.Nil(t, ctx.Row(1))
	_, err := ctx.Param(0)
	assert.True(t, common.IsErrorCode(err, common.BindError))

	FreeQueryContext(ctx)
	again := AllocateQueryContext()
	defer FreeQueryContext(again)
	assert.False(t, again.ReturnGeneratedKeys())
	assert.Nil(t, again.Result())
}

func TestQueryContextConcurrentUse(t *testing.T) {
	f := newFixture(t)
	newUsers(f)
	byID := f.compile(&Select{Columns: items(col("name")), From: from("users"), Where: Eq(col("id"), Param(0))})
	want := []string{"alice", "bob", "carol"}

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := (w+i)%3 + 1
				ctx := AllocateQueryContext()
				ctx.Init(nil, []common.Value{common.NewIntValue(int32(id))})
				err := byID.Execute(ctx)
				if err == nil {
					got := rows(ctx.Result())
					if len(got) != 1 || got[0] != want[id-1] {
						err = fmt.Errorf("id %d returned %v", id, got)
					}
				}
				FreeQueryContext(ctx)
				if err != nil {
					errs <- err
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestDateParserRemembersLayout(t *testing.T) {
	ctx := newContext(t)
	first, err := ctx.ParseDate("2024-01-02")
	require.NoError(t, err)
	second, err := ctx.ParseDate("2024-01-03")
	require.NoError(t, err)
	assert.Equal(t, int64(86400000), second-first)
	assert.Equal(t, len(dateLayouts)-1, ctx.dates.last)

	full, err := ctx.ParseDate("2024-01-02 00:00:00.000")
	require.NoError(t, err)
	assert.Equal(t, first, full)
	assert.Zero(t, ctx.dates.last)
}
