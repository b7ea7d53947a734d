package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/asanatap/internal/source"
)

func TestFakeSource_Paging(t *testing.T) {
	f := NewFakeSource()
	f.PageSize = 2
	f.Tags["w1"] = []source.Record{Tag("a", ""), Tag("b", ""), Tag("c", "")}
	ctx := context.Background()

	req := source.ListRequest{Path: "tags", Params: map[string]string{"workspace": "w1"}}
	page, err := f.List(ctx, req)
	require.NoError(t, err)
	assert.Len(t, page.Records, 2)
	assert.Equal(t, "2", page.NextOffset)

	page, err = f.List(ctx, req.WithOffset(page.NextOffset))
	require.NoError(t, err)
	assert.Len(t, page.Records, 1)
	assert.Empty(t, page.NextOffset)

	assert.Equal(t, []string{"GET tags?workspace=w1", "GET tags?workspace=w1"}, f.Calls)
}

func TestFakeSource_ArchivedFilter(t *testing.T) {
	f := NewFakeSource()
	archived := Project("p2", "")
	archived["archived"] = true
	f.Projects["w1"] = []source.Record{Project("p1", ""), archived}

	page, err := f.List(context.Background(), source.ListRequest{
		Path:   "projects",
		Params: map[string]string{"workspace": "w1", "archived": "false"},
	})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "p1", page.Records[0].ID())
}

func TestFakeSource_Subtasks(t *testing.T) {
	f := NewFakeSource()
	f.Subtasks["t1"] = []source.Record{Task("s1", "", 0)}

	page, err := f.List(context.Background(), source.ListRequest{Path: "tasks/t1/subtasks"})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "s1", page.Records[0].ID())
}

func TestFakeSource_FailOn(t *testing.T) {
	f := NewFakeSource()
	f.FailOn("tasks/t1/subtasks", source.KindTransient, 1)
	ctx := context.Background()
	req := source.ListRequest{Path: "tasks/t1/subtasks"}

	_, err := f.List(ctx, req)
	assert.True(t, source.IsTransient(err))

	_, err = f.List(ctx, req)
	assert.NoError(t, err, "failure consumed")
}

func TestFakeSource_GetNotFound(t *testing.T) {
	f := NewFakeSource()
	f.Records["t1"] = Task("t1", "", 0)

	rec, err := f.Get(context.Background(), "tasks", "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, "t1", rec.ID())

	_, err = f.Get(context.Background(), "tasks", "nope", nil)
	assert.True(t, source.IsNotFound(err))
}

func TestFakeCredential(t *testing.T) {
	c := &FakeCredential{}
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, 1, c.Refreshes())

	c.FailWith(assert.AnError)
	assert.ErrorIs(t, c.Refresh(context.Background()), assert.AnError)
	assert.Equal(t, 1, c.Refreshes())
}
