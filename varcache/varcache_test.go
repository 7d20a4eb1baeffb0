package varcache

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/varmsg/directory"
	"github.com/c360/varmsg/errors"
	"github.com/c360/varmsg/query"
)

func seeded(t *testing.T, vars ...directory.Var) *directory.Memory {
	t.Helper()
	m := directory.NewMemory(nil)
	for _, v := range vars {
		require.NoError(t, m.Define(v, "0"))
	}
	return m
}

func TestCache_GrowsByIncrement(t *testing.T) {
	c := New(2, 3)
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Add(directory.Var{Name: fmt.Sprintf("v%d", i)}))
	}
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, 5, c.Cap())
	assert.Equal(t, "v2", c.At(2).Name)
	assert.True(t, c.Contains("v1"))
	assert.False(t, c.Contains("v9"))
}

func TestCache_NilSafe(t *testing.T) {
	var c *Cache
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.Cap())
	assert.False(t, c.Contains("x"))
	assert.Nil(t, c.Vars())
}

func TestResolveList_PartialSuccess(t *testing.T) {
	dir := seeded(t,
		directory.Var{Name: "a"},
		directory.Var{Name: "b"},
		directory.Var{Name: "d", InstanceID: 4},
	)
	r := NewResolver(dir)

	c, err := r.ResolveList(context.Background(), []any{"a", "missing", "b", 42.0, "d"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnsupported, "last element error is reported")
	assert.NotErrorIs(t, err, errors.ErrNotFound)

	require.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"a", "b", "[4]d"}, []string{c.At(0).Key(), c.At(1).Key(), c.At(2).Key()})
	assert.Equal(t, 5, c.Cap(), "list caches are sized to the list")
}

func TestResolveList_LastErrorNotFound(t *testing.T) {
	r := NewResolver(seeded(t, directory.Var{Name: "a"}))

	c, err := r.ResolveList(context.Background(), []any{true, "a", "gone"})
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.Equal(t, 1, c.Len())
}

func TestResolveList_AllResolve(t *testing.T) {
	r := NewResolver(seeded(t, directory.Var{Name: "a"}, directory.Var{Name: "b"}))

	c, err := r.ResolveList(context.Background(), []any{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, []directory.Var{{Name: "b"}, {Name: "a"}}, c.Vars())
}

func TestResolve_Query(t *testing.T) {
	r := NewResolver(seeded(t,
		directory.Var{Name: "gps/lat", Tags: []string{"gps"}},
		directory.Var{Name: "engine/rpm", Tags: []string{"engine"}},
		directory.Var{Name: "gps/lon", Tags: []string{"gps"}},
	))

	q, err := query.Build(query.Spec{Tags: "gps"})
	require.NoError(t, err)

	c, err := r.Resolve(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, QueryInitialSize, c.Cap())
	assert.Equal(t, "gps/lat", c.At(0).Name)
}

func TestResolve_InvalidQuery(t *testing.T) {
	r := NewResolver(seeded(t))
	c, err := r.Resolve(context.Background(), query.Query{})
	assert.ErrorIs(t, err, errors.ErrUnsupported)
	assert.Nil(t, c)
}

func TestResolve_RescanReplaces(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemory(nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, dir.Define(directory.Var{Name: fmt.Sprintf("s%d", i), Tags: []string{"sensor"}}, ""))
	}
	r := NewResolver(dir)
	q, err := query.Build(query.Spec{Tags: "sensor"})
	require.NoError(t, err)

	first, err := r.Resolve(ctx, q)
	require.NoError(t, err)
	require.Equal(t, 5, first.Len())

	dir.Remove("s0")
	dir.Remove("s3")

	second, err := r.Resolve(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 3, second.Len())
	assert.Equal(t, 5, first.Len(), "previous cache is untouched")
}

func TestResolveSource(t *testing.T) {
	r := NewResolver(seeded(t, directory.Var{Name: "a", Tags: []string{"t"}}))
	ctx := context.Background()

	c, err := r.ResolveSource(ctx, Source{})
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
	assert.True(t, Source{}.IsZero())
	assert.Equal(t, "none", Source{}.String())

	q, err := query.Build(query.Spec{Tags: "t"})
	require.NoError(t, err)
	c, err = r.ResolveSource(ctx, Source{Query: &q})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	c, err = r.ResolveSource(ctx, Source{List: []any{"a"}})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, "list[1]", Source{List: []any{"a"}}.String())
}
