package directory

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/varmsg/errors"
)

func TestVar_Key(t *testing.T) {
	assert.Equal(t, "sys/temp", Var{Name: "sys/temp"}.Key())
	assert.Equal(t, "[2]sys/temp", Var{Name: "sys/temp", InstanceID: 2}.Key())
}

func TestJoinName(t *testing.T) {
	tests := []struct {
		prefix, name, want string
	}{
		{"/varmsg/gps", "txcount", "/varmsg/gps/txcount"},
		{"/varmsg/gps/", "txcount", "/varmsg/gps/txcount"},
		{"/varmsg/gps/", "/txcount", "/varmsg/gps/txcount"},
		{"", "txcount", "txcount"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, JoinName(tt.prefix, tt.name))
	}
}

func TestParseFlags(t *testing.T) {
	f, err := ParseFlags("Volatile, readonly,,METRIC")
	require.NoError(t, err)
	assert.Equal(t, FlagVolatile|FlagReadOnly|FlagMetric, f)
	assert.Equal(t, "volatile,readonly,metric", f.String())
	assert.True(t, f.Has(FlagVolatile|FlagMetric))
	assert.False(t, f.Has(FlagHidden))

	_, err = ParseFlags("volatile,sparkly")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnsupported)
}

func TestFlags_JSON(t *testing.T) {
	var v Var
	require.NoError(t, json.Unmarshal([]byte(`{"name":"a","flags":"hidden,audit"}`), &v))
	assert.Equal(t, FlagHidden|FlagAudit, v.Flags)

	require.NoError(t, json.Unmarshal([]byte(`{"name":"b","flags":3}`), &v))
	assert.Equal(t, FlagVolatile|FlagReadOnly, v.Flags)

	assert.Error(t, json.Unmarshal([]byte(`{"name":"c","flags":"nope"}`), &v))
}

func TestMemory_LookupAndRead(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	require.NoError(t, m.Define(Var{Name: "temp", InstanceID: 3}, "21"))
	require.NoError(t, m.Define(Var{Name: "temp", InstanceID: 1}, "19"))

	v, err := m.Lookup(ctx, "temp")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v.InstanceID)

	val, err := m.Read(ctx, v)
	require.NoError(t, err)
	assert.Equal(t, "19", val)

	_, err = m.Lookup(ctx, "missing")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	m.Remove(v.Key())
	_, err = m.Read(ctx, v)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestMemory_SearchKeepsDefinitionOrder(t *testing.T) {
	m := NewMemory(nil)
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, m.Define(Var{Name: name, Tags: []string{"gps"}}, ""))
	}
	require.NoError(t, m.Define(Var{Name: "x"}, ""))

	got, err := m.Search(context.Background(), MatchFunc(func(v Var) bool { return v.HasTag("gps") }))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{got[0].Name, got[1].Name, got[2].Name})
}

func TestMemory_WriteCreatesAndNotifies(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewMemory(nil)
	changes, err := m.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Write(ctx, "/varmsg/gps/enable", "1"))

	select {
	case c := <-changes:
		assert.Equal(t, "/varmsg/gps/enable", c.Var.Name)
		assert.Equal(t, "1", c.Value)
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}

	v, err := m.Lookup(ctx, "/varmsg/gps/enable")
	require.NoError(t, err)
	val, err := m.Read(ctx, v)
	require.NoError(t, err)
	assert.Equal(t, "1", val)
}

func TestMemory_WatchClosedOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewMemory(nil)
	changes, err := m.Watch(ctx)
	require.NoError(t, err)

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-changes:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestMemory_FullWatcherDrops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewMemory(nil)
	_, err := m.Watch(ctx)
	require.NoError(t, err)

	for i := 0; i < watchBuffer+5; i++ {
		require.NoError(t, m.Write(ctx, "n", "v"))
	}
	assert.Equal(t, uint64(5), m.Dropped())
}

func TestMemory_Close(t *testing.T) {
	m := NewMemory(nil)
	changes, err := m.Watch(context.Background())
	require.NoError(t, err)

	require.NoError(t, m.Close())
	_, ok := <-changes
	assert.False(t, ok)
	assert.ErrorIs(t, m.Write(context.Background(), "a", "b"), errors.ErrShuttingDown)
	assert.NoError(t, m.Close())
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.jsonc")
	content := `[
		// position
		{"name": "/gps/lat", "value": "51.5", "tags": ["gps"]},
		{"name": "/gps/fix", "instanceID": 2, "value": "{\"ok\":true}", "flags": "volatile"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m := NewMemory(nil)
	n, err := LoadSeed(m, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ctx := context.Background()
	v, err := m.Lookup(ctx, "/gps/fix")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), v.InstanceID)
	assert.Equal(t, FlagVolatile, v.Flags)

	val, err := m.Read(ctx, v)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, val)

	_, err = LoadSeed(m, filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
