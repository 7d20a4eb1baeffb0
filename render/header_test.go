package render

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/varmsg/directory"
	"github.com/c360/varmsg/errors"
)

func writeHeader(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "header.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestHeader_Expand(t *testing.T) {
	mem := directory.NewMemory(nil)
	t.Cleanup(func() { _ = mem.Close() })
	require.NoError(t, mem.Define(directory.Var{Name: "/sys/host"}, "gw-01"))
	require.NoError(t, mem.Define(directory.Var{Name: "/sys/fw", InstanceID: 3}, "1.4.2"))

	path := writeHeader(t, t.TempDir(), "# host=${/sys/host} fw=${/sys/fw} missing=[${/nope}] $notvar\n")
	h, err := LoadHeader(path, nil)
	require.NoError(t, err)

	out, err := h.Expand(context.Background(), mem)
	require.NoError(t, err)
	assert.Equal(t, "# host=gw-01 fw=1.4.2 missing=[] $notvar\n", string(out))
}

func TestHeader_NoPlaceholders(t *testing.T) {
	path := writeHeader(t, t.TempDir(), "plain\n")
	h, err := LoadHeader(path, nil)
	require.NoError(t, err)

	out, err := h.Expand(context.Background(), directory.NewMemory(nil))
	require.NoError(t, err)
	assert.Equal(t, "plain\n", string(out))

	out = append(out[:0], "overwritten"...)
	assert.Equal(t, "plain\n", string(h.Template()))
}

func TestLoadHeader_Missing(t *testing.T) {
	_, err := LoadHeader(filepath.Join(t.TempDir(), "absent"), nil)
	assert.ErrorIs(t, err, errors.ErrIO)
}

func TestHeader_WatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeHeader(t, dir, "v1\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	headers := NewHeaders(ctx, nil)
	h, err := headers.Get(path)
	require.NoError(t, err)

	again, err := headers.Get(filepath.Join(dir, ".", "header.txt"))
	require.NoError(t, err)
	assert.Same(t, h, again)

	require.NoError(t, os.WriteFile(path, []byte("v2\n"), 0o644))
	assert.Eventually(t, func() bool {
		return string(h.Template()) == "v2\n"
	}, 2*time.Second, 10*time.Millisecond)
	assert.NotZero(t, h.Reloads())
}
