package testutil

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/c360/varmsg/config"
	"github.com/c360/varmsg/directory"
)

// GPSVars defines n variables /gps/v0../gps/v<n-1> tagged "gps" with values
// "0".."n-1" and returns their names
func GPSVars(t testing.TB, m *directory.Memory, n int) []string {
	t.Helper()
	names := make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = fmt.Sprintf("/gps/v%d", i)
		require.NoError(t, m.Define(directory.Var{Name: names[i], Tags: []string{"gps"}}, fmt.Sprint(i)))
	}
	return names
}

// NewMemory returns an in-memory directory closed at test cleanup
func NewMemory(t testing.TB) *directory.Memory {
	t.Helper()
	m := directory.NewMemory(nil)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// Pipeline returns an enabled stdout pipeline over an explicit list
func Pipeline(prefix string, interval int, vars ...string) *config.PipelineConfig {
	list := make([]any, len(vars))
	for i, v := range vars {
		list[i] = v
	}
	return &config.PipelineConfig{
		Enabled:    true,
		Prefix:     prefix,
		Interval:   interval,
		Vars:       config.VarSpec{List: list},
		OutputType: config.OutputStdout,
	}
}
