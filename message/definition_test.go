package message

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/varmsg/config"
	"github.com/c360/varmsg/directory"
	"github.com/c360/varmsg/errors"
	"github.com/c360/varmsg/query"
	"github.com/c360/varmsg/varcache"
)

func pipeline(prefix string, interval int) *config.PipelineConfig {
	return &config.PipelineConfig{
		Enabled:    true,
		Prefix:     prefix,
		Interval:   interval,
		Vars:       config.VarSpec{List: []any{"/sys/a"}},
		OutputType: config.OutputStdout,
	}
}

func TestParseOutputType(t *testing.T) {
	for _, want := range []OutputType{OutputDisabled, OutputStdout, OutputMQueue, OutputFile} {
		got, err := ParseOutputType(want.String())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseOutputType("carrier-pigeon")
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		d, err := New(pipeline("/p", 3))
		require.NoError(t, err)
		assert.True(t, d.Enabled())
		assert.Equal(t, 3, d.Countdown())
		assert.True(t, d.Append)
		assert.Equal(t, OutputStdout, d.Output)
		assert.True(t, d.Trigger.IsZero())
		assert.Zero(t, d.BodyCache().Len())
		assert.NotNil(t, d.TriggerCache())
	})

	t.Run("query sources", func(t *testing.T) {
		cfg := pipeline("/p", 0)
		cfg.Trigger = config.VarSpec{Query: &query.Spec{Flags: "trigger"}}
		cfg.Vars = config.VarSpec{Query: &query.Spec{Tags: "gps,fix"}}

		d, err := New(cfg)
		require.NoError(t, err)
		require.NotNil(t, d.Body.Query)
		assert.Equal(t, []string{"gps", "fix"}, d.Body.Query.Tags)
		assert.True(t, d.Trigger.Query.Flags.Has(directory.FlagTrigger))
	})

	t.Run("bad query", func(t *testing.T) {
		cfg := pipeline("/p", 0)
		cfg.Vars = config.VarSpec{Query: &query.Spec{}}
		_, err := New(cfg)
		assert.ErrorIs(t, err, errors.ErrUnsupported)
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("missing vars", func(t *testing.T) {
		cfg := pipeline("/p", 0)
		cfg.Vars = config.VarSpec{}
		_, err := New(cfg)
		assert.ErrorIs(t, err, errors.ErrInvalidArgument)
	})

	t.Run("unknown output", func(t *testing.T) {
		cfg := pipeline("/p", 0)
		cfg.OutputType = "fax"
		_, err := New(cfg)
		assert.ErrorIs(t, err, errors.ErrInvalidArgument)
	})
}

func TestTick_FiresEveryInterval(t *testing.T) {
	d, err := New(pipeline("/p", 3))
	require.NoError(t, err)

	var fired []int
	for i := 1; i <= 9; i++ {
		if d.Tick() {
			fired = append(fired, i)
		}
	}
	assert.Equal(t, []int{3, 6, 9}, fired)
}

func TestTick_DisableFreezesCountdown(t *testing.T) {
	d, err := New(pipeline("/p", 3))
	require.NoError(t, err)

	assert.False(t, d.Tick())
	assert.Equal(t, 2, d.Countdown())

	require.True(t, d.SetEnabled(false))
	assert.False(t, d.SetEnabled(false), "no change when already disabled")
	for i := 0; i < 10; i++ {
		assert.False(t, d.Tick())
	}
	assert.Equal(t, 2, d.Countdown())

	require.True(t, d.SetEnabled(true))
	assert.False(t, d.Tick())
	assert.True(t, d.Tick(), "resumes from the frozen value")
	assert.Equal(t, 3, d.Countdown())
}

func TestTick_TriggerOnlyNeverFires(t *testing.T) {
	d, err := New(pipeline("/p", 0))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		assert.False(t, d.Tick())
	}
}

func TestTriggered(t *testing.T) {
	d, err := New(pipeline("/p", 0))
	require.NoError(t, err)

	assert.False(t, d.TakeTriggered())
	d.MarkTriggered()
	assert.True(t, d.TakeTriggered())
	assert.False(t, d.TakeTriggered(), "cleared on take")

	d.SetEnabled(false)
	d.MarkTriggered()
	d.SetEnabled(true)
	assert.False(t, d.TakeTriggered(), "changes while disabled are dropped")
}

func TestCounters(t *testing.T) {
	d, err := New(pipeline("/p", 0))
	require.NoError(t, err)

	d.txCount.Store(^uint32(0))
	assert.Equal(t, uint32(0), d.RecordTransmission(), "wraps")
	assert.Equal(t, uint32(1), d.RecordError())
	assert.Equal(t, uint32(1), d.ErrCount())
}

func TestStatusName(t *testing.T) {
	d, err := New(pipeline("/varmsg/gps/", 0))
	require.NoError(t, err)
	assert.Equal(t, "/varmsg/gps/txcount", d.StatusName(StatusTxCount))
}

func seeded(t *testing.T, n int) *directory.Memory {
	t.Helper()
	m := directory.NewMemory(nil)
	t.Cleanup(func() { _ = m.Close() })
	for i := 0; i < n; i++ {
		require.NoError(t, m.Define(directory.Var{
			Name: "/gps/v" + string(rune('a'+i)),
			Tags: []string{"gps"},
		}, "0"))
	}
	return m
}

func TestLoad_ListKeepsResolvedNames(t *testing.T) {
	m := seeded(t, 2)
	cfg := pipeline("/p", 1)
	cfg.Vars = config.VarSpec{List: []any{"/gps/va", "/missing", "/gps/vb"}}
	d, err := New(cfg)
	require.NoError(t, err)

	err = d.Load(context.Background(), varcache.NewResolver(m))
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.True(t, d.Enabled())
	assert.Equal(t, 2, d.BodyCache().Len())
}

func TestLoad_FailedQueryDisables(t *testing.T) {
	m := seeded(t, 2)
	cfg := pipeline("/p", 1)
	cfg.Vars = config.VarSpec{Query: &query.Spec{Tags: "gps"}}
	d, err := New(cfg)
	require.NoError(t, err)

	// an invalid query that got past Build
	d.Body.Query.Kind = query.KindNone

	err = d.Load(context.Background(), varcache.NewResolver(m))
	assert.ErrorIs(t, err, errors.ErrUnsupported)
	assert.False(t, d.Enabled())
	assert.Zero(t, d.BodyCache().Len())
}

func TestRescan_ReplacesCache(t *testing.T) {
	m := seeded(t, 5)
	cfg := pipeline("/p", 1)
	cfg.Vars = config.VarSpec{Query: &query.Spec{Tags: "gps"}}
	d, err := New(cfg)
	require.NoError(t, err)

	r := varcache.NewResolver(m)
	require.NoError(t, d.Load(context.Background(), r))
	require.Equal(t, 5, d.BodyCache().Len())

	m.Remove("/gps/vd")
	m.Remove("/gps/ve")
	require.NoError(t, d.Rescan(context.Background(), r))
	assert.Equal(t, 3, d.BodyCache().Len())
}

func TestRescan_FailedQueryKeepsPrevious(t *testing.T) {
	m := seeded(t, 3)
	cfg := pipeline("/p", 1)
	cfg.Vars = config.VarSpec{Query: &query.Spec{Tags: "gps"}}
	d, err := New(cfg)
	require.NoError(t, err)

	r := varcache.NewResolver(m)
	require.NoError(t, d.Load(context.Background(), r))

	d.Body.Query.Kind = query.KindNone
	assert.Error(t, d.Rescan(context.Background(), r))
	assert.Equal(t, 3, d.BodyCache().Len())
}

func TestStatus(t *testing.T) {
	cfg := pipeline("/p", 4)
	cfg.OutputType = config.OutputFile
	cfg.Output = "/tmp/out.json"
	d, err := New(cfg)
	require.NoError(t, err)
	d.RecordTransmission()

	want := Status{
		Prefix:     "/p",
		Enabled:    true,
		Interval:   4,
		Countdown:  4,
		TxCount:    1,
		Trigger:    "none",
		Body:       "list[1]",
		OutputType: "file",
		Output:     "/tmp/out.json",
	}
	if diff := cmp.Diff(want, d.Status()); diff != "" {
		t.Errorf("Status() mismatch (-want +got):\n%s", diff)
	}
}
