package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/varmsg/errors"
)

func TestParsePipeline_Query(t *testing.T) {
	cfg, err := ParsePipeline("gps.json", []byte(`{
		"enabled": true,
		"prefix": "/varmsg/gps",
		"interval": 10,
		"vars": {"tags": "gps", "instanceID": 3},
		"output_type": "stdout",
		"output": "-"
	}`))
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "/varmsg/gps", cfg.Prefix)
	assert.Equal(t, 10, cfg.Interval)
	require.NotNil(t, cfg.Vars.Query)
	assert.Equal(t, "gps", cfg.Vars.Query.Tags)
	assert.Equal(t, uint32(3), cfg.Vars.Query.InstanceID)
	assert.True(t, cfg.Trigger.IsZero())
	assert.True(t, cfg.AppendMode())
	assert.Equal(t, "gps.json", cfg.Source)
}

func TestParsePipeline_ListKeepsElementTypes(t *testing.T) {
	cfg, err := ParsePipeline("list.json", []byte(`{
		"prefix": "p", "vars": ["a", 7, "b"], "output_type": "disabled"
	}`))
	require.NoError(t, err)
	assert.Equal(t, []any{"a", 7.0, "b"}, cfg.Vars.List)
	assert.False(t, cfg.Enabled, "enabled defaults to false")
}

func TestParsePipeline_YAML(t *testing.T) {
	cfg, err := ParsePipeline("engine.yml", []byte("prefix: /e\nvars: {match: engine}\noutput_type: file\noutput: /tmp/e.json\nappend: false\n"))
	require.NoError(t, err)
	assert.Equal(t, "engine", cfg.Vars.Query.Match)
	assert.False(t, cfg.AppendMode())
}

func TestParsePipeline_DefaultOutputType(t *testing.T) {
	cfg, err := ParsePipeline("p.json", []byte(`{"prefix":"p","vars":["a"],"output":"-"}`))
	require.NoError(t, err)
	assert.Equal(t, OutputStdout, cfg.OutputType)
}

func TestParsePipeline_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing prefix", `{"vars":["a"],"output_type":"disabled"}`},
		{"empty prefix", `{"prefix":"","vars":["a"],"output_type":"disabled"}`},
		{"missing vars", `{"prefix":"p","output_type":"disabled"}`},
		{"vars scalar", `{"prefix":"p","vars":"a","output_type":"disabled"}`},
		{"unknown output type", `{"prefix":"p","vars":["a"],"output_type":"syslog","output":"x"}`},
		{"file without output", `{"prefix":"p","vars":["a"],"output_type":"file"}`},
		{"negative interval", `{"prefix":"p","vars":["a"],"interval":-2,"output_type":"disabled"}`},
		{"unknown query field", `{"prefix":"p","vars":{"tag":"x"},"output_type":"disabled"}`},
		{"fractional instance", `{"prefix":"p","vars":{"instanceID":1.5},"output_type":"disabled"}`},
		{"not json", `{prefix`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePipeline("p.json", []byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidArgument)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestLoadPipelineDir(t *testing.T) {
	cfgs, err := LoadPipelineDir(filepath.Join("testdata", "pipelines"))

	require.Error(t, err, "the broken file is reported")
	assert.Contains(t, err.Error(), "30-broken.jsonc")

	require.Len(t, cfgs, 3)
	assert.Equal(t, "/varmsg/gps", cfgs[0].Prefix)
	assert.Equal(t, "/varmsg/engine", cfgs[1].Prefix)
	assert.Equal(t, []any{"/engine/rpm", "/engine/temp"}, cfgs[1].Vars.List)
	assert.False(t, cfgs[1].AppendMode())
	assert.Equal(t, "/varmsg/gps", cfgs[2].Prefix)

	assert.Equal(t, []any{"/sys/gps/fix"}, cfgs[0].Trigger.List)
	assert.Equal(t, "/usr/share/varmsg/gps.header", cfgs[0].Header)
}

func TestLoadPipelines_DropsDuplicatePrefix(t *testing.T) {
	dir := filepath.Join("testdata", "pipelines")
	cfgs, err := LoadPipelines(dir, filepath.Join(dir, "20-engine.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)

	prefixes := make([]string, 0, len(cfgs))
	for _, c := range cfgs {
		prefixes = append(prefixes, c.Prefix)
	}
	assert.Equal(t, []string{"/varmsg/gps", "/varmsg/engine"}, prefixes)
}

func TestLoadPipelineDir_Missing(t *testing.T) {
	_, err := LoadPipelineDir(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
