package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/varmsg/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, DirectoryNATS, cfg.Directory.Backend)
	assert.Equal(t, []string{"nats://localhost:4222"}, cfg.NATS.URLs)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout.Std())
	assert.NoError(t, cfg.Validate())
}

func TestLoader_LayersAndComments(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.jsonc", `{
		// comments are allowed
		"nats": {"urls": ["nats://a:4222"], "reconnect_wait": "5s"},
		"http": {"port": 8080},
	}`)
	override := writeFile(t, dir, "override.json", `{"directory": {"backend": "memory", "seed": "/tmp/seed.json"}, "shutdown_timeout": "3s"}`)

	loader := NewLoader()
	loader.AddLayer(base)
	loader.AddLayer(override)
	loader.EnableValidation(true)

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"nats://a:4222"}, cfg.NATS.URLs)
	assert.Equal(t, 5*time.Second, cfg.NATS.ReconnectWait.Std())
	assert.Equal(t, -1, cfg.NATS.MaxReconnects, "defaults survive partial layers")
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, DirectoryMemory, cfg.Directory.Backend)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout.Std())
	assert.Equal(t, "/etc/varmsg", cfg.Pipelines.Dir)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("VARMSG_NATS_URLS", "nats://x:1,nats://y:2")
	t.Setenv("VARMSG_DIRECTORY", "memory")
	t.Setenv("VARMSG_HTTP_PORT", "9090")
	t.Setenv("VARMSG_SHUTDOWN_TIMEOUT", "1m")
	t.Setenv("VARMSG_PIPELINES_DIR", "/srv/pipelines")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"nats://x:1", "nats://y:2"}, cfg.NATS.URLs)
	assert.Equal(t, DirectoryMemory, cfg.Directory.Backend)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, time.Minute, cfg.ShutdownTimeout.Std())
	assert.Equal(t, "/srv/pipelines", cfg.Pipelines.Dir)
}

func TestLoader_BadEnv(t *testing.T) {
	t.Setenv("VARMSG_HTTP_PORT", "eighty")
	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestLoader_RejectsUnknownExtension(t *testing.T) {
	path := writeFile(t, t.TempDir(), "varmsg.toml", `x = 1`)
	_, err := NewLoader().LoadFile(path)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Directory.Backend = "etcd" }},
		{"nats without urls", func(c *Config) { c.NATS.URLs = nil }},
		{"seed on nats", func(c *Config) { c.Directory.Seed = "seed.json" }},
		{"bad port", func(c *Config) { c.HTTP.Port = 70000 }},
		{"negative timeout", func(c *Config) { c.ShutdownTimeout = -1 }},
		{"http tls without cert", func(c *Config) { c.HTTP.TLS.Enabled = true }},
		{"mtls without ca", func(c *Config) {
			c.HTTP.TLS = ServerTLSConfig{Enabled: true, CertFile: "c.pem", KeyFile: "k.pem", MTLS: ServerMTLSConfig{Enabled: true}}
		}},
		{"nats tls cert without key", func(c *Config) { c.NATS.TLS = ClientTLSConfig{Enabled: true, CertFile: "c.pem"} }},
		{"tls version", func(c *Config) { c.NATS.TLS = ClientTLSConfig{Enabled: true, MinVersion: "1.1"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestConfig_StringMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.NATS.Password = "hunter2"
	cfg.NATS.Token = "s3cret"
	s := cfg.String()
	assert.NotContains(t, s, "hunter2")
	assert.NotContains(t, s, "s3cret")
	assert.Equal(t, "hunter2", cfg.NATS.Password)
}

func TestValidateJSONDepth(t *testing.T) {
	assert.NoError(t, validateJSONDepth([]byte(`{"a":"[[[["}`)))
	assert.Error(t, validateJSONDepth([]byte(`{"a":[}`)))
	deep := make([]byte, 0, 2*(maxJSONDepth+1))
	for i := 0; i <= maxJSONDepth; i++ {
		deep = append(deep, '[')
	}
	for i := 0; i <= maxJSONDepth; i++ {
		deep = append(deep, ']')
	}
	assert.Error(t, validateJSONDepth(deep))
}
