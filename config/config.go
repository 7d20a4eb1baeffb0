package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/c360/varmsg/errors"
)

// Directory backends
const (
	DirectoryMemory = "memory"
	DirectoryNATS   = "nats"
)

// Config is the service configuration. Pipeline definitions are loaded
// separately; see LoadPipelineDir.
type Config struct {
	NATS            NATSConfig      `json:"nats"`
	Directory       DirectoryConfig `json:"directory"`
	Pipelines       PipelinesConfig `json:"pipelines"`
	HTTP            HTTPConfig      `json:"http"`
	ShutdownTimeout Duration        `json:"shutdown_timeout"`
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URLs          []string `json:"urls,omitempty"`
	Name          string   `json:"name,omitempty"`
	MaxReconnects int      `json:"max_reconnects,omitempty"`
	ReconnectWait Duration `json:"reconnect_wait,omitempty"`
	Username      string   `json:"username,omitempty"`
	Password      string   `json:"password,omitempty"`
	Token         string   `json:"token,omitempty"`
	CredsFile     string   `json:"creds_file,omitempty"`

	TLS ClientTLSConfig `json:"tls,omitempty"`
}

// DirectoryConfig selects the variable directory backend
type DirectoryConfig struct {
	Backend      string `json:"backend"`
	ValuesBucket string `json:"values_bucket,omitempty"`
	MetaBucket   string `json:"meta_bucket,omitempty"`
	Seed         string `json:"seed,omitempty"` // memory backend only
}

// PipelinesConfig locates pipeline definition files
type PipelinesConfig struct {
	Dir  string `json:"dir,omitempty"`
	File string `json:"file,omitempty"`
}

// HTTPConfig configures the status/control API. Port 0 disables it.
type HTTPConfig struct {
	Port int             `json:"port"`
	TLS  ServerTLSConfig `json:"tls,omitempty"`
}

// Duration is a time.Duration that decodes from "5s" style strings or
// nanosecond numbers.
type Duration time.Duration

// Std returns the time.Duration value
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalJSON encodes d as a duration string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(val))
	case nil:
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// Validate checks the service configuration
func (c *Config) Validate() error {
	switch c.Directory.Backend {
	case DirectoryMemory:
	case DirectoryNATS:
		if len(c.NATS.URLs) == 0 {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "nats.urls required for nats directory")
		}
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: directory.backend %q", errors.ErrInvalidConfig, c.Directory.Backend),
			"Config", "Validate", "check directory backend")
	}

	if c.Directory.Seed != "" && c.Directory.Backend != DirectoryMemory {
		return errors.WrapInvalid(
			fmt.Errorf("%w: directory.seed only applies to the memory backend", errors.ErrInvalidConfig),
			"Config", "Validate", "check seed")
	}

	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: http.port %d", errors.ErrInvalidConfig, c.HTTP.Port),
			"Config", "Validate", "check http port")
	}

	if err := c.HTTP.TLS.validate(); err != nil {
		return err
	}
	if err := c.NATS.TLS.validate(); err != nil {
		return err
	}

	if c.ShutdownTimeout < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: negative shutdown_timeout", errors.ErrInvalidConfig),
			"Config", "Validate", "check shutdown timeout")
	}

	return nil
}

// String returns the config as JSON with secrets masked
func (c *Config) String() string {
	masked := *c
	if masked.NATS.Password != "" {
		masked.NATS.Password = "****"
	}
	if masked.NATS.Token != "" {
		masked.NATS.Token = "****"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:    []string{},
		envPrefix: "VARMSG",
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges defaults, each layer, and environment overrides
func (l *Loader) Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		merged, err := mergeFromMap(cfg, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to merge %s: %w", path, err)
		}
		cfg = merged
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
		},
		Directory: DirectoryConfig{
			Backend: DirectoryNATS,
		},
		Pipelines: PipelinesConfig{
			Dir: "/etc/varmsg",
		},
		HTTP:            HTTPConfig{Port: 0},
		ShutdownTimeout: Duration(10 * time.Second),
	}
}

func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	data = jsonc.ToJSON(data)
	if err := validateJSONDepth(data); err != nil {
		return nil, fmt.Errorf("invalid JSON structure: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// mergeFromMap overlays the keys present in override onto base
func mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}

	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}

	return result
}

// applyEnvOverrides applies VARMSG_* environment variables
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	get := func(name string) (string, error) {
		key := l.envPrefix + "_" + name
		val := os.Getenv(key)
		return val, validateEnvVar(key, val)
	}

	str := map[string]*string{
		"NATS_NAME":        &cfg.NATS.Name,
		"NATS_USERNAME":    &cfg.NATS.Username,
		"NATS_PASSWORD":    &cfg.NATS.Password,
		"NATS_TOKEN":       &cfg.NATS.Token,
		"NATS_CREDS":       &cfg.NATS.CredsFile,
		"DIRECTORY":        &cfg.Directory.Backend,
		"DIRECTORY_SEED":   &cfg.Directory.Seed,
		"PIPELINES_DIR":    &cfg.Pipelines.Dir,
		"PIPELINES_FILE":   &cfg.Pipelines.File,
		"KV_VALUES_BUCKET": &cfg.Directory.ValuesBucket,
		"KV_META_BUCKET":   &cfg.Directory.MetaBucket,
	}
	for name, dst := range str {
		val, err := get(name)
		if err != nil {
			return err
		}
		if val != "" {
			*dst = val
		}
	}

	if val, err := get("NATS_URLS"); err != nil {
		return err
	} else if val != "" {
		cfg.NATS.URLs = strings.Split(val, ",")
	}

	if val, err := get("HTTP_PORT"); err != nil {
		return err
	} else if val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", l.envPrefix+"_HTTP_PORT")
		}
		cfg.HTTP.Port = port
	}

	if val, err := get("SHUTDOWN_TIMEOUT"); err != nil {
		return err
	} else if val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", l.envPrefix+"_SHUTDOWN_TIMEOUT")
		}
		cfg.ShutdownTimeout = Duration(d)
	}

	return nil
}
