package main

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

// CLIConfig holds command-line configuration. Zero values leave the
// service config file (or its defaults) in charge.
type CLIConfig struct {
	ConfigPath      string
	PipelineDir     string
	PipelineFile    string
	Verbose         bool
	LogLevel        string
	LogFormat       string
	Directory       string
	Seed            string
	NATSURL         string
	HTTPPort        int
	ShutdownTimeout time.Duration
	Validate        bool
	ShowVersion     bool
	ShowHelp        bool
}

func parseFlags(args []string) (*CLIConfig, *pflag.FlagSet, error) {
	cfg := &CLIConfig{}
	fs := pflag.NewFlagSet(appName, pflag.ContinueOnError)

	fs.StringVarP(&cfg.ConfigPath, "config", "c",
		getEnv("VARMSG_CONFIG", ""),
		"Service configuration file (env: VARMSG_CONFIG)")
	fs.StringVarP(&cfg.PipelineDir, "config-dir", "d",
		getEnv("VARMSG_CONFIG_DIR", ""),
		"Directory of pipeline definition files (env: VARMSG_CONFIG_DIR)")
	fs.StringVarP(&cfg.PipelineFile, "config-file", "f",
		getEnv("VARMSG_CONFIG_FILE", ""),
		"Single pipeline definition file (env: VARMSG_CONFIG_FILE)")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v",
		getEnvBool("VARMSG_VERBOSE", false),
		"Log every message sent (env: VARMSG_VERBOSE)")
	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("VARMSG_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: VARMSG_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("VARMSG_LOG_FORMAT", "json"),
		"Log format: json, text (env: VARMSG_LOG_FORMAT)")
	fs.StringVar(&cfg.Directory, "directory", "",
		"Variable directory backend: memory, nats")
	fs.StringVar(&cfg.Seed, "seed", "",
		"JSON seed file for the memory directory")
	fs.StringVar(&cfg.NATSURL, "nats-url", "",
		"NATS server URL(s), comma separated")
	fs.IntVar(&cfg.HTTPPort, "http-port", -1,
		"Status/control API port, 0 to disable")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", 0,
		"Graceful shutdown timeout")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and pipelines, then exit")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVarP(&cfg.ShowHelp, "help", "h", false, "Show help information")

	fs.Usage = func() { printUsage(fs) }

	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	return cfg, fs, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port: %d", cfg.HTTPPort)
	}
	if cfg.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}
	return nil
}

func printUsage(fs *pflag.FlagSet) {
	_, _ = fmt.Fprintf(os.Stderr, `%s - variable message generator

Usage: %s [options]

At least one of -d or -f must name a pipeline definition.

Options:
`, appName, os.Args[0])
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # All pipelines in /etc/varmsg against a NATS KV directory
  %[1]s -d /etc/varmsg --nats-url nats://localhost:4222

  # One pipeline against a seeded in-memory directory, logging each message
  %[1]s -f gps.json --directory memory --seed vars.json -v

  # Check pipeline files only
  %[1]s -d /etc/varmsg --validate

Version: %[2]s
Build: %[3]s
`, os.Args[0], Version, BuildTime)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
