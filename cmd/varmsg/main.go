// Package main is the varmsg entry point: it loads the service config and
// pipeline definitions, opens the variable directory and runs the
// scheduler until SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/c360/varmsg/api"
	"github.com/c360/varmsg/config"
	"github.com/c360/varmsg/directory"
	"github.com/c360/varmsg/directory/natskv"
	"github.com/c360/varmsg/errors"
	"github.com/c360/varmsg/health"
	"github.com/c360/varmsg/message"
	"github.com/c360/varmsg/metric"
	"github.com/c360/varmsg/natsclient"
	"github.com/c360/varmsg/output"
	"github.com/c360/varmsg/output/file"
	"github.com/c360/varmsg/output/mqueue"
	"github.com/c360/varmsg/output/stdout"
	"github.com/c360/varmsg/pkg/tlsutil"
	"github.com/c360/varmsg/render"
	"github.com/c360/varmsg/scheduler"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "varmsg"
)

// errUsage makes main print usage and exit 2
var errUsage = errors.New("usage")

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			_, _ = fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cli, fs, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if cli.ShowHelp {
		fs.Usage()
		return nil
	}
	if cli.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if err := validateFlags(cli); err != nil {
		fs.Usage()
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	logger := setupLogger(cli.LogLevel, cli.LogFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfig(cli)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	defs := loadDefinitions(cfg, logger)
	if len(defs) == 0 {
		fs.Usage()
		return fmt.Errorf("%w: no pipeline definition loaded", errUsage)
	}

	if cli.Validate {
		logger.Info("Configuration is valid", "pipelines", len(defs))
		return nil
	}

	logger.Info("Starting varmsg",
		"version", Version,
		"build_time", BuildTime,
		"pipelines", len(defs),
		"directory", cfg.Directory.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, cli.Verbose, defs, logger)
}

// loadConfig layers the optional service config file, VARMSG_* env and
// command-line overrides, then validates
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	if cli.ConfigPath != "" {
		loader.AddLayer(cli.ConfigPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	// -d and -f replace the configured pipeline locations together
	if cli.PipelineDir != "" || cli.PipelineFile != "" {
		cfg.Pipelines = config.PipelinesConfig{Dir: cli.PipelineDir, File: cli.PipelineFile}
	}
	if cli.Directory != "" {
		cfg.Directory.Backend = cli.Directory
	}
	if cli.Seed != "" {
		cfg.Directory.Seed = cli.Seed
	}
	if cli.NATSURL != "" {
		cfg.NATS.URLs = strings.Split(cli.NATSURL, ",")
	}
	if cli.HTTPPort >= 0 {
		cfg.HTTP.Port = cli.HTTPPort
	}
	if cli.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = config.Duration(cli.ShutdownTimeout)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDefinitions reads every pipeline file. Bad files and definitions
// are logged and skipped.
func loadDefinitions(cfg *config.Config, logger *slog.Logger) []*message.Definition {
	cfgs, err := config.LoadPipelines(cfg.Pipelines.Dir, cfg.Pipelines.File)
	if err != nil {
		logger.Warn("Some pipeline files were skipped", "error", err)
	}

	defs := make([]*message.Definition, 0, len(cfgs))
	for _, pc := range cfgs {
		d, err := message.New(pc)
		if err != nil {
			logger.Warn("Pipeline rejected", "source", pc.Source, "prefix", pc.Prefix, "error", err)
			continue
		}
		defs = append(defs, d)
	}
	return defs
}

// serve owns every resource from the NATS connection to the HTTP server
// and releases them in reverse order once ctx is cancelled
func serve(ctx context.Context, cfg *config.Config, verbose bool, defs []*message.Definition, logger *slog.Logger) error {
	registry := metric.NewMetricsRegistry()
	core := registry.CoreMetrics()
	pipelineMetrics, err := metric.NewPipelineMetrics(registry)
	if err != nil {
		return fmt.Errorf("register pipeline metrics: %w", err)
	}
	monitor := health.NewMonitor()

	var client *natsclient.Client
	if needsNATS(cfg, defs) {
		client, err = connectNATS(ctx, cfg, core, logger)
		if err != nil {
			return err
		}
		defer closeWithTimeout(cfg, logger, "nats", client.Close)
		monitor.Register("nats", natsCheck(client, core))
	}

	dir, err := openDirectory(ctx, cfg, client, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := dir.Close(); err != nil {
			logger.Warn("Close directory failed", "error", err)
		}
	}()

	outOpts := []output.Option{
		output.WithLogger(logger),
		output.WithFactory(message.OutputStdout, stdout.Factory(os.Stdout)),
		output.WithFactory(message.OutputFile, file.NewFactory(logger)),
	}
	if client != nil {
		outOpts = append(outOpts, output.WithFactory(message.OutputMQueue, mqueue.Factory(client, logger)))
	}
	dispatcher := output.NewDispatcher(outOpts...)
	defer func() {
		if err := dispatcher.Close(); err != nil {
			logger.Warn("Close sinks failed", "error", err)
		}
	}()

	sched, err := scheduler.New(dir, dispatcher, defs,
		scheduler.WithLogger(logger),
		scheduler.WithMetrics(pipelineMetrics),
		scheduler.WithCoreMetrics(core),
		scheduler.WithVerbose(verbose),
		scheduler.WithHeaders(render.NewHeaders(ctx, logger)),
	)
	if err != nil {
		return err
	}
	monitor.Register("scheduler", sched.Health)

	if err := sched.Setup(ctx); err != nil {
		return err
	}

	var srv *api.Server
	if cfg.HTTP.Port > 0 {
		tlsConfig, err := tlsutil.LoadServer(cfg.HTTP.TLS)
		if err != nil {
			return err
		}
		srv = api.NewServer(cfg.HTTP.Port, api.NewRouter(sched, registry, monitor, logger), logger, api.WithTLS(tlsConfig))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	if srv != nil {
		g.Go(func() error { return srv.Serve(gctx, cfg.ShutdownTimeout.Std()) })
	}

	// A failing HTTP server cancels gctx and so stops the scheduler too
	err = g.Wait()
	logger.Info("Shutting down", "timeout", cfg.ShutdownTimeout.Std())
	return err
}

func needsNATS(cfg *config.Config, defs []*message.Definition) bool {
	if cfg.Directory.Backend == config.DirectoryNATS {
		return true
	}
	for _, d := range defs {
		if d.Output == message.OutputMQueue {
			return true
		}
	}
	return false
}

func connectNATS(ctx context.Context, cfg *config.Config, core *metric.Metrics, logger *slog.Logger) (*natsclient.Client, error) {
	var connected atomic.Bool
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(logger),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithHealthChangeCallback(func(healthy bool) {
			core.RecordNATSStatus(healthy)
			if healthy && connected.Swap(true) {
				core.RecordNATSReconnect()
			}
		}),
	}
	if cfg.NATS.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(cfg.NATS.ReconnectWait.Std()))
	}
	if cfg.NATS.Name != "" {
		opts = append(opts, natsclient.WithName(cfg.NATS.Name))
	}
	switch {
	case cfg.NATS.CredsFile != "":
		opts = append(opts, natsclient.WithCredsFile(cfg.NATS.CredsFile))
	case cfg.NATS.Token != "":
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	case cfg.NATS.Username != "":
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}

	tlsConfig, err := tlsutil.LoadClient(cfg.NATS.TLS)
	if err != nil {
		return nil, err
	}
	opts = append(opts, natsclient.WithTLSConfig(tlsConfig))

	client, err := natsclient.NewClient(strings.Join(cfg.NATS.URLs, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	logger.Info("Connecting to NATS", "url", client.URL())
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		_ = client.Close(context.Background())
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}
	return client, nil
}

func natsCheck(client *natsclient.Client, core *metric.Metrics) health.CheckFunc {
	return func() health.Status {
		status := client.Status()
		core.RecordCircuitBreakerState(status == natsclient.StatusCircuitOpen)
		if status != natsclient.StatusConnected {
			return health.NewUnhealthy("nats", status.String())
		}
		if rtt, err := client.RTT(); err == nil {
			core.RecordNATSRTT(rtt)
		}
		return health.NewHealthy("nats", status.String())
	}
}

func openDirectory(ctx context.Context, cfg *config.Config, client *natsclient.Client, logger *slog.Logger) (directory.Directory, error) {
	switch cfg.Directory.Backend {
	case config.DirectoryMemory:
		m := directory.NewMemory(logger)
		if cfg.Directory.Seed != "" {
			n, err := directory.LoadSeed(m, cfg.Directory.Seed)
			if err != nil {
				_ = m.Close()
				return nil, err
			}
			logger.Info("Memory directory seeded", "seed", cfg.Directory.Seed, "vars", n)
		}
		return m, nil
	default:
		d, err := natskv.New(ctx, client, natskv.Config{
			ValuesBucket: cfg.Directory.ValuesBucket,
			MetaBucket:   cfg.Directory.MetaBucket,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("open NATS KV directory: %w", err)
		}
		return d, nil
	}
}

func closeWithTimeout(cfg *config.Config, logger *slog.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Std())
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Warn("Shutdown step failed", "step", name, "error", err)
	}
}
