// Package main implements the habitat daemon: a message router whose sinks
// are chosen by configuration and can be reloaded at runtime.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ukhas/habitat-sub001/config"
	"github.com/ukhas/habitat-sub001/health"
	"github.com/ukhas/habitat-sub001/loader"
	"github.com/ukhas/habitat-sub001/metric"
	"github.com/ukhas/habitat-sub001/natsclient"
	"github.com/ukhas/habitat-sub001/router"
	"github.com/ukhas/habitat-sub001/sinkregistry"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "habitat"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cliCfg, err := parseFlags(args, stderr)
	if err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		return nil
	}

	cfgLoader := config.NewLoader()
	cfg, err := initializeConfiguration(cfgLoader, cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		_, _ = fmt.Fprintf(stdout, "Configuration is valid (%d sinks enabled)\n", len(cfg.EnabledSinks()))
		return nil
	}

	levelVar := new(slog.LevelVar)
	logger, closeLog := setupLogger(cfg.Log, levelVar, stdout)
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	slog.Info("Starting habitat",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsRegistry := metric.NewMetricsRegistry()
	monitor := health.NewMonitor()

	natsClient, err := connectToNATS(ctx, cfg, metricsRegistry, monitor, logger)
	if err != nil {
		return err
	}
	if natsClient != nil {
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = natsClient.Close(closeCtx)
		}()
	}

	registry := loader.NewRegistry()
	if err := sinkregistry.Register(registry); err != nil {
		return fmt.Errorf("register sinks: %w", err)
	}
	slog.Info("Sink definitions registered", "modules", registry.Modules(), "count", len(registry.Definitions()))

	rt := router.New(registry,
		router.WithLogger(logger),
		router.WithMetrics(metricsRegistry),
		router.WithHealth(monitor),
		router.WithDependencies(loader.Dependencies{
			NATSClient:      natsClient,
			MetricsRegistry: metricsRegistry,
			Logger:          logger,
		}),
	)

	d := &daemon{
		router:   rt,
		config:   config.NewSafeConfig(cfg),
		loader:   cfgLoader,
		cli:      cliCfg,
		levelVar: levelVar,
		nats:     natsClient,
		logger:   logger.With("component", "daemon"),
	}

	if err := d.apply(cfg); err != nil {
		// A sink that fails to load does not stop the others
		slog.Error("Some sinks failed to load", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		metricsServer := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, metricsRegistry, d.health)
		g.Go(metricsServer.Start)
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Stop(stopCtx)
		})
		slog.Info("Metrics server started", "address", metricsServer.Address())
	}

	if cliCfg.ConfigExplicit || fileExists(cliCfg.ConfigPath) {
		g.Go(func() error {
			err := config.Watch(gctx, cliCfg.ConfigPath, func(next *config.Config) {
				if err := d.apply(next); err != nil {
					slog.Error("Configuration reload incomplete", "error", err)
				}
			}, config.WithLoader(config.NewLoader()), config.WithWatchLogger(logger))
			if err != nil {
				// SIGHUP still reloads
				slog.Warn("Configuration file is not watched", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		runSignalLoop(gctx, d)
		return nil
	})

	slog.Info("habitat started", "router", rt.String())
	<-gctx.Done()
	slog.Info("Shutting down")

	shutdownErr := shutdown(rt, cliCfg.ShutdownTimeout)
	if err := g.Wait(); err != nil {
		slog.Error("Background task failed", "error", err)
	}

	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}
	slog.Info("habitat shutdown complete", "messages", rt.MessageCount())
	return nil
}

// initializeConfiguration loads the configuration file, or the defaults when
// no file was asked for and the default path does not exist
func initializeConfiguration(l *config.Loader, cliCfg *CLIConfig) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if cliCfg.ConfigExplicit || fileExists(cliCfg.ConfigPath) {
		cfg, err = l.LoadFile(cliCfg.ConfigPath)
	} else {
		cfg, err = l.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	applyCLIOverrides(cliCfg, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// connectToNATS connects when NATS URLs are configured and returns nil otherwise
func connectToNATS(
	ctx context.Context,
	cfg *config.Config,
	registry *metric.MetricsRegistry,
	monitor *health.Monitor,
	logger *slog.Logger,
) (*natsclient.Client, error) {
	if len(cfg.NATS.URLs) == 0 {
		slog.Info("No NATS servers configured; NATS sinks are unavailable")
		return nil, nil
	}

	opts := []natsclient.ClientOption{
		natsclient.WithName(appName),
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(registry),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithHealthChangeCallback(func(healthy bool) {
			if healthy {
				monitor.UpdateHealthy("nats", "connected")
			} else {
				monitor.UpdateDegraded("nats", "disconnected")
			}
		}),
	}
	if wait := cfg.NATS.ReconnectWait.Std(); wait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(wait))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}

	client, err := natsclient.NewClient(cfg.NATSURL(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	slog.Info("Connecting to NATS", "url", cfg.NATSURL())
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}

	return client, nil
}

// runSignalLoop blocks until ctx is done, handling SIGHUP as a reload
func runSignalLoop(ctx context.Context, d *daemon) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			slog.Info("Received SIGHUP, reloading")
			if err := d.hangup(); err != nil {
				slog.Error("Reload incomplete", "error", err)
			}
		}
	}
}

// shutdown stops the router, giving queued sinks up to timeout to drain
func shutdown(rt *router.Router, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- rt.Shutdown() }()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("router shutdown timeout after %v", timeout)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
