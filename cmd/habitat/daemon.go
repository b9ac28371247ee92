package main

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/ukhas/habitat-sub001/config"
	"github.com/ukhas/habitat-sub001/health"
	"github.com/ukhas/habitat-sub001/natsclient"
	"github.com/ukhas/habitat-sub001/router"
)

// daemon applies configuration to a running router. The config watcher and
// SIGHUP both end up here, so apply is serialised.
type daemon struct {
	mu       sync.Mutex
	router   *router.Router
	config   *config.SafeConfig
	loader   *config.Loader
	cli      *CLIConfig
	levelVar *slog.LevelVar
	nats     *natsclient.Client
	logger   *slog.Logger
}

// apply makes the router match cfg: settings are replaced, sinks no longer
// enabled are unloaded, new ones loaded, and loaded sinks whose settings
// changed are reloaded. Every step runs even if an earlier one fails.
func (d *daemon) apply(cfg *config.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	applyCLIOverrides(d.cli, cfg)
	if err := d.config.Update(cfg); err != nil {
		return err
	}
	d.levelVar.Set(parseLevel(cfg.Log.Level))

	var errs []error
	changed := d.router.SetSettings(cfg.SinkSettings())
	if err := d.router.Reconcile(cfg.EnabledSinks()); err != nil {
		errs = append(errs, err)
	}
	for _, name := range changed {
		if _, err := d.router.Find(name); err != nil {
			continue
		}
		if err := d.router.Reload(name); err != nil {
			errs = append(errs, err)
		}
	}

	d.logger.Info("Configuration applied",
		"sinks", d.router.Len(),
		"settings_changed", len(changed),
		"errors", len(errs))
	return errors.Join(errs...)
}

// hangup re-reads the configuration file, if any, and reloads every sink
func (d *daemon) hangup() error {
	var errs []error

	if d.cli.ConfigExplicit || fileExists(d.cli.ConfigPath) {
		cfg, err := d.loader.LoadFile(d.cli.ConfigPath)
		if err != nil {
			d.logger.Error("Keeping previous configuration", "error", err)
			errs = append(errs, err)
		} else if err := d.apply(cfg); err != nil {
			errs = append(errs, err)
		}
	}

	if err := d.router.ReloadAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// health combines the router's sinks with the NATS connection
func (d *daemon) health() health.Status {
	statuses := []health.Status{d.router.Health()}
	if d.nats != nil {
		if d.nats.IsHealthy() {
			statuses = append(statuses, health.NewHealthy("nats", d.nats.Status().String()))
		} else {
			statuses = append(statuses, health.NewUnhealthy("nats", d.nats.Status().String()))
		}
	}
	return health.Aggregate(appName, statuses)
}

// applyCLIOverrides lets flags given on the command line win over the file
func applyCLIOverrides(cli *CLIConfig, cfg *config.Config) {
	if cli == nil {
		return
	}
	if cli.set["log-level"] {
		cfg.Log.Level = cli.LogLevel
	}
	if cli.set["log-format"] {
		cfg.Log.Format = cli.LogFormat
	}
	if cli.set["log-file"] {
		cfg.Log.File = cli.LogFile
	}
}
