package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ukhas/habitat-sub001/errors"
)

// Watcher reloads a configuration file when it changes on disk
type Watcher struct {
	path     string
	loader   *Loader
	onChange func(*Config)
	logger   *slog.Logger
	debounce time.Duration
}

// WatcherOption configures a Watcher
type WatcherOption func(*Watcher)

// WithWatchLogger sets the logger for reload failures
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDebounce sets how long the file must be quiet before it is reloaded
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLoader sets the loader used to re-read the file
func WithLoader(l *Loader) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.loader = l
		}
	}
}

// NewWatcher creates a watcher that calls onChange with every valid
// configuration read from path after a change. Invalid files are logged
// and skipped; the previous configuration stays in effect.
func NewWatcher(path string, onChange func(*Config), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:     filepath.Clean(path),
		loader:   NewLoader(),
		onChange: onChange,
		logger:   slog.Default(),
		debounce: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "config-watcher", "path", w.path)
	return w
}

// Run watches until ctx is cancelled. The containing directory is watched
// so editors that replace the file by rename are noticed.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WrapTransient(err, "Watcher", "Run", "create watcher")
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return errors.WrapInvalid(err, "Watcher", "Run", "watch "+filepath.Dir(w.path))
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Config watcher error", "error", err)

		case <-timer.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.loader.LoadFile(w.path)
	if err != nil {
		w.logger.Error("Ignoring invalid configuration change", "error", err)
		return
	}
	w.logger.Info("Configuration file changed", "sinks", len(cfg.Sinks))
	w.onChange(cfg)
}

// Watch is NewWatcher(path, onChange, opts...).Run(ctx)
func Watch(ctx context.Context, path string, onChange func(*Config), opts ...WatcherOption) error {
	return NewWatcher(path, onChange, opts...).Run(ctx)
}
