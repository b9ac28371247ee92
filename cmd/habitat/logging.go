package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ukhas/habitat-sub001/config"
)

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogger builds the daemon logger. The level is read through levelVar
// so a configuration reload can change it. When cfg.File is set, records are
// also written to that file, rotated by size. The returned func closes it.
func setupLogger(cfg config.LogConfig, levelVar *slog.LevelVar, stdout io.Writer) (*slog.Logger, func() error) {
	levelVar.Set(parseLevel(cfg.Level))

	var out io.Writer = stdout
	closer := func() error { return nil }
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		out = io.MultiWriter(stdout, file)
		closer = file.Close
	}

	opts := &slog.HandlerOptions{
		Level:     levelVar,
		AddSource: strings.EqualFold(cfg.Level, "debug"),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler).With(
		"service", appName,
		"version", Version,
		"pid", os.Getpid(),
	), closer
}
