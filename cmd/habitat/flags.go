package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"
)

// defaultConfigPath is read when present; only an explicit --config must exist
const defaultConfigPath = "/etc/habitat/habitat.yaml"

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	ConfigExplicit  bool
	LogLevel        string
	LogFormat       string
	LogFile         string
	Debug           bool
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool

	// set records which flags were given, so only those override the file
	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*CLIConfig, error) {
	cfg := &CLIConfig{set: make(map[string]bool)}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	// Define flags with environment variable fallback
	configDefault := getEnv("HABITAT_CONFIG", "")
	fs.StringVar(&cfg.ConfigPath, "config", configDefault,
		"Path to configuration file, JSON or YAML (env: HABITAT_CONFIG, default "+defaultConfigPath+" if present)")
	fs.StringVar(&cfg.ConfigPath, "c", configDefault, "Shorthand for --config")

	fs.StringVar(&cfg.LogLevel, "log-level", "",
		"Log level: debug, info, warn, error (overrides log.level)")
	fs.StringVar(&cfg.LogFormat, "log-format", "",
		"Log format: json, text (overrides log.format)")
	fs.StringVar(&cfg.LogFile, "log-file", "",
		"Also write logs to this file, rotated (overrides log.file)")

	fs.BoolVar(&cfg.Debug, "debug", getEnvBool("HABITAT_DEBUG", false),
		"Shorthand for --log-level=debug (env: HABITAT_DEBUG)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("HABITAT_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: HABITAT_SHUTDOWN_TIMEOUT)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() { printDetailedHelp(fs, stderr) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 0 {
		return nil, fmt.Errorf("unexpected positional arguments: %v", fs.Args())
	}

	fs.Visit(func(f *flag.Flag) { cfg.set[f.Name] = true })
	cfg.ConfigExplicit = cfg.set["config"] || cfg.set["c"] || configDefault != ""
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = defaultConfigPath
	}

	if cfg.Debug {
		cfg.LogLevel = "debug"
		cfg.set["log-level"] = true
	}

	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigExplicit {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	if cfg.LogLevel != "" && !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	if cfg.LogFormat != "" && !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}

	return nil
}

func printDetailedHelp(fs *flag.FlagSet, w io.Writer) {
	_, _ = fmt.Fprintf(w, `%s - in-process telemetry message router

Usage: %s [options]

Options:
`, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Signals:
  SIGHUP           re-read the configuration and reload every sink
  SIGINT, SIGTERM  shut down, draining queued sinks

Examples:
  # Run with custom config
  %[1]s --config=/path/to/habitat.yaml

  # Run with debug logging
  %[1]s --log-level=debug --log-format=text

  # Validate configuration only
  %[1]s --config=habitat.yaml --validate

Version: %[2]s
Build: %[3]s
`, appName, Version, BuildTime)
}

// Environment variable helper functions
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
