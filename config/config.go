package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ukhas/habitat-sub001/errors"
	"github.com/ukhas/habitat-sub001/loader"
)

// Config represents the complete daemon configuration
type Config struct {
	Version string        `json:"version"`
	Log     LogConfig     `json:"log"`
	Metrics MetricsConfig `json:"metrics"`
	NATS    NATSConfig    `json:"nats"`
	Sinks   []SinkConfig  `json:"sinks"`
}

// LogConfig controls the daemon's slog handler and optional log file
type LogConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
}

// MetricsConfig controls the Prometheus and health endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// NATSConfig defines NATS connection settings. No URLs means no connection
// is made and NATS-backed sinks cannot be loaded.
type NATSConfig struct {
	URLs          []string `json:"urls,omitempty"`
	SubjectPrefix string   `json:"subject_prefix,omitempty"`
	MaxReconnects int      `json:"max_reconnects,omitempty"`
	ReconnectWait Duration `json:"reconnect_wait,omitempty"`
	Token         string   `json:"token,omitempty"`
	Username      string   `json:"username,omitempty"`
	Password      string   `json:"password,omitempty"`
}

// SinkConfig names a sink to load and the settings passed to its factory
type SinkConfig struct {
	Name     string          `json:"name"`
	Enabled  *bool           `json:"enabled,omitempty"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

// IsEnabled reports whether the sink should be loaded. Sinks are enabled
// unless explicitly disabled.
func (s SinkConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Duration is a time.Duration that reads "2s" style strings or a number of
// seconds and writes the string form.
type Duration time.Duration

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("duration must be a string or a number of seconds: %s", data)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		NATS: NATSConfig{
			SubjectPrefix: "habitat",
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
		},
		Sinks: []SinkConfig{
			{Name: loader.BuiltinModule + ".LogSink"},
		},
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level must be one of: debug, info, warn, error (got %q)", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return invalid("log.format must be json or text (got %q)", c.Log.Format)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 {
		return invalid("log.max_size_mb and log.max_backups cannot be negative")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return invalid("metrics.port must be between 1 and 65535 (got %d)", c.Metrics.Port)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return invalid("metrics.path must start with / (got %q)", c.Metrics.Path)
		}
	}

	for i, u := range c.NATS.URLs {
		if strings.TrimSpace(u) == "" {
			return invalid("nats.urls[%d] is empty", i)
		}
	}
	if c.NATS.ReconnectWait < 0 {
		return invalid("nats.reconnect_wait cannot be negative")
	}

	seen := make(map[string]bool, len(c.Sinks))
	for i, s := range c.Sinks {
		if err := loader.ValidateName(s.Name); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate", fmt.Sprintf("sinks[%d] name", i))
		}
		if seen[s.Name] {
			return invalid("sinks[%d]: %s is listed twice", i, s.Name)
		}
		seen[s.Name] = true

		settings := bytes.TrimSpace(s.Settings)
		if len(settings) > 0 && settings[0] != '{' && string(settings) != "null" {
			return invalid("sinks[%d]: settings for %s must be an object", i, s.Name)
		}
	}

	return nil
}

func invalid(format string, args ...any) error {
	return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", fmt.Sprintf(format, args...))
}

// EnabledSinks returns the names of the enabled sinks in configuration order
func (c *Config) EnabledSinks() []string {
	names := make([]string, 0, len(c.Sinks))
	for _, s := range c.Sinks {
		if s.IsEnabled() {
			names = append(names, s.Name)
		}
	}
	return names
}

// SinkSettings returns each enabled sink's settings keyed by name
func (c *Config) SinkSettings() map[string]json.RawMessage {
	settings := make(map[string]json.RawMessage, len(c.Sinks))
	for _, s := range c.Sinks {
		if s.IsEnabled() {
			settings[s.Name] = s.Settings
		}
	}
	return settings
}

// NATSURL joins the configured servers into the form nats.Connect expects
func (c *Config) NATSURL() string {
	return strings.Join(c.NATS.URLs, ",")
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// String returns a JSON representation with credentials redacted
func (c *Config) String() string {
	redacted := c.Clone()
	if redacted.NATS.Password != "" {
		redacted.NATS.Password = "[REDACTED]"
	}
	if redacted.NATS.Token != "" {
		redacted.NATS.Token = "[REDACTED]"
	}
	data, err := json.MarshalIndent(redacted, "", "  ")
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "SafeConfig", "Update", "nil check")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}
