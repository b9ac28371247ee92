package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ukhas/habitat-sub001/errors"
)

// DefaultEnvPrefix is the prefix of environment variable overrides
const DefaultEnvPrefix = "HABITAT"

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:     []string{},
		validation: true,
		envPrefix:  DefaultEnvPrefix,
		lookupEnv:  os.LookupEnv,
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

// SetEnvPrefix changes the prefix of environment overrides
func (l *Loader) SetEnvPrefix(prefix string) {
	l.envPrefix = prefix
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges the defaults, every layer and the environment, in that order
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, err
		}
		merged = deepMergeMaps(merged, raw)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "encode merged layers")
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "decode configuration")
	}

	if err := l.applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// loadRaw reads one layer as a generic map. Files ending in .yaml or .yml
// are YAML; anything else is JSON.
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Loader", "loadRaw", "read "+path)
		}
		return nil, errors.WrapTransient(err, "Loader", "loadRaw", "read "+path)
	}

	raw := make(map[string]any)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "loadRaw", "parse YAML "+path)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "loadRaw", "parse JSON "+path)
		}
	}
	return raw, nil
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence.
// Lists are replaced, not merged.
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base)+len(override))
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

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	env := func(name string) (string, bool) {
		val, ok := l.lookupEnv(l.envPrefix + "_" + name)
		return val, ok && val != ""
	}

	// Log overrides
	if val, ok := env("LOG_LEVEL"); ok {
		cfg.Log.Level = val
	}
	if val, ok := env("LOG_FORMAT"); ok {
		cfg.Log.Format = val
	}
	if val, ok := env("LOG_FILE"); ok {
		cfg.Log.File = val
	}

	// Metrics overrides
	if val, ok := env("METRICS_ENABLED"); ok {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return l.envError("METRICS_ENABLED", err)
		}
		cfg.Metrics.Enabled = enabled
	}
	if val, ok := env("METRICS_PORT"); ok {
		port, err := strconv.Atoi(val)
		if err != nil {
			return l.envError("METRICS_PORT", err)
		}
		cfg.Metrics.Port = port
	}

	// NATS overrides
	if val, ok := env("NATS_URLS"); ok {
		cfg.NATS.URLs = strings.Split(val, ",")
	}
	if val, ok := env("NATS_SUBJECT_PREFIX"); ok {
		cfg.NATS.SubjectPrefix = val
	}
	if val, ok := env("NATS_TOKEN"); ok {
		cfg.NATS.Token = val
	}
	if val, ok := env("NATS_USERNAME"); ok {
		cfg.NATS.Username = val
	}
	if val, ok := env("NATS_PASSWORD"); ok {
		cfg.NATS.Password = val
	}

	return nil
}

func (l *Loader) envError(name string, err error) error {
	return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", fmt.Sprintf("parse %s_%s", l.envPrefix, name))
}

// Load reads path with a default loader
func Load(path string) (*Config, error) {
	return NewLoader().LoadFile(path)
}
