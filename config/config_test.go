package config

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukhas/habitat-sub001/errors"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"habitat.sinks.LogSink"}, cfg.EnabledSinks())
	assert.Empty(t, cfg.NATS.URLs)
	assert.Equal(t, 2*time.Second, cfg.NATS.ReconnectWait.Std())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad log level", func(c *Config) { c.Log.Level = "chatty" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"negative backups", func(c *Config) { c.Log.MaxBackups = -1 }, "log.max_size_mb"},
		{"metrics port", func(c *Config) { c.Metrics.Port = 0 }, "metrics.port"},
		{"metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "metrics.path"},
		{"empty nats url", func(c *Config) { c.NATS.URLs = []string{"nats://a:4222", " "} }, "nats.urls[1]"},
		{"negative reconnect wait", func(c *Config) { c.NATS.ReconnectWait = Duration(-time.Second) }, "reconnect_wait"},
		{"empty sink name", func(c *Config) { c.Sinks = []SinkConfig{{Name: ""}} }, "sinks[0]"},
		{"bad sink name", func(c *Config) { c.Sinks = []SinkConfig{{Name: "habitat..LogSink"}} }, "sinks[0]"},
		{"duplicate sink", func(c *Config) {
			c.Sinks = []SinkConfig{{Name: "a.B"}, {Name: "a.B"}}
		}, "listed twice"},
		{"settings not an object", func(c *Config) {
			c.Sinks = []SinkConfig{{Name: "a.B", Settings: json.RawMessage(`[1,2]`)}}
		}, "must be an object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_MetricsDisabledSkipsPortCheck(t *testing.T) {
	cfg := Default()
	cfg.Metrics.Enabled = false
	cfg.Metrics.Port = 0
	assert.NoError(t, cfg.Validate())
}

func TestConfig_SinkHelpers(t *testing.T) {
	off := false
	cfg := Default()
	cfg.Sinks = []SinkConfig{
		{Name: "habitat.sinks.LogSink"},
		{Name: "habitat.sinks.Counter", Enabled: &off},
		{Name: "habitat.sinks.JSONLFile", Settings: json.RawMessage(`{"path":"/tmp/x.jsonl"}`)},
	}

	assert.Equal(t, []string{"habitat.sinks.LogSink", "habitat.sinks.JSONLFile"}, cfg.EnabledSinks())

	settings := cfg.SinkSettings()
	assert.Len(t, settings, 2)
	assert.JSONEq(t, `{"path":"/tmp/x.jsonl"}`, string(settings["habitat.sinks.JSONLFile"]))
	assert.Nil(t, settings["habitat.sinks.LogSink"])
	_, disabled := settings["habitat.sinks.Counter"]
	assert.False(t, disabled)
}

func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1m30s"`), &d))
	assert.Equal(t, 90*time.Second, d.Std())

	require.NoError(t, json.Unmarshal([]byte(`2.5`), &d))
	assert.Equal(t, 2500*time.Millisecond, d.Std())

	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))

	out, err := json.Marshal(Duration(3 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"3s"`, string(out))
}

func TestConfig_CloneAndString(t *testing.T) {
	cfg := Default()
	cfg.NATS.URLs = []string{"nats://localhost:4222"}
	cfg.NATS.Password = "hunter2"
	cfg.NATS.Token = "s3cret"

	clone := cfg.Clone()
	clone.NATS.URLs[0] = "nats://elsewhere:4222"
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URLs[0])

	s := cfg.String()
	assert.NotContains(t, s, "hunter2")
	assert.NotContains(t, s, "s3cret")
	assert.Contains(t, s, "[REDACTED]")
	assert.Equal(t, "hunter2", cfg.NATS.Password, "String must not mutate the config")
}

func TestSafeConfig(t *testing.T) {
	sc := NewSafeConfig(nil)
	assert.Equal(t, "info", sc.Get().Log.Level)

	got := sc.Get()
	got.Log.Level = "debug"
	assert.Equal(t, "info", sc.Get().Log.Level, "Get returns a copy")

	next := Default()
	next.Log.Level = "warn"
	require.NoError(t, sc.Update(next))
	assert.Equal(t, "warn", sc.Get().Log.Level)

	bad := Default()
	bad.Log.Format = "xml"
	assert.Error(t, sc.Update(bad))
	assert.Error(t, sc.Update(nil))
	assert.Equal(t, "warn", sc.Get().Log.Level)
}

func TestConfig_NATSURL(t *testing.T) {
	cfg := Default()
	cfg.NATS.URLs = []string{"nats://a:4222", "nats://b:4222"}
	assert.Equal(t, "nats://a:4222,nats://b:4222", cfg.NATSURL())
	assert.True(t, strings.HasPrefix(cfg.NATSURL(), "nats://a"))
}
