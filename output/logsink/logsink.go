// Package logsink provides a sink that writes every message to the log
package logsink

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ukhas/habitat-sub001/errors"
	"github.com/ukhas/habitat-sub001/loader"
	"github.com/ukhas/habitat-sub001/message"
	"github.com/ukhas/habitat-sub001/sink"
)

// Member is the name LogSink registers under in loader.BuiltinModule
const Member = "LogSink"

// Config holds configuration for the log sink
type Config struct {
	Level string         `json:"level"`
	Types []message.Type `json:"types"`
}

// DefaultConfig logs every type at debug level
func DefaultConfig() Config {
	return Config{Level: "debug"}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if _, err := parseLevel(c.Level); err != nil {
		return err
	}
	return message.ValidateTypes(c.Types)
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"level must be one of: debug, info, warn, error")
	}
}

// Output logs messages as structured records
type Output struct {
	logger *slog.Logger
	level  slog.Level
	types  []message.Type
}

// NewOutput creates a log sink from its settings
func NewOutput(deps loader.Dependencies) (sink.Handler, error) {
	config := DefaultConfig()
	if err := deps.DecodeSettings(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	level, _ := parseLevel(config.Level)
	types := config.Types
	if len(types) == 0 {
		types = message.AllTypes()
	}

	return &Output{
		logger: deps.GetLoggerWithComponent("logsink"),
		level:  level,
		types:  types,
	}, nil
}

// Setup implements sink.Handler
func (o *Output) Setup(s *sink.Sink) error {
	return s.SetTypes(o.types...)
}

// Handle implements sink.Handler
func (o *Output) Handle(m *message.Message) error {
	o.logger.Log(context.Background(), o.level, "Message",
		"id", m.ID().String(),
		"type", m.Type().String(),
		"source", m.Source().String(),
		"created", m.Time(),
		"data", m.Data(),
	)
	return nil
}

// Register registers the log sink with the given registry
func Register(registry *loader.Registry) error {
	return registry.Register(&loader.Definition{
		Module:      loader.BuiltinModule,
		Member:      Member,
		Discipline:  sink.Inline,
		Factory:     NewOutput,
		Description: "Logs every message with slog",
	})
}
