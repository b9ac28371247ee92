// Package file provides a sink that appends messages to a rotated JSON Lines file
package file

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ukhas/habitat-sub001/errors"
	"github.com/ukhas/habitat-sub001/loader"
	"github.com/ukhas/habitat-sub001/message"
	"github.com/ukhas/habitat-sub001/sink"
)

// Member is the name the file sink registers under in loader.BuiltinModule
const Member = "JSONLFile"

// Config holds configuration for the file sink
type Config struct {
	Path       string         `json:"path"`
	Types      []message.Type `json:"types"`
	MaxSizeMB  int            `json:"max_size_mb"`
	MaxBackups int            `json:"max_backups"`
	MaxAgeDays int            `json:"max_age_days"`
	Compress   bool           `json:"compress"`
}

// DefaultConfig returns default configuration for the file sink
func DefaultConfig() Config {
	return Config{
		Path:       "/var/lib/habitat/messages.jsonl",
		MaxSizeMB:  100,
		MaxBackups: 3,
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "path is required")
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_size_mb, max_backups and max_age_days cannot be negative")
	}
	return message.ValidateTypes(c.Types)
}

// Output writes one JSON document per line. It is registered as a queued
// sink, so Handle is never called concurrently.
type Output struct {
	config Config
	logger *slog.Logger

	mu     sync.Mutex
	writer *lumberjack.Logger

	messagesWritten atomic.Int64
	bytesWritten    atomic.Int64
}

// NewOutput creates a file sink from its settings. The file is opened by Setup.
func NewOutput(deps loader.Dependencies) (sink.Handler, error) {
	config := DefaultConfig()
	if err := deps.DecodeSettings(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Output{
		config: config,
		logger: deps.GetLoggerWithComponent("file").With("path", config.Path),
	}, nil
}

// Setup creates the output directory and declares interest
func (f *Output) Setup(s *sink.Sink) error {
	if err := os.MkdirAll(filepath.Dir(f.config.Path), 0o755); err != nil {
		return errors.WrapFatal(err, "Output", "Setup", "create output directory")
	}

	f.mu.Lock()
	f.writer = &lumberjack.Logger{
		Filename:   f.config.Path,
		MaxSize:    f.config.MaxSizeMB,
		MaxBackups: f.config.MaxBackups,
		MaxAge:     f.config.MaxAgeDays,
		Compress:   f.config.Compress,
	}
	f.mu.Unlock()

	types := f.config.Types
	if len(types) == 0 {
		types = message.AllTypes()
	}
	return s.SetTypes(types...)
}

// Handle implements sink.Handler
func (f *Output) Handle(m *message.Message) error {
	line, err := json.Marshal(m)
	if err != nil {
		return errors.WrapInvalid(err, "Output", "Handle", "encode message")
	}
	line = append(line, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writer == nil {
		return errors.WrapFatal(errors.ErrClosed, "Output", "Handle", "write message")
	}
	n, err := f.writer.Write(line)
	if err != nil {
		return errors.WrapTransient(err, "Output", "Handle", fmt.Sprintf("write to %s", f.config.Path))
	}

	f.messagesWritten.Add(1)
	f.bytesWritten.Add(int64(n))
	return nil
}

// Rotate starts a new file, keeping the old one as a backup
func (f *Output) Rotate() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writer == nil {
		return errors.WrapFatal(errors.ErrClosed, "Output", "Rotate", "rotate file")
	}
	return f.writer.Rotate()
}

// Close implements sink.Closer
func (f *Output) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writer == nil {
		return nil
	}
	err := f.writer.Close()
	f.writer = nil

	f.logger.Info("File sink closed",
		"messages_written", f.messagesWritten.Load(),
		"bytes_written", f.bytesWritten.Load())
	return errors.Wrap(err, "Output", "Close", "close file")
}

// MessagesWritten returns the number of lines written
func (f *Output) MessagesWritten() int64 {
	return f.messagesWritten.Load()
}

// Register registers the file sink with the given registry
func Register(registry *loader.Registry) error {
	return registry.Register(&loader.Definition{
		Module:      loader.BuiltinModule,
		Member:      Member,
		Discipline:  sink.Queued,
		Factory:     NewOutput,
		Description: "Appends messages to a size-rotated JSON Lines file",
	})
}
