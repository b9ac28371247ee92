// Package natspub provides a sink that republishes messages onto NATS subjects
package natspub

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ukhas/habitat-sub001/errors"
	"github.com/ukhas/habitat-sub001/loader"
	"github.com/ukhas/habitat-sub001/message"
	"github.com/ukhas/habitat-sub001/pkg/retry"
	"github.com/ukhas/habitat-sub001/sink"
)

// Member is the name the NATS publisher registers under in loader.BuiltinModule
const Member = "NATSPublisher"

// Publisher is the subset of natsclient.Client the sink needs
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// StreamPublisher is a Publisher that can also publish through JetStream
// and wait for the stream's acknowledgement
type StreamPublisher interface {
	Publisher
	EnsureStream(ctx context.Context, name string, subjects []string) error
	PublishToStream(ctx context.Context, subject string, data []byte) error
}

// Config holds configuration for the NATS publisher. When Stream is set,
// messages go through JetStream into that stream, created on setup to
// capture "<prefix>.>".
type Config struct {
	SubjectPrefix  string         `json:"subject_prefix"`
	Stream         string         `json:"stream,omitempty"`
	Types          []message.Type `json:"types"`
	MaxAttempts    int            `json:"max_attempts"`
	RetryBackoff   string         `json:"retry_backoff"`
	PublishTimeout string         `json:"publish_timeout"`
}

// DefaultConfig returns default configuration for the NATS publisher
func DefaultConfig() Config {
	return Config{
		SubjectPrefix:  "habitat",
		MaxAttempts:    3,
		RetryBackoff:   "100ms",
		PublishTimeout: "5s",
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.SubjectPrefix == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "subject_prefix is required")
	}
	if strings.ContainsAny(c.SubjectPrefix, " \t*>") || strings.HasSuffix(c.SubjectPrefix, ".") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"subject_prefix must be a literal subject without wildcards or trailing dot")
	}
	if strings.ContainsAny(c.Stream, " \t.*>/\\") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"stream must not contain spaces, dots, wildcards or path separators")
	}
	if c.MaxAttempts < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "max_attempts must be at least 1")
	}
	if _, err := parseDuration(c.RetryBackoff, "retry_backoff"); err != nil {
		return err
	}
	if d, err := parseDuration(c.PublishTimeout, "publish_timeout"); err != nil {
		return err
	} else if d <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "publish_timeout must be positive")
	}
	return message.ValidateTypes(c.Types)
}

func parseDuration(s, field string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			field+" must be a non-negative duration")
	}
	return d, nil
}

// Output publishes each message as JSON on "<prefix>.<type>", e.g.
// habitat.listener_telem. It is registered as a queued sink so a slow
// broker never stalls the producer.
type Output struct {
	config    Config
	publisher Publisher
	stream    StreamPublisher
	logger    *slog.Logger
	retry     retry.Config
	timeout   time.Duration

	published atomic.Int64
	failed    atomic.Int64
}

// New creates a publisher sink over an existing connection
func New(config Config, publisher Publisher, logger *slog.Logger) (*Output, error) {
	if publisher == nil {
		return nil, errors.WrapFatal(errors.ErrNoConnection, "Output", "New", "publisher check")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	backoff, _ := parseDuration(config.RetryBackoff, "retry_backoff")
	timeout, _ := parseDuration(config.PublishTimeout, "publish_timeout")

	rc := retry.DefaultConfig()
	rc.MaxAttempts = config.MaxAttempts
	if backoff > 0 {
		rc.InitialDelay = backoff
		if rc.MaxDelay < backoff {
			rc.MaxDelay = backoff
		}
	}
	rc.Retryable = errors.IsTransient

	o := &Output{
		config:    config,
		publisher: publisher,
		logger:    logger,
		retry:     rc,
		timeout:   timeout,
	}
	if config.Stream != "" {
		sp, ok := publisher.(StreamPublisher)
		if !ok {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Output", "New",
				"stream is set but the publisher does not support JetStream")
		}
		o.stream = sp
	}
	return o, nil
}

// NewOutput creates a publisher sink from its settings and the shared NATS client
func NewOutput(deps loader.Dependencies) (sink.Handler, error) {
	config := DefaultConfig()
	if err := deps.DecodeSettings(&config); err != nil {
		return nil, err
	}
	if deps.NATSClient == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Output", "NewOutput", "NATS client check")
	}
	return New(config, deps.NATSClient, deps.GetLoggerWithComponent("natspub"))
}

// Subject returns the subject messages of type t are published on
func (o *Output) Subject(t message.Type) string {
	return o.config.SubjectPrefix + "." + strings.ToLower(t.String())
}

// Setup implements sink.Handler
func (o *Output) Setup(s *sink.Sink) error {
	if o.stream != nil {
		ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		defer cancel()
		if err := o.stream.EnsureStream(ctx, o.config.Stream, []string{o.config.SubjectPrefix + ".>"}); err != nil {
			return err
		}
	}

	types := o.config.Types
	if len(types) == 0 {
		types = message.AllTypes()
	}
	return s.SetTypes(types...)
}

// Handle implements sink.Handler
func (o *Output) Handle(m *message.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		o.failed.Add(1)
		return errors.WrapInvalid(err, "Output", "Handle", "encode message")
	}

	subject := o.Subject(m.Type())
	err = retry.Do(context.Background(), o.retry, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		defer cancel()
		if o.stream != nil {
			return o.stream.PublishToStream(ctx, subject, data)
		}
		return o.publisher.Publish(ctx, subject, data)
	})
	if err != nil {
		o.failed.Add(1)
		return errors.Wrap(err, "Output", "Handle", "publish to "+subject)
	}

	o.published.Add(1)
	return nil
}

// Published returns the number of messages published
func (o *Output) Published() int64 {
	return o.published.Load()
}

// Failed returns the number of messages abandoned
func (o *Output) Failed() int64 {
	return o.failed.Load()
}

// Register registers the NATS publisher with the given registry
func Register(registry *loader.Registry) error {
	return registry.Register(&loader.Definition{
		Module:      loader.BuiltinModule,
		Member:      Member,
		Discipline:  sink.Queued,
		Factory:     NewOutput,
		Description: "Republishes messages as JSON on per-type NATS subjects",
	})
}
