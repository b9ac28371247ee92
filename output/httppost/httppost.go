// Package httppost provides a sink that forwards messages to an HTTP endpoint
package httppost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ukhas/habitat-sub001/errors"
	"github.com/ukhas/habitat-sub001/loader"
	"github.com/ukhas/habitat-sub001/message"
	"github.com/ukhas/habitat-sub001/pkg/retry"
	"github.com/ukhas/habitat-sub001/sink"
)

// Member is the name the HTTP POST sink registers under in loader.BuiltinModule
const Member = "HTTPPost"

// Config holds configuration for the HTTP POST sink
type Config struct {
	URL          string            `json:"url"`
	Headers      map[string]string `json:"headers"`
	Timeout      int               `json:"timeout"`
	RetryCount   int               `json:"retry_count"`
	RetryBackoff string            `json:"retry_backoff"`
	ContentType  string            `json:"content_type"`
	Types        []message.Type    `json:"types"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "url is required")
	}

	u, err := url.Parse(c.URL)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "invalid URL format")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "url scheme must be http or https")
	}

	if c.Timeout < 0 || c.Timeout > 300 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"timeout must be between 0 and 300 seconds")
	}

	if c.RetryCount < 0 || c.RetryCount > 10 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"retry_count must be between 0 and 10")
	}

	if d, err := time.ParseDuration(c.RetryBackoff); err != nil || d < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"retry_backoff must be a non-negative duration")
	}

	return message.ValidateTypes(c.Types)
}

// DefaultConfig returns default configuration for the HTTP POST sink
func DefaultConfig() Config {
	return Config{
		URL:          "http://localhost:8080/webhook",
		Headers:      make(map[string]string),
		Timeout:      30,
		RetryCount:   3,
		RetryBackoff: "100ms",
		ContentType:  "application/json",
	}
}

// Output POSTs each message as JSON. Server errors and transport failures
// are retried; client errors are not.
type Output struct {
	url         string
	headers     map[string]string
	contentType string
	types       []message.Type
	retry       retry.Config
	httpClient  *http.Client
	logger      *slog.Logger

	mu           sync.RWMutex
	lastActivity time.Time

	messagesSent    atomic.Int64
	messagesRetried atomic.Int64
	failed          atomic.Int64
}

// NewOutput creates an HTTP POST sink from its settings
func NewOutput(deps loader.Dependencies) (sink.Handler, error) {
	config := DefaultConfig()
	if err := deps.DecodeSettings(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	backoff, _ := time.ParseDuration(config.RetryBackoff)

	rc := retry.DefaultConfig()
	rc.MaxAttempts = config.RetryCount + 1
	if backoff > 0 {
		rc.InitialDelay = backoff
		rc.MaxDelay = max(rc.MaxDelay, backoff)
	}
	rc.Retryable = errors.IsTransient

	types := config.Types
	if len(types) == 0 {
		types = message.AllTypes()
	}

	return &Output{
		url:         config.URL,
		headers:     config.Headers,
		contentType: config.ContentType,
		types:       types,
		retry:       rc,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      deps.GetLoggerWithComponent("httppost").With("url", config.URL),
	}, nil
}

// Setup implements sink.Handler
func (h *Output) Setup(s *sink.Sink) error {
	return s.SetTypes(h.types...)
}

// Handle implements sink.Handler
func (h *Output) Handle(m *message.Message) error {
	h.mu.Lock()
	h.lastActivity = time.Now()
	h.mu.Unlock()

	data, err := json.Marshal(m)
	if err != nil {
		h.failed.Add(1)
		return errors.WrapInvalid(err, "Output", "Handle", "encode message")
	}

	attempt := 0
	err = retry.Do(context.Background(), h.retry, func() error {
		if attempt > 0 {
			h.messagesRetried.Add(1)
		}
		attempt++
		return h.sendHTTPPost(context.Background(), data)
	})
	if err != nil {
		h.failed.Add(1)
		return errors.Wrap(err, "Output", "Handle", "post message")
	}

	h.messagesSent.Add(1)
	return nil
}

// sendHTTPPost sends a single HTTP POST request
func (h *Output) sendHTTPPost(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(data))
	if err != nil {
		return retry.NonRetryable(err)
	}

	req.Header.Set("Content-Type", h.contentType)
	for key, value := range h.headers {
		req.Header.Set(key, value)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return errors.WrapTransient(err, "Output", "sendHTTPPost", "request")
	}
	defer resp.Body.Close()

	// Read and discard body to reuse connection
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return errors.WrapTransient(fmt.Errorf("HTTP %d", resp.StatusCode), "Output", "sendHTTPPost", "status check")
	default:
		return retry.NonRetryable(fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status))
	}
}

// Close implements sink.Closer
func (h *Output) Close() error {
	h.httpClient.CloseIdleConnections()
	h.logger.Debug("HTTP POST sink closed",
		"sent", h.messagesSent.Load(),
		"retried", h.messagesRetried.Load(),
		"errors", h.failed.Load())
	return nil
}

// Stats reports the sent, retried and failed counts
func (h *Output) Stats() (sent, retried, failed int64) {
	return h.messagesSent.Load(), h.messagesRetried.Load(), h.failed.Load()
}

// LastActivity returns when the sink last handled a message
func (h *Output) LastActivity() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastActivity
}

// Register registers the HTTP POST sink with the given registry
func Register(registry *loader.Registry) error {
	return registry.Register(&loader.Definition{
		Module:      loader.BuiltinModule,
		Member:      Member,
		Discipline:  sink.Queued,
		Factory:     NewOutput,
		Description: "POSTs messages as JSON to an HTTP endpoint",
	})
}
