package httppost

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukhas/habitat-sub001/errors"
	"github.com/ukhas/habitat-sub001/loader"
	"github.com/ukhas/habitat-sub001/message"
	"github.com/ukhas/habitat-sub001/sink"
	"github.com/ukhas/habitat-sub001/testutil"
)

type capturingServer struct {
	*httptest.Server
	mu       sync.Mutex
	bodies   [][]byte
	headers  []http.Header
	requests atomic.Int32
	statuses []int
}

func newCapturingServer(t *testing.T, statuses ...int) *capturingServer {
	t.Helper()
	cs := &capturingServer{statuses: statuses}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(cs.requests.Add(1)) - 1
		body, _ := io.ReadAll(r.Body)

		cs.mu.Lock()
		cs.bodies = append(cs.bodies, body)
		cs.headers = append(cs.headers, r.Header.Clone())
		cs.mu.Unlock()

		status := http.StatusOK
		if n < len(cs.statuses) {
			status = cs.statuses[n]
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func newSink(t *testing.T, settings map[string]any, opts ...sink.Option) (*sink.Sink, *Output) {
	t.Helper()
	raw, err := json.Marshal(settings)
	require.NoError(t, err)

	h, err := NewOutput(loader.Dependencies{Settings: raw})
	require.NoError(t, err)

	s, err := sink.New("habitat.sinks.HTTPPost", sink.Queued, h, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })
	return s, h.(*Output)
}

func TestOutput_PostsMessages(t *testing.T) {
	server := newCapturingServer(t)
	s, out := newSink(t, map[string]any{
		"url":     server.URL,
		"headers": map[string]string{"X-Habitat": "yes"},
		"types":   []string{"TELEM"},
	})

	m := testutil.SampleMessage(t, message.Telem)
	require.NoError(t, s.PushMessage(m))
	require.NoError(t, s.PushMessage(testutil.SampleMessage(t, message.ListenerInfo)))
	s.Flush()

	require.Equal(t, int32(1), server.requests.Load())
	var doc map[string]any
	require.NoError(t, json.Unmarshal(server.bodies[0], &doc))
	assert.Equal(t, m.ID().String(), doc["id"])
	assert.Equal(t, "application/json", server.headers[0].Get("Content-Type"))
	assert.Equal(t, "yes", server.headers[0].Get("X-Habitat"))

	sent, retried, failed := out.Stats()
	assert.Equal(t, int64(1), sent)
	assert.Zero(t, retried)
	assert.Zero(t, failed)
	assert.False(t, out.LastActivity().IsZero())
}

func TestOutput_StatusHandling(t *testing.T) {
	tests := []struct {
		name     string
		statuses []int
		requests int32
		ok       bool
	}{
		{"server error then success", []int{500, 503}, 3, true},
		{"rate limited then success", []int{429}, 2, true},
		{"client error is not retried", []int{400}, 1, false},
		{"server errors exhaust retries", []int{500, 500, 500}, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newCapturingServer(t, tt.statuses...)

			var failures atomic.Int32
			s, out := newSink(t, map[string]any{
				"url":           server.URL,
				"retry_count":   2,
				"retry_backoff": "1ms",
			}, sink.WithFailureFunc(func(*errors.DeliveryError) { failures.Add(1) }))

			require.NoError(t, s.PushMessage(testutil.SampleMessage(t, message.Telem)))
			s.Flush()

			assert.Equal(t, tt.requests, server.requests.Load())
			sent, retried, _ := out.Stats()
			assert.Equal(t, int64(tt.requests-1), retried)
			if tt.ok {
				assert.Equal(t, int64(1), sent)
				assert.Zero(t, failures.Load())
			} else {
				assert.Zero(t, sent)
				assert.Equal(t, int32(1), failures.Load())
			}
		})
	}
}

func TestOutput_UnreachableEndpoint(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	failures := make(chan *errors.DeliveryError, 1)
	s, _ := newSink(t, map[string]any{"url": url, "retry_count": 1, "retry_backoff": "1ms"},
		sink.WithFailureFunc(func(de *errors.DeliveryError) { failures <- de }))

	require.NoError(t, s.PushMessage(testutil.SampleMessage(t, message.Telem)))
	s.Flush()

	require.Len(t, failures, 1)
	assert.True(t, errors.IsTransient((<-failures).Err))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing url", func(c *Config) { c.URL = "" }},
		{"bad scheme", func(c *Config) { c.URL = "ftp://example.com" }},
		{"timeout range", func(c *Config) { c.Timeout = 301 }},
		{"retry range", func(c *Config) { c.RetryCount = 11 }},
		{"bad backoff", func(c *Config) { c.RetryBackoff = "-1s" }},
		{"bad type", func(c *Config) { c.Types = []message.Type{message.Type(9)} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err), fmt.Sprint(err))
		})
	}

	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestRegister(t *testing.T) {
	registry := loader.NewRegistry()
	require.NoError(t, Register(registry))

	def, err := registry.Resolve("habitat.sinks.HTTPPost")
	require.NoError(t, err)
	assert.Equal(t, sink.Queued, def.Discipline)
}
