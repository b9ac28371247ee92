package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// MockNATSClient is an in-memory NATS publisher for testing.
// Matches the natsclient.Client Publish signature.
type MockNATSClient struct {
	mu       sync.RWMutex
	messages map[string][][]byte
	streams  map[string][]string
	acked    int
	failures []error
	attempts int
	closed   bool
}

// NewMockNATSClient creates a new mock NATS client.
func NewMockNATSClient() *MockNATSClient {
	return &MockNATSClient{
		messages: make(map[string][][]byte),
		streams:  make(map[string][]string),
	}
}

// FailNext makes the next len(errs) Publish calls return errs in order.
func (c *MockNATSClient) FailNext(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, errs...)
}

// Publish records data under subject (matches natsclient.Client signature).
func (c *MockNATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.attempts++
	if c.closed {
		return fmt.Errorf("client is closed")
	}
	if len(c.failures) > 0 {
		err := c.failures[0]
		c.failures = c.failures[1:]
		return err
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	c.messages[subject] = append(c.messages[subject], buf)
	return nil
}

// EnsureStream records the stream and the subjects it captures.
func (c *MockNATSClient) EnsureStream(ctx context.Context, name string, subjects []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("client is closed")
	}
	c.streams[name] = append([]string(nil), subjects...)
	return nil
}

// PublishToStream behaves like Publish and counts the acknowledged
// publishes. It fails when no stream has been ensured.
func (c *MockNATSClient) PublishToStream(ctx context.Context, subject string, data []byte) error {
	c.mu.RLock()
	noStream := len(c.streams) == 0
	c.mu.RUnlock()
	if noStream {
		return fmt.Errorf("no stream captures %s", subject)
	}

	if err := c.Publish(ctx, subject, data); err != nil {
		return err
	}

	c.mu.Lock()
	c.acked++
	c.mu.Unlock()
	return nil
}

// Streams returns the subjects of every ensured stream, by name.
func (c *MockNATSClient) Streams() map[string][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]string, len(c.streams))
	for name, subjects := range c.streams {
		out[name] = append([]string(nil), subjects...)
	}
	return out
}

// Acked returns the number of successful PublishToStream calls.
func (c *MockNATSClient) Acked() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.acked
}

// Attempts returns the number of Publish calls including failed ones.
func (c *MockNATSClient) Attempts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attempts
}

// GetMessages returns a copy of all messages published on subject.
func (c *MockNATSClient) GetMessages(subject string) [][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()

	msgs := c.messages[subject]
	if msgs == nil {
		return nil
	}
	result := make([][]byte, len(msgs))
	copy(result, msgs)
	return result
}

// GetMessageCount returns the number of messages on a subject.
func (c *MockNATSClient) GetMessageCount(subject string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages[subject])
}

// Subjects returns every subject that has received a message.
func (c *MockNATSClient) Subjects() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.messages))
	for s := range c.messages {
		out = append(out, s)
	}
	return out
}

// Close closes the mock client.
func (c *MockNATSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// IsClosed returns whether the client is closed.
func (c *MockNATSClient) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// WaitForMessageCount waits for count messages on subject.
func WaitForMessageCount(t *testing.T, client *MockNATSClient, subject string, count int, timeout time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		if client.GetMessageCount(subject) >= count {
			return
		}
		select {
		case <-ctx.Done():
			got := client.GetMessageCount(subject)
			t.Fatalf("timeout waiting for %d messages on subject %s (got %d)", count, subject, got)
			return
		case <-ticker.C:
		}
	}
}
