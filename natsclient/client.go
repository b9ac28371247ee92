package natsclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/ukhas/habitat-sub001/errors"
	"github.com/ukhas/habitat-sub001/metric"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int32

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
	StatusClosed
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusCircuitOpen:
		return "circuit_open"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Error values returned by the client. Both are transient.
var (
	ErrNotConnected = fmt.Errorf("not connected to NATS: %w", errors.ErrNoConnection)
	ErrCircuitOpen  = fmt.Errorf("circuit breaker is open: %w", errors.ErrConnectionLost)
)

// Status is a point-in-time view of the client
type Status struct {
	Status          ConnectionStatus
	URL             string
	FailureCount    int32
	LastFailureTime time.Time
	Reconnects      int64
	RTT             time.Duration
}

// Client owns a single NATS connection used by publishing sinks. It adds a
// consecutive-failure circuit breaker in front of nats.Connect and reports
// connection state to the metrics registry.
type Client struct {
	url    string
	logger *slog.Logger

	status     atomic.Int32
	failures   atomic.Int32
	reconnects atomic.Int64

	// Circuit breaker
	circuitThreshold int32
	backoff          time.Duration
	maxBackoff       time.Duration
	openUntil        time.Time
	lastFailure      time.Time

	// Connection options
	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration
	clientName    string
	username      string
	password      string
	token         string

	metrics        *metric.Metrics
	onHealthChange func(bool)

	conn *nats.Conn
	js   jetstream.JetStream
	mu   sync.RWMutex
}

// NewClient creates a client for url. It does not connect.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "NewClient", "check url")
	}

	c := &Client{
		url:              url,
		logger:           slog.Default(),
		maxReconnects:    -1,
		reconnectWait:    2 * time.Second,
		pingInterval:     30 * time.Second,
		timeout:          5 * time.Second,
		drainTimeout:     10 * time.Second,
		circuitThreshold: 5,
		backoff:          time.Second,
		maxBackoff:       time.Minute,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	c.logger = c.logger.With("component", "natsclient", "url", url)
	c.setStatus(StatusDisconnected)
	return c, nil
}

// URL returns the NATS server URL
func (c *Client) URL() string {
	return c.url
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	return ConnectionStatus(c.status.Load())
}

func (c *Client) setStatus(status ConnectionStatus) {
	old := ConnectionStatus(c.status.Swap(int32(status)))
	if old == status {
		return
	}

	if c.metrics != nil {
		c.metrics.RecordNATSStatus(status == StatusConnected)
	}
	if c.onHealthChange != nil && (old == StatusConnected || status == StatusConnected) {
		go c.onHealthChange(status == StatusConnected)
	}
}

// IsHealthy returns true if the connection is usable
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

// Failures returns the number of consecutive connection failures
func (c *Client) Failures() int32 {
	return c.failures.Load()
}

// GetStatus returns current status information
func (c *Client) GetStatus() Status {
	c.mu.RLock()
	conn := c.conn
	lastFailure := c.lastFailure
	c.mu.RUnlock()

	st := Status{
		Status:          c.Status(),
		URL:             c.url,
		FailureCount:    c.failures.Load(),
		LastFailureTime: lastFailure,
		Reconnects:      c.reconnects.Load(),
	}
	if conn != nil && conn.IsConnected() {
		if rtt, err := conn.RTT(); err == nil {
			st.RTT = rtt
		}
	}
	return st
}

// GetConnection returns the underlying connection, or nil
func (c *Client) GetConnection() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// recordFailure counts a failed connect and opens the circuit once the
// threshold is reached. Caller holds c.mu.
func (c *Client) recordFailure(now time.Time) {
	c.lastFailure = now
	n := c.failures.Add(1)
	if n < c.circuitThreshold {
		return
	}

	c.openUntil = now.Add(c.backoff)
	c.logger.Warn("NATS circuit breaker opened", "failures", n, "backoff", c.backoff)
	c.backoff = min(c.backoff*2, c.maxBackoff)
	c.failures.Store(0)
	c.setStatus(StatusCircuitOpen)
}

func (c *Client) resetCircuit() {
	c.failures.Store(0)
	c.backoff = time.Second
	c.openUntil = time.Time{}
}

func (c *Client) buildConnectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	}

	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}

	return opts
}

// Connect establishes the connection. It fails fast with ErrCircuitOpen while
// the breaker is open, and respects ctx while the dial is in progress.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.Status() {
	case StatusClosed:
		return errors.WrapFatal(errors.ErrClosed, "Client", "Connect", "check state")
	case StatusConnected:
		return nil
	}

	now := time.Now()
	if now.Before(c.openUntil) {
		return ErrCircuitOpen
	}

	c.setStatus(StatusConnecting)
	c.logger.Info("Connecting to NATS")

	type result struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan result, 1)
	opts := c.buildConnectionOptions()
	go func() {
		conn, err := nats.Connect(c.url, opts...)
		done <- result{conn, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			c.setStatus(StatusDisconnected)
			c.recordFailure(time.Now())
			return errors.WrapTransient(r.err, "Client", "Connect", "establish connection")
		}
		c.conn = r.conn
		js, err := jetstream.New(r.conn)
		if err != nil {
			c.logger.Warn("JetStream unavailable", "error", err)
		}
		c.js = js
	case <-ctx.Done():
		c.setStatus(StatusDisconnected)
		c.recordFailure(time.Now())
		// The dial may still complete; close whatever it produces.
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled")
	}

	c.resetCircuit()
	c.setStatus(StatusConnected)
	c.logger.Info("Connected to NATS")
	return nil
}

// WaitForConnection polls until the client is connected or ctx ends
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if c.IsHealthy() {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.WrapTransient(ctx.Err(), "Client", "WaitForConnection", "wait for connection")
		case <-ticker.C:
		}
	}
}

// Publish publishes data to subject. The nats client buffers while
// reconnecting, so only a missing or closed connection fails here.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "Client", "Publish", "check context")
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return ErrNotConnected
	}

	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "Client", "Publish", fmt.Sprintf("publish to %s", subject))
	}
	return nil
}

// Flush waits until the server has processed everything published so far
func (c *Client) Flush(ctx context.Context) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return ErrNotConnected
	}
	if err := conn.FlushWithContext(ctx); err != nil {
		return errors.WrapTransient(err, "Client", "Flush", "flush connection")
	}
	return nil
}

// Close drains and closes the connection. It is safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.Status() == StatusClosed {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	c.conn = nil
	c.js = nil
	c.username, c.password, c.token = "", "", ""
	c.mu.Unlock()

	var drainErr error
	if conn != nil {
		drained := make(chan error, 1)
		go func() { drained <- conn.Drain() }()

		select {
		case err := <-drained:
			drainErr = errors.Wrap(err, "Client", "Close", "drain connection")
		case <-ctx.Done():
			drainErr = errors.Wrap(ctx.Err(), "Client", "Close", "drain connection")
		}
		conn.Close()
	}

	c.setStatus(StatusClosed)
	return drainErr
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	if c.Status() == StatusClosed {
		return
	}
	c.setStatus(StatusReconnecting)
	c.logger.Warn("NATS disconnected", "error", err)
}

func (c *Client) handleReconnect(_ *nats.Conn) {
	c.reconnects.Add(1)
	if c.metrics != nil {
		c.metrics.RecordNATSReconnect()
	}
	c.setStatus(StatusConnected)
	c.logger.Info("NATS reconnected")
}

func (c *Client) handleClosed(_ *nats.Conn) {
	if c.Status() != StatusClosed {
		c.setStatus(StatusDisconnected)
	}
}

func (c *Client) handleError(_ *nats.Conn, _ *nats.Subscription, err error) {
	c.logger.Error("NATS async error", "error", err)
}
