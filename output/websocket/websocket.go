// Package websocket provides a sink that broadcasts messages to WebSocket clients
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ukhas/habitat-sub001/errors"
	"github.com/ukhas/habitat-sub001/loader"
	"github.com/ukhas/habitat-sub001/message"
	"github.com/ukhas/habitat-sub001/metric"
	"github.com/ukhas/habitat-sub001/sink"
)

// Member is the name the WebSocket sink registers under in loader.BuiltinModule
const Member = "WebSocket"

// Config holds configuration for the WebSocket sink
type Config struct {
	Addr         string         `json:"addr"`
	Path         string         `json:"path"`
	Types        []message.Type `json:"types"`
	WriteTimeout string         `json:"write_timeout"`
	PingInterval string         `json:"ping_interval"`
}

// DefaultConfig returns default configuration for the WebSocket sink
func DefaultConfig() Config {
	return Config{
		Addr:         ":8081",
		Path:         "/ws",
		WriteTimeout: "10s",
		PingInterval: "30s",
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "addr is required")
	}
	if len(c.Path) == 0 || c.Path[0] != '/' {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "path must start with /")
	}
	for field, value := range map[string]string{"write_timeout": c.WriteTimeout, "ping_interval": c.PingInterval} {
		if d, err := time.ParseDuration(value); err != nil || d <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", field+" must be a positive duration")
		}
	}
	return message.ValidateTypes(c.Types)
}

// clientInfo holds information about a connected WebSocket client
type clientInfo struct {
	conn        *websocket.Conn
	connectedAt time.Time
	closed      atomic.Bool
	closeOnce   sync.Once
	writeMutex  sync.Mutex // gorilla/websocket panics on concurrent writes
}

// Output serves a WebSocket endpoint and writes every message it handles to
// all connected clients as a JSON text frame. Slow or broken clients are
// dropped rather than failing the delivery.
type Output struct {
	config       Config
	writeTimeout time.Duration
	pingInterval time.Duration
	logger       *slog.Logger
	registry     *metric.MetricsRegistry
	clientsGauge prometheus.Gauge

	upgrader  websocket.Upgrader
	server    *http.Server
	listener  net.Listener
	clients   map[*websocket.Conn]*clientInfo
	clientsMu sync.RWMutex

	shutdown  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	messagesSent atomic.Int64
	bytesSent    atomic.Int64
}

// NewOutput creates a WebSocket sink from its settings. The server starts in Setup.
func NewOutput(deps loader.Dependencies) (sink.Handler, error) {
	config := DefaultConfig()
	if err := deps.DecodeSettings(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	writeTimeout, _ := time.ParseDuration(config.WriteTimeout)
	pingInterval, _ := time.ParseDuration(config.PingInterval)

	return &Output{
		config:       config,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		logger:       deps.GetLoggerWithComponent("websocket"),
		registry:     deps.MetricsRegistry,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		clients:  make(map[*websocket.Conn]*clientInfo),
		shutdown: make(chan struct{}),
	}, nil
}

// Setup binds the listener, starts serving and declares interest
func (w *Output) Setup(s *sink.Sink) error {
	ln, err := net.Listen("tcp", w.config.Addr)
	if err != nil {
		return errors.WrapTransient(err, "Output", "Setup", "listen on "+w.config.Addr)
	}
	w.listener = ln

	if w.registry != nil {
		w.clientsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "habitat",
			Subsystem: "websocket",
			Name:      "clients_connected",
			Help:      "Number of currently connected WebSocket clients",
		})
		if err := w.registry.Replace("websocket", "clients_connected", w.clientsGauge); err != nil {
			_ = ln.Close()
			return errors.WrapFatal(err, "Output", "Setup", "register metrics")
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc(w.config.Path, w.handleWebSocket)
	w.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	w.wg.Add(2)
	go w.runServer()
	go w.maintainClients()

	w.logger.Info("WebSocket sink listening", "addr", ln.Addr().String(), "path", w.config.Path)

	types := w.config.Types
	if len(types) == 0 {
		types = message.AllTypes()
	}
	return s.SetTypes(types...)
}

// Addr returns the bound listener address, or nil before Setup
func (w *Output) Addr() net.Addr {
	if w.listener == nil {
		return nil
	}
	return w.listener.Addr()
}

// ClientCount returns the number of connected clients
func (w *Output) ClientCount() int {
	w.clientsMu.RLock()
	defer w.clientsMu.RUnlock()
	return len(w.clients)
}

// MessagesSent returns the number of frames written across all clients
func (w *Output) MessagesSent() int64 {
	return w.messagesSent.Load()
}

func (w *Output) runServer() {
	defer w.wg.Done()
	if err := w.server.Serve(w.listener); err != nil && err != http.ErrServerClosed {
		w.logger.Error("WebSocket server failed", "error", err)
	}
}

// handleWebSocket handles new WebSocket connections
func (w *Output) handleWebSocket(wr http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(wr, r, nil)
	if err != nil {
		w.logger.Debug("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	info := &clientInfo{conn: conn, connectedAt: time.Now()}

	w.clientsMu.Lock()
	select {
	case <-w.shutdown:
		w.clientsMu.Unlock()
		_ = conn.Close()
		return
	default:
	}
	w.clients[conn] = info
	count := len(w.clients)
	w.wg.Add(1)
	w.clientsMu.Unlock()

	w.setClientsGauge(count)
	w.logger.Debug("WebSocket client connected", "remote", r.RemoteAddr, "clients", count)

	go w.handleClient(info)
}

// handleClient reads until the client goes away. Clients have nothing to
// say; reading is what processes pongs and close frames.
func (w *Output) handleClient(info *clientInfo) {
	defer w.wg.Done()
	defer w.removeClient(info)

	readTimeout := 2 * w.pingInterval
	info.conn.SetPongHandler(func(string) error {
		return info.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_ = info.conn.SetReadDeadline(time.Now().Add(readTimeout))
		if _, _, err := info.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// removeClient safely removes a client connection
func (w *Output) removeClient(info *clientInfo) {
	info.closeOnce.Do(func() {
		info.closed.Store(true)

		w.clientsMu.Lock()
		delete(w.clients, info.conn)
		count := len(w.clients)
		w.clientsMu.Unlock()

		w.setClientsGauge(count)
		_ = info.conn.Close()
	})
}

func (w *Output) setClientsGauge(n int) {
	if w.clientsGauge != nil {
		w.clientsGauge.Set(float64(n))
	}
}

func (w *Output) snapshot() []*clientInfo {
	w.clientsMu.RLock()
	defer w.clientsMu.RUnlock()
	list := make([]*clientInfo, 0, len(w.clients))
	for _, info := range w.clients {
		if !info.closed.Load() {
			list = append(list, info)
		}
	}
	return list
}

// write sends one frame to a client with proper locking
func (w *Output) write(info *clientInfo, frameType int, data []byte) error {
	info.writeMutex.Lock()
	defer info.writeMutex.Unlock()

	_ = info.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	return info.conn.WriteMessage(frameType, data)
}

// Handle implements sink.Handler
func (w *Output) Handle(m *message.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return errors.WrapInvalid(err, "Output", "Handle", "encode message")
	}

	for _, info := range w.snapshot() {
		if err := w.write(info, websocket.TextMessage, data); err != nil {
			w.logger.Debug("Dropping WebSocket client", "remote", info.conn.RemoteAddr().String(), "error", err)
			w.removeClient(info)
			continue
		}
		w.messagesSent.Add(1)
		w.bytesSent.Add(int64(len(data)))
	}
	return nil
}

// maintainClients pings clients so dead connections are noticed
func (w *Output) maintainClients() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.shutdown:
			return
		case <-ticker.C:
			for _, info := range w.snapshot() {
				if err := w.write(info, websocket.PingMessage, nil); err != nil {
					w.removeClient(info)
				}
			}
		}
	}
}

// Close implements sink.Closer. It stops the server, disconnects every
// client and unregisters the clients gauge.
func (w *Output) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.clientsMu.Lock()
		close(w.shutdown)
		w.clientsMu.Unlock()

		if w.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = w.server.Shutdown(ctx)
			cancel()
		}

		for _, info := range w.snapshot() {
			_ = w.write(info, websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "sink closed"))
			w.removeClient(info)
		}

		w.wg.Wait()

		if w.registry != nil && w.clientsGauge != nil {
			w.registry.UnregisterCollector("websocket", "clients_connected", w.clientsGauge)
		}

		w.logger.Info("WebSocket sink closed",
			"messages_sent", w.messagesSent.Load(),
			"bytes_sent", w.bytesSent.Load())
	})
	return errors.Wrap(err, "Output", "Close", "server shutdown")
}

// Register registers the WebSocket sink with the given registry
func Register(registry *loader.Registry) error {
	return registry.Register(&loader.Definition{
		Module:      loader.BuiltinModule,
		Member:      Member,
		Discipline:  sink.Queued,
		Factory:     NewOutput,
		Description: "Broadcasts messages as JSON to connected WebSocket clients",
	})
}
