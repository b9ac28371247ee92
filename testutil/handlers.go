package testutil

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ukhas/habitat-sub001/message"
	"github.com/ukhas/habitat-sub001/sink"
)

// RecordingHandler records handled messages. Setup declares Types as the
// interest set.
type RecordingHandler struct {
	Types []message.Type

	mu       sync.Mutex
	sink     *sink.Sink
	messages []*message.Message
	closed   int
	notify   chan struct{}
}

// NewRecordingHandler creates a RecordingHandler interested in types.
func NewRecordingHandler(types ...message.Type) *RecordingHandler {
	return &RecordingHandler{Types: types, notify: make(chan struct{}, 1)}
}

// Setup implements sink.Handler
func (h *RecordingHandler) Setup(s *sink.Sink) error {
	h.mu.Lock()
	h.sink = s
	h.mu.Unlock()
	return s.AddTypes(h.Types...)
}

// Handle implements sink.Handler
func (h *RecordingHandler) Handle(m *message.Message) error {
	h.mu.Lock()
	h.messages = append(h.messages, m)
	h.mu.Unlock()
	h.signal()
	return nil
}

// Close implements sink.Closer
func (h *RecordingHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed++
	return nil
}

func (h *RecordingHandler) signal() {
	if h.notify == nil {
		return
	}
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// Sink returns the sink passed to Setup.
func (h *RecordingHandler) Sink() *sink.Sink {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sink
}

// Messages returns a copy of the handled messages in order.
func (h *RecordingHandler) Messages() []*message.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*message.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Count returns the number of handled messages.
func (h *RecordingHandler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// CloseCalls returns how many times Close was called.
func (h *RecordingHandler) CloseCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// WaitForCount waits until at least n messages were handled.
func (h *RecordingHandler) WaitForCount(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if h.Count() >= n {
			return true
		}
		select {
		case <-h.notify:
		case <-time.After(5 * time.Millisecond):
		case <-deadline:
			return h.Count() >= n
		}
	}
}

// GateHandler blocks in Handle until Release is called. Entered receives one
// value per Handle call as it starts.
type GateHandler struct {
	Types   []message.Type
	Entered chan *message.Message

	gate      chan struct{}
	once      sync.Once
	active    atomic.Int32
	maxActive atomic.Int32
	handled   atomic.Int32
}

// NewGateHandler creates a closed gate interested in types.
func NewGateHandler(types ...message.Type) *GateHandler {
	return &GateHandler{
		Types:   types,
		Entered: make(chan *message.Message, 128),
		gate:    make(chan struct{}),
	}
}

// Setup implements sink.Handler
func (h *GateHandler) Setup(s *sink.Sink) error {
	return s.AddTypes(h.Types...)
}

// Handle implements sink.Handler
func (h *GateHandler) Handle(m *message.Message) error {
	n := h.active.Add(1)
	for {
		old := h.maxActive.Load()
		if n <= old || h.maxActive.CompareAndSwap(old, n) {
			break
		}
	}
	h.Entered <- m
	<-h.gate
	h.active.Add(-1)
	h.handled.Add(1)
	return nil
}

// Release opens the gate permanently.
func (h *GateHandler) Release() {
	h.once.Do(func() { close(h.gate) })
}

// MaxActive returns the highest number of concurrent Handle calls seen.
func (h *GateHandler) MaxActive() int { return int(h.maxActive.Load()) }

// Handled returns the number of completed Handle calls.
func (h *GateHandler) Handled() int { return int(h.handled.Load()) }

// ErrInjected is returned by FailingHandler.
var ErrInjected = errors.New("injected failure")

// FailingHandler fails every Handle call, by error or by panic.
type FailingHandler struct {
	Types []message.Type
	Panic bool
	// SetupErr, if set, is returned from Setup.
	SetupErr error

	calls atomic.Int32
}

// Setup implements sink.Handler
func (h *FailingHandler) Setup(s *sink.Sink) error {
	if h.SetupErr != nil {
		return h.SetupErr
	}
	return s.AddTypes(h.Types...)
}

// Handle implements sink.Handler
func (h *FailingHandler) Handle(_ *message.Message) error {
	h.calls.Add(1)
	if h.Panic {
		panic("failing handler")
	}
	return ErrInjected
}

// Calls returns the number of Handle calls.
func (h *FailingHandler) Calls() int { return int(h.calls.Load()) }

// PushbackHandler pushes a Reply message back into the sink's router the
// first time it handles a message of type Trigger.
type PushbackHandler struct {
	Trigger message.Type
	Reply   message.Type

	RecordingHandler
	pushed atomic.Bool
}

// NewPushbackHandler creates a handler interested in trigger and reply.
func NewPushbackHandler(trigger, reply message.Type) *PushbackHandler {
	h := &PushbackHandler{Trigger: trigger, Reply: reply}
	h.RecordingHandler = RecordingHandler{Types: []message.Type{trigger, reply}, notify: make(chan struct{}, 1)}
	return h
}

// Handle implements sink.Handler
func (h *PushbackHandler) Handle(m *message.Message) error {
	if err := h.RecordingHandler.Handle(m); err != nil {
		return err
	}
	if m.Type() != h.Trigger || !h.pushed.CompareAndSwap(false, true) {
		return nil
	}
	reply, err := message.New(m.Source(), h.Reply, m.Data())
	if err != nil {
		return err
	}
	if r := h.Sink().Router(); r != nil {
		r.PushMessage(reply)
	}
	return nil
}
