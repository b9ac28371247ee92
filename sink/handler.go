package sink

import (
	"github.com/ukhas/habitat-sub001/errors"
	"github.com/ukhas/habitat-sub001/message"
)

// Handler is the contract every sink implementation satisfies.
type Handler interface {
	// Setup is called once before the sink is registered. It declares the
	// initial interest set through s.AddType and friends and may keep s to
	// change interest or push messages later.
	Setup(s *Sink) error
	// Handle processes one message the sink is interested in.
	Handle(m *message.Message) error
}

// Closer is implemented by handlers holding resources. Close is called once
// after the sink has drained and stopped.
type Closer interface {
	Close() error
}

// Validator is implemented by handlers that can check their own contract
// before use. A Validate error rejects the handler.
type Validator interface {
	Validate() error
}

// Pusher accepts messages. The router implements it; handlers reach it
// through Sink.Router to push messages back.
type Pusher interface {
	PushMessage(m *message.Message)
}

// HandlerFuncs adapts a pair of functions to the Handler interface.
// Both functions are required; Validate reports a missing one.
type HandlerFuncs struct {
	SetupFunc  func(s *Sink) error
	HandleFunc func(m *message.Message) error
	CloseFunc  func() error
}

// Setup calls SetupFunc.
func (h HandlerFuncs) Setup(s *Sink) error {
	if h.SetupFunc == nil {
		return errors.Newf(errors.ErrValueKind, "HandlerFuncs", "Setup", "no setup function")
	}
	return h.SetupFunc(s)
}

// Handle calls HandleFunc.
func (h HandlerFuncs) Handle(m *message.Message) error {
	if h.HandleFunc == nil {
		return errors.Newf(errors.ErrValueKind, "HandlerFuncs", "Handle", "no handle function")
	}
	return h.HandleFunc(m)
}

// Close calls CloseFunc if set.
func (h HandlerFuncs) Close() error {
	if h.CloseFunc == nil {
		return nil
	}
	return h.CloseFunc()
}

// Validate reports a missing SetupFunc or HandleFunc.
func (h HandlerFuncs) Validate() error {
	switch {
	case h.SetupFunc == nil:
		return errors.Newf(errors.ErrValueKind, "HandlerFuncs", "Validate", "missing SetupFunc")
	case h.HandleFunc == nil:
		return errors.Newf(errors.ErrValueKind, "HandlerFuncs", "Validate", "missing HandleFunc")
	}
	return nil
}
