package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ukhas/habitat-sub001/errors"
	"github.com/ukhas/habitat-sub001/message"
)

// FailureFunc receives every abandoned delivery.
type FailureFunc func(de *errors.DeliveryError)

// Result describes one completed delivery attempt.
type Result struct {
	Sink     string
	Message  *message.Message
	Duration time.Duration
	// Err is nil on success.
	Err *errors.DeliveryError
}

// ResultFunc observes every delivery attempt, successful or not.
type ResultFunc func(r Result)

// Stats is a point-in-time view of a sink's counters.
type Stats struct {
	Delivered uint64
	Failed    uint64
	Skipped   uint64
	Dropped   uint64
	Queued    int
}

// Option configures a Sink.
type Option func(*Sink)

// WithLogger sets the logger. The sink adds a "sink" attribute.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFailureFunc sets the function receiving failed deliveries.
// By default failures are logged at warn level.
func WithFailureFunc(fn FailureFunc) Option {
	return func(s *Sink) {
		if fn != nil {
			s.onFailure = fn
		}
	}
}

// WithResultFunc sets a function observing every delivery attempt.
func WithResultFunc(fn ResultFunc) Option {
	return func(s *Sink) {
		s.onResult = fn
	}
}

// strategy is a delivery discipline.
type strategy interface {
	push(s *Sink, m *message.Message) bool
	flush(ctx context.Context) error
	shutdown()
	depth() int
	// describe summarises the live state, or returns false if the strategy
	// lock is held elsewhere.
	describe() (string, bool)
}

// Sink binds a Handler to an interest set and a delivery discipline.
type Sink struct {
	name       string
	discipline Discipline
	handler    Handler
	router     Pusher
	logger     *slog.Logger
	onFailure  FailureFunc
	onResult   ResultFunc

	interest interest
	strategy strategy

	delivered atomic.Uint64
	failed    atomic.Uint64
	skipped   atomic.Uint64
	dropped   atomic.Uint64

	shutdownOnce sync.Once
	closeErr     error
}

// New builds a sink, runs the handler's Setup and starts delivery.
//
// A nil handler is a type-kind error. An unknown discipline or a failing
// Validator is a value-kind error. If Setup fails the handler is closed and
// the error returned; no goroutine is left running.
func New(name string, discipline Discipline, handler Handler, router Pusher, opts ...Option) (*Sink, error) {
	if handler == nil {
		return nil, errors.Newf(errors.ErrTypeKind, "Sink", "New", "handler for %s is nil", name)
	}
	if !discipline.Valid() {
		return nil, errors.Newf(errors.ErrValueKind, "Sink", "New", "invalid discipline %d for %s", int(discipline), name)
	}
	if v, ok := handler.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("Sink.New: %s does not satisfy the sink contract: %w", name, withValueKind(err))
		}
	}

	s := &Sink{
		name:       name,
		discipline: discipline,
		handler:    handler,
		router:     router,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("sink", name, "discipline", discipline.String())
	if s.onFailure == nil {
		s.onFailure = s.logFailure
	}

	var q *queued
	switch discipline {
	case Inline:
		s.strategy = newInline()
	case Queued:
		q = newQueued(s)
		s.strategy = q
	}

	if err := s.setup(); err != nil {
		if c, ok := handler.(Closer); ok {
			if cerr := c.Close(); cerr != nil {
				s.logger.Warn("Close after failed setup returned error", "error", cerr)
			}
		}
		return nil, errors.WrapInvalid(err, "Sink", "New", fmt.Sprintf("%s setup", name))
	}

	if q != nil {
		q.start()
	}
	return s, nil
}

func withValueKind(err error) error {
	if errors.Kind(err) != "" {
		return err
	}
	return fmt.Errorf("%w: %w", errors.ErrValueKind, err)
}

// setup runs the handler's Setup, converting a panic into an error.
func (s *Sink) setup() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrHandlerPanic, r)
		}
	}()
	return s.handler.Setup(s)
}

// Name returns the resolved name the sink was loaded under.
func (s *Sink) Name() string { return s.name }

// Discipline returns the delivery discipline.
func (s *Sink) Discipline() Discipline { return s.discipline }

// Handler returns the wrapped handler.
func (s *Sink) Handler() Handler { return s.handler }

// Router returns the router the sink was loaded into, for pushing messages
// back. It may be nil for sinks built outside a router.
func (s *Sink) Router() Pusher { return s.router }

// Logger returns the sink's logger.
func (s *Sink) Logger() *slog.Logger { return s.logger }

// AddType adds one type to the interest set.
func (s *Sink) AddType(t message.Type) error {
	return s.AddTypes(t)
}

// AddTypes adds every given type to the interest set. If any type is invalid
// the set is left unchanged.
func (s *Sink) AddTypes(types ...message.Type) error {
	if err := message.ValidateTypes(types); err != nil {
		return err
	}
	mask := maskOf(types)
	s.interest.update(func(old uint32) uint32 { return old | mask })
	return nil
}

// RemoveType removes one type from the interest set. Removing a type that
// is not present is not an error.
func (s *Sink) RemoveType(t message.Type) error {
	return s.RemoveTypes(t)
}

// RemoveTypes removes every given type from the interest set.
func (s *Sink) RemoveTypes(types ...message.Type) error {
	if err := message.ValidateTypes(types); err != nil {
		return err
	}
	mask := maskOf(types)
	s.interest.update(func(old uint32) uint32 { return old &^ mask })
	return nil
}

// SetTypes replaces the interest set with exactly the given types.
func (s *Sink) SetTypes(types ...message.Type) error {
	if err := message.ValidateTypes(types); err != nil {
		return err
	}
	s.interest.bits.Store(maskOf(types))
	return nil
}

// ClearTypes empties the interest set.
func (s *Sink) ClearTypes() {
	s.interest.bits.Store(0)
}

// Types returns a snapshot of the interest set in type order.
func (s *Sink) Types() []message.Type {
	return s.interest.types()
}

// Wants reports whether t is currently in the interest set.
func (s *Sink) Wants(t message.Type) bool {
	return s.interest.has(t)
}

// PushMessage hands m to the delivery discipline. A nil message is a
// type-kind error. Messages pushed after Shutdown are dropped and reported
// with errors.ErrShuttingDown.
func (s *Sink) PushMessage(m *message.Message) error {
	if m == nil {
		return errors.Newf(errors.ErrTypeKind, "Sink", "PushMessage", "message must be a *message.Message, got nil")
	}
	if !s.strategy.push(s, m) {
		s.dropped.Add(1)
		return errors.Wrap(errors.ErrShuttingDown, "Sink", "PushMessage", s.name+" accept")
	}
	return nil
}

// Flush blocks until the sink has no delivery in flight and, for queued
// sinks, nothing waiting. It has no timeout.
func (s *Sink) Flush() {
	_ = s.strategy.flush(context.Background())
}

// FlushContext is Flush bounded by ctx.
func (s *Sink) FlushContext(ctx context.Context) error {
	return s.strategy.flush(ctx)
}

// Shutdown stops accepting messages, waits for pending deliveries, stops the
// worker and closes the handler. It is idempotent and returns the handler's
// Close error, if any.
func (s *Sink) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.strategy.shutdown()
		if c, ok := s.handler.(Closer); ok {
			if err := c.Close(); err != nil {
				s.closeErr = errors.Wrap(err, "Sink", "Shutdown", s.name+" close")
			}
		}
		s.logger.Debug("Sink shut down",
			"delivered", s.delivered.Load(),
			"failed", s.failed.Load(),
			"dropped", s.dropped.Load())
	})
	return s.closeErr
}

// Stats returns the sink's counters.
func (s *Sink) Stats() Stats {
	return Stats{
		Delivered: s.delivered.Load(),
		Failed:    s.failed.Load(),
		Skipped:   s.skipped.Load(),
		Dropped:   s.dropped.Load(),
		Queued:    s.strategy.depth(),
	}
}

// String renders "<name (discipline): N messages so far, ...>", or
// "<name (discipline): locked>" when the sink's lock is held.
func (s *Sink) String() string {
	state, ok := s.strategy.describe()
	if !ok {
		return fmt.Sprintf("<%s (%s): locked>", s.name, s.discipline)
	}
	return fmt.Sprintf("<%s (%s): %d messages so far, %s>", s.name, s.discipline, s.delivered.Load()+s.failed.Load(), state)
}

// deliver filters m by the current interest set and runs Handle, containing
// errors and panics.
func (s *Sink) deliver(m *message.Message) {
	if !s.Wants(m.Type()) {
		s.skipped.Add(1)
		return
	}

	start := time.Now()
	panicked, err := s.invoke(m)
	res := Result{Sink: s.name, Message: m, Duration: time.Since(start)}

	if err != nil {
		s.failed.Add(1)
		res.Err = &errors.DeliveryError{
			Sink:      s.name,
			MessageID: m.ID().String(),
			Type:      m.Type().String(),
			Panic:     panicked,
			Err:       err,
		}
		s.onFailure(res.Err)
	} else {
		s.delivered.Add(1)
	}

	if s.onResult != nil {
		s.onResult(res)
	}
}

func (s *Sink) invoke(m *message.Message) (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err = fmt.Errorf("%w: %v", errors.ErrHandlerPanic, r)
		}
	}()
	return false, s.handler.Handle(m)
}

func (s *Sink) logFailure(de *errors.DeliveryError) {
	s.logger.Warn("Sink failed to handle message",
		"message_id", de.MessageID,
		"type", de.Type,
		"panic", de.Panic,
		"error", de.Err)
}
