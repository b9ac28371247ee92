package router

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ukhas/habitat-sub001/errors"
	"github.com/ukhas/habitat-sub001/health"
	"github.com/ukhas/habitat-sub001/loader"
	"github.com/ukhas/habitat-sub001/message"
	"github.com/ukhas/habitat-sub001/metric"
	"github.com/ukhas/habitat-sub001/sink"
)

// Registration errors. Both are value kind.
var (
	ErrSinkAlreadyLoaded = fmt.Errorf("sink already loaded: %w", errors.ErrValueKind)
	ErrSinkNotFound      = fmt.Errorf("sink not loaded: %w", errors.ErrValueKind)
)

// Load operation labels
const (
	opLoad   = "load"
	opUnload = "unload"
	opReload = "reload"
)

// entry is one registered sink
type entry struct {
	def      *loader.Definition
	sink     *sink.Sink
	loadedAt time.Time
	gen      uint64
}

// SinkInfo describes a loaded sink
type SinkInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Discipline  string         `json:"discipline"`
	Types       []message.Type `json:"types"`
	Stats       sink.Stats     `json:"stats"`
	LoadedAt    time.Time      `json:"loaded_at"`
	Generation  uint64         `json:"generation"`
}

// Router routes messages to a dynamic set of sinks
type Router struct {
	registry        *loader.Registry
	logger          *slog.Logger
	metricsRegistry *metric.MetricsRegistry
	metrics         *metric.Metrics
	health          *health.Monitor
	deps            loader.Dependencies
	errLimiter      *rate.Limiter

	// mu serialises Load, Unload, Reload, Shutdown and SetSettings. It is
	// never taken by PushMessage.
	mu       sync.Mutex
	entries  atomic.Pointer[[]*entry]
	settings map[string]json.RawMessage
	closed   atomic.Bool

	messages   atomic.Uint64
	dropped    atomic.Uint64
	suppressed atomic.Uint64
}

// New creates a router resolving sink names against registry. A nil
// registry gets an empty one.
func New(registry *loader.Registry, opts ...Option) *Router {
	if registry == nil {
		registry = loader.NewRegistry()
	}

	r := &Router{
		registry:   registry,
		logger:     slog.Default(),
		health:     health.NewMonitor(),
		errLimiter: rate.NewLimiter(rate.Every(time.Second), 10),
		settings:   make(map[string]json.RawMessage),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "router")
	if r.metricsRegistry != nil {
		r.metrics = r.metricsRegistry.CoreMetrics()
	}

	empty := make([]*entry, 0)
	r.entries.Store(&empty)
	return r
}

// Registry returns the registry sink names are resolved against
func (r *Router) Registry() *loader.Registry {
	return r.registry
}

func (r *Router) snapshot() []*entry {
	return *r.entries.Load()
}

// publish installs a new registration list. Caller holds r.mu.
func (r *Router) publish(list []*entry) {
	r.entries.Store(&list)
	if r.metrics != nil {
		r.metrics.RecordSinksLoaded(len(list))
	}
}

func indexOf(list []*entry, name string) int {
	return slices.IndexFunc(list, func(e *entry) bool { return e.sink.Name() == name })
}

func (r *Router) recordOp(op string, err error) {
	if r.metrics != nil {
		r.metrics.RecordLoadOperation(op, err)
	}
}

func (r *Router) checkOpen(method string) error {
	if r.closed.Load() {
		return errors.Wrap(errors.ErrShuttingDown, "Router", method, "check state")
	}
	return nil
}

// Load resolves ref, builds a sink from it and appends it to the
// registration list. ref is a qualified name, a *loader.Definition or a
// loader.Definition. A sink with the same resolved name may only be loaded
// once. On any error the registration list is unchanged.
func (r *Router) Load(ref any) (err error) {
	defer func() { r.recordOp(opLoad, err) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkOpen("Load"); err != nil {
		return err
	}

	def, err := r.registry.Resolve(ref)
	if err != nil {
		return err
	}
	name := def.FullName()

	list := r.snapshot()
	if indexOf(list, name) >= 0 {
		return fmt.Errorf("Router.Load: %s: %w", name, ErrSinkAlreadyLoaded)
	}

	e, err := r.build(def)
	if err != nil {
		return err
	}

	next := make([]*entry, 0, len(list)+1)
	next = append(next, list...)
	next = append(next, e)
	r.publish(next)

	r.health.UpdateHealthy(name, "loaded")
	r.logger.Info("Sink loaded", "sink", name, "discipline", def.Discipline.String(), "types", e.sink.Types())
	return nil
}

// build instantiates and sets up a sink for def. Caller holds r.mu.
func (r *Router) build(def *loader.Definition) (*entry, error) {
	name := def.FullName()

	handler, err := def.Instantiate(r.depsFor(name))
	if err != nil {
		return nil, err
	}

	s, err := sink.New(name, def.Discipline, handler, r,
		sink.WithLogger(r.logger),
		sink.WithFailureFunc(r.deliveryFailed),
		sink.WithResultFunc(r.deliveryDone),
	)
	if err != nil {
		return nil, err
	}

	return &entry{
		def:      def,
		sink:     s,
		loadedAt: time.Now(),
		gen:      r.registry.Generation(name),
	}, nil
}

// depsFor returns the factory dependencies for name. Caller holds r.mu.
func (r *Router) depsFor(name string) loader.Dependencies {
	deps := r.deps
	deps.Settings = r.settings[name]
	if deps.Logger == nil {
		deps.Logger = r.logger
	}
	if deps.MetricsRegistry == nil {
		deps.MetricsRegistry = r.metricsRegistry
	}
	return deps
}

// Unload removes the sink ref resolves to and shuts it down, draining any
// queued messages first. A sink that is not loaded is ErrSinkNotFound; a
// name that does not resolve fails with its resolution error.
func (r *Router) Unload(ref any) (err error) {
	defer func() { r.recordOp(opUnload, err) }()

	r.mu.Lock()

	name, err := r.registry.Fullname(ref)
	if err != nil {
		r.mu.Unlock()
		return err
	}

	list := r.snapshot()
	idx := indexOf(list, name)
	if idx < 0 {
		r.mu.Unlock()
		return fmt.Errorf("Router.Unload: %s: %w", name, ErrSinkNotFound)
	}
	old := list[idx]
	r.publish(slices.Delete(slices.Clone(list), idx, idx+1))
	r.mu.Unlock()

	r.retire(old, true)
	r.logger.Info("Sink unloaded", "sink", name)
	return nil
}

// retire shuts a sink down once it is no longer registered. forget also
// drops its health and per-sink metric series.
func (r *Router) retire(e *entry, forget bool) {
	name := e.sink.Name()
	if err := e.sink.Shutdown(); err != nil {
		r.logger.Warn("Sink close failed", "sink", name, "error", err)
	}
	if !forget {
		return
	}
	r.health.Remove(name)
	if r.metrics != nil {
		r.metrics.ForgetSink(name)
	}
}

// Reload replaces a loaded sink with a fresh instance built from the
// current definition of its name, picking up a Registry.Redefine. The
// replacement is built and set up first; if that fails the old sink stays
// registered and the error is returned. On success the replacement takes
// the old sink's position and the old sink is shut down. A push already in
// progress that reaches the old sink after it shut down is delivered to the
// replacement, so every message reaches exactly one of the two instances.
func (r *Router) Reload(ref any) (err error) {
	defer func() { r.recordOp(opReload, err) }()

	r.mu.Lock()

	if err := r.checkOpen("Reload"); err != nil {
		r.mu.Unlock()
		return err
	}

	name, err := r.registry.Fullname(ref)
	if err != nil {
		r.mu.Unlock()
		return err
	}

	list := r.snapshot()
	idx := indexOf(list, name)
	if idx < 0 {
		r.mu.Unlock()
		return fmt.Errorf("Router.Reload: %s: %w", name, ErrSinkNotFound)
	}
	old := list[idx]

	def, err := r.registry.Resolve(old.def, loader.ForceReload())
	if err != nil {
		r.mu.Unlock()
		return err
	}

	e, err := r.build(def)
	if err != nil {
		r.mu.Unlock()
		return err
	}

	next := slices.Clone(list)
	next[idx] = e
	r.publish(next)
	r.mu.Unlock()

	r.retire(old, false)
	r.logger.Info("Sink reloaded", "sink", name, "generation", e.gen)
	return nil
}

// ReloadAll reloads every loaded sink in registration order. Failures are
// joined; each failed sink keeps running its previous instance.
func (r *Router) ReloadAll() error {
	var errs []error
	for _, e := range r.snapshot() {
		if err := r.Reload(e.def); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PushMessage delivers m to every loaded sink in registration order. It
// never fails: a nil message is logged and ignored, messages pushed after
// Shutdown are dropped, and sink failures are contained by the sinks.
func (r *Router) PushMessage(m *message.Message) {
	if m == nil {
		r.logger.Warn("Ignoring nil message")
		return
	}
	if r.closed.Load() {
		r.dropped.Add(1)
		r.logger.Debug("Dropping message pushed after shutdown", "message_id", m.ID().String())
		return
	}

	r.messages.Add(1)
	if r.metrics != nil {
		r.metrics.RecordMessage(m.Type().String())
	}

	for _, e := range r.snapshot() {
		r.deliver(e.sink, m)
	}
}

// deliver pushes m to s. A sink retired by Reload after the caller's
// snapshot was taken rejects m, so m follows the name to the instance that
// replaced it. Nothing is registered under the name after Unload, and m is
// dropped.
func (r *Router) deliver(s *sink.Sink, m *message.Message) {
	for {
		err := s.PushMessage(m)
		if err == nil {
			r.recordDepth(s)
			return
		}
		if !errors.Is(err, errors.ErrShuttingDown) {
			r.logger.Debug("Sink rejected message", "sink", s.Name(), "error", err)
			return
		}
		cur := r.lookup(s.Name())
		if cur == nil || cur.sink == s {
			r.logger.Debug("Sink retired before delivery", "sink", s.Name(), "message_id", m.ID().String())
			return
		}
		s = cur.sink
	}
}

func (r *Router) recordDepth(s *sink.Sink) {
	if r.metrics == nil || s.Discipline() != sink.Queued {
		return
	}
	r.metrics.RecordQueueDepth(s.Name(), s.Stats().Queued)
}

// deliveryFailed is installed as every sink's FailureFunc
func (r *Router) deliveryFailed(de *errors.DeliveryError) {
	r.health.RecordFailure(de.Sink, de)

	if !r.errLimiter.Allow() {
		r.suppressed.Add(1)
		return
	}
	r.logger.Warn("Sink delivery failed",
		"sink", de.Sink,
		"message_id", de.MessageID,
		"type", de.Type,
		"panic", de.Panic,
		"error", de.Err,
		"suppressed", r.suppressed.Swap(0),
	)
}

// deliveryDone is installed as every sink's ResultFunc
func (r *Router) deliveryDone(res sink.Result) {
	status := metric.StatusOK
	switch {
	case res.Err == nil:
		r.health.RecordSuccess(res.Sink)
	case res.Err.Panic:
		status = metric.StatusPanic
	default:
		status = metric.StatusError
	}

	if r.metrics == nil {
		return
	}
	r.metrics.RecordDelivery(res.Sink, status, res.Duration)
	if e := r.lookup(res.Sink); e != nil {
		r.recordDepth(e.sink)
	}
}

func (r *Router) lookup(name string) *entry {
	list := r.snapshot()
	if idx := indexOf(list, name); idx >= 0 {
		return list[idx]
	}
	return nil
}

// Shutdown stops the router. Further Load and Reload calls fail with
// ErrShuttingDown and pushed messages are dropped. Every sink is shut down
// in registration order, draining queued sinks. Close errors from handlers
// are joined. Calling Shutdown again returns nil.
func (r *Router) Shutdown() error {
	r.mu.Lock()
	if r.closed.Swap(true) {
		r.mu.Unlock()
		return nil
	}
	list := r.snapshot()
	r.publish(make([]*entry, 0))
	r.mu.Unlock()

	r.logger.Info("Router shutting down", "sinks", len(list), "messages", r.messages.Load())

	var errs []error
	for _, e := range list {
		if err := e.sink.Shutdown(); err != nil {
			errs = append(errs, err)
		}
		r.health.Remove(e.sink.Name())
		if r.metrics != nil {
			r.metrics.ForgetSink(e.sink.Name())
		}
	}
	return errors.Join(errs...)
}

// Closed reports whether Shutdown has been called
func (r *Router) Closed() bool {
	return r.closed.Load()
}

// SetSettings replaces the per-sink settings handed to factories, keyed by
// qualified sink name. Settings take effect on the next Load or Reload. It
// returns the loaded sinks whose settings changed, in registration order.
func (r *Router) SetSettings(settings map[string]json.RawMessage) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var changed []string
	for _, e := range r.snapshot() {
		name := e.sink.Name()
		if string(r.settings[name]) != string(settings[name]) {
			changed = append(changed, name)
		}
	}

	r.settings = maps.Clone(settings)
	if r.settings == nil {
		r.settings = make(map[string]json.RawMessage)
	}
	return changed
}

// Reconcile makes the loaded set match names: sinks no longer listed are
// unloaded first, then missing names are loaded in the given order. Sinks
// already loaded are left running. Errors are joined.
func (r *Router) Reconcile(names []string) error {
	var errs []error

	want := make(map[string]bool, len(names))
	resolved := make([]string, 0, len(names))
	for _, ref := range names {
		name, err := r.registry.Fullname(ref)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !want[name] {
			want[name] = true
			resolved = append(resolved, name)
		}
	}

	for _, e := range r.snapshot() {
		if name := e.sink.Name(); !want[name] {
			if err := r.Unload(e.def); err != nil && !errors.Is(err, ErrSinkNotFound) {
				errs = append(errs, err)
			}
		}
	}

	for _, name := range resolved {
		if r.lookup(name) != nil {
			continue
		}
		if err := r.Load(name); err != nil && !errors.Is(err, ErrSinkAlreadyLoaded) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Find returns the loaded sink ref resolves to
func (r *Router) Find(ref any) (*sink.Sink, error) {
	name, err := r.registry.Fullname(ref)
	if err != nil {
		return nil, err
	}
	e := r.lookup(name)
	if e == nil {
		return nil, fmt.Errorf("Router.Find: %s: %w", name, ErrSinkNotFound)
	}
	return e.sink, nil
}

// Sinks describes the loaded sinks in registration order
func (r *Router) Sinks() []SinkInfo {
	list := r.snapshot()
	out := make([]SinkInfo, 0, len(list))
	for _, e := range list {
		out = append(out, SinkInfo{
			Name:        e.sink.Name(),
			Description: e.def.Description,
			Discipline:  e.sink.Discipline().String(),
			Types:       e.sink.Types(),
			Stats:       e.sink.Stats(),
			LoadedAt:    e.loadedAt,
			Generation:  e.gen,
		})
	}
	return out
}

// Len returns the number of loaded sinks
func (r *Router) Len() int {
	return len(r.snapshot())
}

// MessageCount returns the number of messages accepted by PushMessage
func (r *Router) MessageCount() uint64 {
	return r.messages.Load()
}

// DroppedCount returns the number of messages pushed after Shutdown
func (r *Router) DroppedCount() uint64 {
	return r.dropped.Load()
}

// Health aggregates the health of the loaded sinks
func (r *Router) Health() health.Status {
	st := r.health.AggregateHealth("router")
	if r.closed.Load() {
		st = health.NewUnhealthy("router", "Router shut down")
	}
	return st
}

// String implements fmt.Stringer. It reports "locked" instead of waiting
// while a registration change is in progress.
func (r *Router) String() string {
	if !r.mu.TryLock() {
		return "<habitat.Router: locked>"
	}
	defer r.mu.Unlock()
	return fmt.Sprintf("<habitat.Router: %d sinks loaded, %d messages so far>", r.Len(), r.MessageCount())
}
