// Package counter provides an inline sink that counts messages per type
package counter

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ukhas/habitat-sub001/errors"
	"github.com/ukhas/habitat-sub001/loader"
	"github.com/ukhas/habitat-sub001/message"
	"github.com/ukhas/habitat-sub001/metric"
	"github.com/ukhas/habitat-sub001/sink"
)

// Member is the name the counter registers under in loader.BuiltinModule
const Member = "Counter"

// Config holds configuration for the counter sink
type Config struct {
	Types []message.Type `json:"types"`
}

// Output keeps a count of handled messages per type and, when a metrics
// registry is available, mirrors it as habitat_counter_messages{type}.
type Output struct {
	types    []message.Type
	registry *metric.MetricsRegistry
	gauge    *prometheus.GaugeVec

	mu     sync.Mutex
	counts map[message.Type]uint64
}

// NewOutput creates a counter sink from its settings
func NewOutput(deps loader.Dependencies) (sink.Handler, error) {
	var config Config
	if err := deps.DecodeSettings(&config); err != nil {
		return nil, err
	}
	if err := message.ValidateTypes(config.Types); err != nil {
		return nil, err
	}

	types := config.Types
	if len(types) == 0 {
		types = message.AllTypes()
	}

	return &Output{
		types:    types,
		registry: deps.MetricsRegistry,
		counts:   make(map[message.Type]uint64),
	}, nil
}

// Setup implements sink.Handler
func (c *Output) Setup(s *sink.Sink) error {
	if c.registry != nil {
		c.gauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "habitat",
			Subsystem: "counter",
			Name:      "messages",
			Help:      "Messages seen by the counter sink since it was loaded",
		}, []string{"type"})
		if err := c.registry.Replace("counter", "messages", c.gauge); err != nil {
			return errors.WrapFatal(err, "Output", "Setup", "register metrics")
		}
	}
	return s.SetTypes(c.types...)
}

// Handle implements sink.Handler
func (c *Output) Handle(m *message.Message) error {
	c.mu.Lock()
	c.counts[m.Type()]++
	n := c.counts[m.Type()]
	c.mu.Unlock()

	if c.gauge != nil {
		c.gauge.WithLabelValues(m.Type().String()).Set(float64(n))
	}
	return nil
}

// Count returns the number of messages of type t handled
func (c *Output) Count(t message.Type) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[t]
}

// Counts returns a copy of all per-type counts
func (c *Output) Counts() map[message.Type]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[message.Type]uint64, len(c.counts))
	for t, n := range c.counts {
		out[t] = n
	}
	return out
}

// Close implements sink.Closer
func (c *Output) Close() error {
	if c.registry != nil && c.gauge != nil {
		c.registry.UnregisterCollector("counter", "messages", c.gauge)
	}
	return nil
}

// Register registers the counter sink with the given registry
func Register(registry *loader.Registry) error {
	return registry.Register(&loader.Definition{
		Module:      loader.BuiltinModule,
		Member:      Member,
		Discipline:  sink.Inline,
		Factory:     NewOutput,
		Description: "Counts messages per type",
	})
}
