package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "habitat"

// Delivery status label values
const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusPanic = "panic"
)

// Metrics contains the router's core metrics
type Metrics struct {
	MessagesTotal   *prometheus.CounterVec
	DeliveriesTotal *prometheus.CounterVec
	HandleDuration  *prometheus.HistogramVec
	SinksLoaded     prometheus.Gauge
	QueueDepth      *prometheus.GaugeVec
	LoadOperations  *prometheus.CounterVec
	SinkHealthy     *prometheus.GaugeVec

	// NATS metrics
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "messages_total",
				Help:      "Total number of messages pushed into the router",
			},
			[]string{"type"},
		),

		DeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "deliveries_total",
				Help:      "Total number of Handle calls by outcome",
			},
			[]string{"sink", "status"},
		),

		HandleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "handle_duration_seconds",
				Help:      "Time spent in sink Handle in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"sink"},
		),

		SinksLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "sinks_loaded",
				Help:      "Number of sinks currently registered",
			},
		),

		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "queue_depth",
				Help:      "Messages waiting in a queued sink",
			},
			[]string{"sink"},
		),

		LoadOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "load_operations_total",
				Help:      "Load, unload and reload operations by outcome",
			},
			[]string{"op", "status"},
		),

		SinkHealthy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "sink_healthy",
				Help:      "Sink health (0=last delivery failed, 1=last delivery succeeded)",
			},
			[]string{"sink"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.MessagesTotal,
		c.DeliveriesTotal,
		c.HandleDuration,
		c.SinksLoaded,
		c.QueueDepth,
		c.LoadOperations,
		c.SinkHealthy,
		c.NATSConnected,
		c.NATSReconnects,
	}
}

// RecordMessage increments the pushed message counter
func (c *Metrics) RecordMessage(messageType string) {
	c.MessagesTotal.WithLabelValues(messageType).Inc()
}

// RecordDelivery records one Handle call
func (c *Metrics) RecordDelivery(sink, status string, duration time.Duration) {
	c.DeliveriesTotal.WithLabelValues(sink, status).Inc()
	c.HandleDuration.WithLabelValues(sink).Observe(duration.Seconds())
	healthy := 1.0
	if status != StatusOK {
		healthy = 0.0
	}
	c.SinkHealthy.WithLabelValues(sink).Set(healthy)
}

// RecordSinksLoaded sets the registered sink count
func (c *Metrics) RecordSinksLoaded(n int) {
	c.SinksLoaded.Set(float64(n))
}

// RecordQueueDepth sets a queued sink's backlog
func (c *Metrics) RecordQueueDepth(sink string, depth int) {
	c.QueueDepth.WithLabelValues(sink).Set(float64(depth))
}

// RecordLoadOperation counts a load, unload or reload outcome
func (c *Metrics) RecordLoadOperation(op string, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	c.LoadOperations.WithLabelValues(op, status).Inc()
}

// ForgetSink drops every per-sink series for an unloaded sink
func (c *Metrics) ForgetSink(sink string) {
	labels := prometheus.Labels{"sink": sink}
	c.DeliveriesTotal.DeletePartialMatch(labels)
	c.HandleDuration.DeletePartialMatch(labels)
	c.QueueDepth.DeletePartialMatch(labels)
	c.SinkHealthy.DeletePartialMatch(labels)
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}
