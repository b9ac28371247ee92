// Package metric provides Prometheus metrics for the habitat router.
//
// MetricsRegistry wraps a private prometheus.Registry (never the global
// default registry) so several routers and tests can run in one process.
// It registers Go runtime and process collectors and the router's core
// Metrics, and lets sinks register their own collectors under a
// "service.metric" key with duplicate detection:
//
//	reg := metric.NewMetricsRegistry()
//	counts := prometheus.NewGaugeVec(opts, []string{"type"})
//	if err := reg.RegisterGaugeVec("counter-sink", "messages", counts); err != nil {
//	    return err
//	}
//	defer reg.Unregister("counter-sink", "messages")
//
// Core metrics, all under the habitat_router_ prefix:
//
//	messages_total{type}                 messages pushed into the router
//	deliveries_total{sink,status}        handle attempts (ok, error, panic)
//	handle_duration_seconds{sink}        time spent in Handle
//	sinks_loaded                         number of registered sinks
//	queue_depth{sink}                    messages waiting in a queued sink
//	load_operations_total{op,status}     load, unload and reload outcomes
//	sink_healthy{sink}                   1 after a success, 0 after a failure
//
// Server exposes the registry over HTTP with promhttp, plus a /health
// endpoint backed by a caller-supplied function.
package metric
