// Package health tracks per-sink health for the habitat router.
//
// Three states are reported:
//   - healthy: the sink's last delivery succeeded (or it has not failed yet)
//   - degraded: the sink's last delivery failed; it keeps receiving messages
//   - unhealthy: reserved for failures outside delivery, such as a lost
//     NATS connection
//
// A Monitor holds one Status per name and is safe for concurrent use. The
// router calls RecordFailure after a failed delivery and RecordSuccess after
// the next successful one, and Remove when a sink is unloaded:
//
//	mon := health.NewMonitor()
//	mon.RecordFailure("habitat.sinks.JSONLFile", err)
//	agg := mon.AggregateHealth("router")
//
// Error messages stored in a Status are sanitized: URLs, paths, addresses
// and credential-looking values are replaced with placeholders, so /health
// can be exposed without leaking configuration.
package health
