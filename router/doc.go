// Package router implements the habitat message server: a set of sinks
// loaded by qualified name from a loader.Registry, and a PushMessage entry
// point that fans each message out to every loaded sink.
//
// # Registration
//
// Load, Unload and Reload are serialised by a single mutex. They build a new
// registration list and publish it atomically; PushMessage reads the current
// list without locking, so concurrent producers never wait on a sink being
// loaded or torn down. Fan-out follows registration order. Each sink's own
// delivery discipline decides whether Handle runs on the producer's goroutine
// (inline) or on the sink's worker (queued).
//
// Reload builds and sets up the replacement before it touches the list. If
// anything fails the old sink stays registered and active; on success the
// replacement takes the same position and the old sink is shut down, so a
// queued sink finishes its backlog with the old code.
//
// # Failures
//
// A sink that returns an error or panics from Handle never affects the
// producer or the other sinks. The failure is logged (rate limited), counted
// in habitat_router_deliveries_total and marks the sink degraded in the
// health monitor until its next successful delivery.
//
// # Re-entrancy
//
// Handlers may call PushMessage on the router from Setup or Handle. They must
// not call Load, Unload, Reload or Shutdown from Setup; those calls wait for
// the registration mutex held by the Load in progress.
//
//	reg := loader.NewRegistry()
//	sinkregistry.Register(reg)
//
//	r := router.New(reg, router.WithLogger(logger))
//	if err := r.Load("habitat.sinks.LogSink"); err != nil {
//	    return err
//	}
//	r.PushMessage(msg)
//	defer r.Shutdown()
package router
