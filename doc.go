// Package habitat is an in-process message router for balloon telemetry.
//
// A single producer pushes typed messages (received telemetry, listener
// information, listener telemetry, parsed telemetry) into a Router, which
// fans each one out to every loaded sink whose interest set contains the
// message's type. Sinks are loaded, unloaded and reloaded at runtime by
// qualified name, and reloading picks up the latest definition registered
// under that name.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│            cmd/habitat              │  Flags, config watch,
//	│  (config, signals, metrics server)  │  SIGHUP reload
//	└─────────────────────────────────────┘
//	           ↓ drives
//	┌─────────────────────────────────────┐
//	│              router                 │  load / unload / reload
//	│     (ordered set of live sinks)     │  push / shutdown
//	└─────────────────────────────────────┘
//	           ↓ resolves via      ↓ delivers to
//	┌──────────────────┐  ┌──────────────────────┐
//	│      loader      │  │        sink          │  Inline or queued
//	│ (registry, name  │  │ (interest set, flush,│  delivery
//	│   resolution)    │  │    stats)            │
//	└──────────────────┘  └──────────────────────┘
//	                               ↓ wraps
//	┌─────────────────────────────────────┐
//	│              output/*               │  LogSink, Counter,
//	│        (sink.Handler types)         │  JSONLFile, HTTPPost,
//	│                                     │  NATSPublisher, WebSocket
//	└─────────────────────────────────────┘
//
// # Packages
//
//   - message: Type, Listener and Message value types
//   - sink: the Handler contract and the two delivery disciplines
//   - loader: Registry of sink definitions, name validation and resolution
//   - router: the Router
//   - output/...: built-in sinks, registered by sinkregistry
//   - config: layered JSON/YAML configuration and a file watcher
//   - errors: classified errors (transient, invalid, fatal) and kinds
//   - metric, health: Prometheus registry, /metrics and /health server
//   - natsclient: NATS connection used by the NATS publisher sink
//   - pkg/retry: backoff for sinks that talk to the network
//
// # Quick Start
//
//	registry := loader.NewRegistry()
//	if err := sinkregistry.Register(registry); err != nil {
//		return err
//	}
//
//	rt := router.New(registry, router.WithLogger(logger))
//	defer rt.Shutdown()
//
//	if err := rt.Load("habitat.sinks.LogSink"); err != nil {
//		return err
//	}
//
//	msg, err := message.New(listener, message.Telem, payload)
//	if err != nil {
//		return err
//	}
//	rt.PushMessage(msg)
//
// Run the daemon:
//
//	go build -o bin/habitat ./cmd/habitat
//	./bin/habitat --config habitat.yaml
package habitat
