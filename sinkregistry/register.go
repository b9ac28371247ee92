// Package sinkregistry registers the bundled habitat sinks with a loader registry.
package sinkregistry

import (
	"errors"

	pkgerrors "github.com/ukhas/habitat-sub001/errors"
	"github.com/ukhas/habitat-sub001/loader"
	"github.com/ukhas/habitat-sub001/output/counter"
	"github.com/ukhas/habitat-sub001/output/file"
	"github.com/ukhas/habitat-sub001/output/httppost"
	"github.com/ukhas/habitat-sub001/output/logsink"
	"github.com/ukhas/habitat-sub001/output/natspub"
	"github.com/ukhas/habitat-sub001/output/websocket"
)

// Register registers every bundled sink under loader.BuiltinModule:
//
//   - LogSink (inline, slog)
//   - Counter (inline, per-type counts and gauge)
//   - JSONLFile (queued, rotated JSON Lines file)
//   - HTTPPost (queued, webhooks)
//   - NATSPublisher (queued, per-type NATS subjects)
//   - WebSocket (queued, broadcasting)
//
// Sinks provided by other modules are mounted separately with Registry.Mount.
func Register(registry *loader.Registry) error {
	// Nil registry is a programming error (fatal), not invalid input
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"SinkRegistry", "Register", "registry validation")
	}

	sinks := []struct {
		name     string
		register func(*loader.Registry) error
	}{
		{logsink.Member, logsink.Register},
		{counter.Member, counter.Register},
		{file.Member, file.Register},
		{httppost.Member, httppost.Register},
		{natspub.Member, natspub.Register},
		{websocket.Member, websocket.Register},
	}

	for _, s := range sinks {
		if err := s.register(registry); err != nil {
			return pkgerrors.WrapInvalid(err, "SinkRegistry", "Register", s.name+" sink registration")
		}
	}

	return nil
}
