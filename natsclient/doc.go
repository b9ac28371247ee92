// Package natsclient manages the NATS connection used by habitat's
// publishing sinks.
//
// A Client wraps a single *nats.Conn. Connect dials with the configured
// reconnect options and fails fast once a run of consecutive failures has
// opened the circuit breaker; the circuit closes again after a backoff that
// doubles up to a maximum. Publish and Flush return transient errors
// (errors.IsTransient) when there is no usable connection, so callers can
// retry them with pkg/retry.
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithMaxReconnects(10),
//	    natsclient.WithMetrics(registry),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
// JetStream is set up with each connection. EnsureStream creates or updates
// a stream and PublishToStream waits for the stream's acknowledgement; a
// subject no stream captures fails as invalid rather than transient.
//
// Connection state is mirrored into habitat_nats_connected and reconnects
// into habitat_nats_reconnects_total when WithMetrics is used.
//
// # Testing
//
// NewTestClient starts a nats container with testcontainers-go and returns a
// connected client. Tests that use it carry the integration build tag.
package natsclient
