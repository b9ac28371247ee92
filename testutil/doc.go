// Package testutil provides test helpers for the habitat router.
//
// Handlers:
//
//   - RecordingHandler records every message it handles and can be waited on
//   - GateHandler blocks inside Handle until released, for flush and
//     ordering tests
//   - FailingHandler returns an error or panics on demand
//   - PushbackHandler pushes a follow-up message back into the router
//
// Data:
//
//   - SampleListener and SampleMessage build messages with realistic payloads
//     for each message type
//
// NATS:
//
//   - MockNATSClient is an in-memory publisher matching natsclient.Client's
//     Publish and JetStream signatures, with error injection for retry tests
//
// All helpers are safe for concurrent use.
package testutil
