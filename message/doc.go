// Package message defines the values routed by the habitat router.
//
// A Message is an immutable record with a closed Type tag, a Listener that
// identifies where it came from, and an opaque payload. Messages are created
// once with New and then shared by pointer between every sink that receives
// them; nothing in the router mutates a Message after construction.
//
//	src, err := message.NewListener("M0ZZZ", "192.0.2.10")
//	msg, err := message.New(src, message.Telem, payload)
//
// The four types correspond to the stages of telemetry handling:
//
//   - ReceivedTelem: raw telemetry as a listener heard it
//   - ListenerInfo: descriptive information about a listener station
//   - ListenerTelem: a listener station's own telemetry (its position)
//   - Telem: parsed telemetry from a payload
package message
