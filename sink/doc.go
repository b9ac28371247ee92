// Package sink implements the consumer side of the habitat router.
//
// A Handler is the user-supplied code: Setup declares which message types
// it wants and Handle processes one message. A Sink wraps a Handler with an
// interest set and one of two delivery disciplines:
//
//   - Inline runs Handle on the producer's goroutine. Handle may run on
//     several goroutines at once and must be safe for that. A handler may
//     push messages back into the router from inside Handle.
//   - Queued appends to an unbounded FIFO and returns at once. A single
//     goroutine owned by the sink pops messages in order and runs Handle,
//     so at most one Handle is active per sink.
//
// Interest is checked when the message is delivered, so a queued sink that
// drops a type from its interest set will skip messages of that type still
// waiting in its queue. The interest set may be changed concurrently with
// delivery; a message racing with a change may be delivered or skipped.
//
// Errors and panics raised by Handle never reach the producer. They are
// wrapped in an *errors.DeliveryError and passed to the sink's FailureFunc.
//
// Flush and Shutdown wait for delivery to finish. Calling either from
// inside the same sink's Handle deadlocks: a queued sink waits for its own
// worker, an inline sink waits for its own in-flight count.
package sink
