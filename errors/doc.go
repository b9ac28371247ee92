// Package errors provides standardized error handling for the habitat router.
//
// # Overview
//
// Errors carry two independent pieces of information.
//
// The class (Transient, Invalid, Fatal) tells a caller what to do next:
// retry, reject the input, or stop. Forwarding sinks use it to decide whether
// to retry a publish.
//
// The kind (ErrTypeKind, ErrValueKind, ErrImportKind, ErrAttributeKind) tells
// a caller why a load-time operation was refused. Message construction and
// reference resolution always return an error that wraps exactly one kind,
// as do the router's duplicate and not-loaded checks. Every kind is Invalid
// class:
//
//	err := r.Load("habitat.sinks.Nope")
//	if errors.IsAttributeKind(err) {
//	    // module exists, member does not
//	}
//
// # Wrapping
//
// Wrap and its classified variants use the format
// "component.method: action failed: %w":
//
//	return errors.WrapTransient(err, "NATSPublisher", "Handle", "publish")
//
// Newf builds a kind error directly:
//
//	return errors.Newf(errors.ErrValueKind, "Message", "New", "type %d out of range", t)
//
// # Delivery failures
//
// A failure inside a sink handler is never returned to the producer. The sink
// wraps it in a *DeliveryError and hands it to the router, which logs it and
// records it in metrics and health.
package errors
