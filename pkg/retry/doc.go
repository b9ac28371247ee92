// Package retry provides exponential backoff retry for forwarding sinks.
//
// Sinks that hand messages to an external transport (NATS, files on a
// network share) use it to ride out short outages without blocking the
// router: queued sinks retry on their own worker goroutine, so a slow
// transport only delays that sink.
//
// # Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay
//   - Quick(): 10 attempts, 50ms-1s delay (connecting at startup)
//   - Persistent(): 30 attempts, 200ms-10s delay
//
// # Usage
//
//	cfg := retry.DefaultConfig()
//	cfg.Retryable = errors.IsTransient
//	err := retry.Do(ctx, cfg, func() error {
//	    return client.Publish(ctx, subject, payload)
//	})
//
// Errors wrapped with NonRetryable stop the loop immediately, as do errors
// rejected by Config.Retryable. Cancelling ctx stops retrying both during an
// attempt and during the backoff delay.
package retry
