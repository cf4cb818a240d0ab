// Package notifier delivers rendered notifications to the configured
// destination.
//
// # Delivery
//
// Deliver blocks until the payload was accepted by the destination or the
// retry budget is spent. Attempts are spaced by a fixed delay and by a token
// bucket shared by all callers. A payload that still fails is dropped: it is
// logged, journaled and reported on the event bus, never queued for a later
// cycle.
//
// # History
//
// For debugging and operator visibility, the service keeps a small in-memory
// history of recent deliveries.
package notifier
