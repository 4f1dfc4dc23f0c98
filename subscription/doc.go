// Package subscription implements a client-side catch-up subscription
// engine for an append-only event store.
//
// A subscription reconciles two concurrent sources of events into one
// ordered, gap-free, monotonically increasing stream: a paginated
// historical read API and a server-push subscribe API. It bridges the two
// during a "catch-up" phase, then serves live events once they meet.
//
// The state machine itself is transport-agnostic: it drives a Connection
// port (see connection.go) and delivers to a Consumer port (see
// consumer.go). Two instantiations are provided out of the box, StreamKind
// (positions are EventNumber) and AllKind (positions are Position),
// sharing the same control skeleton via the Kind value passed to Run.
package subscription
