package subscription

import "context"

// ReadRequest describes a single forward page read, always issued with
// From exclusive of the page boundary already consumed.
type ReadRequest[P any] struct {
	From           P
	Count          uint32
	ResolveLinkTos bool
	Credentials    *Credentials

	// CorrelationID identifies the subscription this request belongs to,
	// for transports that want to tag outbound calls (e.g. for tracing or
	// server-side logging). Empty when the caller never set
	// Config.CorrelationID.
	CorrelationID string
}

// SubscribeRequest describes the single active live subscription a
// Connection may hold on behalf of the state machine (invariant I4).
type SubscribeRequest struct {
	ResolveLinkTos bool
	Credentials    *Credentials

	// CorrelationID identifies the subscription this request belongs to.
	// See ReadRequest.CorrelationID.
	CorrelationID string
}

// Connection is the outbound half of the connection port (§4.4). One
// Connection instance is already bound to a single target, either a named
// stream or the all-streams feed; the state machine never chooses between
// them.
//
// Implementations are asynchronous: each method starts the operation and
// returns immediately, delivering its outcome later as one or more
// Inbound values pushed onto mailbox. The state machine issues at most one
// outstanding Read and at most one active SubscribeTo at a time (I4); a
// Connection implementation may rely on that to simplify its own
// bookkeeping.
type Connection[P any, E Event[P]] interface {
	// Read starts a single forward page read. Eventually delivers exactly
	// one of ReadCompleted[P, E] or FailureMsg to mailbox.
	Read(ctx context.Context, req ReadRequest[P], mailbox chan<- Inbound)

	// SubscribeTo starts a live push subscription. Eventually delivers
	// exactly one SubscribeCompleted[P] or FailureMsg, and, once confirmed,
	// zero or more EventAppeared[E] until Unsubscribed or FailureMsg arrives.
	SubscribeTo(ctx context.Context, req SubscribeRequest, mailbox chan<- Inbound)

	// Unsubscribe tears down an active live subscription. Eventually
	// delivers exactly one Unsubscribed or FailureMsg to mailbox.
	Unsubscribe(ctx context.Context, mailbox chan<- Inbound)
}

// Inbound is the marker interface implemented by every message the
// connection port may push onto a subscription's mailbox.
type Inbound interface {
	isInbound()
}

// ReadCompleted reports the outcome of a Read request.
type ReadCompleted[P any, E Event[P]] struct {
	Events      []E
	Next        P
	EndOfStream bool
}

func (ReadCompleted[P, E]) isInbound() {}

// SubscribeCompleted reports that a live subscription has been confirmed
// by the server, and the position that was "current" at that moment.
type SubscribeCompleted[P any] struct {
	At P
}

func (SubscribeCompleted[P]) isInbound() {}

// EventAppeared reports a single live event pushed by an active
// subscription.
type EventAppeared[E any] struct {
	Event E
}

func (EventAppeared[E]) isInbound() {}

// Unsubscribed reports a server-initiated or requested teardown of the
// push channel.
type Unsubscribed struct{}

func (Unsubscribed) isInbound() {}

// FailureMsg reports a connection-level error, mapped from the Err field
// via the error taxonomy in errors.go.
type FailureMsg struct {
	Err error
}

func (FailureMsg) isInbound() {}
