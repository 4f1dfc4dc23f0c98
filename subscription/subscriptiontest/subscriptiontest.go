// Package subscriptiontest provides Connection and Consumer test doubles
// for exercising the subscription state machine without a real
// transport, in the style of the teacher's in-memory event store fakes.
package subscriptiontest

import (
	"context"
	"sync"

	"github.com/get-eventually/go-catchup/subscription"
)

// StreamEvent is a minimal subscription.Event[EventNumber] fake.
type StreamEvent struct {
	Num  subscription.EventNumber
	Data string
}

// Position implements subscription.Event[EventNumber].
func (e StreamEvent) Position() subscription.EventNumber { return e.Num }

// AllEvent is a minimal subscription.Event[Position] fake.
type AllEvent struct {
	Pos  subscription.Position
	Data string
}

// Position implements subscription.Event[Position].
func (e AllEvent) Position() subscription.Position { return e.Pos }

// FakeConnection is a subscription.Connection test double. Every call is
// recorded, and responses are delivered only when the test explicitly
// calls Push, since a real transport's replies always arrive
// asynchronously and out of band from the call that triggered them.
type FakeConnection[P any, E subscription.Event[P]] struct {
	mu sync.Mutex

	Reads        []subscription.ReadRequest[P]
	Subscribes   []subscription.SubscribeRequest
	Unsubscribes int

	mailbox chan<- subscription.Inbound
}

// Read records req and remembers mailbox for later Push calls.
func (f *FakeConnection[P, E]) Read(_ context.Context, req subscription.ReadRequest[P], mailbox chan<- subscription.Inbound) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Reads = append(f.Reads, req)
	f.mailbox = mailbox
}

// SubscribeTo records req and remembers mailbox for later Push calls.
func (f *FakeConnection[P, E]) SubscribeTo(_ context.Context, req subscription.SubscribeRequest, mailbox chan<- subscription.Inbound) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Subscribes = append(f.Subscribes, req)
	f.mailbox = mailbox
}

// Unsubscribe increments Unsubscribes and remembers mailbox.
func (f *FakeConnection[P, E]) Unsubscribe(_ context.Context, mailbox chan<- subscription.Inbound) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Unsubscribes++
	f.mailbox = mailbox
}

// Push delivers msg to the subscription's mailbox, simulating an
// asynchronous transport reply.
func (f *FakeConnection[P, E]) Push(msg subscription.Inbound) {
	f.mu.Lock()
	mailbox := f.mailbox
	f.mu.Unlock()

	mailbox <- msg
}

// ReadCount reports how many Read calls have been observed so far.
func (f *FakeConnection[P, E]) ReadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.Reads)
}

// SubscribeCount reports how many SubscribeTo calls have been observed
// so far.
func (f *FakeConnection[P, E]) SubscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.Subscribes)
}

// UnsubscribeCount reports how many Unsubscribe calls have been observed
// so far.
func (f *FakeConnection[P, E]) UnsubscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.Unsubscribes
}

// LastRead returns the most recent Read request observed, or the zero
// value if none has been observed yet.
func (f *FakeConnection[P, E]) LastRead() subscription.ReadRequest[P] {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.Reads) == 0 {
		var zero subscription.ReadRequest[P]
		return zero
	}

	return f.Reads[len(f.Reads)-1]
}

// LastSubscribe returns the most recent SubscribeTo request observed, or
// the zero value if none has been observed yet.
func (f *FakeConnection[P, E]) LastSubscribe() subscription.SubscribeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.Subscribes) == 0 {
		return subscription.SubscribeRequest{}
	}

	return f.Subscribes[len(f.Subscribes)-1]
}

// FakeConsumer is a subscription.Consumer test double recording every
// call it receives.
type FakeConsumer[E any] struct {
	mu sync.Mutex

	next      []E
	completed bool
	err       error
}

// NewFakeConsumer builds an empty FakeConsumer.
func NewFakeConsumer[E any]() *FakeConsumer[E] {
	return &FakeConsumer[E]{}
}

// OnNext implements subscription.Consumer.
func (c *FakeConsumer[E]) OnNext(event E) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.next = append(c.next, event)
}

// OnComplete implements subscription.Consumer.
func (c *FakeConsumer[E]) OnComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.completed = true
}

// OnError implements subscription.Consumer.
func (c *FakeConsumer[E]) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.err = err
}

// Events returns a snapshot of every event delivered so far.
func (c *FakeConsumer[E]) Events() []E {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]E, len(c.next))
	copy(out, c.next)

	return out
}

// Count returns how many events have been delivered so far.
func (c *FakeConsumer[E]) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.next)
}

// Completed reports whether OnComplete has been observed.
func (c *FakeConsumer[E]) Completed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.completed
}

// Err returns the error passed to OnError, if any.
func (c *FakeConsumer[E]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.err
}
