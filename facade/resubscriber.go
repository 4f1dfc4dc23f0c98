package facade

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/get-eventually/go-catchup/checkpoint"
	"github.com/get-eventually/go-catchup/logger"
	"github.com/get-eventually/go-catchup/subscription"
)

// Resubscriber reconnects a subscription that has terminated with an
// error, resuming from the last position delivered. The core state
// machine never does this itself: it "never retries a failed read or
// resubscribes after loss"; higher layers reconstruct a new subscription
// from the last delivered position. Resubscriber is that higher layer,
// grounded on the exponential backoff loop subscription.CatchUp.Start
// used to drive its own retry cadence.
//
// An OnComplete from the wrapped subscription is never retried: the core
// only reports it for an expected termination (Cancel, ctx.Done, a
// finite subscription reaching end-of-stream, or a backpressure teardown
// the consumer itself caused), and Resubscriber propagates it straight
// through.
type Resubscriber[P any, E subscription.Event[P]] struct {
	// Start begins one attempt: build (or reuse) a Connection and run the
	// core state machine against it with the given starting position and
	// consumer, returning its Handle.
	Start func(ctx context.Context, from subscription.Start[P], consumer subscription.Consumer[E]) subscription.Handle

	// Position extracts the position of a delivered event, used to
	// compute the from_exclusive of the next reconnect attempt.
	Position func(E) P

	// NewBackOff returns a fresh backoff.BackOff to pace reconnect
	// attempts. Defaults to an uncapped exponential backoff.
	NewBackOff func() backoff.BackOff

	// Checkpoint, when non-nil, persists the position of every delivered
	// event under Name, and is consulted once at the start of Run: if the
	// caller's requested starting position is the default "from the
	// beginning" (Start[P].IsBeginning), a checkpoint found under Name
	// overrides it, so a restarted process resumes where it left off
	// instead of reprocessing the whole log. A checkpoint write failure
	// never interrupts delivery; it is reported to OnCheckpointError, if
	// set, and otherwise ignored.
	Checkpoint checkpoint.Store[P]

	// Name identifies this subscription's checkpoint. Required when
	// Checkpoint is set.
	Name string

	// OnCheckpointError reports a Checkpoint.Read or Checkpoint.Write
	// failure. Optional; a nil value silently ignores checkpoint errors,
	// since a missed checkpoint only costs a replay on the next restart,
	// never a lost event.
	OnCheckpointError func(error)

	// Logger, when set, receives one Info entry per reconnect attempt and
	// one Error entry per checkpoint failure.
	Logger logger.Logger
}

// attemptOutcome carries the terminal signal of one Start attempt: a nil
// Err means OnComplete, a non-nil Err means OnError.
type attemptOutcome struct {
	err error
}

// Run starts the subscription and reconnects it after every OnError,
// transparently to consumer, until an attempt ends with OnComplete, ctx
// is canceled, the returned Handle's Cancel is called, or the backoff
// gives up (then the last error is reported). consumer observes a single OnComplete or OnError only at the
// very end of the whole reconnect loop, never per attempt.
func (r Resubscriber[P, E]) Run(
	ctx context.Context,
	from subscription.Start[P],
	consumer subscription.Consumer[E],
) subscription.Handle {
	if r.Checkpoint != nil && from.IsBeginning() {
		if pos, ok, err := r.Checkpoint.Read(ctx, r.Name); err != nil {
			r.reportCheckpointError(err)
		} else if ok {
			from = subscription.FromExact(pos)
		}
	}

	h := &resubscribeHandle[P, E]{}

	go r.loop(ctx, from, consumer, h)

	return h
}

func (r Resubscriber[P, E]) reportCheckpointError(err error) {
	logger.Error(r.Logger, "facade: checkpoint error", logger.With("name", r.Name), logger.With("error", err.Error()))

	if r.OnCheckpointError != nil {
		r.OnCheckpointError(err)
	}
}

func (r Resubscriber[P, E]) newBackOff() backoff.BackOff {
	if r.NewBackOff != nil {
		return r.NewBackOff()
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0

	return b
}

func (r Resubscriber[P, E]) loop(
	ctx context.Context,
	from subscription.Start[P],
	consumer subscription.Consumer[E],
	h *resubscribeHandle[P, E],
) {
	tracked, tracker := subscription.TrackLastPosition[P, E](consumer, r.Position)

	if r.Checkpoint != nil {
		tracked = &checkpointingConsumer[P, E]{
			ctx:      ctx,
			inner:    tracked,
			store:    r.Checkpoint,
			name:     r.Name,
			position: r.Position,
			onError:  r.reportCheckpointError,
		}
	}

	b := r.newBackOff()

	for {
		done := make(chan attemptOutcome, 1)
		inner := &outcomeConsumer[P, E]{inner: tracked, h: h, done: done}

		handle := r.Start(ctx, from, inner)
		h.setCurrent(handle)

		select {
		case <-ctx.Done():
			handle.Cancel()
			consumer.OnComplete()

			return

		case outcome := <-done:
			if h.canceled() {
				consumer.OnComplete()
				return
			}

			if outcome.err == nil {
				// The core state machine only reports OnComplete for an
				// expected termination (Cancel, ctx.Done, a finite
				// subscription reaching end-of-stream, or a backpressure
				// teardown the consumer itself caused by starving). None
				// of those call for a reconnect.
				consumer.OnComplete()
				return
			}

			wait := b.NextBackOff()
			if wait == backoff.Stop {
				logger.Error(r.Logger, "facade: giving up reconnecting", logger.With("name", r.Name), logger.With("error", outcome.err.Error()))
				consumer.OnError(outcome.err)
				return
			}

			logger.Info(r.Logger, "facade: reconnecting after error",
				logger.With("name", r.Name),
				logger.With("error", outcome.err.Error()),
				logger.With("wait", wait.String()),
			)

			select {
			case <-ctx.Done():
				consumer.OnComplete()
				return
			case <-time.After(wait):
			}

			if pos, ok := tracker.Get(); ok {
				from = subscription.FromExact(pos)
			}
		}
	}
}

// resubscribeHandle is the Handle returned by Resubscriber.Run. It
// forwards demand and cancellation to whichever inner subscription
// handle is currently active, and remembers outstanding demand so a
// freshly reconnected subscription starts primed with it.
type resubscribeHandle[P any, E subscription.Event[P]] struct {
	mu           sync.Mutex
	current      subscription.Handle
	demand       uint64
	canceledFlag bool
}

func (h *resubscribeHandle[P, E]) setCurrent(handle subscription.Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.current = handle

	if h.canceledFlag {
		handle.Cancel()
		return
	}

	if h.demand > 0 {
		handle.Request(h.demand)
	}
}

func (h *resubscribeHandle[P, E]) consumed() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.demand > 0 {
		h.demand--
	}
}

func (h *resubscribeHandle[P, E]) Request(n uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.demand += n

	if h.current != nil {
		h.current.Request(n)
	}
}

func (h *resubscribeHandle[P, E]) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.canceledFlag = true

	if h.current != nil {
		h.current.Cancel()
	}
}

func (h *resubscribeHandle[P, E]) canceled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.canceledFlag
}

// outcomeConsumer intercepts the terminal call of one Start attempt,
// forwarding OnNext straight through (tracked for resume position by the
// caller) while turning OnComplete/OnError into a single attemptOutcome
// sent to done instead of propagating to the outer consumer directly.
type outcomeConsumer[P any, E subscription.Event[P]] struct {
	inner subscription.Consumer[E]
	h     *resubscribeHandle[P, E]
	done  chan attemptOutcome
}

func (c *outcomeConsumer[P, E]) OnNext(event E) {
	c.h.consumed()
	c.inner.OnNext(event)
}

func (c *outcomeConsumer[P, E]) OnComplete() {
	select {
	case c.done <- attemptOutcome{}:
	default:
	}
}

func (c *outcomeConsumer[P, E]) OnError(err error) {
	select {
	case c.done <- attemptOutcome{err: err}:
	default:
	}
}

// checkpointingConsumer persists the position of every delivered event to
// a checkpoint.Store after forwarding it, so a checkpoint is never
// ahead of what the caller has actually observed.
type checkpointingConsumer[P any, E subscription.Event[P]] struct {
	ctx      context.Context
	inner    subscription.Consumer[E]
	store    checkpoint.Store[P]
	name     string
	position func(E) P
	onError  func(error)
}

func (c *checkpointingConsumer[P, E]) OnNext(event E) {
	c.inner.OnNext(event)

	if err := c.store.Write(c.ctx, c.name, c.position(event)); err != nil && c.onError != nil {
		c.onError(err)
	}
}

func (c *checkpointingConsumer[P, E]) OnComplete() { c.inner.OnComplete() }

func (c *checkpointingConsumer[P, E]) OnError(err error) { c.inner.OnError(err) }
