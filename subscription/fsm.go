package subscription

import "context"

// phase is the current state of the subscription state machine (§4.1).
type phase uint8

const (
	// phaseReading covers the initial historical paging, before any
	// subscription has ever been confirmed.
	phaseReading phase = iota

	phaseSubscribing
	phaseSubscribingFromLast
	phaseCatchingUp
	phaseSubscribed
	phaseUnsubscribing
	phaseTerminal
)

// demandMsg and cancelMsg are the consumer-port signals (§3's "consumer
// demand/cancel signals"), merged into the same mailbox as the connection
// port's Inbound values so that the state machine has a single serialized
// inbox, per §5's scheduling model.
type demandMsg struct{ n uint64 }

func (demandMsg) isInbound() {}

type cancelMsg struct{}

func (cancelMsg) isInbound() {}

// machine is the mutable runtime state owned by one subscription instance
// (§3's "Runtime state"). It is never accessed concurrently: every field
// is only ever touched from the single goroutine running loop.
type machine[P any, E Event[P]] struct {
	kind     Kind[P, E]
	cfg      Config[P]
	conn     Connection[P, E]
	consumer Consumer[E]

	mailbox chan Inbound
	done    chan struct{}

	ph     phase
	last   optional[P] // I1: greatest position already delivered, or configured start
	next   P           // next position to read from; unused in Subscribed (I3)
	subNum P           // position that was "current" when SubscribeTo was confirmed
	st     stash[E]    // I2: non-empty only during CatchingUp
	gate   *gate[E]
}

// Run starts a subscription against conn, delivering to consumer, and
// returns a Handle for the caller to drive demand and cancellation. Run
// itself never blocks: the state machine runs on its own goroutine until
// it reaches Terminal or ctx is canceled.
func Run[P any, E Event[P]](
	ctx context.Context,
	kind Kind[P, E],
	conn Connection[P, E],
	consumer Consumer[E],
	cfg Config[P],
) Handle {
	m := &machine[P, E]{
		kind:     kind,
		cfg:      cfg,
		conn:     conn,
		consumer: consumer,
		mailbox:  make(chan Inbound, 64),
		done:     make(chan struct{}),
		gate:     newGate[E](cfg.bufferCapacity()),
	}

	m.initialize(ctx)

	go m.loop(ctx)

	return &handle[P, E]{mailbox: m.mailbox, done: m.done}
}

// initialize applies the "Initial transition table" of §4.1.
func (m *machine[P, E]) initialize(ctx context.Context) {
	switch m.cfg.From.kind {
	case startFirst:
		m.last = none[P]()
		m.next = m.kind.First
		m.ph = phaseReading
		m.beginRead(ctx)

	case startExact:
		m.last = some(m.cfg.From.pos)
		m.next = m.cfg.From.pos
		m.ph = phaseReading
		m.beginRead(ctx)

	case startLast:
		if m.cfg.Infinite {
			m.last = none[P]()
			m.ph = phaseSubscribingFromLast
			m.beginSubscribe(ctx)
		} else {
			m.terminateComplete()
		}
	}
}

func (m *machine[P, E]) loop(ctx context.Context) {
	defer close(m.done)

	for m.ph != phaseTerminal {
		select {
		case <-ctx.Done():
			// Connection termination (or the caller's own context being
			// canceled) surfaces as a single OnComplete (§4.4, §7).
			m.terminateComplete()
			return
		case raw := <-m.mailbox:
			m.dispatch(ctx, raw)
		}
	}
}

func (m *machine[P, E]) dispatch(ctx context.Context, raw Inbound) {
	switch msg := raw.(type) {
	case cancelMsg:
		m.cancel(ctx)
		return
	case demandMsg:
		m.gate.request(msg.n)
		m.gate.drain(m.consumer)

		return
	}

	switch m.ph {
	case phaseReading:
		m.onReading(ctx, raw)
	case phaseSubscribing:
		m.onSubscribing(ctx, raw)
	case phaseSubscribingFromLast:
		m.onSubscribingFromLast(ctx, raw)
	case phaseCatchingUp:
		m.onCatchingUp(ctx, raw)
	case phaseSubscribed:
		m.onSubscribed(ctx, raw)
	case phaseUnsubscribing:
		m.onUnsubscribing(ctx, raw)
	}
}

// onReading implements the "Reading(next) transitions" of §4.1.
func (m *machine[P, E]) onReading(ctx context.Context, raw Inbound) {
	switch msg := raw.(type) {
	case ReadCompleted[P, E]:
		enqueue(m.kind, &m.last, m.gate, msg.Events)
		m.gate.drain(m.consumer)

		if msg.EndOfStream {
			if m.cfg.Infinite {
				m.next = msg.Next
				m.ph = phaseSubscribing
				m.beginSubscribe(ctx)
			} else {
				m.terminateComplete()
			}

			return
		}

		m.next = msg.Next

		if m.gate.starved() {
			m.ph = phaseUnsubscribing
			m.beginUnsubscribe(ctx)
			return
		}

		m.beginRead(ctx)

	case FailureMsg:
		if absorbable(msg.Err) {
			m.onReading(ctx, ReadCompleted[P, E]{Next: m.next, EndOfStream: true})
			return
		}

		m.fail(msg.Err)
	}
}

// onSubscribing implements the "Subscribing(next) transitions" of §4.1.
func (m *machine[P, E]) onSubscribing(ctx context.Context, raw Inbound) {
	switch msg := raw.(type) {
	case SubscribeCompleted[P]:
		m.subNum = msg.At

		lastVal, ok := m.last.get()
		mustCatchUp := !ok || m.kind.Compare(lastVal, msg.At) < 0

		if mustCatchUp {
			m.st = stash[E]{}
			m.ph = phaseCatchingUp
			m.beginRead(ctx)
		} else {
			m.ph = phaseSubscribed
		}

	case Unsubscribed:
		m.terminateComplete()

	case FailureMsg:
		m.fail(msg.Err)
	}
}

// onSubscribingFromLast implements the SubscribingFromLast row of §4.1:
// it shares Subscribing's failure/unsubscribe handling but always lands
// directly in Subscribed, since there is no historical position to catch
// up to.
func (m *machine[P, E]) onSubscribingFromLast(ctx context.Context, raw Inbound) {
	switch raw.(type) {
	case SubscribeCompleted[P]:
		m.ph = phaseSubscribed

	case Unsubscribed:
		m.terminateComplete()

	case FailureMsg:
		m.fail(raw.(FailureMsg).Err)
	}
}

// onCatchingUp implements the "CatchingUp(next, subNum, stash)
// transitions" of §4.1, including the meeting condition and stash flush.
func (m *machine[P, E]) onCatchingUp(ctx context.Context, raw Inbound) {
	switch msg := raw.(type) {
	case EventAppeared[E]:
		m.st.append(msg.Event)

	case ReadCompleted[P, E]:
		enqueue(m.kind, &m.last, m.gate, msg.Events)
		m.gate.drain(m.consumer)

		if meets(m.kind, m.subNum, msg.Events) {
			m.flushStashAndSubscribe()
			return
		}

		m.next = msg.Next

		if m.gate.starved() {
			m.ph = phaseUnsubscribing
			m.beginUnsubscribe(ctx)
			return
		}

		m.beginRead(ctx)

	case Unsubscribed:
		m.terminateComplete()

	case FailureMsg:
		if absorbable(msg.Err) {
			// Treated as an empty read at next: the meeting condition is
			// vacuously true for an empty page.
			m.flushStashAndSubscribe()
			return
		}

		m.fail(msg.Err)

	case SubscribeCompleted[P]:
		// Resubscription edge case (§4.1): a duplicate SubscribeCompleted
		// while CatchingUp is a no-op.
	}
}

func (m *machine[P, E]) flushStashAndSubscribe() {
	enqueue(m.kind, &m.last, m.gate, m.st.flush())
	m.gate.drain(m.consumer)
	m.ph = phaseSubscribed
}

// onSubscribed implements the "Subscribed transitions" of §4.1.
func (m *machine[P, E]) onSubscribed(ctx context.Context, raw Inbound) {
	switch msg := raw.(type) {
	case EventAppeared[E]:
		enqueue(m.kind, &m.last, m.gate, []E{msg.Event})
		m.gate.drain(m.consumer)

		if m.gate.starved() {
			m.ph = phaseUnsubscribing
			m.beginUnsubscribe(ctx)
		}

	case Unsubscribed:
		m.terminateComplete()

	case FailureMsg:
		m.fail(msg.Err)

	case SubscribeCompleted[P]:
		// Resubscription edge case (§4.1): ignored here too, in case a
		// stale confirmation from a prior SubscribeTo arrives late.
	}
}

// onUnsubscribing implements the "Unsubscribing transitions" of §4.1:
// absorb further pushes, swallow the Unsubscribed reply, terminate.
func (m *machine[P, E]) onUnsubscribing(ctx context.Context, raw Inbound) {
	switch msg := raw.(type) {
	case EventAppeared[E]:
		// Absorbed silently: no pushed event is buffered or delivered
		// once Unsubscribing has been entered. Events buffered before
		// that still drain if demand arrives (see dispatch).

	case Unsubscribed:
		m.terminateComplete()

	case FailureMsg:
		// "Any failure during probing terminates the subscription" (§5).
		m.fail(msg.Err)
	}
}

// cancel implements §5's Cancel handling: from any state, move directly
// to Terminal, discard buffered/stashed state, optionally release a live
// subscription, and complete.
func (m *machine[P, E]) cancel(ctx context.Context) {
	if m.ph == phaseTerminal {
		return
	}

	switch m.ph {
	case phaseSubscribing, phaseSubscribingFromLast, phaseCatchingUp, phaseSubscribed, phaseUnsubscribing:
		m.conn.Unsubscribe(ctx, m.mailbox)
	}

	m.gate.discard()
	m.st.flush()
	m.ph = phaseTerminal
	m.consumer.OnComplete()
}

func (m *machine[P, E]) terminateComplete() {
	if m.ph == phaseTerminal {
		return
	}

	m.ph = phaseTerminal
	m.consumer.OnComplete()
}

func (m *machine[P, E]) fail(err error) {
	if m.ph == phaseTerminal {
		return
	}

	m.ph = phaseTerminal
	m.consumer.OnError(wrapf("Subscription", err))
}

func (m *machine[P, E]) beginRead(ctx context.Context) {
	m.conn.Read(ctx, ReadRequest[P]{
		From:           m.next,
		Count:          m.cfg.readBatchSize(),
		ResolveLinkTos: m.cfg.ResolveLinkTos,
		Credentials:    m.cfg.Credentials,
		CorrelationID:  m.cfg.CorrelationID,
	}, m.mailbox)
}

func (m *machine[P, E]) beginSubscribe(ctx context.Context) {
	m.conn.SubscribeTo(ctx, SubscribeRequest{
		ResolveLinkTos: m.cfg.ResolveLinkTos,
		Credentials:    m.cfg.Credentials,
		CorrelationID:  m.cfg.CorrelationID,
	}, m.mailbox)
}

func (m *machine[P, E]) beginUnsubscribe(ctx context.Context) {
	m.conn.Unsubscribe(ctx, m.mailbox)
}

// handle is the Handle implementation returned by Run.
type handle[P any, E Event[P]] struct {
	mailbox chan<- Inbound
	done    chan struct{}
}

func (h *handle[P, E]) Request(n uint64) {
	if n == 0 {
		return
	}

	select {
	case h.mailbox <- demandMsg{n: n}:
	case <-h.done:
	}
}

func (h *handle[P, E]) Cancel() {
	select {
	case h.mailbox <- cancelMsg{}:
	case <-h.done:
	}
}
