package subscription

import "math"

// DefaultBufferCapacity is the default bound on the number of filtered,
// not-yet-delivered events a subscription holds before it stops asking
// for more (§5). It is a fixed number, not derived from the read batch
// size.
const DefaultBufferCapacity = 512

// gate implements the backpressure half of §5: cumulative demand,
// saturating at the maximum representable value, and a buffer of events
// that have passed the monotone-gate filter (§4.3) but have not yet been
// delivered because demand was exhausted at the time.
//
// A gate never drops an event for being over capacity: capacity is only
// consulted to decide whether the state machine should keep pulling more
// data (I5, §5). Events that already arrived (e.g. an unsolicited
// EventAppeared) are always buffered.
type gate[E any] struct {
	demand   uint64
	buffer   []E
	capacity int
}

func newGate[E any](capacity int) *gate[E] {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}

	return &gate[E]{capacity: capacity}
}

// request adds n to the cumulative demand, saturating instead of
// overflowing.
func (g *gate[E]) request(n uint64) {
	if n == 0 {
		return
	}

	if g.demand > math.MaxUint64-n {
		g.demand = math.MaxUint64
		return
	}

	g.demand += n
}

// offer appends an event that has already passed the monotone-gate
// filter to the buffer, to be drained as demand allows.
func (g *gate[E]) offer(e E) {
	g.buffer = append(g.buffer, e)
}

// full reports whether the buffer has reached its capacity: a signal to
// stop pulling more data, not a rejection of data already received.
func (g *gate[E]) full() bool {
	return len(g.buffer) >= g.capacity
}

// starved reports the exact condition §5 calls out: demand exhausted and
// buffer full. This is when Reading/CatchingUp/Subscribed must transition
// to Unsubscribing rather than requesting or accepting more.
func (g *gate[E]) starved() bool {
	return g.demand == 0 && g.full()
}

// drain emits buffered events to consumer while demand allows (I5: an
// event is never delivered with zero demand).
func (g *gate[E]) drain(consumer Consumer[E]) {
	for g.demand > 0 && len(g.buffer) > 0 {
		e := g.buffer[0]
		g.buffer = g.buffer[1:]
		g.demand--

		consumer.OnNext(e)
	}
}

// discard drops everything buffered, used on cancellation.
func (g *gate[E]) discard() {
	g.buffer = nil
}
