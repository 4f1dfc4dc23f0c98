package subscription

import "sync/atomic"

// LastPositionTracker records the greatest position delivered through a
// wrapped Consumer, for callers that want to resume a new subscription
// (via FromExact) after the previous one reached Unsubscribing and
// terminated (see §9's Open Question resolution in SPEC_FULL.md).
//
// A LastPositionTracker is safe to read from any goroutine; OnNext itself
// is only ever called from the subscription's own goroutine, per the
// Consumer contract.
type LastPositionTracker[P any] struct {
	val atomic.Pointer[P]
}

// Get returns the last position observed, and whether any position has
// been observed at all.
func (t *LastPositionTracker[P]) Get() (P, bool) {
	p := t.val.Load()
	if p == nil {
		var zero P
		return zero, false
	}

	return *p, true
}

// trackingConsumer wraps a Consumer and records every position it sees
// into a LastPositionTracker before forwarding the call.
type trackingConsumer[P any, E Event[P]] struct {
	inner    Consumer[E]
	tracker  *LastPositionTracker[P]
	position func(E) P
}

// TrackLastPosition wraps consumer so that tracker observes the position
// of every event before it reaches consumer. Pass the returned Consumer
// to Run, and use tracker.Get after the subscription completes to obtain
// the position to resume from with a fresh call to Run.
func TrackLastPosition[P any, E Event[P]](consumer Consumer[E], position func(E) P) (Consumer[E], *LastPositionTracker[P]) {
	tracker := &LastPositionTracker[P]{}

	return &trackingConsumer[P, E]{inner: consumer, tracker: tracker, position: position}, tracker
}

func (t *trackingConsumer[P, E]) OnNext(event E) {
	pos := t.position(event)
	t.tracker.val.Store(&pos)
	t.inner.OnNext(event)
}

func (t *trackingConsumer[P, E]) OnComplete() {
	t.inner.OnComplete()
}

func (t *trackingConsumer[P, E]) OnError(err error) {
	t.inner.OnError(err)
}
