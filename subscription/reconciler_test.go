package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type reconcilerEvent struct {
	num EventNumber
}

func (e reconcilerEvent) Position() EventNumber { return e.num }

func reconcilerKind() Kind[EventNumber, reconcilerEvent] {
	return StreamKind[reconcilerEvent]()
}

func TestEnqueueDropsAtOrBelowLast(t *testing.T) {
	k := reconcilerKind()
	last := some[EventNumber](3)
	g := newGate[reconcilerEvent](10)

	enqueue(k, &last, g, []reconcilerEvent{{1}, {2}, {3}, {4}, {5}})

	assert.Equal(t, []reconcilerEvent{{4}, {5}}, g.buffer)

	lastVal, ok := last.get()
	assert.True(t, ok)
	assert.Equal(t, EventNumber(5), lastVal)
}

func TestEnqueueAdvancesLastEvenFromNone(t *testing.T) {
	k := reconcilerKind()
	last := none[EventNumber]()
	g := newGate[reconcilerEvent](10)

	enqueue(k, &last, g, []reconcilerEvent{{0}, {1}})

	assert.Equal(t, []reconcilerEvent{{0}, {1}}, g.buffer)
}

func TestStashAppendAndFlush(t *testing.T) {
	var s stash[reconcilerEvent]

	s.append(reconcilerEvent{1})
	s.append(reconcilerEvent{2})

	flushed := s.flush()

	assert.Equal(t, []reconcilerEvent{{1}, {2}}, flushed)
	assert.Empty(t, s.events)
}

func TestMeetsIsVacuouslyTrueForEmptyPage(t *testing.T) {
	k := reconcilerKind()
	assert.True(t, meets(k, EventNumber(5), nil))
}

func TestMeetsRequiresStrictlyPastSubNum(t *testing.T) {
	k := reconcilerKind()

	assert.False(t, meets(k, EventNumber(5), []reconcilerEvent{{3}, {5}}))
	assert.True(t, meets(k, EventNumber(5), []reconcilerEvent{{3}, {6}}))
}
