package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGateStarvedRequiresBothDemandExhaustedAndBufferFull(t *testing.T) {
	g := newGate[int](2)
	assert.False(t, g.starved(), "no demand and empty buffer is not starved")

	g.offer(1)
	g.offer(2)
	assert.True(t, g.full())
	assert.True(t, g.starved())

	g.request(1)
	assert.False(t, g.starved())
}

func TestGateDrainRespectsDemand(t *testing.T) {
	g := newGate[int](10)
	g.offer(1)
	g.offer(2)
	g.offer(3)
	g.request(2)

	var got []int
	g.drain(consumerFunc[int]{onNext: func(e int) { got = append(got, e) }})

	assert.Equal(t, []int{1, 2}, got)
	assert.Equal(t, uint64(0), g.demand)
	assert.Equal(t, []int{3}, g.buffer)
}

func TestGateRequestSaturatesInsteadOfOverflowing(t *testing.T) {
	g := newGate[int](1)
	g.demand = ^uint64(0) - 1

	g.request(5)

	assert.Equal(t, ^uint64(0), g.demand)
}

func TestGateDiscardDropsBuffer(t *testing.T) {
	g := newGate[int](10)
	g.offer(1)
	g.offer(2)

	g.discard()

	assert.Empty(t, g.buffer)
}

func TestNewGateFallsBackToDefaultCapacity(t *testing.T) {
	g := newGate[int](0)
	assert.Equal(t, DefaultBufferCapacity, g.capacity)

	g = newGate[int](-3)
	assert.Equal(t, DefaultBufferCapacity, g.capacity)
}

// consumerFunc adapts a plain function to Consumer for tests that only
// care about OnNext.
type consumerFunc[E any] struct {
	onNext func(E)
}

func (c consumerFunc[E]) OnNext(e E)      { c.onNext(e) }
func (consumerFunc[E]) OnComplete()       {}
func (consumerFunc[E]) OnError(err error) {}
