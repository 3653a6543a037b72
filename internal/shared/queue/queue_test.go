package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRing_PushPopOrder pops keys in FIFO order.
func TestRing_PushPopOrder(t *testing.T) {
	var q Ring
	q.Init(8)

	for i := uint64(1); i <= 5; i++ {
		require.True(t, q.TryPush(i))
	}
	require.Equal(t, 5, q.Len())

	for i := uint64(1); i <= 5; i++ {
		v, ok := q.TryPop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	_, ok := q.TryPop()
	require.False(t, ok)
}

// TestRing_FullRejectsPush reports overflow instead of growing.
func TestRing_FullRejectsPush(t *testing.T) {
	var q Ring
	q.Init(4)

	// one slot stays open to tell full from empty apart
	require.True(t, q.TryPush(1))
	require.True(t, q.TryPush(2))
	require.True(t, q.TryPush(3))
	require.False(t, q.TryPush(4))

	_, ok := q.TryPop()
	require.True(t, ok)
	require.True(t, q.TryPush(4), "a pop must free one slot")
}

// TestRing_WrapAround survives repeated wrap cycles.
func TestRing_WrapAround(t *testing.T) {
	var q Ring
	q.Init(4)

	for round := uint64(0); round < 20; round++ {
		require.True(t, q.TryPush(round))
		v, ok := q.TryPop()
		require.True(t, ok)
		require.Equal(t, round, v)
	}
	require.Equal(t, 0, q.Len())
}

// TestRing_MinCapacity clamps tiny capacities to a usable ring.
func TestRing_MinCapacity(t *testing.T) {
	var q Ring
	q.Init(0)

	require.True(t, q.TryPush(1))
	v, ok := q.TryPop()
	require.True(t, ok)
	require.Equal(t, uint64(1), v)
}
