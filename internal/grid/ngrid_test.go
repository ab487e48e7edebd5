package grid

import (
	"testing"
	"time"

	"github.com/l1jgo/worldserver/internal/core/arena"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func never() bool  { return false }
func always() bool { return true }

func TestCell_SwapRemove(t *testing.T) {
	var c Cell
	h1, h2, h3 := arena.NewHandle(1, 1), arena.NewHandle(2, 1), arena.NewHandle(3, 1)
	s1 := c.Insert(KindCreature, h1)
	c.Insert(KindCreature, h2)
	c.Insert(KindCreature, h3)

	moved, didMove, ok := c.Remove(KindCreature, s1, h1)
	require.True(t, ok)
	assert.True(t, didMove)
	assert.Equal(t, h3, moved)
	assert.Equal(t, []arena.Handle{h3, h2}, c.Handles(KindCreature))

	_, _, ok = c.Remove(KindCreature, s1, h1)
	assert.False(t, ok, "stale slot/handle pair is rejected")
}

func TestCanTransition(t *testing.T) {
	legal := map[[2]State]bool{
		{StateInvalid, StateActive}: true,
		{StateActive, StateIdle}:    true,
		{StateIdle, StateActive}:    true,
		{StateIdle, StateRemoval}:   true,
	}
	all := []State{StateInvalid, StateActive, StateIdle, StateRemoval}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, legal[[2]State{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestNGrid_LifecycleToRemoval(t *testing.T) {
	g := NewNGrid(GridCoord{X: 10, Y: 10})
	require.True(t, g.SetState(StateActive))
	g.ResetExpiry(time.Second)

	assert.False(t, g.Tick(500*time.Millisecond, time.Second, never))
	assert.Equal(t, StateActive, g.State())
	assert.False(t, g.Tick(600*time.Millisecond, time.Second, never))
	assert.Equal(t, StateIdle, g.State())
	assert.False(t, g.Tick(500*time.Millisecond, time.Second, never))
	assert.True(t, g.Tick(600*time.Millisecond, time.Second, never))
	assert.Equal(t, StateRemoval, g.State())

	assert.False(t, g.SetState(StateActive), "removal is terminal")
	assert.False(t, g.Tick(time.Hour, time.Second, never))
}

func TestNGrid_KeepActiveHoldsGrid(t *testing.T) {
	g := NewNGrid(GridCoord{})
	g.SetState(StateActive)
	g.ResetExpiry(time.Second)

	for i := 0; i < 10; i++ {
		assert.False(t, g.Tick(time.Second, time.Second, always))
	}
	assert.Equal(t, StateActive, g.State())
}

func TestNGrid_IdleReactivates(t *testing.T) {
	g := NewNGrid(GridCoord{})
	g.SetState(StateActive)
	g.Tick(2*time.Second, time.Second, never)
	require.Equal(t, StateIdle, g.State())

	assert.False(t, g.Tick(10*time.Millisecond, time.Second, always))
	assert.Equal(t, StateActive, g.State())
	assert.Equal(t, time.Second, g.Expiry())
}

func TestNGrid_PlayerPreventsIdle(t *testing.T) {
	g := NewNGrid(GridCoord{})
	g.SetState(StateActive)
	g.Insert(3, 4, KindPlayer, arena.NewHandle(0, 1))

	for i := 0; i < 5; i++ {
		assert.False(t, g.Tick(time.Minute, time.Second, never))
	}
	assert.Equal(t, StateActive, g.State())
	assert.Equal(t, 1, g.Count(KindPlayer))
}

func TestNGrid_UnloadLock(t *testing.T) {
	g := NewNGrid(GridCoord{})
	g.SetState(StateActive)
	g.IncUnloadLock()
	g.Tick(2*time.Second, time.Second, never)
	require.Equal(t, StateIdle, g.State())

	assert.False(t, g.Tick(2*time.Second, time.Second, never))
	assert.Equal(t, StateIdle, g.State())

	g.DecUnloadLock()
	assert.True(t, g.Tick(2*time.Second, time.Second, never))
}
