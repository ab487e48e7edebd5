package maps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l1jgo/worldserver/internal/core/event"
	"github.com/l1jgo/worldserver/internal/grid"
	"github.com/l1jgo/worldserver/internal/persist"
	"github.com/l1jgo/worldserver/internal/world"
)

func assertInCell(t *testing.T, obj *world.Object) {
	t.Helper()
	assert.Equal(t, grid.ComputeCellCoord(obj.Pos.X, obj.Pos.Y), obj.Placement.Cell, "%s", obj)
}

func TestMap_AddPlayerLoadsGridAndSpawns(t *testing.T) {
	f := newFixture(t)
	p := f.player("Anduin", centre)
	m := f.enter(mapContinent, p)

	assert.True(t, p.IsInWorld())
	assertInCell(t, &p.Object)
	assert.True(t, m.CheckGridIntegrity(&p.Object))
	assert.Equal(t, 1, m.LoadedGrids())
	assert.Same(t, &p.Object, m.Find(p.GUID))

	// spawns 1, 2 and 10 share the player's grid; 3 is two grids away
	assert.Equal(t, 4, m.ObjectCount())
	require.NotNil(t, creatureSpawn(m, 1))
	assert.Nil(t, creatureSpawn(m, 3))
	goObj := m.FindSpawn(persist.RespawnGameObject, 10)
	require.NotNil(t, goObj)
	assertInCell(t, goObj)
	assert.False(t, m.AddPlayerToMap(p), "already on the map")
}

func TestMap_AddOutsideMapRefused(t *testing.T) {
	f := newFixture(t)
	m := f.mm.CreateMap(mapContinent, f.player("Varian", centre))
	obj := &world.Object{GUID: 9000, Type: world.TypeCreature, Pos: world.Position{X: 20000, Y: 0}}
	assert.False(t, m.AddToMap(obj))
	assert.False(t, obj.IsInWorld())
	assert.Equal(t, 0, m.LoadedGrids())
}

func TestMap_RemoveIsIdempotent(t *testing.T) {
	f := newFixture(t)
	p := f.player("Jaina", centre)
	m := f.enter(mapContinent, p)
	c := creatureSpawn(m, 1)
	require.NotNil(t, c)
	before := m.ObjectCount()

	m.RemoveFromMap(c, true)
	m.RemoveFromMap(c, true)
	assert.Equal(t, before-1, m.ObjectCount())
	assert.False(t, c.IsInWorld())
	assert.Nil(t, m.Find(c.GUID))

	m.RemovePlayerFromMap(p, false)
	m.RemovePlayerFromMap(p, false)
	assert.False(t, m.HavePlayers())
	assert.False(t, p.IsInWorld())
}

func TestMap_VisitEmitsRangeEvents(t *testing.T) {
	f := newFixture(t)
	p := f.player("Thrall", centre)
	m := f.enter(mapContinent, p)

	var entered, left []world.GUID
	event.Subscribe(m.Bus(), func(e event.ObjectEnteredRange) {
		assert.Equal(t, p.GUID, e.Viewer)
		entered = append(entered, e.Target)
	})
	event.Subscribe(m.Bus(), func(e event.ObjectLeftRange) { left = append(left, e.Target) })

	m.Update(tick)
	near := creatureSpawn(m, 1)
	far := creatureSpawn(m, 2)
	door := m.FindSpawn(persist.RespawnGameObject, 10)
	assert.ElementsMatch(t, []world.GUID{near.GUID, door.GUID}, entered)
	assert.True(t, m.Knows(p.GUID, near.GUID))
	assert.False(t, m.Knows(p.GUID, far.GUID))

	entered = nil
	m.Update(tick)
	assert.Empty(t, entered, "known objects are not announced twice")

	m.CreatureRelocation(near, 266, 450, 0, 0)
	m.Update(tick)
	assert.Equal(t, []world.GUID{near.GUID}, left)
	assert.False(t, m.Knows(p.GUID, near.GUID))

	left = nil
	m.RemoveFromMap(door, true)
	m.Update(tick)
	assert.Equal(t, []world.GUID{door.GUID}, left)
}

func TestMap_MovesDuringVisitAreDeferred(t *testing.T) {
	f := newFixture(t)
	p := f.player("Sylvanas", centre)
	m := f.enter(mapContinent, p)
	c := creatureSpawn(m, 1)
	require.NotNil(t, c)

	var during struct {
		pending   int
		integrity bool
		cell      grid.CellCoord
	}
	moved := false
	m.OnSight(func(m *Map, seer, seen *world.Object) {
		if seen != c || moved {
			return
		}
		moved = true
		m.CreatureRelocation(seen, 200, 200, 0, 0)
		during.pending = m.PendingMoves()
		during.integrity = m.CheckGridIntegrity(seen)
		during.cell = seen.Placement.Cell
	})

	m.Update(tick)
	require.True(t, moved)
	assert.Equal(t, 1, during.pending)
	assert.True(t, during.integrity, "queued moves are inside the deferred window")
	assert.NotEqual(t, grid.ComputeCellCoord(200, 200), during.cell)
	assert.Equal(t, float32(200), c.Pos.X, "position changes at once")

	m.Update(tick)
	assert.Zero(t, m.PendingMoves())
	assertInCell(t, c)
	assert.True(t, m.CheckGridIntegrity(c))
}

func TestMap_RemoveAndAddDuringVisitAreDeferred(t *testing.T) {
	f := newFixture(t)
	p := f.player("Garrosh", centre)
	m := f.enter(mapContinent, p)
	c := creatureSpawn(m, 1)
	summoned := &world.Object{GUID: 9001, Type: world.TypeCreature, Pos: world.Position{X: 260, Y: 260}}

	done := false
	m.OnSight(func(m *Map, _, seen *world.Object) {
		if seen != c || done {
			return
		}
		done = true
		m.RemoveFromMap(seen, true)
		m.RemoveFromMap(seen, true)
		assert.True(t, seen.IsInWorld(), "removal waits for the flush")
		assert.True(t, m.AddToMap(summoned))
		assert.False(t, summoned.IsInWorld(), "add waits for the flush")
	})

	m.Update(tick)
	require.True(t, done)
	m.Update(tick)
	assert.False(t, c.IsInWorld())
	assert.True(t, summoned.IsInWorld())
	assertInCell(t, summoned)
}

func TestMap_PlayerRelocationIsImmediate(t *testing.T) {
	f := newFixture(t)
	p := f.player("Tyrande", centre)
	m := f.enter(mapContinent, p)

	m.PlayerRelocation(p, 266, 600, 0, 0)
	assertInCell(t, &p.Object)
	assert.True(t, m.IsGridLoaded(266, 600))
	assert.Equal(t, 2, m.LoadedGrids())

	m.PlayerRelocation(p, 0, 1e7, 0, 0)
	assert.Equal(t, float32(600), p.Pos.Y, "moves off the map are ignored")
}

func TestMap_CreatureLeavingLoadedGrids(t *testing.T) {
	f := newFixture(t)
	m := f.enter(mapContinent, f.player("Malfurion", centre))

	c := creatureSpawn(m, 1)
	m.CreatureRelocation(c, 2000, 2000, 0, 0)
	assert.True(t, c.IsInWorld())
	assert.Equal(t, c.Home, c.Pos, "sent home")
	assertInCell(t, c)
	assert.False(t, m.IsGridLoaded(2000, 2000))

	stray := &world.Object{GUID: 9002, Type: world.TypeCreature,
		Pos: world.Position{X: 250, Y: 250}, Home: world.Position{X: 2500, Y: 2500}}
	require.True(t, m.AddToMap(stray))
	m.CreatureRelocation(stray, 2100, 2100, 0, 0)
	assert.False(t, stray.IsInWorld(), "no loaded home to return to")

	runner := creatureSpawn(m, 2)
	m.SetActive(runner, true)
	m.CreatureRelocation(runner, 2000, 2000, 0, 0)
	assert.True(t, m.IsGridLoaded(2000, 2000), "active objects load grids")
	assertInCell(t, runner)
}

func TestMap_GridUnloadsOnlyWithoutPlayers(t *testing.T) {
	f := newFixture(t)
	p := f.player("Velen", centre)
	m := f.enter(mapContinent, p)
	var unloaded []event.GridUnloaded
	event.Subscribe(m.Bus(), func(e event.GridUnloaded) { unloaded = append(unloaded, e) })

	m.PlayerRelocation(p, 266, 600, 0, 0)
	m.PlayerRelocation(p, centre.X, centre.Y, 0, 0)
	require.True(t, m.IsGridLoaded(266, 600))

	for i := 0; i < 5; i++ {
		m.Update(10 * time.Second)
	}
	assert.False(t, m.IsGridLoaded(266, 600))
	assert.Equal(t, grid.StateActive, m.GridState(centre.X, centre.Y), "player grid never goes idle")
	require.Len(t, unloaded, 1)
	assert.Equal(t, uint32(32), unloaded[0].GridX)
	assert.Equal(t, uint32(33), unloaded[0].GridY)
}

func TestMap_GridUnloadLock(t *testing.T) {
	f := newFixture(t)
	p := f.player("Rexxar", centre)
	m := f.enter(mapContinent, p)

	require.True(t, m.SetGridUnloadLock(266, 600, true))
	for i := 0; i < 5; i++ {
		m.Update(10 * time.Second)
	}
	assert.True(t, m.IsGridLoaded(266, 600))
	assert.Equal(t, grid.StateIdle, m.GridState(266, 600))

	m.SetGridUnloadLock(266, 600, false)
	m.Update(10 * time.Second)
	assert.False(t, m.IsGridLoaded(266, 600))
}

func TestMap_GridUnloadDisabled(t *testing.T) {
	f := newFixture(t, func(o *Options, _ *Deps) { o.GridUnload = false })
	p := f.player("Cairne", centre)
	m := f.enter(mapContinent, p)
	m.PlayerRelocation(p, 266, 600, 0, 0)
	m.PlayerRelocation(p, centre.X, centre.Y, 0, 0)

	for i := 0; i < 5; i++ {
		m.Update(10 * time.Second)
	}
	assert.True(t, m.IsGridLoaded(266, 600))
}

func TestMap_UnloadedGridRespawnsItsObjects(t *testing.T) {
	f := newFixture(t)
	p := f.player("Baine", centre)
	m := f.enter(mapContinent, p)

	m.PlayerRelocation(p, 1000, 1000, 0, 0)
	first := creatureSpawn(m, 3)
	require.NotNil(t, first)
	m.PlayerRelocation(p, centre.X, centre.Y, 0, 0)
	for i := 0; i < 3; i++ {
		m.Update(10 * time.Second)
	}
	require.False(t, m.IsGridLoaded(1000, 1000))
	assert.False(t, first.IsInWorld())

	m.PlayerRelocation(p, 1000, 1000, 0, 0)
	second := creatureSpawn(m, 3)
	require.NotNil(t, second)
	assert.NotEqual(t, first.GUID, second.GUID)
}

func TestMap_IntegrityViolation(t *testing.T) {
	f := newFixture(t)
	m := f.enter(mapContinent, f.player("Illidan", centre))
	c := creatureSpawn(m, 1)

	c.Pos.X += 200 // bypasses relocation
	assert.False(t, m.CheckGridIntegrity(c))

	strict := newFixture(t, func(o *Options, _ *Deps) { o.StrictIntegrity = true })
	sm := strict.enter(mapContinent, strict.player("Maiev", centre))
	sc := creatureSpawn(sm, 1)
	sc.Pos.X += 200
	assert.Panics(t, func() { sm.CheckGridIntegrity(sc) })
}

func TestMap_SetActiveDuringVisit(t *testing.T) {
	f := newFixture(t)
	m := f.enter(mapContinent, f.player("Khadgar", centre))
	c := creatureSpawn(m, 2)

	done := false
	m.OnSight(func(m *Map, _, seen *world.Object) {
		if done {
			return
		}
		done = true
		m.SetActive(c, true)
		assert.Zero(t, m.Stats().ActiveObjects)
	})
	m.Update(tick)
	m.Update(tick)
	assert.True(t, c.Active)
	assert.Equal(t, 1, m.Stats().ActiveObjects)
}

func TestMap_Stats(t *testing.T) {
	f := newFixture(t)
	m := f.enter(mapContinent, f.player("Medivh", centre))
	m.Update(tick)

	s := m.Stats()
	assert.Equal(t, uint32(mapContinent), s.MapID)
	assert.Equal(t, "Eastern Kingdoms", s.Name)
	assert.Equal(t, "common", s.Kind)
	assert.Equal(t, 1, s.Players)
	assert.Equal(t, 4, s.Objects)
	assert.Equal(t, 1, s.LoadedGrids)
	assert.Equal(t, 1, s.Models)
	assert.Equal(t, m.RunID().String(), s.RunID)
}
