package maps

import (
	"time"

	"github.com/l1jgo/worldserver/internal/core/arena"
	"github.com/l1jgo/worldserver/internal/core/event"
	"github.com/l1jgo/worldserver/internal/grid"
	"github.com/l1jgo/worldserver/internal/world"
)

// Update advances the map by one tick:
//  1. apply the changes queued during the previous visit
//  2. visit the cells around players and active objects
//  3. run due scripts, then due respawns
//  4. advance grid states and unload expired grids
func (m *Map) Update(diff time.Duration) {
	start := time.Now()

	m.flush()
	for _, v := range m.viewers() {
		m.ensureGridsAround(v.Pos.X, v.Pos.Y, m.visibleRadius)
	}
	m.visit()
	m.bus.Flush()

	m.runScripts()
	m.respawnSweep()

	m.tree.Update(diff)
	m.sweepGrids(diff)
	m.tickUnload(diff)

	m.bus.Flush()
	m.publishStats(time.Since(start))
}

// flush applies the mutations deferred while visiting: adds, moves, active
// switches, then removals.
func (m *Map) flush() {
	adds := m.addQueue
	m.addQueue = nil
	for _, obj := range adds {
		if obj.IsInWorld() {
			continue
		}
		if obj.Type == world.TypePlayer && m.playerIndex(obj.GUID) < 0 {
			continue
		}
		m.insert(obj)
	}

	moves := m.moveQueue
	m.moveQueue = nil
	for _, h := range moves {
		if _, ok := m.moving[h]; !ok {
			continue
		}
		delete(m.moving, h)
		if obj, ok := m.objects.Get(h); ok {
			m.moveToCell(obj)
		}
	}

	switches := m.switchQueue
	m.switchQueue = nil
	for _, s := range switches {
		if m.holds(s.obj) {
			m.switchActive(s.obj, s.on)
		}
	}

	removes := m.removeQueue
	m.removeQueue = nil
	for _, r := range removes {
		delete(m.removing, r.obj.GUID)
		m.remove(r.obj, r.del)
	}
}

// dropQueuedAdd cancels an add still waiting for the flush.
func (m *Map) dropQueuedAdd(obj *world.Object) {
	for i, q := range m.addQueue {
		if q == obj {
			m.addQueue = append(m.addQueue[:i], m.addQueue[i+1:]...)
			return
		}
	}
}

// viewers are the objects whose surroundings are visited: players and active
// objects.
func (m *Map) viewers() []*world.Object {
	out := make([]*world.Object, 0, len(m.players)+len(m.active))
	for _, p := range m.players {
		if p.IsInWorld() {
			out = append(out, &p.Object)
		}
	}
	for _, obj := range m.active {
		out = append(out, obj)
	}
	return out
}

type sighting struct {
	seer, seen *world.Object
}

// visit collects who sees whom without touching the cells, then runs the
// sight hooks and range bookkeeping with mutations deferred.
func (m *Map) visit() {
	r := m.visibleRadius
	r2 := r * r
	var seen []sighting
	visible := make(map[world.GUID]map[world.GUID]world.TypeID, len(m.players))

	for _, v := range m.viewers() {
		isPlayer := v.Type == world.TypePlayer
		if isPlayer {
			visible[v.GUID] = make(map[world.GUID]world.TypeID)
		}
		area := grid.CalculateCellArea(v.Pos.X, v.Pos.Y, r)
		area.Each(func(c grid.CellCoord) {
			g := m.grid(c.Grid())
			if g == nil {
				return
			}
			if g.State() == grid.StateIdle {
				g.Reactivate(m.opts.GridCleanUpDelay)
			}
			m.objectsIn(c, func(_ arena.Handle, obj *world.Object) {
				if obj == v || v.Pos.Dist2dSq(obj.Pos) > r2 {
					return
				}
				seen = append(seen, sighting{seer: v, seen: obj})
				if isPlayer {
					visible[v.GUID][obj.GUID] = obj.Type
				}
			})
		})
	}

	m.visiting = true
	for _, s := range seen {
		for _, fn := range m.sight {
			fn(m, s.seer, s.seen)
		}
	}
	for viewer, now := range visible {
		known, ok := m.known[viewer]
		if !ok {
			continue
		}
		for target := range known {
			if _, still := now[target]; !still {
				delete(known, target)
				event.Emit(m.bus, event.ObjectLeftRange{MapID: m.id, InstanceID: m.instanceID, Viewer: viewer, Target: target})
			}
		}
		for target, typ := range now {
			if _, had := known[target]; !had {
				known[target] = struct{}{}
				event.Emit(m.bus, event.ObjectEnteredRange{MapID: m.id, InstanceID: m.instanceID, Viewer: viewer, Target: target, TargetType: typ})
			}
		}
	}
	m.visiting = false
}

// Knows reports whether viewer currently has target in range.
func (m *Map) Knows(viewer, target world.GUID) bool {
	_, ok := m.known[viewer][target]
	return ok
}

// tickUnload counts down the unload timer of an empty instance or
// battleground.
func (m *Map) tickUnload(diff time.Duration) {
	if m.HavePlayers() {
		return
	}
	switch m.kind {
	case KindInstance:
		if m.inst.unloadPending && m.inst.unloadTimer > 0 {
			m.inst.unloadTimer -= diff
		}
	case KindBattleground:
		if m.bg.unloadPending && m.bg.unloadTimer > 0 {
			m.bg.unloadTimer -= diff
		}
	}
}

// CanUnload reports whether the manager may destroy the map. Continents stay
// loaded for the life of the process.
func (m *Map) CanUnload() bool {
	if m.HavePlayers() {
		return false
	}
	switch m.kind {
	case KindInstance:
		return m.inst.holds == 0 && m.inst.unloadPending && m.inst.unloadTimer <= 0
	case KindBattleground:
		return m.bg.ended || (m.bg.unloadPending && m.bg.unloadTimer <= 0)
	}
	return false
}

// UnloadAll detaches the remaining players and unloads every grid.
func (m *Map) UnloadAll() {
	for _, p := range m.Players() {
		m.RemovePlayerFromMap(p, false)
	}
	m.flush()
	for x := range m.grids {
		for y, g := range m.grids[x] {
			if g != nil {
				m.unloadGrid(grid.GridCoord{X: uint32(x), Y: uint32(y)})
			}
		}
	}
	for c := range m.tiles {
		m.releaseTile(c)
	}
	m.scripts = nil
	m.bus.Flush()
}
