package maps

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/l1jgo/worldserver/internal/collision"
	"github.com/l1jgo/worldserver/internal/core/arena"
	"github.com/l1jgo/worldserver/internal/core/event"
	"github.com/l1jgo/worldserver/internal/data"
	"github.com/l1jgo/worldserver/internal/grid"
	"github.com/l1jgo/worldserver/internal/terrain"
	"github.com/l1jgo/worldserver/internal/world"
)

type removal struct {
	obj *world.Object
	del bool
}

type activeSwitch struct {
	obj *world.Object
	on  bool
}

// Map is one running copy of a map template. All methods must be called from
// the goroutine currently updating the map; only Stats is safe from others.
type Map struct {
	id         uint32
	instanceID uint32
	difficulty uint8
	kind       Kind
	template   *data.MapTemplate
	runID      uuid.UUID

	opts *Options
	deps *Deps
	log  *zap.Logger

	terrain *terrain.Store
	tiles   map[grid.GridCoord]*terrain.GridMap
	grids   [grid.MaxNumberOfGrids][grid.MaxNumberOfGrids]*grid.NGrid
	loaded  int

	objects *arena.Arena[*world.Object]
	byGUID  map[world.GUID]arena.Handle
	players []*world.Player
	active  map[world.GUID]*world.Object
	known   map[world.GUID]map[world.GUID]struct{}
	tree    *collision.Tree
	bus     *event.Bus
	sight   []SightFunc

	// two-phase mutation: filled while visiting, applied by the next flush
	visiting      bool
	moveQueue     []arena.Handle
	moving        map[arena.Handle]struct{}
	addQueue      []*world.Object
	removeQueue   []removal
	removing      map[world.GUID]struct{}
	switchQueue   []activeSwitch
	visibleRadius float32

	respawns     map[respawnKey]int64
	respawnDirty map[respawnKey]bool
	spawned      map[respawnKey]world.GUID

	scripts  []*ScriptAction
	scriptSq uint64

	inst *instanceState
	bg   *battlegroundState

	stats atomic.Pointer[Stats]
}

func newMap(tmpl *data.MapTemplate, instanceID uint32, difficulty uint8, kind Kind, store *terrain.Store, opts *Options, deps *Deps) *Map {
	m := &Map{
		id:           tmpl.ID,
		instanceID:   instanceID,
		difficulty:   difficulty,
		kind:         kind,
		template:     tmpl,
		runID:        uuid.New(),
		opts:         opts,
		deps:         deps,
		terrain:      store,
		tiles:        make(map[grid.GridCoord]*terrain.GridMap),
		objects:      arena.New[*world.Object](256),
		byGUID:       make(map[world.GUID]arena.Handle),
		active:       make(map[world.GUID]*world.Object),
		known:        make(map[world.GUID]map[world.GUID]struct{}),
		tree:         collision.NewTree(opts.TreeRebalance),
		bus:          event.NewBus(),
		moving:       make(map[arena.Handle]struct{}),
		removing:     make(map[world.GUID]struct{}),
		respawns:     make(map[respawnKey]int64),
		respawnDirty: make(map[respawnKey]bool),
		spawned:      make(map[respawnKey]world.GUID),
	}
	m.log = deps.Log.With(
		zap.Uint32("map", m.id),
		zap.Uint32("instance", instanceID),
		zap.String("run", m.runID.String()),
	)
	m.visibleRadius = m.defaultVisibleDistance()
	m.publishStats(0)
	return m
}

func (m *Map) ID() uint32                  { return m.id }
func (m *Map) InstanceID() uint32          { return m.instanceID }
func (m *Map) Difficulty() uint8           { return m.difficulty }
func (m *Map) Kind() Kind                  { return m.kind }
func (m *Map) Template() *data.MapTemplate { return m.template }
func (m *Map) RunID() uuid.UUID            { return m.runID }
func (m *Map) Bus() *event.Bus             { return m.bus }
func (m *Map) IsInstance() bool            { return m.kind == KindInstance }
func (m *Map) IsBattleground() bool        { return m.kind == KindBattleground }

// VisibleDistance returns the radius around players and active objects that
// is visited each tick.
func (m *Map) VisibleDistance() float32 { return m.visibleRadius }

func (m *Map) defaultVisibleDistance() float32 {
	v := m.opts.Visibility
	switch m.kind {
	case KindInstance:
		return v.Instances
	case KindBattleground:
		if m.template.Kind == data.KindArena {
			return v.Arenas
		}
		return v.Battlegrounds
	}
	return v.Continents
}

// OnSight registers an AI hook called during the visit pass.
func (m *Map) OnSight(fn SightFunc) { m.sight = append(m.sight, fn) }

// Find returns the object with the given GUID, or nil.
func (m *Map) Find(guid world.GUID) *world.Object {
	h, ok := m.byGUID[guid]
	if !ok {
		return nil
	}
	obj, _ := m.objects.Get(h)
	return obj
}

// Players returns the players currently on the map.
func (m *Map) Players() []*world.Player {
	out := make([]*world.Player, len(m.players))
	copy(out, m.players)
	return out
}

func (m *Map) HavePlayers() bool { return len(m.players) > 0 }

func (m *Map) playerIndex(guid world.GUID) int {
	for i, p := range m.players {
		if p.GUID == guid {
			return i
		}
	}
	return -1
}

// ObjectCount returns the number of objects on the map, players included.
func (m *Map) ObjectCount() int { return m.objects.Len() }

// AddToMap places obj in the cell of its position, loading the grid if
// needed. It returns false when the position is outside the map or the object
// is already in a world. While the map is visiting its cells the add is
// queued and applied by the next update.
func (m *Map) AddToMap(obj *world.Object) bool {
	if obj.IsInWorld() {
		return false
	}
	if !grid.IsValidMapCoord(obj.Pos.X, obj.Pos.Y) {
		m.log.Warn("object outside map, not added", zap.Stringer("object", obj),
			zap.Float32("x", obj.Pos.X), zap.Float32("y", obj.Pos.Y))
		return false
	}
	if m.visiting {
		for _, q := range m.addQueue {
			if q == obj {
				return true
			}
		}
		m.addQueue = append(m.addQueue, obj)
		return true
	}
	return m.insert(obj)
}

func (m *Map) insert(obj *world.Object) bool {
	cell := grid.ComputeCellCoord(obj.Pos.X, obj.Pos.Y)
	if !cell.IsValid() || m.ensureGrid(cell.Grid()) == nil {
		return false
	}
	h := m.objects.Insert(obj)
	m.byGUID[obj.GUID] = h
	obj.Placement = world.Placement{Handle: h, MapID: m.id, InstanceID: m.instanceID}
	m.link(obj, cell)
	obj.Placement.InWorld = true

	if obj.Active && obj.Type != world.TypePlayer {
		m.active[obj.GUID] = obj
	}
	if obj.Type == world.TypeGameObject && !obj.Model.IsZero() {
		m.tree.Insert(collision.ModelID(obj.GUID), modelBox(obj))
	}
	return true
}

func modelBox(obj *world.Object) collision.AABB {
	return collision.BoxAround(
		collision.Vec3{X: obj.Pos.X, Y: obj.Pos.Y, Z: obj.Pos.Z + obj.Model.Z},
		collision.Vec3{X: obj.Model.X, Y: obj.Model.Y, Z: obj.Model.Z},
	)
}

// AddPlayerToMap adds a player and registers it in the player list, which
// keeps the map and the grids around the player alive.
func (m *Map) AddPlayerToMap(p *world.Player) bool {
	if m.playerIndex(p.GUID) >= 0 {
		return false
	}
	if !m.AddToMap(&p.Object) {
		return false
	}
	m.players = append(m.players, p)
	m.known[p.GUID] = make(map[world.GUID]struct{})
	if m.kind == KindInstance {
		m.instancePlayerAdded(p)
	}
	if m.kind == KindBattleground {
		m.bg.unloadPending = false
		m.bg.unloadTimer = 0
	}
	m.log.Debug("player added", zap.Uint64("guid", uint64(p.GUID)), zap.String("name", p.Name))
	return true
}

// RemoveFromMap unlinks obj from its cell. Removing an object that is not on
// this map is a no-op. With del set, pending scripts sourced by the object
// are dropped as well.
func (m *Map) RemoveFromMap(obj *world.Object, del bool) {
	if !m.holds(obj) {
		m.dropQueuedAdd(obj)
		return
	}
	if m.visiting {
		if _, queued := m.removing[obj.GUID]; !queued {
			m.removing[obj.GUID] = struct{}{}
			m.removeQueue = append(m.removeQueue, removal{obj: obj, del: del})
		}
		return
	}
	m.remove(obj, del)
}

// RemovePlayerFromMap removes a player and starts the unload countdown of an
// instance left empty. Idempotent.
func (m *Map) RemovePlayerFromMap(p *world.Player, del bool) {
	i := m.playerIndex(p.GUID)
	if i < 0 {
		return
	}
	m.players = append(m.players[:i], m.players[i+1:]...)
	delete(m.known, p.GUID)
	m.RemoveFromMap(&p.Object, del)
	switch m.kind {
	case KindInstance:
		m.instancePlayerRemoved()
	case KindBattleground:
		m.battlegroundPlayerRemoved()
	}
	m.log.Debug("player removed", zap.Uint64("guid", uint64(p.GUID)))
}

// holds reports whether obj is currently placed on this map.
func (m *Map) holds(obj *world.Object) bool {
	if !obj.IsInWorld() || obj.Placement.MapID != m.id || obj.Placement.InstanceID != m.instanceID {
		return false
	}
	cur, ok := m.objects.Get(obj.Placement.Handle)
	return ok && cur == obj
}

func (m *Map) remove(obj *world.Object, del bool) {
	if !m.holds(obj) {
		return
	}
	h := obj.Placement.Handle
	m.unlink(obj)
	m.objects.Remove(h)
	delete(m.byGUID, obj.GUID)
	delete(m.active, obj.GUID)
	delete(m.moving, h)
	if obj.Type == world.TypeGameObject && !obj.Model.IsZero() {
		m.tree.Remove(collision.ModelID(obj.GUID))
	}
	if obj.SpawnID != 0 {
		k := keyOf(obj)
		if m.spawned[k] == obj.GUID {
			delete(m.spawned, k)
		}
	}
	for viewer, set := range m.known {
		if _, ok := set[obj.GUID]; ok {
			delete(set, obj.GUID)
			event.Emit(m.bus, event.ObjectLeftRange{MapID: m.id, InstanceID: m.instanceID, Viewer: viewer, Target: obj.GUID})
		}
	}
	if del {
		m.dropScriptsOf(obj.GUID)
	}
	obj.Placement = world.Placement{}
}

// link inserts obj into cell; the grid must be loaded.
func (m *Map) link(obj *world.Object, cell grid.CellCoord) {
	g := m.grid(cell.Grid())
	x, y := cell.InGrid()
	obj.Placement.Slot = g.Insert(x, y, obj.Type.Kind(), obj.Placement.Handle)
	obj.Placement.Cell = cell
}

// unlink removes obj from its recorded cell, fixing the slot of the object
// swapped into its place.
func (m *Map) unlink(obj *world.Object) {
	cell := obj.Placement.Cell
	g := m.grid(cell.Grid())
	if g == nil {
		m.integrityViolation(obj, "recorded grid not loaded")
		return
	}
	x, y := cell.InGrid()
	slot := obj.Placement.Slot
	moved, didMove, ok := g.Remove(x, y, obj.Type.Kind(), slot, obj.Placement.Handle)
	if !ok {
		m.integrityViolation(obj, "object missing from recorded cell slot")
		return
	}
	if didMove {
		if other, alive := m.objects.Get(moved); alive {
			other.Placement.Slot = slot
		}
	}
}

// SetActive marks obj as an active object. Deferred while visiting.
func (m *Map) SetActive(obj *world.Object, on bool) {
	if !m.holds(obj) {
		obj.Active = on
		return
	}
	if m.visiting {
		m.switchQueue = append(m.switchQueue, activeSwitch{obj: obj, on: on})
		return
	}
	m.switchActive(obj, on)
}

func (m *Map) switchActive(obj *world.Object, on bool) {
	obj.Active = on
	if obj.Type == world.TypePlayer {
		return
	}
	if on {
		m.active[obj.GUID] = obj
	} else {
		delete(m.active, obj.GUID)
	}
}

// CheckGridIntegrity reports whether obj is registered in the cell of its
// position. Objects with a queued move are in their deferred window and pass.
// Violations are logged; with strict integrity they panic.
func (m *Map) CheckGridIntegrity(obj *world.Object) bool {
	if !m.holds(obj) {
		return true
	}
	if _, queued := m.moving[obj.Placement.Handle]; queued {
		return true
	}
	want := grid.ComputeCellCoord(obj.Pos.X, obj.Pos.Y)
	if obj.Placement.Cell == want {
		return true
	}
	m.integrityViolation(obj, "recorded cell does not match position")
	return false
}

func (m *Map) integrityViolation(obj *world.Object, what string) {
	want := grid.ComputeCellCoord(obj.Pos.X, obj.Pos.Y)
	m.log.Error("grid integrity violation",
		zap.String("problem", what),
		zap.Stringer("object", obj),
		zap.Uint32("cell_x", obj.Placement.Cell.X), zap.Uint32("cell_y", obj.Placement.Cell.Y),
		zap.Uint32("want_x", want.X), zap.Uint32("want_y", want.Y))
	if m.opts.StrictIntegrity {
		panic("maps: grid integrity violation: " + what)
	}
}

// now is the wall clock of respawns and scripts.
func (m *Map) now() time.Time { return m.deps.now() }
