package maps

import (
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/worldserver/internal/core/arena"
	"github.com/l1jgo/worldserver/internal/core/event"
	"github.com/l1jgo/worldserver/internal/grid"
	"github.com/l1jgo/worldserver/internal/terrain"
	"github.com/l1jgo/worldserver/internal/world"
)

// grid returns the loaded grid at c, or nil.
func (m *Map) grid(c grid.GridCoord) *grid.NGrid {
	if !c.IsValid() {
		return nil
	}
	return m.grids[c.X][c.Y]
}

// IsGridLoaded reports whether the grid containing (x, y) is resident.
func (m *Map) IsGridLoaded(x, y float32) bool {
	return m.grid(grid.ComputeCellCoord(x, y).Grid()) != nil
}

// LoadedGrids returns the number of resident grids.
func (m *Map) LoadedGrids() int { return m.loaded }

// GridState returns the state of the grid containing (x, y); StateInvalid
// when it is not loaded.
func (m *Map) GridState(x, y float32) grid.State {
	if g := m.grid(grid.ComputeCellCoord(x, y).Grid()); g != nil {
		return g.State()
	}
	return grid.StateInvalid
}

// ensureGrid loads grid c if needed: terrain tile, static spawns and their
// collision models. Tile loading blocks the calling goroutine.
func (m *Map) ensureGrid(c grid.GridCoord) *grid.NGrid {
	if !c.IsValid() {
		return nil
	}
	if g := m.grids[c.X][c.Y]; g != nil {
		return g
	}
	g := grid.NewNGrid(c)
	g.SetState(grid.StateActive)
	g.ResetExpiry(m.opts.GridCleanUpDelay)
	m.grids[c.X][c.Y] = g
	m.loaded++
	m.tile(c)

	now := m.now().Unix()
	if m.deps.Spawns != nil {
		for _, e := range m.deps.Spawns.InGrid(m.id, c) {
			if !e.OnDifficulty(m.difficulty) {
				continue
			}
			k := spawnKey(e)
			if t, ok := m.respawns[k]; ok && t > now {
				continue
			}
			if _, ok := m.spawned[k]; ok {
				continue
			}
			m.spawn(e)
		}
	}

	m.log.Debug("grid loaded", zap.Uint32("grid_x", c.X), zap.Uint32("grid_y", c.Y),
		zap.Int("objects", g.ObjectCount()))
	event.Emit(m.bus, event.GridLoaded{MapID: m.id, InstanceID: m.instanceID, GridX: c.X, GridY: c.Y})
	return g
}

// tile returns the terrain of grid c, acquiring it from the shared store on
// first use. The map holds one reference per tile.
func (m *Map) tile(c grid.GridCoord) *terrain.GridMap {
	if gm, ok := m.tiles[c]; ok {
		return gm
	}
	gm := m.terrain.Acquire(c.TileX(), c.TileY())
	m.tiles[c] = gm
	return gm
}

func (m *Map) releaseTile(c grid.GridCoord) {
	if _, ok := m.tiles[c]; !ok {
		return
	}
	delete(m.tiles, c)
	m.terrain.Release(c.TileX(), c.TileY())
}

// unloadGrid removes every object of grid c and releases its terrain. Grids
// holding players never reach this point.
func (m *Map) unloadGrid(c grid.GridCoord) {
	g := m.grid(c)
	if g == nil {
		return
	}
	var doomed []*world.Object
	g.EachCell(func(_ grid.CellCoord, cell *grid.Cell) {
		for k := grid.Kind(0); k < grid.KindCount; k++ {
			for _, h := range cell.Handles(k) {
				if obj, ok := m.objects.Get(h); ok {
					doomed = append(doomed, obj)
				}
			}
		}
	})
	for _, obj := range doomed {
		if obj.Type == world.TypePlayer {
			m.log.Error("unloading grid with player", zap.Stringer("object", obj))
			if p := m.playerByGUID(obj.GUID); p != nil {
				m.RemovePlayerFromMap(p, false)
				continue
			}
		}
		m.remove(obj, true)
	}
	g.SetState(grid.StateRemoval)
	m.grids[c.X][c.Y] = nil
	m.loaded--
	m.releaseTile(c)

	m.log.Debug("grid unloaded", zap.Uint32("grid_x", c.X), zap.Uint32("grid_y", c.Y),
		zap.Int("objects", len(doomed)))
	event.Emit(m.bus, event.GridUnloaded{MapID: m.id, InstanceID: m.instanceID, GridX: c.X, GridY: c.Y})
}

func (m *Map) playerByGUID(guid world.GUID) *world.Player {
	if i := m.playerIndex(guid); i >= 0 {
		return m.players[i]
	}
	return nil
}

// ensureGridsAround loads every grid intersecting the square of half-side
// radius around (x, y).
func (m *Map) ensureGridsAround(x, y, radius float32) {
	area := grid.CalculateCellArea(x, y, radius)
	lo, hi := area.Low.Grid(), area.High.Grid()
	for gx := lo.X; gx <= hi.X; gx++ {
		for gy := lo.Y; gy <= hi.Y; gy++ {
			m.ensureGrid(grid.GridCoord{X: gx, Y: gy})
		}
	}
}

// SetGridUnloadLock pins or unpins the grid containing (x, y), loading it if
// necessary. A pinned grid never unloads.
func (m *Map) SetGridUnloadLock(x, y float32, on bool) bool {
	cell := grid.ComputeCellCoord(x, y)
	if !cell.IsValid() {
		return false
	}
	g := m.ensureGrid(cell.Grid())
	g.SetUnloadExplicitLock(on)
	return true
}

// holdGrid and releaseGrid take counted unload locks; nested holders each
// release their own.
func (m *Map) holdGrid(x, y float32) bool {
	cell := grid.ComputeCellCoord(x, y)
	if !cell.IsValid() {
		return false
	}
	m.ensureGrid(cell.Grid()).IncUnloadLock()
	return true
}

func (m *Map) releaseGrid(x, y float32) {
	if g := m.grid(grid.ComputeCellCoord(x, y).Grid()); g != nil {
		g.DecUnloadLock()
	}
}

// keepGridActive reports whether grid c lies within visible distance of a
// player or an active object.
func (m *Map) keepGridActive(c grid.GridCoord) bool {
	if !m.opts.GridUnload {
		return true
	}
	area := grid.GridBounds(c, grid.CellsForDistance(m.visibleRadius))
	for _, p := range m.players {
		if p.IsInWorld() && area.Contains(p.Placement.Cell) {
			return true
		}
	}
	for _, obj := range m.active {
		if area.Contains(obj.Placement.Cell) {
			return true
		}
	}
	return false
}

// sweepGrids advances every grid's state machine and unloads grids that
// reached removal.
func (m *Map) sweepGrids(diff time.Duration) {
	var removal []grid.GridCoord
	for x := range m.grids {
		for y, g := range m.grids[x] {
			if g == nil {
				continue
			}
			c := grid.GridCoord{X: uint32(x), Y: uint32(y)}
			if g.Tick(diff, m.opts.GridCleanUpDelay, func() bool { return m.keepGridActive(c) }) {
				removal = append(removal, c)
			}
		}
	}
	for _, c := range removal {
		m.unloadGrid(c)
	}
	// Terrain queries on unloaded grids pin their tile until the next sweep.
	for c := range m.tiles {
		if m.grid(c) == nil {
			m.releaseTile(c)
		}
	}
}

// objectsIn returns the live objects of one cell.
func (m *Map) objectsIn(c grid.CellCoord, fn func(arena.Handle, *world.Object)) {
	g := m.grid(c.Grid())
	if g == nil {
		return
	}
	x, y := c.InGrid()
	cell := g.Cell(x, y)
	for k := grid.Kind(0); k < grid.KindCount; k++ {
		for _, h := range cell.Handles(k) {
			if obj, ok := m.objects.Get(h); ok {
				fn(h, obj)
			}
		}
	}
}
