package maps

import (
	"github.com/l1jgo/worldserver/internal/collision"
	"github.com/l1jgo/worldserver/internal/grid"
	"github.com/l1jgo/worldserver/internal/terrain"
)

const (
	// groundTolerance lets a position slightly below the terrain still snap
	// onto it.
	groundTolerance = 2.0
	// DefaultHeightSearch is how far below z GetHeight looks for a surface.
	DefaultHeightSearch = 50.0
)

// terrainAt returns the tile holding (x, y), loading it on demand. A tile
// loaded for a grid that is not itself loaded is released by the next grid
// sweep. Positions outside the map read as empty terrain.
func (m *Map) terrainAt(x, y float32) *terrain.GridMap {
	if !grid.IsValidMapCoord(x, y) {
		return terrain.Empty()
	}
	return m.tile(grid.ComputeCellCoord(x, y).Grid())
}

// GridHeight returns the terrain height at (x, y), ignoring collision models.
func (m *Map) GridHeight(x, y float32) float32 {
	return m.terrainAt(x, y).Height(x, y)
}

// Height returns the highest surface at or below z+tolerance within
// maxSearch: terrain or the top of a collision model. InvalidHeight when
// there is none.
func (m *Map) Height(x, y, z, maxSearch float32) float32 {
	best := float32(terrain.InvalidHeight)
	gm := m.terrainAt(x, y)
	if !gm.IsHole(x, y) {
		if ground := gm.Height(x, y); z >= ground-groundTolerance && z-maxSearch <= ground {
			best = ground
		}
	}
	if h := m.tree.Height(x, y, z+groundTolerance, maxSearch+groundTolerance); h != collision.InvalidHeight && h > best {
		best = h
	}
	return best
}

// LiquidStatus classifies (x, y, z) against liquids of the types in mask.
func (m *Map) LiquidStatus(x, y, z float32, mask uint8) (terrain.LiquidStatus, terrain.LiquidData) {
	return m.terrainAt(x, y).LiquidStatus(x, y, z, mask)
}

// IsInWater reports whether (x, y, z) is in or under any liquid.
func (m *Map) IsInWater(x, y, z float32) bool {
	st, _ := m.LiquidStatus(x, y, z, terrain.AllLiquids)
	return st&(terrain.LiquidInWater|terrain.LiquidUnderWater) != 0
}

// IsUnderWater reports whether (x, y, z) is fully submerged in water or ocean.
func (m *Map) IsUnderWater(x, y, z float32) bool {
	st, _ := m.LiquidStatus(x, y, z, terrain.LiquidTypeWater|terrain.LiquidTypeOcean)
	return st&terrain.LiquidUnderWater != 0
}

// AreaID returns the area at (x, y); 0 when the terrain has none.
func (m *Map) AreaID(x, y float32) uint16 {
	return m.terrainAt(x, y).Area(x, y)
}

// ZoneID returns the zone of the area at (x, y). Areas without a parent zone
// are their own zone.
func (m *Map) ZoneID(x, y float32) uint16 {
	area := m.AreaID(x, y)
	if m.deps.Areas == nil {
		return area
	}
	return m.deps.Areas.Zone(area)
}

// IsInLineOfSight reports whether no collision model blocks the segment
// between two points.
func (m *Map) IsInLineOfSight(x1, y1, z1, x2, y2, z2 float32) bool {
	return m.tree.IsInLineOfSight(collision.Vec3{X: x1, Y: y1, Z: z1}, collision.Vec3{X: x2, Y: y2, Z: z2})
}

// Models returns the number of collision models applied by the last update.
func (m *Map) Models() int { return m.tree.Size() }
