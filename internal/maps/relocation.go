package maps

import (
	"go.uber.org/zap"

	"github.com/l1jgo/worldserver/internal/collision"
	"github.com/l1jgo/worldserver/internal/grid"
	"github.com/l1jgo/worldserver/internal/world"
)

// PlayerRelocation moves a player. Players change cell immediately, even
// during the visit pass, and load the grids they walk into.
func (m *Map) PlayerRelocation(p *world.Player, x, y, z, o float32) {
	obj := &p.Object
	if !m.holds(obj) || !m.validTarget(obj, x, y) {
		return
	}
	obj.Pos = world.Position{X: x, Y: y, Z: z, O: o}
	cell := grid.ComputeCellCoord(x, y)
	if cell == obj.Placement.Cell {
		return
	}
	m.ensureGrid(cell.Grid())
	m.unlink(obj)
	m.link(obj, cell)
}

// CreatureRelocation moves a creature. During the visit pass the cell change
// is queued and applied by the next update.
func (m *Map) CreatureRelocation(obj *world.Object, x, y, z, o float32) {
	m.relocate(obj, x, y, z, o)
}

// GameObjectRelocation moves a gameobject and its collision model.
func (m *Map) GameObjectRelocation(obj *world.Object, x, y, z, o float32) {
	m.relocate(obj, x, y, z, o)
}

func (m *Map) validTarget(obj *world.Object, x, y float32) bool {
	if grid.IsValidMapCoord(x, y) {
		return true
	}
	m.log.Warn("relocation outside map ignored", zap.Stringer("object", obj),
		zap.Float32("x", x), zap.Float32("y", y))
	return false
}

func (m *Map) relocate(obj *world.Object, x, y, z, o float32) {
	if obj.Type == world.TypePlayer {
		if p := m.playerByGUID(obj.GUID); p != nil {
			m.PlayerRelocation(p, x, y, z, o)
		}
		return
	}
	if !m.holds(obj) || !m.validTarget(obj, x, y) {
		return
	}
	obj.Pos = world.Position{X: x, Y: y, Z: z, O: o}
	if obj.Type == world.TypeGameObject && !obj.Model.IsZero() {
		m.tree.Insert(collision.ModelID(obj.GUID), modelBox(obj))
	}
	if grid.ComputeCellCoord(x, y) == obj.Placement.Cell {
		return
	}
	h := obj.Placement.Handle
	if m.visiting {
		if _, queued := m.moving[h]; !queued {
			m.moving[h] = struct{}{}
			m.moveQueue = append(m.moveQueue, h)
		}
		return
	}
	delete(m.moving, h)
	m.moveToCell(obj)
}

// moveToCell moves a non-player into the cell of its position. An active
// object loads the target grid; anything else walking into an unloaded grid
// is sent home, or removed when home is unloaded too.
func (m *Map) moveToCell(obj *world.Object) {
	cell := grid.ComputeCellCoord(obj.Pos.X, obj.Pos.Y)
	if cell == obj.Placement.Cell {
		return
	}
	if !obj.Active && m.grid(cell.Grid()) == nil {
		home := grid.ComputeCellCoord(obj.Home.X, obj.Home.Y)
		if m.grid(home.Grid()) == nil {
			m.log.Debug("object left loaded grids, removed", zap.Stringer("object", obj))
			m.remove(obj, true)
			return
		}
		obj.Pos = obj.Home
		if obj.Type == world.TypeGameObject && !obj.Model.IsZero() {
			m.tree.Insert(collision.ModelID(obj.GUID), modelBox(obj))
		}
		cell = home
		if cell == obj.Placement.Cell {
			return
		}
	}
	m.ensureGrid(cell.Grid())
	m.unlink(obj)
	m.link(obj, cell)
}

// Relocate dispatches to the relocation of obj's type.
func (m *Map) Relocate(obj *world.Object, x, y, z, o float32) {
	m.relocate(obj, x, y, z, o)
}

// PendingMoves returns the number of queued cell changes.
func (m *Map) PendingMoves() int { return len(m.moving) }
