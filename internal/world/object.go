package world

import (
	"fmt"
	"math"

	"github.com/l1jgo/worldserver/internal/core/arena"
	"github.com/l1jgo/worldserver/internal/grid"
)

// GUID identifies a world object for its whole lifetime.
type GUID uint64

// TypeID is the kind of a world object.
type TypeID uint8

const (
	TypeCreature TypeID = iota
	TypeGameObject
	TypeCorpse
	TypeDynamicObject
	TypePlayer
)

func (t TypeID) String() string {
	switch t {
	case TypeCreature:
		return "creature"
	case TypeGameObject:
		return "gameobject"
	case TypeCorpse:
		return "corpse"
	case TypeDynamicObject:
		return "dynamicobject"
	case TypePlayer:
		return "player"
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Kind returns the cell list this type is registered in.
func (t TypeID) Kind() grid.Kind { return grid.Kind(t) }

// Position is a world location with facing.
type Position struct {
	X, Y, Z, O float32
}

// Dist2d returns the horizontal distance between two positions.
func (p Position) Dist2d(o Position) float32 {
	dx, dy := p.X-o.X, p.Y-o.Y
	return float32(math.Sqrt(float64(dx*dx + dy*dy)))
}

// Dist2dSq avoids the square root for range checks.
func (p Position) Dist2dSq(o Position) float32 {
	dx, dy := p.X-o.X, p.Y-o.Y
	return dx*dx + dy*dy
}

// Extents is the half-size of an axis-aligned collision box.
type Extents struct {
	X, Y, Z float32
}

func (e Extents) IsZero() bool { return e.X == 0 && e.Y == 0 && e.Z == 0 }

// Placement is the map-side bookkeeping of an object. Only the map that
// holds the object writes it.
type Placement struct {
	Handle  arena.Handle
	Cell    grid.CellCoord
	Slot    int
	InWorld bool

	MapID      uint32
	InstanceID uint32
}

// Object is a world object as seen by the spatial core: everything else about
// creatures, gameobjects or players belongs to gameplay code.
type Object struct {
	GUID  GUID
	Type  TypeID
	Entry uint32

	// SpawnID is the static spawn row this object came from; 0 for
	// temporary objects (summons, corpses, dynamic objects).
	SpawnID uint32

	Pos  Position
	Home Position

	// Active objects keep the grids around them loaded and are always
	// visited, regardless of player proximity.
	Active bool

	// Model is the collision box of a gameobject; zero means no collision.
	Model Extents

	Placement Placement
}

func (o *Object) IsInWorld() bool { return o.Placement.InWorld }

func (o *Object) String() string {
	return fmt.Sprintf("%s[guid=%d entry=%d]", o.Type, o.GUID, o.Entry)
}

// Player adds the fields the map manager needs to route a player into the
// right instance.
type Player struct {
	Object

	Name      string
	AccountID uint32

	// GroupID is the player's party or raid; 0 when ungrouped.
	GroupID uint32

	// Difficulty is the dungeon/raid difficulty the player has selected.
	Difficulty uint8

	// BattlegroundID is the instance id of the battleground the player is
	// queued into; 0 when none.
	BattlegroundID uint32

	GM bool
}

func NewPlayer(guid GUID, name string, pos Position) *Player {
	return &Player{
		Object: Object{GUID: guid, Type: TypePlayer, Pos: pos, Home: pos},
		Name:   name,
	}
}
