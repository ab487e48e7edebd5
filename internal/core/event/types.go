package event

import "github.com/l1jgo/worldserver/internal/world"

// Map-level event types, delivered after each visit pass.

// ObjectEnteredRange fires when Target comes within the viewer's visible distance.
type ObjectEnteredRange struct {
	MapID      uint32
	InstanceID uint32
	Viewer     world.GUID
	Target     world.GUID
	TargetType world.TypeID
}

// ObjectLeftRange fires when a known target leaves range or the map.
type ObjectLeftRange struct {
	MapID      uint32
	InstanceID uint32
	Viewer     world.GUID
	Target     world.GUID
}

type GridLoaded struct {
	MapID      uint32
	InstanceID uint32
	GridX      uint32
	GridY      uint32
}

type GridUnloaded struct {
	MapID      uint32
	InstanceID uint32
	GridX      uint32
	GridY      uint32
}

// PlayerEvicted asks the session layer to move a player out of an instance
// (global reset or battleground end). The map has already detached the player.
type PlayerEvicted struct {
	MapID      uint32
	InstanceID uint32
	Player     world.GUID
	Reason     string
}

// InstanceResetFailed tells players inside that a requested reset was refused.
type InstanceResetFailed struct {
	MapID      uint32
	InstanceID uint32
	Player     world.GUID
}
