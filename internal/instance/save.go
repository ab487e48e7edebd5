// Package instance tracks instance saves (the persistent identity of a
// dungeon, raid or battleground copy) and which players and groups are bound
// to them.
package instance

import "time"

// Save is the persistent state of one instance id.
type Save struct {
	InstanceID uint32
	MapID      uint32
	Difficulty uint8
	// ResetTime is when the global reset wipes this save; zero means never.
	ResetTime time.Time
	// CanReset is false for battlegrounds and arenas, which never reset
	// through the save.
	CanReset bool

	players map[uint64]struct{}
	groups  map[uint64]struct{}
}

// Key is the (map, difficulty) slot a bind occupies; an owner holds at most
// one bind per key.
type Key struct {
	MapID      uint32
	Difficulty uint8
}

func (s *Save) Key() Key { return Key{MapID: s.MapID, Difficulty: s.Difficulty} }

// Bind ties a player or group to a save.
type Bind struct {
	Save *Save
	// Permanent binds (raid lockouts) are never dropped by group changes.
	Permanent bool
}
