package data

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/l1jgo/worldserver/internal/grid"
)

// Spawn object types.
const (
	SpawnCreature   = "creature"
	SpawnGameObject = "gameobject"
)

// Model is the collision half-extents of a gameobject spawn.
type Model struct {
	X float32 `yaml:"x"`
	Y float32 `yaml:"y"`
	Z float32 `yaml:"z"`
}

// SpawnEntry is one static creature or gameobject placement.
type SpawnEntry struct {
	SpawnID      uint32  `yaml:"spawn_id"`
	Type         string  `yaml:"type"`
	Entry        uint32  `yaml:"entry"`
	MapID        uint32  `yaml:"map_id"`
	X            float32 `yaml:"x"`
	Y            float32 `yaml:"y"`
	Z            float32 `yaml:"z"`
	O            float32 `yaml:"o"`
	RespawnDelay int64   `yaml:"respawn_delay"` // seconds
	Active       bool    `yaml:"active"`
	Model        *Model  `yaml:"model,omitempty"`
	// Difficulties limits the spawn to these instance difficulties; empty
	// means all.
	Difficulties []uint8 `yaml:"difficulties,omitempty"`
}

// OnDifficulty reports whether the spawn appears on difficulty d.
func (s *SpawnEntry) OnDifficulty(d uint8) bool {
	return len(s.Difficulties) == 0 || slices.Contains(s.Difficulties, d)
}

type spawnListFile struct {
	Spawns []SpawnEntry `yaml:"spawns"`
}

type spawnKey struct {
	typ string
	id  uint32
}

type gridKey struct {
	mapID uint32
	grid  grid.GridCoord
}

// SpawnTable indexes spawns by id and by the grid they stand in, so a map
// loading one grid only touches that grid's spawns.
type SpawnTable struct {
	byID   map[spawnKey]*SpawnEntry
	byGrid map[gridKey][]*SpawnEntry
}

// LoadSpawnTable loads spawn_list.yaml.
func LoadSpawnTable(path string) (*SpawnTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spawn_list: %w", err)
	}
	var f spawnListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse spawn_list: %w", err)
	}
	return NewSpawnTable(f.Spawns)
}

// NewSpawnTable indexes spawns. Entries outside the map bounds or with an
// unknown type are rejected.
func NewSpawnTable(spawns []SpawnEntry) (*SpawnTable, error) {
	t := &SpawnTable{
		byID:   make(map[spawnKey]*SpawnEntry, len(spawns)),
		byGrid: make(map[gridKey][]*SpawnEntry),
	}
	for i := range spawns {
		s := &spawns[i]
		if s.Type != SpawnCreature && s.Type != SpawnGameObject {
			return nil, fmt.Errorf("spawn %d: unknown type %q", s.SpawnID, s.Type)
		}
		if !grid.IsValidMapCoord(s.X, s.Y) {
			return nil, fmt.Errorf("spawn %s %d: position (%.1f, %.1f) outside map", s.Type, s.SpawnID, s.X, s.Y)
		}
		k := spawnKey{s.Type, s.SpawnID}
		if _, dup := t.byID[k]; dup {
			return nil, fmt.Errorf("spawn %s %d: duplicate id", s.Type, s.SpawnID)
		}
		t.byID[k] = s
		gk := gridKey{s.MapID, grid.ComputeCellCoord(s.X, s.Y).Grid()}
		t.byGrid[gk] = append(t.byGrid[gk], s)
	}
	return t, nil
}

// Get returns a spawn by type and id, or nil if not found.
func (t *SpawnTable) Get(typ string, spawnID uint32) *SpawnEntry {
	return t.byID[spawnKey{typ, spawnID}]
}

// InGrid returns the spawns of map mapID standing inside grid g.
func (t *SpawnTable) InGrid(mapID uint32, g grid.GridCoord) []*SpawnEntry {
	return t.byGrid[gridKey{mapID, g}]
}

// Count returns the number of loaded spawns.
func (t *SpawnTable) Count() int {
	return len(t.byID)
}
