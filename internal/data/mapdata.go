package data

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MapKind classifies a map template.
type MapKind string

const (
	KindCommon       MapKind = "common"
	KindDungeon      MapKind = "dungeon"
	KindRaid         MapKind = "raid"
	KindBattleground MapKind = "battleground"
	KindArena        MapKind = "arena"
)

func (k MapKind) valid() bool {
	switch k {
	case KindCommon, KindDungeon, KindRaid, KindBattleground, KindArena:
		return true
	}
	return false
}

// DifficultyEntry holds the limits of one difficulty of an instanceable map.
type DifficultyEntry struct {
	Difficulty    uint8 `yaml:"difficulty"`
	MaxPlayers    int   `yaml:"max_players"`
	ResetInterval int64 `yaml:"reset_interval"` // seconds, 0 = no global reset
}

// Entrance is where players are put when they leave or are evicted from an
// instance.
type Entrance struct {
	MapID uint32  `yaml:"map_id"`
	X     float32 `yaml:"x"`
	Y     float32 `yaml:"y"`
	Z     float32 `yaml:"z"`
	O     float32 `yaml:"o"`
}

// MapTemplate holds the static definition of one map, loaded from map_list.yaml.
type MapTemplate struct {
	ID           uint32            `yaml:"id"`
	Name         string            `yaml:"name"`
	Kind         MapKind           `yaml:"kind"`
	Difficulties []DifficultyEntry `yaml:"difficulties"`
	Entrance     *Entrance         `yaml:"entrance,omitempty"`
}

// Instanceable reports whether players get private copies of the map.
func (m *MapTemplate) Instanceable() bool { return m.Kind != KindCommon }

func (m *MapTemplate) IsDungeon() bool { return m.Kind == KindDungeon || m.Kind == KindRaid }
func (m *MapTemplate) IsRaid() bool    { return m.Kind == KindRaid }

func (m *MapTemplate) IsBattlegroundOrArena() bool {
	return m.Kind == KindBattleground || m.Kind == KindArena
}

// Difficulty returns the entry for difficulty d, or nil when the map does not
// offer it.
func (m *MapTemplate) Difficulty(d uint8) *DifficultyEntry {
	for i := range m.Difficulties {
		if m.Difficulties[i].Difficulty == d {
			return &m.Difficulties[i]
		}
	}
	return nil
}

// MaxPlayers returns the player cap for difficulty d; 0 means unlimited.
func (m *MapTemplate) MaxPlayers(d uint8) int {
	if e := m.Difficulty(d); e != nil {
		return e.MaxPlayers
	}
	return 0
}

// ResetInterval returns the global reset period for difficulty d.
func (m *MapTemplate) ResetInterval(d uint8) time.Duration {
	if e := m.Difficulty(d); e != nil {
		return time.Duration(e.ResetInterval) * time.Second
	}
	return 0
}

type mapListFile struct {
	Maps []MapTemplate `yaml:"maps"`
}

// MapTable provides map template lookups.
type MapTable struct {
	maps map[uint32]*MapTemplate
}

// LoadMapTable loads map templates from map_list.yaml.
func LoadMapTable(path string) (*MapTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read map list %s: %w", path, err)
	}
	var file mapListFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse map list: %w", err)
	}
	return NewMapTable(file.Maps)
}

// NewMapTable indexes templates, rejecting unknown kinds and duplicate ids.
func NewMapTable(templates []MapTemplate) (*MapTable, error) {
	t := &MapTable{maps: make(map[uint32]*MapTemplate, len(templates))}
	for i := range templates {
		m := &templates[i]
		if m.Kind == "" {
			m.Kind = KindCommon
		}
		if !m.Kind.valid() {
			return nil, fmt.Errorf("map %d: unknown kind %q", m.ID, m.Kind)
		}
		if _, dup := t.maps[m.ID]; dup {
			return nil, fmt.Errorf("map %d: duplicate id", m.ID)
		}
		t.maps[m.ID] = m
	}
	return t, nil
}

// Get returns a template, or nil if not found.
func (t *MapTable) Get(id uint32) *MapTemplate {
	return t.maps[id]
}

// Count returns the number of loaded templates.
func (t *MapTable) Count() int {
	return len(t.maps)
}

// Each calls fn for every template.
func (t *MapTable) Each(fn func(*MapTemplate)) {
	for _, m := range t.maps {
		fn(m)
	}
}
