package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AreaEntry maps a terrain area id onto its zone.
type AreaEntry struct {
	ID     uint16 `yaml:"id"`
	Name   string `yaml:"name"`
	ZoneID uint16 `yaml:"zone_id"` // 0: the area is itself a zone
}

type areaListFile struct {
	Areas []AreaEntry `yaml:"areas"`
}

// AreaTable holds area entries indexed by area id.
type AreaTable struct {
	areas map[uint16]*AreaEntry
}

// LoadAreaTable loads area_list.yaml. A missing file yields an empty table,
// in which every area is its own zone.
func LoadAreaTable(path string) (*AreaTable, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewAreaTable(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read area list: %w", err)
	}
	var f areaListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse area list: %w", err)
	}
	return NewAreaTable(f.Areas), nil
}

// NewAreaTable indexes area entries by id.
func NewAreaTable(areas []AreaEntry) *AreaTable {
	t := &AreaTable{areas: make(map[uint16]*AreaEntry, len(areas))}
	for i := range areas {
		a := &areas[i]
		t.areas[a.ID] = a
	}
	return t
}

// Zone returns the zone id of area.
func (t *AreaTable) Zone(area uint16) uint16 {
	if a := t.areas[area]; a != nil && a.ZoneID != 0 {
		return a.ZoneID
	}
	return area
}

// Get returns an area entry, or nil if not found.
func (t *AreaTable) Get(area uint16) *AreaEntry {
	return t.areas[area]
}

func (t *AreaTable) Count() int { return len(t.areas) }
