package maps

import "time"

// Stats is a point-in-time view of one map, published at the end of each
// update for readers on other goroutines.
type Stats struct {
	MapID           uint32        `json:"map_id"`
	InstanceID      uint32        `json:"instance_id"`
	Name            string        `json:"name"`
	Kind            string        `json:"kind"`
	Difficulty      uint8         `json:"difficulty"`
	RunID           string        `json:"run_id"`
	Players         int           `json:"players"`
	Objects         int           `json:"objects"`
	ActiveObjects   int           `json:"active_objects"`
	LoadedGrids     int           `json:"loaded_grids"`
	LoadedTiles     int           `json:"loaded_tiles"`
	Models          int           `json:"models"`
	PendingScripts  int           `json:"pending_scripts"`
	PendingRespawns int           `json:"pending_respawns"`
	ResetPending    bool          `json:"reset_pending"`
	LastUpdate      time.Duration `json:"last_update_ns"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func (m *Map) publishStats(took time.Duration) {
	m.stats.Store(&Stats{
		MapID:           m.id,
		InstanceID:      m.instanceID,
		Name:            m.template.Name,
		Kind:            m.kind.String(),
		Difficulty:      m.difficulty,
		RunID:           m.runID.String(),
		Players:         len(m.players),
		Objects:         m.objects.Len(),
		ActiveObjects:   len(m.active),
		LoadedGrids:     m.loaded,
		LoadedTiles:     len(m.tiles),
		Models:          m.tree.Size(),
		PendingScripts:  len(m.scripts),
		PendingRespawns: len(m.respawns),
		ResetPending:    m.ResetPending(),
		LastUpdate:      took,
		UpdatedAt:       time.Now(),
	})
}

// Stats returns the snapshot taken at the end of the last update. Safe for
// concurrent use.
func (m *Map) Stats() Stats {
	return *m.stats.Load()
}
