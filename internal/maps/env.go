// Package maps runs the copies of the world: continents shared by everyone,
// and instances and battlegrounds private to a group. Each Map owns its grids
// and objects and is updated by exactly one goroutine at a time; the Manager
// creates, finds, ticks and destroys them.
package maps

import (
	"context"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/worldserver/internal/config"
	"github.com/l1jgo/worldserver/internal/data"
	"github.com/l1jgo/worldserver/internal/instance"
	"github.com/l1jgo/worldserver/internal/persist"
	"github.com/l1jgo/worldserver/internal/scripting"
	"github.com/l1jgo/worldserver/internal/world"
)

// MinUnloadDelay is the shortest unload countdown of an empty instance.
const MinUnloadDelay = time.Millisecond

// Kind selects the variant of a Map.
type Kind uint8

const (
	KindCommon Kind = iota
	KindInstance
	KindBattleground
)

func (k Kind) String() string {
	switch k {
	case KindCommon:
		return "common"
	case KindInstance:
		return "instance"
	case KindBattleground:
		return "battleground"
	}
	return "unknown"
}

// Options are the tunables of every map.
type Options struct {
	TerrainDir          string
	GridUnload          bool
	GridCleanUpDelay    time.Duration
	InstanceUnloadDelay time.Duration
	StrictIntegrity     bool
	TreeRebalance       time.Duration
	UpdateThreads       int
	Visibility          config.VisibilityConfig
}

// NewOptions derives map options from the server configuration.
func NewOptions(cfg *config.Config) Options {
	return Options{
		TerrainDir:          filepath.Join(cfg.World.DataDir, "maps"),
		GridUnload:          cfg.World.GridUnload,
		GridCleanUpDelay:    cfg.World.GridCleanUpDelay,
		InstanceUnloadDelay: cfg.World.InstanceUnloadDelay,
		StrictIntegrity:     cfg.World.StrictIntegrity,
		TreeRebalance:       cfg.World.DynamicTreeRebalance,
		UpdateThreads:       cfg.World.MapUpdateThreads,
		Visibility:          cfg.Visibility,
	}
}

// RespawnStore persists absolute respawn times.
type RespawnStore interface {
	LoadRespawns(ctx context.Context, mapID, instanceID uint32) ([]persist.RespawnRow, error)
	SaveRespawns(ctx context.Context, upserts, deletes []persist.RespawnRow) error
	DeleteInstanceRespawns(ctx context.Context, mapID, instanceID uint32) error
}

// Deps are the collaborators shared by all maps.
type Deps struct {
	Templates *data.MapTable
	Spawns    *data.SpawnTable
	Areas     *data.AreaTable
	Scripts   *data.ScriptTable
	// Lua runs "lua" script steps; nil disables them.
	Lua       *scripting.Engine
	Respawns  RespawnStore
	Instances *instance.Manager
	GUIDs     *world.GUIDGenerator
	Log       *zap.Logger
	// Now is the wall clock used for respawn and script times.
	Now func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// SightFunc is called during the visit pass for every object within the
// visible distance of a player or active object. It may relocate or despawn
// objects; those changes are deferred until the visit ends.
type SightFunc func(m *Map, seer, seen *world.Object)
