package maps

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/l1jgo/worldserver/internal/config"
	"github.com/l1jgo/worldserver/internal/core/arena"
	"github.com/l1jgo/worldserver/internal/data"
	"github.com/l1jgo/worldserver/internal/grid"
	"github.com/l1jgo/worldserver/internal/instance"
	"github.com/l1jgo/worldserver/internal/persist"
	"github.com/l1jgo/worldserver/internal/terrain"
	"github.com/l1jgo/worldserver/internal/world"
)

const (
	mapContinent = 0
	mapDungeon   = 36
	mapRaid      = 249
	mapBG        = 489

	tick = 100 * time.Millisecond
)

// Everything interesting sits in grid (32, 32), which spans [0, 533.33) on
// both axes; its centre is far enough from the edges that a 90 yard visit
// never touches a neighbour.
var (
	centre = world.Position{X: 266, Y: 266}
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	t         *testing.T
	mm        *Manager
	opts      Options
	deps      Deps
	clock     *fakeClock
	respawns  *persist.MemoryRespawnStore
	instances *instance.Manager
	nextGUID  world.GUID
}

func testTemplates(t *testing.T) *data.MapTable {
	t.Helper()
	day := int64(24 * 3600)
	tbl, err := data.NewMapTable([]data.MapTemplate{
		{ID: mapContinent, Name: "Eastern Kingdoms"},
		{ID: mapDungeon, Name: "Deadmines", Kind: data.KindDungeon, Difficulties: []data.DifficultyEntry{
			{Difficulty: 0, MaxPlayers: 5, ResetInterval: day},
			{Difficulty: 1, MaxPlayers: 5, ResetInterval: day},
		}},
		{ID: mapRaid, Name: "Onyxia's Lair", Kind: data.KindRaid, Difficulties: []data.DifficultyEntry{
			{Difficulty: 0, MaxPlayers: 2, ResetInterval: 7 * day},
		}},
		{ID: mapBG, Name: "Warsong Gulch", Kind: data.KindBattleground, Difficulties: []data.DifficultyEntry{
			{Difficulty: 0, MaxPlayers: 20},
		}},
	})
	require.NoError(t, err)
	return tbl
}

func testSpawns(t *testing.T) *data.SpawnTable {
	t.Helper()
	tbl, err := data.NewSpawnTable([]data.SpawnEntry{
		{SpawnID: 1, Type: data.SpawnCreature, Entry: 299, MapID: mapContinent, X: 270, Y: 270, RespawnDelay: 300},
		{SpawnID: 2, Type: data.SpawnCreature, Entry: 6, MapID: mapContinent, X: 266, Y: 400, RespawnDelay: 300},
		{SpawnID: 3, Type: data.SpawnCreature, Entry: 6, MapID: mapContinent, X: 1000, Y: 1000, RespawnDelay: 300},
		{SpawnID: 10, Type: data.SpawnGameObject, Entry: 1731, MapID: mapContinent, X: 300, Y: 266, Z: 10,
			Model: &data.Model{X: 2, Y: 2, Z: 2}},
		{SpawnID: 100, Type: data.SpawnCreature, Entry: 644, MapID: mapDungeon, X: 270, Y: 270, Difficulties: []uint8{1}},
		{SpawnID: 101, Type: data.SpawnCreature, Entry: 657, MapID: mapDungeon, X: 272, Y: 272},
	})
	require.NoError(t, err)
	return tbl
}

func testScripts(t *testing.T) *data.ScriptTable {
	t.Helper()
	tbl, err := data.NewScriptTable([]data.Script{
		{ID: 1, Name: "patrol", Steps: []data.ScriptStep{
			{Command: data.CmdSetActive, On: true, Delay: 1000},
			{Command: data.CmdMove, X: 300, Y: 300},
		}},
		{ID: 2, Name: "ambush", Steps: []data.ScriptStep{
			{Command: data.CmdSummon, Entry: 98, X: 280, Y: 280, Seconds: 10},
		}},
		{ID: 3, Name: "hold the bridge", Steps: []data.ScriptStep{
			{Command: data.CmdLockGrid},
			{Command: data.CmdUnlockGrid, Delay: 60000},
		}},
		{ID: 4, Name: "lua", Steps: []data.ScriptStep{
			{Command: data.CmdLua, Func: "nudge"},
		}},
	})
	require.NoError(t, err)
	return tbl
}

func testOptions(dir string) Options {
	return Options{
		TerrainDir:          dir,
		GridUnload:          true,
		GridCleanUpDelay:    time.Second,
		InstanceUnloadDelay: 2 * time.Second,
		UpdateThreads:       2,
		Visibility:          config.Defaults().Visibility,
	}
}

func newFixture(t *testing.T, tweak ...func(*Options, *Deps)) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	log := zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
	templates := testTemplates(t)
	instances := instance.NewManager(templates, persist.NewMemoryInstanceStore(), log)
	instances.Now = clock.Now

	f := &fixture{
		t:         t,
		opts:      testOptions(t.TempDir()),
		clock:     clock,
		respawns:  persist.NewMemoryRespawnStore(),
		instances: instances,
		nextGUID:  1,
	}
	f.deps = Deps{
		Templates: templates,
		Spawns:    testSpawns(t),
		Areas:     data.NewAreaTable([]data.AreaEntry{{ID: 12, Name: "Elwynn Forest"}, {ID: 87, Name: "Goldshire", ZoneID: 12}}),
		Scripts:   testScripts(t),
		Respawns:  f.respawns,
		Instances: instances,
		GUIDs:     world.NewGUIDGenerator(),
		Log:       log,
		Now:       clock.Now,
	}
	for _, fn := range tweak {
		fn(&f.opts, &f.deps)
	}
	f.mm = NewManager(f.opts, f.deps)
	return f
}

// restart builds a second manager over the same stores, as after a process
// restart.
func (f *fixture) restart() *Manager {
	return NewManager(f.opts, f.deps)
}

func (f *fixture) player(name string, pos world.Position) *world.Player {
	p := world.NewPlayer(f.nextGUID, name, pos)
	f.nextGUID++
	return p
}

// enter creates the map p belongs to and adds p to it.
func (f *fixture) enter(mapID uint32, p *world.Player) *Map {
	f.t.Helper()
	m := f.mm.CreateMap(mapID, p)
	require.NotNil(f.t, m)
	require.True(f.t, m.AddPlayerToMap(p))
	return m
}

// writeTile writes the terrain of grid g of mapID into the fixture's terrain
// directory.
func (f *fixture) writeTile(mapID uint32, g grid.GridCoord, spec terrain.TileSpec) {
	f.t.Helper()
	path := terrain.TilePath(f.opts.TerrainDir, mapID, g.TileX(), g.TileY())
	require.NoError(f.t, os.MkdirAll(filepath.Dir(path), 0o755))
	out, err := os.Create(path)
	require.NoError(f.t, err)
	defer out.Close()
	require.NoError(f.t, terrain.Encode(out, spec))
}

func creatureSpawn(m *Map, spawnID uint32) *world.Object {
	return m.FindSpawn(persist.RespawnCreature, spawnID)
}

// findEntry returns some live object with the given entry, or nil.
func findEntry(m *Map, entry uint32) *world.Object {
	var found *world.Object
	m.objects.Each(func(_ arena.Handle, obj *world.Object) {
		if obj.Entry == entry && found == nil {
			found = obj
		}
	})
	return found
}

// playerAt builds a player without touching fixture state, for use from
// several goroutines.
func (f *fixture) playerAt(i int) *world.Player {
	return world.NewPlayer(world.GUID(10000+i), "racer", centre)
}

var errStoreDown = errors.New("store down")

type failingStore struct{}

func (failingStore) LoadRespawns(context.Context, uint32, uint32) ([]persist.RespawnRow, error) {
	return nil, nil
}

func (failingStore) SaveRespawns(context.Context, []persist.RespawnRow, []persist.RespawnRow) error {
	return errStoreDown
}

func (failingStore) DeleteInstanceRespawns(context.Context, uint32, uint32) error {
	return errStoreDown
}
