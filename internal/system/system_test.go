package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/l1jgo/worldserver/internal/config"
	coresys "github.com/l1jgo/worldserver/internal/core/system"
	"github.com/l1jgo/worldserver/internal/data"
	"github.com/l1jgo/worldserver/internal/instance"
	"github.com/l1jgo/worldserver/internal/maps"
	"github.com/l1jgo/worldserver/internal/persist"
	"github.com/l1jgo/worldserver/internal/world"
)

const (
	mapContinent = 0
	mapDungeon   = 36
)

type env struct {
	mm        *maps.Manager
	instances *instance.Manager
	respawns  *persist.MemoryRespawnStore
	now       time.Time
	log       *zap.Logger
}

func (e *env) clock() time.Time { return e.now }

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		respawns: persist.NewMemoryRespawnStore(),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		log:      zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel)),
	}
	templates, err := data.NewMapTable([]data.MapTemplate{
		{ID: mapContinent, Name: "Eastern Kingdoms"},
		{ID: mapDungeon, Name: "Deadmines", Kind: data.KindDungeon, Difficulties: []data.DifficultyEntry{
			{Difficulty: 0, MaxPlayers: 5, ResetInterval: 24 * 3600},
		}},
	})
	require.NoError(t, err)
	spawns, err := data.NewSpawnTable([]data.SpawnEntry{
		{SpawnID: 1, Type: data.SpawnCreature, Entry: 299, MapID: mapContinent, X: 270, Y: 270, RespawnDelay: 300},
	})
	require.NoError(t, err)
	scripts, err := data.NewScriptTable(nil)
	require.NoError(t, err)

	e.instances = instance.NewManager(templates, persist.NewMemoryInstanceStore(), e.log)
	e.instances.Now = e.clock
	e.mm = maps.NewManager(maps.Options{
		TerrainDir:          t.TempDir(),
		GridUnload:          true,
		GridCleanUpDelay:    time.Second,
		InstanceUnloadDelay: time.Hour,
		UpdateThreads:       2,
		Visibility:          config.Defaults().Visibility,
	}, maps.Deps{
		Templates: templates,
		Spawns:    spawns,
		Areas:     data.NewAreaTable(nil),
		Scripts:   scripts,
		Respawns:  e.respawns,
		Instances: e.instances,
		GUIDs:     world.NewGUIDGenerator(),
		Log:       e.log,
		Now:       e.clock,
	})
	return e
}

func (e *env) runner() *coresys.Runner {
	r := coresys.NewRunner()
	r.Register(NewRespawnPersistSystem(e.mm, e.log, time.Second))
	r.Register(NewReclaimSystem(e.mm, e.log))
	r.Register(NewMapUpdateSystem(e.mm, e.log))
	reset := NewInstanceResetSystem(e.mm, e.instances, e.log)
	reset.Now = e.clock
	r.Register(reset)
	return r
}

func TestSystems_EmptyInstanceStaysUntilUnloadDelay(t *testing.T) {
	e := newEnv(t)
	r := e.runner()

	p := world.NewPlayer(1, "Alice", world.Position{X: 266, Y: 266})
	m := e.mm.CreateMap(mapDungeon, p)
	require.NotNil(t, m)
	require.True(t, m.AddPlayerToMap(p))
	id := m.InstanceID()

	m.RemovePlayerFromMap(p, false)
	for i := 0; i < 10; i++ {
		r.Tick(100 * time.Millisecond)
	}
	assert.NotNil(t, e.mm.FindMap(mapDungeon, id), "unload delay is an hour")
	assert.NotNil(t, e.instances.Find(id))
}

func TestSystems_GlobalResetWipesInstance(t *testing.T) {
	e := newEnv(t)
	r := e.runner()

	p := world.NewPlayer(1, "Alice", world.Position{X: 266, Y: 266})
	m := e.mm.CreateMap(mapDungeon, p)
	require.NotNil(t, m)
	require.True(t, m.AddPlayerToMap(p))
	id := m.InstanceID()
	r.Tick(100 * time.Millisecond)

	e.now = e.now.Add(25 * time.Hour)
	// the schedule is checked once a second
	for i := 0; i < 10; i++ {
		r.Tick(100 * time.Millisecond)
	}
	assert.False(t, m.HavePlayers())
	assert.False(t, p.IsInWorld(), "evicted player left the map")
	assert.Nil(t, e.mm.FindMap(mapDungeon, id))
	assert.Nil(t, e.instances.Find(id))
	assert.NotContains(t, e.mm.LiveInstanceIDs(), id)
}

func TestSystems_RespawnTimesPersistOnInterval(t *testing.T) {
	e := newEnv(t)
	persister := NewRespawnPersistSystem(e.mm, e.log, time.Second)

	p := world.NewPlayer(1, "Alice", world.Position{X: 266, Y: 266})
	m := e.mm.CreateMap(mapContinent, p)
	require.NotNil(t, m)
	require.True(t, m.AddPlayerToMap(p))

	obj := m.FindSpawn(persist.RespawnCreature, 1)
	require.NotNil(t, obj)
	m.Despawn(obj, 5*time.Minute)

	persister.Update(500 * time.Millisecond)
	assert.Equal(t, 0, e.respawns.Len(), "interval not reached")

	persister.Update(500 * time.Millisecond)
	assert.Equal(t, 1, e.respawns.Len())
}

func TestPhaseOrder(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, coresys.PhaseSchedule, NewInstanceResetSystem(e.mm, e.instances, e.log).Phase())
	assert.Equal(t, coresys.PhaseMaps, NewMapUpdateSystem(e.mm, e.log).Phase())
	assert.Equal(t, coresys.PhaseReclaim, NewReclaimSystem(e.mm, e.log).Phase())
	assert.Equal(t, coresys.PhasePersist, NewRespawnPersistSystem(e.mm, e.log, time.Second).Phase())
}
