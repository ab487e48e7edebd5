package maps

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/l1jgo/worldserver/internal/scripting"
	"github.com/l1jgo/worldserver/internal/world"
)

const nudgeScript = `
function nudge(ctx)
  return {
    {type = "move", x = ctx.x + 10, y = ctx.y, z = ctx.z},
    {type = "start_script", script_id = 2},
  }
end
`

func TestScripts_StepsRunWhenDue(t *testing.T) {
	f := newFixture(t)
	m := f.enter(mapContinent, f.player("Brann", centre))
	c := creatureSpawn(m, 1)

	require.True(t, m.ScriptsStart(1, c.GUID, 0, 0))
	assert.Equal(t, 2, m.PendingScripts())

	m.Update(tick)
	assert.Equal(t, float32(300), c.Pos.X)
	assertInCell(t, c)
	assert.False(t, c.Active)
	assert.Equal(t, 1, m.PendingScripts())

	f.clock.Advance(time.Second)
	m.Update(tick)
	assert.True(t, c.Active)
	assert.Zero(t, m.PendingScripts())
}

func TestScripts_UnknownScriptAndMissingSource(t *testing.T) {
	f := newFixture(t)
	m := f.enter(mapContinent, f.player("Magni", centre))
	assert.False(t, m.ScriptsStart(999, 0, 0, 0))

	require.True(t, m.ScriptsStart(1, world.GUID(123456), 0, 0))
	assert.NotPanics(t, func() { m.Update(tick) })
	assert.Equal(t, 1, m.PendingScripts())
}

func TestScripts_DeletedSourceDropsSteps(t *testing.T) {
	f := newFixture(t)
	m := f.enter(mapContinent, f.player("Moira", centre))
	c := creatureSpawn(m, 1)
	require.True(t, m.ScriptsStart(1, c.GUID, 0, 0))

	m.RemoveFromMap(c, true)
	assert.Zero(t, m.PendingScripts())
}

func TestScripts_QueueOrder(t *testing.T) {
	f := newFixture(t)
	m := f.mm.CreateMap(mapContinent, f.player("Dagran", centre))
	now := f.clock.Now()
	m.schedule(&ScriptAction{Due: now.Add(2 * time.Second), Script: 1})
	m.schedule(&ScriptAction{Due: now.Add(time.Second), Script: 2})
	m.schedule(&ScriptAction{Due: now.Add(2 * time.Second), Script: 3})
	m.schedule(&ScriptAction{Due: now, Script: 4})

	var order []uint32
	for _, a := range m.scripts {
		order = append(order, a.Script)
	}
	assert.Equal(t, []uint32{4, 2, 1, 3}, order)
}

func TestScripts_SummonExpires(t *testing.T) {
	f := newFixture(t)
	m := f.enter(mapContinent, f.player("Falstad", centre))
	require.True(t, m.ScriptsStart(2, 0, 0, 0))

	m.Update(tick)
	summon := findEntry(m, 98)
	require.NotNil(t, summon)
	assertInCell(t, summon)

	f.clock.Advance(10 * time.Second)
	m.Update(tick)
	assert.False(t, summon.IsInWorld())
	assert.Nil(t, findEntry(m, 98))
}

func TestScripts_GridLockHoldsGrid(t *testing.T) {
	f := newFixture(t)
	p := f.player("Aerie", centre)
	m := f.enter(mapContinent, p)
	m.PlayerRelocation(p, 1000, 1000, 0, 0)
	guard := creatureSpawn(m, 3)
	require.NotNil(t, guard)
	m.PlayerRelocation(p, centre.X, centre.Y, 0, 0)

	require.True(t, m.ScriptsStart(3, guard.GUID, 0, 0))
	for i := 0; i < 4; i++ {
		m.Update(10 * time.Second)
	}
	assert.True(t, m.IsGridLoaded(1000, 1000))

	f.clock.Advance(time.Minute)
	for i := 0; i < 3; i++ {
		m.Update(10 * time.Second)
	}
	assert.False(t, m.IsGridLoaded(1000, 1000))
}

func TestScripts_LuaStep(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "map"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "map", "nudge.lua"), []byte(nudgeScript), 0o644))
	engine, err := scripting.NewEngine(dir, 1, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	f := newFixture(t, func(_ *Options, d *Deps) { d.Lua = engine })
	m := f.enter(mapContinent, f.player("Kurdran", centre))
	c := creatureSpawn(m, 1)

	require.True(t, m.ScriptsStart(4, c.GUID, 0, 0))
	m.Update(tick)
	assert.Equal(t, float32(280), c.Pos.X)
	assertInCell(t, c)
	assert.Nil(t, findEntry(m, 98), "started scripts run from the next tick")

	m.Update(tick)
	assert.NotNil(t, findEntry(m, 98))
}

func TestScripts_LuaWithoutEngine(t *testing.T) {
	f := newFixture(t)
	m := f.enter(mapContinent, f.player("Gelbin", centre))
	c := creatureSpawn(m, 1)
	require.True(t, m.ScriptsStart(4, c.GUID, 0, 0))
	assert.NotPanics(t, func() { m.Update(tick) })
	assert.Equal(t, float32(270), c.Pos.X)
}
