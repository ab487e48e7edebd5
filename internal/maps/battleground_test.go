package maps

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l1jgo/worldserver/internal/core/event"
)

func TestBattleground_CreateAndEnter(t *testing.T) {
	f := newFixture(t)
	m, err := f.mm.CreateBattlegroundMap(mapBG, 0)
	require.NoError(t, err)
	assert.True(t, m.IsBattleground())
	assert.Equal(t, float32(180), m.VisibleDistance())

	_, err = f.mm.CreateBattlegroundMap(mapBG, m.InstanceID())
	assert.ErrorIs(t, err, ErrInstanceIDInUse)

	p := f.player("Drek'Thar", centre)
	p.BattlegroundID = m.InstanceID()
	assert.Same(t, m, f.mm.CreateMap(mapBG, p))
	assert.True(t, f.mm.CanPlayerEnter(mapBG, p))

	stranger := f.player("Vanndar", centre)
	stranger.BattlegroundID = m.InstanceID() + 1
	assert.Nil(t, f.mm.CreateMap(mapBG, stranger))
	assert.False(t, m.CanEnter(stranger))
	assert.False(t, f.mm.CanPlayerEnter(mapBG, stranger))
}

func TestBattleground_WrongTemplate(t *testing.T) {
	f := newFixture(t)
	_, err := f.mm.CreateBattlegroundMap(mapDungeon, 0)
	assert.ErrorIs(t, err, ErrNotBattleground)
	_, err = f.mm.CreateBattlegroundMap(4242, 0)
	assert.ErrorIs(t, err, ErrUnknownMap)
}

func TestBattleground_EndUnloadsAndFreesID(t *testing.T) {
	f := newFixture(t)
	m, err := f.mm.CreateBattlegroundMap(mapBG, 31)
	require.NoError(t, err)
	p := f.player("Galv", centre)
	p.BattlegroundID = 31
	require.True(t, m.AddPlayerToMap(p))
	var evicted int
	event.Subscribe(m.Bus(), func(event.PlayerEvicted) { evicted++ })

	assert.False(t, m.CanUnload())
	assert.False(t, m.Reset(ResetAll), "battlegrounds do not reset")
	m.EndBattleground()
	assert.True(t, m.Ended())
	assert.False(t, m.HavePlayers())
	assert.True(t, m.CanUnload())
	m.Update(tick)
	assert.Equal(t, 1, evicted)

	require.NoError(t, f.mm.Reclaim(context.Background()))
	assert.Nil(t, f.mm.FindMap(mapBG, 31))
	assert.False(t, f.mm.InstanceIDs().InUse(31))
}
