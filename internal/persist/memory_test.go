package persist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRespawnStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRespawnStore()

	require.NoError(t, s.SaveRespawns(ctx, []RespawnRow{
		{Kind: RespawnCreature, SpawnID: 7, MapID: 33, InstanceID: 2, RespawnTime: 1700000000},
		{Kind: RespawnGameObject, SpawnID: 7, MapID: 33, InstanceID: 2, RespawnTime: 1700000100},
		{Kind: RespawnCreature, SpawnID: 7, MapID: 33, InstanceID: 3, RespawnTime: 1700000200},
	}, nil))
	assert.Equal(t, 3, s.Len())

	rows, err := s.LoadRespawns(ctx, 33, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1700000000), rows[0].RespawnTime)
	assert.Equal(t, RespawnGameObject, rows[1].Kind)

	require.NoError(t, s.SaveRespawns(ctx,
		[]RespawnRow{{Kind: RespawnCreature, SpawnID: 7, MapID: 33, InstanceID: 2, RespawnTime: 1800000000}},
		[]RespawnRow{{Kind: RespawnGameObject, SpawnID: 7, MapID: 33, InstanceID: 2}},
	))
	rows, err = s.LoadRespawns(ctx, 33, 2)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1800000000), rows[0].RespawnTime)

	require.NoError(t, s.DeleteInstanceRespawns(ctx, 33, 2))
	rows, err = s.LoadRespawns(ctx, 33, 2)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryInstanceStore_DeleteCascadesBinds(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryInstanceStore()

	require.NoError(t, s.SaveInstance(ctx, InstanceRow{ID: 5, MapID: 33, Difficulty: 1, ResetTime: 99}))
	require.NoError(t, s.SaveInstance(ctx, InstanceRow{ID: 6, MapID: 33}))
	require.NoError(t, s.SaveBind(ctx, BindRow{Owner: 100, InstanceID: 5}))
	require.NoError(t, s.SaveBind(ctx, BindRow{Owner: 9, Group: true, InstanceID: 5}))
	require.NoError(t, s.SaveBind(ctx, BindRow{Owner: 100, InstanceID: 6, Permanent: true}))

	require.NoError(t, s.DeleteInstance(ctx, 5))
	inst, err := s.LoadInstances(ctx)
	require.NoError(t, err)
	require.Len(t, inst, 1)
	assert.Equal(t, uint32(6), inst[0].ID)

	binds, err := s.LoadBinds(ctx)
	require.NoError(t, err)
	require.Len(t, binds, 1)
	assert.True(t, binds[0].Permanent)

	require.NoError(t, s.DeleteBind(ctx, binds[0]))
	binds, err = s.LoadBinds(ctx)
	require.NoError(t, err)
	assert.Empty(t, binds)
}
