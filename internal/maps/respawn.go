package maps

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/worldserver/internal/data"
	"github.com/l1jgo/worldserver/internal/persist"
	"github.com/l1jgo/worldserver/internal/world"
)

const respawnStoreTimeout = 5 * time.Second

type respawnKey struct {
	kind    uint8
	spawnID uint32
}

func kindOf(t world.TypeID) uint8 {
	if t == world.TypeGameObject {
		return persist.RespawnGameObject
	}
	return persist.RespawnCreature
}

func keyOf(obj *world.Object) respawnKey {
	return respawnKey{kind: kindOf(obj.Type), spawnID: obj.SpawnID}
}

func spawnKey(e *data.SpawnEntry) respawnKey {
	if e.Type == data.SpawnGameObject {
		return respawnKey{kind: persist.RespawnGameObject, spawnID: e.SpawnID}
	}
	return respawnKey{kind: persist.RespawnCreature, spawnID: e.SpawnID}
}

func spawnType(kind uint8) string {
	if kind == persist.RespawnGameObject {
		return data.SpawnGameObject
	}
	return data.SpawnCreature
}

// loadRespawns reads the persisted respawn times of this map copy. A store
// failure leaves every spawn eligible.
func (m *Map) loadRespawns() {
	if m.deps.Respawns == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), respawnStoreTimeout)
	defer cancel()
	rows, err := m.deps.Respawns.LoadRespawns(ctx, m.id, m.instanceID)
	if err != nil {
		m.log.Error("load respawn times failed", zap.Error(err))
		return
	}
	for _, r := range rows {
		m.respawns[respawnKey{kind: r.Kind, spawnID: r.SpawnID}] = r.RespawnTime
	}
	if len(rows) > 0 {
		m.log.Debug("respawn times loaded", zap.Int("count", len(rows)))
	}
}

// spawn creates the object of a static spawn row and places it.
func (m *Map) spawn(e *data.SpawnEntry) *world.Object {
	obj := &world.Object{
		GUID:    m.deps.GUIDs.Next(),
		Type:    world.TypeCreature,
		Entry:   e.Entry,
		SpawnID: e.SpawnID,
		Pos:     world.Position{X: e.X, Y: e.Y, Z: e.Z, O: e.O},
		Active:  e.Active,
	}
	if e.Type == data.SpawnGameObject {
		obj.Type = world.TypeGameObject
		if e.Model != nil {
			obj.Model = world.Extents{X: e.Model.X, Y: e.Model.Y, Z: e.Model.Z}
		}
	}
	obj.Home = obj.Pos
	if !m.insert(obj) {
		return nil
	}
	m.spawned[spawnKey(e)] = obj.GUID
	return obj
}

// Despawn removes a spawned object and records when it comes back. Temporary
// objects are simply removed.
func (m *Map) Despawn(obj *world.Object, respawnDelay time.Duration) {
	if obj.SpawnID != 0 && obj.Type != world.TypePlayer {
		k := keyOf(obj)
		m.respawns[k] = m.now().Add(respawnDelay).Unix()
		m.respawnDirty[k] = true
	}
	m.RemoveFromMap(obj, true)
}

// RespawnTime returns the absolute respawn time (unix seconds) of a spawn,
// or 0 when none is pending.
func (m *Map) RespawnTime(kind uint8, spawnID uint32) int64 {
	return m.respawns[respawnKey{kind: kind, spawnID: spawnID}]
}

// ForceRespawn clears a pending respawn and spawns the object now if its grid
// is loaded.
func (m *Map) ForceRespawn(kind uint8, spawnID uint32) *world.Object {
	k := respawnKey{kind: kind, spawnID: spawnID}
	if _, ok := m.respawns[k]; ok {
		delete(m.respawns, k)
		m.respawnDirty[k] = true
	}
	return m.respawnNow(k)
}

func (m *Map) respawnNow(k respawnKey) *world.Object {
	if _, ok := m.spawned[k]; ok || m.deps.Spawns == nil {
		return nil
	}
	e := m.deps.Spawns.Get(spawnType(k.kind), k.spawnID)
	if e == nil || e.MapID != m.id || !e.OnDifficulty(m.difficulty) || !m.IsGridLoaded(e.X, e.Y) {
		return nil
	}
	return m.spawn(e)
}

// respawnSweep brings back every spawn whose respawn time has passed. Spawns
// in unloaded grids come back when the grid loads.
func (m *Map) respawnSweep() {
	now := m.now().Unix()
	var due []respawnKey
	for k, t := range m.respawns {
		if t <= now {
			due = append(due, k)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].kind != due[j].kind {
			return due[i].kind < due[j].kind
		}
		return due[i].spawnID < due[j].spawnID
	})
	for _, k := range due {
		// The previous object is still waiting for the flush; its removal
		// has to land before the spawn can come back.
		if guid, ok := m.spawned[k]; ok {
			if _, queued := m.removing[guid]; queued {
				continue
			}
		}
		delete(m.respawns, k)
		m.respawnDirty[k] = true
		m.respawnNow(k)
	}
}

// PendingRespawns returns the number of spawns waiting for their time.
func (m *Map) PendingRespawns() int { return len(m.respawns) }

// SaveRespawns writes changed respawn times to the store.
func (m *Map) SaveRespawns(ctx context.Context) error {
	if m.deps.Respawns == nil || len(m.respawnDirty) == 0 {
		return nil
	}
	var upserts, deletes []persist.RespawnRow
	for k := range m.respawnDirty {
		row := persist.RespawnRow{Kind: k.kind, SpawnID: k.spawnID, MapID: m.id, InstanceID: m.instanceID}
		if t, ok := m.respawns[k]; ok {
			row.RespawnTime = t
			upserts = append(upserts, row)
		} else {
			deletes = append(deletes, row)
		}
	}
	if err := m.deps.Respawns.SaveRespawns(ctx, upserts, deletes); err != nil {
		return fmt.Errorf("save respawns map %d instance %d: %w", m.id, m.instanceID, err)
	}
	clear(m.respawnDirty)
	return nil
}

// wipeRespawns forgets every respawn time of this copy, in memory and in the
// store. Used when an instance is reset.
func (m *Map) wipeRespawns(ctx context.Context) error {
	clear(m.respawns)
	clear(m.respawnDirty)
	if m.deps.Respawns == nil {
		return nil
	}
	if err := m.deps.Respawns.DeleteInstanceRespawns(ctx, m.id, m.instanceID); err != nil {
		return fmt.Errorf("delete respawns map %d instance %d: %w", m.id, m.instanceID, err)
	}
	return nil
}

// FindSpawn returns the live object of a static spawn, or nil.
func (m *Map) FindSpawn(kind uint8, spawnID uint32) *world.Object {
	if guid, ok := m.spawned[respawnKey{kind: kind, spawnID: spawnID}]; ok {
		return m.Find(guid)
	}
	return nil
}
