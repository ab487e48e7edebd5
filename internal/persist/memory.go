package persist

import (
	"context"
	"sort"
	"sync"
)

// MemoryRespawnStore keeps respawn rows in memory. Used when no database is
// configured and by tests.
type MemoryRespawnStore struct {
	mu   sync.Mutex
	rows map[respawnKey]RespawnRow
}

type respawnKey struct {
	kind       uint8
	spawnID    uint32
	instanceID uint32
}

func NewMemoryRespawnStore() *MemoryRespawnStore {
	return &MemoryRespawnStore{rows: make(map[respawnKey]RespawnRow)}
}

func (s *MemoryRespawnStore) LoadRespawns(_ context.Context, mapID, instanceID uint32) ([]RespawnRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RespawnRow
	for _, row := range s.rows {
		if row.MapID == mapID && row.InstanceID == instanceID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].SpawnID < out[j].SpawnID
	})
	return out, nil
}

func (s *MemoryRespawnStore) SaveRespawns(_ context.Context, upserts, deletes []RespawnRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range deletes {
		delete(s.rows, respawnKey{d.Kind, d.SpawnID, d.InstanceID})
	}
	for _, u := range upserts {
		s.rows[respawnKey{u.Kind, u.SpawnID, u.InstanceID}] = u
	}
	return nil
}

func (s *MemoryRespawnStore) DeleteInstanceRespawns(_ context.Context, mapID, instanceID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, row := range s.rows {
		if row.MapID == mapID && row.InstanceID == instanceID {
			delete(s.rows, k)
		}
	}
	return nil
}

// Len returns the number of stored rows.
func (s *MemoryRespawnStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// MemoryInstanceStore keeps instance saves and binds in memory.
type MemoryInstanceStore struct {
	mu        sync.Mutex
	instances map[uint32]InstanceRow
	binds     map[bindKey]BindRow
}

type bindKey struct {
	owner      uint64
	group      bool
	instanceID uint32
}

func NewMemoryInstanceStore() *MemoryInstanceStore {
	return &MemoryInstanceStore{
		instances: make(map[uint32]InstanceRow),
		binds:     make(map[bindKey]BindRow),
	}
}

func (s *MemoryInstanceStore) LoadInstances(context.Context) ([]InstanceRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]InstanceRow, 0, len(s.instances))
	for _, row := range s.instances {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryInstanceStore) LoadBinds(context.Context) ([]BindRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]BindRow, 0, len(s.binds))
	for _, row := range s.binds {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].InstanceID != out[j].InstanceID {
			return out[i].InstanceID < out[j].InstanceID
		}
		return out[i].Owner < out[j].Owner
	})
	return out, nil
}

func (s *MemoryInstanceStore) SaveInstance(_ context.Context, row InstanceRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[row.ID] = row
	return nil
}

func (s *MemoryInstanceStore) DeleteInstance(_ context.Context, id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instances, id)
	for k := range s.binds {
		if k.instanceID == id {
			delete(s.binds, k)
		}
	}
	return nil
}

func (s *MemoryInstanceStore) SaveBind(_ context.Context, row BindRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.binds[bindKey{row.Owner, row.Group, row.InstanceID}] = row
	return nil
}

func (s *MemoryInstanceStore) DeleteBind(_ context.Context, row BindRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.binds, bindKey{row.Owner, row.Group, row.InstanceID})
	return nil
}
