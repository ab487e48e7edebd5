package instance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/worldserver/internal/data"
	"github.com/l1jgo/worldserver/internal/persist"
)

// Store persists saves and binds.
type Store interface {
	LoadInstances(ctx context.Context) ([]persist.InstanceRow, error)
	LoadBinds(ctx context.Context) ([]persist.BindRow, error)
	SaveInstance(ctx context.Context, row persist.InstanceRow) error
	DeleteInstance(ctx context.Context, id uint32) error
	SaveBind(ctx context.Context, row persist.BindRow) error
	DeleteBind(ctx context.Context, row persist.BindRow) error
}

const storeTimeout = 5 * time.Second

// Manager owns every instance save and bind. It is called from map update
// goroutines running in parallel, so all methods lock.
type Manager struct {
	mu     sync.Mutex
	maps   *data.MapTable
	store  Store
	log    *zap.Logger
	saves  map[uint32]*Save
	player map[uint64]map[Key]*Bind
	group  map[uint64]map[Key]*Bind

	// Now is the clock; replaced in tests.
	Now func() time.Time
}

func NewManager(maps *data.MapTable, store Store, log *zap.Logger) *Manager {
	return &Manager{
		maps:   maps,
		store:  store,
		log:    log,
		saves:  make(map[uint32]*Save),
		player: make(map[uint64]map[Key]*Bind),
		group:  make(map[uint64]map[Key]*Bind),
		Now:    time.Now,
	}
}

// Load reads saves and binds from the store. Saves whose reset time already
// passed while the server was down are deleted instead of loaded.
func (m *Manager) Load(ctx context.Context) error {
	rows, err := m.store.LoadInstances(ctx)
	if err != nil {
		return fmt.Errorf("load instances: %w", err)
	}
	binds, err := m.store.LoadBinds(ctx)
	if err != nil {
		return fmt.Errorf("load instance binds: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	var expired []uint32
	for _, row := range rows {
		s := &Save{
			InstanceID: row.ID,
			MapID:      row.MapID,
			Difficulty: row.Difficulty,
			CanReset:   true,
			players:    make(map[uint64]struct{}),
			groups:     make(map[uint64]struct{}),
		}
		if row.ResetTime != 0 {
			s.ResetTime = time.Unix(row.ResetTime, 0)
			if !s.ResetTime.After(now) {
				expired = append(expired, row.ID)
				continue
			}
		}
		if tmpl := m.maps.Get(row.MapID); tmpl != nil && tmpl.IsBattlegroundOrArena() {
			s.CanReset = false
		}
		m.saves[row.ID] = s
	}
	for _, b := range binds {
		s := m.saves[b.InstanceID]
		if s == nil {
			continue
		}
		if b.Group {
			m.bindLocked(m.group, s.groups, b.Owner, s, b.Permanent)
		} else {
			m.bindLocked(m.player, s.players, b.Owner, s, b.Permanent)
		}
	}
	for _, id := range expired {
		if err := m.store.DeleteInstance(ctx, id); err != nil {
			return fmt.Errorf("delete expired instance %d: %w", id, err)
		}
	}
	m.log.Info("instance saves loaded", zap.Int("saves", len(m.saves)),
		zap.Int("binds", len(binds)), zap.Int("expired", len(expired)))
	return nil
}

// InstanceIDs returns the ids of all saves, sorted, to seed the id allocator.
func (m *Manager) InstanceIDs() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uint32, 0, len(m.saves))
	for id := range m.saves {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Find returns the save of instance id, or nil.
func (m *Manager) Find(id uint32) *Save {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves[id]
}

// GetOrCreate returns the save of instance id, creating and persisting it
// with a reset time taken from the template's reset interval.
func (m *Manager) GetOrCreate(id, mapID uint32, difficulty uint8, canReset bool) *Save {
	m.mu.Lock()
	if s := m.saves[id]; s != nil {
		m.mu.Unlock()
		return s
	}
	s := &Save{
		InstanceID: id,
		MapID:      mapID,
		Difficulty: difficulty,
		CanReset:   canReset,
		players:    make(map[uint64]struct{}),
		groups:     make(map[uint64]struct{}),
	}
	if tmpl := m.maps.Get(mapID); tmpl != nil && canReset {
		if iv := tmpl.ResetInterval(difficulty); iv > 0 {
			s.ResetTime = m.Now().Add(iv).Truncate(time.Second)
		}
	}
	m.saves[id] = s
	m.mu.Unlock()

	m.persist("save instance", func(ctx context.Context) error {
		return m.store.SaveInstance(ctx, saveRow(s))
	})
	return s
}

func saveRow(s *Save) persist.InstanceRow {
	row := persist.InstanceRow{ID: s.InstanceID, MapID: s.MapID, Difficulty: s.Difficulty}
	if !s.ResetTime.IsZero() {
		row.ResetTime = s.ResetTime.Unix()
	}
	return row
}

// PlayerBind returns the player's bind for (mapID, difficulty), or nil.
func (m *Manager) PlayerBind(player uint64, mapID uint32, difficulty uint8) *Bind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.player[player][Key{mapID, difficulty}]
}

// GroupBind returns the group's bind for (mapID, difficulty), or nil.
func (m *Manager) GroupBind(group uint64, mapID uint32, difficulty uint8) *Bind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.group[group][Key{mapID, difficulty}]
}

// BindPlayer binds a player to s, replacing any bind the player held for the
// same map and difficulty.
func (m *Manager) BindPlayer(player uint64, s *Save, permanent bool) {
	m.bind(player, false, s, permanent)
}

// BindGroup binds a group to s, replacing any previous bind of the group for
// the same map and difficulty.
func (m *Manager) BindGroup(group uint64, s *Save) {
	m.bind(group, true, s, false)
}

func (m *Manager) bind(owner uint64, isGroup bool, s *Save, permanent bool) {
	m.mu.Lock()
	binds, members := m.player, s.players
	if isGroup {
		binds, members = m.group, s.groups
	}
	old := binds[owner][s.Key()]
	if old != nil && old.Save == s && old.Permanent == permanent {
		m.mu.Unlock()
		return
	}
	if old != nil && old.Save != s {
		m.unbindLocked(binds, owner, old.Save, isGroup)
	}
	m.bindLocked(binds, members, owner, s, permanent)
	m.mu.Unlock()

	if old != nil && old.Save != s {
		m.persist("delete bind", func(ctx context.Context) error {
			return m.store.DeleteBind(ctx, persist.BindRow{Owner: owner, Group: isGroup, InstanceID: old.Save.InstanceID})
		})
	}
	m.persist("save bind", func(ctx context.Context) error {
		return m.store.SaveBind(ctx, persist.BindRow{Owner: owner, Group: isGroup, InstanceID: s.InstanceID, Permanent: permanent})
	})
}

func (m *Manager) bindLocked(binds map[uint64]map[Key]*Bind, members map[uint64]struct{}, owner uint64, s *Save, permanent bool) {
	if binds[owner] == nil {
		binds[owner] = make(map[Key]*Bind)
	}
	binds[owner][s.Key()] = &Bind{Save: s, Permanent: permanent}
	members[owner] = struct{}{}
}

func (m *Manager) unbindLocked(binds map[uint64]map[Key]*Bind, owner uint64, s *Save, isGroup bool) {
	delete(binds[owner], s.Key())
	if len(binds[owner]) == 0 {
		delete(binds, owner)
	}
	if isGroup {
		delete(s.groups, owner)
	} else {
		delete(s.players, owner)
	}
}

// UnbindPlayer drops the player's bind for (mapID, difficulty). Permanent
// binds are kept unless force is set.
func (m *Manager) UnbindPlayer(player uint64, mapID uint32, difficulty uint8, force bool) {
	m.unbind(player, false, Key{mapID, difficulty}, force)
}

// UnbindGroup drops the group's bind for (mapID, difficulty).
func (m *Manager) UnbindGroup(group uint64, mapID uint32, difficulty uint8) {
	m.unbind(group, true, Key{mapID, difficulty}, true)
}

func (m *Manager) unbind(owner uint64, isGroup bool, k Key, force bool) {
	m.mu.Lock()
	binds := m.player
	if isGroup {
		binds = m.group
	}
	b := binds[owner][k]
	if b == nil || (b.Permanent && !force) {
		m.mu.Unlock()
		return
	}
	m.unbindLocked(binds, owner, b.Save, isGroup)
	m.mu.Unlock()

	m.persist("delete bind", func(ctx context.Context) error {
		return m.store.DeleteBind(ctx, persist.BindRow{Owner: owner, Group: isGroup, InstanceID: b.Save.InstanceID})
	})
}

// Delete removes a save and every bind to it. Called after the instance was
// reset and its map unloaded.
func (m *Manager) Delete(id uint32) {
	m.mu.Lock()
	s := m.saves[id]
	if s == nil {
		m.mu.Unlock()
		return
	}
	for p := range s.players {
		m.unbindLocked(m.player, p, s, false)
	}
	for g := range s.groups {
		m.unbindLocked(m.group, g, s, true)
	}
	delete(m.saves, id)
	m.mu.Unlock()

	m.persist("delete instance", func(ctx context.Context) error {
		return m.store.DeleteInstance(ctx, id)
	})
}

// DueResets returns the saves whose global reset time has arrived.
func (m *Manager) DueResets(now time.Time) []*Save {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Save
	for _, s := range m.saves {
		if s.CanReset && !s.ResetTime.IsZero() && !s.ResetTime.After(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstanceID < out[j].InstanceID })
	return out
}

// Bound returns how many players and groups are bound to instance id.
func (m *Manager) Bound(id uint32) (players, groups int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.saves[id]; s != nil {
		return len(s.players), len(s.groups)
	}
	return 0, 0
}

// Count returns the number of saves.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saves)
}

// persist runs a store write, logging failures. In-memory state stays
// authoritative.
func (m *Manager) persist(what string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		m.log.Error("instance store write failed", zap.String("op", what), zap.Error(err))
	}
}
