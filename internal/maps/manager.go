package maps

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/l1jgo/worldserver/internal/data"
	"github.com/l1jgo/worldserver/internal/instance"
	"github.com/l1jgo/worldserver/internal/terrain"
	"github.com/l1jgo/worldserver/internal/world"
)

var (
	ErrUnknownMap      = errors.New("unknown map")
	ErrNotBattleground = errors.New("map is not a battleground or arena")
	ErrInstanceIDInUse = errors.New("instance id in use")
)

type mapKey struct {
	mapID      uint32
	instanceID uint32
}

// Manager is the registry of running maps. The registry is guarded by a
// mutex; maps themselves are only touched by the goroutine updating them.
type Manager struct {
	mu     sync.Mutex
	maps   map[mapKey]*Map
	stores map[uint32]*terrain.Store

	ids     *InstanceIDs
	notices *noticeLog
	opts    Options
	deps    Deps
	log     *zap.Logger
}

// NewManager builds a manager. deps.Instances must be loaded already; its
// saves seed the instance id allocator.
func NewManager(opts Options, deps Deps) *Manager {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.GUIDs == nil {
		deps.GUIDs = world.NewGUIDGenerator()
	}
	var saved []uint32
	if deps.Instances != nil {
		saved = deps.Instances.InstanceIDs()
	}
	if opts.UpdateThreads < 1 {
		opts.UpdateThreads = 1
	}
	return &Manager{
		maps:    make(map[mapKey]*Map),
		stores:  make(map[uint32]*terrain.Store),
		ids:     NewInstanceIDs(saved),
		notices: newNoticeLog(NoticeLimit),
		opts:    opts,
		deps:    deps,
		log:     deps.Log.Named("maps"),
	}
}

// InstanceIDs returns the instance id allocator.
func (mm *Manager) InstanceIDs() *InstanceIDs { return mm.ids }

func (mm *Manager) storeLocked(mapID uint32) *terrain.Store {
	s, ok := mm.stores[mapID]
	if !ok {
		s = terrain.NewStore(mm.opts.TerrainDir, mapID, mm.log)
		mm.stores[mapID] = s
	}
	return s
}

func (mm *Manager) newMapLocked(tmpl *data.MapTemplate, instanceID uint32, difficulty uint8, kind Kind) *Map {
	m := newMap(tmpl, instanceID, difficulty, kind, mm.storeLocked(tmpl.ID), &mm.opts, &mm.deps)
	switch kind {
	case KindInstance:
		m.inst = &instanceState{unloadPending: true, unloadTimer: m.emptyUnloadDelay()}
	case KindBattleground:
		m.bg = &battlegroundState{unloadPending: true, unloadTimer: m.emptyUnloadDelay()}
	}
	mm.notices.watch(m)
	m.loadRespawns()
	m.publishStats(0)
	mm.maps[mapKey{tmpl.ID, instanceID}] = m
	m.log.Info("map created", zap.Stringer("kind", kind), zap.Uint8("difficulty", difficulty))
	return m
}

// CreateMap returns the map copy p should enter for mapID, creating it when
// needed: the shared base map of a continent, the instance p or p's group is
// bound to, or a fresh instance. Battleground maps are created by
// CreateBattlegroundMap; here they are only looked up. Returns nil for an
// unknown map.
func (mm *Manager) CreateMap(mapID uint32, p *world.Player) *Map {
	tmpl := mm.deps.Templates.Get(mapID)
	if tmpl == nil {
		mm.log.Warn("create map: unknown map", zap.Uint32("map", mapID))
		return nil
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if !tmpl.Instanceable() {
		if m := mm.maps[mapKey{mapID, 0}]; m != nil {
			return m
		}
		return mm.newMapLocked(tmpl, 0, 0, KindCommon)
	}
	if tmpl.IsBattlegroundOrArena() {
		return mm.maps[mapKey{mapID, p.BattlegroundID}]
	}

	save := mm.boundSave(tmpl, p)
	if save == nil {
		diff := p.Difficulty
		if tmpl.Difficulty(diff) == nil {
			diff = 0
		}
		id := mm.ids.Generate()
		save = mm.deps.Instances.GetOrCreate(id, mapID, diff, true)
	} else if m := mm.maps[mapKey{mapID, save.InstanceID}]; m != nil {
		return m
	}
	m := mm.newMapLocked(tmpl, save.InstanceID, save.Difficulty, KindInstance)
	m.inst.save = save
	return m
}

// boundSave returns the save p would be sent to: the player's own bind
// first, then the group's.
func (mm *Manager) boundSave(tmpl *data.MapTemplate, p *world.Player) *instance.Save {
	diff := p.Difficulty
	if tmpl.Difficulty(diff) == nil {
		diff = 0
	}
	if b := mm.deps.Instances.PlayerBind(uint64(p.GUID), tmpl.ID, diff); b != nil {
		return b.Save
	}
	if p.GroupID != 0 {
		if b := mm.deps.Instances.GroupBind(uint64(p.GroupID), tmpl.ID, diff); b != nil {
			return b.Save
		}
	}
	return nil
}

// CreateBattlegroundMap creates the map of one running battleground. A zero
// bgID allocates a fresh id.
func (mm *Manager) CreateBattlegroundMap(mapID, bgID uint32) (*Map, error) {
	tmpl := mm.deps.Templates.Get(mapID)
	if tmpl == nil {
		return nil, fmt.Errorf("create battleground %d: %w", mapID, ErrUnknownMap)
	}
	if !tmpl.IsBattlegroundOrArena() {
		return nil, fmt.Errorf("create battleground %d: %w", mapID, ErrNotBattleground)
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if bgID == 0 {
		bgID = mm.ids.Generate()
	} else if !mm.ids.Register(bgID) {
		return nil, fmt.Errorf("create battleground %d/%d: %w", mapID, bgID, ErrInstanceIDInUse)
	}
	return mm.newMapLocked(tmpl, bgID, 0, KindBattleground), nil
}

// FindMap returns a running map copy, or nil. It never creates one.
func (mm *Manager) FindMap(mapID, instanceID uint32) *Map {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.maps[mapKey{mapID, instanceID}]
}

// FindBaseMap returns the shared copy of a continent, or nil.
func (mm *Manager) FindBaseMap(mapID uint32) *Map {
	return mm.FindMap(mapID, 0)
}

// CanPlayerEnter reports whether p may enter mapID. Must not run while the
// target map is updating.
func (mm *Manager) CanPlayerEnter(mapID uint32, p *world.Player) bool {
	tmpl := mm.deps.Templates.Get(mapID)
	if tmpl == nil {
		return false
	}
	if !tmpl.Instanceable() {
		return true
	}
	if tmpl.IsBattlegroundOrArena() {
		m := mm.FindMap(mapID, p.BattlegroundID)
		return m != nil && m.CanEnter(p)
	}

	mm.mu.Lock()
	var m *Map
	if save := mm.boundSave(tmpl, p); save != nil {
		m = mm.maps[mapKey{mapID, save.InstanceID}]
	}
	mm.mu.Unlock()
	if m != nil {
		return m.CanEnter(p)
	}
	if tmpl.IsRaid() && p.GroupID == 0 && !p.GM {
		return false
	}
	return true
}

// ResetInstance resets one instance. An instance that is not loaded is wiped
// directly.
func (mm *Manager) ResetInstance(ctx context.Context, mapID, instanceID uint32, method ResetMethod) bool {
	if m := mm.FindMap(mapID, instanceID); m != nil {
		return m.Reset(method)
	}
	if mm.deps.Respawns != nil {
		if err := mm.deps.Respawns.DeleteInstanceRespawns(ctx, mapID, instanceID); err != nil {
			mm.log.Error("wipe respawns failed", zap.Uint32("map", mapID), zap.Uint32("instance", instanceID), zap.Error(err))
		}
	}
	if mm.deps.Instances != nil {
		mm.deps.Instances.Delete(instanceID)
	}
	mm.ids.Free(instanceID)
	mm.log.Info("unloaded instance reset", zap.Uint32("map", mapID), zap.Uint32("instance", instanceID),
		zap.Stringer("method", method))
	return true
}

// snapshot returns the registered maps in a stable order.
func (mm *Manager) snapshot() []*Map {
	mm.mu.Lock()
	out := make([]*Map, 0, len(mm.maps))
	for _, m := range mm.maps {
		out = append(out, m)
	}
	mm.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].id != out[j].id {
			return out[i].id < out[j].id
		}
		return out[i].instanceID < out[j].instanceID
	})
	return out
}

// Update ticks every map, then destroys the ones that may unload.
func (mm *Manager) Update(ctx context.Context, diff time.Duration) error {
	if err := mm.UpdateMaps(ctx, diff); err != nil {
		return err
	}
	return mm.Reclaim(ctx)
}

// UpdateMaps ticks every map in parallel. Distinct maps share no grid state,
// so each runs on its own goroutine, at most UpdateThreads at a time.
func (mm *Manager) UpdateMaps(ctx context.Context, diff time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(mm.opts.UpdateThreads)
	for _, m := range mm.snapshot() {
		m := m
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m.Update(diff)
			return nil
		})
	}
	return g.Wait()
}

// Reclaim destroys every map that reports it can unload.
func (mm *Manager) Reclaim(ctx context.Context) error {
	mm.mu.Lock()
	var doomed []*Map
	for k, m := range mm.maps {
		if m.CanUnload() {
			doomed = append(doomed, m)
			delete(mm.maps, k)
		}
	}
	mm.mu.Unlock()

	var errs error
	for _, m := range doomed {
		errs = multierr.Append(errs, mm.destroy(ctx, m))
	}
	return errs
}

// destroy tears a map down after it left the registry. A reset instance
// loses its respawn times and save, and its id becomes free.
func (mm *Manager) destroy(ctx context.Context, m *Map) error {
	m.UnloadAll()
	var err error
	switch {
	case m.kind == KindInstance && m.inst.resetAfterUnload:
		err = m.wipeRespawns(ctx)
		if mm.deps.Instances != nil {
			mm.deps.Instances.Delete(m.instanceID)
		}
		mm.ids.Free(m.instanceID)
	case m.kind == KindBattleground:
		mm.ids.Free(m.instanceID)
	default:
		err = m.SaveRespawns(ctx)
	}
	m.log.Info("map destroyed", zap.Stringer("kind", m.kind))
	return err
}

// SaveRespawns persists the changed respawn times of every map. Must not run
// while maps are updating.
func (mm *Manager) SaveRespawns(ctx context.Context) error {
	var errs error
	for _, m := range mm.snapshot() {
		errs = multierr.Append(errs, m.SaveRespawns(ctx))
	}
	return errs
}

// UnloadAll detaches all players, unloads every grid and destroys every map.
// Used at shutdown.
func (mm *Manager) UnloadAll(ctx context.Context) error {
	mm.mu.Lock()
	all := make([]*Map, 0, len(mm.maps))
	for k, m := range mm.maps {
		all = append(all, m)
		delete(mm.maps, k)
	}
	mm.mu.Unlock()

	var errs error
	for _, m := range all {
		errs = multierr.Append(errs, mm.destroy(ctx, m))
	}
	mm.log.Info("all maps unloaded", zap.Int("maps", len(all)))
	return errs
}

// Count returns the number of running maps.
func (mm *Manager) Count() int {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return len(mm.maps)
}

// Stats returns the last snapshot of every running map.
func (mm *Manager) Stats() []Stats {
	maps := mm.snapshot()
	out := make([]Stats, 0, len(maps))
	for _, m := range maps {
		out = append(out, m.Stats())
	}
	return out
}

// MapStats returns the snapshot of one map copy.
func (mm *Manager) MapStats(mapID, instanceID uint32) (Stats, bool) {
	m := mm.FindMap(mapID, instanceID)
	if m == nil {
		return Stats{}, false
	}
	return m.Stats(), true
}

// Notices returns the latest evictions and refused resets across all maps,
// newest first.
func (mm *Manager) Notices() []Notice { return mm.notices.recent() }

// LiveInstanceIDs returns the instance ids currently allocated.
func (mm *Manager) LiveInstanceIDs() []uint32 { return mm.ids.Live() }
