package maps

import (
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/worldserver/internal/core/event"
	"github.com/l1jgo/worldserver/internal/instance"
	"github.com/l1jgo/worldserver/internal/world"
)

// ResetMethod says why an instance reset was requested.
type ResetMethod uint8

const (
	ResetAll ResetMethod = iota
	ResetChangeDifficulty
	ResetGlobal
	ResetGroupDisband
	ResetGroupJoin
	ResetRespawnDelay
)

func (r ResetMethod) String() string {
	switch r {
	case ResetAll:
		return "all"
	case ResetChangeDifficulty:
		return "change_difficulty"
	case ResetGlobal:
		return "global"
	case ResetGroupDisband:
		return "group_disband"
	case ResetGroupJoin:
		return "group_join"
	case ResetRespawnDelay:
		return "respawn_delay"
	}
	return "unknown"
}

type instanceState struct {
	save *instance.Save

	unloadPending    bool
	unloadTimer      time.Duration
	unloadWhenEmpty  bool
	resetAfterUnload bool
	holds            int
}

func (m *Map) emptyUnloadDelay() time.Duration {
	return max(m.opts.InstanceUnloadDelay, MinUnloadDelay)
}

// Save returns the instance save; nil for other map kinds.
func (m *Map) Save() *instance.Save {
	if m.inst == nil {
		return nil
	}
	return m.inst.save
}

// ResetPending reports whether the instance will be wiped when it unloads.
func (m *Map) ResetPending() bool {
	return m.inst != nil && m.inst.resetAfterUnload
}

// Hold keeps an instance loaded while the caller needs it, even when empty.
func (m *Map) Hold() {
	if m.inst != nil {
		m.inst.holds++
	}
}

// Release drops a Hold.
func (m *Map) Release() {
	if m.inst != nil && m.inst.holds > 0 {
		m.inst.holds--
	}
}

func (m *Map) instancePlayerAdded(p *world.Player) {
	m.inst.unloadPending = false
	m.inst.unloadTimer = 0
	instances := m.deps.Instances
	if instances == nil {
		return
	}
	save := m.inst.save
	if p.GroupID != 0 && instances.GroupBind(uint64(p.GroupID), m.id, m.difficulty) == nil {
		instances.BindGroup(uint64(p.GroupID), save)
	}
	if instances.PlayerBind(uint64(p.GUID), m.id, m.difficulty) == nil {
		instances.BindPlayer(uint64(p.GUID), save, false)
	}
}

func (m *Map) instancePlayerRemoved() {
	if m.HavePlayers() {
		return
	}
	m.inst.unloadPending = true
	if m.inst.unloadWhenEmpty {
		m.inst.unloadTimer = MinUnloadDelay
	} else {
		m.inst.unloadTimer = m.emptyUnloadDelay()
	}
}

// Reset requests an instance reset. An empty instance is marked to unload
// and wipe at once. With players inside, a global reset evicts them first;
// an explicit reset by a player is refused; group changes and respawn
// delays wipe the instance once it empties. It returns whether the instance
// is empty afterwards.
func (m *Map) Reset(method ResetMethod) bool {
	if m.inst == nil {
		return false
	}
	log := m.log.With(zap.Stringer("method", method))
	if !m.HavePlayers() {
		if m.inst.resetAfterUnload {
			return true
		}
		m.inst.unloadPending = true
		m.inst.unloadTimer = MinUnloadDelay
		m.inst.resetAfterUnload = true
		log.Info("instance reset")
		return true
	}
	switch method {
	case ResetAll, ResetChangeDifficulty:
		for _, p := range m.players {
			event.Emit(m.bus, event.InstanceResetFailed{MapID: m.id, InstanceID: m.instanceID, Player: p.GUID})
		}
		log.Info("instance reset refused, players inside", zap.Int("players", len(m.players)))
		return false
	case ResetGlobal:
		m.inst.unloadWhenEmpty = true
		m.inst.resetAfterUnload = true
		m.evictPlayers("instance reset")
		log.Info("instance reset, players evicted")
	default:
		m.inst.unloadWhenEmpty = true
		m.inst.resetAfterUnload = true
		log.Info("instance reset deferred until empty", zap.Int("players", len(m.players)))
	}
	return !m.HavePlayers()
}

// evictPlayers detaches every player and asks the session layer to move them
// out.
func (m *Map) evictPlayers(reason string) {
	for _, p := range m.Players() {
		event.Emit(m.bus, event.PlayerEvicted{MapID: m.id, InstanceID: m.instanceID, Player: p.GUID, Reason: reason})
		m.RemovePlayerFromMap(p, false)
	}
}

// CanEnter reports whether p may enter this map copy. Refusals are logged at
// debug; user messaging is left to the caller.
func (m *Map) CanEnter(p *world.Player) bool {
	if m.playerIndex(p.GUID) >= 0 {
		m.log.Debug("player already on map", zap.Uint64("guid", uint64(p.GUID)))
		return false
	}
	switch m.kind {
	case KindInstance:
		return m.instanceCanEnter(p)
	case KindBattleground:
		return m.battlegroundCanEnter(p)
	}
	return true
}

func (m *Map) full(p *world.Player) bool {
	limit := m.template.MaxPlayers(m.difficulty)
	return limit > 0 && len(m.players) >= limit && !p.GM
}

func (m *Map) instanceCanEnter(p *world.Player) bool {
	refuse := func(why string) bool {
		m.log.Debug("instance entry refused", zap.Uint64("guid", uint64(p.GUID)), zap.String("reason", why))
		return false
	}
	if m.full(p) {
		return refuse("instance full")
	}
	if m.inst.resetAfterUnload {
		return refuse("reset pending")
	}
	if m.template.Difficulty(m.difficulty) == nil {
		return refuse("difficulty unavailable")
	}
	if m.template.IsRaid() && p.GroupID == 0 && !p.GM {
		return refuse("raid requires group")
	}
	if m.deps.Instances != nil {
		if b := m.deps.Instances.PlayerBind(uint64(p.GUID), m.id, m.difficulty); b != nil &&
			b.Permanent && b.Save.InstanceID != m.instanceID {
			return refuse("locked to another instance")
		}
	}
	return true
}

// PermBindAllPlayers turns the binds of every player inside into permanent
// lockouts, as after a raid boss kill.
func (m *Map) PermBindAllPlayers() {
	if m.inst == nil || m.deps.Instances == nil {
		return
	}
	for _, p := range m.players {
		m.deps.Instances.BindPlayer(uint64(p.GUID), m.inst.save, true)
	}
}
