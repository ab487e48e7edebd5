package maps

import (
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/worldserver/internal/world"
)

type battlegroundState struct {
	ended         bool
	unloadPending bool
	unloadTimer   time.Duration
}

// EndBattleground evicts every player and marks the map for destruction,
// whatever its reset policy.
func (m *Map) EndBattleground() {
	if m.bg == nil || m.bg.ended {
		return
	}
	m.bg.ended = true
	m.evictPlayers("battleground ended")
	m.log.Info("battleground ended")
}

// Ended reports whether EndBattleground was called.
func (m *Map) Ended() bool { return m.bg != nil && m.bg.ended }

func (m *Map) battlegroundPlayerRemoved() {
	if m.HavePlayers() {
		return
	}
	m.bg.unloadPending = true
	m.bg.unloadTimer = m.emptyUnloadDelay()
}

func (m *Map) battlegroundCanEnter(p *world.Player) bool {
	if m.bg.ended {
		return false
	}
	if p.BattlegroundID != m.instanceID && !p.GM {
		m.log.Debug("battleground entry refused", zap.Uint64("guid", uint64(p.GUID)),
			zap.Uint32("queued_for", p.BattlegroundID))
		return false
	}
	return !m.full(p)
}
