package maps

import (
	"sync"
	"time"

	"github.com/l1jgo/worldserver/internal/core/event"
	"github.com/l1jgo/worldserver/internal/world"
)

// NoticeLimit is the number of player notices the manager keeps.
const NoticeLimit = 64

const (
	NoticeEvicted     = "evicted"
	NoticeResetFailed = "reset_failed"
)

// Notice is a player-facing outcome raised by a map: an eviction or a refused
// reset. The session layer delivers them; the manager keeps the latest ones
// for the admin API.
type Notice struct {
	Kind       string     `json:"kind"`
	MapID      uint32     `json:"map_id"`
	InstanceID uint32     `json:"instance_id"`
	Player     world.GUID `json:"player"`
	Reason     string     `json:"reason,omitempty"`
	At         time.Time  `json:"at"`
}

// noticeLog is a ring of recent notices. Maps append from their update
// goroutines.
type noticeLog struct {
	mu   sync.Mutex
	buf  []Notice
	next int
	full bool
}

func newNoticeLog(n int) *noticeLog {
	return &noticeLog{buf: make([]Notice, n)}
}

func (l *noticeLog) add(n Notice) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf[l.next] = n
	l.next = (l.next + 1) % len(l.buf)
	if l.next == 0 {
		l.full = true
	}
}

// recent returns the kept notices, newest first.
func (l *noticeLog) recent() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.next
	if l.full {
		n = len(l.buf)
	}
	out := make([]Notice, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, l.buf[(l.next-i+len(l.buf))%len(l.buf)])
	}
	return out
}

// watch records the notices raised on m's bus.
func (l *noticeLog) watch(m *Map) {
	event.Subscribe(m.bus, func(e event.PlayerEvicted) {
		l.add(Notice{Kind: NoticeEvicted, MapID: e.MapID, InstanceID: e.InstanceID, Player: e.Player, Reason: e.Reason, At: m.now()})
	})
	event.Subscribe(m.bus, func(e event.InstanceResetFailed) {
		l.add(Notice{Kind: NoticeResetFailed, MapID: e.MapID, InstanceID: e.InstanceID, Player: e.Player, At: m.now()})
	})
}
