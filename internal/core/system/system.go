package system

import "time"

// Phase defines execution ordering within a single server tick.
type Phase int

const (
	PhaseSchedule Phase = iota // 0: global instance reset schedule
	PhaseMaps                  // 1: tick every map (parallel per map)
	PhaseReclaim               // 2: destroy finished instances
	PhasePersist               // 3: periodic saves
)

func (p Phase) String() string {
	switch p {
	case PhaseSchedule:
		return "schedule"
	case PhaseMaps:
		return "maps"
	case PhaseReclaim:
		return "reclaim"
	case PhasePersist:
		return "persist"
	}
	return "unknown"
}

// System is the interface every server-level system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
