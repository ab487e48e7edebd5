package system

import (
	"sort"
	"time"
)

// Runner executes systems in phase order each tick. Systems sharing a phase
// keep their registration order. It records how long each phase of the last
// tick took so the server loop can report ticks that overran their budget.
type Runner struct {
	systems []System
	sorted  bool

	last      time.Duration
	lastPhase map[Phase]time.Duration

	// now is the clock; replaced in tests.
	now func() time.Time
}

func NewRunner() *Runner {
	return &Runner{
		systems:   make([]System, 0, 8),
		lastPhase: make(map[Phase]time.Duration, 4),
		now:       time.Now,
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

func (r *Runner) Tick(dt time.Duration) {
	r.ensureSorted()
	clear(r.lastPhase)
	start := r.now()
	for _, s := range r.systems {
		t0 := r.now()
		s.Update(dt)
		r.lastPhase[s.Phase()] += r.now().Sub(t0)
	}
	r.last = r.now().Sub(start)
}

// TickPhase runs only the systems of one phase. It does not touch the tick
// timings.
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		if s.Phase() == phase {
			s.Update(dt)
		}
	}
}

// LastTick returns the wall time of the last Tick.
func (r *Runner) LastTick() time.Duration { return r.last }

// SlowestPhase returns the phase that took longest in the last Tick.
func (r *Runner) SlowestPhase() (Phase, time.Duration) {
	var (
		slowest Phase
		took    time.Duration
	)
	for p, d := range r.lastPhase {
		if d > took || (d == took && p < slowest) {
			slowest, took = p, d
		}
	}
	return slowest, took
}

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}
