package grid

import (
	"time"

	"github.com/l1jgo/worldserver/internal/core/arena"
)

// State is the load state of a grid.
type State uint8

const (
	StateInvalid State = iota
	StateActive
	StateIdle
	StateRemoval
)

func (s State) String() string {
	switch s {
	case StateInvalid:
		return "invalid"
	case StateActive:
		return "active"
	case StateIdle:
		return "idle"
	case StateRemoval:
		return "removal"
	}
	return "unknown"
}

// CanTransition reports whether from→to is a legal edge. Idle→Active is the
// only backward edge; Removal is terminal.
func CanTransition(from, to State) bool {
	switch from {
	case StateInvalid:
		return to == StateActive
	case StateActive:
		return to == StateIdle
	case StateIdle:
		return to == StateActive || to == StateRemoval
	}
	return false
}

// Timer counts down an interval driven by tick deltas.
type Timer struct {
	remaining time.Duration
}

func (t *Timer) Update(diff time.Duration)    { t.remaining -= diff }
func (t *Timer) Passed() bool                 { return t.remaining <= 0 }
func (t *Timer) Reset(interval time.Duration) { t.remaining = interval }
func (t *Timer) Remaining() time.Duration     { return t.remaining }

// NGrid is one 8x8-cell grid of a map. It is owned by exactly one map and
// mutated only from that map's update goroutine.
type NGrid struct {
	coord  GridCoord
	cells  [MaxNumberOfCells][MaxNumberOfCells]Cell
	counts [KindCount]int
	state  State
	timer  Timer

	explicitLock bool
	refLocks     int
}

func NewNGrid(coord GridCoord) *NGrid {
	return &NGrid{coord: coord, state: StateInvalid}
}

func (g *NGrid) Coord() GridCoord { return g.coord }
func (g *NGrid) State() State     { return g.state }

// SetState moves the grid along a legal edge. Illegal transitions are refused.
func (g *NGrid) SetState(s State) bool {
	if !CanTransition(g.state, s) {
		return false
	}
	g.state = s
	return true
}

// Cell returns the cell at in-grid offset (x, y).
func (g *NGrid) Cell(x, y uint32) *Cell { return &g.cells[x][y] }

// Insert links h into the cell at in-grid offset (x, y).
func (g *NGrid) Insert(x, y uint32, kind Kind, h arena.Handle) int {
	g.counts[kind]++
	return g.cells[x][y].Insert(kind, h)
}

// Remove unlinks the handle at slot of cell (x, y). See Cell.Remove.
func (g *NGrid) Remove(x, y uint32, kind Kind, slot int, h arena.Handle) (arena.Handle, bool, bool) {
	moved, didMove, ok := g.cells[x][y].Remove(kind, slot, h)
	if ok {
		g.counts[kind]--
	}
	return moved, didMove, ok
}

// Count returns how many objects of kind live in the whole grid.
func (g *NGrid) Count(kind Kind) int { return g.counts[kind] }

// ObjectCount returns the number of objects of every kind in the grid.
func (g *NGrid) ObjectCount() int {
	n := 0
	for _, c := range g.counts {
		n += c
	}
	return n
}

// EachCell visits all 64 cells with their map-level coordinate.
func (g *NGrid) EachCell(fn func(CellCoord, *Cell)) {
	for x := uint32(0); x < MaxNumberOfCells; x++ {
		for y := uint32(0); y < MaxNumberOfCells; y++ {
			fn(CellCoord{X: g.coord.X*MaxNumberOfCells + x, Y: g.coord.Y*MaxNumberOfCells + y}, &g.cells[x][y])
		}
	}
}

// SetUnloadExplicitLock pins the grid in memory until cleared.
func (g *NGrid) SetUnloadExplicitLock(on bool) { g.explicitLock = on }

// IncUnloadLock and DecUnloadLock hold a counted pin (scripted events).
func (g *NGrid) IncUnloadLock() { g.refLocks++ }
func (g *NGrid) DecUnloadLock() {
	if g.refLocks > 0 {
		g.refLocks--
	}
}

func (g *NGrid) UnloadLocked() bool { return g.explicitLock || g.refLocks > 0 }

// ResetExpiry restarts the unload countdown.
func (g *NGrid) ResetExpiry(interval time.Duration) { g.timer.Reset(interval) }

// Expiry returns the time left on the unload countdown.
func (g *NGrid) Expiry() time.Duration { return g.timer.Remaining() }

// Reactivate brings an idle grid back to active and restarts its countdown.
func (g *NGrid) Reactivate(interval time.Duration) {
	if g.state == StateIdle {
		g.SetState(StateActive)
	}
	if g.state == StateActive {
		g.timer.Reset(interval)
	}
}

// Tick advances the grid state machine and reports whether the grid reached
// Removal and must be unloaded by its map now. keepActive is consulted only
// when a decision is due.
func (g *NGrid) Tick(diff, expiry time.Duration, keepActive func() bool) bool {
	switch g.state {
	case StateActive:
		g.timer.Update(diff)
		if !g.timer.Passed() {
			return false
		}
		g.timer.Reset(expiry)
		if g.counts[KindPlayer] > 0 || keepActive() {
			return false
		}
		g.SetState(StateIdle)
	case StateIdle:
		if g.counts[KindPlayer] > 0 || keepActive() {
			g.Reactivate(expiry)
			return false
		}
		g.timer.Update(diff)
		if !g.timer.Passed() {
			return false
		}
		if g.UnloadLocked() {
			g.timer.Reset(expiry)
			return false
		}
		return g.SetState(StateRemoval)
	}
	return false
}
