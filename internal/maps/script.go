package maps

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/worldserver/internal/data"
	"github.com/l1jgo/worldserver/internal/persist"
	"github.com/l1jgo/worldserver/internal/scripting"
	"github.com/l1jgo/worldserver/internal/world"
)

// ScriptAction is one scheduled script step. Due is wall-clock time.
type ScriptAction struct {
	Due    time.Time
	Script uint32
	Step   data.ScriptStep
	Source world.GUID
	Target world.GUID
	Owner  world.GUID

	seq uint64
}

// ScriptsStart schedules every step of a script relative to now. It returns
// false when the script does not exist.
func (m *Map) ScriptsStart(scriptID uint32, source, target, owner world.GUID) bool {
	if m.deps.Scripts == nil {
		return false
	}
	s := m.deps.Scripts.Get(scriptID)
	if s == nil {
		m.log.Warn("unknown script", zap.Uint32("script", scriptID))
		return false
	}
	now := m.now()
	for _, step := range s.Steps {
		m.schedule(&ScriptAction{
			Due:    now.Add(time.Duration(step.Delay) * time.Millisecond),
			Script: s.ID,
			Step:   step,
			Source: source,
			Target: target,
			Owner:  owner,
		})
	}
	return true
}

// schedule inserts a keeping the queue ordered by due time, FIFO on ties.
func (m *Map) schedule(a *ScriptAction) {
	m.scriptSq++
	a.seq = m.scriptSq
	i := sort.Search(len(m.scripts), func(i int) bool {
		return m.scripts[i].Due.After(a.Due)
	})
	m.scripts = append(m.scripts, nil)
	copy(m.scripts[i+1:], m.scripts[i:])
	m.scripts[i] = a
}

// PendingScripts returns the number of scheduled steps.
func (m *Map) PendingScripts() int { return len(m.scripts) }

func (m *Map) dropScriptsOf(guid world.GUID) {
	kept := m.scripts[:0]
	for _, a := range m.scripts {
		if a.Source != guid {
			kept = append(kept, a)
		}
	}
	clear(m.scripts[len(kept):])
	m.scripts = kept
}

// runScripts executes the steps that are due. Steps scheduled while running
// wait for the next tick.
func (m *Map) runScripts() {
	now := m.now()
	n := sort.Search(len(m.scripts), func(i int) bool {
		return m.scripts[i].Due.After(now)
	})
	if n == 0 {
		return
	}
	due := make([]*ScriptAction, n)
	copy(due, m.scripts[:n])
	m.scripts = append(m.scripts[:0], m.scripts[n:]...)
	for _, a := range due {
		m.execute(a)
	}
}

func (m *Map) execute(a *ScriptAction) {
	step := &a.Step
	src := m.Find(a.Source)
	switch step.Command {
	case data.CmdMove:
		if src == nil {
			m.scriptMissingSource(a)
			return
		}
		m.relocate(src, step.X, step.Y, step.Z, step.O)
	case data.CmdDespawn:
		if src == nil {
			m.scriptMissingSource(a)
			return
		}
		m.Despawn(src, time.Duration(step.Seconds)*time.Second)
	case data.CmdRespawn:
		kind := persist.RespawnCreature
		if m.deps.Spawns != nil && m.deps.Spawns.Get(data.SpawnCreature, step.SpawnID) == nil {
			kind = persist.RespawnGameObject
		}
		m.ForceRespawn(kind, step.SpawnID)
	case data.CmdSummon:
		m.summon(a, src)
	case data.CmdSetActive:
		if src == nil {
			m.scriptMissingSource(a)
			return
		}
		m.SetActive(src, step.On)
	case data.CmdLockGrid, data.CmdUnlockGrid:
		x, y := step.X, step.Y
		if x == 0 && y == 0 {
			if src == nil {
				m.scriptMissingSource(a)
				return
			}
			x, y = src.Pos.X, src.Pos.Y
		}
		if step.Command == data.CmdLockGrid {
			m.holdGrid(x, y)
		} else {
			m.releaseGrid(x, y)
		}
	case data.CmdLua:
		m.runLua(a, src)
	default:
		m.log.Warn("unknown script command", zap.Uint32("script", a.Script), zap.String("command", step.Command))
	}
}

func (m *Map) scriptMissingSource(a *ScriptAction) {
	m.log.Debug("script source gone, step skipped", zap.Uint32("script", a.Script),
		zap.String("command", a.Step.Command), zap.Uint64("source", uint64(a.Source)))
}

// summon places a temporary creature at the step position, or next to the
// source when the step has none. With a lifetime it is despawned again after
// Seconds.
func (m *Map) summon(a *ScriptAction, src *world.Object) {
	step := &a.Step
	obj := &world.Object{
		GUID:  m.deps.GUIDs.Next(),
		Type:  world.TypeCreature,
		Entry: step.Entry,
		Pos:   world.Position{X: step.X, Y: step.Y, Z: step.Z, O: step.O},
	}
	if step.X == 0 && step.Y == 0 && src != nil {
		obj.Pos = src.Pos
	}
	obj.Home = obj.Pos
	if !m.AddToMap(obj) {
		return
	}
	if step.Seconds > 0 {
		m.schedule(&ScriptAction{
			Due:    m.now().Add(time.Duration(step.Seconds) * time.Second),
			Script: a.Script,
			Step:   data.ScriptStep{Command: data.CmdDespawn},
			Source: obj.GUID,
			Owner:  a.Source,
		})
	}
}

// runLua calls the step's Lua function and applies the commands it returns
// right away.
func (m *Map) runLua(a *ScriptAction, src *world.Object) {
	if m.deps.Lua == nil {
		m.log.Warn("lua step without engine", zap.Uint32("script", a.Script), zap.String("func", a.Step.Func))
		return
	}
	ctx := scripting.ScriptContext{
		MapID:      m.id,
		InstanceID: m.instanceID,
		Difficulty: m.difficulty,
		Source:     uint64(a.Source),
		Target:     uint64(a.Target),
		Owner:      uint64(a.Owner),
	}
	if src != nil {
		ctx.X, ctx.Y, ctx.Z = src.Pos.X, src.Pos.Y, src.Pos.Z
	}
	for _, cmd := range m.deps.Lua.RunScript(a.Step.Func, ctx) {
		if cmd.Type == "start_script" {
			m.ScriptsStart(cmd.ScriptID, a.Source, a.Target, a.Owner)
			continue
		}
		if cmd.Type == data.CmdLua {
			m.log.Warn("lua may not start lua steps", zap.String("func", a.Step.Func))
			continue
		}
		subject := a.Source
		switch cmd.Subject {
		case "target":
			subject = a.Target
		case "owner":
			subject = a.Owner
		}
		m.execute(&ScriptAction{
			Due:    a.Due,
			Script: a.Script,
			Step: data.ScriptStep{
				Command: cmd.Type,
				X:       cmd.X, Y: cmd.Y, Z: cmd.Z, O: cmd.O,
				Entry:   cmd.Entry,
				SpawnID: cmd.SpawnID,
				Seconds: cmd.Seconds,
				On:      cmd.On,
			},
			Source: subject,
			Target: a.Target,
			Owner:  a.Owner,
		})
	}
}
