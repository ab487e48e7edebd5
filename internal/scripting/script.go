package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// ScriptContext is what a map script function sees of the world.
type ScriptContext struct {
	MapID      uint32
	InstanceID uint32
	Difficulty uint8
	Source     uint64
	Target     uint64
	Owner      uint64
	X, Y, Z    float32 // source position
}

// Command is a single map action returned by a script function. Subject is
// "source", "target" or "owner" and selects the object the command acts on.
type Command struct {
	Type     string // move, despawn, respawn, summon, set_active, lock_grid, unlock_grid, start_script
	Subject  string
	X, Y, Z  float32
	O        float32
	Entry    uint32
	SpawnID  uint32
	Seconds  int64
	On       bool
	ScriptID uint32
}

// RunScript calls the Lua function fn(ctx) and returns the commands it
// produced. Errors are logged and yield no commands.
func (e *Engine) RunScript(fn string, ctx ScriptContext) []Command {
	vm := <-e.pool
	defer func() { e.pool <- vm }()

	f := vm.GetGlobal(fn)
	if f == lua.LNil {
		e.log.Error("lua function not found", zap.String("func", fn))
		return nil
	}

	t := vm.NewTable()
	t.RawSetString("map_id", lua.LNumber(ctx.MapID))
	t.RawSetString("instance_id", lua.LNumber(ctx.InstanceID))
	t.RawSetString("difficulty", lua.LNumber(ctx.Difficulty))
	t.RawSetString("source", lua.LNumber(ctx.Source))
	t.RawSetString("target", lua.LNumber(ctx.Target))
	t.RawSetString("owner", lua.LNumber(ctx.Owner))
	t.RawSetString("x", lua.LNumber(ctx.X))
	t.RawSetString("y", lua.LNumber(ctx.Y))
	t.RawSetString("z", lua.LNumber(ctx.Z))

	if err := vm.CallByParam(lua.P{
		Fn:      f,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua script error", zap.String("func", fn), zap.Error(err),
			zap.Uint32("map", ctx.MapID), zap.Uint32("instance", ctx.InstanceID))
		return nil
	}

	result := vm.Get(-1)
	vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		return nil
	}

	var cmds []Command
	rt.ForEach(func(_, v lua.LValue) {
		row, ok := v.(*lua.LTable)
		if !ok {
			return
		}
		subject := lStr(row, "subject")
		if subject == "" {
			subject = "source"
		}
		cmds = append(cmds, Command{
			Type:     lStr(row, "type"),
			Subject:  subject,
			X:        lFloat(row, "x"),
			Y:        lFloat(row, "y"),
			Z:        lFloat(row, "z"),
			O:        lFloat(row, "o"),
			Entry:    uint32(lInt(row, "entry")),
			SpawnID:  uint32(lInt(row, "spawn_id")),
			Seconds:  int64(lInt(row, "seconds")),
			On:       lua.LVAsBool(row.RawGetString("on")),
			ScriptID: uint32(lInt(row, "script_id")),
		})
	})
	return cmds
}

// --- Lua helpers ---

// lInt reads an integer field from a Lua table.
func lInt(t *lua.LTable, key string) int {
	return int(lua.LVAsNumber(t.RawGetString(key)))
}

func lFloat(t *lua.LTable, key string) float32 {
	return float32(lua.LVAsNumber(t.RawGetString(key)))
}

// lStr reads a string field from a Lua table.
func lStr(t *lua.LTable, key string) string {
	return lua.LVAsString(t.RawGetString(key))
}
