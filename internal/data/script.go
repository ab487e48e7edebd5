package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Script step commands.
const (
	CmdMove       = "move"
	CmdDespawn    = "despawn"
	CmdRespawn    = "respawn"
	CmdSummon     = "summon"
	CmdSetActive  = "set_active"
	CmdLockGrid   = "lock_grid"
	CmdUnlockGrid = "unlock_grid"
	CmdLua        = "lua"
)

// ScriptStep is one timed command of a map script. Which fields are used
// depends on Command.
type ScriptStep struct {
	Delay   int64   `yaml:"delay"` // milliseconds after the script starts
	Command string  `yaml:"command"`
	X       float32 `yaml:"x,omitempty"`
	Y       float32 `yaml:"y,omitempty"`
	Z       float32 `yaml:"z,omitempty"`
	O       float32 `yaml:"o,omitempty"`
	Entry   uint32  `yaml:"entry,omitempty"`
	SpawnID uint32  `yaml:"spawn_id,omitempty"`
	// Seconds is the respawn delay of despawn and the lifetime of summon.
	Seconds int64  `yaml:"seconds,omitempty"`
	On      bool   `yaml:"on,omitempty"`
	Func    string `yaml:"func,omitempty"`
}

// Script is a named sequence of steps started by gameplay code or Lua.
type Script struct {
	ID    uint32       `yaml:"id"`
	Name  string       `yaml:"name"`
	Steps []ScriptStep `yaml:"steps"`
}

type scriptListFile struct {
	Scripts []Script `yaml:"scripts"`
}

// ScriptTable holds scripts indexed by id.
type ScriptTable struct {
	scripts map[uint32]*Script
}

func validCommand(c string) bool {
	switch c {
	case CmdMove, CmdDespawn, CmdRespawn, CmdSummon, CmdSetActive, CmdLockGrid, CmdUnlockGrid, CmdLua:
		return true
	}
	return false
}

// LoadScriptTable loads script_list.yaml. A missing file yields an empty table.
func LoadScriptTable(path string) (*ScriptTable, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &ScriptTable{scripts: map[uint32]*Script{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read script list: %w", err)
	}
	var f scriptListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse script list: %w", err)
	}
	return NewScriptTable(f.Scripts)
}

func NewScriptTable(scripts []Script) (*ScriptTable, error) {
	t := &ScriptTable{scripts: make(map[uint32]*Script, len(scripts))}
	for i := range scripts {
		s := &scripts[i]
		for j, st := range s.Steps {
			if !validCommand(st.Command) {
				return nil, fmt.Errorf("script %d step %d: unknown command %q", s.ID, j, st.Command)
			}
			if st.Command == CmdLua && st.Func == "" {
				return nil, fmt.Errorf("script %d step %d: lua step without func", s.ID, j)
			}
		}
		t.scripts[s.ID] = s
	}
	return t, nil
}

// Get returns a script, or nil if not found.
func (t *ScriptTable) Get(id uint32) *Script {
	return t.scripts[id]
}

func (t *ScriptTable) Count() int { return len(t.scripts) }
