package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine runs map script functions on a pool of gopher-lua VMs. Each VM has
// every script loaded; a caller borrows one VM for the duration of a call, so
// maps updating on different goroutines never share a VM.
type Engine struct {
	dir  string
	pool chan *lua.LState
	log  *zap.Logger
}

// NewEngine creates size VMs and loads all scripts from the given directory
// into each of them.
func NewEngine(scriptsDir string, size int, log *zap.Logger) (*Engine, error) {
	if size < 1 {
		size = 1
	}
	e := &Engine{dir: scriptsDir, pool: make(chan *lua.LState, size), log: log}
	for i := 0; i < size; i++ {
		vm, err := e.newState()
		if err != nil {
			e.Close()
			return nil, err
		}
		e.pool <- vm
	}
	return e, nil
}

func (e *Engine) newState() (*lua.LState, error) {
	vm := lua.NewState(lua.Options{SkipOpenLibs: false})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	// shared helpers first, then map scripts
	for _, sub := range []string{"core", "map"} {
		if err := loadDir(vm, filepath.Join(e.dir, sub)); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}
	return vm, nil
}

// loadDir loads all .lua files in a directory.
func loadDir(vm *lua.LState, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Size returns the number of VMs in the pool.
func (e *Engine) Size() int { return cap(e.pool) }

// Has reports whether a global function named fn is defined.
func (e *Engine) Has(fn string) bool {
	vm := <-e.pool
	defer func() { e.pool <- vm }()
	_, ok := vm.GetGlobal(fn).(*lua.LFunction)
	return ok
}

// Close shuts down every pooled VM. VMs still borrowed are not waited for.
func (e *Engine) Close() {
	for {
		select {
		case vm := <-e.pool:
			vm.Close()
		default:
			return
		}
	}
}
