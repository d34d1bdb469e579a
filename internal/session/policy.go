package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/worldhaven/server/internal/world"
)

// ArrivalPolicy decides the condition applied to a player arriving in a
// world with no stored snapshot. The deployment overrides the built-in
// default by defining on_first_arrival(kind) in a lua script.
type ArrivalPolicy struct {
	mu  sync.Mutex // region executors call concurrently; the VM is not goroutine safe
	vm  *lua.LState
	log *zap.Logger
}

// NewArrivalPolicy loads all .lua files from scriptsDir. A missing or empty
// directory leaves the built-in default in place.
func NewArrivalPolicy(scriptsDir string, log *zap.Logger) (*ArrivalPolicy, error) {
	p := &ArrivalPolicy{log: log}
	if scriptsDir == "" {
		return p, nil
	}
	entries, err := os.ReadDir(scriptsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, fmt.Errorf("read script dir: %w", err)
	}

	vm := lua.NewState()
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(scriptsDir, entry.Name())
		if err := vm.DoFile(path); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		log.Debug("loaded lua script", zap.String("file", path))
	}
	if vm.GetGlobal("on_first_arrival") == lua.LNil {
		vm.Close()
		return p, nil // scripts present but no hook defined
	}
	p.vm = vm
	return p, nil
}

func (p *ArrivalPolicy) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.vm != nil {
		p.vm.Close()
		p.vm = nil
	}
}

// FirstArrival builds the default arrival condition for a world kind. Script
// errors fall back to the built-in default; arrival must never fail on a
// bad deployment script.
func (p *ArrivalPolicy) FirstArrival(kind world.Kind, spawn world.Location) *world.Condition {
	cond := world.DefaultCondition(spawn)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.vm == nil {
		return cond
	}
	if err := p.vm.CallByParam(lua.P{
		Fn:      p.vm.GetGlobal("on_first_arrival"),
		NRet:    1,
		Protect: true,
	}, lua.LString(kind)); err != nil {
		p.log.Warn("on_first_arrival failed, using built-in default",
			zap.String("kind", string(kind)), zap.Error(err))
		return cond
	}
	ret := p.vm.Get(-1)
	p.vm.Pop(1)
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return cond
	}
	if v, ok := tbl.RawGetString("health").(lua.LNumber); ok {
		cond.Health = float64(v)
	}
	if v, ok := tbl.RawGetString("max_health").(lua.LNumber); ok {
		cond.MaxHealth = float64(v)
	}
	if v, ok := tbl.RawGetString("hunger").(lua.LNumber); ok {
		cond.Hunger = int(v)
	}
	if v, ok := tbl.RawGetString("xp_level").(lua.LNumber); ok {
		cond.XPLevel = int(v)
	}
	return cond
}
