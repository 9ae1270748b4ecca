//go:build !no_automation

package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"zigbee-ledfx/internal/adapter"
	"zigbee-ledfx/internal/coordinator"
	"zigbee-ledfx/internal/effects"
)

// RunResult is the result of a one-shot script execution.
type RunResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Logs     []string `json:"logs"`
	Duration string   `json:"duration"`
}

// changeHandler is a registered light.on_change callback.
type changeHandler struct {
	field string // state key, or "*" for any
	light string // only this light (empty = any)
	fn    *lua.LFunction
}

// scriptVM is a running Lua VM for a single script.
type scriptVM struct {
	id       string
	target   string // default light for calls that name none
	state    *lua.LState
	commands chan func(*lua.LState) // serializes Lua access
	ctx      context.Context
	cancel   context.CancelFunc
	logf     func(msg string)

	mu       sync.Mutex // protects handlers
	handlers []changeHandler
}

// Engine manages Lua VMs and dispatches light state changes to scripts.
type Engine struct {
	coord   *coordinator.Coordinator
	manager *Manager
	logger  *slog.Logger

	mu    sync.Mutex
	vms   map[string]*scriptVM // script ID -> running VM
	unsub func()
}

// NewEngine creates a new automation engine.
func NewEngine(coord *coordinator.Coordinator, mgr *Manager, logger *slog.Logger) *Engine {
	return &Engine{
		coord:   coord,
		manager: mgr,
		logger:  logger.With("component", "automation"),
		vms:     make(map[string]*scriptVM),
	}
}

// Start subscribes to state changes and loads all enabled scripts.
func (e *Engine) Start() {
	e.unsub = e.coord.Events().On(coordinator.EventStateChanged, e.dispatch)

	scripts, err := e.manager.List()
	if err != nil {
		e.logger.Error("load scripts", "err", err)
		return
	}
	for _, s := range scripts {
		if !s.Meta.Enabled {
			continue
		}
		if err := e.startScript(s); err != nil {
			e.logger.Error("start script", "id", s.ID, "err", err)
		}
	}

	e.mu.Lock()
	n := len(e.vms)
	e.mu.Unlock()
	e.logger.Info("automation engine started", "scripts", n)
}

// Stop cancels all VMs and unsubscribes from the event bus.
func (e *Engine) Stop() {
	if e.unsub != nil {
		e.unsub()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for id, vm := range e.vms {
		vm.cancel()
		delete(e.vms, id)
	}
	e.logger.Info("automation engine stopped")
}

// Running returns the IDs of the scripts with a live VM.
func (e *Engine) Running() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.vms))
	for id := range e.vms {
		ids = append(ids, id)
	}
	return ids
}

// ReloadScript stops the old VM (if any) and starts a new one.
func (e *Engine) ReloadScript(id string) error {
	e.stopScript(id)

	s, err := e.manager.Get(id)
	if err != nil {
		return fmt.Errorf("get script: %w", err)
	}
	if !s.Meta.Enabled {
		return nil
	}
	return e.startScript(s)
}

// StopScript stops a running script VM.
func (e *Engine) StopScript(id string) {
	e.stopScript(id)
}

// RunScript executes a saved script once in a temporary VM.
func (e *Engine) RunScript(id string) *RunResult {
	start := time.Now()
	s, err := e.manager.Get(id)
	if err != nil {
		return &RunResult{OK: false, Error: "script not found: " + err.Error(), Duration: time.Since(start).String()}
	}
	return e.run(s.LuaCode, s.Meta.Light)
}

// RunLuaCode executes code once in a temporary VM. Registered on_change
// handlers are invoked with the light's current value so their actions can
// be tried out. Log output is captured in the result.
func (e *Engine) RunLuaCode(code string) *RunResult {
	return e.run(code, "")
}

func (e *Engine) run(code, target string) *RunResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		logMu sync.Mutex
		logs  []string
	)
	vm := e.newVM(ctx, cancel, "_run", target)
	defer vm.state.Close()
	vm.logf = func(msg string) {
		logMu.Lock()
		logs = append(logs, msg)
		logMu.Unlock()
	}
	vm.state.SetContext(ctx)

	result := func(err error) *RunResult {
		logMu.Lock()
		defer logMu.Unlock()
		r := &RunResult{OK: err == nil, Logs: logs, Duration: time.Since(start).String()}
		if err != nil {
			r.Error = err.Error()
			if strings.Contains(r.Error, "context deadline exceeded") {
				r.Error = "timeout (5s)"
			}
		}
		return r
	}

	if err := vm.state.DoString(code); err != nil {
		e.logger.Warn("script run failed", "err", err)
		return result(err)
	}

	vm.mu.Lock()
	handlers := append([]changeHandler(nil), vm.handlers...)
	vm.mu.Unlock()

	for _, h := range handlers {
		name := h.light
		if name == "" {
			name = vm.target
		}
		l, err := e.resolve(name)
		if err != nil {
			return result(err)
		}
		state := l.State()
		var value any = state
		if h.field != "*" {
			value = state[h.field]
		}
		if err := vm.state.CallByParam(lua.P{Fn: h.fn, NRet: 0, Protect: true},
			goToLua(vm.state, value), lua.LString(l.Name())); err != nil {
			return result(err)
		}
	}
	return result(nil)
}

func (e *Engine) stopScript(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if vm, ok := e.vms[id]; ok {
		vm.cancel()
		delete(e.vms, id)
		e.logger.Info("script stopped", "id", id)
	}
}

// newVM creates a sandboxed Lua state with the light module registered.
func (e *Engine) newVM(ctx context.Context, cancel context.CancelFunc, id, target string) *scriptVM {
	L := lua.NewState(lua.Options{SkipOpenLibs: false})

	for _, name := range []string{"os", "io", "loadfile", "dofile", "require", "load", "debug", "package"} {
		L.SetGlobal(name, lua.LNil)
	}

	vm := &scriptVM{
		id:       id,
		target:   target,
		state:    L,
		commands: make(chan func(*lua.LState), 64),
		ctx:      ctx,
		cancel:   cancel,
	}
	vm.logf = func(msg string) {
		e.logger.Info("script log", "id", id, "msg", msg)
	}
	registerLightModule(L, vm, e)
	return vm
}

func (e *Engine) startScript(s *Script) error {
	ctx, cancel := context.WithCancel(e.coord.Context())
	vm := e.newVM(ctx, cancel, s.ID, s.Meta.Light)
	L := vm.state

	if err := L.DoString(s.LuaCode); err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("execute script %s: %w", s.ID, err)
	}

	e.mu.Lock()
	if old, ok := e.vms[s.ID]; ok {
		old.cancel()
	}
	e.vms[s.ID] = vm
	e.mu.Unlock()

	go func() {
		defer L.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case fn := <-vm.commands:
				fn(L)
			}
		}
	}()

	e.logger.Info("script started", "id", s.ID, "name", s.Meta.Name)
	return nil
}

// dispatch routes a state change to the matching handlers of every VM.
// Restored state is not a change and is not dispatched.
func (e *Engine) dispatch(event coordinator.Event) {
	ch, ok := event.Data.(adapter.Change)
	if !ok || ch.Source == adapter.SourceRestore {
		return
	}

	e.mu.Lock()
	vms := make([]*scriptVM, 0, len(e.vms))
	for _, vm := range e.vms {
		vms = append(vms, vm)
	}
	e.mu.Unlock()

	for _, vm := range vms {
		vm.mu.Lock()
		handlers := append([]changeHandler(nil), vm.handlers...)
		vm.mu.Unlock()

		for _, h := range handlers {
			value, ok := matchChange(h, ch)
			if !ok {
				continue
			}
			fn, light := h.fn, ch.Light
			select {
			case <-vm.ctx.Done():
			case vm.commands <- func(L *lua.LState) { e.callHandler(L, vm, fn, value, light) }:
			default:
				e.logger.Warn("script command channel full, dropping change", "id", vm.id)
			}
		}
	}
}

// matchChange reports whether h fires for ch and returns the value passed
// to the callback.
func matchChange(h changeHandler, ch adapter.Change) (any, bool) {
	if h.light != "" && h.light != ch.Light {
		return nil, false
	}
	if h.field == "*" {
		return map[string]any(ch.Patch), true
	}
	v, ok := ch.Patch[h.field]
	return v, ok
}

func (e *Engine) callHandler(L *lua.LState, vm *scriptVM, fn *lua.LFunction, value any, light string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("lua handler panic", "id", vm.id, "err", r)
		}
	}()

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, goToLua(L, value), lua.LString(light)); err != nil {
		e.logger.Error("lua handler error", "id", vm.id, "err", err)
	}
}

// goToLua converts a Go value to a Lua value.
func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case uint8:
		return lua.LNumber(val)
	case uint16:
		return lua.LNumber(val)
	case effects.Patch:
		return goToLua(L, map[string]any(val))
	case map[string]any:
		t := L.NewTable()
		for k, vv := range val {
			t.RawSetString(k, goToLua(L, vv))
		}
		return t
	case []any:
		t := L.NewTable()
		for i, vv := range val {
			t.RawSetInt(i+1, goToLua(L, vv))
		}
		return t
	case []string:
		t := L.NewTable()
		for i, s := range val {
			t.RawSetInt(i+1, lua.LString(s))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

// luaToGo converts a Lua value to the JSON-like Go values commands accept.
// Tables with only array keys become []any, others map[string]any.
func luaToGo(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LString:
		return string(val)
	case lua.LNumber:
		return float64(val)
	case *lua.LTable:
		if n := val.MaxN(); n > 0 {
			arr := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				arr = append(arr, luaToGo(val.RawGetInt(i)))
			}
			return arr
		}
		m := make(map[string]any)
		val.ForEach(func(k, vv lua.LValue) {
			m[k.String()] = luaToGo(vv)
		})
		return m
	default:
		return nil
	}
}
