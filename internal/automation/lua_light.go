//go:build !no_automation

package automation

import (
	"context"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"

	"zigbee-ledfx/internal/adapter"
)

const (
	maxHandlersPerScript = 100
	callTimeout          = 5 * time.Second
)

// registerLightModule registers the `light` global table in a Lua state.
// Every call that acts on a light takes an optional trailing light name;
// without it the script's default light is used.
func registerLightModule(L *lua.LState, vm *scriptVM, e *Engine) {
	mod := L.NewTable()
	fns := map[string]lua.LGFunction{
		"on_change": func(L *lua.LState) int { return lightOnChange(L, vm) },
		"set":       func(L *lua.LState) int { return lightSet(L, vm, e) },
		"get":       func(L *lua.LState) int { return lightGet(L, vm, e) },
		"state":     func(L *lua.LState) int { return lightState(L, vm, e) },
		"list":      func(L *lua.LState) int { return lightList(L, e) },
		"after":     func(L *lua.LState) int { return lightAfter(L, vm, e) },
		"log":       func(L *lua.LState) int { return lightLog(L, vm) },
	}
	for name, fn := range fns {
		mod.RawSetString(name, L.NewFunction(fn))
	}
	L.SetGlobal("light", mod)
}

// resolve returns the named light, or the first configured light when name
// is empty.
func (e *Engine) resolve(name string) (*adapter.Light, error) {
	if name == "" {
		lights := e.coord.Lights().List()
		if len(lights) == 0 {
			return nil, fmt.Errorf("no lights configured")
		}
		return lights[0], nil
	}
	return e.coord.Light(name)
}

func (vm *scriptVM) lightArg(L *lua.LState, n int) string {
	if name := L.OptString(n, ""); name != "" {
		return name
	}
	return vm.target
}

// light.on_change(field, fn [, light]) registers fn(value, light_name) for
// changes of field; "*" matches any change and passes the changed fields.
func lightOnChange(L *lua.LState, vm *scriptVM) int {
	h := changeHandler{
		field: L.CheckString(1),
		fn:    L.CheckFunction(2),
		light: L.OptString(3, ""),
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if len(vm.handlers) >= maxHandlersPerScript {
		L.RaiseError("too many handlers (max %d)", maxHandlersPerScript)
		return 0
	}
	vm.handlers = append(vm.handlers, h)
	return 0
}

// light.set(table [, light]) sends a command dictionary. It returns true, or
// nil and an error message.
func lightSet(L *lua.LState, vm *scriptVM, e *Engine) int {
	tbl := L.CheckTable(1)
	l, err := e.resolve(vm.lightArg(L, 2))
	if err != nil {
		return fail(L, err)
	}

	cmds, ok := luaToGo(tbl).(map[string]any)
	if !ok {
		L.ArgError(1, "expected a table of key = value pairs")
		return 0
	}

	ctx, cancel := context.WithTimeout(vm.ctx, callTimeout)
	defer cancel()
	if _, err := l.Apply(ctx, cmds); err != nil {
		e.logger.Warn("script set failed", "id", vm.id, "light", l.Name(), "err", err)
		return fail(L, err)
	}
	L.Push(lua.LTrue)
	return 1
}

// light.get(key [, light]) requests a refresh of key from the device.
func lightGet(L *lua.LState, vm *scriptVM, e *Engine) int {
	key := L.CheckString(1)
	l, err := e.resolve(vm.lightArg(L, 2))
	if err != nil {
		return fail(L, err)
	}

	ctx, cancel := context.WithTimeout(vm.ctx, callTimeout)
	defer cancel()
	if err := l.Get(ctx, key); err != nil {
		return fail(L, err)
	}
	L.Push(lua.LTrue)
	return 1
}

// light.state([light]) returns the merged state table.
func lightState(L *lua.LState, vm *scriptVM, e *Engine) int {
	l, err := e.resolve(vm.lightArg(L, 1))
	if err != nil {
		return fail(L, err)
	}
	L.Push(goToLua(L, l.State()))
	return 1
}

// light.list() returns the configured light names.
func lightList(L *lua.LState, e *Engine) int {
	var names []string
	for _, l := range e.coord.Lights().List() {
		names = append(names, l.Name())
	}
	L.Push(goToLua(L, names))
	return 1
}

// light.after(seconds, fn) runs fn once on the script's VM.
func lightAfter(L *lua.LState, vm *scriptVM, e *Engine) int {
	seconds := L.CheckNumber(1)
	fn := L.CheckFunction(2)

	go func() {
		timer := time.NewTimer(time.Duration(float64(seconds) * float64(time.Second)))
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-vm.ctx.Done():
			return
		}

		select {
		case vm.commands <- func(L *lua.LState) {
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
				e.logger.Error("after callback error", "id", vm.id, "err", err)
			}
		}:
		default:
			e.logger.Warn("after: command channel full", "id", vm.id)
		}
	}()
	return 0
}

// light.log(msg)
func lightLog(L *lua.LState, vm *scriptVM) int {
	vm.logf(L.CheckString(1))
	return 0
}

func fail(L *lua.LState, err error) int {
	L.Push(lua.LNil)
	L.Push(lua.LString(err.Error()))
	return 2
}
