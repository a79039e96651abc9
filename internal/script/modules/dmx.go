package modules

import (
	"context"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/qlcremote/internal/history"
	"github.com/dokzlo13/qlcremote/internal/pace"
)

// Desk is the channel surface scripts drive.
type Desk interface {
	SetChannel(ctx context.Context, ch, value int) error
	ResetChannel(ctx context.Context, ch int) error
	ChannelValue(ch int) int
	Execute(ctx context.Context, text string) history.Entry
}

// DMXModule provides channel control to Lua.
type DMXModule struct {
	desk  Desk
	sleep pace.Func
}

// NewDMXModule creates the dmx module. sleep paces dmx.sleep.
func NewDMXModule(desk Desk, sleep pace.Func) *DMXModule {
	if sleep == nil {
		sleep = pace.Sleep
	}
	return &DMXModule{desk: desk, sleep: sleep}
}

// Loader is the module loader for Lua
func (m *DMXModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "set", L.NewFunction(m.set))
	L.SetField(mod, "reset", L.NewFunction(m.reset))
	L.SetField(mod, "get", L.NewFunction(m.get))
	L.SetField(mod, "sleep", L.NewFunction(m.sleepFn))
	L.SetField(mod, "exec", L.NewFunction(m.exec))

	L.Push(mod)
	return 1
}

// set(ch, value) -> (ok, err)
func (m *DMXModule) set(L *lua.LState) int {
	ch := L.CheckInt(1)
	v := L.CheckInt(2)
	return pushResult(L, m.desk.SetChannel(contextOf(L), ch, v))
}

// reset(ch) -> (ok, err)
func (m *DMXModule) reset(L *lua.LState) int {
	ch := L.CheckInt(1)
	return pushResult(L, m.desk.ResetChannel(contextOf(L), ch))
}

// get(ch) -> value from the local mirror
func (m *DMXModule) get(L *lua.LState) int {
	ch := L.CheckInt(1)
	L.Push(lua.LNumber(m.desk.ChannelValue(ch)))
	return 1
}

// sleep(ms). Raises when the script is cancelled.
func (m *DMXModule) sleepFn(L *lua.LState) int {
	ms := L.CheckInt(1)
	if err := m.sleep(contextOf(L), time.Duration(ms)*time.Millisecond); err != nil {
		L.RaiseError("sleep interrupted: %s", err.Error())
	}
	return 0
}

// exec(text) -> succeeded. Runs one keypad line.
func (m *DMXModule) exec(L *lua.LState) int {
	text := L.CheckString(1)
	entry := m.desk.Execute(contextOf(L), text)
	L.Push(lua.LBool(entry.Succeeded))
	return 1
}

func contextOf(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
