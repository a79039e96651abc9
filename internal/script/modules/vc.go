package modules

import (
	"context"

	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/qlcremote/internal/widget"
)

// Console is the virtual console surface scripts drive.
type Console interface {
	CueNext(ctx context.Context, widgetID int) error
	PressButton(ctx context.Context, id int) error
	ReleaseButton(ctx context.Context, id int) error
	SetSlider(ctx context.Context, id, value int) error
	Widgets() *widget.Store
}

// VCModule provides virtual console control to Lua.
type VCModule struct {
	console Console
}

// NewVCModule creates the vc module.
func NewVCModule(console Console) *VCModule {
	return &VCModule{console: console}
}

// Loader is the module loader for Lua
func (m *VCModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "cue_next", L.NewFunction(m.cueNext))
	L.SetField(mod, "press", L.NewFunction(m.press))
	L.SetField(mod, "release", L.NewFunction(m.release))
	L.SetField(mod, "slider", L.NewFunction(m.slider))
	L.SetField(mod, "widgets", L.NewFunction(m.widgets))

	L.Push(mod)
	return 1
}

// cue_next(id?) -> (ok, err). id defaults to 1.
func (m *VCModule) cueNext(L *lua.LState) int {
	id := L.OptInt(1, 1)
	return pushResult(L, m.console.CueNext(contextOf(L), id))
}

// press(id) -> (ok, err)
func (m *VCModule) press(L *lua.LState) int {
	return pushResult(L, m.console.PressButton(contextOf(L), L.CheckInt(1)))
}

// release(id) -> (ok, err)
func (m *VCModule) release(L *lua.LState) int {
	return pushResult(L, m.console.ReleaseButton(contextOf(L), L.CheckInt(1)))
}

// slider(id, value) -> (ok, err)
func (m *VCModule) slider(L *lua.LState) int {
	id := L.CheckInt(1)
	v := L.CheckInt(2)
	return pushResult(L, m.console.SetSlider(contextOf(L), id, v))
}

// widgets() -> array of {id, name, kind, on, value}
func (m *VCModule) widgets(L *lua.LState) int {
	list := m.console.Widgets().List()
	tbl := L.NewTable()
	for i, w := range list {
		tbl.RawSetInt(i+1, GoToLuaValue(L, map[string]any{
			"id":    w.ID,
			"name":  w.Name,
			"kind":  w.Kind.String(),
			"on":    w.On,
			"value": w.Value,
		}))
	}
	L.Push(tbl)
	return 1
}
