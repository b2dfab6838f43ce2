package modules

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/lightcycle/internal/eventbus"
	"github.com/dokzlo13/lightcycle/internal/items"
	"github.com/dokzlo13/lightcycle/internal/light"
	"github.com/dokzlo13/lightcycle/internal/lua/exec"
	"github.com/dokzlo13/lightcycle/internal/middleware"
	"github.com/dokzlo13/lightcycle/internal/program"
)

// changeHandler is one on_change registration. With a collect spec, events are batched by
// collector before fn runs.
type changeHandler struct {
	fn        *lua.LFunction
	collect   middleware.Options
	collector middleware.Collector
}

// LightsModule exposes the light controller to Lua and routes bus events to Lua handlers.
//
// ERROR HANDLING CONVENTION:
//   - on_change(), on_trigger(): L.RaiseError() for setup failures
//   - control functions: return (result, error_string)
type LightsModule struct {
	lights     light.Set
	controller *light.Controller

	mu       sync.RWMutex
	ex       exec.Executor
	onChange map[string][]*changeHandler
	onTrig   map[string][]*lua.LFunction
}

// NewLightsModule creates a new lights module
func NewLightsModule(lights light.Set, controller *light.Controller) *LightsModule {
	return &LightsModule{
		lights:     lights,
		controller: controller,
		onChange:   make(map[string][]*changeHandler),
		onTrig:     make(map[string][]*lua.LFunction),
	}
}

// Loader is the module loader for Lua
func (m *LightsModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetFuncs(mod, map[string]lua.LGFunction{
		"list":           m.list,
		"switch_on":      m.switchOn,
		"switch_off":     m.switchOff,
		"dim_up":         m.dim(m.controller.DimUp),
		"dim_down":       m.dim(m.controller.DimDown),
		"is_on":          m.query(m.controller.IsOn),
		"is_off":         m.query(m.controller.IsOff),
		"update_dynamic": m.updateDynamic,
		"on_change":      m.registerChange,
		"on_trigger":     m.registerTrigger,
	})

	L.Push(mod)
	return 1
}

// Bind subscribes the module to bus events. Handlers run on the Lua worker via ex.
func (m *LightsModule) Bind(bus *eventbus.Bus, ex exec.Executor) {
	m.mu.Lock()
	m.ex = ex
	for _, hs := range m.onChange {
		for _, h := range hs {
			m.attachCollector(h)
		}
	}
	m.mu.Unlock()

	bus.Subscribe(eventbus.EventTypeItemChanged, func(e eventbus.Event) {
		var direct []*lua.LFunction
		for _, h := range m.changeHandlers(e.String("item")) {
			if h.collector != nil {
				h.collector.AddEvent(e.Data)
				continue
			}
			direct = append(direct, h.fn)
		}
		m.enqueue(ex, e, direct)
	})
	bus.Subscribe(eventbus.EventTypeTrigger, func(e eventbus.Event) {
		m.enqueue(ex, e, m.triggerHandlers(e.String("name")))
	})
}

// Close stops pending collectors.
func (m *LightsModule) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, hs := range m.onChange {
		for _, h := range hs {
			if h.collector != nil {
				h.collector.Close()
			}
		}
	}
}

// HasTrigger reports whether a script registered a handler for the trigger.
func (m *LightsModule) HasTrigger(name string) bool {
	return len(m.triggerHandlers(name)) > 0
}

// attachCollector must be called with mu held and m.ex set.
func (m *LightsModule) attachCollector(h *changeHandler) {
	if h.collect.IsZero() || h.collector != nil {
		return
	}
	ex := m.ex
	h.collector = middleware.New(h.collect, func(events []map[string]any) {
		batch := eventbus.Event{Type: eventbus.EventTypeItemChanged, Data: middleware.Batch(events)}
		m.enqueue(ex, batch, []*lua.LFunction{h.fn})
	})
}

func (m *LightsModule) changeHandlers(item string) []*changeHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.onChange[item]
}

func (m *LightsModule) triggerHandlers(name string) []*lua.LFunction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.onTrig[name]
}

func (m *LightsModule) enqueue(ex exec.Executor, e eventbus.Event, handlers []*lua.LFunction) {
	if len(handlers) == 0 {
		return
	}
	ex.Do(context.Background(), func(ctx context.Context) {
		for _, fn := range handlers {
			if err := exec.CallHandler(ex.LState(), fn, e.Data); err != nil {
				log.Error().Err(err).Str("event_type", string(e.Type)).Msg("Lua handler failed")
			}
		}
	})
}

// list() -> { names }
func (m *LightsModule) list(L *lua.LState) int {
	L.Push(exec.GoToLua(L, m.lights.Names()))
	return 1
}

// checkLight resolves the light named by argument 1. Pushes (nil, err) on failure.
func (m *LightsModule) checkLight(L *lua.LState) (light.Light, bool) {
	l, err := m.lights.Get(L.CheckString(1))
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return l, false
	}
	return l, true
}

// switch_on(light, { program = N, block = bool }) -> (result, err)
func (m *LightsModule) switchOn(L *lua.LState) int {
	l, ok := m.checkLight(L)
	if !ok {
		return 2
	}

	var opts light.SwitchOnOptions
	if tbl := L.OptTable(2, nil); tbl != nil {
		if n, ok := L.GetField(tbl, "program").(lua.LNumber); ok {
			idx := int(n)
			opts.ProgramIndex = &idx
		}
		opts.BlockIterating = lua.LVAsBool(L.GetField(tbl, "block"))
	}

	res, err := m.controller.SwitchOn(luaContext(L), l.Items, l.Programs, opts)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}

	L.Push(exec.MapToLuaTable(L, map[string]any{
		"advanced":   res.Advanced,
		"dispatched": res.Dispatched,
		"index":      res.Index,
		"sent_on":    res.SentOn,
	}))
	L.Push(lua.LNil)
	return 2
}

// switch_off(light) -> (ok, err)
func (m *LightsModule) switchOff(L *lua.LState) int {
	l, ok := m.checkLight(L)
	if !ok {
		return 2
	}
	if err := m.controller.SwitchOff(luaContext(L), l.Items); err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	L.Push(lua.LNil)
	return 2
}

// dim_up(light) / dim_down(light) -> (brightness, changed) or (nil, err)
func (m *LightsModule) dim(fn func(context.Context, items.Names) (light.DimResult, error)) lua.LGFunction {
	return func(L *lua.LState) int {
		l, ok := m.checkLight(L)
		if !ok {
			return 2
		}
		res, err := fn(luaContext(L), l.Items)
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LNumber(res.Brightness))
		L.Push(lua.LBool(res.Changed))
		return 2
	}
}

// is_on(light) / is_off(light) -> (bool, err)
func (m *LightsModule) query(fn func(context.Context, items.Names) (bool, error)) lua.LGFunction {
	return func(L *lua.LState) int {
		l, ok := m.checkLight(L)
		if !ok {
			return 2
		}
		v, err := fn(luaContext(L), l.Items)
		if err != nil {
			L.Push(lua.LFalse)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LBool(v))
		L.Push(lua.LNil)
		return 2
	}
}

// update_dynamic(light, { only_if_on = bool, program = { name = ..., ... } }) -> (updated, err)
func (m *LightsModule) updateDynamic(L *lua.LState) int {
	l, ok := m.checkLight(L)
	if !ok {
		return 2
	}

	onlyIfOn := true
	dyn := l.Dynamic
	if tbl := L.OptTable(2, nil); tbl != nil {
		if v := L.GetField(tbl, "only_if_on"); v != lua.LNil {
			onlyIfOn = lua.LVAsBool(v)
		}
		if p, ok := L.GetField(tbl, "program").(*lua.LTable); ok {
			d := program.DecodeDynamic(exec.LuaTableToMap(p))
			dyn = &d
		}
	}
	if dyn == nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString("light has no dynamic program"))
		return 2
	}

	updated, err := m.controller.UpdateItemsByDynamicMode(luaContext(L), l.Items, *dyn, onlyIfOn)
	if err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LBool(updated))
	L.Push(lua.LNil)
	return 2
}

// on_change(item, fn, { window_ms = N } | { count = N })
// Without options fn({item, previous, state}) runs on every change. With options fn receives one
// batch: the last event's fields plus count, events and the first event's previous state.
func (m *LightsModule) registerChange(L *lua.LState) int {
	item := L.CheckString(1)
	fn := L.CheckFunction(2)

	h := &changeHandler{fn: fn}
	if tbl := L.OptTable(3, nil); tbl != nil {
		if n, ok := L.GetField(tbl, "count").(lua.LNumber); ok {
			h.collect.Count = int(n)
		}
		if n, ok := L.GetField(tbl, "window_ms").(lua.LNumber); ok {
			h.collect.WindowMs = int(n)
		}
		if h.collect.Count < 0 || h.collect.WindowMs < 0 {
			L.RaiseError("on_change: count and window_ms must be positive")
			return 0
		}
	}

	m.mu.Lock()
	if m.ex != nil {
		m.attachCollector(h)
	}
	m.onChange[item] = append(m.onChange[item], h)
	m.mu.Unlock()

	log.Info().
		Str("item", item).
		Int("count", h.collect.Count).
		Int("window_ms", h.collect.WindowMs).
		Msg("Registered item change handler")
	return 0
}

// on_trigger(name, fn) - run fn({name, ...payload}) when the trigger fires
func (m *LightsModule) registerTrigger(L *lua.LState) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)

	m.mu.Lock()
	m.onTrig[name] = append(m.onTrig[name], fn)
	m.mu.Unlock()

	log.Info().Str("trigger", name).Msg("Registered trigger handler")
	return 0
}
