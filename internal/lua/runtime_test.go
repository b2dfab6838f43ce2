package lua

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lightcycle/internal/cycling"
	"github.com/dokzlo13/lightcycle/internal/eventbus"
	"github.com/dokzlo13/lightcycle/internal/items"
	"github.com/dokzlo13/lightcycle/internal/light"
	"github.com/dokzlo13/lightcycle/internal/program"
	"github.com/dokzlo13/lightcycle/internal/storage/kv"
)

var hall = light.Light{
	Name: "hall",
	Items: items.Names{
		Switch:     "Hall",
		Brightness: "Hall_Bri",
		Scene:      "Hall_Scene",
		Sunrise:    "Sunrise",
		Sunset:     "Sunset",
	},
	Programs: program.List{
		{Index: 0, Program: program.Scene{SceneID: "bright"}},
		{Index: 1, Program: program.Scene{SceneID: "relax"}},
	},
	Dynamic: &program.Dynamic{Name: program.FollowDaylightName},
}

func newTestRuntime(t *testing.T, states map[string]string) (*Runtime, *items.Memory) {
	t.Helper()

	reg := items.NewMemory(states)
	noon := time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)
	d := program.NewDispatcher(reg, program.NewCurves(), func() time.Time { return noon })
	ctrl := light.NewController(d, cycling.NewStore(kv.NewMemoryBucket("cycling")))

	r := NewRuntime(RuntimeDeps{
		Lights:     light.Set{"hall": hall},
		Controller: ctrl,
		KVManager:  kv.NewManager(nil, nil, ""),
		KVBackend:  kv.BackendMemory,
	})
	t.Cleanup(r.Close)
	return r, reg
}

func TestLights_SwitchOnAndCycle(t *testing.T) {
	r, reg := newTestRuntime(t, map[string]string{"Hall": "OFF"})

	err := r.LoadString(`
		local lights = require("lights")

		local res, err = lights.switch_on("hall", {program = 1})
		assert(err == nil, err)
		assert(res.sent_on and res.dispatched and res.index == 1)
		assert(lights.is_on("hall"))

		res = lights.switch_on("hall")
		assert(res.advanced and res.index == 0)

		res = lights.switch_on("hall", {block = true})
		assert(not res.advanced)

		assert(lights.switch_off("hall"))
		assert(lights.is_off("hall"))
	`)
	require.NoError(t, err)

	assert.Equal(t, []items.Command{
		{Item: "Hall_Scene", Value: "relax"},
		{Item: "Hall", Value: "ON"},
		{Item: "Hall_Scene", Value: "bright"},
		{Item: "Hall", Value: "OFF"},
	}, reg.Commands())
}

func TestLights_Dim(t *testing.T) {
	r, reg := newTestRuntime(t, map[string]string{"Hall_Bri": "95"})

	err := r.LoadString(`
		local lights = require("lights")
		local bri, changed = lights.dim_up("hall")
		assert(bri == 100 and changed)
		bri, changed = lights.dim_up("hall")
		assert(bri == 100 and not changed)
		bri = lights.dim_down("hall")
		assert(bri == 80, bri)
	`)
	require.NoError(t, err)
	assert.Equal(t, "80", mustState(t, reg, "Hall_Bri"))
}

func TestLights_UnknownLight(t *testing.T) {
	r, _ := newTestRuntime(t, nil)

	err := r.LoadString(`
		local lights = require("lights")
		local res, err = lights.switch_on("attic")
		assert(res == nil)
		assert(string.find(err, "unknown light"))
	`)
	require.NoError(t, err)
}

func TestLights_UpdateDynamic(t *testing.T) {
	r, reg := newTestRuntime(t, map[string]string{
		"Hall":     "ON",
		"Hall_Bri": "10",
		"Sunrise":  "2024-06-01T06:00:00Z",
		"Sunset":   "2024-06-01T20:00:00Z",
	})

	err := r.LoadString(`
		local lights = require("lights")
		local updated, err = lights.update_dynamic("hall")
		assert(updated, err)
		updated = lights.update_dynamic("hall", {program = {name = "FollowDaylight", max_brightness = 70}})
		assert(updated)
	`)
	require.NoError(t, err)
	assert.Equal(t, []items.Command{
		{Item: "Hall_Bri", Value: "100"},
		{Item: "Hall_Bri", Value: "70"},
	}, reg.Commands())
}

func TestLights_HandlersRunOnWorker(t *testing.T) {
	r, reg := newTestRuntime(t, map[string]string{"Hall": "OFF", "Button": "released"})

	require.NoError(t, r.LoadString(`
		local lights = require("lights")
		lights.on_change("Button", function(e)
			if e.state == "pressed" then lights.switch_on("hall") end
		end)
		lights.on_trigger("goodnight", function(e)
			lights.switch_off(e.light)
		end)
	`))
	assert.True(t, r.HasTrigger("goodnight"))
	assert.False(t, r.HasTrigger("party"))

	bus := eventbus.NewWithConfig(1, 10)
	r.Bind(bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	bus.Publish(eventbus.ItemChanged("Button", "released", "pressed"))
	require.Eventually(t, func() bool { return stateOf(reg, "Hall") == "ON" }, 2*time.Second, 10*time.Millisecond)

	bus.Publish(eventbus.Trigger("goodnight", map[string]any{"light": "hall"}))
	require.Eventually(t, func() bool { return stateOf(reg, "Hall") == "OFF" }, 2*time.Second, 10*time.Millisecond)

	bus.Close(context.Background())
}

func TestLights_BatchedChangeHandler(t *testing.T) {
	r, reg := newTestRuntime(t, map[string]string{"Hall": "OFF", "Button": "released"})

	require.NoError(t, r.LoadString(`
		local lights = require("lights")
		lights.on_change("Button", function(e)
			if e.count == 2 and e.previous == "released" and #e.events == 2 then
				lights.switch_on("hall", {program = 1})
			end
		end, {count = 2})
	`))

	bus := eventbus.NewWithConfig(1, 10)
	defer bus.Close(context.Background())
	r.Bind(bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	bus.Publish(eventbus.ItemChanged("Button", "released", "pressed"))
	bus.Publish(eventbus.ItemChanged("Button", "pressed", "released"))

	require.Eventually(t, func() bool { return stateOf(reg, "Hall") == "ON" }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "relax", stateOf(reg, "Hall_Scene"))
}

func TestLights_OnChangeRejectsNegativeWindow(t *testing.T) {
	r, _ := newTestRuntime(t, nil)

	err := r.LoadString(`require("lights").on_change("Button", function() end, {window_ms = -5})`)
	assert.Error(t, err)
}

func TestRuntime_DoSyncWithResult(t *testing.T) {
	r, _ := newTestRuntime(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	ran := false
	err := r.DoSyncWithResult(ctx, func(context.Context) error {
		ran = true
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.True(t, ran)

	// the caller gets the panic back and the worker keeps going
	err = r.DoSyncWithResult(ctx, func(context.Context) error { panic("boom") })
	assert.ErrorIs(t, err, ErrWorkPanicked)
	require.NoError(t, r.DoSyncWithResult(ctx, func(context.Context) error { return nil }))
}

func TestRuntime_ClosedRejectsWork(t *testing.T) {
	r, _ := newTestRuntime(t, nil)
	r.Close()

	assert.False(t, r.Do(context.Background(), func(context.Context) {}))
	assert.ErrorIs(t, r.DoSync(context.Background(), func(context.Context) {}), ErrRuntimeClosed)
}

func TestRuntime_CloseWaitsForRunningWork(t *testing.T) {
	r, _ := newTestRuntime(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	started := make(chan struct{})
	release := make(chan struct{})
	workErr := make(chan error, 1)
	require.NoError(t, r.DoSync(ctx, func(context.Context) {
		close(started)
		<-release
		workErr <- r.L.DoString(`x = 1 + 1`)
	}))
	<-started

	closed := make(chan struct{})
	go func() {
		r.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while work was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-workErr)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after work finished")
	}

	// queued work is skipped once closing
	assert.ErrorIs(t, r.DoSyncWithResult(ctx, func(context.Context) error { return nil }), ErrRuntimeClosed)
}

func TestKVModule(t *testing.T) {
	r, _ := newTestRuntime(t, nil)

	err := r.LoadString(`
		local kv = require("kv")
		local b = kv.bucket("scratch")
		assert(b:store("count", 3))
		assert(b:get("count") == 3)
		assert(b:exists("count"))
		assert(#b:keys() == 1)
		assert(b:delete("count"))
		local v, err = b:get("count")
		assert(v == nil and err == nil)
		assert(b:clear())

		local missing, err = kv.bucket("durable", {backend = "sqlite"})
		assert(missing == nil and err ~= nil)
	`)
	require.NoError(t, err)
}

func stateOf(reg *items.Memory, name string) string {
	s, _ := reg.State(context.Background(), name)
	return s
}

func mustState(t *testing.T, reg *items.Memory, name string) string {
	t.Helper()
	s, err := reg.State(context.Background(), name)
	require.NoError(t, err)
	return s
}
