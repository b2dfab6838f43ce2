package lua

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/lightcycle/internal/eventbus"
	"github.com/dokzlo13/lightcycle/internal/lua/modules"
)

var (
	// ErrRuntimeClosed is returned when the Lua runtime is closed
	ErrRuntimeClosed = errors.New("lua runtime closed")

	// ErrWorkPanicked is returned by DoSyncWithResult when the work panicked.
	ErrWorkPanicked = errors.New("lua work panicked")
)

// LuaWork is one unit of work for the Lua worker. Scripts, HTTP requests and the dynamic
// ticker all reach the light controller through it, so controller calls never overlap.
type LuaWork func(ctx context.Context)

// Runtime owns the Lua VM and the single worker that executes on it.
type Runtime struct {
	L    *lua.LState
	deps RuntimeDeps

	lightsModule *modules.LightsModule

	workQueue chan LuaWork

	// closed by Close; senders and the worker watch it instead of a closed queue
	closing   chan struct{}
	closeOnce sync.Once

	// held while work runs and while Close tears the VM down
	execMu sync.Mutex
}

// NewRuntime creates the VM and preloads the modules.
func NewRuntime(deps RuntimeDeps) *Runtime {
	if deps.QueueSize <= 0 {
		deps.QueueSize = DefaultQueueSize
	}

	r := &Runtime{
		L:         lua.NewState(),
		deps:      deps,
		workQueue: make(chan LuaWork, deps.QueueSize),
		closing:   make(chan struct{}),
	}
	r.registerModules()
	return r
}

// Close rejects further work, waits for running work to return, then stops pending
// collectors and closes the Lua state.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		close(r.closing)

		r.execMu.Lock()
		defer r.execMu.Unlock()
		r.lightsModule.Close()
		r.L.Close()
	})
}

// LState returns the Lua state. Only touch it from inside queued work.
func (r *Runtime) LState() *lua.LState {
	return r.L
}

// Do queues work without blocking. It reports false when the work was dropped because the
// runtime is closing, ctx is done or the queue is full.
func (r *Runtime) Do(ctx context.Context, work func(ctx context.Context)) bool {
	select {
	case <-r.closing:
		log.Warn().Msg("Lua runtime closing, dropping work")
		return false
	case <-ctx.Done():
		log.Warn().Msg("Context cancelled, dropping Lua work")
		return false
	case r.workQueue <- work:
		return true
	default:
		log.Warn().Int("queue_size", cap(r.workQueue)).Msg("Lua work queue full, dropping work")
		return false
	}
}

// DoSync queues work, waiting for queue space but not for the work itself.
func (r *Runtime) DoSync(ctx context.Context, work func(ctx context.Context)) error {
	return r.submit(ctx, work)
}

// DoSyncWithResult queues work and waits for it to finish, returning its error.
func (r *Runtime) DoSyncWithResult(ctx context.Context, work func(context.Context) error) error {
	done := make(chan error, 1)
	err := r.submit(ctx, func(c context.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Msg("Lua work panicked - worker continuing")
				done <- fmt.Errorf("%w: %v", ErrWorkPanicked, rec)
			}
		}()
		done <- work(c)
	})
	if err != nil {
		return err
	}

	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (r *Runtime) submit(ctx context.Context, work LuaWork) error {
	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case r.workQueue <- work:
		return nil
	}
}

// registerModules registers all Lua modules
func (r *Runtime) registerModules() {
	r.L.PreloadModule("log", modules.NewLogModule().Loader)

	if r.deps.KVManager != nil {
		r.L.PreloadModule("kv", modules.NewKVModule(r.deps.KVManager, r.deps.KVBackend).Loader)
	}

	r.lightsModule = modules.NewLightsModule(r.deps.Lights, r.deps.Controller)
	r.L.PreloadModule("lights", r.lightsModule.Loader)
}

// Bind routes item_changed and trigger events from the bus to script handlers.
func (r *Runtime) Bind(bus *eventbus.Bus) {
	r.lightsModule.Bind(bus, r)
}

// HasTrigger reports whether the script handles the named trigger.
func (r *Runtime) HasTrigger(name string) bool {
	return r.lightsModule.HasTrigger(name)
}

// Run is the Lua worker loop and the only goroutine that touches the VM after loading.
// On ctx cancellation queued work is still executed; Close stops it immediately.
func (r *Runtime) Run(ctx context.Context) {
	for {
		select {
		case <-r.closing:
			return
		case work := <-r.workQueue:
			r.execute(ctx, work)
		case <-ctx.Done():
			for {
				select {
				case work := <-r.workQueue:
					r.execute(ctx, work)
				default:
					return
				}
			}
		}
	}
}

func (r *Runtime) execute(ctx context.Context, work LuaWork) {
	r.execMu.Lock()
	defer r.execMu.Unlock()

	select {
	case <-r.closing:
		return
	default:
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("Lua work panicked - worker continuing")
		}
	}()
	// modules read the context via L.Context()
	r.L.SetContext(ctx)
	work(ctx)
}

// LoadScript loads and executes a Lua script (must be called before Run)
func (r *Runtime) LoadScript(path string) error {
	log.Info().Str("path", path).Msg("Loading Lua script")

	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}

	log.Info().Msg("Lua script loaded successfully")
	return nil
}

// LoadString executes Lua source (must be called before Run)
func (r *Runtime) LoadString(src string) error {
	if err := r.L.DoString(src); err != nil {
		return fmt.Errorf("failed to execute Lua source: %w", err)
	}
	return nil
}
