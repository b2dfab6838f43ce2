package app

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightcycle/internal/config"
	"github.com/dokzlo13/lightcycle/internal/eventbus"
	luart "github.com/dokzlo13/lightcycle/internal/lua"
)

// LuaService wraps the Lua runtime and provides thread-safe execution.
type LuaService struct {
	cfg     *config.Config
	Runtime *luart.Runtime
	started bool
	done    chan struct{}
}

// NewLuaService creates a new LuaService.
func NewLuaService(cfg *config.Config, deps luart.RuntimeDeps) *LuaService {
	return &LuaService{
		cfg:     cfg,
		Runtime: luart.NewRuntime(deps),
		done:    make(chan struct{}),
	}
}

// LoadScript loads and executes the Lua script. A missing script is not an error:
// lights are still controllable over the API.
// Must be called before Start().
func (s *LuaService) LoadScript() error {
	if _, err := os.Stat(s.cfg.Script); os.IsNotExist(err) {
		log.Warn().Str("path", s.cfg.Script).Msg("Lua script not found, running without rules")
		return nil
	}
	return s.Runtime.LoadScript(s.cfg.Script)
}

// Start binds script handlers to the bus and begins the Lua worker goroutine.
func (s *LuaService) Start(ctx context.Context, bus *eventbus.Bus) {
	s.Runtime.Bind(bus)
	s.started = true

	// The ONLY goroutine that touches Lua
	go func() {
		defer close(s.done)
		s.Runtime.Run(ctx)
	}()
}

// DoSyncWithResult runs work on the Lua worker and waits for its result.
func (s *LuaService) DoSyncWithResult(ctx context.Context, work func(context.Context) error) error {
	return s.Runtime.DoSyncWithResult(ctx, work)
}

// HasTrigger reports whether the script handles the named trigger.
func (s *LuaService) HasTrigger(name string) bool {
	return s.Runtime.HasTrigger(name)
}

// Close waits for the worker to drain (if it was started) and closes the Lua runtime.
func (s *LuaService) Close(ctx context.Context) {
	if s.started {
		waitStopped(ctx, s.done, "lua")
	}
	s.Runtime.Close()
}
