package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightcycle/internal/api"
	"github.com/dokzlo13/lightcycle/internal/config"
	"github.com/dokzlo13/lightcycle/internal/cycling"
	"github.com/dokzlo13/lightcycle/internal/db"
	"github.com/dokzlo13/lightcycle/internal/eventbus"
	"github.com/dokzlo13/lightcycle/internal/ledger"
	"github.com/dokzlo13/lightcycle/internal/light"
	luart "github.com/dokzlo13/lightcycle/internal/lua"
	"github.com/dokzlo13/lightcycle/internal/program"
	"github.com/dokzlo13/lightcycle/internal/storage/kv"
)

// cyclingBucket is the KV bucket holding program cycling positions.
const cyclingBucket = "cycling"

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB    *db.DB
	Redis *redis.Client
	KV    *kv.Manager
	Bus   *eventbus.Bus

	// History is nil when the ledger is disabled
	History *ledger.Ledger

	// Light control
	Lights     light.Set
	Cycling    *cycling.Store
	Dispatcher *program.Dispatcher
	Controller *light.Controller

	// High-level services
	Registry *RegistryService
	Lua      *LuaService
	Dynamic  *DynamicService
	API      *APIService
	Ledger   *LedgerService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	backend, err := cfg.Cache.GetBackend()
	if err != nil {
		return nil, err
	}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	// Redis is only dialed when cycling state lives there
	if backend == kv.BackendRedis {
		s.Redis = redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisAddr,
			DB:   cfg.Cache.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := s.Redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Cache.RedisAddr, err)
		}
		log.Info().Str("addr", cfg.Cache.RedisAddr).Msg("Connected to Redis")
	}

	if cfg.Ledger.IsEnabled() {
		s.History = ledger.New(database.DB)
		s.Ledger = NewLedgerService(s.History, cfg.Ledger.Retention(), cfg.Ledger.CleanupInterval.Duration())
	}

	s.KV = kv.NewManager(database.DB, s.Redis, cfg.Cache.RedisPrefix)

	bucket, err := s.KV.Bucket(cyclingBucket, backend)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Cycling = cycling.NewStore(bucket)

	// Initialize event bus
	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	s.Registry, err = NewRegistryService(cfg, s.Bus)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Lights = buildLights(cfg)
	s.Dispatcher = program.NewDispatcher(s.Registry.Registry, program.NewCurves(), time.Now)
	s.Controller = light.NewController(s.Dispatcher, s.Cycling)

	s.Lua = NewLuaService(cfg, luart.RuntimeDeps{
		Lights:     s.Lights,
		Controller: s.Controller,
		KVManager:  s.KV,
		KVBackend:  backend,
	})

	s.Dynamic = NewDynamicService(
		s.Lights,
		s.Controller,
		s.Lua,
		cfg.Dynamic.Interval.Duration(),
		cfg.Dynamic.GetOnlyIfOn(),
		cfg.Dynamic.RunOnStart,
	).WithHistory(s.History)

	s.API = NewAPIService(cfg, api.Deps{
		Lights:     s.Lights,
		Controller: s.Controller,
		Registry:   s.Registry.Registry,
		Cycling:    s.Cycling,
		Runner:     s.Lua,
		Triggers:   s.Lua,
		Bus:        s.Bus,
		History:    s.History,
		Connected:  s.Registry.Connected,
	})

	log.Info().
		Int("lights", len(s.Lights)).
		Str("cycling_backend", string(backend)).
		Bool("cycling_persistent", bucket.IsPersistent()).
		Msg("Services initialized")

	return s, nil
}

func buildLights(cfg *config.Config) light.Set {
	set := make(light.Set, len(cfg.Lights))
	for name, lc := range cfg.Lights {
		set[name] = light.Light{
			Name:     name,
			Items:    lc.Items,
			Programs: lc.Programs,
			Dynamic:  lc.Dynamic,
		}
	}
	return set
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a background service fails for good.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	if err := s.Registry.Start(ctx); err != nil {
		return err
	}

	if err := s.Cycling.Ensure(ctx); err != nil {
		return err
	}

	// Load Lua script before starting worker
	if err := s.Lua.LoadScript(); err != nil {
		return err
	}

	s.Lua.Start(ctx, s.Bus)
	s.Dynamic.Start(ctx)
	if s.Ledger != nil {
		s.Ledger.Start(ctx)
	}
	s.API.Start(ctx, onFatalError)

	return nil
}

// ClearState clears stored cycling positions.
func (s *Services) ClearState(ctx context.Context) error {
	return s.Cycling.Reset(ctx)
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources. The start context must already be cancelled: goroutines that
// still use the database or the registry are waited for before those are closed.
func (s *Services) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
	defer cancel()

	if s.API != nil {
		s.API.Wait(ctx)
	}
	if s.Dynamic != nil {
		s.Dynamic.Wait(ctx)
	}
	if s.Ledger != nil {
		s.Ledger.Wait(ctx)
	}
	if s.Bus != nil {
		s.Bus.Close(ctx)
	}
	if s.Lua != nil {
		s.Lua.Close(ctx)
	}
	if s.Registry != nil {
		s.Registry.Close()
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
	if s.DB != nil {
		s.DB.Close()
	}
}

// waitStopped blocks until done is closed or ctx expires. A nil done means never started.
func waitStopped(ctx context.Context, done <-chan struct{}, service string) {
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Str("service", service).Msg("Service did not stop in time")
	}
}
