package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightcycle/internal/ledger"
	"github.com/dokzlo13/lightcycle/internal/light"
)

// Runner runs work on the single controller worker.
type Runner interface {
	DoSyncWithResult(ctx context.Context, work func(context.Context) error) error
}

// DynamicService periodically refreshes every light that has a dynamic program.
type DynamicService struct {
	lights     light.Set
	controller *light.Controller
	runner     Runner
	interval   time.Duration
	onlyIfOn   bool
	runOnStart bool
	history    *ledger.Ledger
	done       chan struct{}
}

// NewDynamicService creates a new DynamicService. A zero interval disables the ticker.
func NewDynamicService(lights light.Set, controller *light.Controller, runner Runner, interval time.Duration, onlyIfOn, runOnStart bool) *DynamicService {
	return &DynamicService{
		lights:     lights,
		controller: controller,
		runner:     runner,
		interval:   interval,
		onlyIfOn:   onlyIfOn,
		runOnStart: runOnStart,
	}
}

// WithHistory records updates and failures in the operation history.
func (s *DynamicService) WithHistory(h *ledger.Ledger) *DynamicService {
	s.history = h
	return s
}

// Start begins the refresh loop.
func (s *DynamicService) Start(ctx context.Context) {
	if s.interval <= 0 {
		log.Info().Msg("Dynamic refresh is disabled")
		return
	}
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.run(ctx)
	}()
}

// Wait blocks until the refresh loop has returned.
func (s *DynamicService) Wait(ctx context.Context) {
	waitStopped(ctx, s.done, "dynamic")
}

func (s *DynamicService) run(ctx context.Context) {
	log.Info().Dur("interval", s.interval).Msg("Dynamic refresh started")

	if s.runOnStart {
		s.Tick(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick refreshes all dynamic lights once. Returns how many were updated.
func (s *DynamicService) Tick(ctx context.Context) int {
	updated := 0
	for _, name := range s.lights.Names() {
		l := s.lights[name]
		if l.Dynamic == nil {
			continue
		}

		var ok bool
		err := s.runner.DoSyncWithResult(ctx, func(workCtx context.Context) error {
			var err error
			ok, err = s.controller.UpdateItemsByDynamicMode(workCtx, l.Items, *l.Dynamic, s.onlyIfOn)
			return err
		})
		if ok {
			updated++
		}
		if s.history != nil && (ok || err != nil) && ctx.Err() == nil {
			payload := map[string]any{"curve": l.Dynamic.Name}
			if rerr := s.history.Record(ctx, name, "dynamic", ledger.SourceDynamic, "", payload, err); rerr != nil {
				log.Warn().Err(rerr).Str("light", name).Msg("Failed to record dynamic refresh")
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return updated
			}
			log.Error().Err(err).Str("light", name).Msg("Dynamic refresh failed")
		}
	}

	log.Debug().Int("updated", updated).Msg("Dynamic refresh tick")
	return updated
}
