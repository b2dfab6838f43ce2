package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightcycle/internal/config"
)

// App owns the services and runs them until shutdown.
type App struct {
	cfg      *config.Config
	services *Services
}

// New builds every service without starting any of them.
func New(cfg *config.Config) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, services: services}, nil
}

// Services exposes the wired services.
func (a *App) Services() *Services {
	return a.services
}

// Run starts the services and blocks until ctx is cancelled or a background service fails.
// Services are closed before it returns.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	onFatalError := func(err error) {
		log.Error().Err(err).Msg("Fatal error, initiating shutdown")
		cancel(err)
	}

	if err := a.services.Start(runCtx, onFatalError); err != nil {
		// stop whatever did start before closing what it uses
		cancel(err)
		a.services.Close()
		return err
	}

	log.Info().
		Int("lights", len(a.services.Lights)).
		Str("registry", a.cfg.Registry.Kind).
		Bool("api", a.cfg.API.Enabled).
		Bool("history", a.services.History != nil).
		Msg("lightcycle started")

	<-runCtx.Done()
	log.Info().Msg("Shutting down...")

	a.services.Close()

	// Parent cancellation is a normal shutdown; only service failures are reported.
	if ctx.Err() != nil {
		return nil
	}
	return context.Cause(runCtx)
}

// ResetCycling forgets every light's cycling position (--reset-state).
func (a *App) ResetCycling(ctx context.Context) error {
	return a.services.ClearState(ctx)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
