package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightcycle/internal/api"
	"github.com/dokzlo13/lightcycle/internal/config"
)

// APIService runs the HTTP API when enabled.
type APIService struct {
	cfg    *config.Config
	Server *api.Server
	done   chan struct{}
}

// NewAPIService creates a new APIService.
func NewAPIService(cfg *config.Config, deps api.Deps) *APIService {
	return &APIService{
		cfg:    cfg,
		Server: api.NewServer(cfg.API.Addr(), cfg.API.CORSOrigins, deps),
	}
}

// Start begins serving if the API is enabled. A listen failure is fatal.
func (s *APIService) Start(ctx context.Context, onFatalError func(error)) {
	if !s.cfg.API.Enabled {
		log.Info().Msg("API is disabled")
		return
	}

	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.Server.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			log.Error().Err(err).Msg("API server error")
			if onFatalError != nil {
				onFatalError(err)
			}
		}
	}()
}

// Wait blocks until the server has stopped serving in-flight requests.
func (s *APIService) Wait(ctx context.Context) {
	waitStopped(ctx, s.done, "api")
}
