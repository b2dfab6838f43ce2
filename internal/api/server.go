// Package api serves the HTTP control surface: light commands and named triggers.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Server is the HTTP API server.
type Server struct {
	addr       string
	engine     *gin.Engine
	httpServer *http.Server
}

// NewServer creates the server and its routes.
func NewServer(addr string, corsOrigins []string, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	SetupMiddleware(engine, corsOrigins)

	s := &Server{addr: addr, engine: engine}
	s.setupRoutes(&handlers{Deps: deps})
	return s
}

func (s *Server) setupRoutes(h *handlers) {
	s.engine.GET("/health", h.health)

	v1 := s.engine.Group("/api/v1")
	{
		v1.GET("/health", h.health)

		lights := v1.Group("/lights")
		{
			lights.GET("", h.listLights)
			lights.GET("/:name", h.getLight)
			lights.POST("/:name/on", h.switchOn)
			lights.POST("/:name/off", h.switchOff)
			lights.POST("/:name/dim/up", h.dim(true))
			lights.POST("/:name/dim/down", h.dim(false))
			lights.POST("/:name/dynamic", h.dynamic)
		}

		v1.POST("/triggers/:name", h.trigger)
		v1.GET("/history", h.history)
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run starts the server. It blocks until the context is cancelled and in-flight requests
// have finished or shutdownTimeout has passed.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	stop := make(chan struct{})
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		select {
		case <-ctx.Done():
		case <-stop:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("API server shutdown error")
		}
	}()

	err := s.httpServer.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		close(stop)
		return err
	}

	// ListenAndServe returns as soon as Shutdown starts; wait for in-flight requests.
	<-shutdownDone
	log.Info().Msg("API server stopped")
	return nil
}
