package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"animepresence/internal/api"
	"animepresence/internal/config"
)

type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	httpServer *http.Server
	router     *chi.Mux
	handler    *api.Handler
	runtime    http.Handler
}

func New(cfg *config.Config, logger zerolog.Logger, handler *api.Handler, runtime http.Handler) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		handler: handler,
		runtime: runtime,
	}

	s.router = chi.NewRouter()
	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(CORSMiddleware)
	s.router.Use(LoggingMiddleware(s.logger))
}

func (s *Server) setupRoutes() {
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handler.Health)

		r.Get("/state", s.handler.GetState)
		r.Post("/enabled", s.handler.SetEnabled)
		r.Post("/connection/retry", s.handler.RetryConnection)
		r.Post("/control", s.handler.Control)

		r.Get("/settings", s.handler.GetSettings)
		r.Patch("/settings", s.handler.UpdateSettings)

		// Display preferences
		r.Get("/display", s.handler.GetDisplay)
		r.Patch("/display", s.handler.UpdateDisplay)

		r.Get("/preferences", s.handler.ListPreferences)

		if s.runtime != nil {
			r.Get("/runtime", s.runtime.ServeHTTP)
		}
	})
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.httpServer.Addr).
		Msg("starting server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}
