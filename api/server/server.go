package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/longregen/promptc/api/server/handlers"
	"github.com/longregen/promptc/internal/adapters/tracing"
	"github.com/longregen/promptc/internal/config"
)

const ReadTimeout = 30 * time.Second

type Server struct {
	cfg    *config.Config
	router *chi.Mux
	server *http.Server
}

func NewServer(cfg *config.Config, svc handlers.CompileService, dbPing func(context.Context) error) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(tracing.Middleware("promptc-api"))
	router.Use(Recovery)
	router.Use(Logger)
	router.Use(CORS(cfg.Server.CORSOrigins))

	healthH := handlers.NewHealthHandler(dbPing)
	router.Get("/health", healthH.Readiness)
	router.Get("/health/ready", healthH.Readiness)
	router.Get("/health/live", healthH.Liveness)
	router.Get("/health/full", healthH.Health)

	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		runH := handlers.NewRunHandler(svc)
		r.Post("/runs", runH.Create)
		r.Get("/runs", runH.List)
		r.Get("/runs/{id}", runH.Get)
		r.Post("/runs/{id}/abort", runH.Abort)
		r.Get("/runs/{id}/candidates", runH.Candidates)
		r.Get("/runs/{id}/artifact", runH.Artifact)
		r.Get("/runs/{id}/program", runH.Artifact)
		r.Get("/runs/{id}/events", runH.Events)
	})

	return &Server{
		cfg:    cfg,
		router: router,
	}
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: ReadTimeout,
		// SSE streams stay open for the lifetime of a run
		WriteTimeout: 0,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
