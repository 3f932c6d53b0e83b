// Package server exposes the research engine over HTTP: job submission and
// lifecycle, server-sent progress events, stored profiles with their
// similarity edges, and market segments.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"prospect/internal/config"
	"prospect/internal/core"
	"prospect/internal/logger"
	"prospect/internal/progress"
	"prospect/internal/segment"
)

// Backend is the engine surface the facade serves. *research.Engine
// implements it.
type Backend interface {
	Research(ctx context.Context, name, website string) (string, error)
	Status(jobID string) (*core.ResearchJob, error)
	Cancel(jobID string) bool
	Subscribe(ctx context.Context, jobID string) <-chan progress.Event
	GetCompany(id string) (*core.Company, error)
}

// EdgeSource reads persisted similarity edges. *vectorstore.Gateway
// implements it.
type EdgeSource interface {
	Edges(ctx context.Context, id string) ([]core.SimilarityEdge, error)
}

// Segmenter computes market segments. *segment.Segmenter implements it.
type Segmenter interface {
	Segment(ctx context.Context) (*segment.Result, error)
}

// Server is the HTTP facade.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	backend    Backend
	edges      EdgeSource
	segmenter  Segmenter
	config     config.Server
}

// New wires the facade over the given backend.
func New(backend Backend, edges EdgeSource, segmenter Segmenter, cfg config.Server) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		backend:   backend,
		edges:     edges,
		segmenter: segmenter,
		config:    cfg,
	}
	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  config.Duration(cfg.ReadTimeout, 15*time.Second),
		WriteTimeout: config.Duration(cfg.WriteTimeout, 0),
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// The events stream stays open for the life of a job, so the
		// request timeout applies only to the plain JSON endpoints.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Post("/research", s.handleResearch)
			r.Get("/jobs/{jobID}", s.handleJobStatus)
			r.Post("/jobs/{jobID}/cancel", s.handleCancel)
			r.Get("/companies/{companyID}", s.handleGetCompany)
			r.Get("/companies/{companyID}/similar", s.handleSimilar)
			r.Get("/segments", s.handleSegments)
		})
		r.Get("/jobs/{jobID}/events", s.handleEvents)
	})
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	logger.Info("http facade listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("http facade shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// Router exposes the mux for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
