package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/TozatoRodrigo/detecta-ia/internal/anomaly"
	"github.com/TozatoRodrigo/detecta-ia/internal/audit"
	"github.com/TozatoRodrigo/detecta-ia/internal/domain"
	"github.com/TozatoRodrigo/detecta-ia/internal/features"
	"github.com/TozatoRodrigo/detecta-ia/internal/metrics"
	"github.com/TozatoRodrigo/detecta-ia/internal/rules"
	"github.com/TozatoRodrigo/detecta-ia/internal/scoring"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// Options bundles the dependencies and knobs for the API server.
type Options struct {
	Repository domain.Repository
	Cache      domain.Cache
	EventBus   domain.EventBus
	Engine     *rules.Engine
	Scorer     *scoring.Scorer
	Models     *anomaly.Manager
	Engineer   *features.Engineer
	Audit      *audit.Logger
	Version    string

	// RateLimitPerMinute caps scoring requests per tenant. Zero disables.
	RateLimitPerMinute int64
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, opts Options) *Server {
	handler := NewHandler(opts.Repository, opts.Cache, opts.EventBus, opts.Engine, opts.Scorer, opts.Models, opts.Engineer, opts.Audit, opts.Version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(metrics.Middleware)     // Prometheus request metrics
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Operational endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Batch scoring
		r.Group(func(r chi.Router) {
			r.Use(RateLimitMiddleware(opts.Cache, opts.RateLimitPerMinute))
			r.Post("/score", handler.Score)
			r.Post("/score/async", handler.ScoreAsync)
		})

		// Result retrieval
		r.Get("/batches/{id}", handler.GetBatch)
		r.Get("/results", handler.ListResults)
		r.Get("/stats", handler.GetStats)

		// Risk policy
		r.Get("/policy", handler.GetPolicy)
		r.Put("/policy", handler.PutPolicy)

		// Model lifecycle
		r.Get("/models", handler.ListModels)
		r.Post("/models/{kind}/train", handler.TrainModel)
		r.Post("/models/persist", handler.PersistModels)
		r.Post("/models/restore", handler.RestoreModels)

		// Rule management
		r.Get("/rules", handler.ListRules)
		r.Get("/rules/{id}", handler.GetRule)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/reload", handler.ReloadRules)

		// Audit trail
		r.Get("/audit", handler.ListAuditEvents)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
