// Package web wires the chi router and net/http.Server the recognition
// service exposes, grounded on the teacher's internal/web/server.go
// (chi.NewRouter, the RequestID/RealIP/Logger/Recoverer/Timeout/CORS
// middleware stack, Start/Shutdown), generalized from the photo-sorter
// SPA-plus-API server to an API-only recognition surface.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/facerecog/internal/batch"
	"github.com/kozaktomas/facerecog/internal/index"
	"github.com/kozaktomas/facerecog/internal/metrics"
	"github.com/kozaktomas/facerecog/internal/recognition"
	"github.com/kozaktomas/facerecog/internal/store"
	"github.com/kozaktomas/facerecog/internal/web/handlers"
	"github.com/kozaktomas/facerecog/internal/web/middleware"
)

// Server wraps the router and the underlying HTTP server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
}

// Deps bundles every dependency the router hands to handlers.
type Deps struct {
	Coordinator *recognition.Coordinator
	Batch       *batch.Engine
	Index       *index.Index
	Store       *store.Store
	Metrics     *metrics.Recorder
}

// NewServer builds the router and binds it to host:port.
func NewServer(host string, port int, d Deps) *Server {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(30 * time.Second))
	r.Use(middleware.CORS())
	if d.Metrics != nil {
		r.Use(d.Metrics.HTTPMiddleware)
	}

	s := &Server{router: r}
	s.setupRoutes(d)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes(d Deps) {
	recognitionHandler := &handlers.Handlers{Coordinator: d.Coordinator}
	batchHandler := &handlers.BatchHandlers{Engine: d.Batch}
	systemHandler := &handlers.SystemHandlers{Index: d.Index, Store: d.Store, Coordinator: d.Coordinator}

	s.router.Get("/health", handlers.HealthCheck)
	s.router.Get("/health/detailed", systemHandler.DetailedHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/recognition", func(r chi.Router) {
		r.Post("/register", recognitionHandler.Register)
		r.Post("/recognize", recognitionHandler.Recognize)
		r.Put("/update", recognitionHandler.Update)

		r.Post("/batch", batchHandler.CreateBatch)
		r.Get("/batch", batchHandler.ListBatches)
		r.Get("/batch/{jobId}", batchHandler.GetBatch)
		r.Get("/batch/{jobId}/events", batchHandler.StreamBatchEvents)

		r.Post("/index/rebuild", systemHandler.Rebuild)
		r.Get("/stats", systemHandler.Stats)
	})
}

// Start begins serving; it blocks until Shutdown is called or an error occurs.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web: starting server: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("web: shutting down server: %w", err)
	}
	return nil
}

// HTTPServer exposes the underlying *http.Server for lifecycle.Deps.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Router returns the chi router, for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
