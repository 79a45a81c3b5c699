// Package api exposes the search sidebar contract over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"property-map-search/models"
	"property-map-search/storage"
	"property-map-search/utils"
)

// SearchService is the sidebar contract the handlers drive.
// *services.Dispatcher implements it.
type SearchService interface {
	SetProperties(ctx context.Context, records []models.PropertyRecord) (models.Snapshot, error)
	Snapshot(ctx context.Context) (models.Snapshot, error)
	OnViewportChange(ctx context.Context, b models.ViewportBounds) (models.Snapshot, error)
	OnFilterSettingsChange(ctx context.Context, s models.FilterSettings) (models.Snapshot, error)
	OnReset(ctx context.Context) (models.Snapshot, error)
	OnPropertySelect(ctx context.Context, id string) (models.Snapshot, bool, error)
	OnMarkerClick(ctx context.Context, id string) (models.Snapshot, bool, error)
	Deselect(ctx context.Context) (models.Snapshot, error)
}

// Server is the HTTP front of one search session.
type Server struct {
	httpServer *http.Server
	logger     *utils.Logger
}

// NewRouter builds the route table. It is separate from NewServer so tests
// can mount it on httptest. source backs POST /api/search/reload.
func NewRouter(svc SearchService, source storage.PropertySource, logger *utils.Logger) http.Handler {
	h := &Handler{svc: svc, source: source, logger: logger}

	r := chi.NewRouter()
	r.Use(LoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Get("/health", h.Health)

	r.Route("/api/search", func(r chi.Router) {
		r.Get("/state", h.State)
		r.Post("/viewport", h.Viewport)
		r.Post("/filters", h.Filters)
		r.Post("/reset", h.Reset)
		r.Post("/reload", h.Reload)
		r.Post("/select", h.Select)
		r.Delete("/select", h.Deselect)
		r.Post("/markers/{id}/click", h.MarkerClick)
	})

	return r
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, svc SearchService, source storage.PropertySource, logger *utils.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(svc, source, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("[api] Listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: listen: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("[api] Shutting down")
	return s.httpServer.Shutdown(ctx)
}
