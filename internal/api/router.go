package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (s *Server) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.instrument)

	r.Get("/metrics", s.metrics.Handler().ServeHTTP)
	r.Get("/api/health", s.handleHealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Post("/session", s.handleLoadSession)
		r.Get("/session", s.handleSessionSummary)
		r.Post("/events", s.handlePageEvent)

		r.Get("/records", s.handleRecords)
		r.Post("/sort", s.handleSort)

		r.Post("/aggregate", s.handleStartAggregation)
		r.Get("/aggregate/status", s.handleAggregationStatus)
		r.Post("/aggregate/cancel", s.handleCancelAggregation)

		r.Get("/columns", s.handleColumnVisibility)
		r.Post("/columns", s.handleToggleColumn)
		r.Post("/columns/bulk", s.handleBulkColumns)

		r.Get("/export", s.handleExport)
	})

	return r
}
