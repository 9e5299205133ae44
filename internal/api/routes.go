package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RealIP)
	r.Use(TracingMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Get("/readyz", h.Ready)
	r.Post("/updatez", h.Update)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/catalog", h.Catalog)
	r.Get("/algorithms", h.Algorithms)
	r.Get("/search/{dataset}", h.Search)
	r.Post("/match/{dataset}", h.Match)
	r.Get("/suggest/{dataset}", h.Suggest)
	r.Get("/entities/{id}", h.Entity)
	r.Get("/entities/{id}/adjacent", h.Adjacent)
	r.Get("/entities/{id}/adjacent/{prop}", h.Adjacent)

	return r
}
