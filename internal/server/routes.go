package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/namelens/octolens/internal/errors"
	"github.com/namelens/octolens/internal/observability"
	"github.com/namelens/octolens/internal/server/handlers"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	s.router.Get("/health", s.health.HealthHandler)
	s.router.Get("/health/live", s.health.LivenessHandler)
	s.router.Get("/health/ready", s.health.ReadinessHandler)

	s.router.Get("/version", handlers.VersionHandler)

	s.router.Get("/metrics", s.metricsHandler)

	gh := &handlers.GitHubHandlers{Client: s.deps.GitHub, Store: s.deps.RateLimits}
	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/emojis", gh.Emojis)
		r.Get("/rate-limit", gh.RateLimit)
	})
}

// metricsHandler serves the Prometheus registry, or a 503 envelope when
// metrics are disabled.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.deps.MetricsEnabled {
		HandleError(w, r, apperrors.NewServiceUnavailableError("metrics are disabled"))
		return
	}
	observability.MetricsHandler().ServeHTTP(w, r)
}
