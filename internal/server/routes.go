package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/astrowidget/astroproxy/internal/observability"
	"github.com/astrowidget/astroproxy/internal/server/handlers"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	sessions := handlers.Sessions{Cookie: s.opts.SessionCookie}

	s.router.Route("/v1", func(r chi.Router) {
		r.Method("POST", "/horoscope", &handlers.HoroscopeHandler{
			Pipeline:     s.opts.Pipeline,
			ClientKeys:   s.opts.ClientKeys,
			Sessions:     sessions,
			MaxBodyBytes: s.opts.MaxBodyBytes,
		})
		r.Method("GET", "/nonce", &handlers.NonceHandler{
			Gate:       s.opts.Gate,
			ClientKeys: s.opts.ClientKeys,
			Sessions:   sessions,
		})
	})

	if !s.opts.DisableHealth {
		s.router.Get("/health", handlers.HealthHandler)
		s.router.Get("/health/live", handlers.LivenessHandler)
		s.router.Get("/health/ready", handlers.ReadinessHandler)
		s.router.Get("/health/startup", handlers.StartupHandler)
	}

	s.router.Get("/version", handlers.VersionHandler)

	// Metrics endpoint (in server package to access HandleError)
	s.router.Get("/metrics", MetricsHandler)

	s.registerAdminEndpoint()
}

// registerAdminEndpoint registers the signal endpoint when an admin token
// is configured.
func (s *Server) registerAdminEndpoint() {
	logger := observability.ServerLogger
	if s.opts.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no admin token set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.opts.AdminToken,
		RateLimit: 10,  // 10 requests per minute
		RateBurst: 5,   // burst size
		Manager:   nil, // use default global manager
	})

	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("auth", "bearer token"),
			zap.String("rate_limit", "10/min, burst 5"))
		logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
	}
}
