package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fisschl/auth/internal/service"
	"github.com/fisschl/auth/pkg/health"
	"github.com/fisschl/auth/pkg/middleware"
)

// NewRouter creates a chi router with all auth service routes registered.
func NewRouter(
	users *service.Users,
	sessions *service.Sessions,
	environment string,
	healthHandler *health.Handler,
	logger *slog.Logger,
	corsConfig CORSConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CORS(corsConfig))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing("auth"))
	r.Use(middleware.PrometheusMetrics("auth"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	authHandler := NewAuthHandler(users, environment, logger)
	userHandler := NewUserHandler(users)

	// Public session endpoints
	r.Route("/api/user", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)

		// Authenticated endpoints
		r.Group(func(r chi.Router) {
			r.Use(RequireUser(sessions))

			r.Post("/logout", authHandler.Logout)
			r.Get("/", userHandler.Get)
			r.Put("/", userHandler.Update)
			r.Delete("/", userHandler.Delete)
		})
	})

	return r
}
