package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"lotusflow/studiosync/internal/api"
	"lotusflow/studiosync/internal/logging"
	"lotusflow/studiosync/internal/middleware"
)

// RegisterRoutes builds the chi router for the device core's local API
func RegisterRoutes(deps *api.Dependencies, upSince time.Time) http.Handler {
	r := chi.NewRouter()

	// global middleware
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.MetricsMiddleware(deps.Metrics))
	r.Use(middleware.RateLimitMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "capacitor://*", "app://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	logging.Info("Router initialized with metrics and rate-limit middleware")

	r.Get("/healthCheck", api.HealthCheckHandler(deps.DB, deps.Monitor, upSince))

	entityHandlers := api.NewEntityHandlers(deps.Store)
	syncHandlers := api.NewSyncHandlers(deps.Engine, deps.Conflicts)

	RegisterAPIRoutes(r, entityHandlers, syncHandlers)

	return r
}
