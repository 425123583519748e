package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"opdo-sim/internal/config"
	"opdo-sim/internal/handlers"
	"opdo-sim/internal/observability"
	"opdo-sim/internal/simulation"
)

// NewRouter wires the middleware stack and mounts /health, /metrics and
// POST /simulate. Any origin may call the API.
func NewRouter(sim *simulation.Handler, rl config.RateLimitConfig) http.Handler {

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{observability.RequestIDHeader},
		MaxAge:         300,
	}))
	r.Use(observability.RequestIDMiddleware)
	r.Use(observability.TracingMiddleware)
	r.Use(observability.LoggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", handlers.Health)

	r.Handle("/metrics", observability.PrometheusHandler())

	simulation.RegisterRoutes(r, sim, rateLimiter(rl)...)

	return r
}

func rateLimiter(rl config.RateLimitConfig) []func(http.Handler) http.Handler {
	if rl.Requests <= 0 || rl.Window <= 0 {
		return nil
	}
	return []func(http.Handler) http.Handler{
		httprate.Limit(rl.Requests, rl.Window,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				handlers.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			}),
		),
	}
}
