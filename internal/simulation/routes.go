package simulation

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the simulation endpoint. Extra middlewares, such as
// a rate limiter, wrap only this route.
func RegisterRoutes(r chi.Router, h *Handler, middlewares ...func(http.Handler) http.Handler) {
	r.With(middlewares...).Post("/simulate", h.Simulate)
}
