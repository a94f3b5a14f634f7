package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/iva2004/alina-bot/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware транспортного слоя.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Group(func(r chi.Router) {
		r.Use(h.webhookAuth.Middleware)

		r.Post("/api/updates", h.HandleUpdate)

		r.Route("/api/panel", func(r chi.Router) {
			r.Get("/orders", h.GetOrders)
			r.Get("/orders/track", h.GetOrderByTrack)
			r.Get("/counters", h.GetCounters)
			r.Get("/stats", h.GetStats)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
