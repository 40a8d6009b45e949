package api

import "github.com/go-chi/chi/v5"

// Register attaches every route to the router. Middleware is the caller's
// business; tests mount these routes bare.
func (h *Handlers) Register(r chi.Router) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/track", h.TrackProduct)
		r.Get("/price-intelligence", h.PriceIntelligence)
		r.Get("/live-price", h.LivePrice)
		r.Get("/price-stats", h.PriceStats)
		r.Get("/products", h.ListProducts)
		r.Get("/products/{asin}/history", h.ProductHistory)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/jobs/refresh", h.StartRefreshJob)
			r.Post("/jobs/discovery", h.StartDiscoveryJob)
			r.Get("/jobs/{id}", h.GetJobRun)
			r.Get("/status", h.AdminStatus)
		})
	})
}
