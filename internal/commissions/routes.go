package commissions

import "github.com/go-chi/chi/v5"

// MountRoutes registers commission endpoints on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/commissions", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/tiers", h.Tiers)
		r.Post("/resolve", h.Resolve)
		r.Post("/generate", h.Generate)
		r.Get("/{id}", h.Show)
		r.Post("/{id}/pay", h.Pay)
		r.Post("/{id}/cancel", h.Cancel)
	})
}
