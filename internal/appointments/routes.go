package appointments

import "github.com/go-chi/chi/v5"

// MountRoutes registers appointment endpoints on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/appointments", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Show)
		r.Post("/{id}/accept", h.Accept)
		r.Post("/{id}/reschedule", h.Reschedule)
		r.Post("/{id}/complete", h.Complete)
		r.Post("/{id}/no-show", h.NoShow)
		r.Post("/{id}/cancel", h.Cancel)
	})
}
