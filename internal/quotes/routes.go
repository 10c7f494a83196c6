package quotes

import "github.com/go-chi/chi/v5"

// MountRoutes registers quote endpoints on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/quotes", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Post("/validate", h.Validate)
		r.Get("/{id}", h.Show)
		r.Put("/{id}/items", h.ReplaceItems)
		r.Post("/{id}/send", h.Transition(StatusSent))
		r.Post("/{id}/accept", h.Transition(StatusAccepted))
		r.Post("/{id}/reject", h.Transition(StatusRejected))
		r.Post("/{id}/cancel", h.Transition(StatusCancelled))
	})
}
