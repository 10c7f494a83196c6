package contacts

import "github.com/go-chi/chi/v5"

// MountRoutes registers contact endpoints on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/contacts", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/duplicates", h.Duplicates)
		r.Get("/duplicates/live", h.LiveDuplicates)
		r.Get("/{id}", h.Show)
		r.Put("/{id}", h.Update)
	})
}
