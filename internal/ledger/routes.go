package ledger

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers voucher endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/vouchers", h.List)
	r.Post("/vouchers", h.Create)
	r.Get("/vouchers/{id}", h.Get)
	r.Delete("/vouchers/{id}", h.Delete)
	r.Post("/vouchers/{id}/entries", h.AddEntry)
	r.Post("/vouchers/{id}/post", h.Post)
	r.Post("/vouchers/{id}/unpost", h.Unpost)
}
