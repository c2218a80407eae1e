package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/eric2umeh/frontbill/internal/middleware"
)

// NewRouter wires the HTTP routes of the frontbill API. Registration and
// login are public; everything else requires the auth cookie.
func NewRouter(h *Handler, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger(logger))
	r.Use(middleware.GzipMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Post("/staff/register", h.Register)
		r.Post("/staff/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/ledger/entries", h.AppendEntry)
			r.Get("/ledger/outstanding", h.GetOutstanding)

			r.Route("/accounts/{type}/{id}", func(r chi.Router) {
				r.Get("/balance", h.GetBalance)
				r.Get("/summary", h.GetSummary)
				r.Get("/statement", h.GetStatement)
			})

			r.Post("/organizations", h.CreateOrganization)
			r.Get("/organizations/{id}", h.GetOrganization)

			r.Get("/shifts/expected", h.ExpectedTotals)
			r.Post("/shifts/reconcile", h.Reconcile)
			r.Get("/reconciliations", h.ListReconciliations)
			r.Get("/reconciliations/{id}", h.GetReconciliation)
			r.Post("/reconciliations/{id}/approve", h.Approve)

			r.Get("/night-audit", h.NightAudit)
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
