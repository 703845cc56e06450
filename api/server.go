/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/entries/*    Catalog management
  /api/accounts/*   Membership management
  /api/loans/*      Borrow/return/extend/reserve
  /api/admin/*      Sweeps, reminders, policy view

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Catalog routes
		r.Route("/entries", func(r chi.Router) {
			r.Get("/", h.ListEntries)
			r.Post("/", h.AddEntry)
			r.Get("/{id}", h.GetEntry)
			r.Delete("/{id}", h.RemoveEntry)
			r.Post("/{id}/restrict", h.RestrictEntry)
			r.Post("/{id}/unrestrict", h.UnrestrictEntry)
			r.Post("/{id}/condition", h.SetCondition)
		})

		// Account routes
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.RegisterAccount)
			r.Get("/{id}", h.GetAccount)
			r.Delete("/{id}", h.RemoveAccount)
			r.Get("/{id}/loans", h.AccountLoans)
			r.Get("/{id}/inbox", h.AccountInbox)
			r.Post("/{id}/suspend", h.SuspendAccount)
			r.Post("/{id}/unsuspend", h.UnsuspendAccount)
			r.Post("/{id}/loan-cap", h.SetLoanCap)
		})

		// Loan routes
		r.Route("/loans", func(r chi.Router) {
			r.Post("/borrow", h.Borrow)
			r.Post("/return", h.Return)
			r.Post("/reserve", h.Reserve)
			r.Get("/overdue", h.ListOverdue)
			r.Get("/{id}", h.GetLoan)
			r.Post("/{id}/extend", h.ExtendLoan)
			r.Post("/{id}/cancel", h.CancelReservation)
			r.Post("/{id}/force-return", h.ForceReturn)
			r.Post("/{id}/waive-fees", h.WaiveFees)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/sweep", h.RunSweep)
			r.Post("/reminders", h.RunReminders)
			r.Get("/policy", h.GetPolicy)
		})
	})

	return r
}
