/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/entries/*        Ledger writes and history
  /api/habits/*         Goal definitions, streaks, freezes
  /api/dashboard        Monthly read model
  /api/categories       Category labels
  /api/admin/*          Freeze run, reconciliation

SECURITY NOTE:
  Identity is a trusted X-User-ID header. Authentication middleware is an
  external collaborator; all endpoints here assume the header is resolved.

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
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Entry routes (ledger writes)
		r.Route("/entries", func(r chi.Router) {
			r.Get("/", h.ListEntries)
			r.Post("/", h.CreateEntry)
			r.Put("/{id}", h.UpdateEntry)
			r.Delete("/{id}", h.DeleteEntry)
		})

		// Habit routes (definitions and per-habit reads)
		r.Route("/habits", func(r chi.Router) {
			r.Get("/", h.ListHabits)
			r.Get("/{id}/entries", h.ListHabitEntries)
			r.Get("/{id}/streak", h.GetStreak)
			r.Post("/{id}/freeze", h.ApplyFreeze)
		})

		// Dashboard read model
		r.Get("/dashboard", h.GetDashboard)

		// Category routes
		r.Get("/categories", h.ListCategories)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/freeze-run", h.RunAutoFreeze)
			r.Post("/reconcile", h.Reconcile)
		})
	})

	return r
}
