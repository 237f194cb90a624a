/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:        Request logging
  2. Recoverer:     Panic recovery (500 instead of crash)
  3. RequestID:     Unique ID per request for tracing
  4. CORS:          Cross-origin requests for frontend
  5. Authenticate:  Bearer token -> Principal (protected groups only)

ROUTE GROUPS:
  /api/register, /api/login   Public
  /api/logout                 Any logged-in caller
  /api/staff/*                Store roster
  /api/attendance             Daily attendance sheet
  /api/reports/*              Monthly payroll summary
  /api/admin/*                Admin operations
  /healthz                    Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Authentication
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.Authenticate)

			r.Post("/logout", h.Logout)
			r.Get("/reports/monthly.xlsx", h.DownloadMonthlyReport)

			// Store routes
			r.Group(func(r chi.Router) {
				r.Use(RequireStore)

				r.Route("/staff", func(r chi.Router) {
					r.Get("/", h.ListStaff)
					r.Post("/", h.CreateStaff)
					r.Delete("/{id}", h.DeleteStaff)
				})

				r.Get("/attendance", h.GetAttendance)
				r.Post("/attendance", h.SubmitAttendance)

				r.Get("/reports/monthly", h.MonthlyReport)
			})

			// Admin routes
			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireAdmin)

				r.Get("/stores", h.ListStores)
				r.Post("/stores/{id}/toggle", h.ToggleStore)
				r.Post("/stores/{id}/password", h.ResetStorePassword)
				r.Post("/attendance/reset", h.ResetAttendance)
				r.Get("/export", h.DownloadExport)
			})
		})
	})

	return r
}
