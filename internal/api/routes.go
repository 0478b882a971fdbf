package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://app.brightgive.org", "http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (no auth required)
	r.Get("/health", h.HealthCheck)

	r.Route("/api/organizations/{orgID}", func(r chi.Router) {
		r.Get("/schedule-settings", h.GetScheduleSettings)
		r.Put("/schedule-settings", h.PutScheduleSettings)

		r.Route("/campaigns/{campaignID}", func(r chi.Router) {
			r.Post("/launch", h.Launch)
			r.Post("/mark-ready", h.MarkReady)
			r.Post("/schedule-send", h.ScheduleSend)
			r.Post("/pause", h.Pause)
			r.Post("/resume", h.Resume)
			r.Post("/cancel", h.Cancel)
			r.Get("/schedule-status", h.ScheduleStatus)
		})
	})

	return r
}
