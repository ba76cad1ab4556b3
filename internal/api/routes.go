package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the router with the engine's command surface.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/campaigns/{id}", func(r chi.Router) {
			r.Post("/start", h.campaignAction(h.campaigns.Start))
			r.Post("/pause", h.campaignAction(h.campaigns.Pause))
			r.Post("/resume", h.campaignAction(h.campaigns.Resume))
			r.Post("/cancel", h.campaignAction(h.campaigns.Cancel))
			r.Get("/warmup", h.GetWarmupPlan)
			r.Post("/warmup/skip-today", h.campaignAction(h.campaigns.SkipToday))
			r.Post("/warmup/adjust-today", h.AdjustToday)
		})

		r.Post("/outcomes", h.IngestOutcomes)

		r.Route("/domains/{id}", func(r chi.Router) {
			r.Get("/reputation", h.GetReputation)
			r.Post("/verify-dns", h.VerifyDNS)
		})

		r.Post("/lists/{id}/verify", h.VerifyList)
	})

	return r
}
