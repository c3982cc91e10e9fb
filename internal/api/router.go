// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nightowl-live/nightowl/internal/middleware"
)

// Router builds the HTTP routing tree.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Prometheus)

	if len(h.cfg.Security.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.cfg.Security.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(
			h.cfg.Security.RateLimitRequests,
			h.cfg.Security.RateLimitWindow,
		))

		r.Route("/pipeline", func(r chi.Router) {
			r.With(h.requireTriggerAuth).Post("/run", h.TriggerRun)
			r.Get("/last-run", h.LastRun)
		})

		r.Get("/feed/calendar.ics", h.CalendarFeed)

		r.Route("/rankings", func(r chi.Router) {
			r.Get("/overall", h.RankingsOverall)
			r.Get("/{tag}", h.RankingsTier)
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/", h.ListEvents)
			r.Post("/batch", h.BatchEvents)
			r.Get("/{id}/similar", h.SimilarEvents)
		})

		r.Get("/health/live", h.HealthLive)
		r.Get("/health/ready", h.HealthReady)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
