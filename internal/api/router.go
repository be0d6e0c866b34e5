// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/riskgate/riskgate/internal/config"
	"github.com/riskgate/riskgate/internal/middleware"
)

// NewRouter builds the full HTTP routing tree.
func NewRouter(cfg config.ServerConfig, h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)
		if cfg.RateLimitReqs > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimitReqs, cfg.RateLimitWindow))
		}

		r.Post("/analyze", h.Analyze)
		for segment, detector := range signalRoutes {
			r.Post("/analyze/"+segment, h.AnalyzeSignal(detector))
		}

		r.Route("/events", func(r chi.Router) {
			r.Post("/failed-login", h.RecordFailedLogin)
			r.Post("/registration", h.RecordRegistration)
		})

		r.Get("/health", h.HealthLive)
		r.Get("/health/live", h.HealthLive)
		r.Get("/health/ready", h.HealthReady)
	})

	r.Handle("/metrics", promhttp.Handler())

	// Non-enveloped 404 would leak the default chi body; keep the JSON
	// envelope on unknown routes too.
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		NewResponseWriter(w, req).NotFound("resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		NewResponseWriter(w, req).Error(http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
	})

	return r
}
