// ZeroERP - Inventory, Orders, and Billing for Small Teams
// Copyright 2026 Aren Garro (Aren-Garro)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Aren-Garro/ZeroERP

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig carries the security knobs for the HTTP surface.
type RouterConfig struct {
	CORSOrigins     []string
	RateLimitReqs   int
	RateLimitWindow time.Duration
}

// NewRouter builds the chi router over the handler set.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		// The WebSocket endpoint sits outside the rate limiter: one
		// long-lived connection, not request traffic.
		r.Get("/ws", h.WebSocket)

		r.Group(func(r chi.Router) {
			if cfg.RateLimitReqs > 0 {
				r.Use(httprate.LimitByIP(cfg.RateLimitReqs, cfg.RateLimitWindow))
			}
			r.Use(prometheusMetrics)

			r.Route("/webhooks", func(r chi.Router) {
				r.Get("/", h.ListWebhooks)
				r.Post("/", h.RegisterWebhook)
				r.Delete("/{id}", h.RemoveWebhook)
				r.Post("/{id}/test", h.TestWebhook)
			})

			r.Post("/events", h.EmitEvent)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
