// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter assembles the full route tree.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	// global middleware, applied to every route in order
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(CORSHandler()) // must be global so OPTIONS preflight is answered everywhere

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Use(MetricsMiddleware)
		r.Use(RateLimiter(300, time.Minute))

		r.Get("/health", h.Health)
		r.Get("/events/ws", h.WebSocket)

		r.Route("/attendance", func(r chi.Router) {
			// drain surface polled by the cloud server
			r.Group(func(r chi.Router) {
				r.Use(RequireAPIKey(h.store))
				r.Get("/sync", h.AttendanceSync)
				r.Post("/mark-synced", h.AttendanceMarkSynced)
			})

			r.Get("/", h.AttendanceList)
			r.Delete("/", h.AttendanceClear)
		})

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", h.DeviceList)
			r.Post("/", h.DeviceCreate)
			r.Get("/{id}", h.DeviceGet)
			r.Put("/{id}", h.DeviceUpdate)
			r.Delete("/{id}", h.DeviceDelete)
			r.Post("/{id}/sync", h.DeviceSync)
			r.Get("/{id}/info", h.DeviceInfo)
			r.Get("/{id}/users", h.DeviceUsers)
		})

		r.Post("/sync", h.SyncAll)
		r.Get("/sync-logs", h.SyncLogs)
		r.Get("/stats", h.Stats)
		r.Get("/scheduler", h.SchedulerStatus)
		r.Get("/settings", h.SettingsGet)
		r.Put("/settings", h.SettingsUpdate)
	})

	return r
}
