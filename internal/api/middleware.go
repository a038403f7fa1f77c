// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/punchsync/punchsync/internal/metrics"
	"github.com/punchsync/punchsync/internal/models"
)

// CORSHandler allows any origin: the agent serves a local UI and a cloud
// drainer whose origins are not known in advance. Preflight OPTIONS
// requests return 200 from here.
func CORSHandler() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", "X-API-Key"},
		MaxAge:         86400,
	})
}

// RateLimiter bounds each client IP to requests per window.
func RateLimiter(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requests, window)
}

// settingsReader is the slice of the store the API-key gate needs.
type settingsReader interface {
	Settings() models.Settings
}

// RequireAPIKey gates the drain endpoints on the X-API-Key header. The
// configured key is re-read from settings on every request so a key
// rotation applies without restart. Comparison is constant-time over
// SHA-256 digests.
func RequireAPIKey(settings settingsReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-API-Key")
			if provided == "" {
				respondError(w, http.StatusUnauthorized, "API key required. Provide the X-API-Key header")
				return
			}

			configured := settings.Settings().CloudAPIKey
			if configured == "" {
				respondError(w, http.StatusServiceUnavailable, "API key not configured on this agent")
				return
			}

			providedSum := sha256.Sum256([]byte(provided))
			configuredSum := sha256.Sum256([]byte(configured))
			if subtle.ConstantTimeCompare(providedSum[:], configuredSum[:]) != 1 {
				respondError(w, http.StatusForbidden, "Invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// MetricsMiddleware records request latency by route pattern and status.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(route, strconv.Itoa(ww.Status())).
			Observe(time.Since(start).Seconds())
	})
}
