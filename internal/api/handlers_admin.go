// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

package api

import (
	"net/http"

	"github.com/punchsync/punchsync/internal/models"
)

// maskedKey stands in for the configured cloud API key in settings reads.
const maskedKey = "********"

// Stats serves GET /api/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    h.store.Stats(),
	})
}

// SyncLogs serves GET /api/sync-logs, newest-first.
func (h *Handler) SyncLogs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	logs := h.store.ListSyncLogs(limit)
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(logs),
		"data":    logs,
	})
}

// SchedulerStatus serves GET /api/scheduler.
func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    h.sched.Status(),
	})
}

// SettingsGet serves GET /api/settings with the cloud API key masked.
func (h *Handler) SettingsGet(w http.ResponseWriter, r *http.Request) {
	settings := h.store.Settings()
	if settings.CloudAPIKey != "" {
		settings.CloudAPIKey = maskedKey
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "data": settings})
}

// SettingsUpdate serves PUT /api/settings. Only the enumerated keys are
// accepted; an unknown key fails the whole request. A pollInterval change
// re-arms the scheduler timer immediately; apiPort takes effect on the
// next start.
func (h *Handler) SettingsUpdate(w http.ResponseWriter, r *http.Request) {
	var req models.SettingsUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "unknown or malformed settings key")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	settings := h.store.Settings()
	if req.APIPort != nil {
		settings.APIPort = *req.APIPort
	}
	if req.PollInterval != nil {
		settings.PollInterval = *req.PollInterval
	}
	if req.CloudAPIKey != nil {
		settings.CloudAPIKey = *req.CloudAPIKey
	}

	if err := h.store.SetSettings(settings); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if req.PollInterval != nil {
		h.sched.SetInterval(*req.PollInterval)
	}

	masked := settings
	if masked.CloudAPIKey != "" {
		masked.CloudAPIKey = maskedKey
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "data": masked})
}
