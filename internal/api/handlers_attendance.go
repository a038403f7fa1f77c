// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

package api

import (
	"fmt"
	"net/http"

	"github.com/punchsync/punchsync/internal/models"
)

// defaultSyncLimit is the drain batch size when the request carries no
// ?limit.
const defaultSyncLimit = 1000

// AttendanceSync serves GET /api/attendance/sync: unsynced punches with
// timestamp at or after ?since, newest-first, up to ?limit. This is phase
// one of the drain protocol; the drainer persists the batch before calling
// mark-synced.
func (h *Handler) AttendanceSync(w http.ResponseWriter, r *http.Request) {
	unsynced := false
	filter := models.PunchFilter{
		SyncedToCloud: &unsynced,
		StartDate:     r.URL.Query().Get("since"),
	}
	limit := queryInt(r, "limit", defaultSyncLimit)

	punches := h.store.ListPunches(filter, limit, 0)
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(punches),
		"data":    punches,
	})
}

// AttendanceMarkSynced serves POST /api/attendance/mark-synced: phase two
// of the drain protocol. Unknown ids are ignored so re-marking after a
// drainer crash is a harmless no-op.
func (h *Handler) AttendanceMarkSynced(w http.ResponseWriter, r *http.Request) {
	var req models.MarkSyncedRequest
	if err := decodeBody(r, &req); err != nil || len(req.IDs) == 0 {
		respondError(w, http.StatusBadRequest, "ids array is required")
		return
	}

	if err := h.store.MarkSynced(req.IDs); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Marked %d records as synced", len(req.IDs)),
	})
}

// AttendanceList serves GET /api/attendance with the full filter set plus
// limit/offset windowing.
func (h *Handler) AttendanceList(w http.ResponseWriter, r *http.Request) {
	filter := models.PunchFilter{
		DeviceID:  queryInt64(r, "deviceId"),
		UserID:    r.URL.Query().Get("userId"),
		StartDate: r.URL.Query().Get("startDate"),
		EndDate:   r.URL.Query().Get("endDate"),
	}
	if raw := r.URL.Query().Get("synced"); raw == "true" || raw == "false" {
		synced := raw == "true"
		filter.SyncedToCloud = &synced
	}

	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	punches := h.store.ListPunches(filter, limit, offset)
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(punches),
		"total":   h.store.CountPunches(filter),
		"data":    punches,
	})
}

// AttendanceClear serves DELETE /api/attendance, the administrative purge.
func (h *Handler) AttendanceClear(w http.ResponseWriter, r *http.Request) {
	removed, err := h.store.ClearPunches()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Removed %d records", removed),
		"removed": removed,
	})
}
