// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

package api

import (
	"errors"
	"net/http"

	"github.com/punchsync/punchsync/internal/models"
	"github.com/punchsync/punchsync/internal/store"
)

// DeviceList serves GET /api/devices. ?active=true narrows to active
// devices, the same set the scheduler sweeps.
func (h *Handler) DeviceList(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	devices := h.store.ListDevices(activeOnly)
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(devices),
		"data":    devices,
	})
}

// DeviceCreate serves POST /api/devices.
func (h *Handler) DeviceCreate(w http.ResponseWriter, r *http.Request) {
	var req models.DeviceCreateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	device, err := h.store.AddDevice(req)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateAddress) {
			respondError(w, http.StatusConflict, "a device with this ip and port already exists")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"success": true, "data": device})
}

// DeviceGet serves GET /api/devices/{id}.
func (h *Handler) DeviceGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid device id")
		return
	}

	device, err := h.store.GetDevice(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "device not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "data": device})
}

// DeviceUpdate serves PUT /api/devices/{id}.
func (h *Handler) DeviceUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid device id")
		return
	}

	var req models.DeviceUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	device, err := h.store.UpdateDevice(id, req)
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "device not found")
	case errors.Is(err, store.ErrDuplicateAddress):
		respondError(w, http.StatusConflict, "a device with this ip and port already exists")
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
	default:
		respondJSON(w, http.StatusOK, map[string]any{"success": true, "data": device})
	}
}

// DeviceDelete serves DELETE /api/devices/{id}.
func (h *Handler) DeviceDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid device id")
		return
	}

	err := h.store.DeleteDevice(id)
	switch {
	case errors.Is(err, store.ErrDeviceBusy):
		respondError(w, http.StatusConflict, "device has a sync in progress")
		return
	case err != nil:
		respondError(w, http.StatusNotFound, "device not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Device deleted"})
}

// DeviceSync serves POST /api/devices/{id}/sync, the ad-hoc single-device
// poll that runs outside the sweep's single-flight guard.
func (h *Handler) DeviceSync(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid device id")
		return
	}

	result, err := h.sched.SyncOne(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusNotFound, "device not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "data": result})
}

// SyncAll serves POST /api/sync, triggering a full sweep. A sweep already
// in progress yields an empty result set.
func (h *Handler) SyncAll(w http.ResponseWriter, r *http.Request) {
	results := h.sched.SyncAll(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(results),
		"data":    results,
	})
}

// DeviceInfo serves GET /api/devices/{id}/info, a live passthrough to the
// terminal's identification attributes.
func (h *Handler) DeviceInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid device id")
		return
	}
	device, err := h.store.BeginDeviceSession(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "device not found")
		return
	}
	defer h.store.EndDeviceSession(id)

	session := h.newSession(device)
	if err := session.Connect(r.Context()); err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	defer session.Disconnect()

	info, err := session.GetDeviceInfo(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "data": info})
}

// DeviceUsers serves GET /api/devices/{id}/users, reading the terminal's
// user table live.
func (h *Handler) DeviceUsers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid device id")
		return
	}
	device, err := h.store.BeginDeviceSession(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "device not found")
		return
	}
	defer h.store.EndDeviceSession(id)

	session := h.newSession(device)
	if err := session.Connect(r.Context()); err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	defer session.Disconnect()

	users, err := session.GetUsers(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(users),
		"data":    users,
	})
}
