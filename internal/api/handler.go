// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

// Package api exposes the agent's HTTP surface: the API-key-gated drain
// endpoints the cloud server polls, device and attendance administration,
// settings, health, metrics, and the websocket event stream.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/punchsync/punchsync/internal/models"
	"github.com/punchsync/punchsync/internal/scheduler"
	"github.com/punchsync/punchsync/internal/store"
	ws "github.com/punchsync/punchsync/internal/websocket"
	"github.com/punchsync/punchsync/internal/zk"
)

// Version is reported by GET /api/health.
const Version = "1.0.0"

// deviceSession is the live-device slice used by the info and user-list
// passthrough endpoints. *zk.Session satisfies it.
type deviceSession interface {
	Connect(ctx context.Context) error
	GetDeviceInfo(ctx context.Context) (zk.DeviceInfo, error)
	GetUsers(ctx context.Context) ([]zk.User, error)
	Disconnect()
}

// Handler carries the dependencies shared by all endpoints.
type Handler struct {
	store    *store.Store
	sched    *scheduler.Scheduler
	hub      *ws.Hub
	validate *validator.Validate

	// newSession dials a live device; tests swap it for a fake.
	newSession func(device models.Device) deviceSession
}

// NewHandler wires the handler set.
func NewHandler(st *store.Store, sched *scheduler.Scheduler, hub *ws.Hub) *Handler {
	return &Handler{
		store:    st,
		sched:    sched,
		hub:      hub,
		validate: validator.New(),
		newSession: func(device models.Device) deviceSession {
			return zk.NewSession(zk.Config{IP: device.IP, Port: device.Port})
		},
	}
}

// Health serves GET /api/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
	})
}

// WebSocket serves GET /api/events/ws, upgrading the subscriber onto the
// event hub.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	ws.ServeWS(h.hub, w, r)
}
