// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

// Package models defines the core domain types shared across the store,
// scheduler, HTTP API, and websocket layers.
package models

import (
	"fmt"
	"time"
)

// Device is a registered biometric terminal.
type Device struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Location string `json:"location,omitempty"`
	Active   bool   `json:"active"`

	// LastSync is the time of the last successful pull, nil until the first
	// sweep reaches the device.
	LastSync  *time.Time `json:"lastSync,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Punch status values as reported by the terminal.
const (
	PunchStatusCheckIn     = 0
	PunchStatusCheckOut    = 1
	PunchStatusBreakOut    = 2
	PunchStatusBreakIn     = 3
	PunchStatusOvertimeIn  = 4
	PunchStatusOvertimeOut = 5
)

// Punch is one biometric attendance event pulled from a device.
//
// The three oderId fields are opaque 16-bit ordinals echoed from the
// device's 40-byte record format; together with deviceId, userId and
// timestamp they form the natural key used for de-duplication.
type Punch struct {
	ID       int64  `json:"id"`
	DeviceID int64  `json:"deviceId"`
	OderID   uint16 `json:"oderId"`
	OderID2  uint16 `json:"oderId2"`
	OderID3  uint16 `json:"oderId3"`
	UserID   string `json:"userId"`

	// Timestamp is second resolution, stored as UTC. See zk.Timestamp.Time
	// for how the device's wall clock maps onto it.
	Timestamp time.Time `json:"timestamp"`

	// Status is the event kind (check-in/out, break, overtime); values
	// outside the known constants are preserved as-is.
	Status uint8 `json:"status"`

	// Punch is the verification method (fingerprint/card/password), opaque
	// to this agent.
	Punch uint8 `json:"punch"`

	SyncedToCloud bool      `json:"syncedToCloud"`
	CreatedAt     time.Time `json:"createdAt"`
}

// NaturalKey returns the composite de-duplication key for the punch.
func (p *Punch) NaturalKey() string {
	return fmt.Sprintf("%d|%d|%d|%d|%s|%d",
		p.DeviceID, p.OderID, p.OderID2, p.OderID3, p.UserID, p.Timestamp.Unix())
}

// Sync log status values.
const (
	SyncLogStatusSuccess = "success"
	SyncLogStatusError   = "error"
)

// SyncLog is a per-sweep, per-device audit row. The store ring-buffers these
// to the most recent 1,000 entries.
type SyncLog struct {
	ID           int64     `json:"id"`
	DeviceID     int64     `json:"deviceId"`
	Type         string    `json:"type"`
	RecordsAdded int       `json:"recordsAdded"`
	Status       string    `json:"status"`
	Message      string    `json:"message,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// SyncResult is the per-device outcome of one sweep, reported through the
// scheduler's result slice and the device-synced event.
type SyncResult struct {
	DeviceID     int64  `json:"deviceId"`
	DeviceName   string `json:"deviceName"`
	Success      bool   `json:"success"`
	RecordsAdded int    `json:"recordsAdded"`
	TotalRecords int    `json:"totalRecords"`
	Error        string `json:"error,omitempty"`
}

// Stats is the aggregate store snapshot served by GET /api/stats.
type Stats struct {
	TotalDevices  int   `json:"totalDevices"`
	ActiveDevices int   `json:"activeDevices"`
	TotalPunches  int64 `json:"totalPunches"`
	TodayPunches  int64 `json:"todayPunches"`
	UnsyncedCount int64 `json:"unsyncedCount"`
}

// Settings holds the enumerated process-wide configuration keys the core
// reads. Unknown keys are rejected at the API boundary.
type Settings struct {
	APIPort      int    `json:"apiPort"`
	PollInterval int    `json:"pollInterval"`
	CloudAPIKey  string `json:"cloudApiKey,omitempty"`
}

// DefaultSettings returns the documented defaults: port 3000, five-minute
// poll interval, no cloud API key configured.
func DefaultSettings() Settings {
	return Settings{
		APIPort:      3000,
		PollInterval: 5,
	}
}

// PunchFilter narrows punch listing and counting queries. Zero values mean
// "no constraint". StartDate/EndDate compare inclusively against the
// ISO-8601 form of the punch timestamp.
type PunchFilter struct {
	DeviceID      int64
	UserID        string
	StartDate     string
	EndDate       string
	SyncedToCloud *bool
}
