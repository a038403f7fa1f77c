// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

package models

// DeviceCreateRequest is the POST /api/devices payload.
type DeviceCreateRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=100"`
	IP       string `json:"ip" validate:"required,ipv4"`
	Port     int    `json:"port" validate:"omitempty,min=1,max=65535"`
	Location string `json:"location" validate:"max=200"`
	Active   *bool  `json:"active"`
}

// DeviceUpdateRequest is the PUT /api/devices/{id} payload. Nil fields are
// left unchanged.
type DeviceUpdateRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=100"`
	IP       *string `json:"ip" validate:"omitempty,ipv4"`
	Port     *int    `json:"port" validate:"omitempty,min=1,max=65535"`
	Location *string `json:"location" validate:"omitempty,max=200"`
	Active   *bool   `json:"active"`
}

// SettingsUpdateRequest is the PUT /api/settings payload. Only the
// enumerated keys are accepted; unknown keys fail the request.
type SettingsUpdateRequest struct {
	APIPort      *int    `json:"apiPort" validate:"omitempty,min=1,max=65535"`
	PollInterval *int    `json:"pollInterval" validate:"omitempty,min=1,max=1440"`
	CloudAPIKey  *string `json:"cloudApiKey" validate:"omitempty,max=512"`
}

// MarkSyncedRequest is the POST /api/attendance/mark-synced payload.
type MarkSyncedRequest struct {
	IDs []int64 `json:"ids"`
}
