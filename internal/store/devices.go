// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

package store

import (
	"sort"
	"strings"
	"time"

	"github.com/punchsync/punchsync/internal/models"
)

// DefaultDevicePort is the standard ZK protocol TCP port.
const DefaultDevicePort = 4370

// AddDevice registers a new terminal. The (ip, port) pair must be unique
// across all devices.
func (s *Store) AddDevice(req models.DeviceCreateRequest) (models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	port := req.Port
	if port == 0 {
		port = DefaultDevicePort
	}
	if s.addressTakenLocked(req.IP, port, 0) {
		return models.Device{}, ErrDuplicateAddress
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	s.counters.Device++
	now := time.Now().UTC()
	dev := models.Device{
		ID:        s.counters.Device,
		Name:      req.Name,
		IP:        req.IP,
		Port:      port,
		Location:  req.Location,
		Active:    active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.devices = append(s.devices, dev)

	if err := s.persistLocked(); err != nil {
		return models.Device{}, err
	}
	return dev, nil
}

// GetDevice returns the device with the given id.
func (s *Store) GetDevice(id int64) (models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.deviceIndexLocked(id); i >= 0 {
		return s.devices[i], nil
	}
	return models.Device{}, ErrNotFound
}

// ListDevices returns devices sorted by name. With activeOnly set, only
// active devices are included.
func (s *Store) ListDevices(activeOnly bool) []models.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Device, 0, len(s.devices))
	for _, d := range s.devices {
		if activeOnly && !d.Active {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := strings.Compare(out[i].Name, out[j].Name); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// UpdateDevice applies the non-nil fields of the update and persists.
// (ip, port) uniqueness is re-checked against the merged address.
func (s *Store) UpdateDevice(id int64, req models.DeviceUpdateRequest) (models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.deviceIndexLocked(id)
	if i < 0 {
		return models.Device{}, ErrNotFound
	}
	dev := s.devices[i]

	if req.Name != nil {
		dev.Name = *req.Name
	}
	if req.IP != nil {
		dev.IP = *req.IP
	}
	if req.Port != nil {
		dev.Port = *req.Port
	}
	if req.Location != nil {
		dev.Location = *req.Location
	}
	if req.Active != nil {
		dev.Active = *req.Active
	}

	if s.addressTakenLocked(dev.IP, dev.Port, id) {
		return models.Device{}, ErrDuplicateAddress
	}

	dev.UpdatedAt = time.Now().UTC()
	s.devices[i] = dev

	if err := s.persistLocked(); err != nil {
		return models.Device{}, err
	}
	return dev, nil
}

// SetDeviceLastSync stamps the last successful pull time.
func (s *Store) SetDeviceLastSync(id int64, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.deviceIndexLocked(id)
	if i < 0 {
		return ErrNotFound
	}
	ts = ts.UTC()
	s.devices[i].LastSync = &ts
	s.devices[i].UpdatedAt = ts
	return s.persistLocked()
}

// DeleteDevice removes the device. Its punches and sync logs are kept;
// they still carry the historical deviceId. A device with a live session
// (held by the scheduler or a live passthrough endpoint) cannot be
// deleted until the session releases it.
func (s *Store) DeleteDevice(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.deviceIndexLocked(id)
	if i < 0 {
		return ErrNotFound
	}
	if s.liveSessions[id] > 0 {
		return ErrDeviceBusy
	}
	s.devices = append(s.devices[:i], s.devices[i+1:]...)
	return s.persistLocked()
}

// BeginDeviceSession marks a live session against the device and returns
// its current record. While at least one session is held, DeleteDevice
// fails with ErrDeviceBusy. Every successful call must be paired with
// EndDeviceSession.
func (s *Store) BeginDeviceSession(id int64) (models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.deviceIndexLocked(id)
	if i < 0 {
		return models.Device{}, ErrNotFound
	}
	s.liveSessions[id]++
	return s.devices[i], nil
}

// EndDeviceSession releases a live session taken with BeginDeviceSession.
func (s *Store) EndDeviceSession(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := s.liveSessions[id]; n > 1 {
		s.liveSessions[id] = n - 1
	} else {
		delete(s.liveSessions, id)
	}
}

// deviceIndexLocked returns the slice index for id, or -1.
func (s *Store) deviceIndexLocked(id int64) int {
	for i := range s.devices {
		if s.devices[i].ID == id {
			return i
		}
	}
	return -1
}

// addressTakenLocked reports whether (ip, port) belongs to a device other
// than excludeID.
func (s *Store) addressTakenLocked(ip string, port int, excludeID int64) bool {
	for i := range s.devices {
		if s.devices[i].ID == excludeID {
			continue
		}
		if s.devices[i].IP == ip && s.devices[i].Port == port {
			return true
		}
	}
	return false
}
