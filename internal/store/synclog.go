// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

package store

import (
	"time"

	"github.com/punchsync/punchsync/internal/models"
)

// AddSyncLog appends an audit row, trimming the ring to the newest 1,000
// entries.
func (s *Store) AddSyncLog(entry models.SyncLog) (models.SyncLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters.SyncLog++
	entry.ID = s.counters.SyncLog
	if entry.Type == "" {
		entry.Type = "pull"
	}
	entry.CreatedAt = time.Now().UTC()

	s.syncLogs = append(s.syncLogs, entry)
	if len(s.syncLogs) > syncLogCap {
		s.syncLogs = s.syncLogs[len(s.syncLogs)-syncLogCap:]
	}

	if err := s.persistLocked(); err != nil {
		return models.SyncLog{}, err
	}
	return entry, nil
}

// ListSyncLogs returns up to limit audit rows, newest-first. A limit of 0
// returns all retained rows.
func (s *Store) ListSyncLogs(limit int) []models.SyncLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.syncLogs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.SyncLog, 0, n)
	for i := len(s.syncLogs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.syncLogs[i])
	}
	return out
}

// Stats aggregates the store counters served by GET /api/stats.
func (s *Store) Stats() models.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.Stats{
		TotalDevices: len(s.devices),
		TotalPunches: int64(len(s.punches)),
	}
	for i := range s.devices {
		if s.devices[i].Active {
			stats.ActiveDevices++
		}
	}

	todayStart := time.Now().UTC().Truncate(24 * time.Hour)
	for i := range s.punches {
		p := &s.punches[i]
		if !p.SyncedToCloud {
			stats.UnsyncedCount++
		}
		if !p.Timestamp.Before(todayStart) {
			stats.TodayPunches++
		}
	}
	return stats
}
