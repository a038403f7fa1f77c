// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

package store

import (
	"sort"
	"time"

	"github.com/punchsync/punchsync/internal/models"
)

// AddPunch inserts one punch, returning 1 when inserted and 0 when the
// natural key already exists.
func (s *Store) AddPunch(p models.Punch) (int, error) {
	n, err := s.AddPunchesBulk([]models.Punch{p})
	return n, err
}

// AddPunchesBulk inserts a batch atomically and returns the count actually
// inserted. Duplicates, both against existing rows and within the batch,
// are ignored silently. Readers never observe a partial batch: the state is
// swapped in under the write lock and flushed once.
func (s *Store) AddPunchesBulk(records []models.Punch) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	now := time.Now().UTC()
	for i := range records {
		p := records[i]
		key := p.NaturalKey()
		if _, dup := s.punchKeys[key]; dup {
			continue
		}

		s.counters.Punch++
		p.ID = s.counters.Punch
		p.Timestamp = p.Timestamp.UTC()
		p.SyncedToCloud = false
		p.CreatedAt = now

		s.punches = append(s.punches, p)
		s.punchKeys[key] = p.ID
		inserted++
	}

	if inserted == 0 {
		return 0, nil
	}
	if err := s.persistLocked(); err != nil {
		return inserted, err
	}
	return inserted, nil
}

// matchesFilter applies the listing filter to one punch. Date bounds
// compare inclusively against the ISO-8601 form of the timestamp.
func matchesFilter(p *models.Punch, f models.PunchFilter) bool {
	if f.DeviceID != 0 && p.DeviceID != f.DeviceID {
		return false
	}
	if f.UserID != "" && p.UserID != f.UserID {
		return false
	}
	if f.SyncedToCloud != nil && p.SyncedToCloud != *f.SyncedToCloud {
		return false
	}
	if f.StartDate != "" || f.EndDate != "" {
		iso := p.Timestamp.UTC().Format(time.RFC3339)
		if f.StartDate != "" && iso < f.StartDate {
			return false
		}
		if f.EndDate != "" && iso > f.EndDate {
			return false
		}
	}
	return true
}

// ListPunches returns punches matching the filter, newest-first by
// timestamp, windowed by limit and offset. A limit of 0 means no cap.
func (s *Store) ListPunches(filter models.PunchFilter, limit, offset int) []models.Punch {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Punch, 0, len(s.punches))
	for i := range s.punches {
		if matchesFilter(&s.punches[i], filter) {
			out = append(out, s.punches[i])
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})

	if offset >= len(out) {
		return []models.Punch{}
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// CountPunches counts punches matching the filter.
func (s *Store) CountPunches(filter models.PunchFilter) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for i := range s.punches {
		if matchesFilter(&s.punches[i], filter) {
			n++
		}
	}
	return n
}

// ListUnsynced returns up to limit punches not yet drained to the cloud,
// newest-first.
func (s *Store) ListUnsynced(limit int) []models.Punch {
	unsynced := false
	return s.ListPunches(models.PunchFilter{SyncedToCloud: &unsynced}, limit, 0)
}

// MarkSynced flips syncedToCloud for the given ids. Unknown ids are
// ignored, which makes a repeated mark a no-op. The flip is atomic across
// concurrent readers.
func (s *Store) MarkSynced(ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	changed := false
	for i := range s.punches {
		if _, ok := want[s.punches[i].ID]; ok && !s.punches[i].SyncedToCloud {
			s.punches[i].SyncedToCloud = true
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.persistLocked()
}

// ClearPunches purges every punch and returns the count removed.
func (s *Store) ClearPunches() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := int64(len(s.punches))
	s.punches = nil
	s.punchKeys = make(map[string]int64)
	if removed == 0 {
		return 0, nil
	}
	return removed, s.persistLocked()
}
