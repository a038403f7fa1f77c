// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/punchsync/punchsync/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "punchsync.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func addDevice(t *testing.T, s *Store, name, ip string, port int) models.Device {
	t.Helper()
	dev, err := s.AddDevice(models.DeviceCreateRequest{Name: name, IP: ip, Port: port})
	if err != nil {
		t.Fatalf("AddDevice(%s): %v", name, err)
	}
	return dev
}

func punchAt(deviceID int64, userID string, ts time.Time) models.Punch {
	return models.Punch{
		DeviceID:  deviceID,
		UserID:    userID,
		Timestamp: ts,
		Status:    1,
	}
}

func TestDeviceCRUD(t *testing.T) {
	s := newTestStore(t)

	dev := addDevice(t, s, "Gate A", "10.0.0.10", 4370)
	if dev.ID != 1 || !dev.Active {
		t.Fatalf("unexpected device %+v", dev)
	}

	// duplicate (ip, port) rejected
	if _, err := s.AddDevice(models.DeviceCreateRequest{Name: "Copy", IP: "10.0.0.10", Port: 4370}); !errors.Is(err, ErrDuplicateAddress) {
		t.Fatalf("expected ErrDuplicateAddress, got %v", err)
	}

	// same ip, different port allowed
	addDevice(t, s, "Gate B", "10.0.0.10", 4371)

	// update onto an occupied address rejected
	port := 4371
	if _, err := s.UpdateDevice(dev.ID, models.DeviceUpdateRequest{Port: &port}); !errors.Is(err, ErrDuplicateAddress) {
		t.Fatalf("expected ErrDuplicateAddress on update, got %v", err)
	}

	name := "Gate A renamed"
	updated, err := s.UpdateDevice(dev.ID, models.DeviceUpdateRequest{Name: &name})
	if err != nil {
		t.Fatalf("UpdateDevice: %v", err)
	}
	if updated.Name != name {
		t.Errorf("expected renamed device, got %q", updated.Name)
	}

	if err := s.DeleteDevice(dev.ID); err != nil {
		t.Fatalf("DeleteDevice: %v", err)
	}
	if _, err := s.GetDevice(dev.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDeleteDeviceBlockedByLiveSession(t *testing.T) {
	s := newTestStore(t)
	dev := addDevice(t, s, "Gate", "10.0.0.1", 4370)

	held, err := s.BeginDeviceSession(dev.ID)
	if err != nil {
		t.Fatalf("BeginDeviceSession: %v", err)
	}
	if held.ID != dev.ID {
		t.Fatalf("expected device %d, got %d", dev.ID, held.ID)
	}

	if err := s.DeleteDevice(dev.ID); !errors.Is(err, ErrDeviceBusy) {
		t.Fatalf("expected ErrDeviceBusy while held, got %v", err)
	}

	// sessions nest; the device stays protected until the last release
	if _, err := s.BeginDeviceSession(dev.ID); err != nil {
		t.Fatalf("BeginDeviceSession nested: %v", err)
	}
	s.EndDeviceSession(dev.ID)
	if err := s.DeleteDevice(dev.ID); !errors.Is(err, ErrDeviceBusy) {
		t.Fatalf("expected ErrDeviceBusy with one session left, got %v", err)
	}

	s.EndDeviceSession(dev.ID)
	if err := s.DeleteDevice(dev.ID); err != nil {
		t.Fatalf("DeleteDevice after release: %v", err)
	}

	if _, err := s.BeginDeviceSession(dev.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestListDevicesSortedAndFiltered(t *testing.T) {
	s := newTestStore(t)
	addDevice(t, s, "zeta", "10.0.0.1", 4370)
	addDevice(t, s, "alpha", "10.0.0.2", 4370)
	inactive := false
	if _, err := s.AddDevice(models.DeviceCreateRequest{Name: "beta", IP: "10.0.0.3", Port: 4370, Active: &inactive}); err != nil {
		t.Fatalf("AddDevice: %v", err)
	}

	all := s.ListDevices(false)
	if len(all) != 3 || all[0].Name != "alpha" || all[1].Name != "beta" || all[2].Name != "zeta" {
		t.Fatalf("unexpected order: %+v", all)
	}

	active := s.ListDevices(true)
	if len(active) != 2 {
		t.Fatalf("expected 2 active devices, got %d", len(active))
	}
}

func TestBulkInsertDeduplicates(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

	// same natural key twice within one batch
	p := punchAt(1, "100", ts)
	n, err := s.AddPunchesBulk([]models.Punch{p, p})
	if err != nil {
		t.Fatalf("AddPunchesBulk: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 inserted, got %d", n)
	}
	if got := s.CountPunches(models.PunchFilter{}); got != 1 {
		t.Fatalf("expected count 1, got %d", got)
	}

	// replay against existing rows
	n, err = s.AddPunchesBulk([]models.Punch{p, punchAt(1, "101", ts)})
	if err != nil {
		t.Fatalf("AddPunchesBulk: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected only the new key inserted, got %d", n)
	}

	// a different ordinal is a different natural key
	q := p
	q.OderID = 7
	if n, _ := s.AddPunch(q); n != 1 {
		t.Fatalf("expected distinct ordinal to insert, got %d", n)
	}
}

func TestListPunchesFiltersAndOrder(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC)

	var batch []models.Punch
	for i := 0; i < 5; i++ {
		batch = append(batch, punchAt(1, "100", base.Add(time.Duration(i)*time.Hour)))
	}
	batch = append(batch, punchAt(2, "200", base.Add(30*time.Minute)))
	if _, err := s.AddPunchesBulk(batch); err != nil {
		t.Fatalf("AddPunchesBulk: %v", err)
	}

	// newest-first ordering
	all := s.ListPunches(models.PunchFilter{}, 0, 0)
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp.After(all[i-1].Timestamp) {
			t.Fatalf("not newest-first at %d: %v after %v", i, all[i].Timestamp, all[i-1].Timestamp)
		}
	}

	// device filter
	if got := s.CountPunches(models.PunchFilter{DeviceID: 2}); got != 1 {
		t.Errorf("device filter: expected 1, got %d", got)
	}

	// inclusive date range intersected with synced flag
	unsynced := false
	filter := models.PunchFilter{
		StartDate:     base.Add(time.Hour).Format(time.RFC3339),
		EndDate:       base.Add(3 * time.Hour).Format(time.RFC3339),
		SyncedToCloud: &unsynced,
	}
	if got := s.CountPunches(filter); got != 3 {
		t.Errorf("range filter: expected 3, got %d", got)
	}

	// marking one inside the range shrinks the intersection
	inRange := s.ListPunches(filter, 1, 0)
	if err := s.MarkSynced([]int64{inRange[0].ID}); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}
	if got := s.CountPunches(filter); got != 2 {
		t.Errorf("after mark: expected 2, got %d", got)
	}

	// limit and offset window the result
	if got := s.ListPunches(models.PunchFilter{}, 2, 0); len(got) != 2 {
		t.Errorf("limit: expected 2, got %d", len(got))
	}
	if got := s.ListPunches(models.PunchFilter{}, 0, 100); len(got) != 0 {
		t.Errorf("offset past end: expected 0, got %d", len(got))
	}
}

func TestMarkSyncedIdempotent(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	if _, err := s.AddPunchesBulk([]models.Punch{
		punchAt(1, "1", ts), punchAt(1, "2", ts), punchAt(1, "3", ts),
	}); err != nil {
		t.Fatalf("AddPunchesBulk: %v", err)
	}

	if err := s.MarkSynced([]int64{1, 2}); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}
	if got := len(s.ListUnsynced(0)); got != 1 {
		t.Fatalf("expected 1 unsynced, got %d", got)
	}

	// repeating the same set, with unknown ids thrown in, changes nothing
	if err := s.MarkSynced([]int64{1, 2, 999}); err != nil {
		t.Fatalf("MarkSynced repeat: %v", err)
	}
	if got := len(s.ListUnsynced(0)); got != 1 {
		t.Fatalf("expected 1 unsynced after re-mark, got %d", got)
	}
}

func TestClearPunchesAndStats(t *testing.T) {
	s := newTestStore(t)
	addDevice(t, s, "Gate", "10.0.0.1", 4370)

	now := time.Now().UTC()
	if _, err := s.AddPunchesBulk([]models.Punch{
		punchAt(1, "1", now),
		punchAt(1, "2", now.Add(-48*time.Hour)),
	}); err != nil {
		t.Fatalf("AddPunchesBulk: %v", err)
	}

	stats := s.Stats()
	if stats.TotalDevices != 1 || stats.ActiveDevices != 1 {
		t.Errorf("device stats: %+v", stats)
	}
	if stats.TotalPunches != 2 || stats.UnsyncedCount != 2 {
		t.Errorf("punch stats: %+v", stats)
	}
	if stats.TodayPunches != 1 {
		t.Errorf("expected 1 punch today, got %d", stats.TodayPunches)
	}

	removed, err := s.ClearPunches()
	if err != nil {
		t.Fatalf("ClearPunches: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}

	stats = s.Stats()
	if stats.TotalPunches != 0 || stats.UnsyncedCount != 0 {
		t.Errorf("expected empty punch stats, got %+v", stats)
	}

	// a cleared key can be inserted again
	if n, _ := s.AddPunch(punchAt(1, "1", now)); n != 1 {
		t.Fatalf("expected re-insert after clear, got %d", n)
	}
}

func TestSyncLogRing(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < syncLogCap+25; i++ {
		if _, err := s.AddSyncLog(models.SyncLog{DeviceID: 1, Status: models.SyncLogStatusSuccess}); err != nil {
			t.Fatalf("AddSyncLog: %v", err)
		}
	}

	logs := s.ListSyncLogs(0)
	if len(logs) != syncLogCap {
		t.Fatalf("expected ring capped at %d, got %d", syncLogCap, len(logs))
	}
	// newest-first: the highest id leads
	if logs[0].ID != int64(syncLogCap+25) {
		t.Errorf("expected newest id %d first, got %d", syncLogCap+25, logs[0].ID)
	}

	if got := s.ListSyncLogs(10); len(got) != 10 {
		t.Errorf("expected limit 10, got %d", len(got))
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "punchsync.json")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	addDevice(t, s, "Gate", "10.0.0.1", 4370)
	ts := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	if _, err := s.AddPunchesBulk([]models.Punch{punchAt(1, "55", ts)}); err != nil {
		t.Fatalf("AddPunchesBulk: %v", err)
	}
	settings := s.Settings()
	settings.CloudAPIKey = "secret"
	if err := s.SetSettings(settings); err != nil {
		t.Fatalf("SetSettings: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reopened.CountPunches(models.PunchFilter{}); got != 1 {
		t.Fatalf("expected 1 punch after reopen, got %d", got)
	}
	if reopened.Settings().CloudAPIKey != "secret" {
		t.Errorf("settings not persisted")
	}

	// the natural-key index is rebuilt, so a replay still dedups
	if n, _ := reopened.AddPunch(punchAt(1, "55", ts)); n != 0 {
		t.Fatalf("expected dedup after reopen, got insert %d", n)
	}

	// id counters continue, never reuse
	if n, _ := reopened.AddPunch(punchAt(1, "56", ts)); n != 1 {
		t.Fatal("expected insert")
	}
	punches := reopened.ListPunches(models.PunchFilter{UserID: "56"}, 0, 0)
	if len(punches) != 1 || punches[0].ID != 2 {
		t.Fatalf("expected id 2, got %+v", punches)
	}
}

func TestCorruptFileQuarantined(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "punchsync.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open should recover from corruption: %v", err)
	}
	if got := s.CountPunches(models.PunchFilter{}); got != 0 {
		t.Fatalf("expected empty store, got %d punches", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	found := false
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "punchsync.json.backup.") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a .backup.<epoch_ms> quarantine file")
	}
}
