// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

// Package store persists devices, punches, sync logs, and settings in a
// single JSON document file. All state is held in memory under one RWMutex
// and flushed atomically (same-directory temp file + rename) after every
// mutation, so readers always observe all-or-nothing for the bulk
// operations and a crash loses at most the newest unflushed write.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/punchsync/punchsync/internal/logging"
	"github.com/punchsync/punchsync/internal/models"
)

// Sentinel errors surfaced to the HTTP layer.
var (
	// ErrNotFound indicates the requested device id does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicateAddress indicates another device already claims the
	// (ip, port) pair.
	ErrDuplicateAddress = errors.New("store: device address already registered")

	// ErrDeviceBusy indicates the device cannot be deleted while a live
	// session references it.
	ErrDeviceBusy = errors.New("store: device has a live session")
)

// syncLogCap bounds the sync-log ring buffer.
const syncLogCap = 1000

// counters are the three monotonic id sequences.
type counters struct {
	Device  int64 `json:"device"`
	Punch   int64 `json:"punch"`
	SyncLog int64 `json:"syncLog"`
}

// snapshot is the persisted file layout.
type snapshot struct {
	Devices  []models.Device  `json:"devices"`
	Punches  []models.Punch   `json:"punches"`
	SyncLogs []models.SyncLog `json:"syncLogs"`
	Settings models.Settings  `json:"settings"`
	Counters counters         `json:"counters"`
}

// Store is the durable single-process record store.
type Store struct {
	mu   sync.RWMutex
	path string

	devices  []models.Device
	punches  []models.Punch
	syncLogs []models.SyncLog
	settings models.Settings
	counters counters

	// punchKeys maps the composite natural key to the punch id, giving
	// O(1) de-duplication on insert.
	punchKeys map[string]int64

	// liveSessions counts in-flight device sessions by device id. It is
	// runtime state, never persisted; DeleteDevice refuses while the
	// count is non-zero.
	liveSessions map[int64]int
}

// Open loads the store file at path, creating a fresh store when the file
// does not exist. A corrupt or unparseable file is renamed to
// <path>.backup.<epoch_ms> and the store starts empty; corruption is never
// fatal to the process.
func Open(path string) (*Store, error) {
	s := &Store{
		path:         path,
		settings:     models.DefaultSettings(),
		punchKeys:    make(map[string]int64),
		liveSessions: make(map[int64]int),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read store file: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		backup := fmt.Sprintf("%s.backup.%d", path, time.Now().UnixMilli())
		if renameErr := os.Rename(path, backup); renameErr != nil {
			return nil, fmt.Errorf("quarantine corrupt store file: %w", renameErr)
		}
		logging.Warn().Err(err).Str("backup", backup).Msg("Store file corrupt, starting empty")
		return s, nil
	}

	s.devices = snap.Devices
	s.punches = snap.Punches
	s.syncLogs = snap.SyncLogs
	s.counters = snap.Counters
	if snap.Settings != (models.Settings{}) {
		s.settings = snap.Settings
	}
	for i := range s.punches {
		s.punchKeys[s.punches[i].NaturalKey()] = s.punches[i].ID
	}
	return s, nil
}

// persistLocked flushes the current state to disk. Must be called with mu
// held for writing. The temp file lands in the store's directory so the
// rename stays on one filesystem.
func (s *Store) persistLocked() error {
	snap := snapshot{
		Devices:  s.devices,
		Punches:  s.punches,
		SyncLogs: s.syncLogs,
		Settings: s.settings,
		Counters: s.counters,
	}

	data, err := json.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("marshal store snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write store snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync store snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp store file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("swap store file: %w", err)
	}
	return nil
}

// Settings returns a copy of the current settings.
func (s *Store) Settings() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SetSettings replaces the settings and persists.
func (s *Store) SetSettings(settings models.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return s.persistLocked()
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}
