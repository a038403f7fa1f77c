// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

// Package scheduler drives the interval sweep across active devices. A
// sweep visits devices sequentially in name order; each device gets its own
// session, its own circuit breaker, and its own sync-log row, so one dead
// terminal never stalls the rest. At most one sweep runs at a time.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/punchsync/punchsync/internal/events"
	"github.com/punchsync/punchsync/internal/logging"
	"github.com/punchsync/punchsync/internal/metrics"
	"github.com/punchsync/punchsync/internal/models"
	"github.com/punchsync/punchsync/internal/store"
	"github.com/punchsync/punchsync/internal/zk"
)

// DeviceClient is the slice of the device session the scheduler drives.
// *zk.Session satisfies it; tests substitute fakes.
type DeviceClient interface {
	Connect(ctx context.Context) error
	GetAttendance(ctx context.Context) ([]models.Punch, error)
	Disconnect()
}

// DialFunc builds a client for one device.
type DialFunc func(device models.Device) DeviceClient

// NewZKDialer returns the production dialer backed by zk.Session.
func NewZKDialer(connectTimeout, commandTimeout time.Duration) DialFunc {
	return func(device models.Device) DeviceClient {
		return zk.NewSession(zk.Config{
			IP:             device.IP,
			Port:           device.Port,
			ConnectTimeout: connectTimeout,
			CommandTimeout: commandTimeout,
		})
	}
}

// Status is the scheduler state snapshot served by GET /api/scheduler.
type Status struct {
	Running         bool `json:"running"`
	Syncing         bool `json:"syncing"`
	IntervalMinutes int  `json:"intervalMinutes"`
}

// Scheduler owns the sweep timer and the single-flight guard.
type Scheduler struct {
	store *store.Store
	bus   *events.Bus
	dial  DialFunc

	mu       sync.Mutex
	running  bool
	interval time.Duration
	stopChan chan struct{}
	reset    chan time.Duration
	wg       sync.WaitGroup

	// syncing guards sweep re-entry; SyncOne runs outside it.
	syncing atomic.Bool

	breakers *breakerSet
}

// New creates a stopped scheduler with the given poll interval.
func New(st *store.Store, bus *events.Bus, dial DialFunc, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		store:    st,
		bus:      bus,
		dial:     dial,
		interval: interval,
		breakers: newBreakerSet(),
	}
}

// Status reports the current scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:         s.running,
		Syncing:         s.syncing.Load(),
		IntervalMinutes: int(s.interval / time.Minute),
	}
}

// SetInterval updates the sweep period. When running, the timer is
// re-armed with the new period; the immediate sweep is not repeated.
func (s *Scheduler) SetInterval(minutes int) {
	if minutes <= 0 {
		return
	}
	interval := time.Duration(minutes) * time.Minute

	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = interval
	if s.running {
		// replace any reset the loop has not picked up yet
		select {
		case <-s.reset:
		default:
		}
		s.reset <- interval
	}
	logging.Info().Int("minutes", minutes).Msg("Poll interval updated")
}

// Start kicks an immediate sweep and arms the periodic timer. A second
// Start while running is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.reset = make(chan time.Duration, 1)
	interval := s.interval
	stop := s.stopChan
	reset := s.reset
	s.mu.Unlock()

	logging.Info().Dur("interval", interval).Msg("Scheduler started")

	s.wg.Add(1)
	go s.loop(interval, stop, reset)
}

// Stop cancels the timer. An in-flight sweep is allowed to finish; Stop
// does not wait for it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	logging.Info().Msg("Scheduler stopped")
}

// loop runs the immediate sweep, then ticks until stopped. A sweep that
// overruns the interval causes the overlapping tick's SyncAll to bounce off
// the single-flight guard, which skips that tick rather than queueing it.
func (s *Scheduler) loop(interval time.Duration, stop <-chan struct{}, reset <-chan time.Duration) {
	defer s.wg.Done()

	s.SyncAll(context.Background())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case next := <-reset:
			ticker.Reset(next)
		case <-ticker.C:
			s.SyncAll(context.Background())
		}
	}
}

// SyncAll sweeps every active device. Single-flight: when a sweep is
// already running, it returns immediately with an empty, non-nil slice.
// Devices are visited sequentially in name order so sync-log rows and
// result ordering stay deterministic.
func (s *Scheduler) SyncAll(ctx context.Context) []models.SyncResult {
	if !s.syncing.CompareAndSwap(false, true) {
		metrics.SweepsTotal.WithLabelValues("skipped").Inc()
		return []models.SyncResult{}
	}
	defer s.syncing.Store(false)

	start := time.Now()
	devices := s.store.ListDevices(true)

	if err := s.bus.PublishSyncStarted(len(devices)); err != nil {
		logging.Warn().Err(err).Msg("Failed to publish sync-started")
	}
	logging.Info().Int("devices", len(devices)).Msg("Sweep started")

	results := make([]models.SyncResult, 0, len(devices))
	for _, device := range devices {
		if ctx.Err() != nil {
			break
		}
		result := s.syncDevice(ctx, device)
		results = append(results, result)

		if err := s.bus.PublishDeviceSynced(result); err != nil {
			logging.Warn().Err(err).Msg("Failed to publish device-synced")
		}
	}

	if err := s.bus.PublishSyncCompleted(results); err != nil {
		logging.Warn().Err(err).Msg("Failed to publish sync-completed")
	}

	metrics.SweepsTotal.WithLabelValues("completed").Inc()
	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	logging.Info().Int("devices", len(devices)).Dur("elapsed", time.Since(start)).Msg("Sweep completed")
	return results
}

// SyncOne polls a single device ad-hoc, outside the single-flight guard.
func (s *Scheduler) SyncOne(ctx context.Context, deviceID int64) (models.SyncResult, error) {
	device, err := s.store.GetDevice(deviceID)
	if err != nil {
		return models.SyncResult{}, err
	}

	result := s.syncDevice(ctx, device)
	if err := s.bus.PublishDeviceSynced(result); err != nil {
		logging.Warn().Err(err).Msg("Failed to publish device-synced")
	}
	return result, nil
}

// syncDevice opens a session through the device's circuit breaker, pulls
// attendance, bulk-inserts, stamps lastSync, and writes the audit row.
// Every failure path lands in an error sync-log row; errors never escape
// to abort the sweep. The store's live-session guard is held for the
// whole conversation so the device cannot be deleted out from under it.
func (s *Scheduler) syncDevice(ctx context.Context, device models.Device) models.SyncResult {
	result := models.SyncResult{
		DeviceID:   device.ID,
		DeviceName: device.Name,
	}

	// re-read under the guard; the device may have been mutated or
	// deleted since it was listed
	device, err := s.store.BeginDeviceSession(device.ID)
	if err != nil {
		result.Error = err.Error()
		metrics.DeviceSyncsTotal.WithLabelValues(result.DeviceName, "error").Inc()
		s.logSweep(result.DeviceID, 0, models.SyncLogStatusError, err.Error())
		logging.Warn().Err(err).Str("device", result.DeviceName).Msg("Device vanished before sync")
		return result
	}
	defer s.store.EndDeviceSession(device.ID)

	punches, err := s.breakers.forDevice(device).Execute(func() ([]models.Punch, error) {
		return s.pullAttendance(ctx, device)
	})
	if err != nil {
		result.Error = err.Error()
		metrics.DeviceSyncsTotal.WithLabelValues(device.Name, "error").Inc()
		s.logSweep(device.ID, 0, models.SyncLogStatusError, err.Error())
		logging.Warn().Err(err).Str("device", device.Name).Msg("Device sync failed")
		return result
	}

	for i := range punches {
		punches[i].DeviceID = device.ID
	}

	added, err := s.store.AddPunchesBulk(punches)
	if err != nil {
		result.Error = err.Error()
		metrics.DeviceSyncsTotal.WithLabelValues(device.Name, "error").Inc()
		s.logSweep(device.ID, added, models.SyncLogStatusError, err.Error())
		return result
	}

	if err := s.store.SetDeviceLastSync(device.ID, time.Now()); err != nil {
		logging.Warn().Err(err).Str("device", device.Name).Msg("Failed to stamp lastSync")
	}

	result.Success = true
	result.RecordsAdded = added
	result.TotalRecords = len(punches)

	metrics.DeviceSyncsTotal.WithLabelValues(device.Name, "success").Inc()
	metrics.PunchesInserted.Add(float64(added))
	s.logSweep(device.ID, added, models.SyncLogStatusSuccess,
		fmt.Sprintf("Pulled %d records, %d new", len(punches), added))
	logging.Info().Str("device", device.Name).Int("total", len(punches)).Int("new", added).Msg("Device synced")
	return result
}

// pullAttendance runs one full device conversation.
func (s *Scheduler) pullAttendance(ctx context.Context, device models.Device) ([]models.Punch, error) {
	client := s.dial(device)
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	defer client.Disconnect()
	return client.GetAttendance(ctx)
}

// logSweep writes a sync-log audit row, logging but not propagating store
// failures.
func (s *Scheduler) logSweep(deviceID int64, added int, status, message string) {
	_, err := s.store.AddSyncLog(models.SyncLog{
		DeviceID:     deviceID,
		Type:         "pull",
		RecordsAdded: added,
		Status:       status,
		Message:      message,
	})
	if err != nil {
		logging.Warn().Err(err).Int64("device", deviceID).Msg("Failed to write sync log")
	}
}
