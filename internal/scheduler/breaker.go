// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

package scheduler

import (
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/punchsync/punchsync/internal/logging"
	"github.com/punchsync/punchsync/internal/metrics"
	"github.com/punchsync/punchsync/internal/models"
)

// breakerSet holds one circuit breaker per device, keyed by device id.
// An unreachable terminal trips its breaker after three consecutive
// failures; while open, its poll short-circuits into an error result
// instead of burning a connect timeout every tick.
type breakerSet struct {
	mu       sync.Mutex
	breakers map[int64]*gobreaker.CircuitBreaker[[]models.Punch]
}

func newBreakerSet() *breakerSet {
	return &breakerSet{
		breakers: make(map[int64]*gobreaker.CircuitBreaker[[]models.Punch]),
	}
}

// forDevice returns the device's breaker, creating it on first use.
func (bs *breakerSet) forDevice(device models.Device) *gobreaker.CircuitBreaker[[]models.Punch] {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if cb, ok := bs.breakers[device.ID]; ok {
		return cb
	}

	name := device.Name
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]models.Punch](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("device", name).Str("from", stateString(from)).Str("to", stateString(to)).Msg("Circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	bs.breakers[device.ID] = cb
	return cb
}

func stateString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
