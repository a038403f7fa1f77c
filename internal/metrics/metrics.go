// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SweepsTotal counts scheduler sweeps by outcome ("completed" or
	// "skipped" when the single-flight guard rejects a re-entry).
	SweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "punchsync_sweeps_total",
		Help: "Scheduler sweeps by outcome",
	}, []string{"outcome"})

	// SweepDuration observes wall-clock seconds per full sweep.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "punchsync_sweep_duration_seconds",
		Help:    "Duration of a full scheduler sweep",
		Buckets: prometheus.DefBuckets,
	})

	// DeviceSyncsTotal counts per-device poll results by device name and
	// result ("success" or "error").
	DeviceSyncsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "punchsync_device_syncs_total",
		Help: "Per-device poll attempts by result",
	}, []string{"device", "result"})

	// PunchesInserted counts punches newly inserted by the scheduler.
	PunchesInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "punchsync_punches_inserted_total",
		Help: "Punches newly inserted into the store",
	})

	// CircuitBreakerState exports each device breaker's state
	// (0 closed, 1 half-open, 2 open).
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "punchsync_circuit_breaker_state",
		Help: "Device circuit breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"device"})

	// HTTPRequestDuration observes handler latency by route and status.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "punchsync_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status code",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "status"})
)
