// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

// Punchsync pulls attendance punches from ESSL/ZKTeco terminals over the
// ZK binary protocol, de-duplicates them into a local store, and serves
// them to an upstream drainer over a small HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/punchsync/punchsync/internal/api"
	"github.com/punchsync/punchsync/internal/config"
	"github.com/punchsync/punchsync/internal/events"
	"github.com/punchsync/punchsync/internal/logging"
	"github.com/punchsync/punchsync/internal/scheduler"
	"github.com/punchsync/punchsync/internal/store"
	"github.com/punchsync/punchsync/internal/supervisor"
	"github.com/punchsync/punchsync/internal/websocket"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Configuration invalid")
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logging.Info().Str("version", api.Version).Msg("Punchsync starting")

	_, statErr := os.Stat(cfg.StorePath)
	firstRun := errors.Is(statErr, os.ErrNotExist)

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.StorePath).Msg("Cannot open store")
	}

	// seed store settings from bootstrap config on first run
	settings := st.Settings()
	if firstRun {
		settings.APIPort = cfg.APIPort
		settings.PollInterval = cfg.PollIntervalMinutes
	}
	if err := st.SetSettings(settings); err != nil {
		logging.Fatal().Err(err).Msg("Cannot persist settings")
	}

	bus := events.NewBus(events.NewZerologAdapter(logging.Logger()))
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Warn().Err(err).Msg("Event bus close failed")
		}
	}()

	dial := scheduler.NewZKDialer(cfg.ConnectTimeout, cfg.CommandTimeout)
	sched := scheduler.New(st, bus, dial, time.Duration(settings.PollInterval)*time.Minute)

	hub := websocket.NewHub(bus)
	handler := api.NewHandler(st, sched, hub)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", settings.APIPort),
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Int("port", settings.APIPort).Msg("Serving")
	tree := supervisor.New(sched, hub, server)
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal().Err(err).Msg("Supervisor exited")
	}
	logging.Info().Msg("Punchsync stopped")
}
