// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

// Package supervisor assembles the suture supervision tree: the scheduler,
// the websocket hub, and the HTTP server run as supervised services with
// restart backoff. A crashed hub or scheduler restarts without taking the
// API down.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/punchsync/punchsync/internal/logging"
	"github.com/punchsync/punchsync/internal/scheduler"
	"github.com/punchsync/punchsync/internal/websocket"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// Tree is the root supervisor.
type Tree struct {
	root *suture.Supervisor
}

// New builds the tree with the three core services attached.
func New(sched *scheduler.Scheduler, hub *websocket.Hub, server *http.Server) *Tree {
	hook := (&sutureslog.Handler{Logger: logging.NewSlogLogger()}).MustHook()

	root := suture.New("punchsync", suture.Spec{
		EventHook:        hook,
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          shutdownTimeout,
	})

	root.Add(&schedulerService{sched: sched})
	root.Add(&hubService{hub: hub})
	root.Add(&httpService{server: server})

	return &Tree{root: root}
}

// Serve runs the tree until ctx is canceled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// schedulerService adapts the scheduler's Start/Stop lifecycle to a
// suture service.
type schedulerService struct {
	sched *scheduler.Scheduler
}

func (s *schedulerService) Serve(ctx context.Context) error {
	s.sched.Start()
	<-ctx.Done()
	s.sched.Stop()
	return ctx.Err()
}

func (s *schedulerService) String() string { return "scheduler" }

// hubService runs the websocket hub's event pump.
type hubService struct {
	hub *websocket.Hub
}

func (s *hubService) Serve(ctx context.Context) error {
	if err := s.hub.Run(ctx); err != nil {
		return fmt.Errorf("websocket hub: %w", err)
	}
	return ctx.Err()
}

func (s *hubService) String() string { return "websocket-hub" }

// httpService owns the HTTP listener. A port already in use is fatal to
// the whole process, not retryable.
type httpService struct {
	server *http.Server
}

func (s *httpService) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		logging.Err(err).Str("addr", s.server.Addr).Msg("HTTP listen failed")
		return fmt.Errorf("listen %s: %w: %w", s.server.Addr, err, suture.ErrTerminateSupervisorTree)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("HTTP shutdown timed out")
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return ctx.Err()
		}
		return fmt.Errorf("http server: %w", err)
	}
}

func (s *httpService) String() string { return "http-server" }
