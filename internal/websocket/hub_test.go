// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gorilla "github.com/gorilla/websocket"

	"github.com/punchsync/punchsync/internal/events"
)

func TestHubBroadcastsSweepEvents(t *testing.T) {
	bus := events.NewBus(nil)
	defer func() { _ = bus.Close() }()

	hub := NewHub(bus)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		_ = hub.Run(ctx)
	}()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(hub, w, r)
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	// wait for the hub to register the client before publishing
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	if err := bus.PublishSyncStarted(2); err != nil {
		t.Fatalf("PublishSyncStarted: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	var env events.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Type != events.TypeSyncStarted {
		t.Fatalf("expected %s, got %s", events.TypeSyncStarted, env.Type)
	}

	// closing the peer unregisters it
	_ = conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never unregistered")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-hubDone:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
}
