// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

// Package websocket pushes sweep events to connected UI subscribers. The
// hub subscribes to the event bus and fans every envelope out to all
// clients; slow clients are dropped rather than allowed to block the
// broadcast path.
package websocket

import (
	"context"
	"sync"

	"github.com/punchsync/punchsync/internal/events"
	"github.com/punchsync/punchsync/internal/logging"
)

// Hub maintains the set of active clients and broadcasts event envelopes
// to them.
type Hub struct {
	bus *events.Bus

	mu      sync.RWMutex
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
}

// NewHub creates a hub wired to the event bus.
func NewHub(bus *events.Bus) *Hub {
	return &Hub{
		bus:        bus,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
	}
}

// Run pumps bus messages and client lifecycle events until ctx is
// canceled. Client registration takes priority over broadcasts so the
// client set is consistent before a message fans out.
func (h *Hub) Run(ctx context.Context) error {
	msgs, err := h.bus.Subscribe(ctx)
	if err != nil {
		return err
	}

	for {
		// lifecycle events first
		select {
		case client := <-h.register:
			h.addClient(client)
			continue
		case client := <-h.unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg, ok := <-msgs:
			if !ok {
				h.closeAll()
				return nil
			}
			h.fanOut(msg.Payload)
			msg.Ack()
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
	logging.Debug().Int("clients", len(h.clients)).Msg("Websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// fanOut delivers one payload to every client. A client whose send buffer
// is full is disconnected; it can reconnect and re-subscribe.
func (h *Hub) fanOut(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			delete(h.clients, client)
			close(client.send)
			logging.Warn().Msg("Dropping slow websocket client")
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[*Client]struct{})
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
