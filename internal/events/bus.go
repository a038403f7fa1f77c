// Punchsync - ESSL/ZKTeco Attendance Sync Agent
// Copyright 2026 Punchsync Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchsync/punchsync

// Package events carries sweep progress events from the scheduler to any
// subscriber (the websocket hub, tests) over a Watermill in-process
// gochannel pub/sub. The three event types and their payloads are a stable
// contract for UI consumers.
package events

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/punchsync/punchsync/internal/models"
)

// TopicSync is the single topic sweep events are published on.
const TopicSync = "sync.events"

// Event types.
const (
	TypeSyncStarted   = "sync-started"
	TypeDeviceSynced  = "device-synced"
	TypeSyncCompleted = "sync-completed"
)

// Envelope is the wire form of every event.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SyncStartedData is the payload of a sync-started event.
type SyncStartedData struct {
	DeviceCount int `json:"deviceCount"`
}

// SyncCompletedData is the payload of a sync-completed event.
type SyncCompletedData struct {
	Results []models.SyncResult `json:"results"`
}

// Bus is the in-process event bus.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates the bus. The output buffer absorbs bursts from a sweep
// over many devices so publishing never blocks the scheduler.
func NewBus(logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, logger),
	}
}

// publish marshals an envelope and publishes it on the sync topic.
func (b *Bus) publish(eventType string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	body, err := json.Marshal(Envelope{Type: eventType, Data: raw})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", eventType, err)
	}
	return b.pubsub.Publish(TopicSync, message.NewMessage(uuid.NewString(), body))
}

// PublishSyncStarted announces the beginning of a sweep.
func (b *Bus) PublishSyncStarted(deviceCount int) error {
	return b.publish(TypeSyncStarted, SyncStartedData{DeviceCount: deviceCount})
}

// PublishDeviceSynced announces one device's sweep outcome.
func (b *Bus) PublishDeviceSynced(result models.SyncResult) error {
	return b.publish(TypeDeviceSynced, result)
}

// PublishSyncCompleted announces the end of a sweep with all results.
func (b *Bus) PublishSyncCompleted(results []models.SyncResult) error {
	return b.publish(TypeSyncCompleted, SyncCompletedData{Results: results})
}

// Subscribe returns a channel of raw envelope messages. Messages must be
// Acked by the consumer. The subscription closes with ctx.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, TopicSync)
}

// Close shuts the pub/sub down, closing all subscriber channels.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// Decode unmarshals a raw message back into an envelope.
func Decode(msg *message.Message) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode event envelope: %w", err)
	}
	return env, nil
}
