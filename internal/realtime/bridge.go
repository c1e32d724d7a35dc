// ZeroERP - Inventory, Orders, and Billing for Small Teams
// Copyright 2026 Aren Garro (Aren-Garro)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Aren-Garro/ZeroERP

package realtime

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/Aren-Garro/ZeroERP/internal/events"
	"github.com/Aren-Garro/ZeroERP/internal/logging"
)

// Bridge drains the event bus into the hub so realtime clients see domain
// events. It is the realtime counterpart of the webhook consumer and runs
// as its own supervised service, so a stall on one side never affects the
// other.
type Bridge struct {
	hub      *Hub
	messages <-chan *message.Message
}

// NewBridge creates the bus-to-hub bridge. Like the webhook consumer, it
// subscribes to the bus at construction time so events emitted before the
// supervisor starts Serve queue up instead of vanishing.
func NewBridge(bus *events.Bus, hub *Hub) (*Bridge, error) {
	messages, err := bus.Subscribe(context.Background())
	if err != nil {
		return nil, err
	}
	return &Bridge{hub: hub, messages: messages}, nil
}

// Serve forwards bus events to the hub until the context is cancelled or
// the bus closes. Implements suture.Service.
func (b *Bridge) Serve(ctx context.Context) error {
	logging.Info().Msg("Realtime event bridge started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-b.messages:
			if !ok {
				logging.Info().Msg("Realtime event bridge stopping: bus closed")
				return nil
			}
			event, err := events.UnmarshalEvent(msg.Payload)
			if err != nil {
				logging.Error().
					Err(err).
					Str("message_id", msg.UUID).
					Msg("Dropping undecodable bus message")
				msg.Ack()
				continue
			}
			b.hub.PublishEvent(event)
			msg.Ack()
		}
	}
}

func (b *Bridge) String() string {
	return "realtime-bridge"
}
