// ZeroERP - Inventory, Orders, and Billing for Small Teams
// Copyright 2026 Aren Garro (Aren-Garro)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Aren-Garro/ZeroERP

package webhook

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/Aren-Garro/ZeroERP/internal/events"
	"github.com/Aren-Garro/ZeroERP/internal/logging"
)

// Consumer drains the event bus and hands each event to the dispatcher.
// It implements suture.Service and is restarted by the supervisor if it
// returns with an error.
type Consumer struct {
	dispatcher *Dispatcher
	messages   <-chan *message.Message
}

// NewConsumer creates the webhook-side bus consumer. The bus subscription
// is established here, before any supervisor starts Serve, so an event
// emitted right after wiring cannot race past an absent subscriber. The
// subscription lives until the bus closes; a supervisor restart resumes
// draining the same channel.
func NewConsumer(bus *events.Bus, dispatcher *Dispatcher) (*Consumer, error) {
	messages, err := bus.Subscribe(context.Background())
	if err != nil {
		return nil, err
	}
	return &Consumer{dispatcher: dispatcher, messages: messages}, nil
}

// Serve dispatches bus events until the context is cancelled or the bus
// closes.
func (c *Consumer) Serve(ctx context.Context) error {
	logging.Info().Msg("Webhook consumer started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-c.messages:
			if !ok {
				logging.Info().Msg("Webhook consumer stopping: bus closed")
				return nil
			}
			event, err := events.UnmarshalEvent(msg.Payload)
			if err != nil {
				// A malformed bus payload is a bug, not a retryable
				// condition. Ack it so it is not redelivered.
				logging.Error().
					Err(err).
					Str("message_id", msg.UUID).
					Msg("Dropping undecodable bus message")
				msg.Ack()
				continue
			}
			c.dispatcher.Dispatch(ctx, event)
			msg.Ack()
		}
	}
}

func (c *Consumer) String() string {
	return "webhook-consumer"
}
