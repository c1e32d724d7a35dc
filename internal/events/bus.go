// ZeroERP - Inventory, Orders, and Billing for Small Teams
// Copyright 2026 Aren Garro (Aren-Garro)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Aren-Garro/ZeroERP

package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/Aren-Garro/ZeroERP/internal/logging"
)

// Topic is the bus subject all validated domain events are published on.
const Topic = "domain.events"

// metadataEventName is the message metadata key carrying the event name,
// so consumers can filter without unmarshaling the payload.
const metadataEventName = "event"

// Bus is the in-process event bus between the emitter and its consumers.
//
// It wraps a Watermill gochannel Pub/Sub: every active subscriber receives
// every published message, which is exactly the fan-out the emitter needs
// (one consumer drives webhook delivery, the other the realtime bridge).
// The gochannel transport keeps the core single-process; a deployment that
// wants durable retry would swap this boundary for a broker-backed
// Watermill Pub/Sub without touching the emitter or the consumers.
type Bus struct {
	pubSub *gochannel.GoChannel

	mu     sync.Mutex
	closed bool
}

// NewBus creates a bus with the given per-subscriber channel buffer.
func NewBus(buffer int64) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: buffer,
		},
		NewWatermillLogger(logging.With().Str("component", "event-bus").Logger()),
	)
	return &Bus{pubSub: pubSub}
}

// Publish places one event on the bus. The send blocks only while a
// subscriber's buffered channel is full, never on consumer processing.
func (b *Bus) Publish(event *Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("event bus is closed")
	}
	b.mu.Unlock()

	payload, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set(metadataEventName, event.Name.String())

	if err := b.pubSub.Publish(Topic, msg); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe returns a channel of bus messages. Each subscriber receives
// every event published after it subscribed. Messages must be Acked (or
// Nacked) by the consumer.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubSub.Subscribe(ctx, Topic)
}

// Close shuts the bus down. Publish returns an error afterwards; subscriber
// channels are closed.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pubSub.Close()
}

// watermillLogger adapts zerolog to watermill.LoggerAdapter so bus internals
// log through the application logger.
type watermillLogger struct {
	logger zerolog.Logger
}

// NewWatermillLogger wraps a zerolog logger for use by Watermill components.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewWatermillLogger(logger zerolog.Logger) watermill.LoggerAdapter {
	return &watermillLogger{logger: logger}
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.event(l.logger.Error().Err(err), fields).Msg(msg)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.event(l.logger.Info(), fields).Msg(msg)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.event(l.logger.Debug(), fields).Msg(msg)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.event(l.logger.Trace(), fields).Msg(msg)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	logger := l.logger
	for k, v := range fields {
		logger = logger.With().Interface(k, v).Logger()
	}
	return &watermillLogger{logger: logger}
}

func (l *watermillLogger) event(e *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	return e
}
