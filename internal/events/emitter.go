// ZeroERP - Inventory, Orders, and Billing for Small Teams
// Copyright 2026 Aren Garro (Aren-Garro)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Aren-Garro/ZeroERP

package events

import (
	"github.com/Aren-Garro/ZeroERP/internal/logging"
	"github.com/Aren-Garro/ZeroERP/internal/metrics"
)

// Emitter is the single entry point for domain code to announce that
// something happened. It validates the event name against the taxonomy and
// places the event on the bus; it never surfaces delivery concerns to the
// caller. Emitting must stay cheap enough to call from request handlers.
type Emitter struct {
	bus *Bus
}

// NewEmitter creates an emitter bound to the given bus.
func NewEmitter(bus *Bus) *Emitter {
	return &Emitter{bus: bus}
}

// Emit validates the event name, stamps the event, and publishes it.
// Unknown names are logged and counted but never propagate an error:
// a typo in one call site must not break the caller's business operation.
func (e *Emitter) Emit(name string, data map[string]interface{}) {
	parsed, err := Parse(name)
	if err != nil {
		metrics.EventsRejected.Inc()
		logging.Warn().
			Str("event", name).
			Msg("Rejected event with unknown name")
		return
	}

	event := NewEvent(parsed, data)
	if err := e.bus.Publish(event); err != nil {
		logging.Error().
			Err(err).
			Str("event", parsed.String()).
			Str("event_id", event.ID).
			Msg("Failed to publish event")
		return
	}

	metrics.EventsEmitted.WithLabelValues(parsed.String()).Inc()
	logging.Debug().
		Str("event", parsed.String()).
		Str("event_id", event.ID).
		Msg("Event emitted")
}
