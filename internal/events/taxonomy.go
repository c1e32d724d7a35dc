// ZeroERP - Inventory, Orders, and Billing for Small Teams
// Copyright 2026 Aren Garro (Aren-Garro)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Aren-Garro/ZeroERP

// Package events defines the domain event taxonomy and the in-process bus
// that carries validated events from the emitter to its consumers (the
// webhook dispatcher and the realtime bridge).
package events

import (
	"fmt"
)

// Name identifies a domain event. The taxonomy is closed: only the names
// declared below are ever accepted by the emitter. External callers supply
// names as strings; Parse is the single boundary where they are checked.
type Name string

// Domain event taxonomy.
const (
	OrderCreated     Name = "order.created"
	OrderShipped     Name = "order.shipped"
	OrderCancelled   Name = "order.cancelled"
	InventoryLow     Name = "inventory.low"
	InventoryUpdated Name = "inventory.updated"
	POCreated        Name = "po.created"
	POReceived       Name = "po.received"

	// TestEvent is the synthetic event used by the webhook test-delivery
	// path. It is not emittable by domain code and not subscribable.
	TestEvent Name = "test"
)

// names is the closed set of emittable events. TestEvent is deliberately
// excluded: it exists only for the user-initiated test-delivery path.
var names = map[Name]struct{}{
	OrderCreated:     {},
	OrderShipped:     {},
	OrderCancelled:   {},
	InventoryLow:     {},
	InventoryUpdated: {},
	POCreated:        {},
	POReceived:       {},
}

// ChannelFirehose is the synthetic realtime channel that receives every
// domain event in addition to the event's own channel.
const ChannelFirehose = "all-events"

// ErrUnknownEvent is returned by Parse for names outside the taxonomy.
var ErrUnknownEvent = fmt.Errorf("unknown event name")

// Valid reports whether the name is part of the emittable taxonomy.
func (n Name) Valid() bool {
	_, ok := names[n]
	return ok
}

// String returns the wire form of the event name.
func (n Name) String() string {
	return string(n)
}

// Parse validates an externally supplied event name.
func Parse(s string) (Name, error) {
	n := Name(s)
	if !n.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, s)
	}
	return n, nil
}

// Names enumerates the emittable taxonomy in stable order.
func Names() []Name {
	return []Name{
		OrderCreated,
		OrderShipped,
		OrderCancelled,
		InventoryLow,
		InventoryUpdated,
		POCreated,
		POReceived,
	}
}
